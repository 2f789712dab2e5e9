package coverage

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// DeterminePrimaryRepair picks the claim's single dominant failure
// mode through a tiered cascade: an optional LLM tier 0, then the
// highest-value covered part, then the highest-value covered item of
// any type, then the detected repair context (with a sanity override
// when no line item actually ended up covered), then the
// highest-value uncovered item so a reviewer still has something to
// anchor on. If nothing qualifies, DeterminationNone signals the
// caller to refer the claim for manual review.
func DeterminePrimaryRepair(ctx context.Context, allItems []LineItemCoverage, covered map[string][]string, repairContext *RepairContext, useLLMPrimaryRepair bool, matcher *LLMMatcher, repairDescription string) PrimaryRepairResult {
	if useLLMPrimaryRepair && matcher != nil {
		if result, err := matcher.DeterminePrimaryRepair(ctx, allItems, covered, repairDescription); err == nil && result != nil {
			log.Info().Str("component", result.Component).Str("category", result.Category).
				Msg("primary repair (tier 0 LLM)")
			return *result
		} else if err != nil {
			log.Warn().Err(err).Msg("llm primary repair determination failed")
		}
	}

	// Tier 1a: highest-value COVERED parts item.
	if idx, ok := bestMatching(allItems, func(i int, it LineItemCoverage) bool {
		return it.CoverageStatus == StatusCovered && isPartType(it.ItemType)
	}); ok {
		item := allItems[idx]
		covered := true
		return PrimaryRepairResult{
			Component: item.MatchedComponent, Category: item.CoverageCategory, Description: item.Description,
			IsCovered: &covered, Confidence: orDefault(item.MatchConfidence, 0.90),
			DeterminationMethod: DeterminationDeterministic, SourceItemIndex: &idx,
		}
	}

	// Tier 1b: highest-value COVERED item of any type.
	if idx, ok := bestMatching(allItems, func(i int, it LineItemCoverage) bool {
		return it.CoverageStatus == StatusCovered && it.MatchedComponent != ""
	}); ok {
		item := allItems[idx]
		covered := true
		return PrimaryRepairResult{
			Component: item.MatchedComponent, Category: item.CoverageCategory, Description: item.Description,
			IsCovered: &covered, Confidence: orDefault(item.MatchConfidence, 0.85),
			DeterminationMethod: DeterminationDeterministic, SourceItemIndex: &idx,
		}
	}

	// Tier 2: repair context.
	if repairContext != nil && repairContext.PrimaryComponent != "" {
		effectiveCovered := repairContext.IsCovered.IsYes()
		if effectiveCovered {
			anyCovered := false
			for _, item := range allItems {
				if item.CoverageStatus == StatusCovered {
					anyCovered = true
					break
				}
			}
			if !anyCovered {
				log.Warn().Msg("primary repair (tier 2): overriding is_covered true->false, no covered line items")
				effectiveCovered = false
			}
		}
		return PrimaryRepairResult{
			Component: repairContext.PrimaryComponent, Category: repairContext.PrimaryCategory,
			Description: repairContext.SourceDescription, IsCovered: &effectiveCovered,
			Confidence: decimal.NewFromFloat(0.80), DeterminationMethod: DeterminationRepairContext,
		}
	}

	// Tier 1c: highest-value NOT_COVERED/REVIEW_NEEDED item with a
	// matched component, so the reviewer has an anchor even when
	// nothing in the claim is covered.
	if idx, ok := bestMatching(allItems, func(i int, it LineItemCoverage) bool {
		return (it.CoverageStatus == StatusNotCovered || it.CoverageStatus == StatusReviewNeeded) && it.MatchedComponent != ""
	}); ok {
		item := allItems[idx]
		notCovered := false
		return PrimaryRepairResult{
			Component: item.MatchedComponent, Category: item.CoverageCategory, Description: item.Description,
			IsCovered: &notCovered, Confidence: orDefault(item.MatchConfidence, 0.70),
			DeterminationMethod: DeterminationDeterministic, SourceItemIndex: &idx,
		}
	}

	log.Info().Msg("primary repair: could not determine - will refer")
	return PrimaryRepairResult{DeterminationMethod: DeterminationNone}
}

func bestMatching(items []LineItemCoverage, pred func(int, LineItemCoverage) bool) (int, bool) {
	best := -1
	for i, item := range items {
		if !pred(i, item) {
			continue
		}
		if best == -1 || item.TotalPrice.GreaterThan(items[best].TotalPrice) {
			best = i
		}
	}
	return best, best != -1
}

func orDefault(d decimal.Decimal, fallback float64) decimal.Decimal {
	if d.IsZero() {
		return decimal.NewFromFloat(fallback)
	}
	return d
}

// IsInExcludedList reports whether item's description substring-
// matches any of excluded's policy-document parts, across all
// categories.
func IsInExcludedList(item LineItemCoverage, excluded map[string][]string) bool {
	if len(excluded) == 0 {
		return false
	}
	descLower := toLower(item.Description)
	for _, parts := range excluded {
		for _, part := range parts {
			partLower := toLower(part)
			if strings.Contains(descLower, partLower) || strings.Contains(partLower, descLower) {
				return true
			}
		}
	}
	return false
}

// PromoteItemsForCoveredPrimaryRepair runs the two stage-9 boost
// modes once the primary repair is known and confirmed covered.
//
// Mode 1 (zero-payout rescue) fires when nothing else in the claim
// ended up covered: it promotes every LLM-classified item in the
// primary repair's category, skipping anything a deterministic stage
// already excluded.
//
// Mode 2 (LLM labor relevance) fires when some parts are covered but
// labor wasn't: it makes one LLM call per NOT_COVERED, LLM-classified
// labor candidate, asking whether that candidate is mechanically
// necessary for the primary repair, and promotes only the ones
// confirmed relevant. The candidates are not sent in a single batch
// call.
func PromoteItemsForCoveredPrimaryRepair(ctx context.Context, items []LineItemCoverage, primary PrimaryRepairResult, matcher *LLMMatcher, allLineItems []LineItem) []LineItemCoverage {
	if primary.IsCovered == nil || !*primary.IsCovered || primary.Category == "" {
		return items
	}

	out := make([]LineItemCoverage, len(items))
	copy(out, items)
	category := primary.Category
	categoryLower := toLower(category)

	hasCovered := false
	for _, item := range out {
		if item.CoverageStatus == StatusCovered && item.TotalPrice.GreaterThan(decimal.Zero) {
			hasCovered = true
			break
		}
	}

	if !hasCovered {
		for i := range out {
			item := &out[i]
			if item.CoverageStatus != StatusNotCovered || item.MatchMethod != MethodLLM {
				continue
			}
			if item.ExclusionReason != "" {
				tb := NewTraceBuilder(item.DecisionTrace).Add("primary_repair_boost", ActionSkipped,
					"Zero-payout rescue skipped: item has exclusion_reason='"+item.ExclusionReason+"'",
					WithDetail(map[string]interface{}{"mode": "zero_payout_rescue", "skip_reason": "exclusion_reason"}))
				item.DecisionTrace = tb.Build()
				continue
			}
			itemCat := toLower(item.CoverageCategory)
			if itemCat != "" && itemCat != categoryLower {
				tb := NewTraceBuilder(item.DecisionTrace).Add("primary_repair_boost", ActionSkipped,
					fmt.Sprintf("Zero-payout rescue skipped: item category '%s' does not match primary repair category '%s'", item.CoverageCategory, category),
					WithDetail(map[string]interface{}{"mode": "zero_payout_rescue", "skip_reason": "category_mismatch"}))
				item.DecisionTrace = tb.Build()
				continue
			}

			item.CoverageStatus = StatusCovered
			item.CoverageCategory = category
			if item.MatchedComponent == "" {
				item.MatchedComponent = primary.Component
			}
			item.setAmounts(item.TotalPrice)
			item.MatchReasoning += " [PROMOTED: primary repair '" + primary.Component + "' in '" + category + "' is covered by policy]"
			tb := NewTraceBuilder(item.DecisionTrace).Add("primary_repair_boost", ActionPromoted,
				"Zero-payout rescue: primary repair '"+primary.Component+"' is covered",
				WithVerdict(StatusCovered), WithDetail(map[string]interface{}{"mode": "zero_payout_rescue", "primary_component": primary.Component}))
			item.DecisionTrace = tb.Build()
		}
		return out
	}

	// Mode 2.
	hasCoveredParts := false
	for _, item := range out {
		if item.CoverageStatus == StatusCovered && isPartType(item.ItemType) {
			hasCoveredParts = true
			break
		}
	}
	if !hasCoveredParts {
		return out
	}

	var candidateIdx []int
	for i, item := range out {
		if !isLaborType(item.ItemType) || item.CoverageStatus != StatusNotCovered || item.MatchMethod != MethodLLM || item.ExclusionReason != "" {
			continue
		}
		candidateIdx = append(candidateIdx, i)
	}
	if len(candidateIdx) == 0 || matcher == nil {
		return out
	}

	candidateItems := make([]LineItem, len(candidateIdx))
	for i, idx := range candidateIdx {
		lic := out[idx]
		candidateItems[i] = LineItem{ItemCode: lic.ItemCode, Description: lic.Description, ItemType: lic.ItemType, TotalPrice: lic.TotalPrice}
	}

	verdicts, err := matcher.ClassifyLaborRelevance(ctx, candidateItems, primary)
	if err != nil {
		log.Warn().Err(err).Msg("llm labor relevance call failed, leaving candidates as not covered")
		for _, idx := range candidateIdx {
			item := &out[idx]
			tb := NewTraceBuilder(item.DecisionTrace).Add("primary_repair_boost_llm", ActionSkipped,
				"LLM labor relevance failed: "+err.Error(),
				WithDetail(map[string]interface{}{"mode": "llm_labor_relevance", "error": err.Error()}))
			item.DecisionTrace = tb.Build()
		}
		return out
	}

	for i, idx := range candidateIdx {
		item := &out[idx]
		if i < len(verdicts) && verdicts[i] {
			item.CoverageStatus = StatusCovered
			item.CoverageCategory = category
			if item.MatchedComponent == "" {
				item.MatchedComponent = primary.Component
			}
			item.setAmounts(item.TotalPrice)
			item.MatchReasoning += " [PROMOTED: LLM confirmed labor is necessary for primary repair '" + primary.Component + "' in '" + category + "']"
			tb := NewTraceBuilder(item.DecisionTrace).Add("primary_repair_boost_llm", ActionPromoted,
				"LLM labor relevance: necessary for '"+primary.Component+"'",
				WithVerdict(StatusCovered), WithDetail(map[string]interface{}{"mode": "llm_labor_relevance", "primary_component": primary.Component}))
			item.DecisionTrace = tb.Build()
		} else {
			tb := NewTraceBuilder(item.DecisionTrace).Add("primary_repair_boost_llm", ActionSkipped,
				"LLM labor relevance: not necessary for '"+primary.Component+"'",
				WithDetail(map[string]interface{}{"mode": "llm_labor_relevance", "primary_component": primary.Component}))
			item.DecisionTrace = tb.Build()
		}
	}

	return out
}
