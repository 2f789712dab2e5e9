package coverage

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var laborTypeNames = map[string]struct{}{
	"labor": {}, "labour": {}, "main d'oeuvre": {}, "arbeit": {},
}

var partTypeNames = map[string]struct{}{
	"parts": {}, "part": {}, "piece": {},
}

func isLaborType(t string) bool { _, ok := laborTypeNames[toLower(t)]; return ok }
func isPartType(t string) bool  { _, ok := partTypeNames[toLower(t)]; return ok }

var genericLaborDescriptions = map[string]struct{}{
	"main d'oeuvre": {}, "main d'œuvre": {}, "main-d'oeuvre": {}, "main-d'œuvre": {},
	"arbeit": {}, "arbeitszeit": {}, "labor": {}, "labour": {}, "travail": {},
	"manodopera": {}, "mécanicien": {}, "mecanicien": {},
}

// IsGenericLaborDescription reports whether description is nothing
// more than a bare labor-line label in any of the supported
// languages, after stripping trailing punctuation.
func IsGenericLaborDescription(description string) bool {
	normalized := strings.TrimRight(toLower(description), ":.")
	_, ok := genericLaborDescriptions[normalized]
	return ok
}

// ExcludedPartsIndex indexes the claim's own NOT_COVERED parts for the
// excluded-part guards in ApplyLaborFollowsParts.
type ExcludedPartsIndex struct {
	Codes      map[string]struct{}
	Components map[string]struct{}
}

// BuildExcludedItemsIndex scans items (not the policy document) for
// NOT_COVERED parts, indexing their cleaned item codes (4+ chars) and
// matched components.
func BuildExcludedItemsIndex(items []LineItemCoverage) ExcludedPartsIndex {
	idx := ExcludedPartsIndex{Codes: map[string]struct{}{}, Components: map[string]struct{}{}}
	for _, item := range items {
		if item.CoverageStatus != StatusNotCovered || !isPartType(item.ItemType) {
			continue
		}
		if item.ItemCode != "" {
			clean := cleanAlnumUpper(item.ItemCode)
			if len(clean) >= 4 {
				idx.Codes[clean] = struct{}{}
			}
		}
		if item.MatchedComponent != "" {
			idx.Components[toLower(item.MatchedComponent)] = struct{}{}
		}
	}
	return idx
}

// ApplyLaborFollowsParts promotes labor items to COVERED when a
// covered part anchors them, via three strategies in order:
// part-number-in-description, the single-highest-priced generic-labor
// invoice rule (bounded by a 2x proportionality guard), and
// repair-context-keyword linkage (guarded against the claim's own
// excluded parts).
func ApplyLaborFollowsParts(items []LineItemCoverage, component ComponentConfig, repairContext *RepairContext) []LineItemCoverage {
	out := make([]LineItemCoverage, len(items))
	copy(out, items)

	var coveredParts []int
	coveredPartsByCode := map[string]int{}
	for i, item := range out {
		if item.CoverageStatus == StatusCovered && isPartType(item.ItemType) {
			coveredParts = append(coveredParts, i)
			if item.ItemCode != "" {
				clean := cleanAlnumUpper(item.ItemCode)
				if len(clean) >= 4 {
					coveredPartsByCode[clean] = i
				}
			}
		}
	}

	// Strategy 1: part-number matching.
	if len(coveredPartsByCode) > 0 {
		for i := range out {
			item := &out[i]
			if !isLaborType(item.ItemType) || item.CoverageStatus == StatusCovered {
				continue
			}
			descAlnum := alnumOrSpaceUpper(item.Description)
			for code, partIdx := range coveredPartsByCode {
				if strings.Contains(descAlnum, code) {
					part := out[partIdx]
					item.CoverageStatus = StatusCovered
					item.CoverageCategory = part.CoverageCategory
					item.MatchedComponent = part.MatchedComponent
					item.MatchConfidence = decimal.NewFromFloat(0.85)
					item.MatchReasoning = fmt.Sprintf("Labor for covered part: %s (matched part number: %s)", part.Description, code)
					item.setAmounts(item.TotalPrice)
					tb := NewTraceBuilder(item.DecisionTrace).Add("labor_follows_parts", ActionPromoted,
						"Labor linked to covered part via part number "+code,
						WithVerdict(StatusCovered), WithConfidence(item.MatchConfidence),
						WithDetail(map[string]interface{}{"strategy": "part_number_in_description", "linked_part_code": code}))
					item.DecisionTrace = tb.Build()
					break
				}
			}
		}
	}

	// Strategy 2: simple invoice rule.
	if len(coveredParts) > 0 {
		var uncoveredGenericIdx []int
		for i, item := range out {
			if isLaborType(item.ItemType) && item.CoverageStatus != StatusCovered && IsGenericLaborDescription(item.Description) {
				uncoveredGenericIdx = append(uncoveredGenericIdx, i)
			}
		}
		if len(uncoveredGenericIdx) > 0 {
			linkedPart := out[coveredParts[0]]
			best := uncoveredGenericIdx[0]
			for _, i := range uncoveredGenericIdx {
				if out[i].TotalPrice.GreaterThan(out[best].TotalPrice) {
					best = i
				}
			}
			totalCoveredPartsValue := decimal.Zero
			for _, i := range coveredParts {
				totalCoveredPartsValue = totalCoveredPartsValue.Add(out[i].TotalPrice)
			}
			laborItem := &out[best]
			if totalCoveredPartsValue.GreaterThan(decimal.Zero) && laborItem.TotalPrice.GreaterThan(totalCoveredPartsValue.Mul(decimal.NewFromInt(2))) {
				tb := NewTraceBuilder(laborItem.DecisionTrace).Add("labor_follows_parts", ActionSkipped,
					fmt.Sprintf("Simple invoice rule: labor %s > 2x parts %s (disproportionate)", laborItem.TotalPrice, totalCoveredPartsValue),
					WithDetail(map[string]interface{}{"strategy": "simple_invoice_rule", "skip_reason": "proportionality_guard"}))
				laborItem.DecisionTrace = tb.Build()
			} else {
				laborItem.CoverageStatus = StatusCovered
				laborItem.CoverageCategory = linkedPart.CoverageCategory
				laborItem.MatchedComponent = linkedPart.MatchedComponent
				laborItem.MatchConfidence = decimal.NewFromFloat(0.75)
				laborItem.MatchReasoning = "Simple invoice rule: generic labor linked to covered part '" + linkedPart.Description + "' (" + linkedPart.CoverageCategory + ")"
				laborItem.setAmounts(laborItem.TotalPrice)
				tb := NewTraceBuilder(laborItem.DecisionTrace).Add("labor_follows_parts", ActionPromoted,
					"Simple invoice rule: linked to '"+linkedPart.Description+"'",
					WithVerdict(StatusCovered), WithConfidence(laborItem.MatchConfidence),
					WithDetail(map[string]interface{}{"strategy": "simple_invoice_rule", "linked_to": linkedPart.Description}))
				laborItem.DecisionTrace = tb.Build()
			}
		}
	}

	// Strategy 3: repair-context keyword matching, guarded against the
	// claim's own excluded parts.
	if len(coveredParts) > 0 {
		excludedIdx := BuildExcludedItemsIndex(out)
		for i := range out {
			item := &out[i]
			if !isLaborType(item.ItemType) || item.CoverageStatus == StatusCovered {
				continue
			}
			descLower := toLower(item.Description)
			for keyword, entry := range component.RepairContextKeywords {
				if !strings.Contains(descLower, keyword) {
					continue
				}
				if item.ItemCode != "" {
					clean := cleanAlnumUpper(item.ItemCode)
					if _, excluded := excludedIdx.Codes[clean]; excluded {
						tb := NewTraceBuilder(item.DecisionTrace).Add("labor_follows_parts", ActionSkipped,
							"Excluded-part guard: item_code "+clean+" matches a NOT_COVERED part",
							WithDetail(map[string]interface{}{"reason": "excluded_part_guard", "strategy": "repair_context_keyword", "blocked_by": "item_code_match"}))
						item.DecisionTrace = tb.Build()
						continue
					}
				}
				if _, excluded := excludedIdx.Components[toLower(entry.Component)]; excluded {
					tb := NewTraceBuilder(item.DecisionTrace).Add("labor_follows_parts", ActionSkipped,
						"Excluded-part guard: component '"+entry.Component+"' matches a NOT_COVERED part's component",
						WithDetail(map[string]interface{}{"reason": "excluded_part_guard", "strategy": "repair_context_keyword", "blocked_by": "component_match"}))
					item.DecisionTrace = tb.Build()
					continue
				}

				matchingCount := 0
				for _, pi := range coveredParts {
					if toLower(out[pi].CoverageCategory) == toLower(entry.Category) {
						matchingCount++
					}
				}
				if matchingCount > 0 {
					item.CoverageStatus = StatusCovered
					item.CoverageCategory = entry.Category
					item.MatchedComponent = entry.Component
					item.MatchConfidence = decimal.NewFromFloat(0.80)
					item.MatchReasoning = fmt.Sprintf("Labor for covered repair: '%s' matches %d covered %s parts", keyword, matchingCount, entry.Category)
					item.setAmounts(item.TotalPrice)
					tb := NewTraceBuilder(item.DecisionTrace).Add("labor_follows_parts", ActionPromoted,
						"Repair context keyword '"+keyword+"' linked to "+entry.Category,
						WithVerdict(StatusCovered), WithConfidence(item.MatchConfidence),
						WithDetail(map[string]interface{}{"strategy": "repair_context_keyword", "keyword": keyword, "linked_to": entry.Category}))
					item.DecisionTrace = tb.Build()
					break
				}
			}
		}
	}

	return out
}

// PromoteAncillaryParts promotes small hardware (gaskets, seals,
// screws) to COVERED when a covered repair context is active and at
// least one part is already covered — NSA-style grouped-job coverage.
func PromoteAncillaryParts(items []LineItemCoverage, component ComponentConfig, repairContext *RepairContext) []LineItemCoverage {
	if repairContext == nil || !repairContext.IsCovered.IsYes() {
		return items
	}
	out := make([]LineItemCoverage, len(items))
	copy(out, items)

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

	for i := range out {
		item := &out[i]
		if item.CoverageStatus == StatusCovered || !isPartType(item.ItemType) {
			continue
		}
		descLower := toLower(item.Description)
		for pattern := range component.AncillaryKeywords {
			if !strings.Contains(descLower, pattern) {
				continue
			}
			item.CoverageStatus = StatusCovered
			item.CoverageCategory = repairContext.PrimaryCategory
			item.MatchedComponent = repairContext.PrimaryComponent
			item.MatchConfidence = decimal.NewFromFloat(0.70)
			item.MatchReasoning = "Ancillary part for covered repair: '" + pattern + "' linked to " + repairContext.PrimaryComponent
			item.setAmounts(item.TotalPrice)
			tb := NewTraceBuilder(item.DecisionTrace).Add("ancillary_promotion", ActionPromoted,
				"Ancillary part '"+pattern+"' linked to "+repairContext.PrimaryComponent,
				WithVerdict(StatusCovered), WithConfidence(item.MatchConfidence),
				WithDetail(map[string]interface{}{"pattern": pattern, "repair_component": repairContext.PrimaryComponent}))
			item.DecisionTrace = tb.Build()
			break
		}
	}
	return out
}

// PromotePartsForCoveredRepair promotes an LLM-classified parts item
// to COVERED when covered labor already exists in the repair
// context's category — it never overrides a deterministic exclusion.
func PromotePartsForCoveredRepair(items []LineItemCoverage, repairContext *RepairContext) []LineItemCoverage {
	if repairContext == nil || !repairContext.IsCovered.IsYes() || repairContext.PrimaryComponent == "" || repairContext.PrimaryCategory == "" {
		return items
	}
	out := make([]LineItemCoverage, len(items))
	copy(out, items)

	hasCoveredLabor := false
	for _, item := range out {
		if item.CoverageStatus == StatusCovered && isLaborType(item.ItemType) && toLower(item.CoverageCategory) == toLower(repairContext.PrimaryCategory) {
			hasCoveredLabor = true
			break
		}
	}
	if !hasCoveredLabor {
		return out
	}

	for i := range out {
		item := &out[i]
		if item.CoverageStatus == StatusCovered || !isPartType(item.ItemType) || item.MatchMethod != MethodLLM {
			continue
		}
		if toLower(item.CoverageCategory) != toLower(repairContext.PrimaryCategory) {
			continue
		}
		item.CoverageStatus = StatusCovered
		item.CoverageCategory = repairContext.PrimaryCategory
		item.MatchedComponent = repairContext.PrimaryComponent
		item.MatchConfidence = decimal.NewFromFloat(0.85)
		item.MatchReasoning = "Part promoted: covered labor for '" + repairContext.PrimaryComponent + "' exists in '" + repairContext.PrimaryCategory + "'; LLM classification overridden by repair context"
		item.setAmounts(item.TotalPrice)
		tb := NewTraceBuilder(item.DecisionTrace).Add("parts_for_repair", ActionPromoted,
			"Covered labor exists for '"+repairContext.PrimaryComponent+"'",
			WithVerdict(StatusCovered),
			WithDetail(map[string]interface{}{"repair_component": repairContext.PrimaryComponent, "repair_category": repairContext.PrimaryCategory}))
		item.DecisionTrace = tb.Build()
	}
	return out
}

// DemoteLaborWithoutCoveredParts demotes COVERED labor back to
// NOT_COVERED when zero parts ended up covered. Labor is ancillary: it
// needs a covered part to anchor it, whatever stage matched it.
func DemoteLaborWithoutCoveredParts(items []LineItemCoverage) []LineItemCoverage {
	hasCoveredParts := false
	for _, item := range items {
		if item.CoverageStatus == StatusCovered && isPartType(item.ItemType) {
			hasCoveredParts = true
			break
		}
	}
	if hasCoveredParts {
		return items
	}

	out := make([]LineItemCoverage, len(items))
	copy(out, items)
	for i := range out {
		item := &out[i]
		if !isLaborType(item.ItemType) || item.CoverageStatus != StatusCovered {
			continue
		}
		item.CoverageStatus = StatusNotCovered
		item.ExclusionReason = "demoted_no_anchor"
		item.setAmounts(decimal.Zero)
		item.MatchReasoning += " [DEMOTED: no covered parts in claim — labor cannot be covered without an anchoring part]"
		tb := NewTraceBuilder(item.DecisionTrace).Add("labor_demotion", ActionDemoted,
			"No covered parts in claim — labor has no anchor",
			WithVerdict(StatusNotCovered),
			WithDetail(map[string]interface{}{"reason": "no_covered_parts_anchor"}))
		item.DecisionTrace = tb.Build()
	}
	return out
}

// FlagNominalPriceLabor flags COVERED labor operation-codes priced at
// or below threshold as REVIEW_NEEDED: Mercedes-format invoices list
// labor operations at a nominal per-code price where the real cost is
// hours x hourly rate, which this pipeline doesn't parse.
func FlagNominalPriceLabor(items []LineItemCoverage, threshold decimal.Decimal) []LineItemCoverage {
	out := make([]LineItemCoverage, len(items))
	copy(out, items)
	for i := range out {
		item := &out[i]
		if !isLaborType(item.ItemType) || item.CoverageStatus != StatusCovered {
			continue
		}
		if strings.TrimSpace(item.ItemCode) == "" {
			continue
		}
		if item.TotalPrice.LessThanOrEqual(decimal.Zero) || item.TotalPrice.GreaterThan(threshold) {
			continue
		}
		item.CoverageStatus = StatusReviewNeeded
		item.MatchConfidence = decimal.NewFromFloat(0.30)
		item.ExclusionReason = "nominal_price_labor"
		item.setAmounts(decimal.Zero)
		tb := NewTraceBuilder(item.DecisionTrace).Add("nominal_price_audit", ActionDemoted,
			fmt.Sprintf("Labor item has nominal price (%s) with operation code -- likely missing hourly rate; flagged for review", item.TotalPrice),
			WithVerdict(StatusReviewNeeded), WithConfidence(item.MatchConfidence))
		item.DecisionTrace = tb.Build()
	}
	return out
}
