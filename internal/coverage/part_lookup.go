package coverage

import (
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// PartLookupResult is what a PartLookup implementation returns for a
// single part/item code.
type PartLookupResult struct {
	Found                bool
	System               string
	Component            string
	ComponentDescription string
	PartNumber           string
	LookupSource         string
	Covered              *bool
	Note                 string
}

// PartLookup resolves an item code to its system/component via the
// customer's part catalog. Implementations: internal/catalog's
// in-memory, SQLite, and Redis-backed variants.
type PartLookup interface {
	Lookup(itemCode string) (*PartLookupResult, error)
}

var ancillaryCategories = map[string]struct{}{
	"labor":       {},
	"consumables": {},
	"parts":       {},
}

// PartNumberMatcher implements stage 2: exact part-number lookup
// against the catalog, followed by the full policy cross-check
// decision matrix. Keyword-based category resolution is intentionally
// not performed here — that's stage 3's job, so every keyword match
// also passes through stage 5 verification.
type PartNumberMatcher struct {
	lookup      PartLookup
	component   ComponentConfig
	ruleEngine  *RuleEngine
	policyCheck *PolicyListChecker
}

func NewPartNumberMatcher(lookup PartLookup, component ComponentConfig, ruleEngine *RuleEngine, policyCheck *PolicyListChecker) *PartNumberMatcher {
	return &PartNumberMatcher{lookup: lookup, component: component, ruleEngine: ruleEngine, policyCheck: policyCheck}
}

// Match resolves items against the part catalog, returning matched
// (adjudicated) items and the remainder for stage 3.
func (m *PartNumberMatcher) Match(items []LineItem, coveredCategories []string, covered, excluded map[string][]string) (matched []LineItemCoverage, unmatched []LineItem) {
	if covered == nil {
		covered = map[string][]string{}
	}
	if excluded == nil {
		excluded = map[string][]string{}
	}

	for _, item := range items {
		item := item
		var result *PartLookupResult
		if item.ItemCode != "" && m.lookup != nil {
			result, _ = m.lookup.Lookup(item.ItemCode)
		}

		if result == nil || !result.Found {
			tb := NewTraceBuilder(nil).Add("part_number", ActionSkipped, "No part number match found",
				WithDetail(map[string]interface{}{"part": item.ItemCode}))
			item.deferredTrace = tb.Build()
			unmatched = append(unmatched, item)
			continue
		}

		if strings.Contains(result.LookupSource, "keyword") {
			descUpper := strings.ToUpper(item.Description)
			if indicator, ok := findGasketIndicator(m.component.GasketSealIndicators, descUpper); ok {
				log.Info().Str("indicator", indicator).Str("description", item.Description).
					Msg("gasket/seal indicator, deferring keyword match to LLM")
				item.partLookupSystem = result.System
				item.partLookupComponent = coalesce(result.Component, result.ComponentDescription)
				tb := NewTraceBuilder(nil).Add("part_number", ActionDeferred,
					"Gasket/seal indicator '"+indicator+"' - deferred to LLM",
					WithDetail(map[string]interface{}{
						"part": item.ItemCode, "lookup_source": result.LookupSource,
						"reason": "gasket_seal_deferral", "system": result.System, "component": result.Component,
					}))
				item.deferredTrace = tb.Build()
				RecordDeferral("part_number")
				unmatched = append(unmatched, item)
				continue
			}
		}

		isCategoryCovered := m.policyCheck.IsSystemCovered(result.System, coveredCategories)
		inPolicyList, policyCheckReason := m.policyCheck.IsComponentInPolicyList(result.Component, result.System, covered, item.Description, false)

		partRef := item.ItemCode
		if partRef == "" {
			partRef = result.PartNumber
		}

		var status CoverageStatus
		var reasoning, exclusionReason string
		deferred := false

		switch {
		case result.Covered != nil && !*result.Covered:
			status = StatusNotCovered
			exclusionReason = "component_excluded"
			reasoning = "Part " + partRef + " is excluded: " + coalesce(result.Note, result.Component)

		case isCategoryCovered && inPolicyList == TristateYes:
			status = StatusCovered
			reasoning = "Part " + partRef + " identified as '" + coalesce(result.ComponentDescription, result.Component) +
				"' in category '" + result.System + "' (lookup: " + result.LookupSource + "). Policy check: " + policyCheckReason

		case isCategoryCovered && inPolicyList == TristateNo:
			crossFound, crossCategory, crossReason := m.policyCheck.FindComponentAcrossCategories(result.Component, result.System, covered, excluded, item.Description)
			if crossFound {
				status = StatusCovered
				reasoning = "Part " + partRef + " identified as '" + coalesce(result.ComponentDescription, result.Component) +
					"' in category '" + result.System + "' (lookup: " + result.LookupSource + "). " + crossReason
				result.System = crossCategory
			} else {
				log.Info().Str("part", partRef).Str("component", result.Component).Str("system", result.System).
					Msg("deferring to LLM: category covered but component not in policy parts list")
				item.partLookupSystem = result.System
				item.partLookupComponent = coalesce(result.Component, result.ComponentDescription)
				tb := NewTraceBuilder(nil).Add("part_number", ActionDeferred,
					"Category covered but component not in policy parts list - deferred to LLM",
					WithDetail(map[string]interface{}{
						"part": partRef, "system": result.System, "component": result.Component,
						"reason": "not_in_policy_list",
					}))
				item.deferredTrace = tb.Build()
				RecordDeferral("part_number")
				unmatched = append(unmatched, item)
				deferred = true
			}

		case isCategoryCovered && inPolicyList == TristateUnknown:
			isExactPN := result.LookupSource != "" && !strings.Contains(result.LookupSource, "keyword")
			if isExactPN {
				if m.policyCheck.IsComponentExcludedByPolicy(result.Component, result.System, item.Description, excluded) {
					status = StatusNotCovered
					exclusionReason = "component_excluded"
					reasoning = "Part " + partRef + " identified as '" + coalesce(result.ComponentDescription, result.Component) +
						"' in category '" + result.System + "' (exact part number) but explicitly excluded by policy"
				} else {
					log.Info().Str("part", partRef).Msg("deferring to LLM: policy list inconclusive (synonym gap)")
					item.partLookupSystem = result.System
					item.partLookupComponent = coalesce(result.Component, result.ComponentDescription)
					tb := NewTraceBuilder(nil).Add("part_number", ActionDeferred,
						"Policy list inconclusive (synonym gap) - deferred to LLM",
						WithDetail(map[string]interface{}{
							"part": partRef, "system": result.System, "component": result.Component,
							"reason": "synonym_gap",
						}))
					item.deferredTrace = tb.Build()
					RecordDeferral("part_number")
					unmatched = append(unmatched, item)
					deferred = true
				}
			} else {
				log.Info().Str("part", partRef).Msg("deferring to LLM: policy list inconclusive (keyword match)")
				item.partLookupSystem = result.System
				item.partLookupComponent = coalesce(result.Component, result.ComponentDescription)
				tb := NewTraceBuilder(nil).Add("part_number", ActionDeferred,
					"Policy list inconclusive (keyword match) - deferred to LLM",
					WithDetail(map[string]interface{}{
						"part": partRef, "system": result.System, "component": result.Component,
						"reason": "keyword_match_inconclusive",
					}))
				item.deferredTrace = tb.Build()
				RecordDeferral("part_number")
				unmatched = append(unmatched, item)
				deferred = true
			}

		default:
			_, isAncillary := ancillaryCategories[toLower(result.System)]
			hasRepairCtx := item.RepairDescription != "" || item.repairContextDescription != ""
			hasAliases := len(m.component.CategoryAliases[toLower(result.System)]) > 0
			if isAncillary || hasRepairCtx || hasAliases {
				log.Info().Str("part", partRef).Bool("ancillary", isAncillary).Bool("repair_ctx", hasRepairCtx).Bool("aliases", hasAliases).
					Msg("deferring to LLM: category not covered")
				item.partLookupSystem = result.System
				item.partLookupComponent = coalesce(result.Component, result.ComponentDescription)
				tb := NewTraceBuilder(nil).Add("part_number", ActionDeferred,
					"Category not covered but ancillary/repair-context/alias signal present - deferred to LLM",
					WithDetail(map[string]interface{}{
						"part": partRef, "system": result.System, "component": result.Component,
						"ancillary": isAncillary, "repair_context": hasRepairCtx, "aliases": hasAliases,
					}))
				item.deferredTrace = tb.Build()
				RecordDeferral("part_number")
				unmatched = append(unmatched, item)
				deferred = true
			} else {
				status = StatusNotCovered
				exclusionReason = "category_not_covered"
				reasoning = "Part " + partRef + " is '" + result.Component + "' in category '" + result.System + "' which is not covered by this policy"
			}
		}

		if deferred {
			continue
		}

		if status == StatusCovered && item.IsLabor() {
			if _, nonCovered := m.ruleEngine.CheckNonCoveredLabor(item.Description); nonCovered {
				status = StatusNotCovered
				exclusionReason = "non_covered_labor"
				reasoning = "Part " + partRef + " keyword-matched as '" + coalesce(result.ComponentDescription, result.Component) +
					"' but labor matches non-covered pattern"
			}
		}

		detail := map[string]interface{}{
			"part": partRef, "lookup_source": result.LookupSource,
			"system": result.System, "component": result.Component,
		}
		if inPolicyList != TristateUnknown {
			detail["policy_check"] = inPolicyList.IsYes()
			detail["policy_check_reason"] = policyCheckReason
		}
		action := ActionExcluded
		if status == StatusCovered {
			action = ActionMatched
		}
		confidence := decimal.NewFromFloat(0.95)
		tb := NewTraceBuilder(nil).Add("part_number", action, reasoning, WithVerdict(status), WithConfidence(confidence), WithDetail(detail))

		covAmount := decimal.Zero
		if status == StatusCovered {
			covAmount = item.TotalPrice
		}
		lic := LineItemCoverage{
			ItemCode:          item.ItemCode,
			Description:       item.Description,
			ItemType:          item.ItemType,
			TotalPrice:        item.TotalPrice,
			CoverageStatus:    status,
			CoverageCategory:  result.System,
			MatchedComponent:  coalesce(result.ComponentDescription, result.Component),
			MatchMethod:       MethodPartNumber,
			MatchConfidence:   confidence,
			MatchReasoning:    reasoning,
			ExclusionReason:   exclusionReason,
			DecisionTrace:     tb.Build(),
			PolicyListConfirmed: inPolicyList,
		}
		lic.setAmounts(covAmount)
		matched = append(matched, lic)
	}

	return matched, unmatched
}

func findGasketIndicator(indicators map[string]struct{}, descUpper string) (string, bool) {
	for ind := range indicators {
		if strings.Contains(descUpper, strings.ToUpper(ind)) {
			return ind, true
		}
	}
	return "", false
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
