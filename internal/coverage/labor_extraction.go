package coverage

import (
	"strings"

	"github.com/shopspring/decimal"
)

// LaborComponentExtractor implements stage 4: pulling the component
// noun straight out of a labor description (e.g. "AUS-/EINBAUEN
// OELKUEHLER" contains OELKUEHLER) and matching it deterministically
// against repair_context_keywords, without needing the LLM.
type LaborComponentExtractor struct {
	component   ComponentConfig
	policyCheck *PolicyListChecker
}

func NewLaborComponentExtractor(component ComponentConfig, policyCheck *PolicyListChecker) *LaborComponentExtractor {
	return &LaborComponentExtractor{component: component, policyCheck: policyCheck}
}

// Match scans remaining labor items for the longest matching repair
// keyword whose category is covered and, when a policy parts list
// exists, confirmed in it. Confirmed matches are appended to matched;
// everything else (non-labor, no keyword hit, uncovered category,
// or an unconfirmed/negative policy check) stays in remaining for the
// LLM stage.
func (e *LaborComponentExtractor) Match(remaining []LineItem, matched []LineItemCoverage, coveredCategories []string, covered map[string][]string) ([]LineItemCoverage, []LineItem) {
	if len(e.component.RepairContextKeywords) == 0 {
		return matched, remaining
	}

	coveredCatsLower := make(map[string]struct{}, len(coveredCategories))
	for _, c := range coveredCategories {
		coveredCatsLower[toLower(c)] = struct{}{}
	}

	var newRemaining []LineItem
	for _, item := range remaining {
		if !isLaborItemType(item.ItemType) {
			newRemaining = append(newRemaining, item)
			continue
		}
		descLower := toLower(item.Description)
		if descLower == "" {
			newRemaining = append(newRemaining, item)
			continue
		}

		keyword, entry, ok := e.longestMatchingKeyword(descLower)
		if !ok {
			newRemaining = append(newRemaining, item)
			continue
		}

		if _, covered := coveredCatsLower[toLower(entry.Category)]; !covered {
			newRemaining = append(newRemaining, item)
			continue
		}

		if len(covered) > 0 {
			verdict, _ := e.policyCheck.IsComponentInPolicyList(entry.Component, entry.Category, covered, item.Description, false)
			if verdict != TristateYes {
				newRemaining = append(newRemaining, item)
				continue
			}
		}

		confidence := decimal.NewFromFloat(0.80)
		tb := NewTraceBuilder(item.deferredTrace).Add("labor_component_extraction", ActionMatched,
			"Labor description contains component keyword '"+keyword+"' -> "+entry.Component+" in "+entry.Category,
			WithVerdict(StatusCovered), WithConfidence(confidence),
			WithDetail(map[string]interface{}{"keyword": keyword, "component": entry.Component, "category": entry.Category}))

		lic := LineItemCoverage{
			ItemCode:         item.ItemCode,
			Description:      item.Description,
			ItemType:         item.ItemType,
			TotalPrice:       item.TotalPrice,
			CoverageStatus:   StatusCovered,
			CoverageCategory: entry.Category,
			MatchedComponent: entry.Component,
			MatchMethod:      MethodKeyword,
			MatchConfidence:  confidence,
			MatchReasoning:   "Labor component extraction: '" + keyword + "' in description -> " + entry.Component + " (" + entry.Category + ")",
			DecisionTrace:    tb.Build(),
		}
		lic.setAmounts(item.TotalPrice)
		matched = append(matched, lic)
	}

	return matched, newRemaining
}

func (e *LaborComponentExtractor) longestMatchingKeyword(description string) (string, RepairKeywordEntry, bool) {
	best := ""
	var bestEntry RepairKeywordEntry
	found := false
	for keyword, entry := range e.component.RepairContextKeywords {
		if !strings.Contains(description, keyword) {
			continue
		}
		if !found || len(keyword) > len(best) {
			best = keyword
			bestEntry = entry
			found = true
		}
	}
	return best, bestEntry, found
}
