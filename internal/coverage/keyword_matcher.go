package coverage

import (
	"strings"

	"github.com/shopspring/decimal"
)

// KeywordMatcher implements stage 3: matching item descriptions
// against the customer's language-specific term-to-category mapping.
// A match only becomes a COVERED verdict when its category is among
// the policy's covered categories and the mapped confidence clears
// the configured minimum; everything else stays unmatched for later
// stages. Category-level coverage is a coarser signal than stage 5's
// per-component policy-list check, which runs separately on whatever
// this stage marks COVERED.
type KeywordMatcher struct {
	config KeywordConfig
}

func NewKeywordMatcher(config KeywordConfig) *KeywordMatcher {
	return &KeywordMatcher{config: config}
}

// BatchMatch scans items for the longest matching keyword and returns
// confirmed COVERED candidates plus the remainder for stage 4.
func (m *KeywordMatcher) BatchMatch(items []LineItem, coveredCategories []string, minConfidence float64) (matched []LineItemCoverage, remaining []LineItem) {
	coveredSet := make(map[string]struct{}, len(coveredCategories))
	for _, c := range coveredCategories {
		coveredSet[toLower(c)] = struct{}{}
	}

	for _, item := range items {
		term, mapping, ok := m.longestMatch(toLower(item.Description))
		if !ok || mapping.Confidence < minConfidence {
			remaining = append(remaining, item)
			continue
		}
		if _, covered := coveredSet[toLower(mapping.Category)]; !covered {
			remaining = append(remaining, item)
			continue
		}

		confidence := decimal.NewFromFloat(mapping.Confidence)
		tb := NewTraceBuilder(item.deferredTrace).Add("keyword_matcher", ActionMatched,
			"Keyword '"+term+"' matched category '"+mapping.Category+"'",
			WithVerdict(StatusCovered), WithConfidence(confidence),
			WithDetail(map[string]interface{}{"keyword": term, "category": mapping.Category}))

		lic := LineItemCoverage{
			ItemCode:         item.ItemCode,
			Description:      item.Description,
			ItemType:         item.ItemType,
			TotalPrice:       item.TotalPrice,
			CoverageStatus:   StatusCovered,
			CoverageCategory: mapping.Category,
			MatchMethod:      MethodKeyword,
			MatchConfidence:  confidence,
			MatchReasoning:   "Keyword match: '" + term + "' -> category '" + mapping.Category + "'",
			DecisionTrace:    tb.Build(),
		}
		lic.setAmounts(item.TotalPrice)
		matched = append(matched, lic)
	}
	return matched, remaining
}

func (m *KeywordMatcher) longestMatch(description string) (string, KeywordMapping, bool) {
	best := ""
	var bestMapping KeywordMapping
	found := false
	for term, mapping := range m.config.Mappings {
		if !strings.Contains(description, term) {
			continue
		}
		if !found || len(term) > len(best) {
			best = term
			bestMapping = mapping
			found = true
		}
	}
	return best, bestMapping, found
}
