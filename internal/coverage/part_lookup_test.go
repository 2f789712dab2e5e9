package coverage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPartLookup struct {
	results map[string]*PartLookupResult
}

func (s *stubPartLookup) Lookup(itemCode string) (*PartLookupResult, error) {
	if r, ok := s.results[itemCode]; ok {
		return r, nil
	}
	return &PartLookupResult{Found: false}, nil
}

func newTestPartMatcher(lookup PartLookup, cc ComponentConfig) *PartNumberMatcher {
	re := NewRuleEngine(testRuleConfig())
	pc := NewPolicyListChecker(cc)
	return NewPartNumberMatcher(lookup, cc, re, pc)
}

func TestPartNumberMatcher_NoLookupMatch(t *testing.T) {
	lookup := &stubPartLookup{results: map[string]*PartLookupResult{}}
	m := newTestPartMatcher(lookup, ComponentConfig{})

	items := []LineItem{{ItemCode: "UNKNOWN1", Description: "mystery part", ItemType: "parts", TotalPrice: moneyOf(t, "10")}}
	matched, unmatched := m.Match(items, nil, nil, nil)
	assert.Empty(t, matched)
	require.Len(t, unmatched, 1)
}

func TestPartNumberMatcher_DirectCoveredMatch(t *testing.T) {
	lookup := &stubPartLookup{results: map[string]*PartLookupResult{
		"PN1": {Found: true, System: "engine", Component: "turbocharger", LookupSource: "exact", PartNumber: "PN1"},
	}}
	cc := ComponentConfig{}
	m := newTestPartMatcher(lookup, cc)
	covered := map[string][]string{"engine": {"turbocharger"}}

	items := []LineItem{{ItemCode: "PN1", Description: "turbocharger assembly", ItemType: "parts", TotalPrice: moneyOf(t, "900")}}
	matched, unmatched := m.Match(items, []string{"engine"}, covered, nil)
	require.Len(t, matched, 1)
	assert.Empty(t, unmatched)
	assert.Equal(t, StatusCovered, matched[0].CoverageStatus)
	assert.True(t, matched[0].CoveredAmount.Equal(moneyOf(t, "900")))
}

func TestPartNumberMatcher_ExplicitlyExcludedByCatalog(t *testing.T) {
	notCovered := false
	lookup := &stubPartLookup{results: map[string]*PartLookupResult{
		"PN2": {Found: true, System: "engine", Component: "air filter", LookupSource: "exact", PartNumber: "PN2", Covered: &notCovered, Note: "wear item"},
	}}
	m := newTestPartMatcher(lookup, ComponentConfig{})

	items := []LineItem{{ItemCode: "PN2", Description: "air filter", ItemType: "parts", TotalPrice: moneyOf(t, "15")}}
	matched, _ := m.Match(items, []string{"engine"}, map[string][]string{"engine": {"air filter"}}, nil)
	require.Len(t, matched, 1)
	assert.Equal(t, StatusNotCovered, matched[0].CoverageStatus)
	assert.Equal(t, "component_excluded", matched[0].ExclusionReason)
}

func TestPartNumberMatcher_CrossCategoryMatch(t *testing.T) {
	lookup := &stubPartLookup{results: map[string]*PartLookupResult{
		"PN3": {Found: true, System: "engine", Component: "turbocharger", LookupSource: "exact", PartNumber: "PN3"},
	}}
	// A synonym mapping for the component's own name is required so the
	// primary-category check resolves to a confirmed "no" (not "unknown"),
	// which is what sends the matcher looking across other categories.
	cc := ComponentConfig{ComponentSynonyms: map[string][]string{"turbocharger": {"turbo"}}}
	m := newTestPartMatcher(lookup, cc)
	covered := map[string][]string{
		"engine":       {"cylinder head"},
		"transmission": {"turbocharger"},
	}

	items := []LineItem{{ItemCode: "PN3", Description: "turbocharger", ItemType: "parts", TotalPrice: moneyOf(t, "900")}}
	matched, unmatched := m.Match(items, []string{"engine", "transmission"}, covered, nil)
	require.Len(t, matched, 1)
	assert.Empty(t, unmatched)
	assert.Equal(t, StatusCovered, matched[0].CoverageStatus)
	assert.Equal(t, "transmission", matched[0].CoverageCategory)
}

func TestPartNumberMatcher_CategoryNotCovered_NonAncillaryExcludes(t *testing.T) {
	lookup := &stubPartLookup{results: map[string]*PartLookupResult{
		"PN4": {Found: true, System: "bodywork", Component: "bumper", LookupSource: "exact", PartNumber: "PN4"},
	}}
	m := newTestPartMatcher(lookup, ComponentConfig{})

	items := []LineItem{{ItemCode: "PN4", Description: "bumper", ItemType: "parts", TotalPrice: moneyOf(t, "200")}}
	matched, unmatched := m.Match(items, []string{"engine"}, map[string][]string{"engine": {"turbocharger"}}, nil)
	require.Len(t, matched, 1)
	assert.Empty(t, unmatched)
	assert.Equal(t, StatusNotCovered, matched[0].CoverageStatus)
	assert.Equal(t, "category_not_covered", matched[0].ExclusionReason)
}

func TestPartNumberMatcher_CategoryNotCovered_AncillaryDefers(t *testing.T) {
	lookup := &stubPartLookup{results: map[string]*PartLookupResult{
		"PN5": {Found: true, System: "labor", Component: "install", LookupSource: "exact", PartNumber: "PN5"},
	}}
	m := newTestPartMatcher(lookup, ComponentConfig{})

	items := []LineItem{{ItemCode: "PN5", Description: "install labor", ItemType: "labor", TotalPrice: moneyOf(t, "100")}}
	matched, unmatched := m.Match(items, []string{"engine"}, map[string][]string{"engine": {"turbocharger"}}, nil)
	assert.Empty(t, matched)
	require.Len(t, unmatched, 1, "ancillary category defers to LLM instead of a flat exclusion")
}

func TestPartNumberMatcher_GasketSealIndicatorDeferred(t *testing.T) {
	lookup := &stubPartLookup{results: map[string]*PartLookupResult{
		"PN6": {Found: true, System: "engine", Component: "head gasket", LookupSource: "keyword_match", PartNumber: "PN6"},
	}}
	cc := ComponentConfig{GasketSealIndicators: map[string]struct{}{"GASKET": {}}}
	m := newTestPartMatcher(lookup, cc)

	items := []LineItem{{ItemCode: "PN6", Description: "head gasket replacement", ItemType: "parts", TotalPrice: moneyOf(t, "50")}}
	matched, unmatched := m.Match(items, []string{"engine"}, map[string][]string{"engine": {"head gasket"}}, nil)
	assert.Empty(t, matched)
	require.Len(t, unmatched, 1)
}

func TestPartNumberMatcher_NonCoveredLaborDemotesFromCovered(t *testing.T) {
	lookup := &stubPartLookup{results: map[string]*PartLookupResult{
		"PN7": {Found: true, System: "engine", Component: "towing", LookupSource: "exact", PartNumber: "PN7"},
	}}
	m := newTestPartMatcher(lookup, ComponentConfig{})

	items := []LineItem{{ItemCode: "PN7", Description: "towing service", ItemType: "labor", TotalPrice: moneyOf(t, "80")}}
	matched, _ := m.Match(items, []string{"engine"}, map[string][]string{"engine": {"towing"}}, nil)
	require.Len(t, matched, 1)
	assert.Equal(t, StatusNotCovered, matched[0].CoverageStatus)
	assert.Equal(t, "non_covered_labor", matched[0].ExclusionReason)
}
