package coverage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testComponentConfig() ComponentConfig {
	return ComponentConfig{
		ComponentSynonyms: map[string][]string{
			"turbocharger": {"turbo", "turbolader"},
		},
		CategoryAliases: map[string][]string{
			"engine": {"motor", "powertrain"},
		},
		DistributionCatchAllComponents: map[string]struct{}{
			"wiring harness": {},
		},
		DistributionCatchAllKeywords: []string{"elektrik", "wiring"},
		AdditionalPolicyParts: map[string][]string{
			"engine": {"oil cooler"},
		},
	}
}

func TestPolicyListChecker_IsSystemCovered(t *testing.T) {
	c := NewPolicyListChecker(testComponentConfig())

	assert.True(t, c.IsSystemCovered("Engine", []string{"engine", "transmission"}))
	assert.True(t, c.IsSystemCovered("engine", []string{"motor"}), "category alias should resolve")
	assert.False(t, c.IsSystemCovered("brakes", []string{"engine", "transmission"}))
	assert.False(t, c.IsSystemCovered("", []string{"engine"}))
}

func TestPolicyListChecker_IsComponentInPolicyList_DirectMatch(t *testing.T) {
	c := NewPolicyListChecker(testComponentConfig())
	covered := map[string][]string{"engine": {"turbocharger", "cylinder head"}}

	verdict, reason := c.IsComponentInPolicyList("turbocharger", "engine", covered, "", false)
	assert.Equal(t, TristateYes, verdict)
	assert.NotEmpty(t, reason)
}

func TestPolicyListChecker_IsComponentInPolicyList_SynonymMatch(t *testing.T) {
	c := NewPolicyListChecker(testComponentConfig())
	covered := map[string][]string{"engine": {"turbocharger"}}

	verdict, _ := c.IsComponentInPolicyList("turbo", "engine", covered, "", false)
	assert.Equal(t, TristateYes, verdict)
}

func TestPolicyListChecker_IsComponentInPolicyList_NoCategoryList(t *testing.T) {
	c := NewPolicyListChecker(testComponentConfig())
	covered := map[string][]string{"transmission": {"clutch"}}

	verdict, _ := c.IsComponentInPolicyList("turbocharger", "engine", covered, "", false)
	assert.Equal(t, TristateUnknown, verdict)
}

func TestPolicyListChecker_IsComponentInPolicyList_UnmappedComponent(t *testing.T) {
	c := NewPolicyListChecker(testComponentConfig())
	covered := map[string][]string{"engine": {"cylinder head"}}

	verdictLenient, _ := c.IsComponentInPolicyList("alternator bracket", "engine", covered, "", false)
	assert.Equal(t, TristateUnknown, verdictLenient, "lenient mode defers to LLM when no synonym mapping exists")

	verdictStrict, _ := c.IsComponentInPolicyList("alternator bracket", "engine", covered, "", true)
	assert.Equal(t, TristateNo, verdictStrict, "strict mode has no safe default")
}

func TestPolicyListChecker_IsComponentInPolicyList_NotFound(t *testing.T) {
	c := NewPolicyListChecker(testComponentConfig())
	// "turbocharger" has a synonym mapping, so an absent match is a confirmed no, not unknown.
	covered := map[string][]string{"engine": {"cylinder head"}}

	verdict, _ := c.IsComponentInPolicyList("turbocharger", "engine", covered, "", false)
	assert.Equal(t, TristateNo, verdict)
}

func TestPolicyListChecker_IsComponentInPolicyList_DistributionCatchAll(t *testing.T) {
	c := NewPolicyListChecker(testComponentConfig())
	covered := map[string][]string{"engine": {"elektrik system"}}

	verdict, _ := c.IsComponentInPolicyList("wiring harness", "engine", covered, "", false)
	assert.Equal(t, TristateYes, verdict)
}

func TestPolicyListChecker_IsComponentInPolicyList_ShortStringGuard(t *testing.T) {
	c := NewPolicyListChecker(ComponentConfig{})
	covered := map[string][]string{"engine": {"abgasrueckfuehrung"}}

	// "asr" must not substring-match "abgasrueckfuehrung" despite both containing "asr".
	verdict, _ := c.IsComponentInPolicyList("asr", "engine", covered, "", false)
	assert.NotEqual(t, TristateYes, verdict)
}

func TestPolicyListChecker_IsComponentInPolicyList_NoSystem(t *testing.T) {
	c := NewPolicyListChecker(testComponentConfig())
	verdict, _ := c.IsComponentInPolicyList("turbocharger", "", map[string][]string{}, "", false)
	assert.Equal(t, TristateYes, verdict, "no system to verify against defaults to yes")
}

func TestPolicyListChecker_IsComponentExcludedByPolicy(t *testing.T) {
	c := NewPolicyListChecker(testComponentConfig())
	excluded := map[string][]string{"engine": {"wear and tear gasket"}}

	assert.True(t, c.IsComponentExcludedByPolicy("gasket", "engine", "", excluded))
	assert.False(t, c.IsComponentExcludedByPolicy("turbocharger", "engine", "", excluded))
	assert.False(t, c.IsComponentExcludedByPolicy("gasket", "engine", "", map[string][]string{}))
}

func TestPolicyListChecker_FindComponentAcrossCategories(t *testing.T) {
	c := NewPolicyListChecker(testComponentConfig())
	covered := map[string][]string{
		"engine":       {"cylinder head"},
		"transmission": {"turbocharger"},
	}

	found, category, reason := c.FindComponentAcrossCategories("turbocharger", "engine", covered, nil, "")
	assert.True(t, found)
	assert.Equal(t, "transmission", category)
	assert.NotEmpty(t, reason)
}

func TestPolicyListChecker_FindComponentAcrossCategories_ExcludedElsewhere(t *testing.T) {
	c := NewPolicyListChecker(testComponentConfig())
	covered := map[string][]string{
		"engine":       {"cylinder head"},
		"transmission": {"turbocharger"},
	}
	excluded := map[string][]string{"transmission": {"turbocharger"}}

	found, _, _ := c.FindComponentAcrossCategories("turbocharger", "engine", covered, excluded, "")
	assert.False(t, found)
}

func TestExtractCoveredCategories(t *testing.T) {
	covered := map[string][]string{
		"engine":       {"turbocharger"},
		"transmission": {},
		"brakes":       {"pads"},
	}
	got := ExtractCoveredCategories(covered)
	assert.ElementsMatch(t, []string{"engine", "brakes"}, got)
}

func TestBuildExcludedPartsIndex(t *testing.T) {
	excluded := map[string][]string{
		"engine": {"PN-123", "oil filter"},
	}
	idx := BuildExcludedPartsIndex(excluded)
	_, ok1 := idx[cleanAlnumUpper("PN-123")]
	_, ok2 := idx[cleanAlnumUpper("oil filter")]
	assert.True(t, ok1)
	assert.True(t, ok2)
}
