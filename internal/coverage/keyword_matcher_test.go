package coverage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeywordConfig() KeywordConfig {
	return KeywordConfig{
		Mappings: map[string]KeywordMapping{
			"turbo":        {Category: "engine", Confidence: 0.60},
			"turbocharger": {Category: "engine", Confidence: 0.90},
			"brake":        {Category: "brakes", Confidence: 0.80},
		},
	}
}

func TestKeywordMatcher_LongestMatchWins(t *testing.T) {
	m := NewKeywordMatcher(testKeywordConfig())
	items := []LineItem{
		{Description: "Replace turbocharger assembly", ItemType: "parts", TotalPrice: moneyOf(t, "500")},
	}

	matched, remaining := m.BatchMatch(items, []string{"engine"}, 0.5)
	require.Len(t, matched, 1)
	assert.Empty(t, remaining)
	assert.Equal(t, "engine", matched[0].CoverageCategory)
	assert.True(t, matched[0].MatchConfidence.Equal(moneyOf(t, "0.9")))
}

func TestKeywordMatcher_CategoryNotCovered(t *testing.T) {
	m := NewKeywordMatcher(testKeywordConfig())
	items := []LineItem{
		{Description: "Replace turbocharger assembly", ItemType: "parts", TotalPrice: moneyOf(t, "500")},
	}

	matched, remaining := m.BatchMatch(items, []string{"brakes"}, 0.5)
	assert.Empty(t, matched)
	require.Len(t, remaining, 1)
}

func TestKeywordMatcher_BelowMinConfidence(t *testing.T) {
	m := NewKeywordMatcher(testKeywordConfig())
	items := []LineItem{
		{Description: "Brake inspection", ItemType: "labor", TotalPrice: moneyOf(t, "50")},
	}

	matched, remaining := m.BatchMatch(items, []string{"brakes"}, 0.85)
	assert.Empty(t, matched)
	require.Len(t, remaining, 1)
}

func TestKeywordMatcher_NoMatch(t *testing.T) {
	m := NewKeywordMatcher(testKeywordConfig())
	items := []LineItem{
		{Description: "Replace windshield wiper", ItemType: "parts", TotalPrice: moneyOf(t, "20")},
	}

	matched, remaining := m.BatchMatch(items, []string{"engine", "brakes"}, 0.5)
	assert.Empty(t, matched)
	require.Len(t, remaining, 1)
}
