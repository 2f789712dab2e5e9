package coverage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterminePrimaryRepair_HighestValueCoveredPart(t *testing.T) {
	items := []LineItemCoverage{
		{Description: "Turbocharger", ItemType: "parts", TotalPrice: moneyOf(t, "900"),
			CoverageStatus: StatusCovered, CoverageCategory: "engine", MatchedComponent: "turbocharger"},
		{Description: "Brake pad", ItemType: "parts", TotalPrice: moneyOf(t, "80"),
			CoverageStatus: StatusCovered, CoverageCategory: "brakes", MatchedComponent: "brake pad"},
	}

	result := DeterminePrimaryRepair(context.Background(), items, nil, nil, false, nil, "")
	assert.Equal(t, "turbocharger", result.Component)
	assert.Equal(t, DeterminationDeterministic, result.DeterminationMethod)
	require.NotNil(t, result.IsCovered)
	assert.True(t, *result.IsCovered)
}

func TestDeterminePrimaryRepair_HighestValueCoveredAnyType(t *testing.T) {
	items := []LineItemCoverage{
		{Description: "Labor", ItemType: "labor", TotalPrice: moneyOf(t, "300"),
			CoverageStatus: StatusCovered, CoverageCategory: "engine", MatchedComponent: "turbocharger"},
	}

	result := DeterminePrimaryRepair(context.Background(), items, nil, nil, false, nil, "")
	assert.Equal(t, "turbocharger", result.Component)
}

func TestDeterminePrimaryRepair_RepairContextFallback(t *testing.T) {
	items := []LineItemCoverage{
		{Description: "Unrelated part", ItemType: "parts", TotalPrice: moneyOf(t, "50"), CoverageStatus: StatusNotCovered},
	}
	rc := &RepairContext{PrimaryComponent: "gearbox", PrimaryCategory: "transmission", IsCovered: TristateYes}

	result := DeterminePrimaryRepair(context.Background(), items, nil, rc, false, nil, "")
	assert.Equal(t, DeterminationRepairContext, result.DeterminationMethod)
	require.NotNil(t, result.IsCovered)
	assert.False(t, *result.IsCovered, "sanity override: no line item ended up covered")
}

func TestDeterminePrimaryRepair_CoveredPartWinsOverRepairContext(t *testing.T) {
	items := []LineItemCoverage{
		{Description: "Gearbox seal", ItemType: "parts", TotalPrice: moneyOf(t, "10"),
			CoverageStatus: StatusCovered, MatchedComponent: "gearbox seal"},
	}
	rc := &RepairContext{PrimaryComponent: "gearbox", PrimaryCategory: "transmission", IsCovered: TristateYes}

	result := DeterminePrimaryRepair(context.Background(), items, nil, rc, false, nil, "")
	assert.Equal(t, DeterminationDeterministic, result.DeterminationMethod, "tier 1a wins before repair context is consulted")
	assert.Equal(t, "gearbox seal", result.Component)
}

func TestDeterminePrimaryRepair_UncoveredAnchor(t *testing.T) {
	items := []LineItemCoverage{
		{Description: "Unrelated part", ItemType: "parts", TotalPrice: moneyOf(t, "50"),
			CoverageStatus: StatusNotCovered, MatchedComponent: "alternator"},
	}

	result := DeterminePrimaryRepair(context.Background(), items, nil, nil, false, nil, "")
	assert.Equal(t, "alternator", result.Component)
	require.NotNil(t, result.IsCovered)
	assert.False(t, *result.IsCovered)
}

func TestDeterminePrimaryRepair_None(t *testing.T) {
	result := DeterminePrimaryRepair(context.Background(), nil, nil, nil, false, nil, "")
	assert.Equal(t, DeterminationNone, result.DeterminationMethod)
}

func TestIsInExcludedList(t *testing.T) {
	excluded := map[string][]string{"engine": {"wear and tear gasket"}}
	assert.True(t, IsInExcludedList(LineItemCoverage{Description: "Replace wear and tear gasket"}, excluded))
	assert.False(t, IsInExcludedList(LineItemCoverage{Description: "Replace turbocharger"}, excluded))
	assert.False(t, IsInExcludedList(LineItemCoverage{Description: "anything"}, nil))
}

func TestPromoteItemsForCoveredPrimaryRepair_ZeroPayoutRescue(t *testing.T) {
	covered := true
	primary := PrimaryRepairResult{Component: "turbocharger", Category: "engine", IsCovered: &covered}
	items := []LineItemCoverage{
		{Description: "Turbocharger", ItemType: "parts", TotalPrice: moneyOf(t, "900"),
			CoverageStatus: StatusNotCovered, CoverageCategory: "engine", MatchMethod: MethodLLM},
		{Description: "Unrelated", ItemType: "parts", TotalPrice: moneyOf(t, "10"),
			CoverageStatus: StatusNotCovered, CoverageCategory: "brakes", MatchMethod: MethodLLM},
	}

	out := PromoteItemsForCoveredPrimaryRepair(context.Background(), items, primary, nil, nil)
	require.Len(t, out, 2)
	assert.Equal(t, StatusCovered, out[0].CoverageStatus)
	assert.Equal(t, StatusNotCovered, out[1].CoverageStatus, "different category is not rescued")
}

func TestPromoteItemsForCoveredPrimaryRepair_ZeroPayoutRescue_SkipsExcluded(t *testing.T) {
	covered := true
	primary := PrimaryRepairResult{Component: "turbocharger", Category: "engine", IsCovered: &covered}
	items := []LineItemCoverage{
		{Description: "Turbocharger", ItemType: "parts", TotalPrice: moneyOf(t, "900"),
			CoverageStatus: StatusNotCovered, CoverageCategory: "engine", MatchMethod: MethodLLM, ExclusionReason: "excluded_by_policy"},
	}

	out := PromoteItemsForCoveredPrimaryRepair(context.Background(), items, primary, nil, nil)
	assert.Equal(t, StatusNotCovered, out[0].CoverageStatus)
}

func TestPromoteItemsForCoveredPrimaryRepair_NotCoveredPrimary(t *testing.T) {
	notCovered := false
	primary := PrimaryRepairResult{Component: "turbocharger", Category: "engine", IsCovered: &notCovered}
	items := []LineItemCoverage{
		{Description: "Turbocharger", ItemType: "parts", TotalPrice: moneyOf(t, "900"),
			CoverageStatus: StatusNotCovered, CoverageCategory: "engine", MatchMethod: MethodLLM},
	}

	out := PromoteItemsForCoveredPrimaryRepair(context.Background(), items, primary, nil, nil)
	assert.Equal(t, StatusNotCovered, out[0].CoverageStatus)
}

func TestPromoteItemsForCoveredPrimaryRepair_LaborRelevanceMode(t *testing.T) {
	covered := true
	primary := PrimaryRepairResult{Component: "turbocharger", Category: "engine", IsCovered: &covered}
	items := []LineItemCoverage{
		{Description: "Turbocharger", ItemType: "parts", TotalPrice: moneyOf(t, "900"), CoverageStatus: StatusCovered, CoverageCategory: "engine"},
		{Description: "R&I labor", ItemType: "labor", TotalPrice: moneyOf(t, "150"),
			CoverageStatus: StatusNotCovered, CoverageCategory: "engine", MatchMethod: MethodLLM},
	}
	client := &fakeLLMClient{responses: []string{`{"relevant": true}`}}
	matcher := NewLLMMatcher(client, fakePromptProvider{}, DefaultLLMMatcherConfig())

	out := PromoteItemsForCoveredPrimaryRepair(context.Background(), items, primary, matcher, nil)
	require.Len(t, out, 2)
	assert.Equal(t, StatusCovered, out[1].CoverageStatus)
}

func TestPromoteItemsForCoveredPrimaryRepair_LaborRelevanceMode_NotRelevant(t *testing.T) {
	covered := true
	primary := PrimaryRepairResult{Component: "turbocharger", Category: "engine", IsCovered: &covered}
	items := []LineItemCoverage{
		{Description: "Turbocharger", ItemType: "parts", TotalPrice: moneyOf(t, "900"), CoverageStatus: StatusCovered, CoverageCategory: "engine"},
		{Description: "Unrelated labor", ItemType: "labor", TotalPrice: moneyOf(t, "150"),
			CoverageStatus: StatusNotCovered, CoverageCategory: "engine", MatchMethod: MethodLLM},
	}
	client := &fakeLLMClient{responses: []string{`{"relevant": false}`}}
	matcher := NewLLMMatcher(client, fakePromptProvider{}, DefaultLLMMatcherConfig())

	out := PromoteItemsForCoveredPrimaryRepair(context.Background(), items, primary, matcher, nil)
	assert.Equal(t, StatusNotCovered, out[1].CoverageStatus)
}
