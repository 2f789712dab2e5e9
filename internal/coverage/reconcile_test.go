package coverage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyLaborFollowsParts_PartNumberStrategy(t *testing.T) {
	items := []LineItemCoverage{
		{ItemCode: "PN1234", Description: "Turbocharger", ItemType: "parts", TotalPrice: moneyOf(t, "900"),
			CoverageStatus: StatusCovered, CoverageCategory: "engine", MatchedComponent: "turbocharger"},
		{Description: "Labor to install part PN1234", ItemType: "labor", TotalPrice: moneyOf(t, "150"),
			CoverageStatus: StatusReviewNeeded},
	}

	out := ApplyLaborFollowsParts(items, ComponentConfig{}, &RepairContext{})
	require.Len(t, out, 2)
	assert.Equal(t, StatusCovered, out[1].CoverageStatus)
	assert.True(t, out[1].CoveredAmount.Equal(moneyOf(t, "150")))
}

func TestApplyLaborFollowsParts_SimpleInvoiceRule(t *testing.T) {
	items := []LineItemCoverage{
		{Description: "Turbocharger", ItemType: "parts", TotalPrice: moneyOf(t, "900"),
			CoverageStatus: StatusCovered, CoverageCategory: "engine", MatchedComponent: "turbocharger"},
		{Description: "Arbeit", ItemType: "labor", TotalPrice: moneyOf(t, "300"), CoverageStatus: StatusReviewNeeded},
	}

	out := ApplyLaborFollowsParts(items, ComponentConfig{}, &RepairContext{})
	require.Len(t, out, 2)
	assert.Equal(t, StatusCovered, out[1].CoverageStatus)
}

func TestApplyLaborFollowsParts_SimpleInvoiceRule_ProportionalityGuard(t *testing.T) {
	items := []LineItemCoverage{
		{Description: "Turbocharger", ItemType: "parts", TotalPrice: moneyOf(t, "100"),
			CoverageStatus: StatusCovered, CoverageCategory: "engine", MatchedComponent: "turbocharger"},
		{Description: "Arbeit", ItemType: "labor", TotalPrice: moneyOf(t, "500"), CoverageStatus: StatusReviewNeeded},
	}

	out := ApplyLaborFollowsParts(items, ComponentConfig{}, &RepairContext{})
	require.Len(t, out, 2)
	assert.NotEqual(t, StatusCovered, out[1].CoverageStatus, "labor > 2x parts value should be blocked")
}

func TestApplyLaborFollowsParts_RepairContextKeyword(t *testing.T) {
	cc := ComponentConfig{
		RepairContextKeywords: map[string]RepairKeywordEntry{
			"remove and install turbo": {Component: "turbocharger", Category: "engine"},
		},
	}
	items := []LineItemCoverage{
		{Description: "Turbocharger", ItemType: "parts", TotalPrice: moneyOf(t, "900"),
			CoverageStatus: StatusCovered, CoverageCategory: "engine", MatchedComponent: "turbocharger"},
		{Description: "Remove and install turbo", ItemCode: "LBR1", ItemType: "labor", TotalPrice: moneyOf(t, "200"),
			CoverageStatus: StatusReviewNeeded},
	}

	out := ApplyLaborFollowsParts(items, cc, &RepairContext{})
	require.Len(t, out, 2)
	assert.Equal(t, StatusCovered, out[1].CoverageStatus)
}

func TestApplyLaborFollowsParts_RepairContextKeyword_ExcludedPartGuard(t *testing.T) {
	cc := ComponentConfig{
		RepairContextKeywords: map[string]RepairKeywordEntry{
			"remove and install turbo": {Component: "turbocharger", Category: "engine"},
		},
	}
	items := []LineItemCoverage{
		{Description: "Turbocharger", ItemType: "parts", TotalPrice: moneyOf(t, "900"),
			CoverageStatus: StatusCovered, CoverageCategory: "engine", MatchedComponent: "turbocharger"},
		{ItemCode: "EXCL99", Description: "Some excluded gasket", ItemType: "parts", TotalPrice: moneyOf(t, "40"),
			CoverageStatus: StatusNotCovered, MatchedComponent: "turbocharger"},
		{Description: "Remove and install turbo", ItemCode: "EXCL99", ItemType: "labor", TotalPrice: moneyOf(t, "200"),
			CoverageStatus: StatusReviewNeeded},
	}

	out := ApplyLaborFollowsParts(items, cc, &RepairContext{})
	require.Len(t, out, 3)
	assert.NotEqual(t, StatusCovered, out[2].CoverageStatus, "item code matches a NOT_COVERED part, guard should block")
}

func TestPromoteAncillaryParts(t *testing.T) {
	cc := ComponentConfig{AncillaryKeywords: map[string]struct{}{"gasket": {}}}
	rc := &RepairContext{IsCovered: TristateYes, PrimaryComponent: "turbocharger", PrimaryCategory: "engine"}
	items := []LineItemCoverage{
		{Description: "Turbocharger", ItemType: "parts", TotalPrice: moneyOf(t, "900"), CoverageStatus: StatusCovered},
		{Description: "Turbo gasket set", ItemType: "parts", TotalPrice: moneyOf(t, "15"), CoverageStatus: StatusReviewNeeded},
	}

	out := PromoteAncillaryParts(items, cc, rc)
	require.Len(t, out, 2)
	assert.Equal(t, StatusCovered, out[1].CoverageStatus)
	assert.Equal(t, "turbocharger", out[1].MatchedComponent)
}

func TestPromoteAncillaryParts_NoRepairContext(t *testing.T) {
	cc := ComponentConfig{AncillaryKeywords: map[string]struct{}{"gasket": {}}}
	items := []LineItemCoverage{
		{Description: "Turbo gasket set", ItemType: "parts", TotalPrice: moneyOf(t, "15"), CoverageStatus: StatusReviewNeeded},
	}

	out := PromoteAncillaryParts(items, cc, &RepairContext{IsCovered: TristateNo})
	assert.Equal(t, StatusReviewNeeded, out[0].CoverageStatus)
}

func TestPromotePartsForCoveredRepair(t *testing.T) {
	rc := &RepairContext{IsCovered: TristateYes, PrimaryComponent: "turbocharger", PrimaryCategory: "engine"}
	items := []LineItemCoverage{
		{Description: "Labor", ItemType: "labor", TotalPrice: moneyOf(t, "200"), CoverageStatus: StatusCovered, CoverageCategory: "engine"},
		{Description: "Turbocharger", ItemType: "parts", TotalPrice: moneyOf(t, "900"),
			CoverageStatus: StatusReviewNeeded, CoverageCategory: "engine", MatchMethod: MethodLLM},
	}

	out := PromotePartsForCoveredRepair(items, rc)
	require.Len(t, out, 2)
	assert.Equal(t, StatusCovered, out[1].CoverageStatus)
}

func TestPromotePartsForCoveredRepair_IgnoresNonLLM(t *testing.T) {
	rc := &RepairContext{IsCovered: TristateYes, PrimaryComponent: "turbocharger", PrimaryCategory: "engine"}
	items := []LineItemCoverage{
		{Description: "Labor", ItemType: "labor", TotalPrice: moneyOf(t, "200"), CoverageStatus: StatusCovered, CoverageCategory: "engine"},
		{Description: "Turbocharger", ItemType: "parts", TotalPrice: moneyOf(t, "900"),
			CoverageStatus: StatusReviewNeeded, CoverageCategory: "engine", MatchMethod: MethodRule},
	}

	out := PromotePartsForCoveredRepair(items, rc)
	assert.NotEqual(t, StatusCovered, out[1].CoverageStatus)
}

func TestDemoteLaborWithoutCoveredParts(t *testing.T) {
	items := []LineItemCoverage{
		{Description: "Labor", ItemType: "labor", TotalPrice: moneyOf(t, "200"), CoverageStatus: StatusCovered},
		{Description: "Some unrelated part", ItemType: "parts", TotalPrice: moneyOf(t, "50"), CoverageStatus: StatusNotCovered},
	}

	out := DemoteLaborWithoutCoveredParts(items)
	require.Len(t, out, 2)
	assert.Equal(t, StatusNotCovered, out[0].CoverageStatus)
	assert.Equal(t, "demoted_no_anchor", out[0].ExclusionReason)
	assert.True(t, out[0].CoveredAmount.IsZero())
}

func TestDemoteLaborWithoutCoveredParts_NoOpWhenPartCovered(t *testing.T) {
	items := []LineItemCoverage{
		{Description: "Labor", ItemType: "labor", TotalPrice: moneyOf(t, "200"), CoverageStatus: StatusCovered},
		{Description: "Turbocharger", ItemType: "parts", TotalPrice: moneyOf(t, "900"), CoverageStatus: StatusCovered},
	}

	out := DemoteLaborWithoutCoveredParts(items)
	assert.Equal(t, StatusCovered, out[0].CoverageStatus)
}

func TestFlagNominalPriceLabor(t *testing.T) {
	items := []LineItemCoverage{
		{ItemCode: "OP100", Description: "R&I turbocharger", ItemType: "labor",
			TotalPrice: moneyOf(t, "5.00"), CoverageStatus: StatusCovered},
		{ItemCode: "OP200", Description: "Full labor hours", ItemType: "labor",
			TotalPrice: moneyOf(t, "450.00"), CoverageStatus: StatusCovered},
	}

	out := FlagNominalPriceLabor(items, moneyOf(t, "10"))
	require.Len(t, out, 2)
	assert.Equal(t, StatusReviewNeeded, out[0].CoverageStatus)
	assert.Equal(t, "nominal_price_labor", out[0].ExclusionReason)
	assert.Equal(t, StatusCovered, out[1].CoverageStatus)
}

func TestFlagNominalPriceLabor_SkipsWithoutItemCode(t *testing.T) {
	items := []LineItemCoverage{
		{Description: "R&I turbocharger", ItemType: "labor", TotalPrice: moneyOf(t, "5.00"), CoverageStatus: StatusCovered},
	}

	out := FlagNominalPriceLabor(items, moneyOf(t, "10"))
	assert.Equal(t, StatusCovered, out[0].CoverageStatus, "no operation code means no nominal-price signal")
}

func TestIsGenericLaborDescription(t *testing.T) {
	assert.True(t, IsGenericLaborDescription("Arbeit"))
	assert.True(t, IsGenericLaborDescription("Main d'oeuvre:"))
	assert.False(t, IsGenericLaborDescription("Remove and install turbocharger"))
}
