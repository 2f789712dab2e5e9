package coverage

import (
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// DetermineCoveragePercent resolves the mileage-based coverage rate
// and its age-adjusted effective rate from a "from X km onwards"
// coverage scale.
//
// Below the first tier's threshold, coverage is full (100%) — the
// scale only ever describes reductions, never the baseline. At or
// above a threshold, the highest applicable tier's rate applies. If
// the matching tier carries an age_coverage_percent and the vehicle
// is at or past age_threshold_years, the age rate replaces the
// mileage rate in the effective return value; the mileage-based
// return value is left untouched for audit purposes.
func DetermineCoveragePercent(vehicleKM *int, scale []CoverageScaleTier, vehicleAgeYears *decimal.Decimal, ageThresholdYears *int) (mileagePercent, effectivePercent *decimal.Decimal) {
	if vehicleKM == nil || len(scale) == 0 {
		return nil, nil
	}

	sorted := make([]CoverageScaleTier, len(scale))
	copy(sorted, scale)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].KMThreshold < sorted[j].KMThreshold })

	var mileage decimal.Decimal
	var tierAge *decimal.Decimal

	if *vehicleKM < sorted[0].KMThreshold {
		mileage = decimal.NewFromInt(100)
		tierAge = nil
	} else {
		applicable := sorted[0]
		for _, tier := range sorted {
			if *vehicleKM >= tier.KMThreshold {
				applicable = tier
			} else {
				break
			}
		}
		mileage = applicable.CoveragePercent
		tierAge = applicable.AgeCoveragePercent
	}

	effective := mileage
	if vehicleAgeYears != nil && ageThresholdYears != nil && tierAge != nil {
		threshold := decimal.NewFromInt(int64(*ageThresholdYears))
		if vehicleAgeYears.GreaterThanOrEqual(threshold) {
			effective = *tierAge
			log.Info().Str("vehicle_age", vehicleAgeYears.String()).Int("age_threshold", *ageThresholdYears).
				Str("tier_age_percent", tierAge.String()).Str("mileage_percent", mileage.String()).
				Msg("age-based coverage reduction applied")
		}
	}

	return &mileage, &effective
}

// CalculateSummary aggregates claim-level totals from the final
// adjudicated items, applying coveragePercent to each COVERED item's
// price. Payout math beyond this (VAT, deductible) belongs to the
// claim screener downstream, not this package.
//
// When coveragePercent is nil, covered items are still tracked in the
// gross totals for audit but contribute 0 to covered amounts — an
// unknown rate must never silently imply 100% payout.
func CalculateSummary(items []LineItemCoverage, coveragePercent *decimal.Decimal) (CoverageSummary, []LineItemCoverage) {
	out := make([]LineItemCoverage, len(items))
	copy(out, items)

	summary := CoverageSummary{}

	for i := range out {
		item := &out[i]
		summary.TotalClaimed = summary.TotalClaimed.Add(item.TotalPrice)

		switch item.CoverageStatus {
		case StatusCovered:
			summary.TotalCoveredGross = summary.TotalCoveredGross.Add(item.TotalPrice)
			switch toLower(item.ItemType) {
			case "parts":
				summary.PartsCoveredGross = summary.PartsCoveredGross.Add(item.TotalPrice)
			case "labor":
				summary.LaborCoveredGross = summary.LaborCoveredGross.Add(item.TotalPrice)
			}

			var coveredAmount decimal.Decimal
			if coveragePercent != nil {
				coveredAmount = item.TotalPrice.Mul(*coveragePercent).Div(decimal.NewFromInt(100))
			} else {
				log.Warn().Str("item", item.Description).Str("price", item.TotalPrice.String()).
					Msg("coverage_percent is unknown - item tracked in gross but covered_amount set to 0")
				coveredAmount = decimal.Zero
			}
			item.setAmounts(coveredAmount)
			summary.TotalCoveredBeforeExcess = summary.TotalCoveredBeforeExcess.Add(coveredAmount)
			summary.ItemsCovered++

		case StatusNotCovered:
			item.setAmounts(decimal.Zero)
			summary.TotalNotCovered = summary.TotalNotCovered.Add(item.TotalPrice)
			summary.ItemsNotCovered++

		default: // REVIEW_NEEDED: conservatively treated as not covered until reviewed.
			item.setAmounts(decimal.Zero)
			summary.TotalNotCovered = summary.TotalNotCovered.Add(item.TotalPrice)
			summary.ItemsReviewNeeded++
		}
	}

	summary.CoveragePercent = coveragePercent
	summary.CoveragePercentMissing = coveragePercent == nil

	return summary, out
}
