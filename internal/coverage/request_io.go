package coverage

import (
	"encoding/json"
	"io"

	"github.com/shopspring/decimal"
)

// claimFile is the on-disk JSON shape accepted by cmd/analyzecli: a
// thin, serializable mirror of AnalyzeRequest's fields that a claim
// screener would actually have lying around as JSON.
type claimFile struct {
	ClaimID            string              `json:"claim_id"`
	ClaimRunID         string              `json:"claim_run_id,omitempty"`
	LineItems          []LineItem          `json:"line_items"`
	CoveredComponents  map[string][]string `json:"covered_components,omitempty"`
	ExcludedComponents map[string][]string `json:"excluded_components,omitempty"`
	VehicleKM          *int                `json:"vehicle_km,omitempty"`
	CoverageScale      []CoverageScaleTier `json:"coverage_scale,omitempty"`
	VehicleAgeYears    *float64            `json:"vehicle_age_years,omitempty"`
	AgeThresholdYears  *int                `json:"age_threshold_years,omitempty"`
	RepairDescription  string              `json:"repair_description,omitempty"`
}

// DecodeAnalyzeRequest reads a claimFile document from r and converts
// it into an AnalyzeRequest.
func DecodeAnalyzeRequest(r io.Reader) (AnalyzeRequest, error) {
	var doc claimFile
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return AnalyzeRequest{}, NewInternalError("decoding claim file", err)
	}

	req := AnalyzeRequest{
		ClaimID:            doc.ClaimID,
		ClaimRunID:         doc.ClaimRunID,
		LineItems:          doc.LineItems,
		CoveredComponents:  doc.CoveredComponents,
		ExcludedComponents: doc.ExcludedComponents,
		VehicleKM:          doc.VehicleKM,
		CoverageScale:      doc.CoverageScale,
		AgeThresholdYears:  doc.AgeThresholdYears,
		RepairDescription:  doc.RepairDescription,
	}
	if doc.VehicleAgeYears != nil {
		age := decimal.NewFromFloat(*doc.VehicleAgeYears)
		req.VehicleAgeYears = &age
	}
	return req, nil
}
