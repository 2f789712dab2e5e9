package coverage

import (
	"time"

	"github.com/shopspring/decimal"
)

// CoverageStatus is the per-item adjudication verdict.
type CoverageStatus string

const (
	StatusCovered      CoverageStatus = "covered"
	StatusNotCovered   CoverageStatus = "not_covered"
	StatusReviewNeeded CoverageStatus = "review_needed"
)

// MatchMethod records which pipeline stage produced a verdict.
type MatchMethod string

const (
	MethodRule       MatchMethod = "rule"
	MethodPartNumber MatchMethod = "part_number"
	MethodKeyword    MatchMethod = "keyword"
	MethodLLM        MatchMethod = "llm"
)

// TraceAction is the kind of event a TraceStep records.
type TraceAction string

const (
	ActionMatched    TraceAction = "matched"
	ActionExcluded   TraceAction = "excluded"
	ActionDeferred   TraceAction = "deferred"
	ActionSkipped    TraceAction = "skipped"
	ActionValidated  TraceAction = "validated"
	ActionOverridden TraceAction = "overridden"
	ActionPromoted   TraceAction = "promoted"
	ActionDemoted    TraceAction = "demoted"
)

// TraceStep is one append-only entry in a line item's decision trace.
type TraceStep struct {
	Stage      string                 `json:"stage"`
	Action     TraceAction            `json:"action"`
	Message    string                 `json:"message"`
	Verdict    *CoverageStatus        `json:"verdict,omitempty"`
	Confidence *decimal.Decimal       `json:"confidence,omitempty"`
	Detail     map[string]interface{} `json:"detail,omitempty"`
}

// LineItem is one extracted invoice line (input).
type LineItem struct {
	ItemCode           string          `json:"item_code,omitempty" validate:"omitempty"`
	Description        string          `json:"description"`
	ItemType           string          `json:"item_type" validate:"required"`
	TotalPrice         decimal.Decimal `json:"total_price"`
	RepairDescription  string          `json:"repair_description,omitempty"`

	// repairContextDescription and lookup hints are internal scratch
	// fields threaded between stages; never part of the public input
	// contract but carried on the same struct to avoid a parallel
	// "working item" type proliferating through every stage signature.
	repairContextDescription string
	partLookupSystem          string
	partLookupComponent       string
	deferredTrace             []TraceStep
}

// IsLabor reports whether the item's type is one of the recognized
// labor-line spellings across languages.
func (li LineItem) IsLabor() bool {
	switch normalizeType(li.ItemType) {
	case "labor", "labour", "main d'oeuvre", "arbeit":
		return true
	default:
		return false
	}
}

// IsPart reports whether the item's type is a parts line.
func (li LineItem) IsPart() bool {
	switch normalizeType(li.ItemType) {
	case "parts", "part", "piece":
		return true
	default:
		return false
	}
}

func normalizeType(t string) string {
	return toLower(t)
}

// CoverageInputs records the policy/vehicle parameters that drove the
// payout math. Immutable once produced by Analyze.
type CoverageInputs struct {
	VehicleKM                 *int             `json:"vehicle_km,omitempty"`
	VehicleAgeYears           *decimal.Decimal `json:"vehicle_age_years,omitempty"`
	CoveragePercent           *decimal.Decimal `json:"coverage_percent,omitempty"`
	CoveragePercentEffective  *decimal.Decimal `json:"coverage_percent_effective,omitempty"`
	AgeThresholdYears         *int             `json:"age_threshold_years,omitempty"`
	ExcessPercent             *decimal.Decimal `json:"excess_percent,omitempty"`
	ExcessMinimum             *decimal.Decimal `json:"excess_minimum,omitempty"`
	CoveredCategories         []string         `json:"covered_categories"`
}

// CoverageScaleTier is one "from X km onwards" tier.
type CoverageScaleTier struct {
	KMThreshold         int              `json:"km_threshold" yaml:"km_threshold"`
	CoveragePercent     decimal.Decimal  `json:"coverage_percent" yaml:"coverage_percent"`
	AgeCoveragePercent  *decimal.Decimal `json:"age_coverage_percent,omitempty" yaml:"age_coverage_percent,omitempty"`
}

// LineItemCoverage is the per-item adjudication output.
type LineItemCoverage struct {
	ItemCode       string          `json:"item_code,omitempty"`
	Description    string          `json:"description"`
	ItemType       string          `json:"item_type"`
	TotalPrice     decimal.Decimal `json:"total_price"`

	CoverageStatus    CoverageStatus `json:"coverage_status"`
	CoverageCategory  string         `json:"coverage_category,omitempty"`
	MatchedComponent  string         `json:"matched_component,omitempty"`
	MatchMethod       MatchMethod    `json:"match_method"`
	MatchConfidence   decimal.Decimal `json:"match_confidence"`
	MatchReasoning    string         `json:"match_reasoning"`
	ExclusionReason   string         `json:"exclusion_reason,omitempty"`

	CoveredAmount    decimal.Decimal `json:"covered_amount"`
	NotCoveredAmount decimal.Decimal `json:"not_covered_amount"`

	PolicyListConfirmed Tristate    `json:"policy_list_confirmed"`
	DecisionTrace        []TraceStep `json:"decision_trace"`
}

// setAmounts enforces covered+not_covered == total_price by
// construction, never computing the two independently.
func (li *LineItemCoverage) setAmounts(covered decimal.Decimal) {
	li.CoveredAmount = covered
	li.NotCoveredAmount = li.TotalPrice.Sub(covered)
}

// RepairContext is the stage-0 output: the primary component implied
// by labor descriptions.
type RepairContext struct {
	PrimaryComponent       string
	PrimaryCategory        string
	IsCovered              Tristate
	SourceDescription      string
	AllDetectedComponents  []string
}

// PrimaryRepairDeterminationMethod names how PrimaryRepairResult was
// derived.
type PrimaryRepairDeterminationMethod string

const (
	DeterminationLLM             PrimaryRepairDeterminationMethod = "llm"
	DeterminationDeterministic   PrimaryRepairDeterminationMethod = "deterministic"
	DeterminationRepairContext   PrimaryRepairDeterminationMethod = "repair_context"
	DeterminationNone            PrimaryRepairDeterminationMethod = "none"
)

// PrimaryRepairResult is the stage-8 output describing the claim's
// single dominant failure mode.
type PrimaryRepairResult struct {
	Component            string                            `json:"component,omitempty"`
	Category              string                            `json:"category,omitempty"`
	Description            string                            `json:"description,omitempty"`
	IsCovered              *bool                             `json:"is_covered,omitempty"`
	Confidence             decimal.Decimal                   `json:"confidence"`
	DeterminationMethod    PrimaryRepairDeterminationMethod  `json:"determination_method"`
	SourceItemIndex        *int                              `json:"source_item_index,omitempty"`
}

// CoverageSummary aggregates claim-level totals.
type CoverageSummary struct {
	TotalClaimed                decimal.Decimal `json:"total_claimed"`
	TotalCoveredBeforeExcess    decimal.Decimal `json:"total_covered_before_excess"`
	TotalCoveredGross           decimal.Decimal `json:"total_covered_gross"`
	PartsCoveredGross           decimal.Decimal `json:"parts_covered_gross"`
	LaborCoveredGross           decimal.Decimal `json:"labor_covered_gross"`
	TotalNotCovered              decimal.Decimal `json:"total_not_covered"`
	ItemsCovered                 int             `json:"items_covered"`
	ItemsNotCovered               int             `json:"items_not_covered"`
	ItemsReviewNeeded             int             `json:"items_review_needed"`
	CoveragePercent               *decimal.Decimal `json:"coverage_percent,omitempty"`
	CoveragePercentMissing        bool            `json:"coverage_percent_missing"`
}

// CoverageMetadata records pipeline-run bookkeeping.
type CoverageMetadata struct {
	RulesApplied         int   `json:"rules_applied"`
	PartNumbersApplied    int   `json:"part_numbers_applied"`
	KeywordsApplied       int   `json:"keywords_applied"`
	// LLMCalls is the number of line items carrying a non-SKIPPED
	// stage="llm" decision trace step -- not the number of underlying
	// LLM API requests, which can exceed it when a retry fires.
	LLMCalls               int   `json:"llm_calls"`
	ProcessingTimeMS       int64 `json:"processing_time_ms"`
	ConfigVersion          string `json:"config_version"`
}

// CoverageAnalysisResult is the full output of one Analyze call.
type CoverageAnalysisResult struct {
	ClaimID        string                 `json:"claim_id"`
	ClaimRunID     string                 `json:"claim_run_id,omitempty"`
	GeneratedAt    time.Time              `json:"generated_at"`
	Inputs         CoverageInputs          `json:"inputs"`
	LineItems      []LineItemCoverage      `json:"line_items"`
	Summary        CoverageSummary         `json:"summary"`
	PrimaryRepair  PrimaryRepairResult     `json:"primary_repair"`
	RepairContext  *PrimaryRepairResult    `json:"repair_context,omitempty"`
	Metadata       CoverageMetadata        `json:"metadata"`
}
