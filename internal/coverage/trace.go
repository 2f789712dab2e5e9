package coverage

import "github.com/shopspring/decimal"

// TraceBuilder accumulates TraceStep entries for a single line item as
// it moves through the pipeline. Append-only: stages extend a prior
// item's trace, they never rewrite earlier steps.
type TraceBuilder struct {
	steps []TraceStep
}

// NewTraceBuilder starts a fresh trace, optionally seeded with steps
// carried over from a prior (deferring) stage.
func NewTraceBuilder(seed []TraceStep) *TraceBuilder {
	tb := &TraceBuilder{}
	tb.Extend(seed)
	return tb
}

// Extend appends steps from a previously-built trace, e.g. when an
// item deferred by one stage is later matched by another.
func (tb *TraceBuilder) Extend(steps []TraceStep) *TraceBuilder {
	if len(steps) == 0 {
		return tb
	}
	tb.steps = append(tb.steps, steps...)
	return tb
}

// Add appends a new step.
func (tb *TraceBuilder) Add(stage string, action TraceAction, message string, opts ...TraceOption) *TraceBuilder {
	step := TraceStep{Stage: stage, Action: action, Message: message}
	for _, opt := range opts {
		opt(&step)
	}
	tb.steps = append(tb.steps, step)
	return tb
}

// Build returns the accumulated steps.
func (tb *TraceBuilder) Build() []TraceStep {
	if tb == nil {
		return nil
	}
	return tb.steps
}

// TraceOption configures optional TraceStep fields.
type TraceOption func(*TraceStep)

func WithVerdict(v CoverageStatus) TraceOption {
	return func(s *TraceStep) { s.Verdict = &v }
}

func WithConfidence(c decimal.Decimal) TraceOption {
	return func(s *TraceStep) { s.Confidence = &c }
}

func WithDetail(d map[string]interface{}) TraceOption {
	return func(s *TraceStep) { s.Detail = d }
}

// FinalVerdict returns the verdict carried by the most recent trace
// step that has one, matching the invariant that the final verdict is
// the verdict of the most recent step carrying one.
func FinalVerdict(steps []TraceStep) (CoverageStatus, bool) {
	for i := len(steps) - 1; i >= 0; i-- {
		if steps[i].Verdict != nil {
			return *steps[i].Verdict, true
		}
	}
	return "", false
}

// hasNonSkippedLLMStep reports whether steps contains a stage="llm"
// entry that isn't SKIPPED, i.e. the item actually received an LLM
// adjudication rather than being passed over (disabled, overflow,
// call failure).
func hasNonSkippedLLMStep(steps []TraceStep) bool {
	for _, s := range steps {
		if s.Stage == "llm" && s.Action != ActionSkipped {
			return true
		}
	}
	return false
}

// CountLLMCalls returns the number of items whose decision trace
// carries a non-SKIPPED stage="llm" step. This is what
// CoverageMetadata.LLMCalls reports: it is the count of items the LLM
// actually adjudicated, not the number of underlying API requests
// (which can exceed it when retries fire).
func CountLLMCalls(items []LineItemCoverage) int {
	n := 0
	for _, item := range items {
		if hasNonSkippedLLMStep(item.DecisionTrace) {
			n++
		}
	}
	return n
}
