package coverage

import "context"

// ChatMessage is one role/content pair sent to the LLM.
type ChatMessage struct {
	Role    string
	Content string
}

// AuditedLLMClient is the narrow LLM surface the matcher depends on.
// "Audited" because every call is expected to be attributable to a
// claim run for compliance review — SetContext/MarkRetry/GetLastCallID
// exist purely for that audit trail, not for completion behavior.
type AuditedLLMClient interface {
	ChatCompletionsCreate(ctx context.Context, messages []ChatMessage) (string, error)

	// SetContext associates subsequent calls with a claim run for the
	// audit trail.
	SetContext(claimRunID, stage string)

	// MarkRetry records that the in-flight call is a retry attempt n
	// (1-indexed) of a previous failure.
	MarkRetry(n int)

	// GetLastCallID returns an identifier for the most recently issued
	// call, for cross-referencing against provider-side logs.
	GetLastCallID() string
}

// PromptProvider builds the prompts for each LLM-backed decision. Kept
// separate from AuditedLLMClient so prompt templates can evolve (or be
// swapped per customer) without touching transport/retry concerns.
type PromptProvider interface {
	KeywordMatchPrompt(item LineItem, coveredComponents map[string][]string, repairContextDescription string) []ChatMessage
	PrimaryRepairPrompt(items []primaryRepairCandidate, coveredComponents map[string][]string, repairDescription string) []ChatMessage
	LaborRelevancePrompt(item LineItem, primary PrimaryRepairResult) []ChatMessage
}

type primaryRepairCandidate struct {
	Index            int     `json:"index"`
	Description      string  `json:"description"`
	ItemType         string  `json:"item_type"`
	TotalPrice       float64 `json:"total_price"`
	CoverageStatus   string  `json:"coverage_status"`
	CoverageCategory string  `json:"coverage_category,omitempty"`
}
