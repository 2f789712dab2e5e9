package coverage

import "context"

type claimRunIDKeyType struct{}

var claimRunIDKey claimRunIDKeyType

// WithClaimRunID attaches a claim run's correlation ID to ctx so
// anything downstream — stage loggers, the LLM audit trail — can tag
// its output without the ID threading through every function
// signature between Analyze and the LLM matcher.
func WithClaimRunID(ctx context.Context, claimRunID string) context.Context {
	return context.WithValue(ctx, claimRunIDKey, claimRunID)
}

// claimRunIDFromContext returns the ID attached by WithClaimRunID, or
// "" if none was set.
func claimRunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(claimRunIDKey).(string)
	return id
}

type llmStageKeyType struct{}
type llmRetryKeyType struct{}

var (
	llmStageKey llmStageKeyType
	llmRetryKey llmRetryKeyType
)

// withLLMStage and withLLMRetry carry per-call audit metadata on ctx
// rather than on mutable AuditedLLMClient fields: BatchMatch runs many
// ChatCompletionsCreate calls concurrently against one shared client,
// so metadata set via SetContext/MarkRetry on the client itself can't
// be attributed to the right in-flight call.
func withLLMStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, llmStageKey, stage)
}

func llmStageFromContext(ctx context.Context) string {
	stage, _ := ctx.Value(llmStageKey).(string)
	return stage
}

func withLLMRetry(ctx context.Context, n int) context.Context {
	return context.WithValue(ctx, llmRetryKey, n)
}

// llmRetryFromContext returns the retry count attached by withLLMRetry
// and whether one was attached at all -- attempt 0 (no retry yet) must
// be distinguishable from "nothing set".
func llmRetryFromContext(ctx context.Context) (int, bool) {
	n, ok := ctx.Value(llmRetryKey).(int)
	return n, ok
}
