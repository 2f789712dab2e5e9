package coverage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are promauto-registered against the default registry, the
// same idiom the teacher's metrics package uses: construct once at
// package init, call from the hot path with no further registration
// bookkeeping. The Analyzer itself never binds an HTTP listener --
// scraping is left to the embedding service.
var (
	stageLatencySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "coverage_analyzer",
		Name:      "stage_duration_seconds",
		Help:      "Time spent in each pipeline stage per claim.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"stage"})

	llmCallsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "coverage_analyzer",
		Name:      "llm_calls_total",
		Help:      "Total number of LLM calls issued across all claims.",
	})

	llmRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "coverage_analyzer",
		Name:      "llm_retries_total",
		Help:      "Total number of LLM call retries.",
	})

	itemsDeferredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coverage_analyzer",
		Name:      "items_deferred_total",
		Help:      "Line items deferred to the next stage, by source stage.",
	}, []string{"stage"})

	claimsAnalyzedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coverage_analyzer",
		Name:      "claims_analyzed_total",
		Help:      "Claims analyzed, labeled by whether a primary repair was determined.",
	}, []string{"primary_repair_method"})
)

// ObserveStageDuration records how long a named pipeline stage took
// for one claim.
func ObserveStageDuration(stage string, seconds float64) {
	stageLatencySeconds.WithLabelValues(stage).Observe(seconds)
}

// RecordLLMCall increments the LLM call counter.
func RecordLLMCall() {
	llmCallsTotal.Inc()
}

// RecordLLMRetry increments the LLM retry counter.
func RecordLLMRetry() {
	llmRetriesTotal.Inc()
}

// RecordDeferral increments the deferred-item counter for stage.
func RecordDeferral(stage string) {
	itemsDeferredTotal.WithLabelValues(stage).Inc()
}

// RecordClaimAnalyzed increments the per-claim counter, labeled by how
// the primary repair was ultimately determined.
func RecordClaimAnalyzed(method PrimaryRepairDeterminationMethod) {
	claimsAnalyzedTotal.WithLabelValues(string(method)).Inc()
}
