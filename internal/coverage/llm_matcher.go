package coverage

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/kirimku/coverage-analyzer/pkg/logger"
)

// llmKeywordResponse is the tolerant JSON shape an LLM is asked to
// return for a single-item coverage decision.
type llmKeywordResponse struct {
	Component  string  `json:"component"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	IsCovered  bool    `json:"is_covered"`
	Reasoning  string  `json:"reasoning"`
}

type llmPrimaryResponse struct {
	PrimaryItemIndex int     `json:"primary_item_index"`
	Component        string  `json:"component"`
	Category         string  `json:"category"`
	Confidence       float64 `json:"confidence"`
}

type llmLaborRelevanceResponse struct {
	Relevant []bool `json:"relevant"`
}

// ProgressFunc is invoked once per completed item during a batch LLM
// call, regardless of completion order.
type ProgressFunc func(done, total int)

// LLMMatcher implements stage 6: a bounded, retried, parallel fallback
// for items the deterministic stages could not resolve, plus the
// tier-0 primary-repair and labor-relevance LLM calls used later in
// the pipeline.
type LLMMatcher struct {
	client  AuditedLLMClient
	prompts PromptProvider
	config  LLMMatcherConfig
}

func NewLLMMatcher(client AuditedLLMClient, prompts PromptProvider, config LLMMatcherConfig) *LLMMatcher {
	return &LLMMatcher{client: client, prompts: prompts, config: config}
}

// BatchMatch resolves remaining items concurrently, bounded by
// config.MaxConcurrent, with exponential-backoff retry per item. When
// remaining exceeds config.MaxItems, the overflow items are not sent
// to the LLM at all — they come back as REVIEW_NEEDED with a trace
// step explaining the truncation, never silently dropped.
func (m *LLMMatcher) BatchMatch(ctx context.Context, items []LineItem, covered map[string][]string, repairContextDescription string, progress ProgressFunc) ([]LineItemCoverage, error) {
	results := make([]LineItemCoverage, len(items))

	limit := len(items)
	overflow := 0
	if limit > m.config.MaxItems {
		overflow = limit - m.config.MaxItems
		limit = m.config.MaxItems
	}

	var done int64
	total := limit

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(m.config.MaxConcurrent))

	for i := 0; i < limit; i++ {
		i := i
		item := items[i]
		if err := sem.Acquire(gctx, 1); err != nil {
			return nil, err
		}
		g.Go(func() error {
			defer sem.Release(1)
			lic, err := m.matchOneWithRetry(gctx, item, covered, repairContextDescription)
			if err != nil {
				lic = reviewNeededForError(item, err)
			}
			results[i] = lic
			if progress != nil {
				progress(int(atomic.AddInt64(&done, 1)), total)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i := limit; i < len(items); i++ {
		results[i] = reviewNeededForSkip(items[i], overflow)
	}

	return results, nil
}

func reviewNeededForSkip(item LineItem, overflowCount int) LineItemCoverage {
	tb := NewTraceBuilder(item.deferredTrace).Add("llm", ActionSkipped,
		fmt.Sprintf("Skipped: claim exceeds LLM item limit (%d items over limit)", overflowCount),
		WithVerdict(StatusReviewNeeded))
	lic := LineItemCoverage{
		ItemCode:       item.ItemCode,
		Description:    item.Description,
		ItemType:       item.ItemType,
		TotalPrice:     item.TotalPrice,
		CoverageStatus: StatusReviewNeeded,
		MatchMethod:    MethodLLM,
		MatchReasoning: "Exceeded LLM item limit",
		DecisionTrace:  tb.Build(),
	}
	lic.setAmounts(decimal.Zero)
	return lic
}

func reviewNeededForError(item LineItem, err error) LineItemCoverage {
	tb := NewTraceBuilder(item.deferredTrace).Add("llm", ActionSkipped,
		"LLM match failed: "+err.Error(), WithVerdict(StatusReviewNeeded))
	lic := LineItemCoverage{
		ItemCode:       item.ItemCode,
		Description:    item.Description,
		ItemType:       item.ItemType,
		TotalPrice:     item.TotalPrice,
		CoverageStatus: StatusReviewNeeded,
		MatchMethod:    MethodLLM,
		MatchReasoning: "LLM match failed: " + err.Error(),
		DecisionTrace:  tb.Build(),
	}
	lic.setAmounts(decimal.Zero)
	return lic
}

func (m *LLMMatcher) matchOneWithRetry(ctx context.Context, item LineItem, covered map[string][]string, repairContextDescription string) (LineItemCoverage, error) {
	var lastErr error
	for attempt := 0; attempt <= m.config.MaxRetries; attempt++ {
		attemptCtx := withLLMRetry(ctx, attempt)
		if attempt > 0 {
			m.client.MarkRetry(attempt)
			RecordLLMRetry()
			if err := sleepBackoff(ctx, attempt-1, m.config.RetryBaseDelay, m.config.RetryMaxDelay); err != nil {
				return LineItemCoverage{}, err
			}
		}

		resp, err := m.callKeywordMatch(attemptCtx, item, covered, repairContextDescription)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		logger.ErrorLogger().Err(err).Str("item", item.Description).Int("attempt", attempt).Msg("llm match attempt failed")
	}
	return LineItemCoverage{}, lastErr
}

func (m *LLMMatcher) callKeywordMatch(ctx context.Context, item LineItem, covered map[string][]string, repairContextDescription string) (LineItemCoverage, error) {
	messages := m.prompts.KeywordMatchPrompt(item, covered, repairContextDescription)
	claimRunID := claimRunIDFromContext(ctx)
	ctx = withLLMStage(ctx, "keyword_match")
	RecordLLMCall()
	raw, err := m.client.ChatCompletionsCreate(ctx, messages)
	if err != nil {
		return LineItemCoverage{}, err
	}
	logger.LLMCallLogger(claimRunID, "keyword_match", m.client.GetLastCallID()).Str("item", item.Description).Msg("llm call complete")

	var parsed llmKeywordResponse
	if err := parseJSONLoose(raw, &parsed); err != nil {
		return LineItemCoverage{}, fmt.Errorf("parsing llm response: %w", err)
	}

	status := StatusNotCovered
	if parsed.IsCovered {
		status = StatusCovered
	}
	confidence := decimal.NewFromFloat(parsed.Confidence)

	tb := NewTraceBuilder(item.deferredTrace).Add("llm", ActionMatched, parsed.Reasoning,
		WithVerdict(status), WithConfidence(confidence),
		WithDetail(map[string]interface{}{"component": parsed.Component, "category": parsed.Category}))

	lic := LineItemCoverage{
		ItemCode:         item.ItemCode,
		Description:      item.Description,
		ItemType:         item.ItemType,
		TotalPrice:       item.TotalPrice,
		CoverageStatus:   status,
		CoverageCategory: parsed.Category,
		MatchedComponent: parsed.Component,
		MatchMethod:      MethodLLM,
		MatchConfidence:  confidence,
		MatchReasoning:   parsed.Reasoning,
		DecisionTrace:    tb.Build(),
	}
	covered0 := decimal.Zero
	if status == StatusCovered {
		covered0 = item.TotalPrice
	}
	lic.setAmounts(covered0)
	return lic, nil
}

// DeterminePrimaryRepair issues the tier-0 LLM call to pick the
// claim's single dominant repair among already-adjudicated items. The
// returned IsCovered comes from the chosen item's own CoverageStatus —
// the LLM's opinion on coverage is never trusted directly.
func (m *LLMMatcher) DeterminePrimaryRepair(ctx context.Context, allItems []LineItemCoverage, covered map[string][]string, repairDescription string) (*PrimaryRepairResult, error) {
	candidates := make([]primaryRepairCandidate, len(allItems))
	for i, item := range allItems {
		candidates[i] = primaryRepairCandidate{
			Index:            i,
			Description:      item.Description,
			ItemType:         item.ItemType,
			TotalPrice:       toFloat(item.TotalPrice),
			CoverageStatus:   string(item.CoverageStatus),
			CoverageCategory: item.CoverageCategory,
		}
	}

	messages := m.prompts.PrimaryRepairPrompt(candidates, covered, repairDescription)
	claimRunID := claimRunIDFromContext(ctx)
	m.client.SetContext(claimRunID, "primary_repair")
	RecordLLMCall()
	raw, err := m.client.ChatCompletionsCreate(ctx, messages)
	if err != nil {
		return nil, err
	}
	logger.LLMCallLogger(claimRunID, "primary_repair", m.client.GetLastCallID()).Msg("llm call complete")

	var parsed llmPrimaryResponse
	if err := parseJSONLoose(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parsing llm primary repair response: %w", err)
	}
	if parsed.PrimaryItemIndex < 0 || parsed.PrimaryItemIndex >= len(allItems) {
		return nil, fmt.Errorf("llm returned out-of-range primary_item_index %d", parsed.PrimaryItemIndex)
	}

	source := allItems[parsed.PrimaryItemIndex]
	isCovered := source.CoverageStatus == StatusCovered

	component := parsed.Component
	if component == "" {
		component = source.MatchedComponent
	}
	category := parsed.Category
	if category == "" {
		category = source.CoverageCategory
	}
	confidence := parsed.Confidence
	if confidence == 0 {
		confidence = 0.80
	}

	idx := parsed.PrimaryItemIndex
	return &PrimaryRepairResult{
		Component:           component,
		Category:             category,
		Description:          source.Description,
		IsCovered:            &isCovered,
		Confidence:           decimal.NewFromFloat(confidence),
		DeterminationMethod:  DeterminationLLM,
		SourceItemIndex:      &idx,
	}, nil
}

// ClassifyLaborRelevance asks the LLM, for each candidate labor item,
// whether it plausibly supports the claim's primary repair (Mode 2 of
// stage 9's promotion pass).
func (m *LLMMatcher) ClassifyLaborRelevance(ctx context.Context, items []LineItem, primary PrimaryRepairResult) ([]bool, error) {
	claimRunID := claimRunIDFromContext(ctx)
	out := make([]bool, len(items))
	for i, item := range items {
		messages := m.prompts.LaborRelevancePrompt(item, primary)
		m.client.SetContext(claimRunID, "labor_relevance")
		RecordLLMCall()
		raw, err := m.client.ChatCompletionsCreate(ctx, messages)
		if err != nil {
			return nil, err
		}
		logger.LLMCallLogger(claimRunID, "labor_relevance", m.client.GetLastCallID()).Str("item", item.Description).Msg("llm call complete")
		var parsed struct {
			Relevant bool `json:"relevant"`
		}
		if err := parseJSONLoose(raw, &parsed); err != nil {
			return nil, fmt.Errorf("parsing labor relevance response: %w", err)
		}
		out[i] = parsed.Relevant
	}
	return out, nil
}

// parseJSONLoose unmarshals raw into v, first stripping a surrounding
// markdown code fence if the model wrapped its JSON in one.
func parseJSONLoose(raw string, v interface{}) error {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)
	return json.Unmarshal([]byte(trimmed), v)
}

// sleepBackoff waits delay_i = uniform(0, min(base*2^i, max)) before
// the next retry, honoring ctx cancellation.
func sleepBackoff(ctx context.Context, retryIndex int, base, maxDelay time.Duration) error {
	capped := math.Min(float64(base)*math.Pow(2, float64(retryIndex)), float64(maxDelay))
	delay := time.Duration(rand.Float64() * capped)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
