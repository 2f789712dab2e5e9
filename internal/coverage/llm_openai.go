package coverage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// OpenAIClient is the default AuditedLLMClient: a minimal chat-
// completions caller against an OpenAI-compatible endpoint. No
// third-party HTTP or OpenAI SDK appears anywhere in the corpus this
// repo was grounded on, so this one boundary is built on net/http
// directly rather than importing an unverified dependency.
type OpenAIClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string

	mu         sync.Mutex
	claimRunID string
	stage      string
	retryN     int
	lastCallID string
}

// NewOpenAIClient builds a client against baseURL (e.g.
// "https://api.openai.com/v1") using apiKey for bearer auth and model
// for every completion request.
func NewOpenAIClient(baseURL, apiKey, model string) *OpenAIClient {
	return &OpenAIClient{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
	}
}

func (c *OpenAIClient) SetContext(claimRunID, stage string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.claimRunID = claimRunID
	c.stage = stage
}

func (c *OpenAIClient) MarkRetry(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retryN = n
}

func (c *OpenAIClient) GetLastCallID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastCallID
}

type openAIChatRequest struct {
	Model    string                 `json:"model"`
	Messages []openAIChatMessage    `json:"messages"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIChatMessage `json:"message"`
	} `json:"choices"`
}

// ChatCompletionsCreate issues one chat-completions call, stamping the
// call with a fresh id and claim/stage/retry audit metadata. The
// caller may be one of many goroutines sharing this client (BatchMatch
// runs several concurrently), so the claim/stage/retry values come
// from ctx when present rather than from the mutable fields
// SetContext/MarkRetry set — those setters only back the metadata for
// callers that issue calls one at a time.
func (c *OpenAIClient) ChatCompletionsCreate(ctx context.Context, messages []ChatMessage) (string, error) {
	c.mu.Lock()
	callID := uuid.NewString()
	c.lastCallID = callID
	claimRunID, stage, retryN := c.claimRunID, c.stage, c.retryN
	c.mu.Unlock()

	if fromCtx := claimRunIDFromContext(ctx); fromCtx != "" {
		claimRunID = fromCtx
	}
	if fromCtx := llmStageFromContext(ctx); fromCtx != "" {
		stage = fromCtx
	}
	if fromCtx, ok := llmRetryFromContext(ctx); ok {
		retryN = fromCtx
	}

	chatMessages := make([]openAIChatMessage, len(messages))
	for i, m := range messages {
		chatMessages[i] = openAIChatMessage{Role: m.Role, Content: m.Content}
	}

	reqBody := openAIChatRequest{
		Model:    c.model,
		Messages: chatMessages,
		Metadata: map[string]interface{}{
			"call_id":      callID,
			"claim_run_id": claimRunID,
			"stage":        stage,
			"retry":        retryN,
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", NewLLMError("encoding chat completion request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", NewLLMError("building chat completion request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("X-Call-Id", callID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", NewLLMError("calling chat completions endpoint", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", NewLLMError("reading chat completion response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", NewLLMError(fmt.Sprintf("chat completions returned status %d", resp.StatusCode), fmt.Errorf("%s", string(body)))
	}

	var parsed openAIChatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", NewLLMError("decoding chat completion response", err)
	}
	if len(parsed.Choices) == 0 {
		return "", NewLLMError("chat completions returned no choices", nil)
	}
	return parsed.Choices[0].Message.Content, nil
}
