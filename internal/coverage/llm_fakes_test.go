package coverage

import (
	"context"
	"fmt"
)

// fakeLLMClient returns a scripted response for every call, in order,
// cycling the last response if more calls arrive than scripted.
type fakeLLMClient struct {
	responses []string
	err       error
	calls     int
	claimRunID, stage string
}

func (f *fakeLLMClient) ChatCompletionsCreate(ctx context.Context, messages []ChatMessage) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "{}", nil
	}
	idx := f.calls
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	f.calls++
	return f.responses[idx], nil
}

func (f *fakeLLMClient) SetContext(claimRunID, stage string) { f.claimRunID, f.stage = claimRunID, stage }
func (f *fakeLLMClient) MarkRetry(n int)                     {}
func (f *fakeLLMClient) GetLastCallID() string                { return fmt.Sprintf("fake-call-%d", f.calls) }

// fakePromptProvider builds trivial prompts; the fake client ignores
// message content entirely, so these just need to satisfy the interface.
type fakePromptProvider struct{}

func (fakePromptProvider) KeywordMatchPrompt(item LineItem, covered map[string][]string, repairContextDescription string) []ChatMessage {
	return []ChatMessage{{Role: "user", Content: item.Description}}
}

func (fakePromptProvider) PrimaryRepairPrompt(items []primaryRepairCandidate, covered map[string][]string, repairDescription string) []ChatMessage {
	return []ChatMessage{{Role: "user", Content: repairDescription}}
}

func (fakePromptProvider) LaborRelevancePrompt(item LineItem, primary PrimaryRepairResult) []ChatMessage {
	return []ChatMessage{{Role: "user", Content: item.Description}}
}
