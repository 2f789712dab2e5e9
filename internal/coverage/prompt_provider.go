package coverage

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultPromptProvider builds the three LLM prompts straight out of
// the data the deterministic stages already have on hand: the line
// item under decision, the policy's covered-components map, and
// whatever repair-context description has been built up so far.
type DefaultPromptProvider struct{}

func (DefaultPromptProvider) KeywordMatchPrompt(item LineItem, coveredComponents map[string][]string, repairContextDescription string) []ChatMessage {
	covered, _ := json.Marshal(coveredComponents)
	system := "You are an automotive warranty claims adjudicator. Given a single invoice line item and the policy's " +
		"covered components by category, decide whether the item is covered. Respond with JSON only: " +
		`{"component": string, "category": string, "confidence": number 0-1, "is_covered": bool, "reasoning": string}.`

	var user strings.Builder
	fmt.Fprintf(&user, "Item description: %s\n", item.Description)
	fmt.Fprintf(&user, "Item type: %s\n", item.ItemType)
	fmt.Fprintf(&user, "Total price: %s\n", item.TotalPrice.String())
	if repairContextDescription != "" {
		fmt.Fprintf(&user, "Repair context: %s\n", repairContextDescription)
	}
	fmt.Fprintf(&user, "Covered components by category: %s\n", covered)

	return []ChatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: user.String()},
	}
}

func (DefaultPromptProvider) PrimaryRepairPrompt(items []primaryRepairCandidate, coveredComponents map[string][]string, repairDescription string) []ChatMessage {
	candidates, _ := json.Marshal(items)
	covered, _ := json.Marshal(coveredComponents)
	system := "You are an automotive warranty claims adjudicator. Given a claim's already-adjudicated line items, " +
		"pick the single dominant repair the claim is about. Respond with JSON only: " +
		`{"primary_item_index": int, "component": string, "category": string, "confidence": number 0-1}.`

	var user strings.Builder
	if repairDescription != "" {
		fmt.Fprintf(&user, "Repair description: %s\n", repairDescription)
	}
	fmt.Fprintf(&user, "Line items: %s\n", candidates)
	fmt.Fprintf(&user, "Covered components by category: %s\n", covered)

	return []ChatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: user.String()},
	}
}

func (DefaultPromptProvider) LaborRelevancePrompt(item LineItem, primary PrimaryRepairResult) []ChatMessage {
	system := "You are an automotive warranty claims adjudicator. Given a labor line item and the claim's confirmed " +
		"primary repair, decide whether the labor is mechanically necessary to perform that repair. Respond with " +
		`JSON only: {"relevant": bool}.`

	var user strings.Builder
	fmt.Fprintf(&user, "Labor item: %s (price %s)\n", item.Description, item.TotalPrice.String())
	fmt.Fprintf(&user, "Primary repair component: %s, category: %s\n", primary.Component, primary.Category)

	return []ChatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: user.String()},
	}
}
