package coverage

import (
	"strings"

	"github.com/rs/zerolog/log"
)

// RepairContextExtractor implements stage 0: scanning labor
// descriptions for known repair keywords to establish the claim's
// primary repaired component before any per-item matching runs.
type RepairContextExtractor struct {
	component   ComponentConfig
	ruleEngine  *RuleEngine
	policyCheck *PolicyListChecker
}

func NewRepairContextExtractor(component ComponentConfig, ruleEngine *RuleEngine, policyCheck *PolicyListChecker) *RepairContextExtractor {
	return &RepairContextExtractor{component: component, ruleEngine: ruleEngine, policyCheck: policyCheck}
}

func isLaborItemType(itemType string) bool {
	switch toLower(itemType) {
	case "labor", "labour", "arbeit", "main d'oeuvre":
		return true
	default:
		return false
	}
}

// Extract scans all labor line items for the longest matching repair
// keyword and derives the primary component/category/coverage from
// it. Only labor lines participate; parts lines carry no repair
// narrative of their own.
func (e *RepairContextExtractor) Extract(items []LineItem, covered, excluded map[string][]string) RepairContext {
	ctx := RepairContext{}
	detectedSet := map[string]struct{}{}

	for _, item := range items {
		if !isLaborItemType(item.ItemType) {
			continue
		}
		description := toLower(item.Description)
		if description == "" {
			continue
		}

		keyword, entry, ok := e.longestMatchingKeyword(description)
		if !ok {
			continue
		}

		if _, excludedMatch := e.ruleEngine.MatchExclusion(strings.ToUpper(item.Description)); excludedMatch {
			log.Info().Str("keyword", keyword).Str("description", description).
				Msg("repair context: skipping keyword, matches exclusion pattern")
			continue
		}

		detectedSet[entry.Component] = struct{}{}

		if ctx.PrimaryComponent == "" {
			ctx.PrimaryComponent = entry.Component
			ctx.PrimaryCategory = entry.Category
			ctx.SourceDescription = item.Description
			ctx.IsCovered = e.determineCoverage(entry.Component, entry.Category, item.Description, covered, excluded)

			log.Debug().Str("component", entry.Component).Str("category", entry.Category).
				Str("covered", ctx.IsCovered.String()).Msg("repair context extracted")
		}
	}

	ctx.AllDetectedComponents = make([]string, 0, len(detectedSet))
	for c := range detectedSet {
		ctx.AllDetectedComponents = append(ctx.AllDetectedComponents, c)
	}

	if ctx.PrimaryComponent != "" {
		log.Info().Str("component", ctx.PrimaryComponent).Str("category", ctx.PrimaryCategory).
			Str("covered", ctx.IsCovered.String()).Msg("repair context extraction complete")
	}

	return ctx
}

// longestMatchingKeyword returns the longest configured repair-context
// keyword that occurs as a substring of description. Choosing the
// longest rather than the first configured match avoids a short
// generic keyword shadowing a more specific one that also matches.
func (e *RepairContextExtractor) longestMatchingKeyword(description string) (string, RepairKeywordEntry, bool) {
	best := ""
	var bestEntry RepairKeywordEntry
	found := false
	for keyword, entry := range e.component.RepairContextKeywords {
		if !strings.Contains(description, keyword) {
			continue
		}
		if !found || len(keyword) > len(best) {
			best = keyword
			bestEntry = entry
			found = true
		}
	}
	return best, bestEntry, found
}

func (e *RepairContextExtractor) determineCoverage(component, category, description string, covered, excluded map[string][]string) Tristate {
	verdict, _ := e.policyCheck.IsComponentInPolicyList(component, category, covered, description, true)
	if verdict == TristateYes {
		return TristateYes
	}

	coveredCats := ExtractCoveredCategories(covered)
	catCovered := e.policyCheck.IsSystemCovered(category, coveredCats)
	if catCovered && excluded != nil && !e.policyCheck.IsComponentExcludedByPolicy(component, category, description, excluded) {
		log.Info().Str("component", component).Str("category", category).
			Msg("repair context: category covered, part not listed, not excluded -> covered")
		return TristateYes
	}
	return TristateNo
}

func (t Tristate) String() string {
	switch t {
	case TristateYes:
		return "yes"
	case TristateNo:
		return "no"
	default:
		return "unknown"
	}
}
