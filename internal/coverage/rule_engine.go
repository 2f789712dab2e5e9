package coverage

import (
	"regexp"

	"github.com/shopspring/decimal"
)

// RuleEngine compiles a RuleConfig's pattern lists once and applies
// them against line-item descriptions. Stage 1 of the pipeline.
type RuleEngine struct {
	exclusion       []*regexp.Regexp
	nonCoveredLabor []*regexp.Regexp
	consumable      []*regexp.Regexp
	fluid           []*regexp.Regexp
}

// NewRuleEngine compiles cfg's pattern lists. Patterns that fail to
// compile are skipped rather than failing the whole engine, since a
// single malformed customer pattern should not take down the pipeline.
func NewRuleEngine(cfg RuleConfig) *RuleEngine {
	return &RuleEngine{
		exclusion:       compileAll(cfg.ExclusionPatterns),
		nonCoveredLabor: compileAll(cfg.NonCoveredLaborPatterns),
		consumable:      compileAll(cfg.ConsumablePatterns),
		fluid:           compileAll(cfg.FluidPatterns),
	}
}

func compileAll(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			continue
		}
		out = append(out, re)
	}
	return out
}

func anyMatch(patterns []*regexp.Regexp, text string) (string, bool) {
	for _, re := range patterns {
		if re.MatchString(text) {
			return re.String(), true
		}
	}
	return "", false
}

// MatchExclusion reports whether text matches a configured exclusion
// pattern (diagnostic/cosmetic work explicitly out of policy scope).
func (r *RuleEngine) MatchExclusion(text string) (pattern string, matched bool) {
	return anyMatch(r.exclusion, text)
}

// CheckNonCoveredLabor reports whether text names a labor operation
// that is never covered regardless of the part it's attached to (e.g.
// towing, battery charging). Used by stage 2's labor re-check.
func (r *RuleEngine) CheckNonCoveredLabor(text string) (pattern string, matched bool) {
	return anyMatch(r.nonCoveredLabor, text)
}

// MatchConsumable reports whether text names a wear-and-tear
// consumable (brake pads, wiper blades) normally excluded from
// warranty coverage unless skip_consumable_check applies.
func (r *RuleEngine) MatchConsumable(text string) (pattern string, matched bool) {
	return anyMatch(r.consumable, text)
}

// MatchFluid reports whether text names a fluid/fill item.
func (r *RuleEngine) MatchFluid(text string) (pattern string, matched bool) {
	return anyMatch(r.fluid, text)
}

// BatchMatch implements stage 1: deciding items purely from compiled
// patterns, with no catalog or policy-list lookup. An exclusion
// pattern always wins; a fluid pattern always excludes the item; a
// consumable pattern only excludes the item when skipConsumableCheck
// is false — it is set true when
// the repair context already identified a covered primary component,
// since a consumable named alongside a confirmed covered repair is
// very likely the covered part itself rather than wear-and-tear.
func (r *RuleEngine) BatchMatch(items []LineItem, skipConsumableCheck bool) (matched []LineItemCoverage, remaining []LineItem) {
	confidence := decimal.NewFromFloat(1.0)

	for _, item := range items {
		if pattern, ok := r.MatchExclusion(item.Description); ok {
			matched = append(matched, ruleExcluded(item, "excluded_by_rule", "Matches exclusion pattern: "+pattern, confidence))
			continue
		}
		if !skipConsumableCheck {
			if pattern, ok := r.MatchConsumable(item.Description); ok {
				matched = append(matched, ruleExcluded(item, "consumable", "Matches consumable pattern: "+pattern, confidence))
				continue
			}
		}
		if pattern, ok := r.MatchFluid(item.Description); ok {
			matched = append(matched, ruleExcluded(item, "fluid", "Matches fluid pattern: "+pattern, confidence))
			continue
		}
		remaining = append(remaining, item)
	}
	return matched, remaining
}

func ruleExcluded(item LineItem, reason, message string, confidence decimal.Decimal) LineItemCoverage {
	tb := NewTraceBuilder(nil).Add("rule_engine", ActionExcluded, message,
		WithVerdict(StatusNotCovered), WithConfidence(confidence), WithDetail(map[string]interface{}{"reason": reason}))
	lic := LineItemCoverage{
		ItemCode:        item.ItemCode,
		Description:     item.Description,
		ItemType:        item.ItemType,
		TotalPrice:      item.TotalPrice,
		CoverageStatus:  StatusNotCovered,
		MatchMethod:     MethodRule,
		MatchConfidence: confidence,
		MatchReasoning:  message,
		ExclusionReason: reason,
		DecisionTrace:   tb.Build(),
	}
	lic.setAmounts(decimal.Zero)
	return lic
}
