package coverage

import "strings"

// PolicyLists holds the claim's covered and excluded component lists
// per category, as extracted from the policy document. Representative,
// not exhaustive, per category: a covered category whose part isn't
// listed is not automatically uncovered.
type PolicyLists struct {
	Covered  map[string][]string
	Excluded map[string][]string
}

// PolicyListChecker implements stage 5's verification guard: it
// decides whether a component the earlier stages identified is
// actually named in the policy's covered-parts list for its category.
type PolicyListChecker struct {
	component ComponentConfig
}

func NewPolicyListChecker(component ComponentConfig) *PolicyListChecker {
	return &PolicyListChecker{component: component}
}

// ExtractCoveredCategories returns the category names that have a
// non-empty parts list.
func ExtractCoveredCategories(covered map[string][]string) []string {
	out := make([]string, 0, len(covered))
	for cat, parts := range covered {
		if len(parts) > 0 {
			out = append(out, cat)
		}
	}
	return out
}

// IsSystemCovered reports whether system matches one of
// coveredCategories, directly or via a configured category alias.
func (c *PolicyListChecker) IsSystemCovered(system string, coveredCategories []string) bool {
	if system == "" {
		return false
	}
	systemLower := toLower(system)
	if substringMatchesAny(systemLower, coveredCategories) {
		return true
	}
	for _, alias := range c.component.CategoryAliases[systemLower] {
		if substringMatchesAny(alias, coveredCategories) {
			return true
		}
	}
	return false
}

func substringMatchesAny(name string, categories []string) bool {
	for _, cat := range categories {
		catLower := toLower(cat)
		if name == catLower || strings.Contains(catLower, name) || strings.Contains(name, catLower) {
			return true
		}
	}
	return false
}

// IsComponentExcludedByPolicy reports whether component is explicitly
// named in excluded's list for category (or a category alias),
// checked by name/synonym and by the raw description.
func (c *PolicyListChecker) IsComponentExcludedByPolicy(component, category, description string, excluded map[string][]string) bool {
	if len(excluded) == 0 {
		return false
	}
	categoryLower := toLower(category)
	searchNames := append([]string{categoryLower}, c.component.CategoryAliases[categoryLower]...)

	var excludedParts []string
	for _, searchName := range searchNames {
		for cat, parts := range excluded {
			catLower := toLower(cat)
			if searchName == catLower || strings.Contains(catLower, searchName) || strings.Contains(searchName, catLower) {
				excludedParts = append(excludedParts, parts...)
			}
		}
	}
	if len(excludedParts) == 0 {
		return false
	}
	excludedLower := make([]string, len(excludedParts))
	for i, p := range excludedParts {
		excludedLower[i] = toLower(p)
	}

	componentLower := toLower(component)
	underscoreK := underscoreKey(componentLower)
	spaceK := spaceKey(componentLower)
	synonyms := c.lookupSynonyms(componentLower, underscoreK, spaceK)

	checkTerms := append([]string{componentLower, spaceK}, synonyms...)
	for _, term := range checkTerms {
		for _, excl := range excludedLower {
			if strings.Contains(excl, term) || strings.Contains(term, excl) {
				return true
			}
		}
	}

	descLower := toLower(description)
	if descLower == "" {
		return false
	}
	for _, excl := range excludedLower {
		if strings.Contains(descLower, excl) || strings.Contains(excl, descLower) {
			return true
		}
	}
	return false
}

func (c *PolicyListChecker) lookupSynonyms(componentLower, underscoreK, spaceK string) []string {
	if syn, ok := c.component.ComponentSynonyms[componentLower]; ok {
		return syn
	}
	if syn, ok := c.component.ComponentSynonyms[underscoreK]; ok {
		return syn
	}
	if syn, ok := c.component.ComponentSynonyms[spaceK]; ok {
		return syn
	}
	return nil
}

// IsComponentInPolicyList is the stage-5 verification guard. It
// answers whether component (within system/category) is confirmed
// covered, confirmed not covered, or unconfirmed — returned as a
// Tristate rather than a nullable bool, plus a human-readable reason.
//
// strict controls the no-synonym-mapping fallback: strict mode
// returns TristateNo (no safe default), lenient mode (the default)
// returns TristateUnknown so the caller can fall through to the LLM.
func (c *PolicyListChecker) IsComponentInPolicyList(component, system string, covered map[string][]string, description string, strict bool) (Tristate, string) {
	if system == "" {
		return TristateYes, "No system to verify"
	}

	systemLower := toLower(system)
	searchNames := append([]string{systemLower}, c.component.CategoryAliases[systemLower]...)

	var matchingCategory string
	var policyPartsList []string
	for _, searchName := range searchNames {
		for cat, parts := range covered {
			catLower := toLower(cat)
			if searchName == catLower || strings.Contains(catLower, searchName) || strings.Contains(searchName, catLower) {
				matchingCategory = cat
				policyPartsList = parts
				break
			}
		}
		if matchingCategory != "" {
			break
		}
	}

	if matchingCategory == "" || len(policyPartsList) == 0 {
		return TristateUnknown, "No specific parts list for category '" + system + "' - needs verification"
	}

	if extra := c.component.AdditionalPolicyParts[systemLower]; len(extra) > 0 {
		policyPartsList = append(append([]string{}, policyPartsList...), extra...)
	}

	policyPartsLower := make([]string, len(policyPartsList))
	policyPartsNorm := make([]string, len(policyPartsList))
	for i, p := range policyPartsList {
		policyPartsLower[i] = toLower(p)
		policyPartsNorm[i] = NormalizeUmlauts(policyPartsLower[i])
	}

	if component == "" {
		descNorm := NormalizeUmlauts(toLower(description))
		for idx, policyNorm := range policyPartsNorm {
			if strings.Contains(descNorm, policyNorm) {
				return TristateYes, "Description contains policy part '" + policyPartsLower[idx] + "'"
			}
		}
		return TristateUnknown, "No specific component; description doesn't match any policy parts for '" + system + "'"
	}

	componentLower := toLower(component)
	underscoreK := underscoreKey(componentLower)
	spaceK := spaceKey(componentLower)

	for _, variant := range []string{componentLower, underscoreK, spaceK} {
		variantNorm := NormalizeUmlauts(variant)
		for idx, policyNorm := range policyPartsNorm {
			if matchGuarded(variantNorm, policyNorm) {
				return TristateYes, "Component '" + component + "' found in policy list as '" + policyPartsLower[idx] + "'"
			}
		}
	}

	synonyms := c.lookupSynonyms(componentLower, underscoreK, spaceK)
	if len(synonyms) > 0 {
		for _, term := range synonyms {
			termNorm := NormalizeUmlauts(toLower(term))
			for idx, policyNorm := range policyPartsNorm {
				if matchGuarded(termNorm, policyNorm) {
					return TristateYes, "Component '" + component + "' found in policy list as '" + policyPartsLower[idx] + "'"
				}
			}
		}
	}

	if _, ok := c.component.DistributionCatchAllComponents[componentLower]; ok {
		for idx, policyNorm := range policyPartsNorm {
			for _, keyword := range c.component.DistributionCatchAllKeywords {
				if strings.Contains(policyNorm, NormalizeUmlauts(keyword)) {
					return TristateYes, "Component '" + component + "' covered by distribution catch-all '" + policyPartsLower[idx] + "'"
				}
			}
		}
	}

	descNorm := NormalizeUmlauts(toLower(description))
	for idx, policyNorm := range policyPartsNorm {
		if strings.Contains(descNorm, policyNorm) {
			return TristateYes, "Description contains policy part '" + policyPartsLower[idx] + "'"
		}
	}

	if len(synonyms) == 0 {
		if strict {
			return TristateNo, "No synonym mapping for component '" + component + "' - strict mode"
		}
		return TristateUnknown, "No synonym mapping for component '" + component + "' - needs LLM verification"
	}

	return TristateNo, "Component '" + component + "' not found in policy's " + matchingCategory + " parts list"
}

// matchGuarded applies the short-string guard: either side at or
// under 3 characters requires exact equality, preventing e.g. "asr"
// from substring-matching "abgasrueckfuehrung".
func matchGuarded(a, b string) bool {
	if len(a) <= 3 || len(b) <= 3 {
		return a == b
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// FindComponentAcrossCategories searches every other covered category
// for component when it wasn't found in its primary category/system,
// skipping categories where it would be explicitly excluded.
func (c *PolicyListChecker) FindComponentAcrossCategories(component, primarySystem string, covered, excluded map[string][]string, description string) (found bool, category string, reason string) {
	primaryLower := toLower(primarySystem)
	for cat, parts := range covered {
		if toLower(cat) == primaryLower || len(parts) == 0 {
			continue
		}
		verdict, why := c.IsComponentInPolicyList(component, cat, covered, description, false)
		if verdict == TristateYes {
			if c.IsComponentExcludedByPolicy(component, cat, description, excluded) {
				continue
			}
			return true, cat, "Cross-category match: component not in '" + primarySystem + "' list but found in '" + cat + "' (" + why + ")"
		}
	}
	return false, "", "Component '" + component + "' not found in any other category's policy list"
}

// BuildExcludedPartsIndex flattens excluded's per-category part lists
// into a lookup of cleaned, alphanumeric-uppercased item codes (or
// description fragments) for fast membership checks during
// reconciliation.
func BuildExcludedPartsIndex(excluded map[string][]string) map[string]struct{} {
	idx := make(map[string]struct{})
	for _, parts := range excluded {
		for _, p := range parts {
			cleaned := cleanAlnumUpper(p)
			if cleaned != "" {
				idx[cleaned] = struct{}{}
			}
		}
	}
	return idx
}
