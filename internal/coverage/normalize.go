package coverage

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// umlautTable is the fixed translation table the policy-list matcher
// relies on for substring comparisons. Callers depend on these exact
// mappings, not just on "some" normalization, so the table is kept
// explicit rather than fully derived.
var umlautTable = map[rune]string{
	'ä': "a", 'ö': "o", 'ü': "u",
	'Ä': "A", 'Ö': "O", 'Ü': "U",
	'é': "e", 'è': "e", 'ê': "e",
	'à': "a", 'â': "a",
	'î': "i", 'ï': "i",
	'ô': "o", 'û': "u", 'ù': "u",
	'ç': "c", 'ß': "ss",
}

// NormalizeUmlauts folds umlauts, accented Latin characters, and German
// ß/ss for fuzzy substring matching. Idempotent:
// NormalizeUmlauts(NormalizeUmlauts(s)) == NormalizeUmlauts(s).
func NormalizeUmlauts(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if rep, ok := umlautTable[r]; ok {
			b.WriteString(rep)
			continue
		}
		b.WriteRune(r)
	}
	out := b.String()

	// Catch combining-mark forms the fixed table doesn't enumerate
	// (e.g. NFD-decomposed accented input) by stripping remaining
	// non-spacing marks after NFKD decomposition.
	decomposed := norm.NFKD.String(out)
	var stripped strings.Builder
	stripped.Grow(len(decomposed))
	for _, r := range decomposed {
		if isNonSpacingMark(r) {
			continue
		}
		stripped.WriteRune(r)
	}
	return stripped.String()
}

// isNonSpacingMark reports whether r is in the Unicode "Mn" combining
// mark range commonly produced by NFKD decomposition of accented Latin
// letters.
func isNonSpacingMark(r rune) bool {
	return r >= 0x0300 && r <= 0x036F
}
