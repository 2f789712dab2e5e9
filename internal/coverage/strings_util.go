package coverage

import "strings"

func toLower(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// cleanAlnumUpper strips non-alphanumeric characters and upper-cases,
// matching the original's "".join(c for c in code if c.isalnum()).upper()
// idiom used to compare item codes robustly.
func cleanAlnumUpper(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' {
			b.WriteRune(r)
		}
	}
	return strings.ToUpper(b.String())
}

func alnumOrSpaceUpper(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r == ' ' {
			b.WriteRune(r)
		}
	}
	return strings.ToUpper(b.String())
}

func underscoreKey(lower string) string { return strings.ReplaceAll(lower, " ", "_") }
func spaceKey(lower string) string      { return strings.ReplaceAll(lower, "_", " ") }
