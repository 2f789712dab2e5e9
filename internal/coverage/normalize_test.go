package coverage

import "testing"

func TestNormalizeUmlauts(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercase umlaut", "Bremssättel", "Bremssattel"},
		{"uppercase umlaut", "ÜBERHOLUNG", "UBERHOLUNG"},
		{"umlauts in compound word", "Abgasrückführung", "Abgasruckfuhrung"},
		{"no accents", "turbocharger", "turbocharger"},
		{"nfd decomposed input", "abgasrückführung", "abgasruckfuhrung"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeUmlauts(tt.input); got != tt.want {
				t.Errorf("NormalizeUmlauts(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeUmlauts_Idempotent(t *testing.T) {
	inputs := []string{"Bremssättel", "Überhölung", "straße", "no-accents-here"}
	for _, s := range inputs {
		once := NormalizeUmlauts(s)
		twice := NormalizeUmlauts(once)
		if once != twice {
			t.Errorf("NormalizeUmlauts not idempotent for %q: once=%q twice=%q", s, once, twice)
		}
	}
}
