package coverage

import (
	"testing"

	"github.com/shopspring/decimal"
)

// moneyOf parses a decimal literal for test fixtures, failing the test
// immediately on a malformed literal rather than propagating a zero
// value silently into an assertion.
func moneyOf(t *testing.T, literal string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(literal)
	if err != nil {
		t.Fatalf("invalid decimal literal %q: %v", literal, err)
	}
	return d
}
