// Package amount holds the money arithmetic shared by the ledger: two-decimal
// rounding, installment splitting, and the boundary validation of amounts.
package amount

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxMagnitude is the largest absolute amount accepted at the boundary.
var MaxMagnitude = decimal.RequireFromString("999999999.99")

// Round2 rounds to two decimal places, half away from zero.
func Round2(x decimal.Decimal) decimal.Decimal {
	return x.Round(2)
}

// Split divides total into n parts that sum exactly to Round2(total).
// The first n-1 parts are Round2(total/n); the last part absorbs the remainder.
func Split(total decimal.Decimal, n int) []decimal.Decimal {
	if n < 1 {
		panic(fmt.Sprintf("amount.Split: n must be >= 1, got %d", n))
	}
	parts := make([]decimal.Decimal, n)
	base := Round2(total.Div(decimal.NewFromInt(int64(n))))
	for i := 0; i < n-1; i++ {
		parts[i] = base
	}
	parts[n-1] = Round2(total.Sub(base.Mul(decimal.NewFromInt(int64(n - 1)))))
	return parts
}

// Sum adds the given amounts.
func Sum(xs []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, x := range xs {
		total = total.Add(x)
	}
	return total
}

// Validate checks an amount against the validation-layer contract:
// at most two decimal places and |x| <= MaxMagnitude.
func Validate(x decimal.Decimal) error {
	if x.Abs().GreaterThan(MaxMagnitude) {
		return fmt.Errorf("amount %s exceeds %s", x, MaxMagnitude)
	}
	if !x.Equal(Round2(x)) {
		return fmt.Errorf("amount %s has more than two decimal places", x)
	}
	return nil
}

// Parse reads a user-entered amount. Both "1234.56" and "1234,56" are accepted.
func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("Parse: %w", err)
	}
	if err := Validate(d); err != nil {
		return decimal.Zero, fmt.Errorf("Parse: %w", err)
	}
	return d, nil
}

// ToCents converts a two-decimal amount to integer cents.
func ToCents(x decimal.Decimal) (int64, error) {
	c := x.Shift(2)
	if !c.IsInteger() {
		return 0, fmt.Errorf("ToCents: %s is not a whole number of cents", x)
	}
	return c.IntPart(), nil
}

// FromCents converts integer cents to a decimal amount.
func FromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}
