package amount

import (
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// NormalizeCurrency upper-cases an ISO 4217 code and checks that it is known.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "", fmt.Errorf("currency code is required")
	}
	if money.GetCurrency(code) == nil {
		return "", fmt.Errorf("unknown currency %q", code)
	}
	return code, nil
}

// Format renders x in the currency's display format, e.g. "R$1.234,56".
// Amounts that do not fit the currency's minor unit fall back to a plain string.
func Format(x decimal.Decimal, code string) string {
	cur := money.GetCurrency(code)
	if cur == nil {
		return x.StringFixed(2) + " " + code
	}
	minor := x.Shift(int32(cur.Fraction))
	if !minor.IsInteger() {
		return x.String() + " " + code
	}
	return money.New(minor.IntPart(), cur.Code).Display()
}
