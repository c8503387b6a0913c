package importer

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledger-engine/internal/amount"
	"github.com/dvloznov/ledger-engine/internal/calendar"
	"github.com/dvloznov/ledger-engine/internal/domain"
)

// Line is one normalized statement line produced by the model.
type Line struct {
	Date        civil.Date
	Description string
	Amount      decimal.Decimal // IN = positive, OUT = negative
	Currency    string
	Category    string

	// Set when the statement prints the line as installment Number of Total.
	InstallmentNumber int
	InstallmentTotal  int
}

// NewTransaction maps the line onto a one-off ledger transaction.
func (l Line) NewTransaction(accountID string, categoryIDs []string) domain.NewTransaction {
	kind := domain.KindIncome
	if l.Amount.IsNegative() {
		kind = domain.KindExpense
	}
	desc := l.Description
	if l.InstallmentTotal > 0 {
		desc = fmt.Sprintf("%s (%d/%d)", desc, l.InstallmentNumber, l.InstallmentTotal)
	}
	return domain.NewTransaction{
		AccountID:   accountID,
		Kind:        kind,
		Description: domain.SanitizeDescription(desc),
		Amount:      l.Amount.Abs(),
		Date:        l.Date,
		Frequency:   domain.FrequencyOnce,
		CategoryIDs: categoryIDs,
	}
}

var installmentPattern = regexp.MustCompile(`^\s*(\d{1,3})\s*/\s*(\d{1,3})\s*$`)

// transformModelOutput converts raw model output into statement lines.
// Any malformed element fails the whole document so a bad parse is never
// half-imported.
func transformModelOutput(rawOutput map[string]interface{}) ([]Line, error) {
	txAny, ok := rawOutput["transactions"]
	if !ok {
		return nil, fmt.Errorf("transformModelOutput: missing 'transactions' key in model output")
	}
	txSlice, ok := txAny.([]interface{})
	if !ok {
		return nil, fmt.Errorf("transformModelOutput: 'transactions' is %T, want []interface{}", txAny)
	}

	result := make([]Line, 0, len(txSlice))
	for i, item := range txSlice {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("transaction %d: element is %T, want object", i, item)
		}
		line, err := transformLine(obj)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		result = append(result, line)
	}
	return result, nil
}

func transformLine(obj map[string]interface{}) (Line, error) {
	dateStr, err := getStringField(obj, "date", true)
	if err != nil {
		return Line{}, err
	}
	date, err := calendar.Parse(dateStr)
	if err != nil {
		return Line{}, fmt.Errorf("invalid date %q: %w", dateStr, err)
	}
	desc, err := getStringField(obj, "description", true)
	if err != nil {
		return Line{}, err
	}
	amt, err := getDecimalField(obj, "amount")
	if err != nil {
		return Line{}, err
	}
	amt = amount.Round2(amt)
	if amt.IsZero() {
		return Line{}, fmt.Errorf("field %q is zero", "amount")
	}
	if err := amount.Validate(amt); err != nil {
		return Line{}, err
	}

	line := Line{Date: date, Description: desc, Amount: amt}

	if cur, err := getOptionalStringField(obj, "currency"); err != nil {
		return Line{}, err
	} else if cur != nil {
		if line.Currency, err = amount.NormalizeCurrency(*cur); err != nil {
			return Line{}, err
		}
	}
	if cat, err := getOptionalStringField(obj, "category"); err != nil {
		return Line{}, err
	} else if cat != nil {
		line.Category = *cat
	}
	if inst, err := getOptionalStringField(obj, "installment"); err != nil {
		return Line{}, err
	} else if inst != nil {
		m := installmentPattern.FindStringSubmatch(*inst)
		if m == nil {
			return Line{}, fmt.Errorf("invalid installment %q", *inst)
		}
		n, _ := strconv.Atoi(m[1])
		total, _ := strconv.Atoi(m[2])
		if n < 1 || n > total {
			return Line{}, fmt.Errorf("invalid installment %q", *inst)
		}
		line.InstallmentNumber, line.InstallmentTotal = n, total
	}
	return line, nil
}

func getStringField(m map[string]interface{}, key string, required bool) (string, error) {
	v, ok := m[key]
	if !ok {
		if required {
			return "", fmt.Errorf("missing required field %q", key)
		}
		return "", nil
	}
	switch val := v.(type) {
	case string:
		if required && strings.TrimSpace(val) == "" {
			return "", fmt.Errorf("required field %q is empty", key)
		}
		return val, nil
	default:
		return "", fmt.Errorf("field %q has type %T, want string", key, v)
	}
}

func getOptionalStringField(m map[string]interface{}, key string) (*string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return nil, nil
		}
		return &s, nil
	default:
		return nil, fmt.Errorf("field %q has type %T, want string or null", key, v)
	}
}

// getDecimalField accepts json.Number, float64 and numeric strings.
func getDecimalField(m map[string]interface{}, key string) (decimal.Decimal, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return decimal.Zero, fmt.Errorf("missing required field %q", key)
	}
	switch val := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(val.String())
		if err != nil {
			return decimal.Zero, fmt.Errorf("field %q: %w", key, err)
		}
		return d, nil
	case float64:
		return decimal.NewFromFloat(val), nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(val))
		if err != nil {
			return decimal.Zero, fmt.Errorf("field %q: %w", key, err)
		}
		return d, nil
	default:
		return decimal.Zero, fmt.Errorf("field %q has type %T, want number", key, v)
	}
}
