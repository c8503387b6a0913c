// Package installment computes the dated, amount-split schedule of an
// installment group.
package installment

import (
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledger-engine/internal/amount"
	"github.com/dvloznov/ledger-engine/internal/calendar"
)

// Entry is one scheduled installment. Number starts at 1.
type Entry struct {
	Number int
	Date   civil.Date
	Amount decimal.Decimal
}

// IsMonthly reports whether intervalDays selects calendar-month spacing.
func IsMonthly(intervalDays int) bool {
	return intervalDays >= 28 && intervalDays <= 31
}

// DateOf returns the date of installment number (1-based).
func DateOf(firstDate civil.Date, number, intervalDays int) civil.Date {
	if IsMonthly(intervalDays) {
		return calendar.AddMonthsAnchored(firstDate, number-1, firstDate.Day)
	}
	return firstDate.AddDays((number - 1) * intervalDays)
}

// Schedule splits total into n installments starting at firstDate.
func Schedule(total decimal.Decimal, n int, firstDate civil.Date, intervalDays int) ([]Entry, error) {
	if n < 2 {
		return nil, fmt.Errorf("Schedule: installment count must be at least 2, got %d", n)
	}
	if intervalDays < 1 {
		return nil, fmt.Errorf("Schedule: interval must be at least 1 day, got %d", intervalDays)
	}
	if !total.IsPositive() {
		return nil, fmt.Errorf("Schedule: total must be positive, got %s", total)
	}
	if !firstDate.IsValid() {
		return nil, fmt.Errorf("Schedule: invalid first date %s", firstDate)
	}

	amounts := amount.Split(total, n)
	entries := make([]Entry, n)
	for i := 0; i < n; i++ {
		entries[i] = Entry{
			Number: i + 1,
			Date:   DateOf(firstDate, i+1, intervalDays),
			Amount: amounts[i],
		}
	}
	return entries, nil
}
