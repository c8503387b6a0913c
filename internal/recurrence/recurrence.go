// Package recurrence resolves the next occurrence date of a recurring transaction.
package recurrence

import (
	"cloud.google.com/go/civil"

	"github.com/dvloznov/ledger-engine/internal/calendar"
	"github.com/dvloznov/ledger-engine/internal/domain"
)

// Next returns the occurrence following date for the given frequency.
// The second result is false for one-off transactions.
//
// MONTHLY adds one calendar month clamped to the month end, so a series
// started on the 31st settles on shorter month ends once it passes one.
func Next(date civil.Date, freq domain.Frequency) (civil.Date, bool) {
	switch freq {
	case domain.FrequencyWeekly:
		return date.AddDays(7), true
	case domain.FrequencyMonthly:
		return calendar.AddMonthsClamped(date, 1), true
	case domain.FrequencyAnnual:
		return calendar.AddYearsClamped(date, 1), true
	}
	return civil.Date{}, false
}

// NextPtr is Next returning nil when there is no next occurrence.
func NextPtr(date civil.Date, freq domain.Frequency) *civil.Date {
	n, ok := Next(date, freq)
	if !ok {
		return nil
	}
	return &n
}
