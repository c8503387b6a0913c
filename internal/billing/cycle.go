// Package billing resolves which credit-card statement a purchase belongs to.
package billing

import (
	"cloud.google.com/go/civil"

	"github.com/dvloznov/ledger-engine/internal/calendar"
	"github.com/dvloznov/ledger-engine/internal/installment"
)

// ClosingDateFor returns the closing date of the statement that txDate falls in.
// A purchase made on the closing day itself belongs to that statement.
func ClosingDateFor(txDate civil.Date, closingDay int) civil.Date {
	d := min(closingDay, calendar.DaysIn(txDate.Year, txDate.Month))
	if txDate.Day <= d {
		return civil.Date{Year: txDate.Year, Month: txDate.Month, Day: d}
	}
	return calendar.AddMonthsAnchored(txDate, 1, closingDay)
}

// InstallmentClosingDate resolves the statement of installment number of a
// group. Monthly groups follow the purchase's statement forward one cycle per
// installment; fixed-interval groups resolve each installment by its own date.
func InstallmentClosingDate(purchaseDate civil.Date, number, intervalDays int, ownDate civil.Date, closingDay int) civil.Date {
	if !installment.IsMonthly(intervalDays) {
		return ClosingDateFor(ownDate, closingDay)
	}
	first := ClosingDateFor(purchaseDate, closingDay)
	return calendar.AddMonthsAnchored(first, number-1, closingDay)
}

// IsClosed reports whether a statement closing on closing has already closed
// as of today.
func IsClosed(closing, today civil.Date) bool {
	return closing.Before(today)
}

// PaymentDateFor returns the first paymentDay strictly after closing.
func PaymentDateFor(closing civil.Date, paymentDay int) civil.Date {
	due := calendar.AddMonthsAnchored(closing, 0, paymentDay)
	if due.After(closing) {
		return due
	}
	return calendar.AddMonthsAnchored(closing, 1, paymentDay)
}

// Cycle is one statement period. Purchases dated in [Start, Closing] belong to it.
type Cycle struct {
	Start   civil.Date `json:"start"`
	Closing civil.Date `json:"closing"`
	Payment civil.Date `json:"payment"`
}

// CycleFor returns the statement cycle that contains date.
func CycleFor(date civil.Date, closingDay, paymentDay int) Cycle {
	closing := ClosingDateFor(date, closingDay)
	prev := calendar.AddMonthsAnchored(closing, -1, closingDay)
	return Cycle{
		Start:   prev.AddDays(1),
		Closing: closing,
		Payment: PaymentDateFor(closing, paymentDay),
	}
}
