package ledger

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledger-engine/internal/billing"
	"github.com/dvloznov/ledger-engine/internal/calendar"
	"github.com/dvloznov/ledger-engine/internal/domain"
)

// A transaction's resolved closing date is never more than two cycles after
// its own date, so candidates are loaded from this far before the period.
const statementLookbackDays = 62

// CurrentStatementTotal sums the ACTIVE transactions of a credit card whose
// resolved closing date falls in [start, end). Expenses count positive and
// incomes negative. Installments resolve through their purchase's schedule,
// not their own date.
func (l *Ledger) CurrentStatementTotal(ctx context.Context, userID, accountID string, start, end civil.Date) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := l.store.WithTx(ctx, func(tx Tx) error {
		var err error
		total, err = openTotal(ctx, tx, userID, accountID, start, end)
		return err
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("CurrentStatementTotal: %w", err)
	}
	return total, nil
}

// AmountAlreadySettled sums the SETTLED installments of the account dated in
// [start, end). These were consumed by a closed statement and must not
// inflate the open balance. Expenses count positive and incomes negative.
func (l *Ledger) AmountAlreadySettled(ctx context.Context, userID, accountID string, start, end civil.Date) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := l.store.WithTx(ctx, func(tx Tx) error {
		var err error
		total, err = settledTotal(ctx, tx, userID, accountID, start, end)
		return err
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("AmountAlreadySettled: %w", err)
	}
	return total, nil
}

// StatementSummary describes one billing cycle of a credit card.
type StatementSummary struct {
	AccountID string          `json:"account_id"`
	Cycle     billing.Cycle   `json:"cycle"`
	Open      decimal.Decimal `json:"open"`
	Settled   decimal.Decimal `json:"settled"`
	Balance   decimal.Decimal `json:"balance"`
}

// Statement summarizes the cycle that contains date.
func (l *Ledger) Statement(ctx context.Context, userID, accountID string, date civil.Date) (*StatementSummary, error) {
	var s *StatementSummary
	err := l.store.WithTx(ctx, func(tx Tx) error {
		acc, err := creditCard(ctx, tx, userID, accountID)
		if err != nil {
			return err
		}
		cycle := billing.CycleFor(date, acc.Billing.ClosingDay, acc.Billing.PaymentDay)
		end := cycle.Closing.AddDays(1)

		open, err := openTotal(ctx, tx, userID, accountID, cycle.Closing, end)
		if err != nil {
			return err
		}
		settled, err := settledTotal(ctx, tx, userID, accountID, cycle.Start, end)
		if err != nil {
			return err
		}
		s = &StatementSummary{
			AccountID: acc.ID,
			Cycle:     cycle,
			Open:      open,
			Settled:   settled,
			Balance:   acc.StoredBalance,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("Statement: %w", err)
	}
	return s, nil
}

func creditCard(ctx context.Context, tx Tx, userID, accountID string) (*domain.Account, error) {
	acc, err := tx.GetAccount(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}
	if !acc.IsCreditCard() {
		return nil, domain.Invalid("account_id", "statements exist only for credit card accounts")
	}
	return acc, nil
}

func openTotal(ctx context.Context, tx Tx, userID, accountID string, start, end civil.Date) (decimal.Decimal, error) {
	acc, err := creditCard(ctx, tx, userID, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	closingDay := acc.Billing.ClosingDay

	from := start.AddDays(-statementLookbackDays)
	rows, err := tx.ListTransactions(ctx, TransactionFilter{
		UserID:    userID,
		AccountID: accountID,
		States:    []domain.State{domain.StateActive},
		From:      &from,
		To:        &end,
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("list candidates: %w", err)
	}

	groups := map[string]*domain.InstallmentGroup{}
	total := decimal.Zero
	for i := range rows {
		t := &rows[i]
		var closing civil.Date
		if t.IsInstallment() {
			g, ok := groups[t.Installment.GroupID]
			if !ok {
				g, err = tx.GetGroup(ctx, userID, t.Installment.GroupID)
				if err != nil {
					return decimal.Zero, fmt.Errorf("group of %s: %w", t.ID, err)
				}
				groups[g.ID] = g
			}
			closing = billing.InstallmentClosingDate(g.FirstDate, t.Installment.Number, g.IntervalDays, t.Date, closingDay)
		} else {
			closing = billing.ClosingDateFor(t.Date, closingDay)
		}
		if calendar.InRange(closing, start, end) {
			total = total.Sub(t.Delta())
		}
	}
	return total, nil
}

func settledTotal(ctx context.Context, tx Tx, userID, accountID string, start, end civil.Date) (decimal.Decimal, error) {
	if _, err := tx.GetAccount(ctx, userID, accountID); err != nil {
		return decimal.Zero, err
	}
	rows, err := tx.ListTransactions(ctx, TransactionFilter{
		UserID:    userID,
		AccountID: accountID,
		States:    []domain.State{domain.StateSettled},
		From:      &start,
		To:        &end,
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("list settled: %w", err)
	}
	total := decimal.Zero
	for i := range rows {
		if rows[i].IsInstallment() {
			total = total.Sub(rows[i].Delta())
		}
	}
	return total, nil
}
