package ledger

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/ledger-engine/internal/domain"
	"github.com/dvloznov/ledger-engine/internal/logger"
	"github.com/dvloznov/ledger-engine/internal/recurrence"
)

// Create records a transaction and applies its balance delta in the same
// storage transaction.
func (l *Ledger) Create(ctx context.Context, userID string, in domain.NewTransaction) (*domain.Transaction, error) {
	if err := validateNew(in); err != nil {
		return nil, err
	}
	if in.Frequency == "" {
		in.Frequency = domain.FrequencyOnce
	}

	now := l.now().UTC()
	t := &domain.Transaction{
		ID:                 l.newID(),
		UserID:             userID,
		AccountID:          in.AccountID,
		Kind:               in.Kind,
		Description:        in.Description,
		Amount:             in.Amount,
		Date:               in.Date,
		Frequency:          in.Frequency,
		NextRecurrenceDate: recurrence.NextPtr(in.Date, in.Frequency),
		State:              domain.StateActive,
		CategoryIDs:        in.CategoryIDs,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	var cats []string
	err := l.store.WithTx(ctx, func(tx Tx) error {
		if _, err := loadWritableAccount(ctx, tx, userID, in.AccountID); err != nil {
			return err
		}
		var err error
		cats, err = insertWithBalance(ctx, tx, t)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("Create: %w", err)
	}
	t.CategoryIDs = cats

	log := logger.FromContext(ctx)
	log.Info().
		Str("transaction_id", t.ID).
		Str("account_id", t.AccountID).
		Str("kind", string(t.Kind)).
		Str("amount", t.Amount.String()).
		Msg("Transaction created")
	return t, nil
}

// insertWithBalance persists t, links its categories and, when ACTIVE,
// applies its delta to the account. It returns the linked category ids and
// leaves t untouched so a retried storage transaction starts clean.
func insertWithBalance(ctx context.Context, tx Tx, t *domain.Transaction) ([]string, error) {
	if err := t.CheckState(); err != nil {
		return nil, err
	}
	if err := tx.InsertTransaction(ctx, t); err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}
	cats := t.CategoryIDs
	if len(cats) == 0 {
		catID, err := tx.EnsureCategory(ctx, t.UserID, DefaultCategory)
		if err != nil {
			return nil, fmt.Errorf("default category: %w", err)
		}
		cats = []string{catID}
	}
	if err := tx.SetTransactionCategories(ctx, t.ID, cats); err != nil {
		return nil, fmt.Errorf("link categories: %w", err)
	}
	if t.State == domain.StateActive {
		if err := tx.AdjustBalance(ctx, t.UserID, t.AccountID, t.Delta()); err != nil {
			return nil, fmt.Errorf("adjust balance: %w", err)
		}
	}
	return cats, nil
}

// Delete removes a transaction from the balance.
//
// ACTIVE transactions become REVERSED and their delta is undone. SETTLED
// installments are physically removed without touching the balance, since
// the statement already consumed them. Deleting a REVERSED transaction is a
// state conflict.
func (l *Ledger) Delete(ctx context.Context, userID, txID string) (*domain.Transaction, error) {
	var t *domain.Transaction
	err := l.store.WithTx(ctx, func(tx Tx) error {
		var err error
		t, err = tx.GetTransaction(ctx, userID, txID)
		if err != nil {
			return err
		}

		switch t.State {
		case domain.StateReversed:
			return &domain.ConflictError{Entity: "transaction", ID: t.ID, State: string(t.State), Reason: "already reversed"}
		case domain.StateSettled:
			return tx.DeleteTransaction(ctx, userID, t.ID)
		case domain.StateActive:
			if err := tx.SetTransactionState(ctx, userID, t.ID, domain.StateReversed); err != nil {
				return fmt.Errorf("reverse: %w", err)
			}
			if t.NextRecurrenceDate != nil {
				if err := tx.SetNextRecurrence(ctx, userID, t.ID, nil); err != nil {
					return fmt.Errorf("stop recurrence: %w", err)
				}
			}
			if err := tx.AdjustBalance(ctx, userID, t.AccountID, t.Delta().Neg()); err != nil {
				return fmt.Errorf("adjust balance: %w", err)
			}
			return nil
		}
		return domain.Invalid("state", "unknown state %q", string(t.State))
	})
	if err != nil {
		return nil, fmt.Errorf("Delete: %w", err)
	}

	prev := t.State
	if prev == domain.StateActive {
		t.State = domain.StateReversed
		t.NextRecurrenceDate = nil
	}
	log := logger.FromContext(ctx)
	log.Info().
		Str("transaction_id", t.ID).
		Str("previous_state", string(prev)).
		Msg("Transaction deleted")
	return t, nil
}

// MarkInstallmentSettled flips an ACTIVE installment to SETTLED. On a credit
// card the installment's amount is credited back to the available limit;
// other account kinds keep their balance and only log a warning.
func (l *Ledger) MarkInstallmentSettled(ctx context.Context, userID, txID string) (*domain.Transaction, error) {
	log := logger.FromContext(ctx)

	var t *domain.Transaction
	err := l.store.WithTx(ctx, func(tx Tx) error {
		var err error
		t, err = tx.GetTransaction(ctx, userID, txID)
		if err != nil {
			return err
		}
		if !t.IsInstallment() {
			return &domain.ConflictError{Entity: "transaction", ID: t.ID, State: string(t.State), Reason: "only installments can be settled"}
		}
		if t.State != domain.StateActive {
			return &domain.ConflictError{Entity: "transaction", ID: t.ID, State: string(t.State), Reason: "only active installments can be settled"}
		}

		acc, err := tx.GetAccount(ctx, userID, t.AccountID)
		if err != nil {
			return err
		}
		if err := tx.SetTransactionState(ctx, userID, t.ID, domain.StateSettled); err != nil {
			return fmt.Errorf("settle: %w", err)
		}
		if !acc.IsCreditCard() {
			log.Warn().
				Str("transaction_id", t.ID).
				Str("account_id", acc.ID).
				Str("account_kind", string(acc.Kind)).
				Msg("Settled installment on a non credit card account, skipping credit")
			return nil
		}
		if err := tx.AdjustBalance(ctx, userID, acc.ID, t.Delta().Neg()); err != nil {
			return fmt.Errorf("credit back: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("MarkInstallmentSettled: %w", err)
	}

	t.State = domain.StateSettled
	log.Info().Str("transaction_id", t.ID).Msg("Installment settled")
	return t, nil
}

// Get returns a single transaction of the user.
func (l *Ledger) Get(ctx context.Context, userID, txID string) (*domain.Transaction, error) {
	var t *domain.Transaction
	err := l.store.WithTx(ctx, func(tx Tx) error {
		var err error
		t, err = tx.GetTransaction(ctx, userID, txID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return t, nil
}

// ListOptions narrows ListByAccount.
type ListOptions struct {
	IncludeInactive bool
	From            *civil.Date
	To              *civil.Date
	Limit           int
}

// ListByAccount returns the account's transactions ordered by date.
func (l *Ledger) ListByAccount(ctx context.Context, userID, accountID string, opts ListOptions) ([]domain.Transaction, error) {
	f := TransactionFilter{
		UserID:    userID,
		AccountID: accountID,
		From:      opts.From,
		To:        opts.To,
		Limit:     opts.Limit,
	}
	if !opts.IncludeInactive {
		f.States = []domain.State{domain.StateActive}
	}

	var out []domain.Transaction
	err := l.store.WithTx(ctx, func(tx Tx) error {
		if _, err := tx.GetAccount(ctx, userID, accountID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListTransactions(ctx, f)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ListByAccount: %w", err)
	}
	return out, nil
}

func validateNew(in domain.NewTransaction) error {
	if in.AccountID == "" {
		return domain.Invalid("account_id", "is required")
	}
	if !in.Amount.IsPositive() {
		return domain.Invalid("amount", "must be greater than zero, got %s", in.Amount)
	}
	switch in.Kind {
	case domain.KindExpense, domain.KindIncome:
	default:
		return domain.Invalid("kind", "unknown transaction kind %q", string(in.Kind))
	}
	switch in.Frequency {
	case "", domain.FrequencyOnce, domain.FrequencyWeekly, domain.FrequencyMonthly, domain.FrequencyAnnual:
	default:
		return domain.Invalid("frequency", "unknown frequency %q", string(in.Frequency))
	}
	if !in.Date.IsValid() {
		return domain.Invalid("date", "invalid date %s", in.Date)
	}
	return nil
}
