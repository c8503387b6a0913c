package ledger

import (
	"context"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledger-engine/internal/amount"
	"github.com/dvloznov/ledger-engine/internal/billing"
	"github.com/dvloznov/ledger-engine/internal/domain"
	"github.com/dvloznov/ledger-engine/internal/installment"
	"github.com/dvloznov/ledger-engine/internal/logger"
)

// InstallmentOutcome reports what happened to one scheduled installment.
type InstallmentOutcome struct {
	Number        int          `json:"number"`
	TransactionID string       `json:"transaction_id,omitempty"`
	State         domain.State `json:"state,omitempty"`
	Err           error        `json:"-"`
}

// GroupResult is the outcome of CreateInstallmentGroup.
type GroupResult struct {
	Group        *domain.InstallmentGroup `json:"group"`
	Installments []InstallmentOutcome     `json:"installments"`
}

// Failed returns the number of installments that could not be materialized.
func (r *GroupResult) Failed() int {
	n := 0
	for _, o := range r.Installments {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// CreateInstallmentGroup persists the group and materializes each installment
// in its own storage transaction. An installment whose credit card statement
// already closed is stored SETTLED and does not touch the balance. A failing
// installment is logged and the rest are still attempted.
func (l *Ledger) CreateInstallmentGroup(ctx context.Context, userID string, in domain.NewInstallmentGroup) (*GroupResult, error) {
	log := logger.FromContext(ctx)

	switch in.Kind {
	case domain.KindExpense, domain.KindIncome:
	default:
		return nil, domain.Invalid("kind", "unknown transaction kind %q", string(in.Kind))
	}
	entries, err := installment.Schedule(in.TotalAmount, in.InstallmentCount, in.FirstDate, in.IntervalDays)
	if err != nil {
		return nil, domain.Invalid("installments", "%v", err)
	}

	g := &domain.InstallmentGroup{
		ID:                   l.newID(),
		UserID:               userID,
		AccountID:            in.AccountID,
		Kind:                 in.Kind,
		Description:          in.Description,
		TotalAmount:          in.TotalAmount,
		InstallmentCount:     in.InstallmentCount,
		PerInstallmentAmount: entries[0].Amount,
		FirstDate:            in.FirstDate,
		IntervalDays:         in.IntervalDays,
		CategoryIDs:          in.CategoryIDs,
		CreatedAt:            l.now().UTC(),
	}

	var acc *domain.Account
	err = l.store.WithTx(ctx, func(tx Tx) error {
		var err error
		acc, err = loadWritableAccount(ctx, tx, userID, in.AccountID)
		if err != nil {
			return err
		}
		return tx.InsertGroup(ctx, g)
	})
	if err != nil {
		return nil, fmt.Errorf("CreateInstallmentGroup: %w", err)
	}

	today := l.today()
	result := &GroupResult{Group: g, Installments: make([]InstallmentOutcome, 0, len(entries))}
	recorded := make([]decimal.Decimal, 0, len(entries))
	for _, e := range entries {
		state := domain.StateActive
		if acc.IsCreditCard() {
			closing := billing.InstallmentClosingDate(g.FirstDate, e.Number, g.IntervalDays, e.Date, acc.Billing.ClosingDay)
			if billing.IsClosed(closing, today) {
				state = domain.StateSettled
			}
		}

		now := l.now().UTC()
		t := &domain.Transaction{
			ID:          l.newID(),
			UserID:      userID,
			AccountID:   g.AccountID,
			Kind:        g.Kind,
			Description: g.Description,
			Amount:      e.Amount,
			Date:        e.Date,
			Frequency:   domain.FrequencyOnce,
			Installment: &domain.InstallmentRef{GroupID: g.ID, Number: e.Number, Total: g.InstallmentCount},
			State:       state,
			CategoryIDs: g.CategoryIDs,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		err := l.store.WithTx(ctx, func(tx Tx) error {
			_, err := insertWithBalance(ctx, tx, t)
			return err
		})
		if err != nil {
			log.Error().Err(err).
				Str("group_id", g.ID).
				Int("installment", e.Number).
				Msg("Failed to materialize installment")
			result.Installments = append(result.Installments, InstallmentOutcome{Number: e.Number, Err: err})
			continue
		}
		result.Installments = append(result.Installments, InstallmentOutcome{Number: e.Number, TransactionID: t.ID, State: state})
		recorded = append(recorded, e.Amount)
	}

	log.Info().
		Str("group_id", g.ID).
		Int("installments", len(entries)).
		Int("failed", result.Failed()).
		Str("recorded", amount.Sum(recorded).String()).
		Msg("Installment group created")
	return result, nil
}

// UpdateGroupMetadata changes the description, account or categories of a
// group and all of its installments. Moving the group to another account
// moves the balance effect of its ACTIVE installments with it.
func (l *Ledger) UpdateGroupMetadata(ctx context.Context, userID, groupID string, meta domain.GroupMetadata) (*domain.InstallmentGroup, error) {
	var g *domain.InstallmentGroup
	err := l.store.WithTx(ctx, func(tx Tx) error {
		var err error
		g, err = tx.GetGroup(ctx, userID, groupID)
		if err != nil {
			return err
		}

		oldAccount := g.AccountID
		if meta.Description != nil {
			g.Description = domain.SanitizeDescription(*meta.Description)
		}
		if meta.CategoryIDs != nil {
			g.CategoryIDs = slices.Clone(meta.CategoryIDs)
		}
		if meta.AccountID != nil && *meta.AccountID != oldAccount {
			if _, err := loadWritableAccount(ctx, tx, userID, *meta.AccountID); err != nil {
				return err
			}
			g.AccountID = *meta.AccountID
		}
		if err := tx.UpdateGroup(ctx, g); err != nil {
			return fmt.Errorf("update group: %w", err)
		}

		members, err := tx.ListTransactions(ctx, TransactionFilter{UserID: userID, GroupID: g.ID})
		if err != nil {
			return fmt.Errorf("list installments: %w", err)
		}
		for i := range members {
			t := &members[i]
			if t.State == domain.StateActive && g.AccountID != oldAccount {
				if err := tx.AdjustBalance(ctx, userID, oldAccount, t.Delta().Neg()); err != nil {
					return fmt.Errorf("move balance out: %w", err)
				}
				if err := tx.AdjustBalance(ctx, userID, g.AccountID, t.Delta()); err != nil {
					return fmt.Errorf("move balance in: %w", err)
				}
			}
			t.Description = g.Description
			t.AccountID = g.AccountID
			if err := tx.UpdateTransactionDetails(ctx, t); err != nil {
				return fmt.Errorf("update installment %d: %w", t.Installment.Number, err)
			}
			if meta.CategoryIDs != nil {
				if err := tx.SetTransactionCategories(ctx, t.ID, g.CategoryIDs); err != nil {
					return fmt.Errorf("categories of installment %d: %w", t.Installment.Number, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("UpdateGroupMetadata: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().Str("group_id", g.ID).Msg("Installment group updated")
	return g, nil
}

// GetGroup returns an installment group with its installments.
func (l *Ledger) GetGroup(ctx context.Context, userID, groupID string) (*domain.InstallmentGroup, []domain.Transaction, error) {
	var (
		g       *domain.InstallmentGroup
		members []domain.Transaction
	)
	err := l.store.WithTx(ctx, func(tx Tx) error {
		var err error
		g, err = tx.GetGroup(ctx, userID, groupID)
		if err != nil {
			return err
		}
		members, err = tx.ListTransactions(ctx, TransactionFilter{UserID: userID, GroupID: groupID})
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("GetGroup: %w", err)
	}
	return g, members, nil
}
