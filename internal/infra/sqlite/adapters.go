package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/ledger-engine/internal/domain"
	"github.com/dvloznov/ledger-engine/internal/ledger"
	"github.com/dvloznov/ledger-engine/internal/position"
)

var (
	_ ledger.Tx   = (*Tx)(nil)
	_ position.Tx = (*Tx)(nil)
)

type ledgerStore struct{ s *Store }

func (l ledgerStore) WithTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	return l.s.withTx(ctx, func(tx *Tx) error { return fn(tx) })
}

type positionStore struct{ s *Store }

func (p positionStore) WithTx(ctx context.Context, fn func(tx position.Tx) error) error {
	return p.s.withTx(ctx, func(tx *Tx) error { return fn(tx) })
}

// Ledger returns the store as a ledger.Store.
func (s *Store) Ledger() ledger.Store { return ledgerStore{s} }

// Positions returns the store as a position.Store.
func (s *Store) Positions() position.Store { return positionStore{s} }

// Changes is every row modified after a watermark.
type Changes struct {
	Accounts     []domain.Account
	Transactions []domain.Transaction
	Events       []domain.InvestmentEvent
	// Watermark is the latest updated_at seen, or the input when nothing changed.
	Watermark time.Time
}

// ChangesSince reads, in one consistent transaction, every row updated after since.
func (s *Store) ChangesSince(ctx context.Context, since time.Time) (*Changes, error) {
	var out *Changes
	err := s.withTx(ctx, func(tx *Tx) error {
		c := &Changes{Watermark: since}
		var err error
		if c.Accounts, err = tx.ChangedAccountsSince(ctx, since); err != nil {
			return err
		}
		if c.Transactions, err = tx.ChangedTransactionsSince(ctx, since); err != nil {
			return err
		}
		if c.Events, err = tx.ChangedEventsSince(ctx, since); err != nil {
			return err
		}
		for _, t := range c.Transactions {
			if t.UpdatedAt.After(c.Watermark) {
				c.Watermark = t.UpdatedAt
			}
		}
		for _, e := range c.Events {
			if e.UpdatedAt.After(c.Watermark) {
				c.Watermark = e.UpdatedAt
			}
		}
		if w, err := tx.maxAccountUpdate(ctx); err == nil && w.After(c.Watermark) && len(c.Accounts) > 0 {
			c.Watermark = w
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ChangesSince: %w", err)
	}
	return out, nil
}

// ChangedAccountsSince returns every account updated after since.
func (t *Tx) ChangedAccountsSince(ctx context.Context, since time.Time) ([]domain.Account, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE updated_at > ? ORDER BY updated_at, account_id`,
		formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("ChangedAccountsSince: %w", err)
	}
	defer rows.Close()

	var out []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("ChangedAccountsSince: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (t *Tx) maxAccountUpdate(ctx context.Context) (time.Time, error) {
	var s string
	if err := t.tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(updated_at), '') FROM accounts`).Scan(&s); err != nil {
		return time.Time{}, err
	}
	if s == "" {
		return time.Time{}, nil
	}
	return parseTime(s)
}
