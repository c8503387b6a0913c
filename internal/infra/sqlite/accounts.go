package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledger-engine/internal/amount"
	"github.com/dvloznov/ledger-engine/internal/domain"
)

// Tx is a database transaction with the ledger and position repositories on it.
type Tx struct {
	tx   *sql.Tx
	caps Capabilities
}

const accountColumns = `account_id, user_id, name, kind, currency, balance_cents,
	closing_day, payment_day, active, created_at`

// InsertAccount inserts a new account row.
func (t *Tx) InsertAccount(ctx context.Context, a *domain.Account) error {
	balance, err := cents(a.StoredBalance)
	if err != nil {
		return fmt.Errorf("InsertAccount: %w", err)
	}
	var closing, payment sql.NullInt64
	if a.Billing != nil {
		closing = nullInt(a.Billing.ClosingDay, true)
		payment = nullInt(a.Billing.PaymentDay, true)
	}
	now := formatTime(a.CreatedAt)
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Name, string(a.Kind), a.Currency, balance,
		closing, payment, boolInt(a.Active), now, now)
	if err != nil {
		return fmt.Errorf("InsertAccount: %w", err)
	}
	return nil
}

// GetAccount loads an account owned by userID.
func (t *Tx) GetAccount(ctx context.Context, userID, accountID string) (*domain.Account, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE account_id = ? AND user_id = ?`,
		accountID, userID)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("account", accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("GetAccount: %w", err)
	}
	return a, nil
}

// ListAccounts returns every account of the user ordered by name.
func (t *Tx) ListAccounts(ctx context.Context, userID string) ([]domain.Account, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = ? ORDER BY name, account_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("ListAccounts: %w", err)
	}
	defer rows.Close()

	var out []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("ListAccounts: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// AdjustBalance applies delta relative to the stored value, never as a
// read-then-write.
func (t *Tx) AdjustBalance(ctx context.Context, userID, accountID string, delta decimal.Decimal) error {
	c, err := cents(delta)
	if err != nil {
		return fmt.Errorf("AdjustBalance: %w", err)
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE accounts SET balance_cents = balance_cents + ?, updated_at = ?
		WHERE account_id = ? AND user_id = ? AND kind <> 'INVESTMENT'`,
		c, formatTime(time.Now()), accountID, userID)
	if err != nil {
		return fmt.Errorf("AdjustBalance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("AdjustBalance: %w", err)
	}
	if n == 0 {
		return domain.NotFound("account", accountID)
	}
	return nil
}

// DeactivateAccount marks an account closed.
func (t *Tx) DeactivateAccount(ctx context.Context, userID, accountID string) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE accounts SET active = 0, updated_at = ? WHERE account_id = ? AND user_id = ?`,
		formatTime(time.Now()), accountID, userID)
	if err != nil {
		return fmt.Errorf("DeactivateAccount: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("DeactivateAccount: %w", err)
	}
	if n == 0 {
		return domain.NotFound("account", accountID)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(s scanner) (*domain.Account, error) {
	var (
		a                domain.Account
		kind             string
		balance          int64
		closing, payment sql.NullInt64
		active           int
		createdAt        string
	)
	if err := s.Scan(&a.ID, &a.UserID, &a.Name, &kind, &a.Currency, &balance,
		&closing, &payment, &active, &createdAt); err != nil {
		return nil, err
	}
	a.Kind = domain.AccountKind(kind)
	a.StoredBalance = amount.FromCents(balance)
	a.Active = active != 0
	if closing.Valid && payment.Valid {
		a.Billing = &domain.BillingDays{ClosingDay: int(closing.Int64), PaymentDay: int(payment.Int64)}
	}
	var err error
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &a, nil
}
