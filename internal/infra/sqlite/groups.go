package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/ledger-engine/internal/amount"
	"github.com/dvloznov/ledger-engine/internal/domain"
)

// EnsureCategory returns the id of the user's category called name, creating it
// on first use.
func (t *Tx) EnsureCategory(ctx context.Context, userID, name string) (string, error) {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO categories (category_id, user_id, name, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, name) DO NOTHING`,
		uuid.NewString(), userID, name, formatTime(time.Now()))
	if err != nil {
		return "", fmt.Errorf("EnsureCategory: %w", err)
	}
	var id string
	if err := t.tx.QueryRowContext(ctx,
		`SELECT category_id FROM categories WHERE user_id = ? AND name = ?`, userID, name).Scan(&id); err != nil {
		return "", fmt.Errorf("EnsureCategory: %w", err)
	}
	return id, nil
}

// SetTransactionCategories replaces the category links of a transaction.
func (t *Tx) SetTransactionCategories(ctx context.Context, txID string, categoryIDs []string) error {
	if _, err := t.tx.ExecContext(ctx,
		`DELETE FROM transaction_categories WHERE transaction_id = ?`, txID); err != nil {
		return fmt.Errorf("SetTransactionCategories: %w", err)
	}
	for _, c := range categoryIDs {
		if _, err := t.tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO transaction_categories (transaction_id, category_id) VALUES (?, ?)`,
			txID, c); err != nil {
			return fmt.Errorf("SetTransactionCategories: %w", err)
		}
	}
	return nil
}

const groupColumns = `group_id, user_id, account_id, kind, description, total_cents,
	installment_count, per_installment_cents, first_date, interval_days, category_ids, created_at`

// InsertGroup inserts an installment group.
func (t *Tx) InsertGroup(ctx context.Context, g *domain.InstallmentGroup) error {
	total, err := cents(g.TotalAmount)
	if err != nil {
		return fmt.Errorf("InsertGroup: %w", err)
	}
	per, err := cents(g.PerInstallmentAmount)
	if err != nil {
		return fmt.Errorf("InsertGroup: %w", err)
	}
	cats, err := encodeIDs(g.CategoryIDs)
	if err != nil {
		return fmt.Errorf("InsertGroup: %w", err)
	}
	created := formatTime(g.CreatedAt)
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO installment_groups (`+groupColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.UserID, g.AccountID, string(g.Kind), g.Description, total,
		g.InstallmentCount, per, formatDate(g.FirstDate), g.IntervalDays, cats, created, created)
	if err != nil {
		return fmt.Errorf("InsertGroup: %w", err)
	}
	return nil
}

// GetGroup loads an installment group owned by userID.
func (t *Tx) GetGroup(ctx context.Context, userID, groupID string) (*domain.InstallmentGroup, error) {
	var (
		g          domain.InstallmentGroup
		kind       string
		total, per int64
		firstDate  string
		cats       string
		createdAt  string
	)
	err := t.tx.QueryRowContext(ctx,
		`SELECT `+groupColumns+` FROM installment_groups WHERE group_id = ? AND user_id = ?`,
		groupID, userID).Scan(&g.ID, &g.UserID, &g.AccountID, &kind, &g.Description, &total,
		&g.InstallmentCount, &per, &firstDate, &g.IntervalDays, &cats, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("installment group", groupID)
	}
	if err != nil {
		return nil, fmt.Errorf("GetGroup: %w", err)
	}

	g.Kind = domain.TransactionKind(kind)
	g.TotalAmount = amount.FromCents(total)
	g.PerInstallmentAmount = amount.FromCents(per)
	if g.FirstDate, err = parseDate(firstDate); err != nil {
		return nil, fmt.Errorf("GetGroup: %w", err)
	}
	if g.CategoryIDs, err = decodeIDs(cats); err != nil {
		return nil, fmt.Errorf("GetGroup: %w", err)
	}
	if g.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("GetGroup: %w", err)
	}
	return &g, nil
}

// UpdateGroup rewrites the mutable fields of a group.
func (t *Tx) UpdateGroup(ctx context.Context, g *domain.InstallmentGroup) error {
	cats, err := encodeIDs(g.CategoryIDs)
	if err != nil {
		return fmt.Errorf("UpdateGroup: %w", err)
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE installment_groups SET description = ?, account_id = ?, category_ids = ?, updated_at = ?
		WHERE group_id = ? AND user_id = ?`,
		g.Description, g.AccountID, cats, formatTime(time.Now()), g.ID, g.UserID)
	if err != nil {
		return fmt.Errorf("UpdateGroup: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("installment group", g.ID)
	}
	return nil
}

func encodeIDs(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeIDs(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(s), &ids); err != nil {
		return nil, fmt.Errorf("decoding category ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return ids, nil
}
