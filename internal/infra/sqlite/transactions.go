package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/ledger-engine/internal/amount"
	"github.com/dvloznov/ledger-engine/internal/domain"
	"github.com/dvloznov/ledger-engine/internal/ledger"
)

const transactionColumns = `t.transaction_id, t.user_id, t.account_id, t.kind, t.description,
	t.amount_cents, t.transaction_date, t.frequency, t.next_recurrence_date,
	t.original_transaction_id, t.group_id, t.installment_number, t.installment_total,
	t.state, t.created_at, t.updated_at,
	(SELECT GROUP_CONCAT(tc.category_id) FROM transaction_categories tc
	 WHERE tc.transaction_id = t.transaction_id) AS category_ids`

// InsertTransaction inserts a transaction row. Category links are written
// separately with SetTransactionCategories.
func (t *Tx) InsertTransaction(ctx context.Context, tr *domain.Transaction) error {
	amt, err := cents(tr.Amount)
	if err != nil {
		return fmt.Errorf("InsertTransaction: %w", err)
	}
	var (
		groupID       sql.NullString
		number, total sql.NullInt64
	)
	if ref := tr.Installment; ref != nil {
		groupID = nullString(ref.GroupID)
		number = nullInt(ref.Number, true)
		total = nullInt(ref.Total, true)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO transactions (
			transaction_id, user_id, account_id, kind, description, amount_cents,
			transaction_date, frequency, next_recurrence_date, original_transaction_id,
			group_id, installment_number, installment_total, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tr.ID, tr.UserID, tr.AccountID, string(tr.Kind), tr.Description, amt,
		formatDate(tr.Date), string(tr.Frequency), nullDate(tr.NextRecurrenceDate), nullString(tr.OriginalTransactionID),
		groupID, number, total, string(tr.State), formatTime(tr.CreatedAt), formatTime(tr.UpdatedAt))
	if err != nil {
		return fmt.Errorf("InsertTransaction: %w", err)
	}
	return nil
}

// GetTransaction loads a transaction owned by userID.
func (t *Tx) GetTransaction(ctx context.Context, userID, txID string) (*domain.Transaction, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions t WHERE t.transaction_id = ? AND t.user_id = ?`,
		txID, userID)
	tr, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("transaction", txID)
	}
	if err != nil {
		return nil, fmt.Errorf("GetTransaction: %w", err)
	}
	return tr, nil
}

// ListTransactions returns the transactions matching f ordered by date and id.
func (t *Tx) ListTransactions(ctx context.Context, f ledger.TransactionFilter) ([]domain.Transaction, error) {
	var (
		where []string
		args  []any
	)
	if f.UserID != "" {
		where = append(where, "t.user_id = ?")
		args = append(args, f.UserID)
	}
	if f.AccountID != "" {
		where = append(where, "t.account_id = ?")
		args = append(args, f.AccountID)
	}
	if f.GroupID != "" {
		where = append(where, "t.group_id = ?")
		args = append(args, f.GroupID)
	}
	if len(f.States) > 0 {
		marks := make([]string, len(f.States))
		for i, s := range f.States {
			marks[i] = "?"
			args = append(args, string(s))
		}
		where = append(where, "t.state IN ("+strings.Join(marks, ", ")+")")
	}
	if f.From != nil {
		where = append(where, "t.transaction_date >= ?")
		args = append(args, formatDate(*f.From))
	}
	if f.To != nil {
		where = append(where, "t.transaction_date < ?")
		args = append(args, formatDate(*f.To))
	}

	q := `SELECT ` + transactionColumns + ` FROM transactions t`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY t.transaction_date, t.installment_number, t.transaction_id`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	return t.queryTransactions(ctx, q, args...)
}

// ListDueRecurrences returns ACTIVE recurring transactions due on or before today.
func (t *Tx) ListDueRecurrences(ctx context.Context, today civil.Date, limit int) ([]domain.Transaction, error) {
	q := `SELECT ` + transactionColumns + ` FROM transactions t
		WHERE t.state = 'ACTIVE' AND t.next_recurrence_date IS NOT NULL AND t.next_recurrence_date <= ?
		ORDER BY t.next_recurrence_date, t.transaction_id LIMIT ?`
	return t.queryTransactions(ctx, q, formatDate(today), limit)
}

// ChangedTransactionsSince returns every transaction updated after since.
func (t *Tx) ChangedTransactionsSince(ctx context.Context, since time.Time) ([]domain.Transaction, error) {
	q := `SELECT ` + transactionColumns + ` FROM transactions t
		WHERE t.updated_at > ? ORDER BY t.updated_at, t.transaction_id`
	return t.queryTransactions(ctx, q, formatTime(since))
}

func (t *Tx) queryTransactions(ctx context.Context, q string, args ...any) ([]domain.Transaction, error) {
	rows, err := t.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying transactions: %w", err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		tr, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		out = append(out, *tr)
	}
	return out, rows.Err()
}

// SetTransactionState moves a transaction to state.
func (t *Tx) SetTransactionState(ctx context.Context, userID, txID string, state domain.State) error {
	return t.updateOne(ctx, txID,
		`UPDATE transactions SET state = ?, updated_at = ? WHERE transaction_id = ? AND user_id = ?`,
		string(state), formatTime(time.Now()), txID, userID)
}

// SetNextRecurrence moves or clears the recurrence pointer.
func (t *Tx) SetNextRecurrence(ctx context.Context, userID, txID string, next *civil.Date) error {
	return t.updateOne(ctx, txID,
		`UPDATE transactions SET next_recurrence_date = ?, updated_at = ? WHERE transaction_id = ? AND user_id = ?`,
		nullDate(next), formatTime(time.Now()), txID, userID)
}

// UpdateTransactionDetails rewrites the description and account of a transaction.
func (t *Tx) UpdateTransactionDetails(ctx context.Context, tr *domain.Transaction) error {
	return t.updateOne(ctx, tr.ID,
		`UPDATE transactions SET description = ?, account_id = ?, updated_at = ? WHERE transaction_id = ? AND user_id = ?`,
		tr.Description, tr.AccountID, formatTime(time.Now()), tr.ID, tr.UserID)
}

// DeleteTransaction physically removes a transaction and its category links.
func (t *Tx) DeleteTransaction(ctx context.Context, userID, txID string) error {
	if _, err := t.tx.ExecContext(ctx,
		`UPDATE transactions SET original_transaction_id = NULL WHERE original_transaction_id = ? AND user_id = ?`,
		txID, userID); err != nil {
		return fmt.Errorf("DeleteTransaction: unlinking children: %w", err)
	}
	return t.updateOne(ctx, txID,
		`DELETE FROM transactions WHERE transaction_id = ? AND user_id = ?`, txID, userID)
}

func (t *Tx) updateOne(ctx context.Context, txID, q string, args ...any) error {
	res, err := t.tx.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("updating transaction %s: %w", txID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating transaction %s: %w", txID, err)
	}
	if n == 0 {
		return domain.NotFound("transaction", txID)
	}
	return nil
}

func scanTransaction(s scanner) (*domain.Transaction, error) {
	var (
		tr                   domain.Transaction
		kind, freq, state    string
		amt                  int64
		date                 string
		next, original, grp  sql.NullString
		number, total        sql.NullInt64
		createdAt, updatedAt string
		categories           sql.NullString
	)
	if err := s.Scan(&tr.ID, &tr.UserID, &tr.AccountID, &kind, &tr.Description,
		&amt, &date, &freq, &next,
		&original, &grp, &number, &total,
		&state, &createdAt, &updatedAt, &categories); err != nil {
		return nil, err
	}

	tr.Kind = domain.TransactionKind(kind)
	tr.Frequency = domain.Frequency(freq)
	tr.State = domain.State(state)
	tr.Amount = amount.FromCents(amt)
	tr.OriginalTransactionID = original.String

	var err error
	if tr.Date, err = parseDate(date); err != nil {
		return nil, err
	}
	if tr.NextRecurrenceDate, err = parseNullDate(next); err != nil {
		return nil, err
	}
	if grp.Valid {
		tr.Installment = &domain.InstallmentRef{GroupID: grp.String, Number: int(number.Int64), Total: int(total.Int64)}
	}
	if tr.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if tr.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if categories.Valid && categories.String != "" {
		tr.CategoryIDs = strings.Split(categories.String, ",")
		sort.Strings(tr.CategoryIDs)
	}
	return &tr, nil
}
