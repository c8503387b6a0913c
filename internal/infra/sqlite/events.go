package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledger-engine/internal/domain"
	"github.com/dvloznov/ledger-engine/internal/logger"
)

const eventColumns = `event_id, user_id, account_id, asset_name, asset_category, quantity,
	unit_price, fee, event_date, currency, active, created_at, updated_at`

const fixedIncomeSelect = `, rate_type, rate_index, index_pct, fixed_rate, maturity_date`

func (t *Tx) eventSelect() string {
	cols := eventColumns
	if t.caps.FixedIncomeTerms {
		cols += fixedIncomeSelect
	}
	return `SELECT ` + cols + ` FROM investment_events`
}

// InsertEvent inserts an investment event. Fixed-income terms are only stored
// when the schema carries their columns.
func (t *Tx) InsertEvent(ctx context.Context, e *domain.InvestmentEvent) error {
	args := []any{
		e.ID, e.UserID, e.AccountID, e.AssetName, string(e.AssetCategory), e.Quantity.String(),
		e.UnitPrice.String(), e.Fee.String(), formatDate(e.Date), e.Currency, boolInt(e.Active),
		formatTime(e.CreatedAt), formatTime(e.UpdatedAt),
	}
	q := `INSERT INTO investment_events (` + eventColumns
	marks := `?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?`

	switch {
	case t.caps.FixedIncomeTerms:
		q += fixedIncomeSelect
		marks += `, ?, ?, ?, ?, ?`
		var rateType, index, pct, fixed sql.NullString
		var maturity sql.NullString
		if fi := e.FixedIncome; fi != nil {
			rateType = nullString(string(fi.RateType))
			index = nullString(fi.Index)
			pct = nullString(fi.IndexPct.String())
			fixed = nullString(fi.FixedRate.String())
			maturity = nullDate(fi.MaturityDate)
		}
		args = append(args, rateType, index, pct, fixed, maturity)
	case e.FixedIncome != nil:
		log := logger.FromContext(ctx)
		log.Warn().
			Str("event_id", e.ID).
			Msg("Schema has no fixed income columns, terms not stored")
	}

	if _, err := t.tx.ExecContext(ctx, q+`) VALUES (`+marks+`)`, args...); err != nil {
		return fmt.Errorf("InsertEvent: %w", err)
	}
	return nil
}

// GetEvent loads an event owned by userID, active or not.
func (t *Tx) GetEvent(ctx context.Context, userID, eventID string) (*domain.InvestmentEvent, error) {
	row := t.tx.QueryRowContext(ctx, t.eventSelect()+` WHERE event_id = ? AND user_id = ?`, eventID, userID)
	e, err := t.scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("investment event", eventID)
	}
	if err != nil {
		return nil, fmt.Errorf("GetEvent: %w", err)
	}
	return e, nil
}

// ListAssetEvents returns the active events of one asset across the user's accounts.
func (t *Tx) ListAssetEvents(ctx context.Context, key domain.AssetKey) ([]domain.InvestmentEvent, error) {
	return t.queryEvents(ctx, t.eventSelect()+`
		WHERE user_id = ? AND asset_name = ? AND asset_category = ? AND active = 1
		ORDER BY event_date, event_id`,
		key.UserID, key.Name, string(key.Category))
}

// ListAccountEvents returns the active events of an account.
func (t *Tx) ListAccountEvents(ctx context.Context, userID, accountID string) ([]domain.InvestmentEvent, error) {
	return t.queryEvents(ctx, t.eventSelect()+`
		WHERE user_id = ? AND account_id = ? AND active = 1
		ORDER BY event_date, event_id`,
		userID, accountID)
}

// ChangedEventsSince returns every event updated after since.
func (t *Tx) ChangedEventsSince(ctx context.Context, since time.Time) ([]domain.InvestmentEvent, error) {
	return t.queryEvents(ctx, t.eventSelect()+` WHERE updated_at > ? ORDER BY updated_at, event_id`, formatTime(since))
}

// DeactivateEvent soft-deletes an event.
func (t *Tx) DeactivateEvent(ctx context.Context, userID, eventID string) error {
	return t.updateEvent(ctx, eventID,
		`UPDATE investment_events SET active = 0, updated_at = ? WHERE event_id = ? AND user_id = ?`,
		formatTime(time.Now()), eventID, userID)
}

// UpdateEventQuantity rewrites the quantity of an event.
func (t *Tx) UpdateEventQuantity(ctx context.Context, userID, eventID string, quantity decimal.Decimal) error {
	return t.updateEvent(ctx, eventID,
		`UPDATE investment_events SET quantity = ?, updated_at = ? WHERE event_id = ? AND user_id = ?`,
		quantity.String(), formatTime(time.Now()), eventID, userID)
}

func (t *Tx) updateEvent(ctx context.Context, eventID, q string, args ...any) error {
	res, err := t.tx.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("updating event %s: %w", eventID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("investment event", eventID)
	}
	return nil
}

func (t *Tx) queryEvents(ctx context.Context, q string, args ...any) ([]domain.InvestmentEvent, error) {
	rows, err := t.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var out []domain.InvestmentEvent
	for rows.Next() {
		e, err := t.scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (t *Tx) scanEvent(s scanner) (*domain.InvestmentEvent, error) {
	var (
		e                          domain.InvestmentEvent
		category                   string
		qty, price, fee, date      string
		active                     int
		createdAt, updatedAt       string
		rateType, index, pct, rate sql.NullString
		maturity                   sql.NullString
	)
	dest := []any{&e.ID, &e.UserID, &e.AccountID, &e.AssetName, &category, &qty,
		&price, &fee, &date, &e.Currency, &active, &createdAt, &updatedAt}
	if t.caps.FixedIncomeTerms {
		dest = append(dest, &rateType, &index, &pct, &rate, &maturity)
	}
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}

	e.AssetCategory = domain.AssetCategory(category)
	e.Active = active != 0
	var err error
	if e.Quantity, err = parseDecimal(qty); err != nil {
		return nil, err
	}
	if e.UnitPrice, err = parseDecimal(price); err != nil {
		return nil, err
	}
	if e.Fee, err = parseDecimal(fee); err != nil {
		return nil, err
	}
	if e.Date, err = parseDate(date); err != nil {
		return nil, err
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	if rateType.Valid {
		fi := &domain.FixedIncomeTerms{RateType: domain.RateType(rateType.String), Index: index.String}
		if fi.IndexPct, err = nullDecimal(pct); err != nil {
			return nil, err
		}
		if fi.FixedRate, err = nullDecimal(rate); err != nil {
			return nil, err
		}
		if fi.MaturityDate, err = parseNullDate(maturity); err != nil {
			return nil, err
		}
		e.FixedIncome = fi
	}
	return &e, nil
}
