package position

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledger-engine/internal/amount"
	"github.com/dvloznov/ledger-engine/internal/calendar"
	"github.com/dvloznov/ledger-engine/internal/domain"
	"github.com/dvloznov/ledger-engine/internal/logger"
)

// Service records and edits investment events. Mutations of the same
// (user, asset) are serialized in-process and each runs in one storage
// transaction, so the FIFO replay they depend on cannot interleave.
type Service struct {
	store Store
	locks *keyedMutex
	now   func() time.Time
	newID func() string
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceClock overrides the time source.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithServiceIDGenerator overrides event id generation.
func WithServiceIDGenerator(fn func() string) ServiceOption {
	return func(s *Service) { s.newID = fn }
}

// NewService creates a Service over store.
func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{
		store: store,
		locks: newKeyedMutex(),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record stores a buy (positive quantity) or sell (negative quantity).
// A sell larger than the quantity held on its own date is a state conflict.
func (s *Service) Record(ctx context.Context, userID string, in domain.NewInvestmentEvent) (*domain.InvestmentEvent, error) {
	if err := validateEvent(in); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	e := &domain.InvestmentEvent{
		ID:            s.newID(),
		UserID:        userID,
		AccountID:     in.AccountID,
		AssetName:     domain.NormalizeAssetName(in.AssetName),
		AssetCategory: in.AssetCategory,
		Quantity:      in.Quantity,
		UnitPrice:     in.UnitPrice,
		Fee:           in.Fee,
		Date:          in.Date,
		FixedIncome:   in.FixedIncome,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	unlock := s.locks.Lock(e.Asset().String())
	defer unlock()

	err := s.store.WithTx(ctx, func(tx Tx) error {
		acc, err := tx.GetAccount(ctx, userID, in.AccountID)
		if err != nil {
			return err
		}
		if acc.Kind != domain.AccountInvestment {
			return domain.Invalid("account_id", "investment events need an investment account, got %s", acc.Kind)
		}
		if !acc.Active {
			return &domain.ConflictError{Entity: "account", ID: acc.ID, State: "INACTIVE", Reason: "account is closed"}
		}
		e.Currency = acc.Currency
		if in.Currency != "" {
			if e.Currency, err = amount.NormalizeCurrency(in.Currency); err != nil {
				return domain.Invalid("currency", "%v", err)
			}
		}

		if !e.IsBuy() {
			events, err := tx.ListAssetEvents(ctx, e.Asset())
			if err != nil {
				return fmt.Errorf("list asset events: %w", err)
			}
			before := Oversold(events)
			if Oversold(append(events, *e)).GreaterThan(before) {
				held := Holdings(onOrBefore(events, e.Date))
				return &domain.ConflictError{
					Entity: "asset",
					ID:     e.AssetName,
					State:  "HELD " + held.String(),
					Reason: fmt.Sprintf("cannot sell %s on %s", e.Quantity.Neg(), e.Date),
				}
			}
		}
		return tx.InsertEvent(ctx, e)
	})
	if err != nil {
		return nil, fmt.Errorf("Record: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("event_id", e.ID).
		Str("asset", e.AssetName).
		Str("quantity", e.Quantity.String()).
		Msg("Investment event recorded")
	return e, nil
}

// Reversal is the effect of deleting an investment event.
type Reversal struct {
	Event *domain.InvestmentEvent `json:"event"`
	// Value is the event's computed cost negated.
	Value decimal.Decimal `json:"value"`
}

// Delete soft-deletes an event. A buy can only be deleted while none of it
// has been consumed by later sells.
func (s *Service) Delete(ctx context.Context, userID, eventID string) (*Reversal, error) {
	key, err := s.assetKey(ctx, userID, eventID)
	if err != nil {
		return nil, fmt.Errorf("Delete: %w", err)
	}
	unlock := s.locks.Lock(key.String())
	defer unlock()

	var rev *Reversal
	err = s.store.WithTx(ctx, func(tx Tx) error {
		e, err := loadActiveEvent(ctx, tx, userID, eventID)
		if err != nil {
			return err
		}
		if e.IsBuy() {
			events, err := tx.ListAssetEvents(ctx, e.Asset())
			if err != nil {
				return fmt.Errorf("list asset events: %w", err)
			}
			remaining, err := RemainingQuantity(events, e.ID)
			if err != nil {
				return err
			}
			if !remaining.Equal(e.Quantity) {
				return &domain.ConflictError{
					Entity: "investment event",
					ID:     e.ID,
					State:  "REMAINING " + remaining.String(),
					Reason: fmt.Sprintf("%s of %s already sold", e.Quantity.Sub(remaining), e.Quantity),
				}
			}
			if err := checkOversold(e.AssetName, events, withoutEvent(events, e.ID), "a later sell depends on "+e.ID); err != nil {
				return err
			}
		}
		if err := tx.DeactivateEvent(ctx, userID, e.ID); err != nil {
			return fmt.Errorf("deactivate: %w", err)
		}
		e.Active = false
		rev = &Reversal{Event: e, Value: e.ComputedCost().Neg()}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("Delete: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("event_id", eventID).
		Str("reversal", rev.Value.String()).
		Msg("Investment event deleted")
	return rev, nil
}

// ReduceBuy lowers the quantity of a past buy. The reduction may not exceed
// what FIFO replay says is still held from that buy.
func (s *Service) ReduceBuy(ctx context.Context, userID, eventID string, newQuantity decimal.Decimal) (*domain.InvestmentEvent, error) {
	if !newQuantity.IsPositive() {
		return nil, domain.Invalid("quantity", "must be positive, use Delete to remove a buy")
	}
	key, err := s.assetKey(ctx, userID, eventID)
	if err != nil {
		return nil, fmt.Errorf("ReduceBuy: %w", err)
	}
	unlock := s.locks.Lock(key.String())
	defer unlock()

	var out *domain.InvestmentEvent
	err = s.store.WithTx(ctx, func(tx Tx) error {
		e, err := loadActiveEvent(ctx, tx, userID, eventID)
		if err != nil {
			return err
		}
		if !e.IsBuy() {
			return domain.Invalid("event_id", "only buys can be reduced")
		}
		if !newQuantity.LessThan(e.Quantity) {
			return domain.Invalid("quantity", "new quantity %s must be below %s", newQuantity, e.Quantity)
		}

		events, err := tx.ListAssetEvents(ctx, e.Asset())
		if err != nil {
			return fmt.Errorf("list asset events: %w", err)
		}
		remaining, err := RemainingQuantity(events, e.ID)
		if err != nil {
			return err
		}
		reduction := e.Quantity.Sub(newQuantity)
		if reduction.GreaterThan(remaining) {
			return &domain.ConflictError{
				Entity: "investment event",
				ID:     e.ID,
				State:  "REMAINING " + remaining.String(),
				Reason: fmt.Sprintf("cannot remove %s", reduction),
			}
		}
		reduced := withoutEvent(events, e.ID)
		edited := *e
		edited.Quantity = newQuantity
		if err := checkOversold(e.AssetName, events, append(reduced, edited), fmt.Sprintf("a later sell depends on %s of %s", reduction, e.ID)); err != nil {
			return err
		}
		if err := tx.UpdateEventQuantity(ctx, userID, e.ID, newQuantity); err != nil {
			return fmt.Errorf("update quantity: %w", err)
		}
		e.Quantity = newQuantity
		out = e
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ReduceBuy: %w", err)
	}
	return out, nil
}

// Events lists the active events of an investment account.
func (s *Service) Events(ctx context.Context, userID, accountID string) ([]domain.InvestmentEvent, error) {
	var out []domain.InvestmentEvent
	err := s.store.WithTx(ctx, func(tx Tx) error {
		if _, err := tx.GetAccount(ctx, userID, accountID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListAccountEvents(ctx, userID, accountID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("Events: %w", err)
	}
	return sortEvents(out), nil
}

func (s *Service) assetKey(ctx context.Context, userID, eventID string) (domain.AssetKey, error) {
	var key domain.AssetKey
	err := s.store.WithTx(ctx, func(tx Tx) error {
		e, err := tx.GetEvent(ctx, userID, eventID)
		if err != nil {
			return err
		}
		key = e.Asset()
		return nil
	})
	return key, err
}

// checkOversold rejects an edit that leaves more sell quantity uncovered by
// the buys dated on or before it than before.
func checkOversold(asset string, before, after []domain.InvestmentEvent, reason string) error {
	over := Oversold(after)
	if over.GreaterThan(Oversold(before)) {
		return &domain.ConflictError{
			Entity: "asset",
			ID:     asset,
			State:  "OVERSOLD " + over.String(),
			Reason: reason,
		}
	}
	return nil
}

func onOrBefore(events []domain.InvestmentEvent, date civil.Date) []domain.InvestmentEvent {
	var out []domain.InvestmentEvent
	for _, e := range events {
		if calendar.OnOrBefore(e.Date, date) {
			out = append(out, e)
		}
	}
	return out
}

func withoutEvent(events []domain.InvestmentEvent, eventID string) []domain.InvestmentEvent {
	out := make([]domain.InvestmentEvent, 0, len(events))
	for _, e := range events {
		if e.ID != eventID {
			out = append(out, e)
		}
	}
	return out
}

func loadActiveEvent(ctx context.Context, tx Tx, userID, eventID string) (*domain.InvestmentEvent, error) {
	e, err := tx.GetEvent(ctx, userID, eventID)
	if err != nil {
		return nil, err
	}
	if !e.Active {
		return nil, &domain.ConflictError{Entity: "investment event", ID: e.ID, State: "INACTIVE", Reason: "already deleted"}
	}
	return e, nil
}

func validateEvent(in domain.NewInvestmentEvent) error {
	if in.AccountID == "" {
		return domain.Invalid("account_id", "is required")
	}
	if strings.TrimSpace(in.AssetName) == "" {
		return domain.Invalid("asset_name", "is required")
	}
	switch in.AssetCategory {
	case domain.AssetStock, domain.AssetETF, domain.AssetFund, domain.AssetREIT,
		domain.AssetCrypto, domain.AssetFixedIncome, domain.AssetOther:
	default:
		return domain.Invalid("asset_category", "unknown category %q", string(in.AssetCategory))
	}
	if in.Quantity.IsZero() {
		return domain.Invalid("quantity", "must not be zero")
	}
	if in.UnitPrice.IsNegative() {
		return domain.Invalid("unit_price", "must not be negative")
	}
	if in.Fee.IsNegative() {
		return domain.Invalid("fee", "must not be negative")
	}
	if !in.Date.IsValid() {
		return domain.Invalid("date", "invalid date %s", in.Date)
	}
	if in.FixedIncome != nil && !in.AssetCategory.IsFixedIncome() {
		return domain.Invalid("fixed_income", "terms apply to fixed income assets only")
	}
	return nil
}
