package position

import (
	"context"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledger-engine/internal/domain"
)

// Store opens storage transactions for investment events.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of storage operations the position engine needs.
type Tx interface {
	GetAccount(ctx context.Context, userID, accountID string) (*domain.Account, error)
	InsertEvent(ctx context.Context, e *domain.InvestmentEvent) error
	GetEvent(ctx context.Context, userID, eventID string) (*domain.InvestmentEvent, error)
	// ListAssetEvents returns the active events of one asset across all of
	// the user's accounts.
	ListAssetEvents(ctx context.Context, key domain.AssetKey) ([]domain.InvestmentEvent, error)
	ListAccountEvents(ctx context.Context, userID, accountID string) ([]domain.InvestmentEvent, error)
	DeactivateEvent(ctx context.Context, userID, eventID string) error
	UpdateEventQuantity(ctx context.Context, userID, eventID string, quantity decimal.Decimal) error
}

// QuoteProvider supplies market prices, FX rates and fixed-income valuations.
type QuoteProvider interface {
	// Quote returns the current unit price of an asset and the currency it is quoted in.
	Quote(ctx context.Context, asset string, category domain.AssetCategory) (decimal.Decimal, string, error)
	// ExchangeRate returns how many units of to one unit of from buys.
	ExchangeRate(ctx context.Context, from, to string) (decimal.Decimal, error)
	FixedIncomeValue(ctx context.Context, in FixedIncomeInput) (decimal.Decimal, error)
}

// FixedIncomeInput describes one fixed-income event to be valued.
type FixedIncomeInput struct {
	Principal decimal.Decimal
	Category  domain.AssetCategory
	Terms     *domain.FixedIncomeTerms
	StartDate civil.Date
	AsOf      civil.Date
}
