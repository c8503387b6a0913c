// Package position derives the value of investment accounts from their buy and
// sell events using FIFO lot matching.
package position

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/ledger-engine/internal/amount"
	"github.com/dvloznov/ledger-engine/internal/calendar"
	"github.com/dvloznov/ledger-engine/internal/domain"
	"github.com/dvloznov/ledger-engine/internal/logger"
)

// Engine values investment accounts.
type Engine struct {
	store       Store
	quotes      QuoteProvider
	now         func() time.Time
	concurrency int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineClock overrides the valuation date source.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithConcurrency bounds the number of assets quoted in parallel.
func WithConcurrency(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// NewEngine creates an Engine.
func NewEngine(store Store, quotes QuoteProvider, opts ...EngineOption) *Engine {
	e := &Engine{store: store, quotes: quotes, now: time.Now, concurrency: 4}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AssetValue is the contribution of one asset to an account's valuation.
type AssetValue struct {
	Asset     string               `json:"asset"`
	Category  domain.AssetCategory `json:"category"`
	Quantity  decimal.Decimal      `json:"quantity"`
	Price     decimal.Decimal      `json:"price,omitempty"`
	Value     decimal.Decimal      `json:"value"`
	CostBasis decimal.Decimal      `json:"cost_basis"`
}

// SkippedAsset names an asset left out of a valuation and why.
type SkippedAsset struct {
	Asset    string               `json:"asset"`
	Category domain.AssetCategory `json:"category"`
	Reason   string               `json:"reason"`
}

// Valuation is the derived balance of an investment account.
type Valuation struct {
	AccountID string          `json:"account_id"`
	Currency  string          `json:"currency"`
	AsOf      civil.Date      `json:"as_of"`
	Total     decimal.Decimal `json:"total"`
	Assets    []AssetValue    `json:"assets"`
	Skipped   []SkippedAsset  `json:"skipped,omitempty"`
}

// Valuation sums the current value of the account's active events in the
// account currency. An asset whose quote or conversion fails is skipped and
// reported; the rest are still totaled.
func (e *Engine) Valuation(ctx context.Context, userID, accountID string) (*Valuation, error) {
	var (
		acc    *domain.Account
		events []domain.InvestmentEvent
	)
	err := e.store.WithTx(ctx, func(tx Tx) error {
		var err error
		acc, err = tx.GetAccount(ctx, userID, accountID)
		if err != nil {
			return err
		}
		if acc.Kind != domain.AccountInvestment {
			return domain.Invalid("account_id", "%s accounts are not valued from events", acc.Kind)
		}
		events, err = tx.ListAccountEvents(ctx, userID, accountID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("Valuation: %w", err)
	}

	asOf := calendar.Today(e.now(), time.UTC)
	byAsset := map[domain.AssetKey][]domain.InvestmentEvent{}
	for _, ev := range events {
		byAsset[ev.Asset()] = append(byAsset[ev.Asset()], ev)
	}

	var (
		mu     sync.Mutex
		out    = &Valuation{AccountID: acc.ID, Currency: acc.Currency, AsOf: asOf, Total: decimal.Zero}
		g, gctx = errgroup.WithContext(ctx)
	)
	g.SetLimit(e.concurrency)
	for key, evs := range byAsset {
		g.Go(func() error {
			v, err := e.valueAsset(gctx, key, evs, acc.Currency, asOf)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				out.Skipped = append(out.Skipped, SkippedAsset{Asset: key.Name, Category: key.Category, Reason: err.Error()})
				return nil
			}
			out.Assets = append(out.Assets, *v)
			out.Total = out.Total.Add(v.Value)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("Valuation: %w", err)
	}

	sort.Slice(out.Assets, func(i, j int) bool { return out.Assets[i].Asset < out.Assets[j].Asset })
	sort.Slice(out.Skipped, func(i, j int) bool { return out.Skipped[i].Asset < out.Skipped[j].Asset })
	out.Total = amount.Round2(out.Total)

	if len(out.Skipped) > 0 {
		log := logger.FromContext(ctx)
		log.Warn().
			Str("account_id", acc.ID).
			Int("skipped", len(out.Skipped)).
			Msg("Valuation skipped assets")
	}
	return out, nil
}

// AccountValue returns the rounded total of Valuation.
func (e *Engine) AccountValue(ctx context.Context, userID, accountID string) (decimal.Decimal, error) {
	v, err := e.Valuation(ctx, userID, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return v.Total, nil
}

func (e *Engine) valueAsset(ctx context.Context, key domain.AssetKey, events []domain.InvestmentEvent, currency string, asOf civil.Date) (*AssetValue, error) {
	qty := decimal.Zero
	for _, ev := range events {
		qty = qty.Add(ev.Quantity)
	}
	av := &AssetValue{Asset: key.Name, Category: key.Category, Quantity: qty, Value: decimal.Zero, CostBasis: CostBasis(events)}

	if key.Category.IsFixedIncome() {
		for _, ev := range events {
			v, err := e.quotes.FixedIncomeValue(ctx, FixedIncomeInput{
				Principal: ev.Quantity.Mul(ev.UnitPrice),
				Category:  ev.AssetCategory,
				Terms:     ev.FixedIncome,
				StartDate: ev.Date,
				AsOf:      asOf,
			})
			if err != nil {
				return nil, fmt.Errorf("fixed income value: %w", err)
			}
			converted, err := e.convert(ctx, v, ev.Currency, currency)
			if err != nil {
				return nil, err
			}
			av.Value = av.Value.Add(converted)
		}
		return av, nil
	}

	price, quoteCurrency, err := e.quotes.Quote(ctx, key.Name, key.Category)
	if err != nil {
		return nil, fmt.Errorf("quote: %w", err)
	}
	value, err := e.convert(ctx, qty.Mul(price), quoteCurrency, currency)
	if err != nil {
		return nil, err
	}
	av.Price = price
	av.Value = value
	return av, nil
}

func (e *Engine) convert(ctx context.Context, v decimal.Decimal, from, to string) (decimal.Decimal, error) {
	if from == "" || from == to {
		return v, nil
	}
	rate, err := e.quotes.ExchangeRate(ctx, from, to)
	if err != nil {
		return decimal.Zero, fmt.Errorf("exchange rate %s/%s: %w", from, to, err)
	}
	return v.Mul(rate), nil
}
