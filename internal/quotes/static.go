package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledger-engine/internal/amount"
	"github.com/dvloznov/ledger-engine/internal/domain"
	"github.com/dvloznov/ledger-engine/internal/position"
)

// ErrNoQuote is returned when the table has no price for an asset.
var ErrNoQuote = errors.New("no quote")

// Price is a unit price and the currency it is quoted in.
type Price struct {
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
}

// Static serves quotes and FX rates from an in-memory table. Fixed-income
// values are delegated to the embedded Accrual.
type Static struct {
	Accrual

	mu     sync.RWMutex
	prices map[string]Price
	rates  map[string]decimal.Decimal
}

// NewStatic creates an empty table.
func NewStatic() *Static {
	return &Static{
		Accrual: Accrual{Indexes: map[string]decimal.Decimal{}},
		prices:  map[string]Price{},
		rates:   map[string]decimal.Decimal{},
	}
}

// SetPrice stores the price of an asset.
func (s *Static) SetPrice(asset string, price decimal.Decimal, currency string) error {
	cur, err := amount.NormalizeCurrency(currency)
	if err != nil {
		return fmt.Errorf("SetPrice: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[domain.NormalizeAssetName(asset)] = Price{Price: price, Currency: cur}
	return nil
}

// SetRate stores how many units of to one unit of from buys. The inverse pair
// is derived on lookup.
func (s *Static) SetRate(from, to string, rate decimal.Decimal) error {
	f, err := amount.NormalizeCurrency(from)
	if err != nil {
		return fmt.Errorf("SetRate: %w", err)
	}
	t, err := amount.NormalizeCurrency(to)
	if err != nil {
		return fmt.Errorf("SetRate: %w", err)
	}
	if !rate.IsPositive() {
		return fmt.Errorf("SetRate: rate must be positive, got %s", rate)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates[f+"/"+t] = rate
	return nil
}

// SetIndex stores the current annual rate, in percent, of a benchmark index.
func (s *Static) SetIndex(name string, rate decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Indexes[strings.ToUpper(strings.TrimSpace(name))] = rate
}

// Quote implements position.QuoteProvider.
func (s *Static) Quote(_ context.Context, asset string, _ domain.AssetCategory) (decimal.Decimal, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[domain.NormalizeAssetName(asset)]
	if !ok {
		return decimal.Zero, "", fmt.Errorf("%w for %s", ErrNoQuote, asset)
	}
	return p.Price, p.Currency, nil
}

// ExchangeRate implements position.QuoteProvider.
func (s *Static) ExchangeRate(_ context.Context, from, to string) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.rates[from+"/"+to]; ok {
		return r, nil
	}
	if r, ok := s.rates[to+"/"+from]; ok {
		return decimal.NewFromInt(1).DivRound(r, 10), nil
	}
	return decimal.Zero, fmt.Errorf("no exchange rate %s/%s", from, to)
}

// FixedIncomeValue implements position.QuoteProvider.
func (s *Static) FixedIncomeValue(ctx context.Context, in position.FixedIncomeInput) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Accrual.FixedIncomeValue(ctx, in)
}

// file is the JSON layout read by LoadFile.
type file struct {
	Prices  map[string]Price           `json:"prices"`
	Rates   map[string]decimal.Decimal `json:"rates"`
	Indexes map[string]decimal.Decimal `json:"indexes"`
}

// LoadFile reads a JSON quote table:
//
//	{"prices": {"PETR4": {"price": "38.50", "currency": "BRL"}},
//	 "rates": {"USD/BRL": "5.02"},
//	 "indexes": {"CDI": "10.65"}}
func LoadFile(path string) (*Static, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadFile: %w", err)
	}
	var f file
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("LoadFile: decoding %s: %w", path, err)
	}

	s := NewStatic()
	for asset, p := range f.Prices {
		if err := s.SetPrice(asset, p.Price, p.Currency); err != nil {
			return nil, fmt.Errorf("LoadFile: %s: %w", asset, err)
		}
	}
	for pair, rate := range f.Rates {
		from, to, ok := strings.Cut(pair, "/")
		if !ok {
			return nil, fmt.Errorf("LoadFile: rate key %q is not FROM/TO", pair)
		}
		if err := s.SetRate(from, to, rate); err != nil {
			return nil, fmt.Errorf("LoadFile: %w", err)
		}
	}
	for name, rate := range f.Indexes {
		s.SetIndex(name, rate)
	}
	return s, nil
}
