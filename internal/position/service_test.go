package position_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledger-engine/internal/domain"
	"github.com/dvloznov/ledger-engine/internal/infra/sqlite"
	"github.com/dvloznov/ledger-engine/internal/ledger"
	"github.com/dvloznov/ledger-engine/internal/position"
	"github.com/dvloznov/ledger-engine/internal/quotes"
)

const user = "investor"

var now = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(y int, m time.Month, dd int) civil.Date { return civil.Date{Year: y, Month: m, Day: dd} }

type fixture struct {
	ledger  *ledger.Ledger
	service *position.Service
	engine  *position.Engine
	quotes  *quotes.Static
	account *domain.Account
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.Open(ctx, sqlite.DefaultConfig(filepath.Join(t.TempDir(), "ledger.db")))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if _, err := store.Migrate(ctx, "test"); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	q := quotes.NewStatic()
	clock := func() time.Time { return now }
	f := &fixture{
		service: position.NewService(store.Positions(), position.WithServiceClock(clock)),
		engine:  position.NewEngine(store.Positions(), q, position.WithEngineClock(clock)),
		quotes:  q,
	}
	f.ledger = ledger.New(store.Ledger(), ledger.WithClock(clock), ledger.WithValuer(f.engine))

	f.account, err = f.ledger.CreateAccount(ctx, user, ledger.NewAccount{
		Name: "Broker", Kind: domain.AccountInvestment, Currency: "BRL",
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	return f
}

func (f *fixture) record(t *testing.T, asset string, qty, price string, date civil.Date) *domain.InvestmentEvent {
	t.Helper()
	e, err := f.service.Record(context.Background(), user, domain.NewInvestmentEvent{
		AccountID: f.account.ID, AssetName: asset, AssetCategory: domain.AssetStock,
		Quantity: d(qty), UnitPrice: d(price), Date: date,
	})
	if err != nil {
		t.Fatalf("Record %s %s: %v", asset, qty, err)
	}
	return e
}

func TestRecordRejectsOversell(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.record(t, "petr4", "10", "30", day(2024, 1, 2))

	_, err := f.service.Record(ctx, user, domain.NewInvestmentEvent{
		AccountID: f.account.ID, AssetName: "PETR4", AssetCategory: domain.AssetStock,
		Quantity: d("-11"), UnitPrice: d("35"), Date: day(2024, 2, 1),
	})
	var conflict *domain.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Expected conflict, got %v", err)
	}
	if conflict.State != "HELD 10" {
		t.Errorf("Expected held quantity in conflict, got %q", conflict.State)
	}

	sell := f.record(t, "PETR4", "-10", "35", day(2024, 2, 1))
	if sell.Currency != "BRL" {
		t.Errorf("Expected account currency, got %q", sell.Currency)
	}
}

func TestRecordRejectsBackdatedSell(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	buy := f.record(t, "PETR4", "10", "30", day(2024, 3, 1))

	_, err := f.service.Record(ctx, user, domain.NewInvestmentEvent{
		AccountID: f.account.ID, AssetName: "PETR4", AssetCategory: domain.AssetStock,
		Quantity: d("-5"), UnitPrice: d("35"), Date: day(2024, 1, 1),
	})
	var conflict *domain.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Expected conflict selling before the buy, got %v", err)
	}
	if conflict.State != "HELD 0" {
		t.Errorf("Expected nothing held on the sell date, got %q", conflict.State)
	}

	if _, err := f.service.Delete(ctx, user, buy.ID); err != nil {
		t.Fatalf("Delete buy: %v", err)
	}
	v, err := f.engine.Valuation(ctx, user, f.account.ID)
	if err != nil {
		t.Fatalf("Valuation: %v", err)
	}
	if v.Total.IsNegative() {
		t.Errorf("Expected no negative position, got %s", v.Total)
	}
}

func TestDeleteBuyCoveringLaterSell(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	buy := f.record(t, "PETR4", "10", "30", day(2024, 3, 1))
	f.record(t, "PETR4", "-5", "35", day(2024, 4, 1))

	if _, err := f.service.Delete(ctx, user, buy.ID); !errors.Is(err, domain.ErrStateConflict) {
		t.Errorf("Expected conflict deleting a buy a later sell depends on, got %v", err)
	}
	if _, err := f.service.ReduceBuy(ctx, user, buy.ID, d("4")); !errors.Is(err, domain.ErrStateConflict) {
		t.Errorf("Expected conflict reducing below the later sell, got %v", err)
	}
}

func TestRecordValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	checking, err := f.ledger.CreateAccount(ctx, user, ledger.NewAccount{Name: "Wallet", Kind: domain.AccountChecking, Currency: "BRL"})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	tests := []struct {
		name string
		in   domain.NewInvestmentEvent
		want error
	}{
		{
			name: "non investment account",
			in: domain.NewInvestmentEvent{AccountID: checking.ID, AssetName: "X", AssetCategory: domain.AssetStock,
				Quantity: d("1"), UnitPrice: d("1"), Date: day(2024, 1, 1)},
			want: domain.ErrValidation,
		},
		{
			name: "zero quantity",
			in: domain.NewInvestmentEvent{AccountID: f.account.ID, AssetName: "X", AssetCategory: domain.AssetStock,
				Quantity: d("0"), UnitPrice: d("1"), Date: day(2024, 1, 1)},
			want: domain.ErrValidation,
		},
		{
			name: "terms on a stock",
			in: domain.NewInvestmentEvent{AccountID: f.account.ID, AssetName: "X", AssetCategory: domain.AssetStock,
				Quantity: d("1"), UnitPrice: d("1"), Date: day(2024, 1, 1),
				FixedIncome: &domain.FixedIncomeTerms{RateType: domain.RatePre, FixedRate: d("10")}},
			want: domain.ErrValidation,
		},
		{
			name: "unknown account",
			in: domain.NewInvestmentEvent{AccountID: "missing", AssetName: "X", AssetCategory: domain.AssetStock,
				Quantity: d("1"), UnitPrice: d("1"), Date: day(2024, 1, 1)},
			want: domain.ErrNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.service.Record(ctx, user, tt.in); !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestDeleteAndReduceBuy(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	buy := f.record(t, "PETR4", "10", "30", day(2024, 1, 2))
	sell := f.record(t, "PETR4", "-4", "35", day(2024, 2, 1))

	if _, err := f.service.Delete(ctx, user, buy.ID); !errors.Is(err, domain.ErrStateConflict) {
		t.Fatalf("Expected conflict deleting a partly sold buy, got %v", err)
	}

	reduced, err := f.service.ReduceBuy(ctx, user, buy.ID, d("8"))
	if err != nil {
		t.Fatalf("ReduceBuy: %v", err)
	}
	if !reduced.Quantity.Equal(d("8")) {
		t.Errorf("Expected quantity 8, got %s", reduced.Quantity)
	}
	if _, err := f.service.ReduceBuy(ctx, user, buy.ID, d("3")); !errors.Is(err, domain.ErrStateConflict) {
		t.Errorf("Expected conflict reducing below what was sold, got %v", err)
	}
	if _, err := f.service.ReduceBuy(ctx, user, buy.ID, d("9")); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("Expected validation error when increasing, got %v", err)
	}

	rev, err := f.service.Delete(ctx, user, sell.ID)
	if err != nil {
		t.Fatalf("Delete sell: %v", err)
	}
	if !rev.Value.Equal(d("140")) {
		t.Errorf("Expected reversal value 140, got %s", rev.Value)
	}
	if _, err := f.service.Delete(ctx, user, sell.ID); !errors.Is(err, domain.ErrStateConflict) {
		t.Errorf("Expected conflict deleting twice, got %v", err)
	}

	rev, err = f.service.Delete(ctx, user, buy.ID)
	if err != nil {
		t.Fatalf("Delete buy: %v", err)
	}
	if !rev.Value.Equal(d("-240")) {
		t.Errorf("Expected reversal value -240, got %s", rev.Value)
	}

	events, err := f.service.Events(ctx, user, f.account.ID)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("Expected no active events, got %d", len(events))
	}
}

func TestValuation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.record(t, "PETR4", "10", "30", day(2024, 1, 2))
	f.record(t, "VALE3", "5", "60", day(2024, 1, 2))
	if _, err := f.service.Record(ctx, user, domain.NewInvestmentEvent{
		AccountID: f.account.ID, AssetName: "AAPL", AssetCategory: domain.AssetStock,
		Quantity: d("2"), UnitPrice: d("100"), Date: day(2024, 1, 3), Currency: "usd",
	}); err != nil {
		t.Fatalf("Record AAPL: %v", err)
	}
	if _, err := f.service.Record(ctx, user, domain.NewInvestmentEvent{
		AccountID: f.account.ID, AssetName: "CDB BANCO X", AssetCategory: domain.AssetFixedIncome,
		Quantity: d("1"), UnitPrice: d("1000"), Date: day(2023, 3, 11),
		FixedIncome: &domain.FixedIncomeTerms{RateType: domain.RatePre, FixedRate: d("10")},
	}); err != nil {
		t.Fatalf("Record CDB: %v", err)
	}

	if err := f.quotes.SetPrice("PETR4", d("38.5"), "BRL"); err != nil {
		t.Fatalf("SetPrice: %v", err)
	}
	if err := f.quotes.SetPrice("AAPL", d("200"), "USD"); err != nil {
		t.Fatalf("SetPrice: %v", err)
	}
	if err := f.quotes.SetRate("USD", "BRL", d("5")); err != nil {
		t.Fatalf("SetRate: %v", err)
	}

	v, err := f.engine.Valuation(ctx, user, f.account.ID)
	if err != nil {
		t.Fatalf("Valuation: %v", err)
	}
	if !v.Total.Equal(d("3485")) {
		t.Errorf("Expected total 3485, got %s", v.Total)
	}
	if len(v.Assets) != 3 {
		t.Errorf("Expected 3 valued assets, got %+v", v.Assets)
	}
	if len(v.Skipped) != 1 || v.Skipped[0].Asset != "VALE3" {
		t.Errorf("Expected VALE3 to be skipped, got %+v", v.Skipped)
	}
	for _, a := range v.Assets {
		if a.Asset == "PETR4" && !a.CostBasis.Equal(d("300")) {
			t.Errorf("Expected PETR4 cost basis 300, got %s", a.CostBasis)
		}
	}

	balance, err := f.ledger.AccountBalance(ctx, user, f.account.ID)
	if err != nil {
		t.Fatalf("AccountBalance: %v", err)
	}
	if !balance.Equal(d("3485")) {
		t.Errorf("Expected derived balance 3485, got %s", balance)
	}
}
