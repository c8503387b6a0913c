package position

import (
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledger-engine/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func event(id string, day civil.Date, qty, price string) domain.InvestmentEvent {
	return domain.InvestmentEvent{
		ID: id, AssetName: "PETR4", AssetCategory: domain.AssetStock,
		Quantity: d(qty), UnitPrice: d(price), Date: day, Active: true,
	}
}

func TestReplay(t *testing.T) {
	events := []domain.InvestmentEvent{
		event("sell", civil.Date{Year: 2024, Month: 3, Day: 1}, "-12", "15"),
		event("b2", civil.Date{Year: 2024, Month: 2, Day: 1}, "5", "12"),
		event("b1", civil.Date{Year: 2024, Month: 1, Day: 1}, "10", "10"),
	}

	layers := Replay(events)
	if len(layers) != 1 || layers[0].EventID != "b2" || !layers[0].Quantity.Equal(d("3")) {
		t.Fatalf("Expected 3 left of b2, got %+v", layers)
	}

	for id, want := range map[string]string{"b1": "0", "b2": "3", "sell": "0"} {
		got, err := RemainingQuantity(events, id)
		if err != nil {
			t.Fatalf("RemainingQuantity(%s): %v", id, err)
		}
		if !got.Equal(d(want)) {
			t.Errorf("RemainingQuantity(%s): expected %s, got %s", id, want, got)
		}
	}
	if _, err := RemainingQuantity(events, "missing"); err == nil {
		t.Error("Expected error for an unknown event")
	}

	if got := Holdings(events); !got.Equal(d("3")) {
		t.Errorf("Expected holdings 3, got %s", got)
	}
	if got := CostBasis(events); !got.Equal(d("36")) {
		t.Errorf("Expected cost basis 36, got %s", got)
	}
}

func TestReplaySameDayBuysFirst(t *testing.T) {
	day := civil.Date{Year: 2024, Month: 5, Day: 2}
	events := []domain.InvestmentEvent{
		event("a-sell", day, "-4", "11"),
		event("z-buy", day, "4", "10"),
	}
	if got := Holdings(events); !got.IsZero() {
		t.Errorf("Expected the same-day buy to cover the sell, got %s", got)
	}
}

func TestReplayIgnoresExcessSell(t *testing.T) {
	events := []domain.InvestmentEvent{
		event("b1", civil.Date{Year: 2024, Month: 1, Day: 1}, "2", "10"),
		event("s1", civil.Date{Year: 2024, Month: 1, Day: 2}, "-5", "10"),
		event("b2", civil.Date{Year: 2024, Month: 1, Day: 3}, "1", "10"),
	}
	if got := Holdings(events); !got.Equal(d("1")) {
		t.Errorf("Expected only the later buy to remain, got %s", got)
	}
	if got := Oversold(events); !got.Equal(d("3")) {
		t.Errorf("Expected 3 oversold, got %s", got)
	}
}

func TestOversoldBackdatedSell(t *testing.T) {
	buy := event("b1", civil.Date{Year: 2024, Month: 3, Day: 1}, "10", "10")
	sell := event("s1", civil.Date{Year: 2024, Month: 1, Day: 1}, "-5", "10")

	if got := Oversold([]domain.InvestmentEvent{buy}); !got.IsZero() {
		t.Errorf("Expected nothing oversold, got %s", got)
	}
	if got := Oversold([]domain.InvestmentEvent{buy, sell}); !got.Equal(d("5")) {
		t.Errorf("Expected the sell before the buy to be oversold, got %s", got)
	}
}

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()

	unlock := k.Lock("a")
	acquired := make(chan struct{})
	go func() {
		release := k.Lock("a")
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("Second Lock on the same key must block")
	case <-time.After(20 * time.Millisecond):
	}

	other := k.Lock("b")
	other()

	unlock()
	<-acquired

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			k.Lock("c")()
		}()
	}
	wg.Wait()
	if n := k.size(); n != 0 {
		t.Errorf("Expected released keys to be forgotten, got %d", n)
	}
}
