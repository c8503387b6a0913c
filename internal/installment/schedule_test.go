package installment

import (
	"testing"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledger-engine/internal/amount"
)

func date(s string) civil.Date {
	d, err := civil.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestSchedule_MonthlyFromMonthEnd(t *testing.T) {
	entries, err := Schedule(decimal.NewFromInt(1200), 12, date("2024-01-31"), 30)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(entries) != 12 {
		t.Fatalf("Expected 12 entries, got %d", len(entries))
	}

	wantDates := map[int]string{1: "2024-01-31", 2: "2024-02-29", 3: "2024-03-31", 4: "2024-04-30", 12: "2024-12-31"}
	for n, want := range wantDates {
		if got := entries[n-1].Date; got != date(want) {
			t.Errorf("installment %d date = %s, want %s", n, got, want)
		}
	}
	for _, e := range entries {
		if !e.Amount.Equal(decimal.NewFromInt(100)) {
			t.Errorf("installment %d amount = %s, want 100", e.Number, e.Amount)
		}
	}
}

func TestSchedule_FixedInterval(t *testing.T) {
	entries, err := Schedule(decimal.NewFromInt(100), 3, date("2024-01-01"), 15)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	want := []struct {
		date   string
		amount string
	}{
		{"2024-01-01", "33.33"},
		{"2024-01-16", "33.33"},
		{"2024-01-31", "33.34"},
	}
	for i, w := range want {
		if entries[i].Number != i+1 {
			t.Errorf("entry %d has number %d", i, entries[i].Number)
		}
		if entries[i].Date != date(w.date) {
			t.Errorf("entry %d date = %s, want %s", i+1, entries[i].Date, w.date)
		}
		if !entries[i].Amount.Equal(decimal.RequireFromString(w.amount)) {
			t.Errorf("entry %d amount = %s, want %s", i+1, entries[i].Amount, w.amount)
		}
	}
}

func TestSchedule_SumEqualsTotal(t *testing.T) {
	total := decimal.RequireFromString("1999.99")
	for n := 2; n <= 24; n++ {
		entries, err := Schedule(total, n, date("2024-05-31"), 31)
		if err != nil {
			t.Fatalf("n=%d: %v", n, err)
		}
		sum := decimal.Zero
		for _, e := range entries {
			sum = sum.Add(e.Amount)
		}
		if !sum.Equal(amount.Round2(total)) {
			t.Errorf("n=%d: sum %s != total %s", n, sum, total)
		}
		if entries[0].Date != date("2024-05-31") {
			t.Errorf("n=%d: first installment must fall on the first date", n)
		}
	}
}

func TestSchedule_Errors(t *testing.T) {
	tests := []struct {
		name     string
		total    decimal.Decimal
		n        int
		interval int
	}{
		{name: "single installment", total: decimal.NewFromInt(10), n: 1, interval: 30},
		{name: "zero interval", total: decimal.NewFromInt(10), n: 2, interval: 0},
		{name: "zero total", total: decimal.Zero, n: 2, interval: 30},
		{name: "negative total", total: decimal.NewFromInt(-5), n: 2, interval: 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Schedule(tt.total, tt.n, date("2024-01-01"), tt.interval); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestIsMonthly(t *testing.T) {
	for days, want := range map[int]bool{7: false, 27: false, 28: true, 30: true, 31: true, 32: false} {
		if got := IsMonthly(days); got != want {
			t.Errorf("IsMonthly(%d) = %v, want %v", days, got, want)
		}
	}
}
