package calendar

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
)

func date(s string) civil.Date {
	d, err := civil.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestDaysIn(t *testing.T) {
	tests := []struct {
		year  int
		month time.Month
		want  int
	}{
		{2024, time.February, 29},
		{2023, time.February, 28},
		{1900, time.February, 28},
		{2000, time.February, 29},
		{2024, time.April, 30},
		{2024, time.December, 31},
	}
	for _, tt := range tests {
		if got := DaysIn(tt.year, tt.month); got != tt.want {
			t.Errorf("DaysIn(%d, %s) = %d, want %d", tt.year, tt.month, got, tt.want)
		}
	}
}

func TestAddMonthsClamped(t *testing.T) {
	tests := []struct {
		from string
		n    int
		want string
	}{
		{"2024-01-31", 1, "2024-02-29"},
		{"2023-01-31", 1, "2023-02-28"},
		{"2024-03-31", 1, "2024-04-30"},
		{"2024-12-15", 1, "2025-01-15"},
		{"2024-11-30", 3, "2025-02-28"},
	}
	for _, tt := range tests {
		t.Run(tt.from, func(t *testing.T) {
			if got := AddMonthsClamped(date(tt.from), tt.n); got != date(tt.want) {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAddMonthsAnchored(t *testing.T) {
	base := date("2024-01-31")
	want := []string{"2024-01-31", "2024-02-29", "2024-03-31", "2024-04-30"}
	for i, w := range want {
		if got := AddMonthsAnchored(base, i, 31); got != date(w) {
			t.Errorf("month %d: got %s, want %s", i, got, w)
		}
	}
}

func TestAddYearsClamped(t *testing.T) {
	if got := AddYearsClamped(date("2024-02-29"), 1); got != date("2025-02-28") {
		t.Errorf("got %s, want 2025-02-28", got)
	}
	if got := AddYearsClamped(date("2023-06-10"), 1); got != date("2024-06-10") {
		t.Errorf("got %s, want 2024-06-10", got)
	}
}

func TestInRange(t *testing.T) {
	start, end := date("2024-03-01"), date("2024-04-01")
	if !InRange(start, start, end) {
		t.Error("Expected start to be inclusive")
	}
	if InRange(end, start, end) {
		t.Error("Expected end to be exclusive")
	}
	if Compare(start, end) != -1 || Compare(end, start) != 1 || Compare(start, start) != 0 {
		t.Error("Unexpected Compare result")
	}
}

func TestToday(t *testing.T) {
	now := time.Date(2024, 3, 10, 23, 30, 0, 0, time.UTC)
	loc := time.FixedZone("BRT", -3*3600)
	if got := Today(now, loc); got != date("2024-03-10") {
		t.Errorf("got %s", got)
	}
	if got := Today(now, time.FixedZone("JST", 9*3600)); got != date("2024-03-11") {
		t.Errorf("got %s", got)
	}
}
