package bigquery

import (
	"math/big"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledger-engine/internal/domain"
)

func TestNewAccountRow(t *testing.T) {
	exported := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	card := NewAccountRow(domain.Account{
		ID: "a1", UserID: "u1", Kind: domain.AccountCreditCard, Currency: "BRL",
		StoredBalance: decimal.RequireFromString("-12.34"),
		Billing:       &domain.BillingDays{ClosingDay: 5, PaymentDay: 12},
	}, "run-1", exported)
	if card.Balance == nil || card.Balance.Cmp(big.NewRat(-1234, 100)) != 0 {
		t.Errorf("Expected balance -12.34, got %v", card.Balance)
	}
	if !card.ClosingDay.Valid || card.ClosingDay.Int64 != 5 || card.PaymentDay.Int64 != 12 {
		t.Errorf("Expected billing days, got %+v %+v", card.ClosingDay, card.PaymentDay)
	}
	if card.ExportRunID != "run-1" || !card.ExportedAt.Equal(exported) {
		t.Errorf("Unexpected run fields %+v", card)
	}

	broker := NewAccountRow(domain.Account{ID: "a2", Kind: domain.AccountInvestment}, "run-1", exported)
	if broker.Balance != nil {
		t.Errorf("Expected NULL balance for a derived account, got %v", broker.Balance)
	}
	if broker.ClosingDay.Valid {
		t.Error("Expected NULL billing days")
	}
}

func TestNewTransactionRow(t *testing.T) {
	next := civil.Date{Year: 2024, Month: 4, Day: 1}
	row := NewTransactionRow(domain.Transaction{
		ID: "t1", Kind: domain.KindExpense, Amount: decimal.RequireFromString("100.50"),
		Date: civil.Date{Year: 2024, Month: 3, Day: 1}, Frequency: domain.FrequencyMonthly,
		NextRecurrenceDate: &next, State: domain.StateActive,
	}, "run-1", time.Now())

	if row.Amount.Cmp(big.NewRat(201, 2)) != 0 {
		t.Errorf("Expected amount 100.50, got %v", row.Amount)
	}
	if !row.NextRecurrenceDate.Valid || row.NextRecurrenceDate.Date != next {
		t.Errorf("Expected next recurrence date, got %+v", row.NextRecurrenceDate)
	}
	if row.GroupID.Valid || row.OriginalTransactionID.Valid {
		t.Error("Expected NULL group and parent")
	}

	inst := NewTransactionRow(domain.Transaction{
		ID: "t2", Amount: decimal.NewFromInt(10), State: domain.StateSettled,
		OriginalTransactionID: "t0",
		Installment:           &domain.InstallmentRef{GroupID: "g1", Number: 2, Total: 3},
	}, "run-1", time.Now())
	if inst.GroupID.StringVal != "g1" || inst.InstallmentNumber.Int64 != 2 || inst.InstallmentTotal.Int64 != 3 {
		t.Errorf("Unexpected installment fields %+v", inst)
	}
	if inst.OriginalTransactionID.StringVal != "t0" || inst.State != "SETTLED" {
		t.Errorf("Unexpected row %+v", inst)
	}
}

func TestNewInvestmentEventRow(t *testing.T) {
	row := NewInvestmentEventRow(domain.InvestmentEvent{
		ID: "e1", AssetName: "PETR4", AssetCategory: domain.AssetStock,
		Quantity: decimal.RequireFromString("-0.5"), UnitPrice: decimal.RequireFromString("38.25"),
	}, "run-1", time.Now())
	if row.Quantity.Cmp(big.NewRat(-1, 2)) != 0 {
		t.Errorf("Expected quantity -0.5, got %v", row.Quantity)
	}
	if row.Fee == nil || row.Fee.Sign() != 0 {
		t.Errorf("Expected zero fee, got %v", row.Fee)
	}
}

func TestDatasetQualified(t *testing.T) {
	ds := Dataset{ProjectID: "p", DatasetID: "d"}
	if got := ds.qualified("export_runs"); got != "`p.d.export_runs`" {
		t.Errorf("Unexpected name %s", got)
	}
}
