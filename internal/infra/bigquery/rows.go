package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/dvloznov/ledger-engine/internal/domain"
)

type AccountRow struct {
	AccountID string `bigquery:"account_id"` // REQUIRED
	UserID    string `bigquery:"user_id"`    // REQUIRED

	Name     string `bigquery:"name"`     // NULLABLE
	Kind     string `bigquery:"kind"`     // REQUIRED
	Currency string `bigquery:"currency"` // NULLABLE

	Balance *big.Rat `bigquery:"balance"` // NULLABLE NUMERIC, NULL for derived balances

	ClosingDay bigquery.NullInt64 `bigquery:"closing_day"` // NULLABLE
	PaymentDay bigquery.NullInt64 `bigquery:"payment_day"` // NULLABLE

	Active    bool      `bigquery:"active"`
	CreatedAt time.Time `bigquery:"created_at"`

	ExportRunID string    `bigquery:"export_run_id"` // REQUIRED
	ExportedAt  time.Time `bigquery:"exported_at"`   // REQUIRED
}

type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED
	UserID        string `bigquery:"user_id"`        // REQUIRED
	AccountID     string `bigquery:"account_id"`     // REQUIRED

	Kind        string   `bigquery:"kind"`        // REQUIRED
	Description string   `bigquery:"description"` // NULLABLE
	Amount      *big.Rat `bigquery:"amount"`      // REQUIRED NUMERIC

	TransactionDate    civil.Date        `bigquery:"transaction_date"`     // REQUIRED
	Frequency          string            `bigquery:"frequency"`            // NULLABLE
	NextRecurrenceDate bigquery.NullDate `bigquery:"next_recurrence_date"` // NULLABLE

	OriginalTransactionID bigquery.NullString `bigquery:"original_transaction_id"` // NULLABLE
	GroupID               bigquery.NullString `bigquery:"group_id"`                // NULLABLE
	InstallmentNumber     bigquery.NullInt64  `bigquery:"installment_number"`      // NULLABLE
	InstallmentTotal      bigquery.NullInt64  `bigquery:"installment_total"`       // NULLABLE

	State     string    `bigquery:"state"`      // REQUIRED
	UpdatedAt time.Time `bigquery:"updated_at"` // REQUIRED

	ExportRunID string    `bigquery:"export_run_id"` // REQUIRED
	ExportedAt  time.Time `bigquery:"exported_at"`   // REQUIRED
}

type InvestmentEventRow struct {
	EventID   string `bigquery:"event_id"`   // REQUIRED
	UserID    string `bigquery:"user_id"`    // REQUIRED
	AccountID string `bigquery:"account_id"` // REQUIRED

	AssetName     string `bigquery:"asset_name"`     // REQUIRED
	AssetCategory string `bigquery:"asset_category"` // REQUIRED

	Quantity  *big.Rat `bigquery:"quantity"`   // REQUIRED BIGNUMERIC
	UnitPrice *big.Rat `bigquery:"unit_price"` // REQUIRED BIGNUMERIC
	Fee       *big.Rat `bigquery:"fee"`        // NULLABLE BIGNUMERIC

	EventDate civil.Date `bigquery:"event_date"` // REQUIRED
	Currency  string     `bigquery:"currency"`   // NULLABLE
	Active    bool       `bigquery:"active"`
	UpdatedAt time.Time  `bigquery:"updated_at"` // REQUIRED

	ExportRunID string    `bigquery:"export_run_id"` // REQUIRED
	ExportedAt  time.Time `bigquery:"exported_at"`   // REQUIRED
}

// Export run statuses.
const (
	RunRunning = "RUNNING"
	RunSuccess = "SUCCESS"
	RunFailed  = "FAILED"
)

type ExportRunRow struct {
	ExportRunID string `bigquery:"export_run_id"` // REQUIRED

	StartedAt  time.Time              `bigquery:"started_at"`  // REQUIRED
	FinishedAt bigquery.NullTimestamp `bigquery:"finished_at"` // NULLABLE
	Watermark  bigquery.NullTimestamp `bigquery:"watermark"`   // NULLABLE

	Status string `bigquery:"status"` // REQUIRED

	Accounts     int64 `bigquery:"accounts"`
	Transactions int64 `bigquery:"transactions"`
	Events       int64 `bigquery:"events"`

	SnapshotURI  bigquery.NullString `bigquery:"snapshot_uri"`  // NULLABLE
	ErrorMessage bigquery.NullString `bigquery:"error_message"` // NULLABLE
}

// NewAccountRow converts an account for export.
func NewAccountRow(a domain.Account, runID string, exportedAt time.Time) *AccountRow {
	row := &AccountRow{
		AccountID:   a.ID,
		UserID:      a.UserID,
		Name:        a.Name,
		Kind:        string(a.Kind),
		Currency:    a.Currency,
		Active:      a.Active,
		CreatedAt:   a.CreatedAt,
		ExportRunID: runID,
		ExportedAt:  exportedAt,
	}
	if a.Kind.Valid() && a.Kind.StoresBalance() {
		row.Balance = a.StoredBalance.Rat()
	}
	if a.Billing != nil {
		row.ClosingDay = bigquery.NullInt64{Int64: int64(a.Billing.ClosingDay), Valid: true}
		row.PaymentDay = bigquery.NullInt64{Int64: int64(a.Billing.PaymentDay), Valid: true}
	}
	return row
}

// NewTransactionRow converts a transaction for export.
func NewTransactionRow(t domain.Transaction, runID string, exportedAt time.Time) *TransactionRow {
	row := &TransactionRow{
		TransactionID:   t.ID,
		UserID:          t.UserID,
		AccountID:       t.AccountID,
		Kind:            string(t.Kind),
		Description:     t.Description,
		Amount:          t.Amount.Rat(),
		TransactionDate: t.Date,
		Frequency:       string(t.Frequency),
		State:           string(t.State),
		UpdatedAt:       t.UpdatedAt,
		ExportRunID:     runID,
		ExportedAt:      exportedAt,
	}
	if t.NextRecurrenceDate != nil {
		row.NextRecurrenceDate = bigquery.NullDate{Date: *t.NextRecurrenceDate, Valid: true}
	}
	if t.OriginalTransactionID != "" {
		row.OriginalTransactionID = bigquery.NullString{StringVal: t.OriginalTransactionID, Valid: true}
	}
	if ref := t.Installment; ref != nil {
		row.GroupID = bigquery.NullString{StringVal: ref.GroupID, Valid: true}
		row.InstallmentNumber = bigquery.NullInt64{Int64: int64(ref.Number), Valid: true}
		row.InstallmentTotal = bigquery.NullInt64{Int64: int64(ref.Total), Valid: true}
	}
	return row
}

// NewInvestmentEventRow converts an investment event for export.
func NewInvestmentEventRow(e domain.InvestmentEvent, runID string, exportedAt time.Time) *InvestmentEventRow {
	return &InvestmentEventRow{
		EventID:       e.ID,
		UserID:        e.UserID,
		AccountID:     e.AccountID,
		AssetName:     e.AssetName,
		AssetCategory: string(e.AssetCategory),
		Quantity:      e.Quantity.Rat(),
		UnitPrice:     e.UnitPrice.Rat(),
		Fee:           e.Fee.Rat(),
		EventDate:     e.Date,
		Currency:      e.Currency,
		Active:        e.Active,
		UpdatedAt:     e.UpdatedAt,
		ExportRunID:   runID,
		ExportedAt:    exportedAt,
	}
}
