package domain

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// InstallmentGroup is a total amount split into N dated transactions.
// Only Description, AccountID and CategoryIDs may change after creation.
type InstallmentGroup struct {
	ID                   string          `json:"id"`
	UserID               string          `json:"user_id"`
	AccountID            string          `json:"account_id"`
	Kind                 TransactionKind `json:"kind"`
	Description          string          `json:"description"`
	TotalAmount          decimal.Decimal `json:"total_amount"`
	InstallmentCount     int             `json:"installment_count"`
	PerInstallmentAmount decimal.Decimal `json:"per_installment_amount"`
	FirstDate            civil.Date      `json:"first_date"`
	IntervalDays         int             `json:"interval_days"`
	CategoryIDs          []string        `json:"category_ids,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
}

// NewInstallmentGroup is the caller input for an installment purchase or income.
type NewInstallmentGroup struct {
	AccountID        string
	Kind             TransactionKind
	Description      string
	TotalAmount      decimal.Decimal
	InstallmentCount int
	FirstDate        civil.Date
	IntervalDays     int
	CategoryIDs      []string
}

// GroupMetadata holds the mutable fields of an installment group.
type GroupMetadata struct {
	Description *string
	AccountID   *string
	CategoryIDs []string
}
