package domain

import (
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// TransactionKind distinguishes debits from credits.
type TransactionKind string

const (
	KindExpense TransactionKind = "EXPENSE"
	KindIncome  TransactionKind = "INCOME"
)

// ParseTransactionKind converts an external label into a TransactionKind.
func ParseTransactionKind(s string) (TransactionKind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "EXPENSE", "DEBIT", "DESPESA":
		return KindExpense, nil
	case "INCOME", "CREDIT", "RECEITA":
		return KindIncome, nil
	}
	return "", Invalid("kind", "unknown transaction kind %q", s)
}

// Frequency is the recurrence tag of a transaction.
type Frequency string

const (
	FrequencyOnce    Frequency = "ONCE"
	FrequencyWeekly  Frequency = "WEEKLY"
	FrequencyMonthly Frequency = "MONTHLY"
	FrequencyAnnual  Frequency = "ANNUAL"
)

// ParseFrequency converts an external label into a Frequency.
// An empty label means a one-off transaction.
func ParseFrequency(s string) (Frequency, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "ONCE", "UNICA", "ÚNICA":
		return FrequencyOnce, nil
	case "WEEKLY", "SEMANAL":
		return FrequencyWeekly, nil
	case "MONTHLY", "MENSAL":
		return FrequencyMonthly, nil
	case "ANNUAL", "YEARLY", "ANUAL":
		return FrequencyAnnual, nil
	}
	return "", Invalid("frequency", "unknown frequency %q", s)
}

// State is the lifecycle position of a transaction.
//
//	ACTIVE   --delete--> REVERSED (kept for history, balance effect undone)
//	ACTIVE   --settle--> SETTLED  (installments only, statement consumed it)
//	SETTLED  --delete--> physically removed, no balance effect
type State string

const (
	StateActive   State = "ACTIVE"
	StateReversed State = "REVERSED"
	StateSettled  State = "SETTLED"
)

// InstallmentRef ties a transaction to its installment group. The pointer on
// Transaction makes the group id, sequence and total all-or-nothing.
type InstallmentRef struct {
	GroupID string `json:"group_id"`
	Number  int    `json:"number"`
	Total   int    `json:"total"`
}

// Transaction is an expense or an income recorded against a non-investment account.
type Transaction struct {
	ID                    string          `json:"id"`
	UserID                string          `json:"user_id"`
	AccountID             string          `json:"account_id"`
	Kind                  TransactionKind `json:"kind"`
	Description           string          `json:"description"`
	Amount                decimal.Decimal `json:"amount"`
	Date                  civil.Date      `json:"date"`
	Frequency             Frequency       `json:"frequency"`
	NextRecurrenceDate    *civil.Date     `json:"next_recurrence_date,omitempty"`
	OriginalTransactionID string          `json:"original_transaction_id,omitempty"`
	Installment           *InstallmentRef `json:"installment,omitempty"`
	State                 State           `json:"state"`
	CategoryIDs           []string        `json:"category_ids,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// Delta is the stored-balance change the transaction causes while ACTIVE.
func (t *Transaction) Delta() decimal.Decimal {
	return SignedDelta(t.Kind, t.Amount)
}

// IsInstallment reports whether the transaction belongs to an installment group.
func (t *Transaction) IsInstallment() bool { return t.Installment != nil }

// CheckState rejects combinations the state machine does not allow.
func (t *Transaction) CheckState() error {
	switch t.State {
	case StateActive, StateReversed:
		return nil
	case StateSettled:
		if t.Installment == nil {
			return Invalid("state", "only installments can be settled")
		}
		return nil
	}
	return Invalid("state", "unknown state %q", string(t.State))
}

// SignedDelta returns -amount for expenses and +amount for incomes.
func SignedDelta(kind TransactionKind, amount decimal.Decimal) decimal.Decimal {
	if kind == KindExpense {
		return amount.Neg()
	}
	return amount
}

// NewTransaction is the caller input for recording a single transaction.
// Amounts and descriptions are expected to be validated at the boundary.
type NewTransaction struct {
	AccountID   string
	Kind        TransactionKind
	Description string
	Amount      decimal.Decimal
	Date        civil.Date
	Frequency   Frequency
	CategoryIDs []string
}

// SanitizeDescription trims whitespace, collapses internal runs of spaces and
// drops control characters.
func SanitizeDescription(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r == '\n' || r == '\t' || r == '\r' || r == ' ':
			if !space {
				b.WriteByte(' ')
			}
			space = true
		case r < 0x20 || r == 0x7f:
			continue
		default:
			b.WriteRune(r)
			space = false
		}
	}
	const maxLen = 255
	out := b.String()
	if len([]rune(out)) > maxLen {
		out = string([]rune(out)[:maxLen])
	}
	return out
}
