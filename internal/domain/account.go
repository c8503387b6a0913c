package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AccountKind is the closed set of account kinds the ledger understands.
type AccountKind string

const (
	AccountChecking   AccountKind = "CHECKING"
	AccountSavings    AccountKind = "SAVINGS"
	AccountCreditCard AccountKind = "CREDIT_CARD"
	AccountInvestment AccountKind = "INVESTMENT"
)

// legacyAccountKinds maps the free-form labels older clients send to a kind.
var legacyAccountKinds = map[string]AccountKind{
	"CHECKING":          AccountChecking,
	"CURRENT":           AccountChecking,
	"CONTA_CORRENTE":    AccountChecking,
	"CONTA CORRENTE":    AccountChecking,
	"CORRENTE":          AccountChecking,
	"SAVINGS":           AccountSavings,
	"POUPANCA":          AccountSavings,
	"POUPANÇA":          AccountSavings,
	"CREDIT_CARD":       AccountCreditCard,
	"CREDIT CARD":       AccountCreditCard,
	"CREDITCARD":        AccountCreditCard,
	"CARD":              AccountCreditCard,
	"CARTAO":            AccountCreditCard,
	"CARTAO_CREDITO":    AccountCreditCard,
	"CARTAO DE CREDITO": AccountCreditCard,
	"CARTÃO DE CRÉDITO": AccountCreditCard,
	"INVESTMENT":        AccountInvestment,
	"INVESTMENTS":       AccountInvestment,
	"INVESTIMENTO":      AccountInvestment,
	"INVESTIMENTOS":     AccountInvestment,
	"BROKERAGE":         AccountInvestment,
}

// ParseAccountKind converts an external label into an AccountKind.
// Matching is exact after trimming and upper-casing; unknown labels are rejected.
func ParseAccountKind(s string) (AccountKind, error) {
	key := strings.ToUpper(strings.TrimSpace(s))
	if kind, ok := legacyAccountKinds[key]; ok {
		return kind, nil
	}
	return "", Invalid("account kind", "unknown kind %q", s)
}

// Valid reports whether k is one of the declared kinds.
func (k AccountKind) Valid() bool {
	switch k {
	case AccountChecking, AccountSavings, AccountCreditCard, AccountInvestment:
		return true
	}
	return false
}

// StoresBalance reports whether the ledger keeps a stored balance for the kind.
// Investment balances are always derived from events.
func (k AccountKind) StoresBalance() bool {
	switch k {
	case AccountChecking, AccountSavings, AccountCreditCard:
		return true
	case AccountInvestment:
		return false
	}
	panic(fmt.Sprintf("unknown account kind %q", string(k)))
}

// BillingDays holds the statement days of a credit card account.
type BillingDays struct {
	ClosingDay int `json:"closing_day"`
	PaymentDay int `json:"payment_day"`
}

func (b BillingDays) validate() error {
	if b.ClosingDay < 1 || b.ClosingDay > 31 {
		return Invalid("closing_day", "must be between 1 and 31, got %d", b.ClosingDay)
	}
	if b.PaymentDay < 1 || b.PaymentDay > 31 {
		return Invalid("payment_day", "must be between 1 and 31, got %d", b.PaymentDay)
	}
	return nil
}

// Account is a user-owned container of transactions or investment events.
type Account struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	Name          string          `json:"name"`
	Kind          AccountKind     `json:"kind"`
	Currency      string          `json:"currency"`
	StoredBalance decimal.Decimal `json:"stored_balance"`
	Billing       *BillingDays    `json:"billing,omitempty"`
	Active        bool            `json:"active"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Validate enforces the kind/billing-day invariant: billing days are present
// if and only if the account is a credit card.
func (a *Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return Invalid("name", "is required")
	}
	if !a.Kind.Valid() {
		return Invalid("kind", "unknown kind %q", string(a.Kind))
	}
	if a.Kind == AccountCreditCard {
		if a.Billing == nil {
			return Invalid("billing", "credit card accounts need closing and payment days")
		}
		return a.Billing.validate()
	}
	if a.Billing != nil {
		return Invalid("billing", "only credit card accounts carry closing and payment days")
	}
	return nil
}

// IsCreditCard reports whether the account follows billing-cycle accounting.
func (a *Account) IsCreditCard() bool { return a.Kind == AccountCreditCard }
