package ledger

import (
	"context"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledger-engine/internal/domain"
)

// Store opens storage transactions. Every ledger operation runs its writes
// inside a single WithTx call, so a failure leaves no partial effect.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of storage operations available inside a transaction.
// Every lookup is scoped to a user; rows owned by someone else are reported
// as domain.ErrNotFound.
type Tx interface {
	InsertAccount(ctx context.Context, a *domain.Account) error
	GetAccount(ctx context.Context, userID, accountID string) (*domain.Account, error)
	ListAccounts(ctx context.Context, userID string) ([]domain.Account, error)
	// AdjustBalance applies a relative delta: balance = balance + delta.
	AdjustBalance(ctx context.Context, userID, accountID string, delta decimal.Decimal) error
	DeactivateAccount(ctx context.Context, userID, accountID string) error

	InsertTransaction(ctx context.Context, t *domain.Transaction) error
	GetTransaction(ctx context.Context, userID, txID string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, f TransactionFilter) ([]domain.Transaction, error)
	SetTransactionState(ctx context.Context, userID, txID string, state domain.State) error
	SetNextRecurrence(ctx context.Context, userID, txID string, next *civil.Date) error
	UpdateTransactionDetails(ctx context.Context, t *domain.Transaction) error
	DeleteTransaction(ctx context.Context, userID, txID string) error
	// ListDueRecurrences returns ACTIVE transactions of any user whose
	// next recurrence date is on or before today.
	ListDueRecurrences(ctx context.Context, today civil.Date, limit int) ([]domain.Transaction, error)

	EnsureCategory(ctx context.Context, userID, name string) (string, error)
	SetTransactionCategories(ctx context.Context, txID string, categoryIDs []string) error

	InsertGroup(ctx context.Context, g *domain.InstallmentGroup) error
	GetGroup(ctx context.Context, userID, groupID string) (*domain.InstallmentGroup, error)
	UpdateGroup(ctx context.Context, g *domain.InstallmentGroup) error
}

// TransactionFilter narrows ListTransactions. Zero values mean no constraint.
type TransactionFilter struct {
	UserID    string
	AccountID string
	GroupID   string
	States    []domain.State
	From      *civil.Date // inclusive
	To        *civil.Date // exclusive
	Limit     int
}

// Valuer derives balances for accounts that do not store one.
type Valuer interface {
	AccountValue(ctx context.Context, userID, accountID string) (decimal.Decimal, error)
}
