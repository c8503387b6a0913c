package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledger-engine/internal/amount"
	"github.com/dvloznov/ledger-engine/internal/domain"
	"github.com/dvloznov/ledger-engine/internal/logger"
)

// NewAccount is the caller input for opening an account.
type NewAccount struct {
	Name           string
	Kind           domain.AccountKind
	Currency       string
	Billing        *domain.BillingDays
	OpeningBalance decimal.Decimal
}

// CreateAccount validates and persists a new account.
func (l *Ledger) CreateAccount(ctx context.Context, userID string, in NewAccount) (*domain.Account, error) {
	currency, err := amount.NormalizeCurrency(in.Currency)
	if err != nil {
		return nil, domain.Invalid("currency", "%v", err)
	}
	if err := amount.Validate(in.OpeningBalance); err != nil {
		return nil, domain.Invalid("opening_balance", "%v", err)
	}

	acc := &domain.Account{
		ID:            l.newID(),
		UserID:        userID,
		Name:          domain.SanitizeDescription(in.Name),
		Kind:          in.Kind,
		Currency:      currency,
		StoredBalance: decimal.Zero,
		Billing:       in.Billing,
		Active:        true,
		CreatedAt:     l.now().UTC(),
	}
	if err := acc.Validate(); err != nil {
		return nil, err
	}
	if acc.Kind == domain.AccountInvestment && !in.OpeningBalance.IsZero() {
		return nil, domain.Invalid("opening_balance", "investment accounts derive their balance from events")
	}
	if acc.Kind.StoresBalance() {
		acc.StoredBalance = in.OpeningBalance
	}

	if err := l.store.WithTx(ctx, func(tx Tx) error {
		return tx.InsertAccount(ctx, acc)
	}); err != nil {
		return nil, fmt.Errorf("CreateAccount: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("account_id", acc.ID).
		Str("kind", string(acc.Kind)).
		Msg("Account created")
	return acc, nil
}

// CloseAccount stops an account from receiving transactions. Recurring
// series on it stop at the next sweep. Stored balances are left as they are.
func (l *Ledger) CloseAccount(ctx context.Context, userID, accountID string) (*domain.Account, error) {
	var acc *domain.Account
	err := l.store.WithTx(ctx, func(tx Tx) error {
		var err error
		if acc, err = tx.GetAccount(ctx, userID, accountID); err != nil {
			return err
		}
		if !acc.Active {
			return &domain.ConflictError{Entity: "account", ID: acc.ID, State: "INACTIVE", Reason: "account is already closed"}
		}
		if err := tx.DeactivateAccount(ctx, userID, accountID); err != nil {
			return err
		}
		acc.Active = false
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("CloseAccount: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().Str("account_id", accountID).Msg("Account closed")
	return acc, nil
}

// GetAccount returns one of the user's accounts.
func (l *Ledger) GetAccount(ctx context.Context, userID, accountID string) (*domain.Account, error) {
	var acc *domain.Account
	err := l.store.WithTx(ctx, func(tx Tx) error {
		var err error
		acc, err = tx.GetAccount(ctx, userID, accountID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("GetAccount: %w", err)
	}
	return acc, nil
}

// ListAccounts returns every account of the user.
func (l *Ledger) ListAccounts(ctx context.Context, userID string) ([]domain.Account, error) {
	var out []domain.Account
	err := l.store.WithTx(ctx, func(tx Tx) error {
		var err error
		out, err = tx.ListAccounts(ctx, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ListAccounts: %w", err)
	}
	return out, nil
}

// AccountBalance returns the stored balance, or for investment accounts the
// value derived from their events.
func (l *Ledger) AccountBalance(ctx context.Context, userID, accountID string) (decimal.Decimal, error) {
	acc, err := l.GetAccount(ctx, userID, accountID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("AccountBalance: %w", err)
	}
	if acc.Kind.StoresBalance() {
		return acc.StoredBalance, nil
	}
	if l.valuer == nil {
		return decimal.Zero, fmt.Errorf("AccountBalance: no valuer configured for %s accounts", acc.Kind)
	}
	v, err := l.valuer.AccountValue(ctx, userID, accountID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("AccountBalance: valuation: %w", err)
	}
	return v, nil
}

// loadWritableAccount fetches an account that may receive transactions.
func loadWritableAccount(ctx context.Context, tx Tx, userID, accountID string) (*domain.Account, error) {
	acc, err := tx.GetAccount(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}
	if acc.Kind == domain.AccountInvestment {
		return nil, domain.Invalid("account_id", "investment accounts do not accept transactions")
	}
	if !acc.Active {
		return nil, &domain.ConflictError{Entity: "account", ID: acc.ID, State: "INACTIVE", Reason: "account is closed"}
	}
	return acc, nil
}
