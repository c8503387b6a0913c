package handlers

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-engine/internal/api/middleware"
	"github.com/dvloznov/ledger-engine/internal/domain"
	"github.com/dvloznov/ledger-engine/internal/ledger"
	"github.com/dvloznov/ledger-engine/internal/position"
)

// AccountsHandler handles account-related endpoints.
type AccountsHandler struct {
	ledger *ledger.Ledger
	engine *position.Engine
	log    zerolog.Logger
}

// NewAccountsHandler creates a new accounts handler.
func NewAccountsHandler(l *ledger.Ledger, engine *position.Engine, log zerolog.Logger) *AccountsHandler {
	return &AccountsHandler{
		ledger: l,
		engine: engine,
		log:    log,
	}
}

// Register adds the account routes to mux.
func (h *AccountsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/accounts", h.CreateAccount)
	mux.HandleFunc("GET /api/accounts", h.ListAccounts)
	mux.HandleFunc("GET /api/accounts/{id}", h.GetAccount)
	mux.HandleFunc("POST /api/accounts/{id}/close", h.CloseAccount)
	mux.HandleFunc("GET /api/accounts/{id}/balance", h.GetBalance)
	mux.HandleFunc("GET /api/accounts/{id}/statement", h.GetStatement)
	mux.HandleFunc("GET /api/accounts/{id}/valuation", h.GetValuation)
}

type createAccountRequest struct {
	Name           string              `json:"name"`
	Kind           string              `json:"kind"`
	Currency       string              `json:"currency"`
	OpeningBalance string              `json:"opening_balance"`
	Billing        *domain.BillingDays `json:"billing,omitempty"`
}

// CreateAccount handles POST /api/accounts
func (h *AccountsHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createAccountRequest
	if !decodeBody(w, r, &req) {
		return
	}

	kind, err := domain.ParseAccountKind(req.Kind)
	if err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}
	opening, err := parseOptionalAmount("opening_balance", req.OpeningBalance)
	if err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}

	acc, err := h.ledger.CreateAccount(ctx, middleware.UserID(ctx), ledger.NewAccount{
		Name:           req.Name,
		Kind:           kind,
		Currency:       req.Currency,
		Billing:        req.Billing,
		OpeningBalance: opening,
	})
	if err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, acc)
}

// ListAccounts handles GET /api/accounts
func (h *AccountsHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accounts, err := h.ledger.ListAccounts(ctx, middleware.UserID(ctx))
	if err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, list("accounts", accounts))
}

// GetAccount handles GET /api/accounts/{id}
func (h *AccountsHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	acc, err := h.ledger.GetAccount(ctx, middleware.UserID(ctx), r.PathValue("id"))
	if err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, acc)
}

// CloseAccount handles POST /api/accounts/{id}/close
func (h *AccountsHandler) CloseAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	acc, err := h.ledger.CloseAccount(ctx, middleware.UserID(ctx), r.PathValue("id"))
	if err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, acc)
}

// GetBalance handles GET /api/accounts/{id}/balance
// Investment accounts report their derived value.
func (h *AccountsHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := r.PathValue("id")

	balance, err := h.ledger.AccountBalance(ctx, middleware.UserID(ctx), accountID)
	if err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"account_id": accountID,
		"balance":    balance,
	})
}

// GetStatement handles GET /api/accounts/{id}/statement?date=YYYY-MM-DD
// The date defaults to today.
func (h *AccountsHandler) GetStatement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	date, err := optionalDate(r, "date")
	if err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}
	on := h.ledger.Today()
	if date != nil {
		on = *date
	}

	summary, err := h.ledger.Statement(ctx, middleware.UserID(ctx), r.PathValue("id"), on)
	if err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, summary)
}

// GetValuation handles GET /api/accounts/{id}/valuation
func (h *AccountsHandler) GetValuation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	valuation, err := h.engine.Valuation(ctx, middleware.UserID(ctx), r.PathValue("id"))
	if err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}
	if len(valuation.Skipped) > 0 {
		h.log.Warn().
			Str("account_id", valuation.AccountID).
			Int("skipped", len(valuation.Skipped)).
			Msg("Valuation skipped assets")
	}

	middleware.WriteJSON(w, http.StatusOK, valuation)
}
