package handlers

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-engine/internal/api/middleware"
	"github.com/dvloznov/ledger-engine/internal/domain"
	"github.com/dvloznov/ledger-engine/internal/ledger"
)

// TransactionsHandler handles transaction-related endpoints.
type TransactionsHandler struct {
	ledger *ledger.Ledger
	log    zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(l *ledger.Ledger, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{
		ledger: l,
		log:    log,
	}
}

// Register adds the transaction routes to mux.
func (h *TransactionsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/transactions", h.CreateTransaction)
	mux.HandleFunc("GET /api/transactions/{id}", h.GetTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", h.DeleteTransaction)
	mux.HandleFunc("POST /api/transactions/{id}/settle", h.SettleInstallment)
	mux.HandleFunc("GET /api/accounts/{id}/transactions", h.ListTransactions)
}

type createTransactionRequest struct {
	AccountID   string   `json:"account_id"`
	Kind        string   `json:"kind"`
	Description string   `json:"description"`
	Amount      string   `json:"amount"`
	Date        string   `json:"date"`
	Frequency   string   `json:"frequency,omitempty"`
	Categories  []string `json:"categories,omitempty"`
}

func (req createTransactionRequest) toDomain() (domain.NewTransaction, error) {
	kind, err := domain.ParseTransactionKind(req.Kind)
	if err != nil {
		return domain.NewTransaction{}, err
	}
	amt, err := parseAmount("amount", req.Amount)
	if err != nil {
		return domain.NewTransaction{}, err
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		return domain.NewTransaction{}, err
	}
	freq, err := domain.ParseFrequency(req.Frequency)
	if err != nil {
		return domain.NewTransaction{}, err
	}
	return domain.NewTransaction{
		AccountID:   req.AccountID,
		Kind:        kind,
		Description: domain.SanitizeDescription(req.Description),
		Amount:      amt,
		Date:        date,
		Frequency:   freq,
		CategoryIDs: req.Categories,
	}, nil
}

// CreateTransaction handles POST /api/transactions
func (h *TransactionsHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createTransactionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	in, err := req.toDomain()
	if err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}

	t, err := h.ledger.Create(ctx, middleware.UserID(ctx), in)
	if err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, t)
}

// GetTransaction handles GET /api/transactions/{id}
func (h *TransactionsHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	t, err := h.ledger.Get(ctx, middleware.UserID(ctx), r.PathValue("id"))
	if err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, t)
}

// DeleteTransaction handles DELETE /api/transactions/{id}
// The transaction is reversed, not removed.
func (h *TransactionsHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	t, err := h.ledger.Delete(ctx, middleware.UserID(ctx), r.PathValue("id"))
	if err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, t)
}

// SettleInstallment handles POST /api/transactions/{id}/settle
func (h *TransactionsHandler) SettleInstallment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	t, err := h.ledger.MarkInstallmentSettled(ctx, middleware.UserID(ctx), r.PathValue("id"))
	if err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, t)
}

// ListTransactions handles GET /api/accounts/{id}/transactions
// Query parameters: from, to (YYYY-MM-DD), include_inactive, limit.
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var opts ledger.ListOptions
	var err error
	if opts.From, err = optionalDate(r, "from"); err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}
	if opts.To, err = optionalDate(r, "to"); err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}
	if opts.Limit, err = queryInt(r, "limit", 0); err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}
	opts.IncludeInactive = r.URL.Query().Get("include_inactive") == "true"

	txs, err := h.ledger.ListByAccount(ctx, middleware.UserID(ctx), r.PathValue("id"), opts)
	if err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, list("transactions", txs))
}
