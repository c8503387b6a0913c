package handlers

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-engine/internal/api/middleware"
	"github.com/dvloznov/ledger-engine/internal/domain"
	"github.com/dvloznov/ledger-engine/internal/ledger"
)

// InstallmentsHandler handles installment group endpoints.
type InstallmentsHandler struct {
	ledger *ledger.Ledger
	log    zerolog.Logger
}

// NewInstallmentsHandler creates a new installments handler.
func NewInstallmentsHandler(l *ledger.Ledger, log zerolog.Logger) *InstallmentsHandler {
	return &InstallmentsHandler{
		ledger: l,
		log:    log,
	}
}

// Register adds the installment group routes to mux.
func (h *InstallmentsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/installment-groups", h.CreateGroup)
	mux.HandleFunc("GET /api/installment-groups/{id}", h.GetGroup)
	mux.HandleFunc("PATCH /api/installment-groups/{id}", h.UpdateGroup)
}

type createGroupRequest struct {
	AccountID    string   `json:"account_id"`
	Kind         string   `json:"kind"`
	Description  string   `json:"description"`
	TotalAmount  string   `json:"total_amount"`
	Installments int      `json:"installments"`
	FirstDate    string   `json:"first_date"`
	IntervalDays int      `json:"interval_days"`
	Categories   []string `json:"categories,omitempty"`
}

type installmentOutcome struct {
	ledger.InstallmentOutcome
	Error string `json:"error,omitempty"`
}

// CreateGroup handles POST /api/installment-groups
// Installments that could not be materialized are reported per number;
// the response is 201 as long as the group itself was stored.
func (h *InstallmentsHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createGroupRequest
	if !decodeBody(w, r, &req) {
		return
	}

	kind, err := domain.ParseTransactionKind(req.Kind)
	if err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}
	total, err := parseAmount("total_amount", req.TotalAmount)
	if err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}
	first, err := parseDate("first_date", req.FirstDate)
	if err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}

	result, err := h.ledger.CreateInstallmentGroup(ctx, middleware.UserID(ctx), domain.NewInstallmentGroup{
		AccountID:        req.AccountID,
		Kind:             kind,
		Description:      domain.SanitizeDescription(req.Description),
		TotalAmount:      total,
		InstallmentCount: req.Installments,
		FirstDate:        first,
		IntervalDays:     req.IntervalDays,
		CategoryIDs:      req.Categories,
	})
	if err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}

	outcomes := make([]installmentOutcome, len(result.Installments))
	for i, o := range result.Installments {
		outcomes[i] = installmentOutcome{InstallmentOutcome: o}
		if o.Err != nil {
			outcomes[i].Error = o.Err.Error()
		}
	}
	if failed := result.Failed(); failed > 0 {
		h.log.Warn().Str("group_id", result.Group.ID).Int("failed", failed).Msg("Installment group partially materialized")
	}

	middleware.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"group":        result.Group,
		"installments": outcomes,
		"failed":       result.Failed(),
	})
}

// GetGroup handles GET /api/installment-groups/{id}
func (h *InstallmentsHandler) GetGroup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	group, txs, err := h.ledger.GetGroup(ctx, middleware.UserID(ctx), r.PathValue("id"))
	if err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"group":        group,
		"installments": txs,
	})
}

type updateGroupRequest struct {
	Description *string  `json:"description,omitempty"`
	AccountID   *string  `json:"account_id,omitempty"`
	Categories  []string `json:"categories,omitempty"`
}

// UpdateGroup handles PATCH /api/installment-groups/{id}
// Only description, account and categories can change.
func (h *InstallmentsHandler) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req updateGroupRequest
	if !decodeBody(w, r, &req) {
		return
	}

	group, err := h.ledger.UpdateGroupMetadata(ctx, middleware.UserID(ctx), r.PathValue("id"), domain.GroupMetadata{
		Description: req.Description,
		AccountID:   req.AccountID,
		CategoryIDs: req.Categories,
	})
	if err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, group)
}
