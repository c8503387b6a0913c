package handlers

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-engine/internal/api/middleware"
	"github.com/dvloznov/ledger-engine/internal/domain"
	"github.com/dvloznov/ledger-engine/internal/position"
)

// InvestmentsHandler handles investment event endpoints.
type InvestmentsHandler struct {
	service *position.Service
	log     zerolog.Logger
}

// NewInvestmentsHandler creates a new investments handler.
func NewInvestmentsHandler(service *position.Service, log zerolog.Logger) *InvestmentsHandler {
	return &InvestmentsHandler{
		service: service,
		log:     log,
	}
}

// Register adds the investment event routes to mux.
func (h *InvestmentsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/investment-events", h.RecordEvent)
	mux.HandleFunc("DELETE /api/investment-events/{id}", h.DeleteEvent)
	mux.HandleFunc("PATCH /api/investment-events/{id}", h.ReduceBuy)
	mux.HandleFunc("GET /api/accounts/{id}/events", h.ListEvents)
}

type fixedIncomeRequest struct {
	RateType     string `json:"rate_type"`
	Index        string `json:"index,omitempty"`
	IndexPct     string `json:"index_pct,omitempty"`
	FixedRate    string `json:"fixed_rate,omitempty"`
	MaturityDate string `json:"maturity_date,omitempty"`
}

func (req *fixedIncomeRequest) toDomain() (*domain.FixedIncomeTerms, error) {
	if req == nil {
		return nil, nil
	}
	terms := &domain.FixedIncomeTerms{
		RateType: domain.RateType(req.RateType),
		Index:    req.Index,
	}
	var err error
	if req.IndexPct != "" {
		if terms.IndexPct, err = parseQuantity("index_pct", req.IndexPct); err != nil {
			return nil, err
		}
	}
	if req.FixedRate != "" {
		if terms.FixedRate, err = parseQuantity("fixed_rate", req.FixedRate); err != nil {
			return nil, err
		}
	}
	if req.MaturityDate != "" {
		d, err := parseDate("maturity_date", req.MaturityDate)
		if err != nil {
			return nil, err
		}
		terms.MaturityDate = &d
	}
	return terms, nil
}

type recordEventRequest struct {
	AccountID     string              `json:"account_id"`
	AssetName     string              `json:"asset_name"`
	AssetCategory string              `json:"asset_category"`
	Quantity      string              `json:"quantity"`
	UnitPrice     string              `json:"unit_price"`
	Fee           string              `json:"fee,omitempty"`
	Date          string              `json:"date"`
	Currency      string              `json:"currency,omitempty"`
	FixedIncome   *fixedIncomeRequest `json:"fixed_income,omitempty"`
}

func (req recordEventRequest) toDomain() (domain.NewInvestmentEvent, error) {
	var in domain.NewInvestmentEvent
	category, err := domain.ParseAssetCategory(req.AssetCategory)
	if err != nil {
		return in, err
	}
	qty, err := parseQuantity("quantity", req.Quantity)
	if err != nil {
		return in, err
	}
	price, err := parseQuantity("unit_price", req.UnitPrice)
	if err != nil {
		return in, err
	}
	fee, err := parseOptionalAmount("fee", req.Fee)
	if err != nil {
		return in, err
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		return in, err
	}
	terms, err := req.FixedIncome.toDomain()
	if err != nil {
		return in, err
	}
	return domain.NewInvestmentEvent{
		AccountID:     req.AccountID,
		AssetName:     req.AssetName,
		AssetCategory: category,
		Quantity:      qty,
		UnitPrice:     price,
		Fee:           fee,
		Date:          date,
		Currency:      req.Currency,
		FixedIncome:   terms,
	}, nil
}

// RecordEvent handles POST /api/investment-events
// A negative quantity records a sell.
func (h *InvestmentsHandler) RecordEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req recordEventRequest
	if !decodeBody(w, r, &req) {
		return
	}
	in, err := req.toDomain()
	if err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}

	e, err := h.service.Record(ctx, middleware.UserID(ctx), in)
	if err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, e)
}

// DeleteEvent handles DELETE /api/investment-events/{id}
func (h *InvestmentsHandler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rev, err := h.service.Delete(ctx, middleware.UserID(ctx), r.PathValue("id"))
	if err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, rev)
}

// ReduceBuy handles PATCH /api/investment-events/{id}
// Body: {"quantity": "<new quantity>"}.
func (h *InvestmentsHandler) ReduceBuy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Quantity string `json:"quantity"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	qty, err := parseQuantity("quantity", req.Quantity)
	if err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}

	e, err := h.service.ReduceBuy(ctx, middleware.UserID(ctx), r.PathValue("id"), qty)
	if err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, e)
}

// ListEvents handles GET /api/accounts/{id}/events
func (h *InvestmentsHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	events, err := h.service.Events(ctx, middleware.UserID(ctx), r.PathValue("id"))
	if err != nil {
		middleware.WriteDomainError(ctx, w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, list("events", events))
}
