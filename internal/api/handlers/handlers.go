// Package handlers exposes the ledger over HTTP. Every handler acts for the
// user resolved by middleware.Auth and reports failures through
// middleware.WriteDomainError.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledger-engine/internal/amount"
	"github.com/dvloznov/ledger-engine/internal/api/middleware"
	"github.com/dvloznov/ledger-engine/internal/calendar"
	"github.com/dvloznov/ledger-engine/internal/domain"
)

const maxBodyBytes = 1 << 20

// decodeBody reads a JSON request body into v. Unknown fields are rejected.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return false
	}
	return true
}

func parseAmount(field, s string) (decimal.Decimal, error) {
	v, err := amount.Parse(s)
	if err != nil {
		return decimal.Decimal{}, domain.Invalid(field, "%v", err)
	}
	return v, nil
}

// parseOptionalAmount returns zero for an empty string.
func parseOptionalAmount(field, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return parseAmount(field, s)
}

// parseQuantity accepts any precision and sign; the services validate it.
func parseQuantity(field, s string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, domain.Invalid(field, "not a number: %q", s)
	}
	return v, nil
}

func parseDate(field, s string) (civil.Date, error) {
	d, err := calendar.Parse(s)
	if err != nil {
		return civil.Date{}, domain.Invalid(field, "%v", err)
	}
	return d, nil
}

// optionalDate parses the query parameter name, returning nil when absent.
func optionalDate(r *http.Request, name string) (*civil.Date, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return nil, nil
	}
	d, err := parseDate(name, s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// queryInt parses a non-negative integer query parameter, or def when absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, domain.Invalid(name, "must be a non-negative integer")
	}
	return n, nil
}

// list wraps a collection the way every list endpoint returns it.
func list[T any](key string, items []T) map[string]interface{} {
	if items == nil {
		items = []T{}
	}
	return map[string]interface{}{
		key:     items,
		"count": len(items),
	}
}
