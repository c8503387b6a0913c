// Package quotes provides QuoteProvider implementations: a static price table
// and the fixed-income accrual formula.
package quotes

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledger-engine/internal/amount"
	"github.com/dvloznov/ledger-engine/internal/domain"
	"github.com/dvloznov/ledger-engine/internal/position"
)

var hundred = decimal.NewFromInt(100)

// Accrual values fixed-income positions by compounding an effective annual
// rate over calendar days: principal × (1 + r)^(days/365).
//
// Rates are percentages: FixedRate 12.5 is 12.5% a year, IndexPct 110 is 110%
// of the index, and Indexes holds each index's current annual rate.
type Accrual struct {
	Indexes map[string]decimal.Decimal
}

// EffectiveRate returns the annual rate, as a fraction, that terms accrue at.
func (a Accrual) EffectiveRate(terms domain.FixedIncomeTerms) (decimal.Decimal, error) {
	switch terms.RateType {
	case domain.RatePre:
		return terms.FixedRate.Div(hundred), nil
	case domain.RatePost:
		idx, err := a.index(terms.Index)
		if err != nil {
			return decimal.Zero, err
		}
		return idx.Mul(terms.IndexPct).Div(hundred).Div(hundred), nil
	case domain.RateHybrid:
		idx, err := a.index(terms.Index)
		if err != nil {
			return decimal.Zero, err
		}
		return idx.Add(terms.FixedRate).Div(hundred), nil
	}
	return decimal.Zero, fmt.Errorf("unknown rate type %q", string(terms.RateType))
}

func (a Accrual) index(name string) (decimal.Decimal, error) {
	rate, ok := a.Indexes[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return decimal.Zero, fmt.Errorf("no rate for index %q", name)
	}
	return rate, nil
}

// FixedIncomeValue implements position.QuoteProvider. Events without terms
// are carried at principal. Accrual stops at the maturity date.
func (a Accrual) FixedIncomeValue(_ context.Context, in position.FixedIncomeInput) (decimal.Decimal, error) {
	if in.Terms == nil {
		return in.Principal, nil
	}
	end := in.AsOf
	if m := in.Terms.MaturityDate; m != nil && m.Before(end) {
		end = *m
	}
	days := end.DaysSince(in.StartDate)
	if days <= 0 {
		return in.Principal, nil
	}

	rate, err := a.EffectiveRate(*in.Terms)
	if err != nil {
		return decimal.Zero, fmt.Errorf("FixedIncomeValue: %w", err)
	}
	r, _ := rate.Float64()
	factor := math.Pow(1+r, float64(days)/365)
	if math.IsNaN(factor) || math.IsInf(factor, 0) {
		return decimal.Zero, fmt.Errorf("FixedIncomeValue: rate %s does not compound", rate)
	}
	return amount.Round2(in.Principal.Mul(decimal.NewFromFloat(factor))), nil
}
