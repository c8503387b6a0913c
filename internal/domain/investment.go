package domain

import (
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// AssetCategory is the closed set of asset classes an investment event can hold.
type AssetCategory string

const (
	AssetStock       AssetCategory = "STOCK"
	AssetETF         AssetCategory = "ETF"
	AssetFund        AssetCategory = "FUND"
	AssetREIT        AssetCategory = "REIT"
	AssetCrypto      AssetCategory = "CRYPTO"
	AssetFixedIncome AssetCategory = "FIXED_INCOME"
	AssetOther       AssetCategory = "OTHER"
)

// ParseAssetCategory converts an external label into an AssetCategory.
func ParseAssetCategory(s string) (AssetCategory, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "STOCK", "STOCKS", "ACAO", "ACOES", "AÇÕES", "EQUITY":
		return AssetStock, nil
	case "ETF", "ETFS":
		return AssetETF, nil
	case "FUND", "FUNDS", "FUNDO", "MUTUAL_FUND":
		return AssetFund, nil
	case "REIT", "FII", "FIIS":
		return AssetREIT, nil
	case "CRYPTO", "CRIPTO", "CRYPTOCURRENCY":
		return AssetCrypto, nil
	case "FIXED_INCOME", "FIXED INCOME", "RENDA_FIXA", "RENDA FIXA", "BOND", "BONDS", "CDB", "LCI", "LCA", "TESOURO":
		return AssetFixedIncome, nil
	case "OTHER", "OUTROS":
		return AssetOther, nil
	}
	return "", Invalid("asset_category", "unknown category %q", s)
}

// IsFixedIncome reports whether events of this category are valued by accrual
// instead of by market quote.
func (c AssetCategory) IsFixedIncome() bool { return c == AssetFixedIncome }

// RateType describes how a fixed-income asset accrues.
type RateType string

const (
	RatePre    RateType = "PRE"    // fixed annual rate
	RatePost   RateType = "POS"    // percentage of an index
	RateHybrid RateType = "HYBRID" // index plus a fixed spread
)

// FixedIncomeTerms are the valuation-only attributes of a fixed-income event.
type FixedIncomeTerms struct {
	RateType     RateType        `json:"rate_type"`
	Index        string          `json:"index,omitempty"`
	IndexPct     decimal.Decimal `json:"index_pct"`
	FixedRate    decimal.Decimal `json:"fixed_rate"`
	MaturityDate *civil.Date     `json:"maturity_date,omitempty"`
}

// InvestmentEvent is a buy (positive quantity) or sell (negative quantity) of an asset.
type InvestmentEvent struct {
	ID            string            `json:"id"`
	UserID        string            `json:"user_id"`
	AccountID     string            `json:"account_id"`
	AssetName     string            `json:"asset_name"`
	AssetCategory AssetCategory     `json:"asset_category"`
	Quantity      decimal.Decimal   `json:"quantity"`
	UnitPrice     decimal.Decimal   `json:"unit_price"`
	Fee           decimal.Decimal   `json:"fee"`
	Date          civil.Date        `json:"date"`
	Currency      string            `json:"currency"`
	FixedIncome   *FixedIncomeTerms `json:"fixed_income,omitempty"`
	Active        bool              `json:"active"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// IsBuy reports whether the event adds to the position.
func (e *InvestmentEvent) IsBuy() bool { return e.Quantity.IsPositive() }

// ComputedCost is quantity × unit price + fee.
func (e *InvestmentEvent) ComputedCost() decimal.Decimal {
	return e.Quantity.Mul(e.UnitPrice).Add(e.Fee)
}

// Asset returns the key that groups events of the same asset for the user.
func (e *InvestmentEvent) Asset() AssetKey {
	return AssetKey{UserID: e.UserID, Name: NormalizeAssetName(e.AssetName), Category: e.AssetCategory}
}

// AssetKey identifies one asset's event stream.
type AssetKey struct {
	UserID   string
	Name     string
	Category AssetCategory
}

func (k AssetKey) String() string {
	return k.UserID + "/" + string(k.Category) + "/" + k.Name
}

// NormalizeAssetName upper-cases and trims a ticker or asset name.
func NormalizeAssetName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// NewInvestmentEvent is the caller input for recording a buy or a sell.
type NewInvestmentEvent struct {
	AccountID     string
	AssetName     string
	AssetCategory AssetCategory
	Quantity      decimal.Decimal
	UnitPrice     decimal.Decimal
	Fee           decimal.Decimal
	Date          civil.Date
	Currency      string
	FixedIncome   *FixedIncomeTerms
}
