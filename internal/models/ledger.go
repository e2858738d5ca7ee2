package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetClass categorizes how an asset is priced during valuation.
type AssetClass string

const (
	AssetClassCrypto AssetClass = "crypto"
	AssetClassEquity AssetClass = "equity"
	AssetClassFund   AssetClass = "fund"
)

// Valid reports whether the class is one of the known asset classes.
func (c AssetClass) Valid() bool {
	switch c {
	case AssetClassCrypto, AssetClassEquity, AssetClassFund:
		return true
	}
	return false
}

// OperationType identifies a ledger operation.
type OperationType string

const (
	OperationBuy          OperationType = "buy"
	OperationSell         OperationType = "sell"
	OperationContribution OperationType = "contribution"
	OperationWithdrawal   OperationType = "withdrawal"
)

// Portfolio is the aggregate root of the ledger. Capital and realized gains
// are tracked in USD.
type Portfolio struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	Capital       decimal.Decimal `json:"capital"`
	RealizedGains decimal.Decimal `json:"realized_gains"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Asset is a position held in a portfolio. Quantity and cost bases are
// arbitrary-precision decimals; prices become float64 only at the market
// data boundary.
type Asset struct {
	ID          string          `json:"id"`
	PortfolioID string          `json:"portfolio_id"`
	Symbol      string          `json:"symbol"`
	Name        string          `json:"name,omitempty"`
	Class       AssetClass      `json:"class"`
	Quantity    decimal.Decimal `json:"quantity"`
	AvgCostUSD  decimal.Decimal `json:"avg_cost_usd"`
	AvgCostARS  decimal.Decimal `json:"avg_cost_ars"`
	AvgFXRate   decimal.Decimal `json:"avg_fx_rate"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// CostBasis returns the total USD cost of the position.
func (a *Asset) CostBasis() decimal.Decimal {
	return a.Quantity.Mul(a.AvgCostUSD)
}

// Operation is an immutable ledger entry. Trade operations carry the asset
// symbol and per-unit prices; capital operations carry only the amount.
type Operation struct {
	ID           string          `json:"id"`
	PortfolioID  string          `json:"portfolio_id"`
	AssetID      string          `json:"asset_id,omitempty"`
	Type         OperationType   `json:"type"`
	Symbol       string          `json:"symbol,omitempty"`
	Quantity     decimal.Decimal `json:"quantity"`
	PriceUSD     decimal.Decimal `json:"price_usd"`
	PriceARS     decimal.Decimal `json:"price_ars"`
	FXRate       decimal.Decimal `json:"fx_rate"`
	Amount       decimal.Decimal `json:"amount"`
	RealizedGain decimal.Decimal `json:"realized_gain"`
	Note         string          `json:"note,omitempty"`
	ExecutedAt   time.Time       `json:"executed_at"`
	CreatedAt    time.Time       `json:"created_at"`
}

// TradeApply bundles the state changes of a buy or sell so the storage layer
// can commit them atomically: the updated (or deleted) asset, the operation
// record, and the portfolio realized-gain delta.
type TradeApply struct {
	Asset             *Asset
	DeleteAsset       bool
	Operation         *Operation
	RealizedGainDelta decimal.Decimal
}

// Snapshot is a frozen valuation of a portfolio, at most one per calendar day.
type Snapshot struct {
	ID              string     `json:"id"`
	PortfolioID     string     `json:"portfolio_id"`
	CurrentValue    float64    `json:"current_value"`
	CostBasis       float64    `json:"cost_basis"`
	UnrealizedGains float64    `json:"unrealized_gains"`
	RealizedGains   float64    `json:"realized_gains"`
	TotalGain       float64    `json:"total_gain"`
	TotalGainPct    float64    `json:"total_gain_pct"`
	Valuation       *Valuation `json:"valuation,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}
