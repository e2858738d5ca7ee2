package models

import "time"

// AssetValuation is the per-position slice of a portfolio valuation.
// Monetary figures are rounded to 2 decimals for presentation.
type AssetValuation struct {
	AssetID        string     `json:"asset_id"`
	Symbol         string     `json:"symbol"`
	Name           string     `json:"name,omitempty"`
	Class          AssetClass `json:"class"`
	Quantity       float64    `json:"quantity"`
	AvgCostUSD     float64    `json:"avg_cost_usd"`
	PriceUSD       float64    `json:"price_usd"`
	CurrentValue   float64    `json:"current_value"`
	CostBasis      float64    `json:"cost_basis"`
	UnrealizedGain float64    `json:"unrealized_gain"`
	GainPct        float64    `json:"gain_pct"`
	CompositionPct float64    `json:"composition_pct"`
	PriceResolved  bool       `json:"price_resolved"`
}

// ClassBreakdown aggregates positions of one asset class.
type ClassBreakdown struct {
	Class          AssetClass `json:"class"`
	CurrentValue   float64    `json:"current_value"`
	CostBasis      float64    `json:"cost_basis"`
	UnrealizedGain float64    `json:"unrealized_gain"`
	CompositionPct float64    `json:"composition_pct"`
	AssetCount     int        `json:"asset_count"`
}

// Valuation is the full point-in-time report for a portfolio.
type Valuation struct {
	PortfolioID     string           `json:"portfolio_id"`
	PortfolioName   string           `json:"portfolio_name"`
	Capital         float64          `json:"capital"`
	RealizedGains   float64          `json:"realized_gains"`
	CurrentValue    float64          `json:"current_value"`
	CostBasis       float64          `json:"cost_basis"`
	UnrealizedGains float64          `json:"unrealized_gains"`
	TotalInvested   float64          `json:"total_invested"`
	TotalGain       float64          `json:"total_gain"`
	TotalGainPct    float64          `json:"total_gain_pct"`
	FXRate          float64          `json:"fx_rate,omitempty"`
	Assets          []AssetValuation `json:"assets"`
	ByClass         []ClassBreakdown `json:"by_class"`
	Degraded        []string         `json:"degraded,omitempty"`
	GeneratedAt     time.Time        `json:"generated_at"`
}
