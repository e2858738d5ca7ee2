package surrealdb

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbelgrano/cartera/internal/models"
)

// Decimal fields are persisted as strings so no precision is lost crossing
// the wire encoding.

type portfolioRecord struct {
	PortfolioID   string    `json:"portfolio_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Capital       string    `json:"capital"`
	RealizedGains string    `json:"realized_gains"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toPortfolioRecord(p *models.Portfolio) *portfolioRecord {
	return &portfolioRecord{
		PortfolioID:   p.ID,
		Name:          p.Name,
		Description:   p.Description,
		Capital:       p.Capital.String(),
		RealizedGains: p.RealizedGains.String(),
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func (r *portfolioRecord) toModel() *models.Portfolio {
	return &models.Portfolio{
		ID:            r.PortfolioID,
		Name:          r.Name,
		Description:   r.Description,
		Capital:       parseDecimal(r.Capital),
		RealizedGains: parseDecimal(r.RealizedGains),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

type assetRecord struct {
	AssetID     string    `json:"asset_id"`
	PortfolioID string    `json:"portfolio_id"`
	Symbol      string    `json:"symbol"`
	Name        string    `json:"name,omitempty"`
	Class       string    `json:"class"`
	Quantity    string    `json:"quantity"`
	AvgCostUSD  string    `json:"avg_cost_usd"`
	AvgCostARS  string    `json:"avg_cost_ars"`
	AvgFXRate   string    `json:"avg_fx_rate"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toAssetRecord(a *models.Asset) *assetRecord {
	return &assetRecord{
		AssetID:     a.ID,
		PortfolioID: a.PortfolioID,
		Symbol:      a.Symbol,
		Name:        a.Name,
		Class:       string(a.Class),
		Quantity:    a.Quantity.String(),
		AvgCostUSD:  a.AvgCostUSD.String(),
		AvgCostARS:  a.AvgCostARS.String(),
		AvgFXRate:   a.AvgFXRate.String(),
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

func (r *assetRecord) toModel() *models.Asset {
	return &models.Asset{
		ID:          r.AssetID,
		PortfolioID: r.PortfolioID,
		Symbol:      r.Symbol,
		Name:        r.Name,
		Class:       models.AssetClass(r.Class),
		Quantity:    parseDecimal(r.Quantity),
		AvgCostUSD:  parseDecimal(r.AvgCostUSD),
		AvgCostARS:  parseDecimal(r.AvgCostARS),
		AvgFXRate:   parseDecimal(r.AvgFXRate),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

type operationRecord struct {
	OperationID  string    `json:"operation_id"`
	PortfolioID  string    `json:"portfolio_id"`
	AssetID      string    `json:"asset_id,omitempty"`
	Type         string    `json:"type"`
	Symbol       string    `json:"symbol,omitempty"`
	Quantity     string    `json:"quantity"`
	PriceUSD     string    `json:"price_usd"`
	PriceARS     string    `json:"price_ars"`
	FXRate       string    `json:"fx_rate"`
	Amount       string    `json:"amount"`
	RealizedGain string    `json:"realized_gain"`
	Note         string    `json:"note,omitempty"`
	ExecutedAt   time.Time `json:"executed_at"`
	CreatedAt    time.Time `json:"created_at"`
}

func toOperationRecord(op *models.Operation) *operationRecord {
	return &operationRecord{
		OperationID:  op.ID,
		PortfolioID:  op.PortfolioID,
		AssetID:      op.AssetID,
		Type:         string(op.Type),
		Symbol:       op.Symbol,
		Quantity:     op.Quantity.String(),
		PriceUSD:     op.PriceUSD.String(),
		PriceARS:     op.PriceARS.String(),
		FXRate:       op.FXRate.String(),
		Amount:       op.Amount.String(),
		RealizedGain: op.RealizedGain.String(),
		Note:         op.Note,
		ExecutedAt:   op.ExecutedAt,
		CreatedAt:    op.CreatedAt,
	}
}

func (r *operationRecord) toModel() *models.Operation {
	return &models.Operation{
		ID:           r.OperationID,
		PortfolioID:  r.PortfolioID,
		AssetID:      r.AssetID,
		Type:         models.OperationType(r.Type),
		Symbol:       r.Symbol,
		Quantity:     parseDecimal(r.Quantity),
		PriceUSD:     parseDecimal(r.PriceUSD),
		PriceARS:     parseDecimal(r.PriceARS),
		FXRate:       parseDecimal(r.FXRate),
		Amount:       parseDecimal(r.Amount),
		RealizedGain: parseDecimal(r.RealizedGain),
		Note:         r.Note,
		ExecutedAt:   r.ExecutedAt,
		CreatedAt:    r.CreatedAt,
	}
}

type snapshotRecord struct {
	SnapshotID      string            `json:"snapshot_id"`
	PortfolioID     string            `json:"portfolio_id"`
	CurrentValue    float64           `json:"current_value"`
	CostBasis       float64           `json:"cost_basis"`
	UnrealizedGains float64           `json:"unrealized_gains"`
	RealizedGains   float64           `json:"realized_gains"`
	TotalGain       float64           `json:"total_gain"`
	TotalGainPct    float64           `json:"total_gain_pct"`
	Valuation       *models.Valuation `json:"valuation,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

func toSnapshotRecord(s *models.Snapshot) *snapshotRecord {
	return &snapshotRecord{
		SnapshotID:      s.ID,
		PortfolioID:     s.PortfolioID,
		CurrentValue:    s.CurrentValue,
		CostBasis:       s.CostBasis,
		UnrealizedGains: s.UnrealizedGains,
		RealizedGains:   s.RealizedGains,
		TotalGain:       s.TotalGain,
		TotalGainPct:    s.TotalGainPct,
		Valuation:       s.Valuation,
		CreatedAt:       s.CreatedAt,
	}
}

func (r *snapshotRecord) toModel() *models.Snapshot {
	return &models.Snapshot{
		ID:              r.SnapshotID,
		PortfolioID:     r.PortfolioID,
		CurrentValue:    r.CurrentValue,
		CostBasis:       r.CostBasis,
		UnrealizedGains: r.UnrealizedGains,
		RealizedGains:   r.RealizedGains,
		TotalGain:       r.TotalGain,
		TotalGainPct:    r.TotalGainPct,
		Valuation:       r.Valuation,
		CreatedAt:       r.CreatedAt,
	}
}

func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
