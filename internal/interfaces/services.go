package interfaces

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbelgrano/cartera/internal/models"
)

// PriceService resolves USD prices for crypto symbols across the primary
// exchange and the cached fallback source.
type PriceService interface {
	// GetPrices resolves prices for plain ticker symbols ("BTC").
	// Symbols that cannot be resolved anywhere are omitted.
	GetPrices(ctx context.Context, symbols []string) (map[string]float64, error)

	// BreakerStatus reports the primary-source circuit breaker state.
	BreakerStatus() BreakerStatus

	// ResetBreaker force-closes the circuit breaker.
	ResetBreaker()
}

// BreakerStatus is a point-in-time view of a circuit breaker.
type BreakerStatus struct {
	State        string    `json:"state"`
	Failures     int       `json:"failures"`
	OpenedAt     time.Time `json:"opened_at,omitzero"`
	ReopensAfter time.Time `json:"reopens_after,omitzero"`
}

// BuyInput describes a purchase to register.
type BuyInput struct {
	Symbol     string
	Name       string
	Class      models.AssetClass
	Quantity   decimal.Decimal
	PriceUSD   decimal.Decimal
	PriceARS   decimal.Decimal
	FXRate     decimal.Decimal
	Note       string
	ExecutedAt time.Time
}

// SellInput describes a sale to register against an existing asset.
type SellInput struct {
	Quantity   decimal.Decimal
	PriceUSD   decimal.Decimal
	Note       string
	ExecutedAt time.Time
}

// LedgerService maintains portfolios, assets and the operation journal.
type LedgerService interface {
	CreatePortfolio(ctx context.Context, name, description string, initialCapital decimal.Decimal) (*models.Portfolio, error)
	GetPortfolio(ctx context.Context, id string) (*models.Portfolio, error)
	ListPortfolios(ctx context.Context) ([]*models.Portfolio, error)
	DeletePortfolio(ctx context.Context, id string) error

	Contribute(ctx context.Context, portfolioID string, amount decimal.Decimal, note string) (*models.Operation, error)
	Withdraw(ctx context.Context, portfolioID string, amount decimal.Decimal, note string) (*models.Operation, error)

	RegisterBuy(ctx context.Context, portfolioID string, in BuyInput) (*models.Operation, error)
	RegisterSell(ctx context.Context, assetID string, in SellInput) (*models.Operation, error)

	GetAsset(ctx context.Context, assetID string) (*models.Asset, error)
	ListAssets(ctx context.Context, portfolioID string) ([]*models.Asset, error)

	// ListOperations returns the journal newest-first. limit <= 0 means
	// no limit.
	ListOperations(ctx context.Context, portfolioID string, limit int) ([]*models.Operation, error)
}

// ValuationService prices a portfolio against live market data.
type ValuationService interface {
	Valuate(ctx context.Context, portfolioID string) (*models.Valuation, error)
}

// SnapshotService persists daily valuations.
type SnapshotService interface {
	// CreateSnapshot valuates and freezes the portfolio. A second
	// snapshot on the same calendar day is a conflict.
	CreateSnapshot(ctx context.Context, portfolioID string) (*models.Snapshot, error)

	// ListSnapshots returns history, ascending for charting when asc is
	// true, newest-first otherwise. limit <= 0 means no limit.
	ListSnapshots(ctx context.Context, portfolioID string, asc bool, limit int) ([]*models.Snapshot, error)
}
