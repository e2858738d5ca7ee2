package interfaces

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbelgrano/cartera/internal/models"
)

// Storage is the root storage contract. Stores are obtained per entity.
type Storage interface {
	Portfolios() PortfolioStore
	Assets() AssetStore
	Operations() OperationStore
	Snapshots() SnapshotStore

	// ApplyTrade commits a buy or sell atomically: asset upsert or
	// delete, operation insert, and portfolio realized-gain update
	// either all apply or none do.
	ApplyTrade(ctx context.Context, trade *models.TradeApply) error

	Close() error
}

// PortfolioStore persists portfolios.
type PortfolioStore interface {
	Create(ctx context.Context, p *models.Portfolio) error
	Get(ctx context.Context, id string) (*models.Portfolio, error)
	List(ctx context.Context) ([]*models.Portfolio, error)
	Update(ctx context.Context, p *models.Portfolio) error

	// AddCapital atomically adjusts the capital balance by delta
	// (negative for withdrawals).
	AddCapital(ctx context.Context, id string, delta decimal.Decimal) error

	// Delete removes the portfolio and cascades to its assets,
	// operations and snapshots.
	Delete(ctx context.Context, id string) error
}

// AssetStore persists portfolio positions.
type AssetStore interface {
	Get(ctx context.Context, id string) (*models.Asset, error)
	GetBySymbol(ctx context.Context, portfolioID, symbol string) (*models.Asset, error)
	ListByPortfolio(ctx context.Context, portfolioID string) ([]*models.Asset, error)
}

// OperationStore persists the operation journal.
type OperationStore interface {
	Insert(ctx context.Context, op *models.Operation) error

	// ListByPortfolio returns operations newest-first. limit <= 0 means
	// no limit.
	ListByPortfolio(ctx context.Context, portfolioID string, limit int) ([]*models.Operation, error)
}

// SnapshotStore persists daily valuation snapshots.
type SnapshotStore interface {
	Insert(ctx context.Context, s *models.Snapshot) error

	// ExistsOn reports whether a snapshot already exists for the
	// calendar day containing t (UTC).
	ExistsOn(ctx context.Context, portfolioID string, t time.Time) (bool, error)

	// ListByPortfolio returns snapshots ordered by creation time,
	// ascending when asc is true. limit <= 0 means no limit.
	ListByPortfolio(ctx context.Context, portfolioID string, asc bool, limit int) ([]*models.Snapshot, error)
}
