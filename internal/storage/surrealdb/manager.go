// Package surrealdb implements the Storage contract on SurrealDB.
package surrealdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/mbelgrano/cartera/internal/common"
	"github.com/mbelgrano/cartera/internal/interfaces"
	"github.com/mbelgrano/cartera/internal/models"
)

// Manager implements interfaces.Storage using SurrealDB.
type Manager struct {
	db     *surrealdb.DB
	logger *common.Logger

	portfolioStore *PortfolioStore
	assetStore     *AssetStore
	operationStore *OperationStore
	snapshotStore  *SnapshotStore
}

// NewManager creates a Storage manager connected to SurrealDB.
func NewManager(logger *common.Logger, config *common.Config) (*Manager, error) {
	ctx := context.Background()

	db, err := surrealdb.New(config.Storage.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if _, err := db.SignIn(ctx, map[string]interface{}{
		"user": config.Storage.Username,
		"pass": config.Storage.Password,
	}); err != nil {
		return nil, fmt.Errorf("failed to sign in to SurrealDB: %w", err)
	}

	if err := db.Use(ctx, config.Storage.Namespace, config.Storage.Database); err != nil {
		return nil, fmt.Errorf("failed to select namespace/database: %w", err)
	}

	// Define tables up front (SurrealDB v3 errors on querying non-existent tables)
	for _, table := range []string{"portfolio", "asset", "operation", "snapshot"} {
		sql := fmt.Sprintf("DEFINE TABLE IF NOT EXISTS %s SCHEMALESS", table)
		if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
			return nil, fmt.Errorf("failed to define table %s: %w", table, err)
		}
	}

	m := &Manager{
		db:     db,
		logger: logger,
	}
	m.portfolioStore = NewPortfolioStore(db, logger)
	m.assetStore = NewAssetStore(db, logger)
	m.operationStore = NewOperationStore(db, logger)
	m.snapshotStore = NewSnapshotStore(db, logger)

	logger.Info().
		Str("address", config.Storage.Address).
		Str("namespace", config.Storage.Namespace).
		Str("database", config.Storage.Database).
		Msg("SurrealDB storage initialized")

	return m, nil
}

func (m *Manager) Portfolios() interfaces.PortfolioStore { return m.portfolioStore }
func (m *Manager) Assets() interfaces.AssetStore         { return m.assetStore }
func (m *Manager) Operations() interfaces.OperationStore { return m.operationStore }
func (m *Manager) Snapshots() interfaces.SnapshotStore   { return m.snapshotStore }

// ApplyTrade commits the asset change, the operation insert and the
// portfolio realized-gain update in one transaction. The gain delta is
// applied server side so concurrent trades never lose an increment.
func (m *Manager) ApplyTrade(ctx context.Context, trade *models.TradeApply) error {
	if trade == nil || trade.Asset == nil || trade.Operation == nil {
		return fmt.Errorf("%w: incomplete trade", models.ErrValidation)
	}

	if _, err := m.portfolioStore.Get(ctx, trade.Asset.PortfolioID); err != nil {
		return err
	}

	sql, vars := applyTradeQuery(trade)
	if _, err := surrealdb.Query[any](ctx, m.db, sql, vars); err != nil {
		return fmt.Errorf("failed to apply trade: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (m *Manager) Close() error {
	return m.db.Close(context.Background())
}

// isNotFoundError reports whether the error is SurrealDB's no-record
// condition rather than a real failure.
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no record") || strings.Contains(msg, "not found")
}

// nowUTC is the single time source for record timestamps written by this
// package.
func nowUTC() time.Time {
	return time.Now().UTC()
}

// recordOf builds a typed record id.
func recordOf(table, id string) surrealmodels.RecordID {
	return surrealmodels.NewRecordID(table, id)
}

// Verify interface compliance
var _ interfaces.Storage = (*Manager)(nil)
