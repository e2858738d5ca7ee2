package surrealdb

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"

	"github.com/mbelgrano/cartera/internal/common"
	"github.com/mbelgrano/cartera/internal/models"
)

// AssetStore reads positions from the asset table. Writes go through
// Manager.ApplyTrade so they stay transactional with the journal.
type AssetStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewAssetStore(db *surrealdb.DB, logger *common.Logger) *AssetStore {
	return &AssetStore{
		db:     db,
		logger: logger,
	}
}

func (s *AssetStore) Get(ctx context.Context, id string) (*models.Asset, error) {
	record, err := surrealdb.Select[assetRecord](ctx, s.db, recordOf("asset", id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, fmt.Errorf("asset %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to select asset: %w", err)
	}
	if record == nil || record.AssetID == "" {
		return nil, fmt.Errorf("asset %s: %w", id, models.ErrNotFound)
	}
	return record.toModel(), nil
}

func (s *AssetStore) GetBySymbol(ctx context.Context, portfolioID, symbol string) (*models.Asset, error) {
	sql := "SELECT * FROM asset WHERE portfolio_id = $portfolio_id AND symbol = $symbol LIMIT 1"
	vars := map[string]any{
		"portfolio_id": portfolioID,
		"symbol":       symbol,
	}

	results, err := surrealdb.Query[[]assetRecord](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to query asset by symbol: %w", err)
	}

	if results != nil && len(*results) > 0 && len((*results)[0].Result) > 0 {
		return (*results)[0].Result[0].toModel(), nil
	}
	return nil, fmt.Errorf("asset %s in portfolio %s: %w", symbol, portfolioID, models.ErrNotFound)
}

func (s *AssetStore) ListByPortfolio(ctx context.Context, portfolioID string) ([]*models.Asset, error) {
	sql := "SELECT * FROM asset WHERE portfolio_id = $portfolio_id ORDER BY symbol ASC"
	vars := map[string]any{"portfolio_id": portfolioID}

	results, err := surrealdb.Query[[]assetRecord](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}

	var assets []*models.Asset
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			assets = append(assets, (*results)[0].Result[i].toModel())
		}
	}
	return assets, nil
}
