package surrealdb

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/surrealdb/surrealdb.go"

	"github.com/mbelgrano/cartera/internal/common"
	"github.com/mbelgrano/cartera/internal/models"
)

// PortfolioStore persists portfolios in the portfolio table.
type PortfolioStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewPortfolioStore(db *surrealdb.DB, logger *common.Logger) *PortfolioStore {
	return &PortfolioStore{
		db:     db,
		logger: logger,
	}
}

func (s *PortfolioStore) Create(ctx context.Context, p *models.Portfolio) error {
	sql := "CREATE type::record('portfolio', $id) CONTENT $portfolio"
	vars := map[string]any{"id": p.ID, "portfolio": toPortfolioRecord(p)}

	if _, err := surrealdb.Query[[]portfolioRecord](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to create portfolio: %w", err)
	}
	return nil
}

func (s *PortfolioStore) Get(ctx context.Context, id string) (*models.Portfolio, error) {
	record, err := surrealdb.Select[portfolioRecord](ctx, s.db, recordOf("portfolio", id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, fmt.Errorf("portfolio %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to select portfolio: %w", err)
	}
	if record == nil || record.PortfolioID == "" {
		return nil, fmt.Errorf("portfolio %s: %w", id, models.ErrNotFound)
	}
	return record.toModel(), nil
}

func (s *PortfolioStore) List(ctx context.Context) ([]*models.Portfolio, error) {
	sql := "SELECT * FROM portfolio ORDER BY created_at ASC"

	results, err := surrealdb.Query[[]portfolioRecord](ctx, s.db, sql, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}

	var portfolios []*models.Portfolio
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			portfolios = append(portfolios, (*results)[0].Result[i].toModel())
		}
	}
	return portfolios, nil
}

func (s *PortfolioStore) Update(ctx context.Context, p *models.Portfolio) error {
	if _, err := s.Get(ctx, p.ID); err != nil {
		return err
	}

	sql := "UPSERT type::record('portfolio', $id) CONTENT $portfolio"
	vars := map[string]any{"id": p.ID, "portfolio": toPortfolioRecord(p)}

	err := retryWrite(func() error {
		_, qerr := surrealdb.Query[[]portfolioRecord](ctx, s.db, sql, vars)
		return qerr
	})
	if err != nil {
		return fmt.Errorf("failed to update portfolio: %w", err)
	}
	return nil
}

// AddCapital adjusts the capital balance by delta, rejecting adjustments
// that would take it negative. The increment and the guard run inside the
// statement so concurrent adjustments never lose a delta.
func (s *PortfolioStore) AddCapital(ctx context.Context, id string, delta decimal.Decimal) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	sql, vars := addCapitalQuery(id, delta, nowUTC())
	results, err := surrealdb.Query[[]portfolioRecord](ctx, s.db, sql, vars)
	if err != nil {
		return fmt.Errorf("failed to adjust capital: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return fmt.Errorf("%w: capital cannot go negative", models.ErrValidation)
	}
	return nil
}

// Delete removes the portfolio and everything hanging off it.
func (s *PortfolioStore) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	sql := `BEGIN TRANSACTION;
DELETE type::record('portfolio', $id);
DELETE asset WHERE portfolio_id = $id;
DELETE operation WHERE portfolio_id = $id;
DELETE snapshot WHERE portfolio_id = $id;
COMMIT TRANSACTION;`
	vars := map[string]any{"id": id}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to delete portfolio: %w", err)
	}

	s.logger.Debug().Str("portfolio_id", id).Msg("Portfolio deleted with cascade")
	return nil
}
