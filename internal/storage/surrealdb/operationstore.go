package surrealdb

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"

	"github.com/mbelgrano/cartera/internal/common"
	"github.com/mbelgrano/cartera/internal/models"
)

// OperationStore persists the operation journal.
type OperationStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewOperationStore(db *surrealdb.DB, logger *common.Logger) *OperationStore {
	return &OperationStore{
		db:     db,
		logger: logger,
	}
}

func (s *OperationStore) Insert(ctx context.Context, op *models.Operation) error {
	sql := "CREATE type::record('operation', $id) CONTENT $operation"
	vars := map[string]any{"id": op.ID, "operation": toOperationRecord(op)}

	if _, err := surrealdb.Query[[]operationRecord](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to insert operation: %w", err)
	}
	return nil
}

func (s *OperationStore) ListByPortfolio(ctx context.Context, portfolioID string, limit int) ([]*models.Operation, error) {
	sql := "SELECT * FROM operation WHERE portfolio_id = $portfolio_id ORDER BY created_at DESC"
	if limit > 0 {
		sql += fmt.Sprintf(" LIMIT %d", limit)
	}
	vars := map[string]any{"portfolio_id": portfolioID}

	results, err := surrealdb.Query[[]operationRecord](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}

	var ops []*models.Operation
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			ops = append(ops, (*results)[0].Result[i].toModel())
		}
	}
	return ops, nil
}
