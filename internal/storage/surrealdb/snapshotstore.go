package surrealdb

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"

	"github.com/mbelgrano/cartera/internal/common"
	"github.com/mbelgrano/cartera/internal/models"
)

// SnapshotStore persists daily valuation snapshots.
type SnapshotStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewSnapshotStore(db *surrealdb.DB, logger *common.Logger) *SnapshotStore {
	return &SnapshotStore{
		db:     db,
		logger: logger,
	}
}

// Insert writes the snapshot. UPSERT keeps the write idempotent under
// retry: an attempt that committed before its response was lost replays
// cleanly instead of failing on a duplicate id.
func (s *SnapshotStore) Insert(ctx context.Context, snap *models.Snapshot) error {
	sql := "UPSERT type::record('snapshot', $id) CONTENT $snapshot"
	vars := map[string]any{"id": snap.ID, "snapshot": toSnapshotRecord(snap)}

	err := retryWrite(func() error {
		_, qerr := surrealdb.Query[[]snapshotRecord](ctx, s.db, sql, vars)
		return qerr
	})
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

// ExistsOn reports whether the portfolio already has a snapshot on the UTC
// calendar day containing t.
func (s *SnapshotStore) ExistsOn(ctx context.Context, portfolioID string, t time.Time) (bool, error) {
	dayStart := t.UTC().Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	sql := "SELECT * FROM snapshot WHERE portfolio_id = $portfolio_id AND created_at >= $start AND created_at < $end LIMIT 1"
	vars := map[string]any{
		"portfolio_id": portfolioID,
		"start":        dayStart,
		"end":          dayEnd,
	}

	results, err := surrealdb.Query[[]snapshotRecord](ctx, s.db, sql, vars)
	if err != nil {
		return false, fmt.Errorf("failed to query snapshots: %w", err)
	}

	if results != nil && len(*results) > 0 && len((*results)[0].Result) > 0 {
		return true, nil
	}
	return false, nil
}

func (s *SnapshotStore) ListByPortfolio(ctx context.Context, portfolioID string, asc bool, limit int) ([]*models.Snapshot, error) {
	sql := "SELECT * FROM snapshot WHERE portfolio_id = $portfolio_id"
	if asc {
		sql += " ORDER BY created_at ASC"
	} else {
		sql += " ORDER BY created_at DESC"
	}
	if limit > 0 {
		sql += fmt.Sprintf(" LIMIT %d", limit)
	}
	vars := map[string]any{"portfolio_id": portfolioID}

	results, err := surrealdb.Query[[]snapshotRecord](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	var snaps []*models.Snapshot
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			snaps = append(snaps, (*results)[0].Result[i].toModel())
		}
	}
	return snaps, nil
}
