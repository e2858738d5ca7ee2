package valuation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mbelgrano/cartera/internal/common"
	"github.com/mbelgrano/cartera/internal/interfaces"
	"github.com/mbelgrano/cartera/internal/models"
)

// SnapshotService freezes one valuation per portfolio per calendar day.
type SnapshotService struct {
	storage   interfaces.Storage
	valuation interfaces.ValuationService
	logger    *common.Logger
	now       func() time.Time
}

// NewSnapshotService creates a snapshot service.
func NewSnapshotService(storage interfaces.Storage, valuation interfaces.ValuationService, logger *common.Logger) *SnapshotService {
	return &SnapshotService{
		storage:   storage,
		valuation: valuation,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateSnapshot valuates the portfolio and persists the result. A second
// snapshot on the same day is rejected with a conflict.
func (s *SnapshotService) CreateSnapshot(ctx context.Context, portfolioID string) (*models.Snapshot, error) {
	now := s.now().UTC()

	exists, err := s.storage.Snapshots().ExistsOn(ctx, portfolioID, now)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: snapshot for portfolio %s already exists today", models.ErrConflict, portfolioID)
	}

	v, err := s.valuation.Valuate(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	snap := &models.Snapshot{
		ID:              uuid.NewString(),
		PortfolioID:     portfolioID,
		CurrentValue:    v.CurrentValue,
		CostBasis:       v.CostBasis,
		UnrealizedGains: v.UnrealizedGains,
		RealizedGains:   v.RealizedGains,
		TotalGain:       v.TotalGain,
		TotalGainPct:    v.TotalGainPct,
		Valuation:       v,
		CreatedAt:       now,
	}

	if err := s.storage.Snapshots().Insert(ctx, snap); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("portfolio_id", portfolioID).
		Float64("current_value", snap.CurrentValue).
		Msg("Snapshot created")

	return snap, nil
}

func (s *SnapshotService) ListSnapshots(ctx context.Context, portfolioID string, asc bool, limit int) ([]*models.Snapshot, error) {
	return s.storage.Snapshots().ListByPortfolio(ctx, portfolioID, asc, limit)
}

var _ interfaces.SnapshotService = (*SnapshotService)(nil)
