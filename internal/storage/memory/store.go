// Package memory provides an in-memory Storage implementation used by the
// "memory" driver and by service tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbelgrano/cartera/internal/interfaces"
	"github.com/mbelgrano/cartera/internal/models"
)

// Store implements interfaces.Storage with maps behind one mutex.
type Store struct {
	mu         sync.RWMutex
	portfolios map[string]models.Portfolio
	assets     map[string]models.Asset
	operations map[string][]models.Operation // keyed by portfolio id, append order
	snapshots  map[string][]models.Snapshot  // keyed by portfolio id, append order
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		portfolios: make(map[string]models.Portfolio),
		assets:     make(map[string]models.Asset),
		operations: make(map[string][]models.Operation),
		snapshots:  make(map[string][]models.Snapshot),
	}
}

func (s *Store) Portfolios() interfaces.PortfolioStore { return (*portfolioStore)(s) }
func (s *Store) Assets() interfaces.AssetStore         { return (*assetStore)(s) }
func (s *Store) Operations() interfaces.OperationStore { return (*operationStore)(s) }
func (s *Store) Snapshots() interfaces.SnapshotStore   { return (*snapshotStore)(s) }

func (s *Store) Close() error { return nil }

// ApplyTrade commits the asset change, the operation record and the
// realized-gain delta under one lock.
func (s *Store) ApplyTrade(ctx context.Context, trade *models.TradeApply) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if trade == nil || trade.Asset == nil || trade.Operation == nil {
		return fmt.Errorf("%w: incomplete trade", models.ErrValidation)
	}

	portfolio, ok := s.portfolios[trade.Asset.PortfolioID]
	if !ok {
		return fmt.Errorf("portfolio %s: %w", trade.Asset.PortfolioID, models.ErrNotFound)
	}

	if trade.DeleteAsset {
		delete(s.assets, trade.Asset.ID)
	} else {
		s.assets[trade.Asset.ID] = *trade.Asset
	}

	pid := trade.Operation.PortfolioID
	s.operations[pid] = append(s.operations[pid], *trade.Operation)

	if !trade.RealizedGainDelta.IsZero() {
		portfolio.RealizedGains = portfolio.RealizedGains.Add(trade.RealizedGainDelta)
	}
	portfolio.UpdatedAt = trade.Operation.CreatedAt
	s.portfolios[portfolio.ID] = portfolio

	return nil
}

// --- portfolios ---

type portfolioStore Store

func (s *portfolioStore) Create(ctx context.Context, p *models.Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.portfolios[p.ID]; exists {
		return fmt.Errorf("portfolio %s: %w", p.ID, models.ErrConflict)
	}
	s.portfolios[p.ID] = *p
	return nil
}

func (s *portfolioStore) Get(ctx context.Context, id string) (*models.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.portfolios[id]
	if !ok {
		return nil, fmt.Errorf("portfolio %s: %w", id, models.ErrNotFound)
	}
	return &p, nil
}

func (s *portfolioStore) List(ctx context.Context) ([]*models.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Portfolio, 0, len(s.portfolios))
	for id := range s.portfolios {
		p := s.portfolios[id]
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *portfolioStore) Update(ctx context.Context, p *models.Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.portfolios[p.ID]; !ok {
		return fmt.Errorf("portfolio %s: %w", p.ID, models.ErrNotFound)
	}
	s.portfolios[p.ID] = *p
	return nil
}

func (s *portfolioStore) AddCapital(ctx context.Context, id string, delta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.portfolios[id]
	if !ok {
		return fmt.Errorf("portfolio %s: %w", id, models.ErrNotFound)
	}

	next := p.Capital.Add(delta)
	if next.IsNegative() {
		return fmt.Errorf("%w: capital cannot go negative", models.ErrValidation)
	}
	p.Capital = next
	p.UpdatedAt = time.Now().UTC()
	s.portfolios[id] = p
	return nil
}

func (s *portfolioStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.portfolios[id]; !ok {
		return fmt.Errorf("portfolio %s: %w", id, models.ErrNotFound)
	}
	delete(s.portfolios, id)
	for assetID, asset := range s.assets {
		if asset.PortfolioID == id {
			delete(s.assets, assetID)
		}
	}
	delete(s.operations, id)
	delete(s.snapshots, id)
	return nil
}

// --- assets ---

type assetStore Store

func (s *assetStore) Get(ctx context.Context, id string) (*models.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assets[id]
	if !ok {
		return nil, fmt.Errorf("asset %s: %w", id, models.ErrNotFound)
	}
	return &a, nil
}

func (s *assetStore) GetBySymbol(ctx context.Context, portfolioID, symbol string) (*models.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for id := range s.assets {
		a := s.assets[id]
		if a.PortfolioID == portfolioID && a.Symbol == symbol {
			return &a, nil
		}
	}
	return nil, fmt.Errorf("asset %s in portfolio %s: %w", symbol, portfolioID, models.ErrNotFound)
}

func (s *assetStore) ListByPortfolio(ctx context.Context, portfolioID string) ([]*models.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Asset
	for id := range s.assets {
		a := s.assets[id]
		if a.PortfolioID == portfolioID {
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Symbol < out[j].Symbol
	})
	return out, nil
}

// --- operations ---

type operationStore Store

func (s *operationStore) Insert(ctx context.Context, op *models.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.operations[op.PortfolioID] = append(s.operations[op.PortfolioID], *op)
	return nil
}

func (s *operationStore) ListByPortfolio(ctx context.Context, portfolioID string, limit int) ([]*models.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ops := s.operations[portfolioID]
	out := make([]*models.Operation, 0, len(ops))
	for i := len(ops) - 1; i >= 0; i-- {
		op := ops[i]
		out = append(out, &op)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// --- snapshots ---

type snapshotStore Store

func (s *snapshotStore) Insert(ctx context.Context, snap *models.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots[snap.PortfolioID] = append(s.snapshots[snap.PortfolioID], *snap)
	return nil
}

func (s *snapshotStore) ExistsOn(ctx context.Context, portfolioID string, t time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	y, m, d := t.UTC().Date()
	for _, snap := range s.snapshots[portfolioID] {
		sy, sm, sd := snap.CreatedAt.UTC().Date()
		if y == sy && m == sm && d == sd {
			return true, nil
		}
	}
	return false, nil
}

func (s *snapshotStore) ListByPortfolio(ctx context.Context, portfolioID string, asc bool, limit int) ([]*models.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snaps := s.snapshots[portfolioID]
	out := make([]*models.Snapshot, 0, len(snaps))
	if asc {
		for i := range snaps {
			snap := snaps[i]
			out = append(out, &snap)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	} else {
		for i := len(snaps) - 1; i >= 0; i-- {
			snap := snaps[i]
			out = append(out, &snap)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// Verify interface compliance
var _ interfaces.Storage = (*Store)(nil)
