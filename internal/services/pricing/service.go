// Package pricing resolves USD prices for crypto symbols across the primary
// exchange and a cached secondary source.
package pricing

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mbelgrano/cartera/internal/breaker"
	"github.com/mbelgrano/cartera/internal/common"
	"github.com/mbelgrano/cartera/internal/interfaces"
	"github.com/mbelgrano/cartera/internal/models"
)

// fixedPrices are stable symbols that never hit the network.
var fixedPrices = map[string]float64{
	"USDT": 1.0,
}

// Service implements the PriceService interface. The primary exchange is
// gated by a circuit breaker; the secondary source sits behind a short TTL
// cache whose stale entries are still served when the source fails.
type Service struct {
	exchange interfaces.ExchangeClient
	backup   interfaces.BackupPriceClient
	brk      *breaker.Breaker
	logger   *common.Logger
	cacheTTL time.Duration

	mu       sync.Mutex
	cache    map[string]float64
	cachedAt time.Time

	now func() time.Time
}

// Option configures the Service.
type Option func(*Service)

// WithCacheTTL sets the fallback cache TTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(b *breaker.Breaker) Option {
	return func(s *Service) {
		s.brk = b
	}
}

// NewService creates a price resolution service.
func NewService(exchange interfaces.ExchangeClient, backup interfaces.BackupPriceClient, logger *common.Logger, opts ...Option) *Service {
	s := &Service{
		exchange: exchange,
		backup:   backup,
		brk:      breaker.New(),
		logger:   logger,
		cacheTTL: time.Minute,
		cache:    make(map[string]float64),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// GetPrices resolves USD prices for plain ticker symbols. Symbols that
// cannot be resolved by any source are omitted from the result; an empty
// input returns an empty map without touching the network.
func (s *Service) GetPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	prices := make(map[string]float64, len(symbols))

	remaining := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		upper := strings.ToUpper(strings.TrimSpace(sym))
		if upper == "" {
			continue
		}
		if fixed, ok := fixedPrices[upper]; ok {
			prices[upper] = fixed
			continue
		}
		if _, seen := prices[upper]; !seen {
			remaining = append(remaining, upper)
		}
	}
	if len(remaining) == 0 {
		return prices, nil
	}

	remaining = s.resolvePrimary(ctx, remaining, prices)
	if len(remaining) == 0 {
		return prices, nil
	}

	s.resolveBackup(ctx, remaining, prices)
	return prices, nil
}

// resolvePrimary fills prices from the exchange ticker when the breaker
// admits the request, returning the symbols still unresolved.
func (s *Service) resolvePrimary(ctx context.Context, symbols []string, prices map[string]float64) []string {
	if !s.brk.Allow() {
		s.logger.Debug().Msg("Primary price source circuit open, using fallback")
		return symbols
	}

	ticker, err := s.exchange.GetTickerPrices(ctx)
	if err != nil {
		s.brk.RecordFailure(err)
		s.logger.Warn().Err(err).Msg("Primary price source failed")
		return symbols
	}
	s.brk.RecordSuccess()

	unresolved := symbols[:0]
	for _, sym := range symbols {
		if price, ok := ticker[sym+"USDT"]; ok && price > 0 {
			prices[sym] = price
		} else {
			unresolved = append(unresolved, sym)
		}
	}
	return unresolved
}

// resolveBackup fills prices from the secondary source through the TTL
// cache. The cache only answers a request it can answer completely: any
// uncached symbol triggers a live fetch even inside the TTL window, and the
// result is merged over the existing entries. On fetch failure stale cache
// entries are served.
func (s *Service) resolveBackup(ctx context.Context, symbols []string, prices map[string]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := s.now().Sub(s.cachedAt) < s.cacheTTL
	if fresh && s.cacheHasAll(symbols) {
		for _, sym := range symbols {
			if price, ok := s.cache[sym]; ok {
				prices[sym] = price
			}
		}
		return
	}

	fetched, err := s.backup.GetPricesUSD(ctx, symbols)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Fallback price source failed, serving stale cache")
		for _, sym := range symbols {
			if price, ok := s.cache[sym]; ok {
				prices[sym] = price
			} else {
				s.logger.Warn().Str("symbol", sym).Msg("Price unresolved by any source")
			}
		}
		return
	}

	s.cachedAt = s.now()
	for sym, price := range fetched {
		s.cache[sym] = price
	}
	for _, sym := range symbols {
		if price, ok := s.cache[sym]; ok {
			prices[sym] = price
		} else {
			s.logger.Warn().Str("symbol", sym).Msg("Price unresolved by any source")
		}
	}
}

// StreamPrices subscribes to exchange push updates for the given symbols
// and folds each tick into the fallback cache until ctx is canceled. Ticks
// refresh the cache clock, so streamed symbols keep serving from cache
// without live backup calls.
func (s *Service) StreamPrices(ctx context.Context, symbols []string) error {
	stream, err := s.exchange.SubscribePrices(ctx, symbols)
	if err != nil {
		return fmt.Errorf("price stream subscribe: %w", err)
	}

	go func() {
		defer stream.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-stream.Updates():
				if !ok {
					return
				}
				s.absorb(update)
			}
		}
	}()

	s.logger.Info().Int("symbols", len(symbols)).Msg("Price stream started")
	return nil
}

// absorb stores one push tick in the fallback cache.
func (s *Service) absorb(update models.PriceUpdate) {
	if update.Symbol == "" || update.Price <= 0 {
		return
	}
	s.mu.Lock()
	s.cache[strings.ToUpper(update.Symbol)] = update.Price
	s.cachedAt = s.now()
	s.mu.Unlock()
}

// cacheHasAll reports whether every symbol is cached. Callers hold s.mu.
func (s *Service) cacheHasAll(symbols []string) bool {
	for _, sym := range symbols {
		if _, ok := s.cache[sym]; !ok {
			return false
		}
	}
	return true
}

// BreakerStatus reports the primary-source circuit breaker state.
func (s *Service) BreakerStatus() interfaces.BreakerStatus {
	st := s.brk.Status()
	return interfaces.BreakerStatus{
		State:        st.State.String(),
		Failures:     st.Failures,
		OpenedAt:     st.OpenedAt,
		ReopensAfter: st.ReopensAfter,
	}
}

// ResetBreaker force-closes the circuit breaker.
func (s *Service) ResetBreaker() {
	s.brk.Reset()
	s.logger.Info().Msg("Price source circuit breaker reset")
}

// Verify interface compliance
var _ interfaces.PriceService = (*Service)(nil)
