package pricing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mbelgrano/cartera/internal/breaker"
	"github.com/mbelgrano/cartera/internal/common"
	"github.com/mbelgrano/cartera/internal/interfaces"
	"github.com/mbelgrano/cartera/internal/models"
)

// mockExchange implements interfaces.ExchangeClient
type mockExchange struct {
	Ticker map[string]float64
	Err    error
	Calls  int
	Stream *fakeStream
}

func (m *mockExchange) GetTickerPrices(ctx context.Context) (map[string]float64, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Ticker, nil
}

func (m *mockExchange) GetAccountBalances(ctx context.Context) ([]*models.AccountBalance, error) {
	return nil, nil
}

func (m *mockExchange) SubscribePrices(ctx context.Context, symbols []string) (interfaces.PriceStream, error) {
	if m.Stream == nil {
		return nil, errors.New("stream unavailable")
	}
	return m.Stream, nil
}

// fakeStream implements interfaces.PriceStream
type fakeStream struct {
	updates chan models.PriceUpdate

	mu     sync.Mutex
	closed bool
}

func (f *fakeStream) Updates() <-chan models.PriceUpdate { return f.updates }

func (f *fakeStream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.updates)
	}
	return nil
}

func (f *fakeStream) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// mockBackup implements interfaces.BackupPriceClient
type mockBackup struct {
	Prices map[string]float64
	Err    error
	Calls  int
}

func (m *mockBackup) GetPricesUSD(ctx context.Context, symbols []string) (map[string]float64, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	out := make(map[string]float64)
	for _, sym := range symbols {
		if price, ok := m.Prices[sym]; ok {
			out[sym] = price
		}
	}
	return out, nil
}

func newTestService(exchange *mockExchange, backup *mockBackup, opts ...Option) *Service {
	return NewService(exchange, backup, common.NewSilentLogger(), opts...)
}

func TestGetPricesFromPrimary(t *testing.T) {
	exchange := &mockExchange{Ticker: map[string]float64{
		"BTCUSDT": 67000.5,
		"ETHUSDT": 3500.25,
		"BNBBTC":  0.008,
	}}
	backup := &mockBackup{}
	svc := newTestService(exchange, backup)

	prices, err := svc.GetPrices(context.Background(), []string{"btc", "ETH"})
	if err != nil {
		t.Fatalf("GetPrices: %v", err)
	}

	if prices["BTC"] != 67000.5 || prices["ETH"] != 3500.25 {
		t.Errorf("unexpected prices: %v", prices)
	}
	if backup.Calls != 0 {
		t.Errorf("backup must not be called when primary resolves everything, got %d calls", backup.Calls)
	}
}

func TestGetPricesEmptyInput(t *testing.T) {
	exchange := &mockExchange{}
	backup := &mockBackup{}
	svc := newTestService(exchange, backup)

	prices, err := svc.GetPrices(context.Background(), nil)
	if err != nil {
		t.Fatalf("GetPrices: %v", err)
	}
	if len(prices) != 0 {
		t.Errorf("expected empty map, got %v", prices)
	}
	if exchange.Calls != 0 || backup.Calls != 0 {
		t.Error("empty input must not touch any source")
	}
}

func TestGetPricesUSDTIsFixed(t *testing.T) {
	exchange := &mockExchange{}
	backup := &mockBackup{}
	svc := newTestService(exchange, backup)

	prices, err := svc.GetPrices(context.Background(), []string{"USDT"})
	if err != nil {
		t.Fatalf("GetPrices: %v", err)
	}
	if prices["USDT"] != 1.0 {
		t.Errorf("expected USDT pinned to 1.0, got %f", prices["USDT"])
	}
	if exchange.Calls != 0 || backup.Calls != 0 {
		t.Error("fixed symbols must not touch any source")
	}
}

func TestGetPricesFallbackOnPrimaryFailure(t *testing.T) {
	exchange := &mockExchange{Err: errors.New("exchange down")}
	backup := &mockBackup{Prices: map[string]float64{"BTC": 66900.0}}
	svc := newTestService(exchange, backup)

	prices, err := svc.GetPrices(context.Background(), []string{"BTC"})
	if err != nil {
		t.Fatalf("GetPrices: %v", err)
	}
	if prices["BTC"] != 66900.0 {
		t.Errorf("expected fallback price, got %v", prices)
	}
	if backup.Calls != 1 {
		t.Errorf("expected 1 backup call, got %d", backup.Calls)
	}
}

func TestGetPricesBreakerSkipsPrimary(t *testing.T) {
	exchange := &mockExchange{Err: errors.New("exchange down")}
	backup := &mockBackup{Prices: map[string]float64{"BTC": 66900.0}}
	svc := newTestService(exchange, backup,
		WithBreaker(breaker.New(breaker.WithThreshold(2))),
		WithCacheTTL(time.Nanosecond), // force backup fetch each call
	)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := svc.GetPrices(ctx, []string{"BTC"}); err != nil {
			t.Fatalf("GetPrices: %v", err)
		}
	}

	// threshold 2: third call must not reach the exchange
	if exchange.Calls != 2 {
		t.Errorf("expected breaker to stop primary calls at 2, got %d", exchange.Calls)
	}
	if got := svc.BreakerStatus().State; got != "open" {
		t.Errorf("expected open breaker, got %s", got)
	}

	svc.ResetBreaker()
	if got := svc.BreakerStatus().State; got != "closed" {
		t.Errorf("expected closed breaker after reset, got %s", got)
	}
}

func TestGetPricesFallbackCacheWithinTTL(t *testing.T) {
	exchange := &mockExchange{Err: errors.New("exchange down")}
	backup := &mockBackup{Prices: map[string]float64{"BTC": 66900.0}}
	svc := newTestService(exchange, backup, WithCacheTTL(time.Minute))

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	ctx := context.Background()
	if _, err := svc.GetPrices(ctx, []string{"BTC"}); err != nil {
		t.Fatalf("GetPrices: %v", err)
	}
	now = now.Add(30 * time.Second)
	if _, err := svc.GetPrices(ctx, []string{"BTC"}); err != nil {
		t.Fatalf("GetPrices: %v", err)
	}

	if backup.Calls != 1 {
		t.Errorf("expected cache hit within TTL, got %d backup calls", backup.Calls)
	}

	now = now.Add(time.Minute)
	if _, err := svc.GetPrices(ctx, []string{"BTC"}); err != nil {
		t.Fatalf("GetPrices: %v", err)
	}
	if backup.Calls != 2 {
		t.Errorf("expected refetch after TTL, got %d backup calls", backup.Calls)
	}
}

func TestGetPricesStaleCacheServedOnBackupFailure(t *testing.T) {
	exchange := &mockExchange{Err: errors.New("exchange down")}
	backup := &mockBackup{Prices: map[string]float64{"BTC": 66900.0}}
	svc := newTestService(exchange, backup, WithCacheTTL(time.Minute))

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	ctx := context.Background()
	if _, err := svc.GetPrices(ctx, []string{"BTC"}); err != nil {
		t.Fatalf("GetPrices: %v", err)
	}

	// cache expired and backup now failing
	now = now.Add(5 * time.Minute)
	backup.Err = errors.New("backup down")

	prices, err := svc.GetPrices(ctx, []string{"BTC", "ETH"})
	if err != nil {
		t.Fatalf("GetPrices: %v", err)
	}
	if prices["BTC"] != 66900.0 {
		t.Errorf("expected stale BTC price served, got %v", prices)
	}
	if _, ok := prices["ETH"]; ok {
		t.Error("symbols never seen must be omitted when all sources fail")
	}
}

func TestGetPricesPartialPrimaryUsesBackup(t *testing.T) {
	exchange := &mockExchange{Ticker: map[string]float64{"BTCUSDT": 67000.5}}
	backup := &mockBackup{Prices: map[string]float64{"PAXG": 2400.0}}
	svc := newTestService(exchange, backup)

	prices, err := svc.GetPrices(context.Background(), []string{"BTC", "PAXG"})
	if err != nil {
		t.Fatalf("GetPrices: %v", err)
	}
	if prices["BTC"] != 67000.5 {
		t.Errorf("expected primary BTC price, got %v", prices)
	}
	if prices["PAXG"] != 2400.0 {
		t.Errorf("expected backup PAXG price, got %v", prices)
	}
}

func TestGetPricesUncachedSymbolRefetchesWithinTTL(t *testing.T) {
	exchange := &mockExchange{Err: errors.New("exchange down")}
	backup := &mockBackup{Prices: map[string]float64{"BTC": 66900.0, "ETH": 3500.0}}
	svc := newTestService(exchange, backup, WithCacheTTL(time.Minute))

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	ctx := context.Background()
	if _, err := svc.GetPrices(ctx, []string{"BTC"}); err != nil {
		t.Fatalf("GetPrices: %v", err)
	}
	if backup.Calls != 1 {
		t.Fatalf("expected 1 backup call, got %d", backup.Calls)
	}

	// fully cached request inside the TTL stays off the network
	now = now.Add(10 * time.Second)
	if _, err := svc.GetPrices(ctx, []string{"BTC"}); err != nil {
		t.Fatalf("GetPrices: %v", err)
	}
	if backup.Calls != 1 {
		t.Errorf("expected cache hit for cached symbols, got %d backup calls", backup.Calls)
	}

	// a request carrying an uncached symbol fetches live even inside the TTL
	now = now.Add(10 * time.Second)
	prices, err := svc.GetPrices(ctx, []string{"BTC", "ETH"})
	if err != nil {
		t.Fatalf("GetPrices: %v", err)
	}
	if backup.Calls != 2 {
		t.Errorf("expected live fetch for the uncached symbol, got %d backup calls", backup.Calls)
	}
	if prices["BTC"] != 66900.0 || prices["ETH"] != 3500.0 {
		t.Errorf("expected merged prices, got %v", prices)
	}

	// both symbols now cached; the next request inside the TTL is served
	// without a call
	now = now.Add(10 * time.Second)
	if _, err := svc.GetPrices(ctx, []string{"BTC", "ETH"}); err != nil {
		t.Fatalf("GetPrices: %v", err)
	}
	if backup.Calls != 2 {
		t.Errorf("expected cache hit after merge, got %d backup calls", backup.Calls)
	}
}

func TestStreamPricesFeedsCache(t *testing.T) {
	stream := &fakeStream{updates: make(chan models.PriceUpdate, 4)}
	exchange := &mockExchange{Err: errors.New("exchange down"), Stream: stream}
	backup := &mockBackup{}
	svc := newTestService(exchange, backup, WithCacheTTL(time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.StreamPrices(ctx, []string{"BTC"}); err != nil {
		t.Fatalf("StreamPrices: %v", err)
	}

	stream.updates <- models.PriceUpdate{Symbol: "BTC", Price: 50000, Timestamp: time.Now()}

	deadline := time.Now().Add(2 * time.Second)
	for {
		svc.mu.Lock()
		price := svc.cache["BTC"]
		svc.mu.Unlock()
		if price == 50000 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("tick never reached the cache")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// primary down: the streamed tick serves from cache without a live
	// backup call
	prices, err := svc.GetPrices(ctx, []string{"BTC"})
	if err != nil {
		t.Fatalf("GetPrices: %v", err)
	}
	if prices["BTC"] != 50000 {
		t.Errorf("expected streamed price served, got %v", prices)
	}
	if backup.Calls != 0 {
		t.Errorf("expected no backup call for streamed symbol, got %d", backup.Calls)
	}

	cancel()
	deadline = time.Now().Add(2 * time.Second)
	for !stream.isClosed() {
		if time.Now().After(deadline) {
			t.Fatal("stream not closed after cancel")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStreamPricesSubscribeFailure(t *testing.T) {
	exchange := &mockExchange{}
	svc := newTestService(exchange, &mockBackup{})

	if err := svc.StreamPrices(context.Background(), []string{"BTC"}); err == nil {
		t.Fatal("expected subscribe error")
	}
}

func TestStreamPricesIgnoresBadTicks(t *testing.T) {
	stream := &fakeStream{updates: make(chan models.PriceUpdate, 4)}
	exchange := &mockExchange{Stream: stream}
	svc := newTestService(exchange, &mockBackup{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.StreamPrices(ctx, []string{"BTC"}); err != nil {
		t.Fatalf("StreamPrices: %v", err)
	}

	stream.updates <- models.PriceUpdate{Symbol: "", Price: 100}
	stream.updates <- models.PriceUpdate{Symbol: "BTC", Price: -1}
	stream.updates <- models.PriceUpdate{Symbol: "BTC", Price: 42000}

	deadline := time.Now().Add(2 * time.Second)
	for {
		svc.mu.Lock()
		size := len(svc.cache)
		price := svc.cache["BTC"]
		svc.mu.Unlock()
		if price == 42000 {
			if size != 1 {
				t.Errorf("expected only the valid tick cached, got %d entries", size)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("valid tick never reached the cache")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
