// Package interfaces defines service contracts for Cartera
package interfaces

import (
	"context"

	"github.com/mbelgrano/cartera/internal/models"
)

// BrokerClient provides authenticated access to the brokerage API.
type BrokerClient interface {
	// GetPositions retrieves the current holdings with last traded
	// prices in ARS.
	GetPositions(ctx context.Context) ([]*models.BrokerPosition, error)

	// TokenInfo reports the state of the session tokens without
	// exposing their values.
	TokenInfo() models.TokenInfo

	// Prefetch eagerly acquires a token so the first real call does
	// not pay the authentication round trip. Best effort.
	Prefetch(ctx context.Context) error
}

// ExchangeClient provides access to the crypto exchange API.
type ExchangeClient interface {
	// GetTickerPrices retrieves the full spot ticker in one call,
	// keyed by pair symbol (e.g. "BTCUSDT").
	GetTickerPrices(ctx context.Context) (map[string]float64, error)

	// GetAccountBalances retrieves non-zero wallet balances. Requires
	// signing credentials.
	GetAccountBalances(ctx context.Context) ([]*models.AccountBalance, error)

	// SubscribePrices opens a push price stream for the given plain
	// ticker symbols. The stream runs until Close is called or the
	// context is canceled.
	SubscribePrices(ctx context.Context, symbols []string) (PriceStream, error)
}

// PriceStream is a push price subscription. Updates delivers ticks until
// Close is called or the reconnect budget is exhausted, after which the
// channel is closed.
type PriceStream interface {
	Updates() <-chan models.PriceUpdate
	Close() error
}

// BackupPriceClient provides USD prices from the secondary source used when
// the primary exchange is unavailable.
type BackupPriceClient interface {
	// GetPricesUSD retrieves USD prices for the given ticker symbols.
	// Unknown symbols are omitted from the result.
	GetPricesUSD(ctx context.Context, symbols []string) (map[string]float64, error)
}

// RateClient provides peso/dollar exchange-rate quotes.
type RateClient interface {
	// GetRate retrieves one quote variant.
	GetRate(ctx context.Context, kind models.DollarRateKind) (*models.DollarRate, error)

	// GetAllRates fans out one request per variant and returns the
	// comparison summary.
	GetAllRates(ctx context.Context) (*models.RateComparison, error)
}
