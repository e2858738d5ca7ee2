// Package app wires configuration, storage, API clients and services into
// the shared application core used by cmd/cartera-server.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mbelgrano/cartera/internal/clients/binance"
	"github.com/mbelgrano/cartera/internal/clients/coingecko"
	"github.com/mbelgrano/cartera/internal/clients/dolarapi"
	"github.com/mbelgrano/cartera/internal/clients/iol"
	"github.com/mbelgrano/cartera/internal/common"
	"github.com/mbelgrano/cartera/internal/interfaces"
	"github.com/mbelgrano/cartera/internal/models"
	"github.com/mbelgrano/cartera/internal/services/ledger"
	"github.com/mbelgrano/cartera/internal/services/pricing"
	"github.com/mbelgrano/cartera/internal/services/valuation"
	"github.com/mbelgrano/cartera/internal/storage"
)

// App holds all initialized clients and services.
type App struct {
	Config           *common.Config
	Logger           *common.Logger
	Storage          interfaces.Storage
	BrokerClient     interfaces.BrokerClient
	ExchangeClient   interfaces.ExchangeClient
	BackupClient     interfaces.BackupPriceClient
	RateClient       interfaces.RateClient
	PriceService     interfaces.PriceService
	LedgerService    interfaces.LedgerService
	ValuationService interfaces.ValuationService
	SnapshotService  interfaces.SnapshotService
	StartupTime      time.Time

	prefetchCancel context.CancelFunc
	streamCancel   context.CancelFunc
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp initializes storage, clients and services. configPath may be empty,
// in which case CARTERA_CONFIG and the binary directory are checked.
func NewApp(configPath string) (*App, error) {
	startupStart := time.Now()

	if configPath == "" {
		configPath = os.Getenv("CARTERA_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(getBinaryDir(), "cartera.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/cartera.toml" // fallback for development
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := common.NewLoggerFromConfig(config.Logging)

	store, err := storage.New(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// Brokerage client. Missing credentials are tolerated so the ledger
	// keeps working; equity valuations will degrade until they are set.
	iolCfg := config.Clients.IOL
	if iolCfg.Username == "" || iolCfg.Password == "" {
		logger.Warn().Msg("IOL credentials not configured, equity and fund pricing will be unavailable")
	}
	tokens := iol.NewTokenSource(iolCfg.BaseURL, iolCfg.Username, iolCfg.Password,
		iol.WithTokenLogger(logger),
	)
	brokerClient := iol.NewClient(tokens,
		iol.WithBaseURL(iolCfg.BaseURL),
		iol.WithLogger(logger),
		iol.WithRateLimit(iolCfg.RateLimit),
		iol.WithTimeout(iolCfg.GetTimeout()),
		iol.WithColdTimeout(iolCfg.GetColdTimeout()),
	)

	binCfg := config.Clients.Binance
	binanceOpts := []binance.ClientOption{
		binance.WithBaseURL(binCfg.BaseURL),
		binance.WithStreamURL(binCfg.StreamURL),
		binance.WithLogger(logger),
		binance.WithRateLimit(binCfg.RateLimit),
		binance.WithTimeout(binCfg.GetTimeout()),
	}
	if binCfg.APIKey != "" && binCfg.APISecret != "" {
		signer, err := binance.NewSigner(binCfg.APIKey, binCfg.APISecret, binCfg.RecvWindow)
		if err != nil {
			return nil, fmt.Errorf("failed to create exchange signer: %w", err)
		}
		binanceOpts = append(binanceOpts, binance.WithSigner(signer))
	}
	exchangeClient := binance.NewClient(binanceOpts...)

	cgCfg := config.Clients.CoinGecko
	backupClient := coingecko.NewClient(
		coingecko.WithBaseURL(cgCfg.BaseURL),
		coingecko.WithLogger(logger),
		coingecko.WithRateLimit(cgCfg.RateLimit),
		coingecko.WithTimeout(cgCfg.GetTimeout()),
	)

	dolarCfg := config.Clients.DolarAPI
	rateClient := dolarapi.NewClient(
		dolarapi.WithBaseURL(dolarCfg.BaseURL),
		dolarapi.WithLogger(logger),
		dolarapi.WithRateLimit(dolarCfg.RateLimit),
		dolarapi.WithTimeout(dolarCfg.GetTimeout()),
	)

	priceService := pricing.NewService(exchangeClient, backupClient, logger,
		pricing.WithCacheTTL(cgCfg.GetCacheTTL()),
	)
	ledgerService := ledger.NewService(store, logger)
	valuationService := valuation.NewService(store, priceService, brokerClient, rateClient, logger)
	snapshotService := valuation.NewSnapshotService(store, valuationService, logger)

	a := &App{
		Config:           config,
		Logger:           logger,
		Storage:          store,
		BrokerClient:     brokerClient,
		ExchangeClient:   exchangeClient,
		BackupClient:     backupClient,
		RateClient:       rateClient,
		PriceService:     priceService,
		LedgerService:    ledgerService,
		ValuationService: valuationService,
		SnapshotService:  snapshotService,
		StartupTime:      startupStart,
	}

	logger.Info().Dur("startup", time.Since(startupStart)).Msg("App initialized")

	return a, nil
}

// StartPrefetch warms the brokerage token and the exchange clock skew in the
// background so the first valuation does not pay those round trips.
func (a *App) StartPrefetch() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	a.prefetchCancel = cancel
	go func() {
		defer cancel()
		if err := a.BrokerClient.Prefetch(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("Brokerage token prefetch failed")
		}
		if client, ok := a.ExchangeClient.(*binance.Client); ok {
			if err := client.SyncServerTime(ctx); err != nil {
				a.Logger.Warn().Err(err).Msg("Exchange time sync failed")
			}
		}
	}()
}

// StartPriceStream opens the exchange push stream for every crypto symbol
// currently held, keeping the price cache warm between valuations.
func (a *App) StartPriceStream() {
	svc, ok := a.PriceService.(*pricing.Service)
	if !ok {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.streamCancel = cancel
	go func() {
		symbols, err := a.heldCryptoSymbols(ctx)
		if err != nil {
			a.Logger.Warn().Err(err).Msg("Price stream symbol discovery failed")
			return
		}
		if len(symbols) == 0 {
			a.Logger.Debug().Msg("No crypto positions held, price stream not started")
			return
		}
		if err := svc.StreamPrices(ctx, symbols); err != nil {
			a.Logger.Warn().Err(err).Msg("Price stream subscription failed")
		}
	}()
}

// heldCryptoSymbols collects the distinct crypto symbols across all
// portfolios.
func (a *App) heldCryptoSymbols(ctx context.Context) ([]string, error) {
	portfolios, err := a.Storage.Portfolios().List(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var symbols []string
	for _, p := range portfolios {
		assets, err := a.Storage.Assets().ListByPortfolio(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		for _, asset := range assets {
			if asset.Class == models.AssetClassCrypto && !seen[asset.Symbol] {
				seen[asset.Symbol] = true
				symbols = append(symbols, asset.Symbol)
			}
		}
	}
	return symbols, nil
}

// Close releases all resources held by the App.
func (a *App) Close() {
	if a.prefetchCancel != nil {
		a.prefetchCancel()
		a.prefetchCancel = nil
	}
	if a.streamCancel != nil {
		a.streamCancel()
		a.streamCancel = nil
	}
	if a.Storage != nil {
		if err := a.Storage.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Storage close failed")
		}
		a.Storage = nil
	}
}
