// Package valuation prices portfolios against live market data and freezes
// daily snapshots.
package valuation

import (
	"context"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mbelgrano/cartera/internal/common"
	"github.com/mbelgrano/cartera/internal/interfaces"
	"github.com/mbelgrano/cartera/internal/models"
)

// Service implements the ValuationService interface. Crypto assets price
// through the resolver; listed equities and funds take the brokerage's last
// traded peso price divided by the CCL sell rate.
type Service struct {
	storage interfaces.Storage
	prices  interfaces.PriceService
	broker  interfaces.BrokerClient
	rates   interfaces.RateClient
	logger  *common.Logger
	now     func() time.Time
}

// NewService creates a valuation service.
func NewService(storage interfaces.Storage, prices interfaces.PriceService, broker interfaces.BrokerClient, rates interfaces.RateClient, logger *common.Logger) *Service {
	return &Service{
		storage: storage,
		prices:  prices,
		broker:  broker,
		rates:   rates,
		logger:  logger,
		now:     time.Now,
	}
}

// marketData holds the upstream inputs of one valuation run. A nil or zero
// field means that source failed and its assets degrade to price 0.
type marketData struct {
	cryptoPrices map[string]float64
	brokerPrices map[string]float64
	fxRate       float64
}

// Valuate builds the full report. Upstream failures degrade the affected
// asset class instead of failing the whole valuation.
func (s *Service) Valuate(ctx context.Context, portfolioID string) (*models.Valuation, error) {
	portfolio, err := s.storage.Portfolios().Get(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	assets, err := s.storage.Assets().ListByPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	capital, _ := portfolio.Capital.Float64()
	realized, _ := portfolio.RealizedGains.Float64()

	v := &models.Valuation{
		PortfolioID:   portfolio.ID,
		PortfolioName: portfolio.Name,
		Capital:       round2(capital),
		RealizedGains: round2(realized),
		GeneratedAt:   s.now().UTC(),
	}

	if len(assets) == 0 {
		v.TotalInvested = round2(capital + realized)
		v.TotalGain = round2(realized)
		if capital > 0 {
			v.TotalGainPct = round2(realized / capital * 100)
		}
		v.Assets = []models.AssetValuation{}
		v.ByClass = []models.ClassBreakdown{}
		return v, nil
	}

	data := s.fetchMarketData(ctx, assets)
	v.FXRate = round2(data.fxRate)

	var totalValue, totalCost float64
	byClass := make(map[models.AssetClass]*models.ClassBreakdown)

	for _, asset := range assets {
		qty, _ := asset.Quantity.Float64()
		avgCost, _ := asset.AvgCostUSD.Float64()

		priceUSD, resolved := s.resolvePrice(asset, data)
		if !resolved {
			v.Degraded = append(v.Degraded, asset.Symbol)
			s.logger.Warn().
				Str("portfolio_id", portfolioID).
				Str("symbol", asset.Symbol).
				Str("class", string(asset.Class)).
				Msg("Price unresolved, valuing position at zero")
		}

		value := qty * priceUSD
		cost := qty * avgCost
		gain := value - cost

		av := models.AssetValuation{
			AssetID:        asset.ID,
			Symbol:         asset.Symbol,
			Name:           asset.Name,
			Class:          asset.Class,
			Quantity:       qty,
			AvgCostUSD:     round2(avgCost),
			PriceUSD:       round2(priceUSD),
			CurrentValue:   round2(value),
			CostBasis:      round2(cost),
			UnrealizedGain: round2(gain),
			PriceResolved:  resolved,
		}
		if cost > 0 {
			av.GainPct = round2(gain / cost * 100)
		}
		v.Assets = append(v.Assets, av)

		totalValue += value
		totalCost += cost

		bc, ok := byClass[asset.Class]
		if !ok {
			bc = &models.ClassBreakdown{Class: asset.Class}
			byClass[asset.Class] = bc
		}
		bc.CurrentValue += value
		bc.CostBasis += cost
		bc.UnrealizedGain += gain
		bc.AssetCount++
	}

	if totalValue > 0 {
		for i := range v.Assets {
			v.Assets[i].CompositionPct = round2(v.Assets[i].CurrentValue / totalValue * 100)
		}
	}

	unrealized := totalValue - totalCost
	totalGain := unrealized + realized

	v.CurrentValue = round2(totalValue)
	v.CostBasis = round2(totalCost)
	v.UnrealizedGains = round2(unrealized)
	v.TotalInvested = round2(capital + realized)
	v.TotalGain = round2(totalGain)
	if capital > 0 {
		v.TotalGainPct = round2(totalGain / capital * 100)
	}

	for _, class := range []models.AssetClass{models.AssetClassCrypto, models.AssetClassEquity, models.AssetClassFund} {
		bc, ok := byClass[class]
		if !ok {
			continue
		}
		if totalValue > 0 {
			bc.CompositionPct = round2(bc.CurrentValue / totalValue * 100)
		}
		bc.CurrentValue = round2(bc.CurrentValue)
		bc.CostBasis = round2(bc.CostBasis)
		bc.UnrealizedGain = round2(bc.UnrealizedGain)
		v.ByClass = append(v.ByClass, *bc)
	}

	return v, nil
}

// fetchMarketData pulls the three upstream inputs concurrently. Each failure
// is logged and leaves its slot empty rather than aborting the run.
func (s *Service) fetchMarketData(ctx context.Context, assets []*models.Asset) *marketData {
	var cryptoSymbols []string
	needsLocal := false
	for _, a := range assets {
		if a.Class == models.AssetClassCrypto {
			cryptoSymbols = append(cryptoSymbols, a.Symbol)
		} else {
			needsLocal = true
		}
	}

	data := &marketData{}
	g, gctx := errgroup.WithContext(ctx)

	if len(cryptoSymbols) > 0 {
		g.Go(func() error {
			prices, err := s.prices.GetPrices(gctx, cryptoSymbols)
			if err != nil {
				s.logger.Warn().Err(err).Msg("Crypto price resolution failed")
				return nil
			}
			data.cryptoPrices = prices
			return nil
		})
	}

	if needsLocal {
		g.Go(func() error {
			positions, err := s.broker.GetPositions(gctx)
			if err != nil {
				s.logger.Warn().Err(err).Msg("Brokerage position fetch failed")
				return nil
			}
			data.brokerPrices = make(map[string]float64, len(positions))
			for _, pos := range positions {
				if pos.LastPrice > 0 {
					data.brokerPrices[pos.Symbol] = pos.LastPrice
				}
			}
			return nil
		})
		g.Go(func() error {
			rate, err := s.rates.GetRate(gctx, models.DollarCCL)
			if err != nil {
				s.logger.Warn().Err(err).Msg("CCL rate fetch failed")
				return nil
			}
			data.fxRate = rate.Sell
			return nil
		})
	}

	g.Wait()
	return data
}

// resolvePrice returns the USD market price of the asset and whether it
// could be resolved.
func (s *Service) resolvePrice(asset *models.Asset, data *marketData) (float64, bool) {
	switch asset.Class {
	case models.AssetClassCrypto:
		price, ok := data.cryptoPrices[asset.Symbol]
		return price, ok && price > 0
	default:
		localPrice, ok := data.brokerPrices[asset.Symbol]
		if !ok || localPrice <= 0 || data.fxRate <= 0 {
			return 0, false
		}
		return localPrice / data.fxRate, true
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

var _ interfaces.ValuationService = (*Service)(nil)
