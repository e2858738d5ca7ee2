// Package ledger maintains portfolios, positions and the operation journal
// with weighted-average cost accounting.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mbelgrano/cartera/internal/common"
	"github.com/mbelgrano/cartera/internal/interfaces"
	"github.com/mbelgrano/cartera/internal/models"
)

// positions below this quantity are considered fully closed
var quantityEpsilon = decimal.New(1, -8)

// Service implements the LedgerService interface.
type Service struct {
	storage interfaces.Storage
	logger  *common.Logger
	now     func() time.Time
}

// NewService creates a ledger service.
func NewService(storage interfaces.Storage, logger *common.Logger) *Service {
	return &Service{
		storage: storage,
		logger:  logger,
		now:     time.Now,
	}
}

// CreatePortfolio creates a portfolio. A positive initial capital is
// journaled as the first contribution.
func (s *Service) CreatePortfolio(ctx context.Context, name, description string, initialCapital decimal.Decimal) (*models.Portfolio, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: portfolio name is required", models.ErrValidation)
	}
	if initialCapital.IsNegative() {
		return nil, fmt.Errorf("%w: initial capital cannot be negative", models.ErrValidation)
	}

	now := s.now().UTC()
	p := &models.Portfolio{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Capital:     initialCapital,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.storage.Portfolios().Create(ctx, p); err != nil {
		return nil, err
	}

	if initialCapital.IsPositive() {
		op := s.capitalOperation(p.ID, models.OperationContribution, initialCapital, "initial capital", now)
		if err := s.storage.Operations().Insert(ctx, op); err != nil {
			return nil, err
		}
	}

	s.logger.Info().Str("portfolio_id", p.ID).Str("name", name).Msg("Portfolio created")
	return p, nil
}

func (s *Service) GetPortfolio(ctx context.Context, id string) (*models.Portfolio, error) {
	return s.storage.Portfolios().Get(ctx, id)
}

func (s *Service) ListPortfolios(ctx context.Context) ([]*models.Portfolio, error) {
	return s.storage.Portfolios().List(ctx)
}

func (s *Service) DeletePortfolio(ctx context.Context, id string) error {
	if err := s.storage.Portfolios().Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("portfolio_id", id).Msg("Portfolio deleted")
	return nil
}

// Contribute adds capital to the portfolio.
func (s *Service) Contribute(ctx context.Context, portfolioID string, amount decimal.Decimal, note string) (*models.Operation, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: contribution amount must be positive", models.ErrValidation)
	}

	if err := s.storage.Portfolios().AddCapital(ctx, portfolioID, amount); err != nil {
		return nil, err
	}

	op := s.capitalOperation(portfolioID, models.OperationContribution, amount, note, s.now().UTC())
	if err := s.storage.Operations().Insert(ctx, op); err != nil {
		return nil, err
	}
	return op, nil
}

// Withdraw removes capital. Withdrawing more than the current balance is a
// validation error and leaves the portfolio untouched.
func (s *Service) Withdraw(ctx context.Context, portfolioID string, amount decimal.Decimal, note string) (*models.Operation, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: withdrawal amount must be positive", models.ErrValidation)
	}

	p, err := s.storage.Portfolios().Get(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(p.Capital) {
		return nil, fmt.Errorf("%w: withdrawal %s exceeds capital %s", models.ErrValidation, amount, p.Capital)
	}

	if err := s.storage.Portfolios().AddCapital(ctx, portfolioID, amount.Neg()); err != nil {
		return nil, err
	}

	op := s.capitalOperation(portfolioID, models.OperationWithdrawal, amount, note, s.now().UTC())
	if err := s.storage.Operations().Insert(ctx, op); err != nil {
		return nil, err
	}
	return op, nil
}

// RegisterBuy records a purchase, creating the position or folding the lot
// into the weighted averages of an existing one.
func (s *Service) RegisterBuy(ctx context.Context, portfolioID string, in interfaces.BuyInput) (*models.Operation, error) {
	symbol := strings.ToUpper(strings.TrimSpace(in.Symbol))
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", models.ErrValidation)
	}
	if !in.Class.Valid() {
		return nil, fmt.Errorf("%w: unknown asset class %q", models.ErrValidation, in.Class)
	}
	if !in.Quantity.IsPositive() {
		return nil, fmt.Errorf("%w: quantity must be positive", models.ErrValidation)
	}

	priceUSD, priceARS, fxRate, err := resolveBuyPrices(in)
	if err != nil {
		return nil, err
	}

	if _, err := s.storage.Portfolios().Get(ctx, portfolioID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	executedAt := in.ExecutedAt
	if executedAt.IsZero() {
		executedAt = now
	}

	asset, err := s.storage.Assets().GetBySymbol(ctx, portfolioID, symbol)
	switch {
	case err == nil:
		oldQty := asset.Quantity
		newQty := oldQty.Add(in.Quantity)
		asset.AvgCostUSD = weightedAverage(oldQty, asset.AvgCostUSD, in.Quantity, priceUSD)
		if priceARS.IsPositive() {
			asset.AvgCostARS = weightedAverage(oldQty, asset.AvgCostARS, in.Quantity, priceARS)
		}
		if fxRate.IsPositive() {
			asset.AvgFXRate = weightedAverage(oldQty, asset.AvgFXRate, in.Quantity, fxRate)
		}
		asset.Quantity = newQty
		asset.UpdatedAt = now
	case errors.Is(err, models.ErrNotFound):
		asset = &models.Asset{
			ID:          uuid.NewString(),
			PortfolioID: portfolioID,
			Symbol:      symbol,
			Name:        in.Name,
			Class:       in.Class,
			Quantity:    in.Quantity,
			AvgCostUSD:  priceUSD,
			AvgCostARS:  priceARS,
			AvgFXRate:   fxRate,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	default:
		return nil, err
	}

	op := &models.Operation{
		ID:          uuid.NewString(),
		PortfolioID: portfolioID,
		AssetID:     asset.ID,
		Type:        models.OperationBuy,
		Symbol:      symbol,
		Quantity:    in.Quantity,
		PriceUSD:    priceUSD,
		PriceARS:    priceARS,
		FXRate:      fxRate,
		Amount:      in.Quantity.Mul(priceUSD),
		Note:        in.Note,
		ExecutedAt:  executedAt,
		CreatedAt:   now,
	}

	if err := s.storage.ApplyTrade(ctx, &models.TradeApply{Asset: asset, Operation: op}); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("portfolio_id", portfolioID).
		Str("symbol", symbol).
		Str("quantity", in.Quantity.String()).
		Str("price_usd", priceUSD.String()).
		Msg("Buy registered")

	return op, nil
}

// RegisterSell records a sale at the given price. The average cost never
// changes on a sell; the realized difference accrues to the portfolio. A
// position left below the closing epsilon is removed.
func (s *Service) RegisterSell(ctx context.Context, assetID string, in interfaces.SellInput) (*models.Operation, error) {
	if !in.Quantity.IsPositive() {
		return nil, fmt.Errorf("%w: quantity must be positive", models.ErrValidation)
	}
	if !in.PriceUSD.IsPositive() {
		return nil, fmt.Errorf("%w: price must be positive", models.ErrValidation)
	}

	asset, err := s.storage.Assets().Get(ctx, assetID)
	if err != nil {
		return nil, err
	}

	if in.Quantity.GreaterThan(asset.Quantity) {
		return nil, fmt.Errorf("%w: cannot sell %s, only %s held", models.ErrValidation, in.Quantity, asset.Quantity)
	}

	now := s.now().UTC()
	executedAt := in.ExecutedAt
	if executedAt.IsZero() {
		executedAt = now
	}

	realized := in.Quantity.Mul(in.PriceUSD.Sub(asset.AvgCostUSD))
	remaining := asset.Quantity.Sub(in.Quantity)
	closing := remaining.LessThanOrEqual(quantityEpsilon)

	asset.Quantity = remaining
	asset.UpdatedAt = now

	op := &models.Operation{
		ID:           uuid.NewString(),
		PortfolioID:  asset.PortfolioID,
		AssetID:      asset.ID,
		Type:         models.OperationSell,
		Symbol:       asset.Symbol,
		Quantity:     in.Quantity,
		PriceUSD:     in.PriceUSD,
		Amount:       in.Quantity.Mul(in.PriceUSD),
		RealizedGain: realized,
		Note:         in.Note,
		ExecutedAt:   executedAt,
		CreatedAt:    now,
	}

	trade := &models.TradeApply{
		Asset:             asset,
		DeleteAsset:       closing,
		Operation:         op,
		RealizedGainDelta: realized,
	}
	if err := s.storage.ApplyTrade(ctx, trade); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("portfolio_id", asset.PortfolioID).
		Str("symbol", asset.Symbol).
		Str("quantity", in.Quantity.String()).
		Str("realized", realized.String()).
		Bool("closed", closing).
		Msg("Sell registered")

	return op, nil
}

func (s *Service) GetAsset(ctx context.Context, assetID string) (*models.Asset, error) {
	return s.storage.Assets().Get(ctx, assetID)
}

func (s *Service) ListAssets(ctx context.Context, portfolioID string) ([]*models.Asset, error) {
	return s.storage.Assets().ListByPortfolio(ctx, portfolioID)
}

func (s *Service) ListOperations(ctx context.Context, portfolioID string, limit int) ([]*models.Operation, error) {
	return s.storage.Operations().ListByPortfolio(ctx, portfolioID, limit)
}

func (s *Service) capitalOperation(portfolioID string, opType models.OperationType, amount decimal.Decimal, note string, at time.Time) *models.Operation {
	return &models.Operation{
		ID:          uuid.NewString(),
		PortfolioID: portfolioID,
		Type:        opType,
		Amount:      amount,
		Note:        note,
		ExecutedAt:  at,
		CreatedAt:   at,
	}
}

// resolveBuyPrices derives the USD unit price from the input. ARS-priced
// buys need an exchange rate; the USD price wins when both are given.
func resolveBuyPrices(in interfaces.BuyInput) (priceUSD, priceARS, fxRate decimal.Decimal, err error) {
	priceARS = in.PriceARS
	fxRate = in.FXRate

	switch {
	case in.PriceUSD.IsPositive():
		priceUSD = in.PriceUSD
	case in.PriceARS.IsPositive() && in.FXRate.IsPositive():
		priceUSD = in.PriceARS.Div(in.FXRate)
	default:
		return decimal.Zero, decimal.Zero, decimal.Zero,
			fmt.Errorf("%w: a USD price or an ARS price with exchange rate is required", models.ErrValidation)
	}
	return priceUSD, priceARS, fxRate, nil
}

// weightedAverage folds a new lot into an existing average.
func weightedAverage(oldQty, oldAvg, addQty, addPrice decimal.Decimal) decimal.Decimal {
	total := oldQty.Add(addQty)
	if !total.IsPositive() {
		return addPrice
	}
	return oldQty.Mul(oldAvg).Add(addQty.Mul(addPrice)).Div(total)
}

// Verify interface compliance
var _ interfaces.LedgerService = (*Service)(nil)
