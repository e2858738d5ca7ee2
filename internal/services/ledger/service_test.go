package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbelgrano/cartera/internal/common"
	"github.com/mbelgrano/cartera/internal/interfaces"
	"github.com/mbelgrano/cartera/internal/models"
	"github.com/mbelgrano/cartera/internal/storage/memory"
)

func newTestService() (*Service, *memory.Store) {
	store := memory.New()
	return NewService(store, common.NewSilentLogger()), store
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCreatePortfolio(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	p, err := svc.CreatePortfolio(ctx, "Main", "long term", dec("1000"))
	require.NoError(t, err)
	require.NotEmpty(t, p.ID)
	assert.Equal(t, "Main", p.Name)
	assert.True(t, p.Capital.Equal(dec("1000")))

	// initial capital shows up in the journal
	ops, err := svc.ListOperations(ctx, p.ID, 0)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, models.OperationContribution, ops[0].Type)
	assert.True(t, ops[0].Amount.Equal(dec("1000")))
}

func TestCreatePortfolioValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.CreatePortfolio(ctx, "  ", "", decimal.Zero)
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = svc.CreatePortfolio(ctx, "Main", "", dec("-1"))
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestContributeAndWithdraw(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	p, err := svc.CreatePortfolio(ctx, "Main", "", dec("500"))
	require.NoError(t, err)

	_, err = svc.Contribute(ctx, p.ID, dec("250"), "bonus")
	require.NoError(t, err)

	_, err = svc.Withdraw(ctx, p.ID, dec("100"), "")
	require.NoError(t, err)

	got, err := svc.GetPortfolio(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.Capital.Equal(dec("650")), "capital is %s", got.Capital)
}

func TestWithdrawExceedingCapital(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	p, err := svc.CreatePortfolio(ctx, "Main", "", dec("100"))
	require.NoError(t, err)

	_, err = svc.Withdraw(ctx, p.ID, dec("100.01"), "")
	require.ErrorIs(t, err, models.ErrValidation)

	got, err := svc.GetPortfolio(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.Capital.Equal(dec("100")), "capital must be untouched, got %s", got.Capital)

	// the rejected withdrawal leaves no journal entry
	ops, err := svc.ListOperations(ctx, p.ID, 0)
	require.NoError(t, err)
	assert.Len(t, ops, 1)
}

func TestRegisterBuyNewAsset(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	p, err := svc.CreatePortfolio(ctx, "Main", "", dec("1000"))
	require.NoError(t, err)

	op, err := svc.RegisterBuy(ctx, p.ID, interfaces.BuyInput{
		Symbol:   "btc",
		Name:     "Bitcoin",
		Class:    models.AssetClassCrypto,
		Quantity: dec("0.5"),
		PriceUSD: dec("60000"),
	})
	require.NoError(t, err)
	assert.Equal(t, "BTC", op.Symbol)
	assert.True(t, op.Amount.Equal(dec("30000")))

	assets, err := svc.ListAssets(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, "BTC", assets[0].Symbol)
	assert.True(t, assets[0].Quantity.Equal(dec("0.5")))
	assert.True(t, assets[0].AvgCostUSD.Equal(dec("60000")))
}

func TestRegisterBuyWeightedAverage(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	p, err := svc.CreatePortfolio(ctx, "Main", "", dec("1000"))
	require.NoError(t, err)

	_, err = svc.RegisterBuy(ctx, p.ID, interfaces.BuyInput{
		Symbol: "ETH", Class: models.AssetClassCrypto,
		Quantity: dec("1"), PriceUSD: dec("100"),
	})
	require.NoError(t, err)

	_, err = svc.RegisterBuy(ctx, p.ID, interfaces.BuyInput{
		Symbol: "ETH", Class: models.AssetClassCrypto,
		Quantity: dec("1"), PriceUSD: dec("200"),
	})
	require.NoError(t, err)

	assets, err := svc.ListAssets(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.True(t, assets[0].Quantity.Equal(dec("2")))
	assert.True(t, assets[0].AvgCostUSD.Equal(dec("150")), "avg cost is %s", assets[0].AvgCostUSD)
}

func TestRegisterBuyARSPricing(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	p, err := svc.CreatePortfolio(ctx, "Main", "", dec("1000"))
	require.NoError(t, err)

	_, err = svc.RegisterBuy(ctx, p.ID, interfaces.BuyInput{
		Symbol:   "GGAL",
		Class:    models.AssetClassEquity,
		Quantity: dec("10"),
		PriceARS: dec("6000"),
		FXRate:   dec("1200"),
	})
	require.NoError(t, err)

	assets, err := svc.ListAssets(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.True(t, assets[0].AvgCostUSD.Equal(dec("5")), "usd cost is %s", assets[0].AvgCostUSD)
	assert.True(t, assets[0].AvgCostARS.Equal(dec("6000")))
	assert.True(t, assets[0].AvgFXRate.Equal(dec("1200")))
}

func TestRegisterBuyValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	p, err := svc.CreatePortfolio(ctx, "Main", "", decimal.Zero)
	require.NoError(t, err)

	cases := []struct {
		name string
		in   interfaces.BuyInput
	}{
		{"empty symbol", interfaces.BuyInput{Class: models.AssetClassCrypto, Quantity: dec("1"), PriceUSD: dec("1")}},
		{"bad class", interfaces.BuyInput{Symbol: "BTC", Class: "bond", Quantity: dec("1"), PriceUSD: dec("1")}},
		{"zero quantity", interfaces.BuyInput{Symbol: "BTC", Class: models.AssetClassCrypto, PriceUSD: dec("1")}},
		{"no price", interfaces.BuyInput{Symbol: "BTC", Class: models.AssetClassCrypto, Quantity: dec("1")}},
		{"ars without fx", interfaces.BuyInput{Symbol: "GGAL", Class: models.AssetClassEquity, Quantity: dec("1"), PriceARS: dec("6000")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.RegisterBuy(ctx, p.ID, tc.in)
			assert.ErrorIs(t, err, models.ErrValidation)
		})
	}

	_, err = svc.RegisterBuy(ctx, "missing", interfaces.BuyInput{
		Symbol: "BTC", Class: models.AssetClassCrypto, Quantity: dec("1"), PriceUSD: dec("1"),
	})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRegisterSellRealizedGain(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	p, err := svc.CreatePortfolio(ctx, "Main", "", dec("1000"))
	require.NoError(t, err)

	_, err = svc.RegisterBuy(ctx, p.ID, interfaces.BuyInput{
		Symbol: "ETH", Class: models.AssetClassCrypto,
		Quantity: dec("1"), PriceUSD: dec("100"),
	})
	require.NoError(t, err)
	_, err = svc.RegisterBuy(ctx, p.ID, interfaces.BuyInput{
		Symbol: "ETH", Class: models.AssetClassCrypto,
		Quantity: dec("1"), PriceUSD: dec("200"),
	})
	require.NoError(t, err)

	assets, err := svc.ListAssets(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, assets, 1)

	op, err := svc.RegisterSell(ctx, assets[0].ID, interfaces.SellInput{
		Quantity: dec("1"), PriceUSD: dec("250"),
	})
	require.NoError(t, err)
	assert.True(t, op.RealizedGain.Equal(dec("100")), "realized is %s", op.RealizedGain)

	// remaining position keeps its average cost
	asset, err := svc.GetAsset(ctx, assets[0].ID)
	require.NoError(t, err)
	assert.True(t, asset.Quantity.Equal(dec("1")))
	assert.True(t, asset.AvgCostUSD.Equal(dec("150")))

	got, err := svc.GetPortfolio(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.RealizedGains.Equal(dec("100")))
	assert.True(t, got.Capital.Equal(dec("1000")), "capital tracks contributions only")
}

func TestRegisterSellClosesPosition(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	p, err := svc.CreatePortfolio(ctx, "Main", "", dec("1000"))
	require.NoError(t, err)

	_, err = svc.RegisterBuy(ctx, p.ID, interfaces.BuyInput{
		Symbol: "BTC", Class: models.AssetClassCrypto,
		Quantity: dec("0.25"), PriceUSD: dec("40000"),
	})
	require.NoError(t, err)

	assets, err := svc.ListAssets(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, assets, 1)

	_, err = svc.RegisterSell(ctx, assets[0].ID, interfaces.SellInput{
		Quantity: dec("0.25"), PriceUSD: dec("50000"),
	})
	require.NoError(t, err)

	_, err = svc.GetAsset(ctx, assets[0].ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	remaining, err := svc.ListAssets(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestRegisterSellOversell(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	p, err := svc.CreatePortfolio(ctx, "Main", "", dec("1000"))
	require.NoError(t, err)

	_, err = svc.RegisterBuy(ctx, p.ID, interfaces.BuyInput{
		Symbol: "BTC", Class: models.AssetClassCrypto,
		Quantity: dec("1"), PriceUSD: dec("100"),
	})
	require.NoError(t, err)

	assets, err := svc.ListAssets(ctx, p.ID)
	require.NoError(t, err)

	_, err = svc.RegisterSell(ctx, assets[0].ID, interfaces.SellInput{
		Quantity: dec("1.5"), PriceUSD: dec("200"),
	})
	require.ErrorIs(t, err, models.ErrValidation)

	// no mutation on a rejected sell
	asset, err := svc.GetAsset(ctx, assets[0].ID)
	require.NoError(t, err)
	assert.True(t, asset.Quantity.Equal(dec("1")))

	got, err := svc.GetPortfolio(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.RealizedGains.IsZero())
}

func TestRegisterSellUnknownAsset(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.RegisterSell(context.Background(), "missing", interfaces.SellInput{
		Quantity: dec("1"), PriceUSD: dec("100"),
	})
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestListOperationsNewestFirst(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	p, err := svc.CreatePortfolio(ctx, "Main", "", decimal.Zero)
	require.NoError(t, err)

	_, err = svc.Contribute(ctx, p.ID, dec("100"), "first")
	require.NoError(t, err)
	_, err = svc.Contribute(ctx, p.ID, dec("200"), "second")
	require.NoError(t, err)
	_, err = svc.Withdraw(ctx, p.ID, dec("50"), "third")
	require.NoError(t, err)

	ops, err := svc.ListOperations(ctx, p.ID, 2)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, "third", ops[0].Note)
	assert.Equal(t, "second", ops[1].Note)
}
