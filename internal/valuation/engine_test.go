package valuation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/portfolio-engine/internal/fx"
	"github.com/atmx/portfolio-engine/internal/logging"
	"github.com/atmx/portfolio-engine/internal/model"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ptr(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func assertDecimal(t *testing.T, expected, actual decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.True(t, expected.Equal(actual), append([]interface{}{"expected %s, got %s", expected, actual}, msgAndArgs...)...)
}

func newEngine() *Engine {
	return NewEngine("TWD", fx.NewResolver(logging.Nop()), logging.Nop())
}

func stock(id, account, symbol, qty, cost, currency string) model.Holding {
	return model.Holding{
		ID:        id,
		AccountID: account,
		Symbol:    symbol,
		Type:      model.AssetStock,
		Market:    model.MarketUS,
		Quantity:  d(qty),
		CostBasis: d(cost),
		Currency:  currency,
	}
}

var usdTwd = []model.ExchangeRate{{From: "USD", To: "TWD", Rate: d("30.31")}}

// --- Effective price ---

func TestEffectivePrice_ManualWins(t *testing.T) {
	h := stock("h1", "a1", "AAPL", "1", "100", "USD")
	h.CurrentPrice = ptr("120")
	prices := []model.PriceObservation{{Symbol: "AAPL", Price: d("130")}}

	price, source := EffectivePrice(h, prices)
	assertDecimal(t, d("120"), price)
	assert.Equal(t, model.PriceManual, source)
}

func TestEffectivePrice_ZeroManualFallsThrough(t *testing.T) {
	h := stock("h1", "a1", "AAPL", "1", "100", "USD")
	h.CurrentPrice = ptr("0")
	prices := []model.PriceObservation{{Symbol: "aapl", Price: d("130")}}

	price, source := EffectivePrice(h, prices)
	assertDecimal(t, d("130"), price)
	assert.Equal(t, model.PriceFetched, source)
}

func TestEffectivePrice_FirstObservationWins(t *testing.T) {
	h := stock("h1", "a1", "2330", "1", "500", "TWD")
	prices := []model.PriceObservation{
		{Symbol: "0050", Price: d("150")},
		{Symbol: "2330", Price: d("600")},
		{Symbol: "2330", Price: d("610")},
	}
	price, source := EffectivePrice(h, prices)
	assertDecimal(t, d("600"), price)
	assert.Equal(t, model.PriceFetched, source)
}

func TestEffectivePrice_ZeroFetchedFallsThrough(t *testing.T) {
	h := stock("h1", "a1", "AAPL", "1", "100", "USD")

	price, source := EffectivePrice(h, []model.PriceObservation{{Symbol: "AAPL", Price: d("0")}})
	assertDecimal(t, d("100"), price)
	assert.Equal(t, model.PriceAssumed, source)

	// A later positive observation for the symbol is used instead.
	price, source = EffectivePrice(h, []model.PriceObservation{
		{Symbol: "AAPL", Price: d("0")},
		{Symbol: "AAPL", Price: d("140")},
	})
	assertDecimal(t, d("140"), price)
	assert.Equal(t, model.PriceFetched, source)
}

func TestCalculate_ZeroFetchedPriceValuedAtCost(t *testing.T) {
	holdings := []model.Holding{stock("h1", "a1", "AAPL", "10", "100", "USD")}
	prices := []model.PriceObservation{{Symbol: "AAPL", Price: d("0"), Currency: "USD"}}

	stats := newEngine().Calculate(holdings, prices, usdTwd)
	require.Len(t, stats.Holdings, 1)
	v := stats.Holdings[0]
	assert.Equal(t, model.PriceAssumed, v.PriceSource)
	assertDecimal(t, d("30310"), v.CurrentValue)
	assertDecimal(t, d("30310"), v.CostValue)
	assertDecimal(t, d("0"), v.GainLoss)
	assert.Equal(t, 1, stats.AssumedCount())
}

func TestEffectivePrice_AssumedCostBasis(t *testing.T) {
	h := stock("h1", "a1", "AAPL", "1", "100", "USD")
	price, source := EffectivePrice(h, nil)
	assertDecimal(t, d("100"), price)
	assert.Equal(t, model.PriceAssumed, source)
}

func TestEffectivePrice_CashIsFace(t *testing.T) {
	h := model.Holding{Type: model.AssetCash, Symbol: "TWD", CurrentPrice: ptr("3"), CostBasis: d("2")}
	price, source := EffectivePrice(h, []model.PriceObservation{{Symbol: "TWD", Price: d("5")}})
	assertDecimal(t, d("1"), price)
	assert.Equal(t, model.PriceFace, source)
}

// --- Per-holding valuation ---

func TestValueHolding_ScenarioA(t *testing.T) {
	h := stock("h1", "a1", "AAPL", "20", "288.74", "USD")
	v := ValueHolding(h, d("283"), d("30.31"))

	assertDecimal(t, d("175034.188"), v.CostValue)
	assertDecimal(t, d("171554.6"), v.CurrentValue)
	assertDecimal(t, d("-3479.588"), v.GainLoss)
	assert.InDelta(t, -3479.588/175034.188, v.GainLossPercent.InexactFloat64(), 1e-12)
}

func TestValueHolding_ScenarioB_Cash(t *testing.T) {
	h := model.Holding{ID: "c1", Type: model.AssetCash, Quantity: d("1000000"), Currency: "TWD"}
	v := ValueHolding(h, d("1"), d("1"))

	assertDecimal(t, d("1000000"), v.CurrentValue)
	assertDecimal(t, d("1000000"), v.CostValue)
	assert.True(t, v.GainLoss.IsZero())
	assert.True(t, v.GainLossPercent.IsZero())
	assert.Equal(t, model.PriceFace, v.PriceSource)
}

func TestValueHolding_CashNeverGains(t *testing.T) {
	cases := []struct {
		qty, cost, price, rate string
	}{
		{"0", "0", "1", "1"},
		{"500", "31.5", "29", "30.31"},
		{"12.34", "0", "99", "0.0045"},
		{"1", "1", "0", "1"},
	}
	for _, c := range cases {
		h := model.Holding{Type: model.AssetCash, Quantity: d(c.qty), CostBasis: d(c.cost), Currency: "USD"}
		v := ValueHolding(h, d(c.price), d(c.rate))
		assert.True(t, v.GainLoss.IsZero(), "gain for %+v", c)
		assert.True(t, v.GainLossPercent.IsZero(), "gain percent for %+v", c)
		assertDecimal(t, d(c.qty).Mul(d(c.rate)), v.CurrentValue)
		assertDecimal(t, v.CurrentValue, v.CostValue)
	}
}

func TestValueHolding_ZeroCostHasZeroPercent(t *testing.T) {
	h := stock("h1", "a1", "GIFT", "10", "0", "TWD")
	v := ValueHolding(h, d("50"), d("1"))
	assertDecimal(t, d("500"), v.GainLoss)
	assert.True(t, v.GainLossPercent.IsZero())
}

// --- Aggregation ---

func TestCalculate_ScenarioA(t *testing.T) {
	stats := newEngine().Calculate(
		[]model.Holding{func() model.Holding {
			h := stock("h1", "a1", "AAPL", "20", "288.74", "USD")
			h.CurrentPrice = ptr("283")
			return h
		}()},
		nil,
		usdTwd,
	)

	assert.Equal(t, "TWD", stats.BaseCurrency)
	assertDecimal(t, d("171554.6"), stats.TotalValue)
	assertDecimal(t, d("175034.188"), stats.TotalCost)
	assertDecimal(t, d("-3479.588"), stats.TotalGainLoss)
	require.Len(t, stats.Holdings, 1)
	assert.Equal(t, model.PriceManual, stats.Holdings[0].PriceSource)
	assertDecimal(t, d("30.31"), stats.Holdings[0].Rate)
	assertDecimal(t, d("100"), stats.ByType[model.AssetStock].Percentage)
}

func TestCalculate_ScenarioC_MissingPrice(t *testing.T) {
	h := stock("h1", "a1", "UNKNOWN", "7", "42.5", "USD")

	var stats model.PortfolioStats
	require.NotPanics(t, func() {
		stats = newEngine().Calculate([]model.Holding{h}, nil, usdTwd)
	})

	require.Len(t, stats.Holdings, 1)
	v := stats.Holdings[0]
	assert.Equal(t, model.PriceAssumed, v.PriceSource)
	assertDecimal(t, d("42.5"), v.Price)
	assert.True(t, v.GainLoss.IsZero())
	assertDecimal(t, v.CostValue, v.CurrentValue)
	assert.Equal(t, 1, stats.AssumedCount())
}

func TestCalculate_ScenarioD_TwoAccounts(t *testing.T) {
	holdings := []model.Holding{
		stock("h1", "broker", "AAPL", "10", "100", "USD"),
		stock("h2", "bank", "MSFT", "5", "300", "USD"),
	}
	prices := []model.PriceObservation{
		{Symbol: "AAPL", Price: d("150")},
		{Symbol: "MSFT", Price: d("310")},
	}
	stats := newEngine().Calculate(holdings, prices, usdTwd)

	require.Len(t, stats.ByAccount, 2)
	sumValue := decimal.Zero
	sumPct := decimal.Zero
	for _, dist := range stats.ByAccount {
		sumValue = sumValue.Add(dist.TotalValue)
		sumPct = sumPct.Add(dist.Percentage)
	}
	assertDecimal(t, stats.TotalValue, sumValue)
	assert.InDelta(t, 100.0, sumPct.InexactFloat64(), 1e-9)
}

func TestCalculate_TotalsAreAdditive(t *testing.T) {
	holdings := mixedPortfolio()
	stats := newEngine().Calculate(holdings, mixedPrices(), mixedRates())

	value, cost := decimal.Zero, decimal.Zero
	for _, v := range stats.Holdings {
		value = value.Add(v.CurrentValue)
		cost = cost.Add(v.CostValue)
	}
	assertDecimal(t, value, stats.TotalValue)
	assertDecimal(t, cost, stats.TotalCost)
	assertDecimal(t, stats.TotalValue.Sub(stats.TotalCost), stats.TotalGainLoss)
}

func TestCalculate_PercentagesPartitionTotal(t *testing.T) {
	stats := newEngine().Calculate(mixedPortfolio(), mixedPrices(), mixedRates())
	require.True(t, stats.TotalValue.IsPositive())

	assert.InDelta(t, 100.0, sumPercent(stats.ByType), 1e-9)
	assert.InDelta(t, 100.0, sumPercent(stats.ByMarket), 1e-9)
	assert.InDelta(t, 100.0, sumPercent(stats.ByAccount), 1e-9)
}

func TestCalculate_CategoryCostAndGainMatchHoldings(t *testing.T) {
	stats := newEngine().Calculate(mixedPortfolio(), mixedPrices(), mixedRates())

	// Recompute per-type cost with a separate filter pass and compare.
	for _, typ := range model.AssetTypes {
		cost, gain := decimal.Zero, decimal.Zero
		for _, v := range stats.Holdings {
			if v.Type == typ {
				cost = cost.Add(v.CostValue)
				gain = gain.Add(v.GainLoss)
			}
		}
		dist, ok := stats.ByType[typ]
		if !ok {
			assert.True(t, cost.IsZero(), typ)
			continue
		}
		assertDecimal(t, cost, dist.TotalCost, typ)
		assertDecimal(t, gain, dist.TotalGainLoss, typ)
		assertDecimal(t, dist.TotalValue.Sub(dist.TotalCost), dist.TotalGainLoss, typ)
	}
}

func TestCalculate_ZeroTotalLeavesPercentagesAtZero(t *testing.T) {
	holdings := []model.Holding{
		stock("h1", "a1", "AAPL", "0", "100", "USD"),
		{ID: "c1", AccountID: "a2", Type: model.AssetCash, Market: model.MarketTW, Quantity: d("0"), Currency: "TWD"},
	}
	stats := newEngine().Calculate(holdings, nil, usdTwd)

	assert.True(t, stats.TotalValue.IsZero())
	assert.True(t, stats.TotalGainLossPercent.IsZero())
	for _, dist := range stats.ByAccount {
		assert.True(t, dist.Percentage.IsZero())
	}
	for _, dist := range stats.ByType {
		assert.True(t, dist.Percentage.IsZero())
	}
}

func TestCalculate_EmptyPortfolio(t *testing.T) {
	stats := newEngine().Calculate(nil, nil, nil)
	assert.True(t, stats.TotalValue.IsZero())
	assert.True(t, stats.TotalCost.IsZero())
	assert.True(t, stats.TotalGainLossPercent.IsZero())
	assert.Empty(t, stats.ByType)
	assert.Empty(t, stats.Holdings)
}

func TestCalculate_UnresolvableRateUsesIdentity(t *testing.T) {
	h := stock("h1", "a1", "SAP", "2", "100", "EUR")
	stats := newEngine().Calculate([]model.Holding{h}, nil, usdTwd)

	require.Len(t, stats.Holdings, 1)
	assertDecimal(t, d("1"), stats.Holdings[0].Rate)
	assertDecimal(t, d("200"), stats.TotalValue)
}

func TestCalculate_CashInForeignCurrencyHasNoGain(t *testing.T) {
	h := model.Holding{ID: "c1", AccountID: "a1", Type: model.AssetCash, Market: model.MarketUS,
		Quantity: d("1000"), CostBasis: d("29"), Currency: "USD"}
	stats := newEngine().Calculate([]model.Holding{h}, nil, usdTwd)

	assertDecimal(t, d("30310"), stats.TotalValue)
	assertDecimal(t, d("30310"), stats.TotalCost)
	assert.True(t, stats.TotalGainLoss.IsZero())
	assert.True(t, stats.TotalGainLossPercent.IsZero())
}

func mixedPortfolio() []model.Holding {
	fund := stock("h3", "broker", "0050", "100", "120", "TWD")
	fund.Type, fund.Market = model.AssetFund, model.MarketTW

	coin := stock("h4", "wallet", "BTC", "0.5", "40000", "USD")
	coin.Type, coin.Market = model.AssetCrypto, model.MarketOther

	gold := stock("h5", "bank", "XAU", "2", "1900", "JPY")
	gold.Type, gold.Market = model.AssetGold, model.MarketOther

	return []model.Holding{
		stock("h1", "broker", "AAPL", "20", "288.74", "USD"),
		stock("h2", "broker", "MSFT", "3", "300", "USD"),
		fund,
		coin,
		gold,
		{ID: "h6", AccountID: "bank", Symbol: "TWD", Type: model.AssetCash, Market: model.MarketTW,
			Quantity: d("250000"), Currency: "TWD"},
	}
}

func mixedPrices() []model.PriceObservation {
	return []model.PriceObservation{
		{Symbol: "AAPL", Price: d("283"), Currency: "USD"},
		{Symbol: "0050", Price: d("135.5"), Currency: "TWD"},
		{Symbol: "BTC", Price: d("65000"), Currency: "USD"},
	}
}

func mixedRates() []model.ExchangeRate {
	return []model.ExchangeRate{
		{From: "USD", To: "TWD", Rate: d("30.31")},
		{From: "USD", To: "JPY", Rate: d("150")},
	}
}

func sumPercent[K comparable](dist map[K]model.Distribution) float64 {
	total := decimal.Zero
	for _, d := range dist {
		total = total.Add(d.Percentage)
	}
	return total.InexactFloat64()
}
