package valuation

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/atmx/portfolio-engine/internal/fx"
	"github.com/atmx/portfolio-engine/internal/metrics"
	"github.com/atmx/portfolio-engine/internal/model"
)

// Engine aggregates holdings into PortfolioStats in its base currency.
// It holds no portfolio state and is safe for concurrent use.
type Engine struct {
	base     string
	resolver *fx.Resolver
	log      zerolog.Logger
	now      func() time.Time
}

// NewEngine creates an engine normalising into baseCurrency.
func NewEngine(baseCurrency string, resolver *fx.Resolver, log zerolog.Logger) *Engine {
	return &Engine{
		base:     baseCurrency,
		resolver: resolver,
		log:      log.With().Str("component", "valuation").Logger(),
		now:      time.Now,
	}
}

// BaseCurrency returns the currency all statistics are expressed in.
func (e *Engine) BaseCurrency() string {
	return e.base
}

// Calculate values every holding and folds the results into totals and the
// by-type, by-market and by-account distributions.
//
// The exchange-rate set is used as given: choosing between live and pinned
// rates is the caller's job.
func (e *Engine) Calculate(
	holdings []model.Holding,
	prices []model.PriceObservation,
	rates []model.ExchangeRate,
) model.PortfolioStats {
	start := time.Now()

	stats := model.PortfolioStats{
		BaseCurrency: e.base,
		ByType:       make(map[model.AssetType]model.Distribution),
		ByMarket:     make(map[model.Market]model.Distribution),
		ByAccount:    make(map[string]model.Distribution),
		Holdings:     make([]model.Valuation, 0, len(holdings)),
		CalculatedAt: e.now().UTC(),
	}

	bySource := make(map[model.PriceSource]int)

	for _, h := range holdings {
		price, source := EffectivePrice(h, prices)
		rate := e.resolver.Rate(h.Currency, e.base, rates)

		v := ValueHolding(h, price, rate)
		v.PriceSource = source
		stats.Holdings = append(stats.Holdings, v)
		bySource[source]++

		stats.TotalValue = stats.TotalValue.Add(v.CurrentValue)
		stats.TotalCost = stats.TotalCost.Add(v.CostValue)

		// Single group-by pass: value, cost and gain/loss together.
		stats.ByType[h.Type] = accumulate(stats.ByType[h.Type], v)
		stats.ByMarket[h.Market] = accumulate(stats.ByMarket[h.Market], v)
		stats.ByAccount[h.AccountID] = accumulate(stats.ByAccount[h.AccountID], v)
	}

	// Percentages need the final total, so they are a second pass.
	withShares(stats.ByType, stats.TotalValue)
	withShares(stats.ByMarket, stats.TotalValue)
	withShares(stats.ByAccount, stats.TotalValue)

	stats.TotalGainLoss = stats.TotalValue.Sub(stats.TotalCost)
	stats.TotalGainLossPercent = ratio(stats.TotalGainLoss, stats.TotalCost)

	for source, n := range bySource {
		metrics.PriceSourceTotal.WithLabelValues(string(source)).Add(float64(n))
	}
	metrics.CalculationsTotal.Inc()
	metrics.CalculationLatency.Observe(time.Since(start).Seconds())
	metrics.PortfolioValue.WithLabelValues(e.base).Set(stats.TotalValue.InexactFloat64())

	e.log.Debug().
		Int("holdings", len(holdings)).
		Int("prices", len(prices)).
		Int("rates", len(rates)).
		Int("assumed", bySource[model.PriceAssumed]).
		Str("total_value", stats.TotalValue.String()).
		Msg("Portfolio recalculated")

	return stats
}

func accumulate(d model.Distribution, v model.Valuation) model.Distribution {
	d.TotalValue = d.TotalValue.Add(v.CurrentValue)
	d.TotalCost = d.TotalCost.Add(v.CostValue)
	d.TotalGainLoss = d.TotalGainLoss.Add(v.GainLoss)
	return d
}

func withShares[K comparable](dist map[K]model.Distribution, total decimal.Decimal) {
	for k, d := range dist {
		d.Percentage = share(d.TotalValue, total)
		dist[k] = d
	}
}
