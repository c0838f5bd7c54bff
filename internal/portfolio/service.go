// Package portfolio provides the business logic and HTTP handlers that sit
// between the store and the valuation engine: account and holding CRUD,
// price and exchange-rate snapshot swaps, statistics and daily snapshots.
//
// All monetary values use shopspring/decimal, never float64 for money.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/atmx/portfolio-engine/internal/model"
	"github.com/atmx/portfolio-engine/internal/store"
	"github.com/atmx/portfolio-engine/internal/valuation"
)

// Service handles portfolio operations. Snapshot swaps and the broadcasts
// that follow them are serialized by a mutex (single-instance), so clients
// see updates in the order they were applied.
type Service struct {
	store  store.Store
	engine *valuation.Engine
	hub    *WSHub // optional WebSocket hub for real-time broadcasts
	log    zerolog.Logger
	mu     sync.Mutex
	now    func() time.Time
}

// NewService creates a new portfolio service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, engine *valuation.Engine, hub *WSHub, log zerolog.Logger) *Service {
	return &Service{
		store:  st,
		engine: engine,
		hub:    hub,
		log:    log.With().Str("component", "portfolio").Logger(),
		now:    time.Now,
	}
}

// RateSet is the exchange-rate set chosen for a calculation date.
type RateSet struct {
	Date   string               `json:"date"`
	Pinned bool                 `json:"pinned"`
	Rates  []model.ExchangeRate `json:"rates"`
}

// Stats calculates portfolio statistics for the calendar day of on. Rates
// pinned for that day take precedence over the live rate snapshot.
func (s *Service) Stats(ctx context.Context, on time.Time) (*model.PortfolioStats, *RateSet, error) {
	holdings, err := s.store.ListHoldings(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load holdings: %w", err)
	}
	prices, err := s.store.ListPrices(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load prices: %w", err)
	}
	set, err := s.ratesFor(ctx, on.Format(model.DateLayout))
	if err != nil {
		return nil, nil, err
	}

	stats := s.engine.Calculate(holdings, prices, set.Rates)
	if n := stats.AssumedCount(); n > 0 {
		s.log.Debug().Int("assumed", n).Str("date", set.Date).Msg("Holdings valued at cost basis")
	}
	return &stats, set, nil
}

func (s *Service) ratesFor(ctx context.Context, date string) (*RateSet, error) {
	pinned, err := s.store.GetPinnedRates(ctx, date)
	switch {
	case err == nil:
		return &RateSet{Date: date, Pinned: true, Rates: pinned}, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("load pinned rates for %s: %w", date, err)
	}

	live, err := s.store.ListRates(ctx)
	if err != nil {
		return nil, fmt.Errorf("load rates: %w", err)
	}
	return &RateSet{Date: date, Rates: live}, nil
}

// ApplyPrices replaces the price snapshot wholesale and publishes the
// recalculated totals.
func (s *Service) ApplyPrices(ctx context.Context, prices []model.PriceObservation) error {
	normalized := make([]model.PriceObservation, 0, len(prices))
	for _, p := range prices {
		p.Symbol = strings.TrimSpace(p.Symbol)
		if p.Symbol == "" {
			return fmt.Errorf("%w: symbol", model.ErrMissingField)
		}
		if p.Currency != "" {
			cur, err := model.NormalizeCurrency(p.Currency)
			if err != nil {
				return err
			}
			p.Currency = cur
		}
		if p.Timestamp.IsZero() {
			p.Timestamp = s.now().UTC()
		}
		normalized = append(normalized, p)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.ReplacePrices(ctx, normalized); err != nil {
		return fmt.Errorf("replace prices: %w", err)
	}
	s.log.Info().Int("prices", len(normalized)).Msg("Price snapshot replaced")
	s.publish(ctx, "prices_updated")
	return nil
}

// ApplyRates replaces the live exchange-rate snapshot wholesale and
// publishes the recalculated totals.
func (s *Service) ApplyRates(ctx context.Context, rates []model.ExchangeRate) error {
	normalized, err := s.normalizeRates(rates)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.ReplaceRates(ctx, normalized); err != nil {
		return fmt.Errorf("replace rates: %w", err)
	}
	s.log.Info().Int("rates", len(normalized)).Msg("Exchange-rate snapshot replaced")
	s.publish(ctx, "rates_updated")
	return nil
}

// PinRates records the rate set used for every calculation dated date.
func (s *Service) PinRates(ctx context.Context, date string, rates []model.ExchangeRate) error {
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	normalized, err := s.normalizeRates(rates)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.SavePinnedRates(ctx, date, normalized); err != nil {
		return fmt.Errorf("pin rates for %s: %w", date, err)
	}
	s.log.Info().Str("date", date).Int("rates", len(normalized)).Msg("Exchange rates pinned")
	s.publish(ctx, "rates_pinned")
	return nil
}

// PinnedRates returns the rate set pinned for date.
func (s *Service) PinnedRates(ctx context.Context, date string) ([]model.ExchangeRate, error) {
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return s.store.GetPinnedRates(ctx, date)
}

// RecordSnapshot computes statistics for the day of on and stores them
// with the rates used. When on is today and the day has no pinned set, the
// live rates are pinned to it so later calculations reproduce the same
// figures. An empty live set is never pinned.
func (s *Service) RecordSnapshot(ctx context.Context, on time.Time) (*model.StatsSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats, set, err := s.Stats(ctx, on)
	if err != nil {
		return nil, err
	}

	today := s.now().UTC().Format(model.DateLayout)
	if !set.Pinned && len(set.Rates) > 0 && set.Date == today {
		if err := s.store.SavePinnedRates(ctx, set.Date, set.Rates); err != nil {
			return nil, fmt.Errorf("pin rates for %s: %w", set.Date, err)
		}
	}

	snap := &model.StatsSnapshot{
		ID:        uuid.New().String(),
		Date:      set.Date,
		Stats:     *stats,
		Rates:     set.Rates,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.SaveSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("save snapshot: %w", err)
	}

	s.log.Info().
		Str("date", snap.Date).
		Bool("pinned", set.Pinned).
		Str("total_value", stats.TotalValue.String()).
		Str("base_currency", stats.BaseCurrency).
		Msg("Stats snapshot recorded")
	return snap, nil
}

// Currencies returns the distinct holding currencies plus the base
// currency, sorted. Used to decide which rates to refresh.
func (s *Service) Currencies(ctx context.Context) ([]string, error) {
	holdings, err := s.store.ListHoldings(ctx)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{s.engine.BaseCurrency(): true}
	for _, h := range holdings {
		seen[strings.ToUpper(h.Currency)] = true
	}

	currencies := make([]string, 0, len(seen))
	for c := range seen {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)
	return currencies, nil
}

// changed publishes recalculated totals after a holding write.
func (s *Service) changed(ctx context.Context, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publish(ctx, reason)
}

// publish recalculates with today's rates and broadcasts the totals.
// Callers hold s.mu.
func (s *Service) publish(ctx context.Context, reason string) {
	if s.hub == nil {
		return
	}

	stats, set, err := s.Stats(ctx, s.now().UTC())
	if err != nil {
		s.log.Warn().Err(err).Str("reason", reason).Msg("Skipping stats broadcast")
		return
	}

	s.hub.Broadcast(WSMessage{
		Type:          "stats_updated",
		Reason:        reason,
		BaseCurrency:  stats.BaseCurrency,
		TotalValue:    stats.TotalValue.String(),
		TotalCost:     stats.TotalCost.String(),
		TotalGainLoss: stats.TotalGainLoss.String(),
		Holdings:      len(stats.Holdings),
		PinnedRates:   set.Pinned,
		CalculatedAt:  stats.CalculatedAt,
	})
}

func (s *Service) normalizeRates(rates []model.ExchangeRate) ([]model.ExchangeRate, error) {
	normalized := make([]model.ExchangeRate, 0, len(rates))
	for _, r := range rates {
		from, err := model.NormalizeCurrency(r.From)
		if err != nil {
			return nil, err
		}
		to, err := model.NormalizeCurrency(r.To)
		if err != nil {
			return nil, err
		}
		if !r.Rate.IsPositive() {
			return nil, fmt.Errorf("%w: %s/%s %s", ErrInvalidRate, from, to, r.Rate)
		}
		r.From, r.To = from, to
		if r.Timestamp.IsZero() {
			r.Timestamp = s.now().UTC()
		}
		normalized = append(normalized, r)
	}
	return normalized, nil
}

var (
	ErrInvalidDate = errors.New("portfolio: date must be YYYY-MM-DD")
	ErrInvalidRate = errors.New("portfolio: exchange rate must be positive")
)
