package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/atmx/portfolio-engine/internal/metrics"
	"github.com/atmx/portfolio-engine/internal/model"
)

// RateSource fetches current exchange-rate observations.
type RateSource interface {
	FetchRates(ctx context.Context, currencies []string) ([]model.ExchangeRate, error)
}

// RateSink reports which currencies matter and accepts a new rate snapshot.
type RateSink interface {
	Currencies(ctx context.Context) ([]string, error)
	ApplyRates(ctx context.Context, rates []model.ExchangeRate) error
}

// SnapshotRecorder stores the statistics for a day.
type SnapshotRecorder interface {
	RecordSnapshot(ctx context.Context, on time.Time) (*model.StatsSnapshot, error)
}

// RatesJob refreshes the live exchange-rate snapshot. A failed or empty
// fetch leaves the previous snapshot in place.
type RatesJob struct {
	source  RateSource
	sink    RateSink
	timeout time.Duration
	log     zerolog.Logger
	running sync.Mutex
}

// NewRatesJob creates a new rate refresh job
func NewRatesJob(source RateSource, sink RateSink, timeout time.Duration, log zerolog.Logger) *RatesJob {
	return &RatesJob{
		source:  source,
		sink:    sink,
		timeout: timeout,
		log:     log.With().Str("job", "refresh_rates").Logger(),
	}
}

// Name returns the job name
func (j *RatesJob) Name() string {
	return "refresh_rates"
}

// Run fetches rates for every held currency and applies them
func (j *RatesJob) Run() error {
	if !j.running.TryLock() {
		j.log.Warn().Msg("Rate refresh already running")
		metrics.RateRefreshTotal.WithLabelValues("skipped").Inc()
		return nil // Don't fail, just skip this run
	}
	defer j.running.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	currencies, err := j.sink.Currencies(ctx)
	if err != nil {
		metrics.RateRefreshTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("list currencies: %w", err)
	}

	rates, err := j.source.FetchRates(ctx, currencies)
	if err != nil {
		metrics.RateRefreshTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("fetch rates: %w", err)
	}
	if len(rates) == 0 {
		j.log.Warn().Strs("currencies", currencies).Msg("No rates fetched, keeping previous snapshot")
		metrics.RateRefreshTotal.WithLabelValues("empty").Inc()
		return nil
	}

	if err := j.sink.ApplyRates(ctx, rates); err != nil {
		metrics.RateRefreshTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("apply rates: %w", err)
	}

	metrics.RateRefreshTotal.WithLabelValues("success").Inc()
	j.log.Info().Int("rates", len(rates)).Strs("currencies", currencies).Msg("Exchange rates refreshed")
	return nil
}

// SnapshotJob records the day's statistics snapshot.
type SnapshotJob struct {
	recorder SnapshotRecorder
	timeout  time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

// NewSnapshotJob creates a new daily snapshot job
func NewSnapshotJob(recorder SnapshotRecorder, timeout time.Duration, log zerolog.Logger) *SnapshotJob {
	return &SnapshotJob{
		recorder: recorder,
		timeout:  timeout,
		log:      log.With().Str("job", "stats_snapshot").Logger(),
		now:      time.Now,
	}
}

// Name returns the job name
func (j *SnapshotJob) Name() string {
	return "stats_snapshot"
}

// Run records a snapshot dated today (UTC)
func (j *SnapshotJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	snap, err := j.recorder.RecordSnapshot(ctx, j.now().UTC())
	if err != nil {
		return fmt.Errorf("record snapshot: %w", err)
	}

	j.log.Info().Str("date", snap.Date).Msg("Daily snapshot recorded")
	return nil
}
