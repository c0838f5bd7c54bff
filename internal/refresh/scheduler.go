// Package refresh runs the background jobs that keep the portfolio's
// market data current: exchange-rate refreshes and daily stats snapshots.
package refresh

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/atmx/portfolio-engine/internal/metrics"
)

// Job is a unit of background work identified by name.
type Job interface {
	Run() error
	Name() string
}

// Scheduler runs jobs on cron schedules with a seconds field
// ("0 */5 * * * *" is every five minutes). Job names are unique.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func NewScheduler(log zerolog.Logger) *Scheduler {
	log = log.With().Str("component", "scheduler").Logger()
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.Recover(cronLogger{log})),
		),
		log:     log,
		entries: make(map[string]cron.EntryID),
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.cron.Entries())).Msg("Scheduler started")
}

// Stop halts scheduling and waits for in-flight runs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob schedules job. A second job with the same name is rejected.
func (s *Scheduler) AddJob(schedule string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[job.Name()]; ok {
		return fmt.Errorf("job %q already scheduled", job.Name())
	}
	id, err := s.cron.AddFunc(schedule, func() { s.run(job) })
	if err != nil {
		return fmt.Errorf("schedule %q for %s: %w", schedule, job.Name(), err)
	}
	s.entries[job.Name()] = id

	s.log.Info().
		Str("job", job.Name()).
		Str("schedule", schedule).
		Msg("Job registered")
	return nil
}

// Next reports the next scheduled run of the named job. It is zero until
// the scheduler has started.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

// RunNow executes job on the caller's goroutine, outside its schedule.
func (s *Scheduler) RunNow(job Job) error {
	return s.run(job)
}

func (s *Scheduler) run(job Job) error {
	start := time.Now()
	err := job.Run()

	result := "success"
	ev := s.log.Debug()
	if err != nil {
		result = "error"
		ev = s.log.Error().Err(err)
	}
	metrics.JobRunsTotal.WithLabelValues(job.Name(), result).Inc()
	ev.Str("job", job.Name()).Dur("duration", time.Since(start)).Msg("Job finished")
	return err
}

// cronLogger routes cron's own messages, including recovered panics, to zerolog.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
