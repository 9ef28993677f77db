package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"github.com/i474232898/city-weather/internal/cities"
)

// Enricher runs an enrichment pass; *cities.Engine satisfies it.
type Enricher interface {
	Enrich(ctx context.Context, scope cities.Scope) (cities.Summary, error)
}

// Saver persists the dataset after a run.
type Saver interface {
	Save(ctx context.Context, records []cities.Record) error
}

// Scheduler periodically enriches pending cities and optionally saves a snapshot.
type Scheduler struct {
	scheduler *gocron.Scheduler
	store     cities.Store
	engine    Enricher
	saver     Saver
	interval  time.Duration
	timeout   time.Duration
	logger    zerolog.Logger
}

type Option func(*Scheduler)

// WithAutosave saves the store through sv after every run.
func WithAutosave(sv Saver) Option {
	return func(s *Scheduler) { s.saver = sv }
}

// WithRunTimeout bounds each scheduled run, autosave included.
func WithRunTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.timeout = d }
}

// New creates a new Scheduler.
func New(store cities.Store, engine Enricher, interval time.Duration, logger zerolog.Logger, opts ...Option) *Scheduler {
	gs := gocron.NewScheduler(time.UTC)
	gs.SingletonModeAll()

	s := &Scheduler{
		scheduler: gs,
		store:     store,
		engine:    engine,
		interval:  interval,
		logger:    logger.With().Str("component", "scheduler").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start schedules the periodic job and starts the underlying scheduler.
// A zero interval leaves the scheduler idle.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		s.logger.Info().Msg("enrichment interval not set; nothing to schedule")
		return nil
	}

	_, err := s.scheduler.Every(s.interval).WaitForSchedule().Do(func() {
		ctx := context.Background()
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}
		s.RunOnce(ctx)
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.logger.Info().Dur("interval", s.interval).Bool("autosave", s.saver != nil).Msg("scheduler started")
	return nil
}

// RunOnce enriches pending cities and autosaves. Empty stores are skipped.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if s.store.IsEmpty() {
		s.logger.Debug().Msg("store empty; skipping scheduled enrichment")
		return
	}

	summary, err := s.engine.Enrich(ctx, cities.AllPending())
	switch {
	case err == nil:
		s.logger.Info().
			Str("run_id", summary.RunID).
			Str("status", string(summary.Status)).
			Int("enriched", summary.EnrichedCount).
			Int("failed", summary.FailedCount).
			Msg("scheduled enrichment completed")
	case errors.Is(err, cities.ErrTotalFailure):
		s.logger.Warn().Err(err).Str("run_id", summary.RunID).Msg("scheduled enrichment failed for every city")
	case errors.Is(err, cities.ErrEmptyDataset):
		return
	default:
		s.logger.Error().Err(err).Msg("scheduled enrichment aborted")
		return
	}

	if s.saver == nil {
		return
	}
	if err := s.saver.Save(ctx, s.store.List()); err != nil {
		s.logger.Error().Err(err).Msg("autosave failed")
		return
	}
	s.logger.Debug().Int("cities", s.store.Len()).Msg("autosave completed")
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
