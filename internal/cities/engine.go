package cities

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const tracerName = "github.com/i474232898/city-weather/internal/cities"

// EngineConfig bounds the provider calls made during enrichment.
type EngineConfig struct {
	// CallTimeout bounds each geocode or weather call. 0 disables it.
	CallTimeout time.Duration
	// BatchTimeout bounds a whole Enrich run. 0 disables it.
	BatchTimeout time.Duration
	// MaxConcurrency caps the number of cities in flight. <= 0 means unbounded.
	MaxConcurrency int
}

// Engine resolves coordinates then weather for cities in a Store.
type Engine struct {
	store    Store
	geo      GeoProvider
	weather  WeatherProvider
	cfg      EngineConfig
	logger   zerolog.Logger
	observer Observer
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

func WithLogger(l zerolog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

func WithObserver(o Observer) EngineOption {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// NewEngine creates a new Engine.
func NewEngine(store Store, geo GeoProvider, weather WeatherProvider, cfg EngineConfig, opts ...EngineOption) *Engine {
	e := &Engine{
		store:    store,
		geo:      geo,
		weather:  weather,
		cfg:      cfg,
		logger:   zerolog.Nop(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With().Str("component", "enrichment").Logger()
	return e
}

// Enrich runs the two-step pipeline for every city in scope, concurrently across
// cities, and returns the aggregated summary. Per-city provider failures are
// reported in the summary; only dataset-level problems and a batch where every
// city failed are returned as errors. The summary is valid even when the error
// wraps ErrTotalFailure.
func (e *Engine) Enrich(ctx context.Context, scope Scope) (Summary, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Engine.Enrich", trace.WithAttributes(
		attribute.String("scope.mode", string(scope.Mode)),
	))
	defer span.End()

	start := time.Now()

	work, reuseCoords, err := e.workingSet(scope)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Working set selection failed")
		return Summary{}, err
	}

	runID := uuid.NewString()
	l := e.logger.With().
		Str("run_id", runID).
		Str("scope", string(scope.Mode)).
		Int("cities", len(work)).
		Logger()

	if len(work) == 0 {
		l.Info().Msg("nothing to enrich")
		s := Summarize(runID, nil)
		e.observer.RunCompleted(s, time.Since(start))
		return s, nil
	}

	l.Debug().Msg("enrichment run started")

	outcomes := e.run(ctx, work, reuseCoords)
	s := Summarize(runID, outcomes)
	elapsed := time.Since(start)
	e.observer.RunCompleted(s, elapsed)

	span.SetAttributes(
		attribute.String("run.id", runID),
		attribute.Int("cities.enriched", s.EnrichedCount),
		attribute.Int("cities.failed", s.FailedCount),
		attribute.Int("cities.skipped", s.SkippedCount),
	)

	if s.Status == StatusTotalFailure {
		err := fmt.Errorf("%w: %d of %d cities failed", ErrTotalFailure, s.FailedCount, s.Total)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Every city failed enrichment")
		l.Error().Int("failed", s.FailedCount).Dur("elapsed", elapsed).Msg("enrichment run failed")
		return s, err
	}

	span.SetStatus(codes.Ok, string(s.Status))
	l.Info().
		Str("status", string(s.Status)).
		Int("enriched", s.EnrichedCount).
		Int("failed", s.FailedCount).
		Int("skipped", s.SkippedCount).
		Dur("elapsed", elapsed).
		Msg("enrichment run completed")

	return s, nil
}

// EnrichWeather fetches current weather for a geocoded city and writes it back
// to the store. A failed fetch is recorded on the city as weather_failed.
func (e *Engine) EnrichWeather(ctx context.Context, name string, c Coordinates) (Conditions, error) {
	w, err := e.fetchWeather(ctx, c)
	if err != nil {
		e.logger.Warn().Err(err).Str("city", name).Msg("weather fetch failed")
		e.store.Update(name, WithFailure(ReasonWeatherFailed))
		return Conditions{}, err
	}
	e.store.Update(name, WithWeather(w))
	return w, nil
}

// workingSet selects the records to enrich. The bool reports whether already
// known coordinates may be reused instead of geocoding again.
func (e *Engine) workingSet(scope Scope) ([]Record, bool, error) {
	if e.store.IsEmpty() {
		return nil, false, ErrEmptyDataset
	}

	switch scope.Mode {
	case ScopeSingle:
		rec, ok := e.store.Get(scope.Name)
		if !ok {
			return nil, false, fmt.Errorf("%w: %q", ErrNotFound, scope.Name)
		}
		return []Record{rec}, false, nil
	case ScopeAllForced:
		return e.store.List(), false, nil
	case ScopeAllPending:
		var work []Record
		for _, rec := range e.store.List() {
			if rec.Pending() {
				work = append(work, rec)
			}
		}
		return work, true, nil
	default:
		return nil, false, fmt.Errorf("%w: unknown enrichment scope %q", ErrValidation, scope.Mode)
	}
}

// run fans the working set out to at most MaxConcurrency workers. Each worker
// returns its own outcome; outcomes are joined here. Cities still outstanding
// when the batch deadline passes are reported as timeouts.
func (e *Engine) run(ctx context.Context, work []Record, reuseCoords bool) []CityOutcome {
	batchCtx := ctx
	if e.cfg.BatchTimeout > 0 {
		var cancel context.CancelFunc
		batchCtx, cancel = context.WithTimeout(ctx, e.cfg.BatchTimeout)
		defer cancel()
	}

	results := make(chan CityOutcome, len(work))

	var g errgroup.Group
	if e.cfg.MaxConcurrency > 0 {
		g.SetLimit(e.cfg.MaxConcurrency)
	}

	go func() {
		for _, rec := range work {
			if batchCtx.Err() != nil {
				break
			}
			rec := rec
			g.Go(func() error {
				results <- e.enrichCity(batchCtx, rec, reuseCoords)
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

	outstanding := make(map[string]struct{}, len(work))
	for _, rec := range work {
		outstanding[rec.Name] = struct{}{}
	}
	outcomes := make([]CityOutcome, 0, len(work))
	collect := func(o CityOutcome) {
		delete(outstanding, o.Name)
		outcomes = append(outcomes, o)
	}

loop:
	for {
		select {
		case o, ok := <-results:
			if !ok {
				break loop
			}
			collect(o)
		case <-batchCtx.Done():
			for {
				select {
				case o, ok := <-results:
					if !ok {
						break loop
					}
					collect(o)
				default:
					break loop
				}
			}
		}
	}

	for _, rec := range work {
		if _, ok := outstanding[rec.Name]; ok {
			outcomes = append(outcomes, CityOutcome{Name: rec.Name, Outcome: OutcomeFailed, Reason: ReasonTimeout})
		}
	}

	for _, o := range outcomes {
		if o.Reason == ReasonTimeout {
			e.store.Update(o.Name, WithFailure(ReasonTimeout))
		}
		e.observer.CityCompleted(o.Outcome)
	}

	return outcomes
}

// enrichCity runs geocode then weather for one city. Every write goes back
// through the store so a concurrent delete turns the remaining steps into a skip.
func (e *Engine) enrichCity(ctx context.Context, rec Record, reuseCoords bool) CityOutcome {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Engine.enrichCity", trace.WithAttributes(
		attribute.String("city.name", rec.Name),
	))
	defer span.End()

	l := e.logger.With().Str("city", rec.Name).Logger()

	coords := rec.Coordinates
	if coords == nil || !reuseCoords {
		c, err := e.geocode(ctx, rec.Name)
		if err != nil {
			reason := failureReason(ctx, ReasonGeocodingFailed)
			l.Warn().Err(err).Str("reason", reason).Msg("geocoding failed")
			span.RecordError(err)
			span.SetStatus(codes.Error, reason)
			return e.fail(ctx, rec.Name, reason)
		}
		if ctx.Err() != nil {
			return CityOutcome{Name: rec.Name, Outcome: OutcomeFailed, Reason: ReasonTimeout}
		}
		if !e.store.Update(rec.Name, WithCoordinates(c)) {
			l.Debug().Msg("city deleted during enrichment")
			return CityOutcome{Name: rec.Name, Outcome: OutcomeSkipped}
		}
		coords = &c
	}

	w, err := e.fetchWeather(ctx, *coords)
	if err != nil {
		reason := failureReason(ctx, ReasonWeatherFailed)
		l.Warn().Err(err).Str("reason", reason).Msg("weather fetch failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
		return e.fail(ctx, rec.Name, reason)
	}
	if ctx.Err() != nil {
		return CityOutcome{Name: rec.Name, Outcome: OutcomeFailed, Reason: ReasonTimeout}
	}
	if !e.store.Update(rec.Name, WithWeather(w)) {
		l.Debug().Msg("city deleted during enrichment")
		return CityOutcome{Name: rec.Name, Outcome: OutcomeSkipped}
	}

	span.SetStatus(codes.Ok, OutcomeEnriched)
	return CityOutcome{Name: rec.Name, Outcome: OutcomeEnriched}
}

func (e *Engine) fail(ctx context.Context, name, reason string) CityOutcome {
	out := CityOutcome{Name: name, Outcome: OutcomeFailed, Reason: reason}
	if ctx.Err() != nil {
		return out
	}
	if !e.store.Update(name, WithFailure(reason)) {
		return CityOutcome{Name: name, Outcome: OutcomeSkipped}
	}
	return out
}

func (e *Engine) geocode(ctx context.Context, name string) (Coordinates, error) {
	callCtx, cancel := e.callContext(ctx)
	defer cancel()

	c, err := e.geo.Geocode(callCtx, name)
	if err != nil {
		return Coordinates{}, err
	}
	if !c.Valid() {
		return Coordinates{}, NewProviderError(e.geo.Name(), KindMalformed,
			fmt.Errorf("unusable coordinate (%f, %f)", c.Latitude, c.Longitude))
	}
	return c, nil
}

func (e *Engine) fetchWeather(ctx context.Context, c Coordinates) (Conditions, error) {
	callCtx, cancel := e.callContext(ctx)
	defer cancel()

	return e.weather.Current(callCtx, c)
}

func (e *Engine) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.CallTimeout > 0 {
		return context.WithTimeout(ctx, e.cfg.CallTimeout)
	}
	return context.WithCancel(ctx)
}

// failureReason reports a timeout when the run itself was cut short.
func failureReason(ctx context.Context, reason string) string {
	if ctx.Err() != nil {
		return ReasonTimeout
	}
	return reason
}
