package cities

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// distanceTolerance treats candidates closer than this as equidistant (km).
const distanceTolerance = 1e-6

// WeatherEnricher fills in weather for a single geocoded city.
// *Engine satisfies it.
type WeatherEnricher interface {
	EnrichWeather(ctx context.Context, name string, c Coordinates) (Conditions, error)
}

// Locator answers nearest-city queries over a Store.
type Locator struct {
	store    Store
	enricher WeatherEnricher
	logger   zerolog.Logger
	observer Observer
}

// NewLocator creates a new Locator. observer may be nil.
func NewLocator(store Store, enricher WeatherEnricher, logger zerolog.Logger, observer Observer) *Locator {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Locator{
		store:    store,
		enricher: enricher,
		logger:   logger.With().Str("component", "locator").Logger(),
		observer: observer,
	}
}

// Nearest returns the city closest to (lat, lon). Cities without coordinates
// are not candidates. Ties within distanceTolerance go to the city listed first.
// Missing weather on the winner is fetched on demand; a failed fetch still
// returns the city, without weather.
func (l *Locator) Nearest(ctx context.Context, lat, lon float64) (Nearest, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Locator.Nearest", trace.WithAttributes(
		attribute.Float64("target.latitude", lat),
		attribute.Float64("target.longitude", lon),
	))
	defer span.End()

	if !ValidCoordinates(lat, lon) {
		l.observer.NearestServed("invalid")
		span.SetStatus(codes.Error, "Invalid coordinates")
		return Nearest{}, fmt.Errorf("%w: lat=%v lon=%v", ErrInvalidInput, lat, lon)
	}

	records := l.store.List()
	if len(records) == 0 {
		l.observer.NearestServed("empty")
		return Nearest{}, ErrEmptyDataset
	}

	var (
		best     *Record
		bestDist float64
	)
	for i := range records {
		rec := &records[i]
		if rec.Coordinates == nil {
			continue
		}
		d := Haversine(lat, lon, rec.Coordinates.Latitude, rec.Coordinates.Longitude)
		if best == nil || d < bestDist-distanceTolerance {
			best = rec
			bestDist = d
		}
	}

	if best == nil {
		l.observer.NearestServed("no_candidates")
		return Nearest{}, ErrNoCandidates
	}

	result := Nearest{
		Name:       best.Name,
		DistanceKM: roundTo(bestDist, 2),
		Weather:    best.Weather,
	}

	if result.Weather == nil {
		w, err := l.enricher.EnrichWeather(ctx, best.Name, *best.Coordinates)
		if err != nil {
			l.logger.Warn().Err(err).Str("city", best.Name).Msg("serving nearest city without weather")
			span.RecordError(err)
		} else {
			result.Weather = &w
		}
	}

	span.SetAttributes(
		attribute.String("city.name", result.Name),
		attribute.Float64("distance.km", result.DistanceKM),
	)
	l.observer.NearestServed("ok")
	return result, nil
}
