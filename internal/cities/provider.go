package cities

import (
	"context"
	"time"
)

// GeoProvider abstracts a geocoding source (e.g. OpenCage, Google).
type GeoProvider interface {
	Name() string
	Geocode(ctx context.Context, city string) (Coordinates, error)
}

// WeatherProvider abstracts a current-weather source (e.g. OpenWeatherMap, Open-Meteo).
type WeatherProvider interface {
	Name() string
	Current(ctx context.Context, c Coordinates) (Conditions, error)
}

// Store is the contract the in-memory city store must satisfy.
// Implementations return copies; no caller holds a reference into store internals.
type Store interface {
	ReplaceAll(records []Record) error
	Add(name string) (Record, bool, error)
	Delete(name string) bool
	Get(name string) (Record, bool)
	List() []Record
	// Update applies the mutations under exclusive access. It returns false
	// when the record no longer exists.
	Update(name string, mutations ...Mutation) bool
	IsEmpty() bool
	Len() int
}

// Observer receives enrichment and query events, typically to export metrics.
type Observer interface {
	RunCompleted(s Summary, elapsed time.Duration)
	CityCompleted(outcome string)
	NearestServed(result string)
}

type nopObserver struct{}

func (nopObserver) RunCompleted(Summary, time.Duration) {}
func (nopObserver) CityCompleted(string)                {}
func (nopObserver) NearestServed(string)                {}
