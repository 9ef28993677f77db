package cities

import "github.com/i474232898/city-weather/internal/common"

// Failure reasons recorded on a city when enrichment does not complete.
const (
	ReasonGeocodingFailed = "geocoding_failed"
	ReasonWeatherFailed   = "weather_failed"
	ReasonTimeout         = "timeout"
)

// Coordinates is a latitude/longitude pair in degrees.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether c lies within the WGS84 ranges.
func (c Coordinates) Valid() bool {
	return ValidCoordinates(c.Latitude, c.Longitude)
}

// Conditions is the current weather reported for a coordinate.
type Conditions struct {
	Description  string  `json:"description"`
	TemperatureC float64 `json:"temperatureC"`
}

// Record is one city in the dataset.
// Coordinates and Weather are nil until the matching enrichment step succeeds.
type Record struct {
	Name          string       `json:"name"`
	Coordinates   *Coordinates `json:"coordinates,omitempty"`
	Weather       *Conditions  `json:"weather,omitempty"`
	FailureReason string       `json:"failureReason,omitempty"`
}

// NewRecord returns a bare record keyed by the normalized name.
func NewRecord(name string) Record {
	return Record{Name: common.NormalizeName(name)}
}

// Clone returns a deep copy so callers never share pointers with the store.
func (r Record) Clone() Record {
	out := Record{Name: r.Name, FailureReason: r.FailureReason}
	if r.Coordinates != nil {
		c := *r.Coordinates
		out.Coordinates = &c
	}
	if r.Weather != nil {
		w := *r.Weather
		out.Weather = &w
	}
	return out
}

// Pending reports whether the record still lacks coordinates or weather.
func (r Record) Pending() bool {
	return r.Coordinates == nil || r.Weather == nil
}

// Mutation is a field-level change applied to a record under the store's lock.
type Mutation func(*Record)

// WithCoordinates sets the coordinate pair.
func WithCoordinates(c Coordinates) Mutation {
	return func(r *Record) {
		cc := c
		r.Coordinates = &cc
	}
}

// WithWeather sets the weather pair and clears any previous failure.
func WithWeather(w Conditions) Mutation {
	return func(r *Record) {
		ww := w
		r.Weather = &ww
		r.FailureReason = ""
	}
}

// WithFailure records the reason of the latest enrichment failure.
func WithFailure(reason string) Mutation {
	return func(r *Record) {
		r.FailureReason = reason
	}
}

// ScopeMode selects which records an enrichment run targets.
type ScopeMode string

const (
	ScopeAllPending ScopeMode = "all_pending"
	ScopeAllForced  ScopeMode = "all_forced"
	ScopeSingle     ScopeMode = "single"
)

// Scope is the working-set selector handed to Engine.Enrich.
type Scope struct {
	Mode ScopeMode
	Name string
}

func AllPending() Scope { return Scope{Mode: ScopeAllPending} }

func AllForced() Scope { return Scope{Mode: ScopeAllForced} }

func Single(name string) Scope {
	return Scope{Mode: ScopeSingle, Name: common.NormalizeName(name)}
}

// Status is the overall outcome of an enrichment run.
type Status string

const (
	StatusFullSuccess    Status = "full_success"
	StatusPartialSuccess Status = "partial_success"
	StatusTotalFailure   Status = "total_failure"
)

// Failure names a city that could not be enriched and why.
type Failure struct {
	Name   string `json:"city_name"`
	Reason string `json:"reason"`
}

// Summary aggregates the per-city outcomes of one enrichment run.
type Summary struct {
	RunID         string    `json:"run_id"`
	Status        Status    `json:"status"`
	Total         int       `json:"total"`
	EnrichedCount int       `json:"enriched_count"`
	FailedCount   int       `json:"failed_count"`
	SkippedCount  int       `json:"skipped_count"`
	FailedCities  []Failure `json:"failed_cities"`
}

// Nearest is the answer to a proximity query.
type Nearest struct {
	Name       string      `json:"city_name"`
	DistanceKM float64     `json:"distance_km"`
	Weather    *Conditions `json:"weather,omitempty"`
}
