package cities

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversine(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want                   float64
	}{
		{"same point", 10, 10, 10, 10, 0},
		{"0.4 degrees along the equator", 0, 0.4, 0, 0, 44.4779},
		{"0.6 degrees along the equator", 0, 0.4, 0, 1, 66.7169},
		{"one degree of latitude", 0, 0, 1, 0, 111.1949},
		{"paris to london", 48.8566, 2.3522, 51.5074, -0.1278, 343.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Haversine(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			assert.InDelta(t, tt.want, got, 0.5)
		})
	}
}

func TestHaversine_Symmetric(t *testing.T) {
	a := Haversine(35.68, 139.76, -33.86, 151.20)
	b := Haversine(-33.86, 151.20, 35.68, 139.76)
	assert.InDelta(t, a, b, 1e-9)
}

func TestValidCoordinates(t *testing.T) {
	assert.True(t, ValidCoordinates(90, 180))
	assert.True(t, ValidCoordinates(-90, -180))
	assert.False(t, ValidCoordinates(90.01, 0))
	assert.False(t, ValidCoordinates(0, -180.5))
	assert.False(t, ValidCoordinates(math.NaN(), 0))
	assert.False(t, ValidCoordinates(0, math.Inf(1)))
}

func TestRoundTo(t *testing.T) {
	assert.Equal(t, 44.48, roundTo(44.4779, 2))
	assert.Equal(t, 66.7, roundTo(66.7, 2))
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []CityOutcome
		status   Status
		enriched int
		failed   int
		skipped  int
	}{
		{
			name:   "empty run",
			status: StatusFullSuccess,
		},
		{
			name: "all enriched",
			outcomes: []CityOutcome{
				{Name: "a", Outcome: OutcomeEnriched},
				{Name: "b", Outcome: OutcomeEnriched},
			},
			status:   StatusFullSuccess,
			enriched: 2,
		},
		{
			name: "mixed",
			outcomes: []CityOutcome{
				{Name: "a", Outcome: OutcomeEnriched},
				{Name: "b", Outcome: OutcomeFailed, Reason: ReasonWeatherFailed},
			},
			status:   StatusPartialSuccess,
			enriched: 1,
			failed:   1,
		},
		{
			name: "every attempted city failed",
			outcomes: []CityOutcome{
				{Name: "a", Outcome: OutcomeFailed, Reason: ReasonGeocodingFailed},
				{Name: "b", Outcome: OutcomeSkipped},
			},
			status:  StatusTotalFailure,
			failed:  1,
			skipped: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Summarize("run", tt.outcomes)
			assert.Equal(t, tt.status, s.Status)
			assert.Equal(t, tt.enriched, s.EnrichedCount)
			assert.Equal(t, tt.failed, s.FailedCount)
			assert.Equal(t, tt.skipped, s.SkippedCount)
			assert.Len(t, s.FailedCities, tt.failed)
			assert.Equal(t, len(tt.outcomes), s.Total)
		})
	}
}

func TestRecordClone(t *testing.T) {
	r := Record{
		Name:        "quito",
		Coordinates: &Coordinates{Latitude: -0.18, Longitude: -78.47},
		Weather:     &Conditions{Description: "mist", TemperatureC: 14},
	}
	c := r.Clone()
	c.Coordinates.Latitude = 1
	c.Weather.Description = "clear"

	assert.Equal(t, -0.18, r.Coordinates.Latitude)
	assert.Equal(t, "mist", r.Weather.Description)
	assert.False(t, r.Pending())
	assert.True(t, Record{Name: "x", Coordinates: r.Coordinates}.Pending())
}

func TestProviderErrorKindOf(t *testing.T) {
	err := NewProviderError("opencage", KindRateLimit, assert.AnError)
	assert.Equal(t, KindRateLimit, ProviderErrorKindOf(err))
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, KindTransport, ProviderErrorKindOf(assert.AnError))
}
