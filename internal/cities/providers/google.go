package providers

import (
	"context"
	"sync"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/city-weather/internal/cities"
	"github.com/i474232898/city-weather/internal/common"
)

// geocoder keeps its key in a package variable.
var googleKeyOnce sync.Once

// GoogleProvider implements cities.GeoProvider on top of the Google Maps
// Geocoding API through kelvins/geocoder.
type GoogleProvider struct {
	name   string
	apiKey string
	lookup func(geocoder.Address) (geocoder.Location, error)
}

func NewGoogleProvider(apiKey string) *GoogleProvider {
	googleKeyOnce.Do(func() { geocoder.ApiKey = apiKey })
	return &GoogleProvider{
		name:   "google",
		apiKey: apiKey,
		lookup: geocoder.Geocoding,
	}
}

func (p *GoogleProvider) Name() string {
	return p.name
}

// Geocode runs the lookup in a goroutine since the client takes no context.
func (p *GoogleProvider) Geocode(ctx context.Context, city string) (cities.Coordinates, error) {
	if p.apiKey == "" {
		return cities.Coordinates{}, cities.NewProviderError(p.name, cities.KindTransport, errMissingAPIKey)
	}

	type result struct {
		loc geocoder.Location
		err error
	}
	done := make(chan result, 1)
	go func() {
		loc, err := p.lookup(geocoder.Address{City: city})
		done <- result{loc: loc, err: err}
	}()

	select {
	case <-ctx.Done():
		return cities.Coordinates{}, cities.NewProviderError(p.name, cities.KindTransport, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return cities.Coordinates{}, cities.NewProviderError(p.name, googleErrorKind(r.err), r.err)
		}
		c := cities.Coordinates{Latitude: r.loc.Latitude, Longitude: r.loc.Longitude}
		if c.Latitude == 0 && c.Longitude == 0 {
			return cities.Coordinates{}, cities.NewProviderError(p.name, cities.KindNotFound, nil)
		}
		return c, nil
	}
}

func googleErrorKind(err error) cities.ProviderErrorKind {
	msg := err.Error()
	switch {
	case common.HasAny(msg, "ZERO_RESULTS", "no results", "empty"):
		return cities.KindNotFound
	case common.HasAny(msg, "OVER_QUERY_LIMIT", "OVER_DAILY_LIMIT"):
		return cities.KindRateLimit
	case common.HasAny(msg, "INVALID_REQUEST", "invalid character"):
		return cities.KindMalformed
	default:
		return cities.KindTransport
	}
}
