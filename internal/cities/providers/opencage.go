package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sony/gobreaker"

	"github.com/i474232898/city-weather/internal/cities"
)

// OpenCageProvider implements cities.GeoProvider for the OpenCage geocoder.
type OpenCageProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOpenCageProvider(client *http.Client, apiKey string, opts ...Option) *OpenCageProvider {
	o := buildOptions("https://api.opencagedata.com/geocode/v1/json", opts)
	return &OpenCageProvider{
		name:    "opencage",
		apiKey:  apiKey,
		baseURL: o.baseURL,
		httpCfg: HTTPClientConfig{Client: client, Backoff: o.backoff},
		circuit: newBreaker("opencage"),
	}
}

func (p *OpenCageProvider) Name() string {
	return p.name
}

func (p *OpenCageProvider) Geocode(ctx context.Context, city string) (cities.Coordinates, error) {
	if p.apiKey == "" {
		return cities.Coordinates{}, cities.NewProviderError(p.name, cities.KindTransport, errMissingAPIKey)
	}

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("q", city)
		values.Set("key", p.apiKey)
		values.Set("limit", "1")
		values.Set("no_annotations", "1")

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	var payload struct {
		Results []struct {
			Geometry struct {
				Lat *float64 `json:"lat"`
				Lng *float64 `json:"lng"`
			} `json:"geometry"`
		} `json:"results"`
	}

	if err := fetchJSON(ctx, p.name, p.httpCfg, p.circuit, buildRequest, &payload); err != nil {
		return cities.Coordinates{}, err
	}

	if len(payload.Results) == 0 {
		return cities.Coordinates{}, cities.NewProviderError(p.name, cities.KindNotFound,
			fmt.Errorf("no results for %q", city))
	}

	g := payload.Results[0].Geometry
	if g.Lat == nil || g.Lng == nil {
		return cities.Coordinates{}, cities.NewProviderError(p.name, cities.KindMalformed,
			errors.New("result has no geometry"))
	}

	return cities.Coordinates{Latitude: *g.Lat, Longitude: *g.Lng}, nil
}
