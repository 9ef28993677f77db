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

// WeatherAPIProvider implements cities.WeatherProvider for WeatherAPI.com.
type WeatherAPIProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewWeatherAPIProvider(client *http.Client, apiKey string, opts ...Option) *WeatherAPIProvider {
	o := buildOptions("https://api.weatherapi.com/v1/current.json", opts)
	return &WeatherAPIProvider{
		name:    "weatherapi",
		apiKey:  apiKey,
		baseURL: o.baseURL,
		httpCfg: HTTPClientConfig{Client: client, Backoff: o.backoff},
		circuit: newBreaker("weatherapi"),
	}
}

func (p *WeatherAPIProvider) Name() string {
	return p.name
}

func (p *WeatherAPIProvider) Current(ctx context.Context, c cities.Coordinates) (cities.Conditions, error) {
	if p.apiKey == "" {
		return cities.Conditions{}, cities.NewProviderError(p.name, cities.KindTransport, errMissingAPIKey)
	}

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("key", p.apiKey)
		// WeatherAPI takes "lat,lon" in q.
		values.Set("q", coordinateParam(c.Latitude)+","+coordinateParam(c.Longitude))

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	var payload struct {
		Current *struct {
			TempC     float64 `json:"temp_c"`
			Condition struct {
				Text string `json:"text"`
			} `json:"condition"`
		} `json:"current"`
	}

	if err := fetchJSON(ctx, p.name, p.httpCfg, p.circuit, buildRequest, &payload); err != nil {
		return cities.Conditions{}, err
	}

	if payload.Current == nil {
		return cities.Conditions{}, cities.NewProviderError(p.name, cities.KindMalformed,
			errors.New("response has no current block"))
	}

	return cities.Conditions{
		Description:  payload.Current.Condition.Text,
		TemperatureC: payload.Current.TempC,
	}, nil
}
