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

// OpenWeatherProvider implements cities.WeatherProvider for OpenWeatherMap.
type OpenWeatherProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOpenWeatherProvider(client *http.Client, apiKey string, opts ...Option) *OpenWeatherProvider {
	o := buildOptions("https://api.openweathermap.org/data/2.5/weather", opts)
	return &OpenWeatherProvider{
		name:    "openweathermap",
		apiKey:  apiKey,
		baseURL: o.baseURL,
		httpCfg: HTTPClientConfig{Client: client, Backoff: o.backoff},
		circuit: newBreaker("openweather"),
	}
}

func (p *OpenWeatherProvider) Name() string {
	return p.name
}

func (p *OpenWeatherProvider) Current(ctx context.Context, c cities.Coordinates) (cities.Conditions, error) {
	if p.apiKey == "" {
		return cities.Conditions{}, cities.NewProviderError(p.name, cities.KindTransport, errMissingAPIKey)
	}

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("lat", coordinateParam(c.Latitude))
		values.Set("lon", coordinateParam(c.Longitude))
		values.Set("appid", p.apiKey)
		values.Set("units", "metric")

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	var payload struct {
		Main struct {
			Temp *float64 `json:"temp"`
		} `json:"main"`
		Weather []struct {
			Description string `json:"description"`
		} `json:"weather"`
	}

	if err := fetchJSON(ctx, p.name, p.httpCfg, p.circuit, buildRequest, &payload); err != nil {
		return cities.Conditions{}, err
	}

	if len(payload.Weather) == 0 || payload.Main.Temp == nil {
		return cities.Conditions{}, cities.NewProviderError(p.name, cities.KindMalformed,
			errors.New("response lacks weather description or temperature"))
	}

	return cities.Conditions{
		Description:  payload.Weather[0].Description,
		TemperatureC: *payload.Main.Temp,
	}, nil
}
