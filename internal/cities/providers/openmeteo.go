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

// OpenMeteoProvider implements cities.WeatherProvider for Open-Meteo. It needs no API key.
type OpenMeteoProvider struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOpenMeteoProvider(client *http.Client, opts ...Option) *OpenMeteoProvider {
	o := buildOptions("https://api.open-meteo.com/v1/forecast", opts)
	return &OpenMeteoProvider{
		name:    "openmeteo",
		baseURL: o.baseURL,
		httpCfg: HTTPClientConfig{Client: client, Backoff: o.backoff},
		circuit: newBreaker("openmeteo"),
	}
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

func (p *OpenMeteoProvider) Current(ctx context.Context, c cities.Coordinates) (cities.Conditions, error) {
	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", coordinateParam(c.Latitude))
		values.Set("longitude", coordinateParam(c.Longitude))
		values.Set("current_weather", "true")

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	var payload struct {
		CurrentWeather *struct {
			Temperature float64 `json:"temperature"`
			WeatherCode int     `json:"weathercode"`
		} `json:"current_weather"`
	}

	if err := fetchJSON(ctx, p.name, p.httpCfg, p.circuit, buildRequest, &payload); err != nil {
		return cities.Conditions{}, err
	}

	if payload.CurrentWeather == nil {
		return cities.Conditions{}, cities.NewProviderError(p.name, cities.KindMalformed,
			errors.New("response has no current_weather block"))
	}

	return cities.Conditions{
		Description:  describeWMOCode(payload.CurrentWeather.WeatherCode),
		TemperatureC: payload.CurrentWeather.Temperature,
	}, nil
}

// describeWMOCode turns a WMO weather interpretation code into text.
func describeWMOCode(code int) string {
	switch {
	case code == 0:
		return "clear sky"
	case code == 1:
		return "mainly clear"
	case code == 2:
		return "partly cloudy"
	case code == 3:
		return "overcast"
	case code == 45 || code == 48:
		return "fog"
	case code >= 51 && code <= 57:
		return "drizzle"
	case code >= 61 && code <= 67:
		return "rain"
	case code >= 71 && code <= 77:
		return "snow"
	case code >= 80 && code <= 82:
		return "rain showers"
	case code == 85 || code == 86:
		return "snow showers"
	case code >= 95:
		return "thunderstorm"
	default:
		return "unknown"
	}
}
