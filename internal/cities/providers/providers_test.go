package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kelvins/geocoder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/city-weather/internal/cities"
)

var fastBackoff = BackoffConfig{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}

func serve(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func kindOf(t *testing.T, err error) cities.ProviderErrorKind {
	t.Helper()
	var pe *cities.ProviderError
	require.True(t, errors.As(err, &pe), "expected ProviderError, got %v", err)
	return pe.Kind
}

func TestOpenCage_Geocode(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "lisbon", q.Get("q"))
		assert.Equal(t, "secret", q.Get("key"))
		assert.Equal(t, "1", q.Get("limit"))
		assert.Equal(t, "1", q.Get("no_annotations"))
		fmt.Fprint(w, `{"results":[{"geometry":{"lat":38.7223,"lng":-9.1393}}]}`)
	})

	p := NewOpenCageProvider(srv.Client(), "secret", WithBaseURL(srv.URL), WithBackoff(fastBackoff))
	got, err := p.Geocode(context.Background(), "lisbon")
	require.NoError(t, err)
	assert.Equal(t, cities.Coordinates{Latitude: 38.7223, Longitude: -9.1393}, got)
	assert.Equal(t, "opencage", p.Name())
}

func TestOpenCage_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   cities.ProviderErrorKind
	}{
		{"no results", http.StatusOK, `{"results":[]}`, cities.KindNotFound},
		{"missing geometry", http.StatusOK, `{"results":[{"geometry":{}}]}`, cities.KindMalformed},
		{"garbage body", http.StatusOK, `{"results":`, cities.KindMalformed},
		{"quota exhausted", http.StatusPaymentRequired, `{}`, cities.KindRateLimit},
		{"unauthorized", http.StatusUnauthorized, `{}`, cities.KindTransport},
		{"rate limited", http.StatusTooManyRequests, ``, cities.KindRateLimit},
		{"server error", http.StatusBadGateway, ``, cities.KindTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})
			p := NewOpenCageProvider(srv.Client(), "k", WithBaseURL(srv.URL), WithBackoff(fastBackoff))
			_, err := p.Geocode(context.Background(), "nowhere")
			require.Error(t, err)
			assert.Equal(t, tt.want, kindOf(t, err))
		})
	}
}

func TestOpenCage_MissingKey(t *testing.T) {
	p := NewOpenCageProvider(http.DefaultClient, "")
	_, err := p.Geocode(context.Background(), "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, errMissingAPIKey)
}

func TestResilience_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"main":{"temp":12.5},"weather":[{"description":"light rain"}]}`)
	})

	p := NewOpenWeatherProvider(srv.Client(), "k", WithBaseURL(srv.URL), WithBackoff(fastBackoff))
	got, err := p.Current(context.Background(), cities.Coordinates{Latitude: 1, Longitude: 2})
	require.NoError(t, err)
	assert.Equal(t, cities.Conditions{Description: "light rain", TemperatureC: 12.5}, got)
	assert.Equal(t, int32(3), calls.Load())
}

func TestResilience_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})

	p := NewOpenWeatherProvider(srv.Client(), "k", WithBaseURL(srv.URL), WithBackoff(fastBackoff))
	_, err := p.Current(context.Background(), cities.Coordinates{})
	require.Error(t, err)
	assert.Equal(t, cities.KindNotFound, kindOf(t, err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestResilience_RespectsContext(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	p := NewOpenMeteoProvider(srv.Client(), WithBaseURL(srv.URL), WithBackoff(fastBackoff))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := p.Current(ctx, cities.Coordinates{})
	require.Error(t, err)
	assert.Equal(t, cities.KindTransport, kindOf(t, err))
	assert.Less(t, time.Since(start), time.Second)
}

func TestResilience_InvalidConfig(t *testing.T) {
	_, err := doRequestWithResilience(context.Background(), HTTPClientConfig{}, newBreaker("t"), nil)
	assert.ErrorIs(t, err, errNoHTTPClient)

	_, err = doRequestWithResilience(context.Background(),
		HTTPClientConfig{Client: http.DefaultClient, Backoff: BackoffConfig{MaxRetries: -1}}, newBreaker("t"), nil)
	assert.ErrorIs(t, err, errInvalidConfig)
}

func TestOpenWeather_RequestAndMalformed(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "48.856600", q.Get("lat"))
		assert.Equal(t, "2.352200", q.Get("lon"))
		assert.Equal(t, "metric", q.Get("units"))
		assert.Equal(t, "k", q.Get("appid"))
		fmt.Fprint(w, `{"main":{"temp":20},"weather":[]}`)
	})

	p := NewOpenWeatherProvider(srv.Client(), "k", WithBaseURL(srv.URL), WithBackoff(fastBackoff))
	_, err := p.Current(context.Background(), cities.Coordinates{Latitude: 48.8566, Longitude: 2.3522})
	require.Error(t, err)
	assert.Equal(t, cities.KindMalformed, kindOf(t, err))
}

func TestOpenMeteo_Current(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("current_weather"))
		fmt.Fprint(w, `{"current_weather":{"temperature":-3.2,"weathercode":73}}`)
	})

	p := NewOpenMeteoProvider(srv.Client(), WithBaseURL(srv.URL), WithBackoff(fastBackoff))
	got, err := p.Current(context.Background(), cities.Coordinates{Latitude: 60, Longitude: 10})
	require.NoError(t, err)
	assert.Equal(t, cities.Conditions{Description: "snow", TemperatureC: -3.2}, got)
}

func TestDescribeWMOCode(t *testing.T) {
	assert.Equal(t, "clear sky", describeWMOCode(0))
	assert.Equal(t, "overcast", describeWMOCode(3))
	assert.Equal(t, "fog", describeWMOCode(48))
	assert.Equal(t, "rain showers", describeWMOCode(81))
	assert.Equal(t, "thunderstorm", describeWMOCode(99))
	assert.Equal(t, "unknown", describeWMOCode(42))
}

func TestWeatherAPI_Current(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1.500000,-2.250000", r.URL.Query().Get("q"))
		fmt.Fprint(w, `{"current":{"temp_c":31,"condition":{"text":"Sunny"}}}`)
	})

	p := NewWeatherAPIProvider(srv.Client(), "k", WithBaseURL(srv.URL), WithBackoff(fastBackoff))
	got, err := p.Current(context.Background(), cities.Coordinates{Latitude: 1.5, Longitude: -2.25})
	require.NoError(t, err)
	assert.Equal(t, cities.Conditions{Description: "Sunny", TemperatureC: 31}, got)

	p = NewWeatherAPIProvider(srv.Client(), "")
	_, err = p.Current(context.Background(), cities.Coordinates{})
	assert.ErrorIs(t, err, errMissingAPIKey)
}

func TestGoogle_Geocode(t *testing.T) {
	p := &GoogleProvider{name: "google", apiKey: "k"}

	p.lookup = func(a geocoder.Address) (geocoder.Location, error) {
		assert.Equal(t, "kyoto", a.City)
		return geocoder.Location{Latitude: 35.01, Longitude: 135.77}, nil
	}
	got, err := p.Geocode(context.Background(), "kyoto")
	require.NoError(t, err)
	assert.Equal(t, cities.Coordinates{Latitude: 35.01, Longitude: 135.77}, got)

	p.lookup = func(geocoder.Address) (geocoder.Location, error) {
		return geocoder.Location{}, errors.New("ZERO_RESULTS")
	}
	_, err = p.Geocode(context.Background(), "atlantis")
	assert.Equal(t, cities.KindNotFound, kindOf(t, err))

	p.lookup = func(geocoder.Address) (geocoder.Location, error) {
		return geocoder.Location{}, errors.New("OVER_QUERY_LIMIT")
	}
	_, err = p.Geocode(context.Background(), "busy")
	assert.Equal(t, cities.KindRateLimit, kindOf(t, err))
}

func TestGoogle_GeocodeHonorsContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	p := &GoogleProvider{name: "google", apiKey: "k", lookup: func(geocoder.Address) (geocoder.Location, error) {
		<-release
		return geocoder.Location{}, nil
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := p.Geocode(ctx, "slow")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
