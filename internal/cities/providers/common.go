package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker"

	"github.com/i474232898/city-weather/internal/cities"
)

// BackoffConfig controls exponential backoff behaviour.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultBackoff is used when a provider is built without WithBackoff.
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		MaxRetries:      2,
		InitialInterval: 250 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

// HTTPClientConfig bundles HTTP client and resilience settings.
type HTTPClientConfig struct {
	Client  *http.Client
	Backoff BackoffConfig
}

// Option customizes a provider at construction time.
type Option func(*options)

type options struct {
	baseURL string
	backoff BackoffConfig
}

// WithBaseURL points the provider at a different endpoint.
func WithBaseURL(u string) Option {
	return func(o *options) { o.baseURL = u }
}

func WithBackoff(b BackoffConfig) Option {
	return func(o *options) { o.backoff = b }
}

func buildOptions(baseURL string, opts []Option) options {
	o := options{baseURL: baseURL, backoff: DefaultBackoff()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})
}

var (
	errRateLimited   = errors.New("rate limited")
	errServerError   = errors.New("server error")
	errCircuitOpen   = errors.New("circuit breaker open")
	errNoHTTPClient  = errors.New("http client not configured")
	errInvalidConfig = errors.New("invalid backoff configuration")
	errMissingAPIKey = errors.New("api key is not configured")
)

// retryableStatus is the error returned inside the breaker for responses
// worth retrying. Other non-2xx responses pass through untouched.
type retryableStatus struct {
	code int
	err  error
}

func (e *retryableStatus) Error() string { return fmt.Sprintf("%v: %d", e.err, e.code) }
func (e *retryableStatus) Unwrap() error { return e.err }

// doRequestWithResilience executes the HTTP request with retries, exponential backoff,
// and a circuit breaker. Only transport errors, 429 and 5xx are retried and count
// against the breaker; other responses are handed back to the caller.
func doRequestWithResilience(
	ctx context.Context,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	buildRequest func(ctx context.Context) (*http.Request, error),
) (*http.Response, error) {
	if cfg.Client == nil {
		return nil, errNoHTTPClient
	}
	if cfg.Backoff.MaxRetries < 0 || cfg.Backoff.InitialInterval <= 0 {
		return nil, errInvalidConfig
	}

	var attempt int
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		req, err := buildRequest(ctx)
		if err != nil {
			return nil, err
		}

		result, err := cb.Execute(func() (interface{}, error) {
			resp, execErr := cfg.Client.Do(req)
			if execErr != nil {
				return nil, execErr
			}

			switch {
			case resp.StatusCode == http.StatusTooManyRequests:
				drain(resp)
				return nil, &retryableStatus{code: resp.StatusCode, err: errRateLimited}
			case resp.StatusCode >= 500:
				drain(resp)
				return nil, &retryableStatus{code: resp.StatusCode, err: errServerError}
			}
			return resp, nil
		})

		if err == nil {
			resp, ok := result.(*http.Response)
			if !ok {
				return nil, fmt.Errorf("unexpected result type from circuit breaker")
			}
			return resp, nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}

		if attempt >= cfg.Backoff.MaxRetries {
			return nil, err
		}

		delay := cfg.Backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if delay > cfg.Backoff.MaxInterval && cfg.Backoff.MaxInterval > 0 {
			delay = cfg.Backoff.MaxInterval
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		attempt++
	}
}

// fetchJSON runs the request and decodes a 2xx body into out. Every failure is
// returned as a *cities.ProviderError.
func fetchJSON(
	ctx context.Context,
	provider string,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	buildRequest func(ctx context.Context) (*http.Request, error),
	out any,
) error {
	resp, err := doRequestWithResilience(ctx, cfg, cb, buildRequest)
	if err != nil {
		return cities.NewProviderError(provider, classify(err), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		drain(resp)
		return cities.NewProviderError(provider, kindForStatus(resp.StatusCode),
			fmt.Errorf("unexpected status code %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return cities.NewProviderError(provider, cities.KindMalformed, err)
	}
	return nil
}

func classify(err error) cities.ProviderErrorKind {
	var rs *retryableStatus
	if errors.As(err, &rs) && rs.code == http.StatusTooManyRequests {
		return cities.KindRateLimit
	}
	return cities.KindTransport
}

func kindForStatus(code int) cities.ProviderErrorKind {
	switch code {
	case http.StatusNotFound:
		return cities.KindNotFound
	case http.StatusTooManyRequests, http.StatusPaymentRequired:
		return cities.KindRateLimit
	default:
		return cities.KindTransport
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

func coordinateParam(v float64) string {
	return fmt.Sprintf("%f", v)
}
