package cities

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned for malformed or duplicate input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned when a named city is absent.
	ErrNotFound = errors.New("city not found")
	// ErrEmptyDataset is returned when the store holds no cities.
	ErrEmptyDataset = errors.New("no cities loaded")
	// ErrNoCandidates is returned when no city has coordinates yet.
	ErrNoCandidates = errors.New("no geocoded cities available")
	// ErrInvalidInput is returned for out-of-range or non-numeric coordinates.
	ErrInvalidInput = errors.New("invalid coordinates")
	// ErrTotalFailure is returned when every city of a non-empty batch failed.
	ErrTotalFailure = errors.New("failed to enrich any cities")
	// ErrInternal marks unexpected conditions.
	ErrInternal = errors.New("internal error")
)

// ProviderErrorKind classifies an external provider failure.
type ProviderErrorKind string

const (
	KindNotFound  ProviderErrorKind = "not_found"
	KindTransport ProviderErrorKind = "transport"
	KindRateLimit ProviderErrorKind = "rate_limit"
	KindMalformed ProviderErrorKind = "malformed"
)

// ProviderError is returned by GeoProvider and WeatherProvider implementations.
type ProviderError struct {
	Provider string
	Kind     ProviderErrorKind
	Err      error
}

func NewProviderError(provider string, kind ProviderErrorKind, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ProviderErrorKindOf extracts the kind from err, defaulting to transport.
func ProviderErrorKindOf(err error) ProviderErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindTransport
}
