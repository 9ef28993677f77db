// Package persist saves and restores the city dataset outside the process.
package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/i474232898/city-weather/internal/cities"
)

// ErrNoSnapshot is returned by Load when nothing has been saved yet.
var ErrNoSnapshot = errors.New("no snapshot saved")

// Snapshotter persists the full dataset as one unit.
type Snapshotter interface {
	Save(ctx context.Context, records []cities.Record) error
	Load(ctx context.Context) ([]cities.Record, error)
	// Location describes where the snapshot lives, for responses and logs.
	Location() string
	Close() error
}

// Open returns the snapshotter for backend ("csv" or "sqlite").
func Open(backend, path string) (Snapshotter, error) {
	switch backend {
	case "", "csv":
		return NewCSVFile(path), nil
	case "sqlite":
		return NewSQLiteSnapshot(path)
	default:
		return nil, fmt.Errorf("unknown persistence backend %q", backend)
	}
}
