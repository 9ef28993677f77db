package persist

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/i474232898/city-weather/internal/cities"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS cities (
	position INTEGER PRIMARY KEY,
	city_name TEXT NOT NULL UNIQUE,
	latitude REAL,
	longitude REAL,
	weather TEXT,
	temperature REAL,
	failure_reason TEXT NOT NULL DEFAULT ''
);`

// SQLiteSnapshot is a Snapshotter backed by a single SQLite table
// (pure Go driver modernc.org/sqlite). Each Save replaces the table contents
// in one transaction.
type SQLiteSnapshot struct {
	db   *sql.DB
	path string
}

var _ Snapshotter = (*SQLiteSnapshot)(nil)

// NewSQLiteSnapshot opens (or creates) the database at path and applies the schema.
func NewSQLiteSnapshot(path string) (*SQLiteSnapshot, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create snapshot dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteSnapshot{db: db, path: path}, nil
}

func (s *SQLiteSnapshot) Location() string { return s.path }

func (s *SQLiteSnapshot) Save(ctx context.Context, records []cities.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cities`); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO cities(position, city_name, latitude, longitude, weather, temperature, failure_reason) VALUES(?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, r := range records {
		var lat, lon, temp sql.NullFloat64
		var desc sql.NullString
		if r.Coordinates != nil {
			lat = sql.NullFloat64{Float64: r.Coordinates.Latitude, Valid: true}
			lon = sql.NullFloat64{Float64: r.Coordinates.Longitude, Valid: true}
		}
		if r.Weather != nil {
			desc = sql.NullString{String: r.Weather.Description, Valid: true}
			temp = sql.NullFloat64{Float64: r.Weather.TemperatureC, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, i, r.Name, lat, lon, desc, temp, r.FailureReason); err != nil {
			return fmt.Errorf("insert %q: %w", r.Name, err)
		}
	}
	return tx.Commit()
}

// Load returns ErrNoSnapshot when the table is empty.
func (s *SQLiteSnapshot) Load(ctx context.Context) ([]cities.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT city_name, latitude, longitude, weather, temperature, failure_reason FROM cities ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]cities.Record, 0)
	for rows.Next() {
		var (
			name, reason   string
			lat, lon, temp sql.NullFloat64
			desc           sql.NullString
		)
		if err := rows.Scan(&name, &lat, &lon, &desc, &temp, &reason); err != nil {
			return nil, err
		}
		rec := cities.Record{Name: name, FailureReason: reason}
		if lat.Valid && lon.Valid {
			rec.Coordinates = &cities.Coordinates{Latitude: lat.Float64, Longitude: lon.Float64}
		}
		if desc.Valid && temp.Valid {
			rec.Weather = &cities.Conditions{Description: desc.String, TemperatureC: temp.Float64}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNoSnapshot
	}
	return out, nil
}

func (s *SQLiteSnapshot) Close() error {
	return s.db.Close()
}
