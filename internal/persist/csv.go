package persist

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/i474232898/city-weather/internal/cities"
	"github.com/i474232898/city-weather/internal/common"
)

const (
	colName          = "city_name"
	colLatitude      = "latitude"
	colLongitude     = "longitude"
	colWeather       = "weather"
	colTemperature   = "temperature"
	colFailureReason = "failure_reason"
)

// Header is the column layout written by WriteCSV.
var Header = []string{colName, colLatitude, colLongitude, colWeather, colTemperature, colFailureReason}

// ErrMissingNameColumn is returned when a CSV has no city_name column.
var ErrMissingNameColumn = fmt.Errorf("%w: CSV must contain a %q column", cities.ErrValidation, colName)

// ReadCSV parses a city table. Only city_name is required; names are
// normalized, blank rows are skipped and later duplicates are dropped.
func ReadCSV(r io.Reader) ([]cities.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	head, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrMissingNameColumn
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cities.ErrValidation, err)
	}

	idx := make(map[string]int, len(head))
	for i, h := range head {
		h = strings.TrimPrefix(h, "\ufeff")
		idx[common.NormalizeName(h)] = i
	}
	if _, ok := idx[colName]; !ok {
		return nil, ErrMissingNameColumn
	}

	field := func(row []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	seen := make(map[string]struct{})
	out := make([]cities.Record, 0)
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", cities.ErrValidation, err)
		}

		rec := cities.NewRecord(field(row, colName))
		if rec.Name == "" {
			continue
		}
		if _, dup := seen[rec.Name]; dup {
			continue
		}
		seen[rec.Name] = struct{}{}

		lat, lon := field(row, colLatitude), field(row, colLongitude)
		if lat != "" || lon != "" {
			c, err := parseCoordinates(lat, lon)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", cities.ErrValidation, line, err)
			}
			rec.Coordinates = &c
		}

		desc, temp := field(row, colWeather), field(row, colTemperature)
		if desc != "" || temp != "" {
			if desc == "" || temp == "" {
				return nil, fmt.Errorf("%w: line %d: weather and temperature must be set together", cities.ErrValidation, line)
			}
			t, err := strconv.ParseFloat(temp, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: temperature: %v", cities.ErrValidation, line, err)
			}
			rec.Weather = &cities.Conditions{Description: desc, TemperatureC: t}
		}

		rec.FailureReason = field(row, colFailureReason)
		out = append(out, rec)
	}
	return out, nil
}

func parseCoordinates(lat, lon string) (cities.Coordinates, error) {
	if lat == "" || lon == "" {
		return cities.Coordinates{}, errors.New("latitude and longitude must be set together")
	}
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return cities.Coordinates{}, fmt.Errorf("latitude: %v", err)
	}
	lo, err := strconv.ParseFloat(lon, 64)
	if err != nil {
		return cities.Coordinates{}, fmt.Errorf("longitude: %v", err)
	}
	c := cities.Coordinates{Latitude: la, Longitude: lo}
	if !c.Valid() {
		return cities.Coordinates{}, fmt.Errorf("coordinates out of range: %s,%s", lat, lon)
	}
	return c, nil
}

// WriteCSV renders records with Header. Absent pairs become empty cells.
func WriteCSV(w io.Writer, records []cities.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range records {
		row := make([]string, len(Header))
		row[0] = r.Name
		if r.Coordinates != nil {
			row[1] = formatFloat(r.Coordinates.Latitude)
			row[2] = formatFloat(r.Coordinates.Longitude)
		}
		if r.Weather != nil {
			row[3] = r.Weather.Description
			row[4] = formatFloat(r.Weather.TemperatureC)
		}
		row[5] = r.FailureReason
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// CSVFile is a Snapshotter backed by a single CSV file.
type CSVFile struct {
	path string
}

var _ Snapshotter = (*CSVFile)(nil)

func NewCSVFile(path string) *CSVFile {
	return &CSVFile{path: path}
}

func (f *CSVFile) Location() string { return f.path }

// Save writes to a temporary file in the same directory and renames it over
// the target, so readers never observe a half-written snapshot.
func (f *CSVFile) Save(ctx context.Context, records []cities.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".cities-*.csv")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteCSV(tmp, records); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

func (f *CSVFile) Load(ctx context.Context) ([]cities.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fh, err := os.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return ReadCSV(fh)
}

func (f *CSVFile) Close() error { return nil }
