package persist

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/city-weather/internal/cities"
)

func sampleRecords() []cities.Record {
	return []cities.Record{
		{
			Name:        "lisbon",
			Coordinates: &cities.Coordinates{Latitude: 38.7223, Longitude: -9.1393},
			Weather:     &cities.Conditions{Description: "clear sky", TemperatureC: 22.4},
		},
		{
			Name:          "porto",
			Coordinates:   &cities.Coordinates{Latitude: 41.1579, Longitude: -8.6291},
			FailureReason: cities.ReasonWeatherFailed,
		},
		{Name: "atlantis", FailureReason: cities.ReasonGeocodingFailed},
		{Name: "faro"},
	}
}

func TestReadCSV_NamesOnly(t *testing.T) {
	in := "City_Name,country\n  Paris ,FR\n\nLONDON,UK\nparis,FR\n ,\nBerlin\n"

	recs, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)

	names := make([]string, 0, len(recs))
	for _, r := range recs {
		names = append(names, r.Name)
		assert.True(t, r.Pending())
	}
	assert.Equal(t, []string{"paris", "london", "berlin"}, names)
}

func TestReadCSV_ByteOrderMark(t *testing.T) {
	recs, err := ReadCSV(strings.NewReader("\ufeffcity_name\nOslo\n"))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "oslo", recs[0].Name)
}

func TestReadCSV_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty input", ""},
		{"no name column", "city,lat\nParis,1\n"},
		{"half a coordinate pair", "city_name,latitude,longitude\nParis,48.8,\n"},
		{"coordinate out of range", "city_name,latitude,longitude\nParis,148.8,2.3\n"},
		{"non numeric latitude", "city_name,latitude,longitude\nParis,north,2.3\n"},
		{"weather without temperature", "city_name,weather,temperature\nParis,rain,\n"},
		{"bad quoting", "city_name\n\"Paris\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.in))
			require.Error(t, err)
			assert.ErrorIs(t, err, cities.ErrValidation)
		})
	}
}

func TestWriteCSV_ThenRead(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleRecords()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "city_name,latitude,longitude,weather,temperature,failure_reason", lines[0])
	assert.Equal(t, "lisbon,38.7223,-9.1393,clear sky,22.4,", lines[1])
	assert.Equal(t, "faro,,,,,", lines[4])

	got, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, sampleRecords(), got)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open("csv", filepath.Join(dir, "c.csv"))
	require.NoError(t, err)
	assert.IsType(t, &CSVFile{}, s)

	s, err = Open("sqlite", filepath.Join(dir, "c.db"))
	require.NoError(t, err)
	assert.IsType(t, &SQLiteSnapshot{}, s)
	require.NoError(t, s.Close())

	_, err = Open("parquet", "x")
	assert.Error(t, err)
}

func TestSnapshotters(t *testing.T) {
	backends := []struct {
		name string
		open func(t *testing.T, dir string) Snapshotter
	}{
		{"csv", func(t *testing.T, dir string) Snapshotter {
			return NewCSVFile(filepath.Join(dir, "nested", "cities.csv"))
		}},
		{"sqlite", func(t *testing.T, dir string) Snapshotter {
			s, err := NewSQLiteSnapshot(filepath.Join(dir, "cities.db"))
			require.NoError(t, err)
			return s
		}},
	}

	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			s := b.open(t, t.TempDir())
			defer s.Close()

			_, err := s.Load(ctx)
			assert.ErrorIs(t, err, ErrNoSnapshot)

			require.NoError(t, s.Save(ctx, sampleRecords()))
			got, err := s.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, sampleRecords(), got)

			// A second save replaces rather than appends.
			require.NoError(t, s.Save(ctx, sampleRecords()[:1]))
			got, err = s.Load(ctx)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "lisbon", got[0].Name)
			assert.NotEmpty(t, s.Location())
		})
	}
}

func TestCSVFile_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	f := NewCSVFile(filepath.Join(dir, "cities.csv"))
	require.NoError(t, f.Save(context.Background(), sampleRecords()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "cities.csv", entries[0].Name())
}
