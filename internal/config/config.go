package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type AppConfig struct {
	Port      string
	LogLevel  zerolog.Level
	LogFormat string

	GeoProvider          string
	OpenCageAPIKey       string
	GoogleGeocoderAPIKey string

	WeatherProvider   string
	OpenWeatherAPIKey string
	WeatherAPIKey     string

	// HTTPTimeout bounds a single outbound HTTP exchange.
	HTTPTimeout time.Duration
	// ProviderCallTimeout bounds one geocode or weather call, retries included.
	ProviderCallTimeout time.Duration
	// EnrichBatchTimeout bounds a whole enrichment run (0 = none).
	EnrichBatchTimeout   time.Duration
	EnrichMaxConcurrency int
	ProviderMaxRetries   int

	// EnrichInterval schedules ALL_PENDING runs (0 = scheduler disabled).
	EnrichInterval time.Duration
	Autosave       bool

	PersistBackend string
	PersistPath    string
	LoadOnStart    bool
}

// Load reads configuration from a .env file (if present) and the environment.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Info().Err(err).Msg("no .env file loaded")
	}
	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("GEO_PROVIDER", "opencage")
	v.SetDefault("OPENCAGE_API_KEY", "")
	v.SetDefault("GOOGLE_GEOCODER_API_KEY", "")
	v.SetDefault("WEATHER_PROVIDER", "")
	v.SetDefault("OPENWEATHER_API_KEY", "")
	v.SetDefault("WEATHERAPI_API_KEY", "")
	v.SetDefault("HTTP_TIMEOUT", "10s")
	v.SetDefault("PROVIDER_CALL_TIMEOUT", "10s")
	v.SetDefault("ENRICH_BATCH_TIMEOUT", "2m")
	v.SetDefault("ENRICH_MAX_CONCURRENCY", 15)
	v.SetDefault("PROVIDER_MAX_RETRIES", 2)
	v.SetDefault("ENRICH_INTERVAL", "0")
	v.SetDefault("AUTOSAVE", false)
	v.SetDefault("PERSIST_BACKEND", "csv")
	v.SetDefault("PERSIST_PATH", "")
	v.SetDefault("LOAD_ON_START", false)
	return v
}

// FromViper builds and validates an AppConfig from v.
func FromViper(v *viper.Viper) (*AppConfig, error) {
	cfg := &AppConfig{
		Port:                 v.GetString("PORT"),
		LogFormat:            strings.ToLower(v.GetString("LOG_FORMAT")),
		GeoProvider:          strings.ToLower(v.GetString("GEO_PROVIDER")),
		OpenCageAPIKey:       v.GetString("OPENCAGE_API_KEY"),
		GoogleGeocoderAPIKey: v.GetString("GOOGLE_GEOCODER_API_KEY"),
		WeatherProvider:      strings.ToLower(v.GetString("WEATHER_PROVIDER")),
		OpenWeatherAPIKey:    v.GetString("OPENWEATHER_API_KEY"),
		WeatherAPIKey:        v.GetString("WEATHERAPI_API_KEY"),
		EnrichMaxConcurrency: v.GetInt("ENRICH_MAX_CONCURRENCY"),
		ProviderMaxRetries:   v.GetInt("PROVIDER_MAX_RETRIES"),
		Autosave:             v.GetBool("AUTOSAVE"),
		PersistBackend:       strings.ToLower(v.GetString("PERSIST_BACKEND")),
		PersistPath:          v.GetString("PERSIST_PATH"),
		LoadOnStart:          v.GetBool("LOAD_ON_START"),
	}

	level, err := zerolog.ParseLevel(strings.ToLower(v.GetString("LOG_LEVEL")))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	cfg.LogLevel = level

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"HTTP_TIMEOUT", &cfg.HTTPTimeout},
		{"PROVIDER_CALL_TIMEOUT", &cfg.ProviderCallTimeout},
		{"ENRICH_BATCH_TIMEOUT", &cfg.EnrichBatchTimeout},
		{"ENRICH_INTERVAL", &cfg.EnrichInterval},
	}
	for _, d := range durations {
		parsed, err := parseDuration(v.GetString(d.key))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	if cfg.PersistPath == "" {
		cfg.PersistPath = "data/cities.csv"
		if cfg.PersistBackend == "sqlite" {
			cfg.PersistPath = "data/cities.db"
		}
	}

	if cfg.WeatherProvider == "" {
		cfg.WeatherProvider = "openmeteo"
		if cfg.OpenWeatherAPIKey != "" {
			cfg.WeatherProvider = "openweather"
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDuration accepts Go durations and a bare "0".
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, errors.New("must not be negative")
	}
	return d, nil
}

func (c *AppConfig) validate() error {
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("invalid LOG_FORMAT %q: want json or console", c.LogFormat)
	}

	switch c.GeoProvider {
	case "opencage":
		if c.OpenCageAPIKey == "" {
			return errors.New("OPENCAGE_API_KEY is required when GEO_PROVIDER=opencage")
		}
	case "google":
		if c.GoogleGeocoderAPIKey == "" {
			return errors.New("GOOGLE_GEOCODER_API_KEY is required when GEO_PROVIDER=google")
		}
	default:
		return fmt.Errorf("invalid GEO_PROVIDER %q: want opencage or google", c.GeoProvider)
	}

	switch c.WeatherProvider {
	case "openweather":
		if c.OpenWeatherAPIKey == "" {
			return errors.New("OPENWEATHER_API_KEY is required when WEATHER_PROVIDER=openweather")
		}
	case "weatherapi":
		if c.WeatherAPIKey == "" {
			return errors.New("WEATHERAPI_API_KEY is required when WEATHER_PROVIDER=weatherapi")
		}
	case "openmeteo":
	default:
		return fmt.Errorf("invalid WEATHER_PROVIDER %q: want openweather, openmeteo or weatherapi", c.WeatherProvider)
	}

	switch c.PersistBackend {
	case "csv", "sqlite":
	default:
		return fmt.Errorf("invalid PERSIST_BACKEND %q: want csv or sqlite", c.PersistBackend)
	}

	if c.EnrichMaxConcurrency <= 0 {
		return fmt.Errorf("ENRICH_MAX_CONCURRENCY must be positive, got %d", c.EnrichMaxConcurrency)
	}
	if c.ProviderMaxRetries < 0 {
		return fmt.Errorf("PROVIDER_MAX_RETRIES must not be negative, got %d", c.ProviderMaxRetries)
	}
	return nil
}
