package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	httpapi "github.com/i474232898/city-weather/internal/api/http"
	"github.com/i474232898/city-weather/internal/cities"
	"github.com/i474232898/city-weather/internal/cities/providers"
	"github.com/i474232898/city-weather/internal/config"
	"github.com/i474232898/city-weather/internal/metrics"
	"github.com/i474232898/city-weather/internal/persist"
	"github.com/i474232898/city-weather/internal/scheduler"
	"github.com/i474232898/city-weather/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logger := newLogger(cfg)
	log.Logger = logger

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	backoff := providers.DefaultBackoff()
	backoff.MaxRetries = cfg.ProviderMaxRetries

	geo, weather := buildProviders(cfg, httpClient, backoff)
	logger.Info().Str("geo", geo.Name()).Str("weather", weather.Name()).Msg("providers configured")

	memStore := store.NewMemoryStore()
	collector := metrics.New()

	engine := cities.NewEngine(memStore, geo, weather, cities.EngineConfig{
		CallTimeout:    cfg.ProviderCallTimeout,
		BatchTimeout:   cfg.EnrichBatchTimeout,
		MaxConcurrency: cfg.EnrichMaxConcurrency,
	}, cities.WithLogger(logger), cities.WithObserver(collector))
	locator := cities.NewLocator(memStore, engine, logger, collector)

	snaps, err := persist.Open(cfg.PersistBackend, cfg.PersistPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open snapshot store")
	}
	defer snaps.Close()

	if cfg.LoadOnStart {
		restore(logger, snaps, memStore)
	}

	var schedOpts []scheduler.Option
	if cfg.EnrichBatchTimeout > 0 {
		schedOpts = append(schedOpts, scheduler.WithRunTimeout(cfg.EnrichBatchTimeout+time.Minute))
	}
	if cfg.Autosave {
		schedOpts = append(schedOpts, scheduler.WithAutosave(snaps))
	}
	sched := scheduler.New(memStore, engine, cfg.EnrichInterval, logger, schedOpts...)
	if err := sched.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start scheduler")
	}
	defer sched.Stop()

	app := httpapi.NewApp(httpapi.Deps{
		Store:     memStore,
		Engine:    engine,
		Locator:   locator,
		Snapshots: snaps,
		Metrics:   collector.Handler(),
		Logger:    logger,
		AccessLog: true,
	})

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("http server listening")
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Error().Err(err).Msg("fiber server stopped")
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error during shutdown")
	}

	if cfg.Autosave && !memStore.IsEmpty() {
		if err := snaps.Save(shutdownCtx, memStore.List()); err != nil {
			logger.Error().Err(err).Msg("final autosave failed")
		}
	}
}

func newLogger(cfg *config.AppConfig) zerolog.Logger {
	var w io.Writer = os.Stdout
	if cfg.LogFormat == "console" {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).
		Level(cfg.LogLevel).
		With().
		Timestamp().
		Str("service", "city-weather").
		Logger()
}

func buildProviders(cfg *config.AppConfig, client *http.Client, backoff providers.BackoffConfig) (cities.GeoProvider, cities.WeatherProvider) {
	var geo cities.GeoProvider
	switch cfg.GeoProvider {
	case "google":
		geo = providers.NewGoogleProvider(cfg.GoogleGeocoderAPIKey)
	default:
		geo = providers.NewOpenCageProvider(client, cfg.OpenCageAPIKey, providers.WithBackoff(backoff))
	}

	var weather cities.WeatherProvider
	switch cfg.WeatherProvider {
	case "openweather":
		weather = providers.NewOpenWeatherProvider(client, cfg.OpenWeatherAPIKey, providers.WithBackoff(backoff))
	case "weatherapi":
		weather = providers.NewWeatherAPIProvider(client, cfg.WeatherAPIKey, providers.WithBackoff(backoff))
	default:
		// Open-Meteo does not require an API key.
		weather = providers.NewOpenMeteoProvider(client, providers.WithBackoff(backoff))
	}
	return geo, weather
}

func restore(logger zerolog.Logger, snaps persist.Snapshotter, s cities.Store) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	recs, err := snaps.Load(ctx)
	switch {
	case errors.Is(err, persist.ErrNoSnapshot):
		logger.Info().Str("location", snaps.Location()).Msg("no snapshot to restore")
		return
	case err != nil:
		logger.Fatal().Err(err).Str("location", snaps.Location()).Msg("failed to read snapshot")
	}

	if err := s.ReplaceAll(recs); err != nil {
		logger.Fatal().Err(err).Msg("failed to restore snapshot")
	}
	logger.Info().Int("cities", len(recs)).Str("location", snaps.Location()).Msg("snapshot restored")
}
