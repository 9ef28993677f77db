package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/i474232898/city-weather/internal/cities"
	"github.com/i474232898/city-weather/internal/persist"
)

// Enricher runs enrichment passes over the store.
type Enricher interface {
	Enrich(ctx context.Context, scope cities.Scope) (cities.Summary, error)
}

// NearestFinder answers closest-city queries.
type NearestFinder interface {
	Nearest(ctx context.Context, lat, lon float64) (cities.Nearest, error)
}

// Deps are the collaborators the HTTP surface needs.
type Deps struct {
	Store     cities.Store
	Engine    Enricher
	Locator   NearestFinder
	Snapshots persist.Snapshotter
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	Logger  zerolog.Logger
	// AccessLog enables Fiber's request logger.
	AccessLog bool
}

// NewApp builds the Fiber app with the JSON codec, error handler, middleware and routes.
func NewApp(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "city-weather",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          5 * time.Minute,
		BodyLimit:             16 << 20,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ErrorHandler:          NewErrorHandler(d.Logger),
	})

	if d.AccessLog {
		app.Use(logger.New())
	}
	app.Use(recover.New())

	if d.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(d.Metrics))
	}

	RegisterRoutes(app, d)
	return app
}

// NewErrorHandler returns the centralized error response. Domain errors are
// mapped through statusFor; 5xx details are logged, not returned.
func NewErrorHandler(log zerolog.Logger) fiber.ErrorHandler {
	log = log.With().Str("component", "http").Logger()
	return func(c *fiber.Ctx, err error) error {
		code := statusFor(err)
		message := err.Error()

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
		}

		if code >= fiber.StatusInternalServerError {
			log.Error().Err(err).Str("method", c.Method()).Str("path", c.Path()).Msg("request failed")
			message = "internal server error"
		}

		return c.Status(code).JSON(fiber.Map{
			"error":   true,
			"message": message,
		})
	}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, cities.ErrValidation), errors.Is(err, cities.ErrInvalidInput):
		return fiber.StatusBadRequest
	case errors.Is(err, cities.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, cities.ErrEmptyDataset), errors.Is(err, cities.ErrNoCandidates):
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

// cacheControl marks successful GET responses cacheable and everything else no-store.
func cacheControl(c *fiber.Ctx) error {
	err := c.Next()
	if err == nil && c.Method() == fiber.MethodGet && c.Response().StatusCode() < fiber.StatusBadRequest {
		c.Set(fiber.HeaderCacheControl, "public, max-age=3600")
	} else {
		c.Set(fiber.HeaderCacheControl, "no-store")
	}
	return err
}
