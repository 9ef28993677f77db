package httpapi

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/city-weather/internal/cities"
	"github.com/i474232898/city-weather/internal/persist"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, d Deps) {
	h := &handlers{Deps: d}

	v1 := app.Group("/api/v1", cacheControl)

	v1.Get("/", h.index)
	v1.Get("/health", h.health)
	v1.Post("/upload-cities", h.uploadCities)
	v1.Post("/enrich-data", h.enrichData)
	v1.Post("/add-city", h.addCity)
	v1.Post("/closest-city", h.closestCity)
	v1.Delete("/delete-city/:name", h.deleteCity)
	v1.Get("/get-all-cities", h.getAllCities)
	v1.Post("/save-cities", h.saveCities)
	v1.Get("/export-cities", h.exportCities)
}

type handlers struct {
	Deps
}

type addCityRequest struct {
	CityName string `json:"city_name" validate:"required"`
}

type closestCityRequest struct {
	Lat *float64 `json:"lat" validate:"required,latitude"`
	Lon *float64 `json:"lon" validate:"required,longitude"`
}

// cityView is the flat JSON shape of a record; absent values render as null.
type cityView struct {
	Name          string   `json:"city_name"`
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
	Weather       *string  `json:"weather"`
	Temperature   *float64 `json:"temperature"`
	FailureReason string   `json:"failure_reason,omitempty"`
}

func toView(r cities.Record) cityView {
	v := cityView{Name: r.Name, FailureReason: r.FailureReason}
	if r.Coordinates != nil {
		lat, lon := r.Coordinates.Latitude, r.Coordinates.Longitude
		v.Latitude, v.Longitude = &lat, &lon
	}
	if r.Weather != nil {
		desc, temp := r.Weather.Description, r.Weather.TemperatureC
		v.Weather, v.Temperature = &desc, &temp
	}
	return v
}

type enrichResponse struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	cities.Summary
}

func (h *handlers) index(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"message": "City Weather API is running"})
}

func (h *handlers) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"cities": h.Store.Len(),
	})
}

func (h *handlers) uploadCities(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "missing file")
	}

	f, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	records, err := persist.ReadCSV(f)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "file contains no city names")
	}

	if err := h.Store.ReplaceAll(records); err != nil {
		return err
	}

	count := h.Store.Len()
	h.Logger.Info().Int("cities", count).Str("file", fh.Filename).Msg("cities loaded")
	return c.JSON(fiber.Map{
		"message": fmt.Sprintf("%d cities loaded successfully.", count),
		"count":   count,
	})
}

func (h *handlers) enrichData(c *fiber.Ctx) error {
	scope := cities.AllPending()
	if c.QueryBool("force") {
		scope = cities.AllForced()
	}

	summary, err := h.Engine.Enrich(c.UserContext(), scope)
	switch {
	case errors.Is(err, cities.ErrTotalFailure):
		return c.Status(fiber.StatusInternalServerError).JSON(enrichResponse{
			Error:   "Failed to enrich any cities.",
			Summary: summary,
		})
	case err != nil:
		return err
	}

	status := fiber.StatusOK
	if summary.Status == cities.StatusPartialSuccess {
		status = fiber.StatusMultiStatus
	}
	return c.Status(status).JSON(enrichResponse{
		Message: "Coordinates and weather enrichment completed.",
		Summary: summary,
	})
}

func (h *handlers) addCity(c *fiber.Ctx) error {
	var req addCityRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "missing 'city_name' in request body")
	}

	rec, created, err := h.Store.Add(req.CityName)
	if err != nil {
		return err
	}
	if !created {
		return c.JSON(fiber.Map{
			"message":      fmt.Sprintf("City '%s' already exists.", rec.Name),
			"total_cities": h.Store.Len(),
			"new":          false,
			"city":         toView(rec),
		})
	}

	summary, err := h.Engine.Enrich(c.UserContext(), cities.Single(rec.Name))
	if err != nil && !errors.Is(err, cities.ErrTotalFailure) {
		return err
	}

	current, ok := h.Store.Get(rec.Name)
	if !ok {
		return fmt.Errorf("%w: city %q removed during enrichment", cities.ErrNotFound, rec.Name)
	}

	if err != nil || summary.FailedCount > 0 {
		return c.Status(fiber.StatusFailedDependency).JSON(fiber.Map{
			"error":        fmt.Sprintf("Failed to enrich city '%s'.", rec.Name),
			"reason":       current.FailureReason,
			"total_cities": h.Store.Len(),
			"city":         toView(current),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":      fmt.Sprintf("City '%s' added and enriched successfully.", rec.Name),
		"total_cities": h.Store.Len(),
		"new":          true,
		"city":         toView(current),
	})
}

func (h *handlers) closestCity(c *fiber.Ctx) error {
	var req closestCityRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "missing or invalid 'lat' or 'lon'")
	}

	res, err := h.Locator.Nearest(c.UserContext(), *req.Lat, *req.Lon)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (h *handlers) deleteCity(c *fiber.Ctx) error {
	if h.Store.IsEmpty() {
		return cities.ErrEmptyDataset
	}

	name, err := url.PathUnescape(c.Params("name"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid city name")
	}
	if !h.Store.Delete(name) {
		return fmt.Errorf("%w: %q", cities.ErrNotFound, name)
	}

	return c.JSON(fiber.Map{
		"message":      fmt.Sprintf("City '%s' removed successfully.", name),
		"total_cities": h.Store.Len(),
	})
}

func (h *handlers) getAllCities(c *fiber.Ctx) error {
	if h.Store.IsEmpty() {
		return cities.ErrEmptyDataset
	}

	recs := h.Store.List()
	views := make([]cityView, 0, len(recs))
	for _, r := range recs {
		views = append(views, toView(r))
	}
	return c.JSON(fiber.Map{
		"cities": views,
		"count":  len(views),
	})
}

func (h *handlers) saveCities(c *fiber.Ctx) error {
	if h.Store.IsEmpty() {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "no data to save")
	}
	if h.Snapshots == nil {
		return fmt.Errorf("%w: persistence not configured", cities.ErrInternal)
	}

	recs := h.Store.List()
	if err := h.Snapshots.Save(c.UserContext(), recs); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	return c.JSON(fiber.Map{
		"message":   "City list saved successfully.",
		"file_path": h.Snapshots.Location(),
		"count":     len(recs),
	})
}

func (h *handlers) exportCities(c *fiber.Ctx) error {
	if h.Store.IsEmpty() {
		return fiber.NewError(fiber.StatusNotFound, "no data available to export")
	}

	var buf bytes.Buffer
	if err := persist.WriteCSV(&buf, h.Store.List()); err != nil {
		return fmt.Errorf("render csv: %w", err)
	}

	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="cities.csv"`)
	return c.Send(buf.Bytes())
}
