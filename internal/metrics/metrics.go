// Package metrics exports enrichment and query counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/i474232898/city-weather/internal/cities"
)

const namespace = "cityweather"

// Collector implements cities.Observer on its own registry.
type Collector struct {
	registry *prometheus.Registry

	runs     *prometheus.CounterVec
	outcomes *prometheus.CounterVec
	duration prometheus.Histogram
	nearest  *prometheus.CounterVec
}

var _ cities.Observer = (*Collector)(nil)

// New registers the collectors plus the Go and process collectors.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_runs_total",
			Help:      "Enrichment runs by final status.",
		}, []string{"status"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "city_outcomes_total",
			Help:      "Per-city enrichment outcomes.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "enrichment_duration_seconds",
			Help:      "Wall time of enrichment runs.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		nearest: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nearest_queries_total",
			Help:      "Closest-city queries by result.",
		}, []string{"result"}),
	}

	c.registry.MustRegister(
		c.runs, c.outcomes, c.duration, c.nearest,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) RunCompleted(s cities.Summary, elapsed time.Duration) {
	c.runs.WithLabelValues(string(s.Status)).Inc()
	c.duration.Observe(elapsed.Seconds())
}

func (c *Collector) CityCompleted(outcome string) {
	c.outcomes.WithLabelValues(outcome).Inc()
}

func (c *Collector) NearestServed(result string) {
	c.nearest.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
