package utils

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all prometheus metrics on a private registry
type Metrics struct {
	registry *prometheus.Registry

	CyclesTotal        *prometheus.CounterVec
	ExtractionAttempts *prometheus.CounterVec
	CascadeHits        *prometheus.CounterVec
	PriceChanges       *prometheus.CounterVec
	DeliveryRetries    prometheus.Counter
	OpenPages          prometheus.Gauge
	CycleDuration      *prometheus.HistogramVec
}

// NewMetrics creates and registers all collectors under namespace
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_cycles_total",
			Help:      "Refresh cycles by site and final outcome",
		}, []string{"site", "outcome"}),
		ExtractionAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_attempts_total",
			Help:      "Extraction attempts made by the orchestrator",
		}, []string{"site"}),
		CascadeHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cascade_method_hits_total",
			Help:      "Which cascade method produced the rooms",
		}, []string{"site", "method"}),
		PriceChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_changes_total",
			Help:      "Detected price change events",
		}, []string{"site", "direction"}),
		DeliveryRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_retries_total",
			Help:      "Price update deliveries that had to be retried",
		}),
		OpenPages: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_pages",
			Help:      "Page contexts currently open",
		}),
		CycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_cycle_seconds",
			Help:      "Time from opening a page to delivering its snapshot",
			Buckets:   []float64{1, 2, 5, 10, 15, 20, 30},
		}, []string{"site"}),
	}
	reg.MustRegister(
		m.CyclesTotal,
		m.ExtractionAttempts,
		m.CascadeHits,
		m.PriceChanges,
		m.DeliveryRetries,
		m.OpenPages,
		m.CycleDuration,
	)
	return m
}

// Registry exposes the underlying registry, mostly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
