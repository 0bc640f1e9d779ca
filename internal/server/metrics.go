package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the API.
type Metrics struct {
	registry *prometheus.Registry

	classifications *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	batchItems      *prometheus.CounterVec
	catalogTerms    prometheus.Gauge
}

// NewMetrics creates the metric set on its own registry. A nil registry
// gets a fresh one, which keeps tests from colliding on re-registration.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		classifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "termmapd_classification_requests_total",
			Help: "Classification requests by method and result status.",
		}, []string{"method", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "termmapd_classification_duration_seconds",
			Help:    "Classification request duration in seconds by method.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"method"}),
		batchItems: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "termmapd_batch_items_total",
			Help: "Batch classification items by result status.",
		}, []string{"status"}),
		catalogTerms: factory.NewGauge(prometheus.GaugeOpts{
			Name: "termmapd_catalog_terms",
			Help: "Number of business terms currently loaded.",
		}),
	}
}

// Gatherer exposes the underlying registry for the /metrics handler.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// ObserveClassification records one classification request.
func (m *Metrics) ObserveClassification(status, method string, duration time.Duration) {
	m.classifications.WithLabelValues(method, status).Inc()
	m.duration.WithLabelValues(method).Observe(duration.Seconds())
}

// ObserveBatchItem records one settled batch item.
func (m *Metrics) ObserveBatchItem(status string) {
	m.batchItems.WithLabelValues(status).Inc()
}

// SetCatalogTerms records the loaded catalog size.
func (m *Metrics) SetCatalogTerms(count int) {
	m.catalogTerms.Set(float64(count))
}
