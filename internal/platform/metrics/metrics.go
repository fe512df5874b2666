package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the application-level Prometheus metrics. Feature packages
// register their own metrics next to their services; this package covers the
// HTTP surface shared by every handler.
type Metrics struct {
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPInFlight        prometheus.Gauge
}

// New creates and registers all application-level Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "khata_http_request_duration_seconds",
			Help:    "Duration of HTTP requests by route, method and status",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"route", "method", "status"}),

		HTTPRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "khata_http_requests_total",
			Help: "Total HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),

		HTTPInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "khata_http_requests_in_flight",
			Help: "Current number of HTTP requests being served",
		}),
	}
}

// ObserveRequest records one completed HTTP request.
func (m *Metrics) ObserveRequest(route, method, status string, d time.Duration) {
	if m != nil {
		m.HTTPRequestDuration.WithLabelValues(route, method, status).Observe(d.Seconds())
		m.HTTPRequestsTotal.WithLabelValues(route, method, status).Inc()
	}
}

// RequestStarted marks a request as in flight.
func (m *Metrics) RequestStarted() {
	if m != nil {
		m.HTTPInFlight.Inc()
	}
}

// RequestFinished marks a request as no longer in flight.
func (m *Metrics) RequestFinished() {
	if m != nil {
		m.HTTPInFlight.Dec()
	}
}
