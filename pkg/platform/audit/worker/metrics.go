package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the audit outbox relay.
type Metrics struct {
	Published    prometheus.Counter
	Failed       prometheus.Counter
	BreakerState prometheus.Gauge
}

// NewMetrics creates a Metrics instance with relay metrics registered.
func NewMetrics() *Metrics {
	return &Metrics{
		Published: promauto.NewCounter(prometheus.CounterOpts{
			Name: "khata_audit_relay_published_total",
			Help: "Total number of audit events exported to the broker",
		}),
		Failed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "khata_audit_relay_failures_total",
			Help: "Total number of failed audit export attempts",
		}),
		BreakerState: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "khata_audit_relay_breaker_state",
			Help: "Relay circuit breaker state (0=closed/healthy, 1=open/unhealthy)",
		}),
	}
}

// AddPublished adds to the published counter.
func (m *Metrics) AddPublished(n int) {
	m.Published.Add(float64(n))
}

// IncFailed increments the failure counter.
func (m *Metrics) IncFailed() {
	m.Failed.Inc()
}

// SetBreakerState sets the breaker state gauge.
func (m *Metrics) SetBreakerState(open bool) {
	if open {
		m.BreakerState.Set(1)
	} else {
		m.BreakerState.Set(0)
	}
}
