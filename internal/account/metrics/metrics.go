package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the account module.
// Tracks account openings and maturities.
type Metrics struct {
	AccountsOpened  *prometheus.CounterVec
	AccountsMatured prometheus.Counter
}

// New creates a new Metrics instance with all account module metrics registered.
func New() *Metrics {
	return &Metrics{
		AccountsOpened: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "khata_accounts_opened_total",
			Help: "Total number of accounts opened, by scheme",
		}, []string{"scheme"}),
		AccountsMatured: promauto.NewCounter(prometheus.CounterOpts{
			Name: "khata_accounts_matured_total",
			Help: "Total number of accounts marked matured",
		}),
	}
}

// IncrementOpened records a successful account opening.
func (m *Metrics) IncrementOpened(scheme string) {
	if m != nil {
		m.AccountsOpened.WithLabelValues(scheme).Inc()
	}
}

// IncrementMatured records an account reaching its terminal status.
func (m *Metrics) IncrementMatured() {
	if m != nil {
		m.AccountsMatured.Inc()
	}
}
