package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the deposit module.
// Tracks admissions, rejections by reason and bulk batch outcomes.
type Metrics struct {
	Attempts        *prometheus.CounterVec
	Admitted        *prometheus.CounterVec
	Rejected        *prometheus.CounterVec
	BulkBatches     prometheus.Counter
	BulkItems       *prometheus.CounterVec
	CommitConflicts prometheus.Counter
	DriftRepaired   prometheus.Counter
}

// New creates a new Metrics instance with all deposit module metrics registered.
func New() *Metrics {
	return &Metrics{
		Attempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "khata_deposit_attempts_total",
			Help: "Total number of deposit write attempts, by operation",
		}, []string{"operation"}),
		Admitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "khata_deposit_admitted_total",
			Help: "Total number of deposit writes admitted by the policy checks, by operation",
		}, []string{"operation"}),
		Rejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "khata_deposit_rejected_total",
			Help: "Total number of deposit writes rejected, by operation and reason",
		}, []string{"operation", "reason"}),
		BulkBatches: promauto.NewCounter(prometheus.CounterOpts{
			Name: "khata_deposit_bulk_batches_total",
			Help: "Total number of bulk deposit batches processed",
		}),
		BulkItems: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "khata_deposit_bulk_items_total",
			Help: "Total number of bulk deposit items, by outcome",
		}, []string{"outcome"}),
		CommitConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "khata_deposit_commit_conflicts_total",
			Help: "Total number of deposit commits lost to a concurrent account write",
		}),
		DriftRepaired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "khata_ledger_drift_repaired_total",
			Help: "Total number of accounts whose stored figures were repaired from deposit history",
		}),
	}
}

// IncrementAttempt records one deposit write attempt.
func (m *Metrics) IncrementAttempt(operation string) {
	if m != nil {
		m.Attempts.WithLabelValues(operation).Inc()
	}
}

// IncrementAdmitted records one admitted deposit write.
func (m *Metrics) IncrementAdmitted(operation string) {
	if m != nil {
		m.Admitted.WithLabelValues(operation).Inc()
	}
}

// IncrementRejected records one rejected deposit write. The reason label
// carries the stable machine reason, or the error code when none is attached.
func (m *Metrics) IncrementRejected(operation, reason string) {
	if m != nil {
		m.Rejected.WithLabelValues(operation, reason).Inc()
	}
}

// IncrementBulkBatch records one processed bulk batch.
func (m *Metrics) IncrementBulkBatch() {
	if m != nil {
		m.BulkBatches.Inc()
	}
}

// AddBulkItems records bulk item outcomes ("successful" or "failed").
func (m *Metrics) AddBulkItems(outcome string, n int) {
	if m != nil && n > 0 {
		m.BulkItems.WithLabelValues(outcome).Add(float64(n))
	}
}

// IncrementCommitConflict records a commit lost to a concurrent writer.
func (m *Metrics) IncrementCommitConflict() {
	if m != nil {
		m.CommitConflicts.Inc()
	}
}

// IncrementDriftRepaired records one account repaired by the drift sweep.
func (m *Metrics) IncrementDriftRepaired() {
	if m != nil {
		m.DriftRepaired.Inc()
	}
}
