// Package worker relays audit events from the transactional outbox to the
// broker. The database row is the source of truth; the relay is at-least-once
// and ordered, so consumers must tolerate redelivery but never gaps.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	audit "khata/pkg/platform/audit"
	"khata/pkg/platform/circuit"
)

// OutboxStore is the slice of the audit store the relay needs.
type OutboxStore interface {
	NextBatch(ctx context.Context, limit int) ([]audit.OutboxEntry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID) error
}

// Producer publishes one outbox payload to the broker.
type Producer interface {
	Produce(ctx context.Context, key string, payload []byte) error
}

// Relay polls the outbox and exports entries in commit order. A failed
// produce stops the current batch so ordering survives broker outages; the
// breaker sheds produce attempts while the broker stays down.
type Relay struct {
	store    OutboxStore
	producer Producer
	breaker  *circuit.Breaker
	logger   *slog.Logger
	metrics  *Metrics

	interval  time.Duration
	batchSize int
}

// Option configures the Relay.
type Option func(*Relay)

// WithLogger sets the relay's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) { r.logger = logger }
}

// WithMetrics sets the relay's metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(r *Relay) { r.metrics = m }
}

// WithInterval sets the outbox poll interval.
func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithBatchSize sets how many entries one poll relays at most.
func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// NewRelay creates a relay over the outbox store and producer.
func NewRelay(store OutboxStore, producer Producer, opts ...Option) *Relay {
	r := &Relay{
		store:     store,
		producer:  producer,
		breaker:   circuit.New("audit-relay", circuit.WithFailureThreshold(5), circuit.WithSuccessThreshold(2)),
		interval:  2 * time.Second,
		batchSize: 100,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls until the context is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.relayOnce(ctx); err != nil && r.logger != nil {
				r.logger.WarnContext(ctx, "audit relay pass failed", "error", err)
			}
		}
	}
}

// relayOnce exports one batch. While the breaker is open the batch shrinks
// to a single probe entry; two probe successes close the breaker again.
func (r *Relay) relayOnce(ctx context.Context) (int, error) {
	limit := r.batchSize
	if r.breaker.IsOpen() {
		limit = 1
	}

	entries, err := r.store.NextBatch(ctx, limit)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	var published []uuid.UUID
	for _, entry := range entries {
		if err := r.producer.Produce(ctx, entry.AggregateID, entry.Payload); err != nil {
			_, change := r.breaker.RecordFailure()
			if r.metrics != nil {
				r.metrics.IncFailed()
				r.metrics.SetBreakerState(r.breaker.IsOpen())
			}
			if r.logger != nil {
				r.logger.WarnContext(ctx, "audit export failed",
					"outbox_id", entry.ID.String(),
					"event_type", entry.EventType,
					"error", err,
				)
				if change.Opened {
					r.logger.WarnContext(ctx, "audit relay breaker opened")
				}
			}
			// Stop the batch: exporting past a failure would reorder events.
			break
		}

		_, change := r.breaker.RecordSuccess()
		if change.Closed && r.logger != nil {
			r.logger.InfoContext(ctx, "audit relay breaker closed")
		}
		published = append(published, entry.ID)
	}

	if len(published) > 0 {
		if err := r.store.MarkPublished(ctx, published); err != nil {
			// Entries stay unpublished and will be re-sent; consumers
			// dedupe on event ID.
			return 0, err
		}
		if r.metrics != nil {
			r.metrics.AddPublished(len(published))
			r.metrics.SetBreakerState(r.breaker.IsOpen())
		}
	}
	return len(published), nil
}
