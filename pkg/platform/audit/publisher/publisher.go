// Package publisher emits audit events to a store.
//
// The default mode is synchronous and fail-closed: Emit blocks until the
// store write succeeds, and the caller must treat an error as a failed
// operation. Ledger mutations without an audit record are worse than
// rejected mutations.
//
// WithAsyncBuffer switches to buffered emission for low-value event streams
// where dropping under pressure is acceptable. Close drains the buffer.
package publisher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	audit "khata/pkg/platform/audit"
)

// Store is the persistence surface the publisher writes to.
type Store interface {
	Append(ctx context.Context, event audit.Event) error
	ListRecent(ctx context.Context, limit int) ([]audit.Event, error)
}

// Publisher writes audit events to a store, synchronously by default.
type Publisher struct {
	store  Store
	logger *slog.Logger

	inbox   chan audit.Event
	done    chan struct{}
	closing sync.Once
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for the audit log mirror and async-path error
// reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithAsyncBuffer switches the publisher to buffered emission with the given
// capacity. When the buffer is full, events are dropped and logged rather
// than blocking the caller.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.inbox = make(chan audit.Event, size)
	}
}

// NewPublisher creates a publisher over the given store.
func NewPublisher(store Store, opts ...Option) *Publisher {
	p := &Publisher{
		store: store,
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox != nil {
		go p.drain()
	}
	return p
}

// Emit records an audit event. Zero timestamps are stamped here so callers
// never have to remember.
//
// Sync mode: blocks until the store write completes; the error is the
// caller's to act on. Async mode: enqueues and returns nil; a full buffer
// drops the event.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}
	p.mirror(ctx, event)

	if p.inbox == nil {
		return p.store.Append(ctx, event)
	}

	select {
	case p.inbox <- event:
		return nil
	default:
		if p.logger != nil {
			p.logger.Warn("audit buffer full, event dropped",
				"action", event.Action,
				"entity_id", event.EntityID,
			)
		}
		return nil
	}
}

// mirror writes the event to the structured log so operators can follow the
// audit stream without querying the store.
func (p *Publisher) mirror(ctx context.Context, event audit.Event) {
	if p.logger == nil {
		return
	}
	args := []any{
		"event", event.Action,
		"log_type", "audit",
		"category", event.Category,
		"entity_type", event.EntityType,
		"entity_id", event.EntityID,
	}
	if !event.AccountID.IsNil() {
		args = append(args, "account_id", event.AccountID)
	}
	if event.Reason != "" {
		args = append(args, "reason", event.Reason)
	}
	if event.RequestID != "" {
		args = append(args, "request_id", event.RequestID)
	}
	p.logger.InfoContext(ctx, event.Action, args...)
}

// List returns the most recent events, newest first, up to limit.
func (p *Publisher) List(ctx context.Context, limit int) ([]audit.Event, error) {
	return p.store.ListRecent(ctx, limit)
}

// Close drains any buffered events and stops the background writer.
// Safe to call more than once.
func (p *Publisher) Close() {
	p.closing.Do(func() {
		if p.inbox == nil {
			close(p.done)
			return
		}
		close(p.inbox)
		<-p.done
	})
}

func (p *Publisher) drain() {
	defer close(p.done)
	for event := range p.inbox {
		// Detached context: the originating request may be long gone.
		if err := p.store.Append(context.Background(), event); err != nil && p.logger != nil {
			p.logger.Error("audit store append failed",
				"action", event.Action,
				"entity_id", event.EntityID,
				"error", err,
			)
		}
	}
}
