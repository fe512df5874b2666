package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	id "khata/pkg/domain"
	audit "khata/pkg/platform/audit"
)

// InMemoryStore keeps audit events and their outbox entries in process.
// It backs tests and the dev profile with the same surface as the postgres
// store: append, query, and outbox relay.
type InMemoryStore struct {
	mu        sync.RWMutex
	events    []audit.Event
	outbox    []audit.OutboxEntry
	published map[uuid.UUID]bool
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{published: make(map[uuid.UUID]bool)}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
	s.outbox = nil
	s.published = make(map[uuid.UUID]bool)
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	eventID := uuid.New()
	payload, err := audit.PayloadFor(eventID, event)
	if err != nil {
		return err
	}
	aggregateType, aggregateID := audit.AggregateFor(eventID, event)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	s.outbox = append(s.outbox, audit.OutboxEntry{
		ID:            eventID,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     event.Action,
		Payload:       payload,
		CreatedAt:     event.Timestamp,
	})
	return nil
}

// ListByAccount returns events touching one account, newest first.
func (s *InMemoryStore) ListByAccount(_ context.Context, accountID id.AccountID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []audit.Event
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].AccountID == accountID {
			out = append(out, s.events[i])
		}
	}
	return out, nil
}

// ListRecent returns the most recent N events across all accounts, newest first.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.events) {
		limit = len(s.events)
	}

	out := make([]audit.Event, 0, limit)
	for i := len(s.events) - 1; i >= len(s.events)-limit; i-- {
		out = append(out, s.events[i])
	}
	return out, nil
}

// NextBatch returns up to limit unpublished outbox entries in append order.
func (s *InMemoryStore) NextBatch(_ context.Context, limit int) ([]audit.OutboxEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []audit.OutboxEntry
	for _, entry := range s.outbox {
		if s.published[entry.ID] {
			continue
		}
		out = append(out, entry)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// MarkPublished flags outbox entries as relayed.
func (s *InMemoryStore) MarkPublished(_ context.Context, ids []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entryID := range ids {
		s.published[entryID] = true
	}
	return nil
}
