package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "khata/pkg/domain"
	audit "khata/pkg/platform/audit"
	txcontext "khata/pkg/platform/tx"
)

// Store persists audit events using the transactional outbox pattern. Each
// Append writes two rows: the queryable event row and the outbox row the
// relay worker exports to the broker. Both join the caller's transaction
// when one is in context, so an audit record commits or rolls back with the
// ledger mutation it describes.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Append writes the event row and its outbox entry.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := uuid.New()

	// Always derive category from action - eventCategories is the source of truth.
	category := audit.AuditEvent(event.Action).Category()

	var details []byte
	if event.Details != nil {
		var err error
		details, err = json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
	}

	var accountID *uuid.UUID
	if !event.AccountID.IsNil() {
		u := uuid.UUID(event.AccountID)
		accountID = &u
	}
	var performedBy *uuid.UUID
	if !event.PerformedBy.IsNil() {
		u := uuid.UUID(event.PerformedBy)
		performedBy = &u
	}

	eventQuery := `
		INSERT INTO audit_events (
			id, category, timestamp, action, entity_type, entity_id,
			account_id, performed_by, role, reason, details,
			request_id, client_ip, device
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.execer(ctx).ExecContext(ctx, eventQuery,
		eventID,
		string(category),
		event.Timestamp,
		event.Action,
		event.EntityType,
		event.EntityID,
		accountID,
		performedBy,
		event.Role,
		event.Reason,
		details,
		event.RequestID,
		event.ClientIP,
		event.Device,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}

	payload, err := audit.PayloadFor(eventID, event)
	if err != nil {
		return err
	}
	aggregateType, aggregateID := audit.AggregateFor(eventID, event)

	outboxQuery := `
		INSERT INTO audit_outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.execer(ctx).ExecContext(ctx, outboxQuery,
		eventID,
		aggregateType,
		aggregateID,
		event.Action,
		payload,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert audit outbox entry: %w", err)
	}
	return nil
}

// ListByAccount returns events touching one account, newest first.
func (s *Store) ListByAccount(ctx context.Context, accountID id.AccountID) ([]audit.Event, error) {
	query := `
		SELECT category, timestamp, action, entity_type, entity_id,
			   account_id, performed_by, role, reason, details,
			   request_id, client_ip, device
		FROM audit_events
		WHERE account_id = $1
		ORDER BY timestamp DESC
	`

	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(accountID))
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return s.scanEvents(rows)
}

// ListRecent returns the N most recent events, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	query := `
		SELECT category, timestamp, action, entity_type, entity_id,
			   account_id, performed_by, role, reason, details,
			   request_id, client_ip, device
		FROM audit_events
		ORDER BY timestamp DESC
		LIMIT $1
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return s.scanEvents(rows)
}

// NextBatch returns up to limit unpublished outbox entries, oldest first.
func (s *Store) NextBatch(ctx context.Context, limit int) ([]audit.OutboxEntry, error) {
	query := `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at
		FROM audit_outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit outbox: %w", err)
	}
	defer rows.Close()

	var entries []audit.OutboxEntry
	for rows.Next() {
		var entry audit.OutboxEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.AggregateType,
			&entry.AggregateID,
			&entry.EventType,
			&entry.Payload,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit outbox entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit outbox: %w", err)
	}
	return entries, nil
}

// MarkPublished stamps outbox entries as relayed to the broker.
func (s *Store) MarkPublished(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	query := `UPDATE audit_outbox SET published_at = $1 WHERE id = ANY($2)`
	if _, err := s.db.ExecContext(ctx, query, time.Now(), ids); err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}

// scanEvents scans multiple rows into an audit.Event slice.
func (s *Store) scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event

	for rows.Next() {
		var (
			category    string
			event       audit.Event
			accountID   *uuid.UUID
			performedBy *uuid.UUID
			details     []byte
		)

		err := rows.Scan(
			&category,
			&event.Timestamp,
			&event.Action,
			&event.EntityType,
			&event.EntityID,
			&accountID,
			&performedBy,
			&event.Role,
			&event.Reason,
			&details,
			&event.RequestID,
			&event.ClientIP,
			&event.Device,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}

		event.Category = audit.EventCategory(category)
		if accountID != nil {
			event.AccountID = id.AccountID(*accountID)
		}
		if performedBy != nil {
			event.PerformedBy = id.UserID(*performedBy)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &event.Details); err != nil {
				return nil, fmt.Errorf("unmarshal audit details: %w", err)
			}
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}

	return events, nil
}
