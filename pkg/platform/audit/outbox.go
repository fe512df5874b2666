package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OutboxEntry is one row of the transactional outbox: an audit event
// serialized for export, written in the same transaction as the event row
// and relayed to the broker by the outbox worker.
type OutboxEntry struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// payload is the JSON structure published to the broker. IDs are strings so
// downstream consumers never deal with Go UUID byte arrays.
type payload struct {
	ID          string         `json:"id"`
	Category    string         `json:"category"`
	Timestamp   string         `json:"timestamp"`
	Action      string         `json:"action"`
	EntityType  string         `json:"entity_type"`
	EntityID    string         `json:"entity_id,omitempty"`
	AccountID   string         `json:"account_id,omitempty"`
	PerformedBy string         `json:"performed_by,omitempty"`
	Role        string         `json:"role,omitempty"`
	Reason      string         `json:"reason,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	RequestID   string         `json:"request_id,omitempty"`
	ClientIP    string         `json:"client_ip,omitempty"`
	Device      string         `json:"device,omitempty"`
}

// PayloadFor serializes an event for the outbox. Both stores use this so the
// wire shape cannot drift between the memory and postgres paths.
func PayloadFor(eventID uuid.UUID, event Event) ([]byte, error) {
	p := payload{
		ID:         eventID.String(),
		Category:   string(event.Category),
		Timestamp:  event.Timestamp.Format(time.RFC3339Nano),
		Action:     event.Action,
		EntityType: event.EntityType,
		EntityID:   event.EntityID,
		Role:       event.Role,
		Reason:     event.Reason,
		Details:    event.Details,
		RequestID:  event.RequestID,
		ClientIP:   event.ClientIP,
		Device:     event.Device,
	}
	if !event.AccountID.IsNil() {
		p.AccountID = event.AccountID.String()
	}
	if !event.PerformedBy.IsNil() {
		p.PerformedBy = event.PerformedBy.String()
	}

	out, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal audit payload: %w", err)
	}
	return out, nil
}

// AggregateFor picks the outbox aggregate for an event: the account when the
// event concerns one, otherwise the event itself.
func AggregateFor(eventID uuid.UUID, event Event) (aggregateType, aggregateID string) {
	if !event.AccountID.IsNil() {
		return "account", event.AccountID.String()
	}
	return "audit", eventID.String()
}
