package audit

import (
	"time"

	id "khata/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/regulatory significance.
	// Every committed ledger mutation lands here; retention is measured in
	// years because deposit books are inspectable records.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to security monitoring and forensics.
	// Rejected mutations land here: scope violations, role violations and
	// policy rejections all feed alerting on misbehaving collectors.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers events useful for debugging and operational visibility.
	// Batch summaries and sweep outcomes; can be sampled, shorter retention.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture every attempted ledger
// mutation. Keep it transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	// Action is one of the AuditEvent constants.
	Action string
	// EntityType and EntityID name the record acted on ("deposit", "account").
	EntityType string
	EntityID   string
	// AccountID is set whenever the event concerns a specific account,
	// including deposit events. Zero for batch-level events.
	AccountID id.AccountID
	// PerformedBy is the caller; Role is their role at the time of the call.
	PerformedBy id.UserID
	Role        string
	// Reason carries the machine-readable rejection reason for *_FAILED
	// events. Empty on success events.
	Reason string
	// Details holds action-specific fields (amounts, dates, counts).
	// Values must be JSON-safe: strings, numbers, bools, nested maps.
	Details map[string]any
	// Request correlation and client forensics.
	RequestID string
	ClientIP  string
	Device    string
}

type AuditEvent string

const (
	// Deposit mutations. The *_FAILED variants record rejected attempts;
	// the attempt event for deletes is recorded before validation runs.
	EventDepositCreated       AuditEvent = "CREATE_DEPOSIT"
	EventDepositCreateFailed  AuditEvent = "CREATE_DEPOSIT_FAILED"
	EventDepositUpdated       AuditEvent = "UPDATE_DEPOSIT"
	EventDepositUpdateFailed  AuditEvent = "UPDATE_DEPOSIT_FAILED"
	EventDepositDeleted       AuditEvent = "DELETE_DEPOSIT"
	EventDepositDeleteFailed  AuditEvent = "DELETE_DEPOSIT_FAILED"
	EventDepositDeleteAttempt AuditEvent = "DELETE_DEPOSIT_ATTEMPT"

	// Batch events
	EventBulkDepositsCreated AuditEvent = "BULK_CREATE_DEPOSITS"

	// Account lifecycle events
	EventAccountOpened  AuditEvent = "OPEN_ACCOUNT"
	EventAccountMatured AuditEvent = "ACCOUNT_MATURED"

	// Sweep events
	EventLedgerDriftRepaired AuditEvent = "LEDGER_DRIFT_REPAIRED"
)

// eventCategories maps each audit event to its category.
// Compliance: committed ledger mutations, long retention required.
// Security: rejected attempts, feed into SIEM and alerting.
// Operations: batch and sweep summaries, can be sampled.
var eventCategories = map[AuditEvent]EventCategory{
	EventDepositCreated:       CategoryCompliance,
	EventDepositUpdated:       CategoryCompliance,
	EventDepositDeleted:       CategoryCompliance,
	EventDepositDeleteAttempt: CategoryCompliance,
	EventAccountOpened:        CategoryCompliance,
	EventAccountMatured:       CategoryCompliance,

	EventDepositCreateFailed: CategorySecurity,
	EventDepositUpdateFailed: CategorySecurity,
	EventDepositDeleteFailed: CategorySecurity,

	EventBulkDepositsCreated: CategoryOperations,
	EventLedgerDriftRepaired: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}
