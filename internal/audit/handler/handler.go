// Package handler exposes the audit trail to admins. Events are read
// straight from the audit store; the endpoint never mutates anything.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"khata/internal/transport/http/shared"
	id "khata/pkg/domain"
	dErrors "khata/pkg/domain-errors"
	audit "khata/pkg/platform/audit"
	"khata/pkg/platform/middleware/auth"
	request "khata/pkg/platform/middleware/request"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Source is the query surface the handler reads from. The audit publisher
// satisfies it.
type Source interface {
	List(ctx context.Context, limit int) ([]audit.Event, error)
}

// Handler serves audit trail queries.
type Handler struct {
	logger *slog.Logger
	events Source
}

// New creates a new audit Handler.
func New(events Source, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, events: events}
}

// Register mounts the audit routes.
func (h *Handler) Register(r chi.Router) {
	admins := auth.RequireRoles(h.logger, id.RoleAdmin)

	r.Route("/audit", func(r chi.Router) {
		r.With(admins).Get("/events", h.handleListEvents)
	})
}

// eventView is the wire form of an audit event. Identifier fields render as
// strings and drop out when unset, so batch and sweep events stay compact.
type eventView struct {
	Timestamp   time.Time           `json:"timestamp"`
	Category    audit.EventCategory `json:"category"`
	Action      string              `json:"action"`
	EntityType  string              `json:"entity_type,omitempty"`
	EntityID    string              `json:"entity_id,omitempty"`
	AccountID   string              `json:"account_id,omitempty"`
	PerformedBy string              `json:"performed_by,omitempty"`
	Role        string              `json:"role,omitempty"`
	Reason      string              `json:"reason,omitempty"`
	Details     map[string]any      `json:"details,omitempty"`
	RequestID   string              `json:"request_id,omitempty"`
	ClientIP    string              `json:"client_ip,omitempty"`
	Device      string              `json:"device,omitempty"`
}

type eventsResponse struct {
	Status string      `json:"status"`
	Events []eventView `json:"events"`
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	events, err := h.events.List(ctx, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list audit events",
			"request_id", request.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}

	views := make([]eventView, 0, len(events))
	for _, event := range events {
		views = append(views, viewOf(event))
	}
	shared.WriteJSON(w, http.StatusOK, eventsResponse{Status: "success", Events: views})
}

// parseLimit applies the paging bounds: absent means the default, anything
// past the cap is clamped rather than rejected.
func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, dErrors.New(dErrors.CodeValidation, "limit must be a positive integer")
	}
	return min(limit, maxLimit), nil
}

func viewOf(event audit.Event) eventView {
	view := eventView{
		Timestamp:  event.Timestamp,
		Category:   event.Category,
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
		view.AccountID = event.AccountID.String()
	}
	if !event.PerformedBy.IsNil() {
		view.PerformedBy = event.PerformedBy.String()
	}
	return view
}
