// Package handler exposes account management over HTTP. Opening accounts is
// an admin operation; reads are scoped by the caller's role.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"khata/internal/account/models"
	"khata/internal/account/service"
	"khata/internal/transport/http/shared"
	id "khata/pkg/domain"
	dErrors "khata/pkg/domain-errors"
	"khata/pkg/platform/middleware/auth"
	request "khata/pkg/platform/middleware/request"
)

// Service defines the account operations the handler fronts.
type Service interface {
	Open(ctx context.Context, params service.OpenParams) (*models.Account, error)
	Get(ctx context.Context, accountID id.AccountID) (*models.Account, error)
	List(ctx context.Context) ([]*models.Account, error)
}

// Handler handles account endpoints.
type Handler struct {
	logger   *slog.Logger
	accounts Service
}

// New creates a new account Handler.
func New(accounts Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, accounts: accounts}
}

// Register mounts the account routes. The surrounding router applies the
// shared middleware chain including authentication.
func (h *Handler) Register(r chi.Router) {
	r.Route("/accounts", func(r chi.Router) {
		r.With(auth.RequireRoles(h.logger, id.RoleAdmin)).Post("/", h.handleOpen)
		r.Get("/", h.handleList)
		r.Get("/{accountID}", h.handleGet)
	})
}

type accountResponse struct {
	Status  string          `json:"status"`
	Account *models.Account `json:"account"`
}

type accountListResponse struct {
	Status   string            `json:"status"`
	Accounts []*models.Account `json:"accounts"`
}

func (h *Handler) handleOpen(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req OpenAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid open account request",
			"request_id", request.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}

	params, err := req.Parse()
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	account, err := h.accounts.Open(ctx, params)
	if err != nil {
		h.logError(ctx, "failed to open account", err)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusCreated, accountResponse{Status: "success", Account: account})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accountID, err := id.ParseAccountID(chi.URLParam(r, "accountID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	account, err := h.accounts.Get(ctx, accountID)
	if err != nil {
		h.logError(ctx, "failed to load account", err)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, accountResponse{Status: "success", Account: account})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accounts, err := h.accounts.List(ctx)
	if err != nil {
		h.logError(ctx, "failed to list accounts", err)
		shared.WriteError(w, err)
		return
	}
	if accounts == nil {
		accounts = []*models.Account{}
	}

	shared.WriteJSON(w, http.StatusOK, accountListResponse{Status: "success", Accounts: accounts})
}

// logError keeps rejection noise at warn and real failures at error.
func (h *Handler) logError(ctx context.Context, msg string, err error) {
	attrs := []any{
		"request_id", request.GetRequestID(ctx),
		"error", err.Error(),
	}
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInternal, dErrors.CodeDefect, dErrors.CodeUnavailable:
		h.logger.ErrorContext(ctx, msg, attrs...)
	default:
		h.logger.WarnContext(ctx, msg, attrs...)
	}
}
