// Package handler exposes the deposit pipeline over HTTP. Collection is
// open to agents, managers and admins; corrections and deletions are an
// admin surface. Every response carries the account state re-derived from
// the full deposit history.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	accmodels "khata/internal/account/models"
	"khata/internal/deposit/models"
	"khata/internal/deposit/service"
	"khata/internal/transport/http/shared"
	id "khata/pkg/domain"
	dErrors "khata/pkg/domain-errors"
	"khata/pkg/platform/middleware/auth"
	request "khata/pkg/platform/middleware/request"
)

// Service defines the deposit operations the handler fronts.
type Service interface {
	Create(ctx context.Context, params service.CreateParams) (*service.Receipt, error)
	Update(ctx context.Context, params service.UpdateParams) (*service.Receipt, error)
	Delete(ctx context.Context, depositID id.DepositID) (*service.Receipt, error)
	BulkCreate(ctx context.Context, items []service.BulkItem) (*service.BulkResult, error)
	EligibleAccounts(ctx context.Context) ([]service.EligibleAccount, error)
	History(ctx context.Context, accountID id.AccountID) ([]*models.Deposit, error)
}

// Handler handles deposit endpoints.
type Handler struct {
	logger   *slog.Logger
	deposits Service
}

// New creates a new deposit Handler.
func New(deposits Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, deposits: deposits}
}

// Register mounts the deposit routes. The surrounding router applies the
// shared middleware chain including authentication; history hangs off the
// account subtree because that is the resource it reads.
func (h *Handler) Register(r chi.Router) {
	collectors := auth.RequireRoles(h.logger, id.RoleAgent, id.RoleManager, id.RoleAdmin)
	agents := auth.RequireRoles(h.logger, id.RoleAgent)
	admins := auth.RequireRoles(h.logger, id.RoleAdmin)

	r.Route("/deposits", func(r chi.Router) {
		r.With(collectors).Post("/", h.handleCreate)
		r.With(agents).Post("/bulk", h.handleBulkCreate)
		r.With(collectors).Get("/eligible-accounts", h.handleEligibleAccounts)
		r.With(admins).Patch("/{depositID}", h.handleUpdate)
		r.With(admins).Delete("/{depositID}", h.handleDelete)
	})
	r.Get("/accounts/{accountID}/deposits", h.handleHistory)
}

// depositResponse is the envelope for a single committed mutation: the
// deposit plus the account figures re-derived inside the same transaction.
type depositResponse struct {
	Status         string           `json:"status"`
	Deposit        *models.Deposit  `json:"deposit"`
	AccountBalance int64            `json:"account_balance"`
	AccountStatus  accmodels.Status `json:"account_status"`
}

type eligibleAccountsResponse struct {
	Status   string                    `json:"status"`
	Accounts []service.EligibleAccount `json:"accounts"`
}

type historyResponse struct {
	Status   string            `json:"status"`
	Deposits []*models.Deposit `json:"deposits"`
}

type bulkSuccessEntry struct {
	AccountID      string           `json:"account_id"`
	Deposit        *models.Deposit  `json:"deposit"`
	AccountBalance int64            `json:"account_balance"`
	AccountStatus  accmodels.Status `json:"account_status"`
}

type bulkFailureEntry struct {
	AccountID string           `json:"account_id"`
	Error     shared.ErrorBody `json:"error"`
}

// bulkResponse reports a processed batch. The request is a success whenever
// the batch ran; per-item failures live in failed_accounts.
type bulkResponse struct {
	Status          string             `json:"status"`
	Total           int                `json:"total"`
	SuccessCount    int                `json:"success_count"`
	FailedCount     int                `json:"failed_count"`
	SuccessAccounts []bulkSuccessEntry `json:"success_accounts"`
	FailedAccounts  []bulkFailureEntry `json:"failed_accounts"`
	FailureSummary  map[string]int     `json:"failure_summary"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid create deposit request",
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

	receipt, err := h.deposits.Create(ctx, params)
	if err != nil {
		h.logError(ctx, "failed to create deposit", err)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusCreated, depositResponse{
		Status:         "success",
		Deposit:        receipt.Deposit,
		AccountBalance: receipt.Balance,
		AccountStatus:  receipt.Status,
	})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	depositID, err := id.ParseDepositID(chi.URLParam(r, "depositID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req UpdateDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid update deposit request",
			"request_id", request.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}

	params, err := req.Parse(depositID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	receipt, err := h.deposits.Update(ctx, params)
	if err != nil {
		h.logError(ctx, "failed to update deposit", err)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, depositResponse{
		Status:         "success",
		Deposit:        receipt.Deposit,
		AccountBalance: receipt.Balance,
		AccountStatus:  receipt.Status,
	})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	depositID, err := id.ParseDepositID(chi.URLParam(r, "depositID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	receipt, err := h.deposits.Delete(ctx, depositID)
	if err != nil {
		h.logError(ctx, "failed to delete deposit", err)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, depositResponse{
		Status:         "success",
		Deposit:        receipt.Deposit,
		AccountBalance: receipt.Balance,
		AccountStatus:  receipt.Status,
	})
}

func (h *Handler) handleBulkCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req BulkCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid bulk create request",
			"request_id", request.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}

	items, err := req.Parse()
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	result, err := h.deposits.BulkCreate(ctx, items)
	if err != nil {
		h.logError(ctx, "failed to process bulk create", err)
		shared.WriteError(w, err)
		return
	}

	resp := bulkResponse{
		Status:          "success",
		Total:           result.Total,
		SuccessCount:    result.SuccessCount,
		FailedCount:     result.FailedCount,
		SuccessAccounts: []bulkSuccessEntry{},
		FailedAccounts:  []bulkFailureEntry{},
		FailureSummary:  result.FailureSummary,
	}
	for _, outcome := range result.Items {
		if outcome.Err != nil {
			resp.FailedAccounts = append(resp.FailedAccounts, bulkFailureEntry{
				AccountID: outcome.AccountID,
				Error:     shared.BodyFor(outcome.Err),
			})
			continue
		}
		resp.SuccessAccounts = append(resp.SuccessAccounts, bulkSuccessEntry{
			AccountID:      outcome.AccountID,
			Deposit:        outcome.Receipt.Deposit,
			AccountBalance: outcome.Receipt.Balance,
			AccountStatus:  outcome.Receipt.Status,
		})
	}

	shared.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleEligibleAccounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accounts, err := h.deposits.EligibleAccounts(ctx)
	if err != nil {
		h.logError(ctx, "failed to list eligible accounts", err)
		shared.WriteError(w, err)
		return
	}
	if accounts == nil {
		accounts = []service.EligibleAccount{}
	}

	shared.WriteJSON(w, http.StatusOK, eligibleAccountsResponse{Status: "success", Accounts: accounts})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accountID, err := id.ParseAccountID(chi.URLParam(r, "accountID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	deposits, err := h.deposits.History(ctx, accountID)
	if err != nil {
		h.logError(ctx, "failed to list deposits", err)
		shared.WriteError(w, err)
		return
	}
	if deposits == nil {
		deposits = []*models.Deposit{}
	}

	shared.WriteJSON(w, http.StatusOK, historyResponse{Status: "success", Deposits: deposits})
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
