// Package service orchestrates account lifecycle operations: opening,
// scoped reads and scoped listing. Deposit-side mutations never pass
// through here; they live in the deposit service, which re-derives the
// account's balance and status on every commit.
package service

import (
	"context"
	"errors"
	"log/slog"

	accountmetrics "khata/internal/account/metrics"
	"khata/internal/account/models"
	"khata/internal/account/store"
	dirmodels "khata/internal/directory/models"
	"khata/internal/scope"
	id "khata/pkg/domain"
	dErrors "khata/pkg/domain-errors"
	audit "khata/pkg/platform/audit"
	"khata/pkg/platform/sentinel"
	"khata/pkg/requestcontext"
)

// AccountStore is the slice of account persistence this service needs.
type AccountStore interface {
	Create(ctx context.Context, account *models.Account) error
	FindByID(ctx context.Context, accountID id.AccountID) (*models.Account, error)
	Save(ctx context.Context, account *models.Account) error
	List(ctx context.Context, f store.Filter) ([]*models.Account, error)
}

// DirectoryStore resolves the users an account references.
type DirectoryStore interface {
	FindByID(ctx context.Context, userID id.UserID) (*dirmodels.User, error)
}

// ScopeResolver computes which agents' accounts the caller may see.
type ScopeResolver interface {
	Resolve(ctx context.Context, caller requestcontext.Caller) (scope.Scope, error)
}

// AuditPublisher records account lifecycle events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service orchestrates account management.
type Service struct {
	accounts  AccountStore
	directory DirectoryStore
	scopes    ScopeResolver

	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *accountmetrics.Metrics
}

// Option configures the Service.
type Option func(s *Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithAuditPublisher sets the audit sink.
func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) { s.auditPublisher = publisher }
}

// WithMetrics sets the account metrics.
func WithMetrics(m *accountmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New constructs a Service.
func New(accounts AccountStore, directory DirectoryStore, scopes ScopeResolver, opts ...Option) *Service {
	s := &Service{
		accounts:  accounts,
		directory: directory,
		scopes:    scopes,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenParams carries the validated inputs for opening an account.
type OpenParams struct {
	ClientID     id.UserID
	AgentID      id.UserID
	Scheme       id.PaymentMode
	TotalPayable int64
	Config       models.SchemeConfig
	TermMonths   int
}

// Open creates a new account for a client under a collecting agent.
// The route is admin-gated; the directory references are verified here so a
// typo in a user ID fails loudly instead of creating an orphaned book.
func (s *Service) Open(ctx context.Context, params OpenParams) (*models.Account, error) {
	caller, ok := requestcontext.CallerFrom(ctx)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller identity missing")
	}

	if err := s.requireUserWithRole(ctx, params.ClientID, id.RoleClient, "client"); err != nil {
		return nil, err
	}
	if err := s.requireUserWithRole(ctx, params.AgentID, id.RoleAgent, "agent"); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	account, err := models.NewAccount(id.NewAccountID(), params.ClientID, params.AgentID,
		params.Scheme, params.TotalPayable, params.Config, params.TermMonths, now)
	if err != nil {
		return nil, err
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, sentinel.ErrDuplicate) {
			return nil, dErrors.New(dErrors.CodeConflict, "account already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create account")
	}

	if s.auditPublisher != nil {
		event := audit.Event{
			Action:      string(audit.EventAccountOpened),
			EntityType:  "account",
			EntityID:    account.ID.String(),
			AccountID:   account.ID,
			PerformedBy: caller.UserID,
			Role:        caller.Role.String(),
			Timestamp:   now,
			RequestID:   requestcontext.RequestID(ctx),
			ClientIP:    requestcontext.ClientIP(ctx),
			Device:      requestcontext.DeviceLabel(ctx),
			Details: map[string]any{
				"client_id":     account.ClientID.String(),
				"agent_id":      account.AgentID.String(),
				"scheme":        account.Scheme.String(),
				"total_payable": account.TotalPayable,
				"maturity_date": account.MaturityDate,
			},
		}
		if err := s.auditPublisher.Emit(ctx, event); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record account opening")
		}
	}

	s.metrics.IncrementOpened(account.Scheme.String())
	s.logger.InfoContext(ctx, "account opened",
		"account_id", account.ID,
		"scheme", account.Scheme,
		"agent_id", account.AgentID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return account, nil
}

// Get returns one account. Admins see everything, managers and agents see
// their book, and the owning client sees their own accounts.
func (s *Service) Get(ctx context.Context, accountID id.AccountID) (*models.Account, error) {
	caller, ok := requestcontext.CallerFrom(ctx)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller identity missing")
	}

	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "account not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}

	if caller.Role == id.RoleClient {
		if account.ClientID != caller.UserID {
			return nil, dErrors.New(dErrors.CodeForbidden, "account belongs to another client")
		}
		return account, nil
	}

	callerScope, err := s.scopes.Resolve(ctx, caller)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve caller scope")
	}
	if !callerScope.Covers(account.AgentID) {
		return nil, dErrors.New(dErrors.CodeForbidden, "account is outside the caller's scope")
	}
	return account, nil
}

// List returns the accounts visible to the caller: the whole book for
// admins, the team's book for managers, their own book for agents and
// their own accounts for clients.
func (s *Service) List(ctx context.Context) ([]*models.Account, error) {
	caller, ok := requestcontext.CallerFrom(ctx)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller identity missing")
	}

	var filter store.Filter
	if caller.Role == id.RoleClient {
		filter.ClientID = caller.UserID
	} else {
		callerScope, err := s.scopes.Resolve(ctx, caller)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve caller scope")
		}
		if !callerScope.Unbounded {
			if len(callerScope.AgentIDs) == 0 {
				return []*models.Account{}, nil
			}
			filter.AgentIDs = callerScope.AgentIDs
		}
	}

	accounts, err := s.accounts.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list accounts")
	}
	return accounts, nil
}

func (s *Service) requireUserWithRole(ctx context.Context, userID id.UserID, role id.Role, field string) error {
	if userID.IsNil() {
		return dErrors.Newf(dErrors.CodeValidation, "%s id is required", field)
	}
	user, err := s.directory.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Newf(dErrors.CodeValidation, "%s user not found", field)
		}
		return dErrors.Wrapf(err, dErrors.CodeInternal, "failed to look up %s user", field)
	}
	if user.Role != role {
		return dErrors.Newf(dErrors.CodeValidation, "user %s is not a %s", userID, role)
	}
	return nil
}
