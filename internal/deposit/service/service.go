// Package service orchestrates every ledger mutation: single and bulk
// deposit creation, corrections, deletions and the derived-state
// reconciliation that follows each of them.
//
// The admission pipeline runs the policy checks in a fixed order inside a
// per-account transaction, so the figures a check saw are the figures the
// commit lands on. Every attempt leaves an audit event: committed mutations
// emit their event inside the same transaction, rejections emit a *_FAILED
// event after rollback.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	accmodels "khata/internal/account/models"
	accstore "khata/internal/account/store"
	depositmetrics "khata/internal/deposit/metrics"
	"khata/internal/deposit/models"
	"khata/internal/deposit/policy"
	"khata/internal/deposit/store"
	dirmodels "khata/internal/directory/models"
	"khata/internal/scope"
	id "khata/pkg/domain"
	dErrors "khata/pkg/domain-errors"
	audit "khata/pkg/platform/audit"
	"khata/pkg/platform/period"
	"khata/pkg/platform/sentinel"
	"khata/pkg/requestcontext"
)

// DepositStore is the deposit persistence this service needs.
type DepositStore interface {
	Insert(ctx context.Context, deposit *models.Deposit) error
	FindByID(ctx context.Context, depositID id.DepositID) (*models.Deposit, error)
	Update(ctx context.Context, deposit *models.Deposit) error
	Delete(ctx context.Context, depositID id.DepositID) error
	ListByAccount(ctx context.Context, accountID id.AccountID) ([]*models.Deposit, error)
	SumByAccount(ctx context.Context, accountID id.AccountID, f store.Filter) (int64, error)
	CountByAccount(ctx context.Context, accountID id.AccountID, f store.Filter) (int64, error)
}

// AccountStore is the account persistence this service needs. Mutations go
// through FindByIDForUpdate and Save inside a transaction; plain reads back
// the listing surfaces.
type AccountStore interface {
	FindByID(ctx context.Context, accountID id.AccountID) (*accmodels.Account, error)
	FindByIDForUpdate(ctx context.Context, accountID id.AccountID) (*accmodels.Account, error)
	Save(ctx context.Context, account *accmodels.Account) error
	List(ctx context.Context, f accstore.Filter) ([]*accmodels.Account, error)
}

// DirectoryStore resolves users referenced by corrections.
type DirectoryStore interface {
	FindByID(ctx context.Context, userID id.UserID) (*dirmodels.User, error)
}

// ScopeResolver computes which agents' accounts the caller may act on.
type ScopeResolver interface {
	Resolve(ctx context.Context, caller requestcontext.Caller) (scope.Scope, error)
}

// AuditPublisher records every mutation attempt.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// StoreTx brackets a mutation on one account. The Postgres implementation
// opens a database transaction (the account row lock serialises writers);
// the in-memory implementation holds a shard lock keyed by the account ID.
type StoreTx interface {
	RunInTx(ctx context.Context, accountID id.AccountID, fn func(txCtx context.Context) error) error
}

// Operation labels for metrics and spans.
const (
	opCreate = "create"
	opUpdate = "update"
	opDelete = "delete"
)

// Service orchestrates deposit mutations and account reconciliation.
type Service struct {
	deposits  DepositStore
	accounts  AccountStore
	directory DirectoryStore
	scopes    ScopeResolver
	tx        StoreTx

	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *depositmetrics.Metrics
	cache          *eligibleCache
	loc            *time.Location
	tracer         trace.Tracer
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

// WithMetrics sets the deposit metrics.
func WithMetrics(m *depositmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithStoreTx sets the transactional bracket. Defaults to the in-process
// sharded lock, which is only safe for a single engine instance.
func WithStoreTx(tx StoreTx) Option {
	return func(s *Service) { s.tx = tx }
}

// WithEligibleCache caches eligible-account listings per caller in Redis.
func WithEligibleCache(client *redis.Client, ttl time.Duration) Option {
	return func(s *Service) { s.cache = newEligibleCache(client, ttl) }
}

// WithLocation sets the business time zone the current day and month are
// reckoned in. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// New constructs a Service.
func New(deposits DepositStore, accounts AccountStore, directory DirectoryStore, scopes ScopeResolver, opts ...Option) *Service {
	s := &Service{
		deposits:  deposits,
		accounts:  accounts,
		directory: directory,
		scopes:    scopes,
		logger:    slog.Default(),
		loc:       time.UTC,
		tracer:    otel.Tracer("khata/internal/deposit"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = newShardedTx()
	}
	if s.cache != nil {
		s.cache.logger = s.logger
	}
	return s
}

// Receipt is the outcome of a committed mutation: the deposit together with
// the account state re-derived from the full surviving history.
type Receipt struct {
	Deposit *models.Deposit
	Balance int64
	Status  accmodels.Status
}

// History returns an account's deposits, oldest first. Clients see their
// own accounts; collectors see accounts within their scope.
func (s *Service) History(ctx context.Context, accountID id.AccountID) ([]*models.Deposit, error) {
	caller, ok := requestcontext.CallerFrom(ctx)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller identity missing")
	}

	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, s.translateAccountErr(err)
	}

	if caller.Role == id.RoleClient {
		if account.ClientID != caller.UserID {
			return nil, dErrors.New(dErrors.CodeForbidden, "account belongs to another client")
		}
	} else {
		callerScope, err := s.scopes.Resolve(ctx, caller)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve caller scope")
		}
		if !callerScope.Covers(account.AgentID) {
			return nil, dErrors.New(dErrors.CodeForbidden, "account is outside the caller's scope")
		}
	}

	history, err := s.deposits.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list deposits")
	}
	return history, nil
}

// businessDay pins an instant to its calendar day in the business zone.
func (s *Service) businessDay(t time.Time) time.Time {
	return period.CivilDay(t, s.loc)
}

// gatherFacts sums the history the scheme check needs: figures for the
// deposit's target month plus the lifetime count, excluding the deposit
// under edit if any. Runs inside the caller's transaction.
func (s *Service) gatherFacts(ctx context.Context, accountID id.AccountID, day time.Time, exclude id.DepositID) (policy.SchemeFacts, error) {
	month := period.Month(day, time.UTC)

	monthSum, err := s.deposits.SumByAccount(ctx, accountID, store.Filter{Window: &month, Exclude: exclude})
	if err != nil {
		return policy.SchemeFacts{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sum deposits")
	}
	monthCount, err := s.deposits.CountByAccount(ctx, accountID, store.Filter{Window: &month, Exclude: exclude})
	if err != nil {
		return policy.SchemeFacts{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count deposits")
	}
	lifetime, err := s.deposits.CountByAccount(ctx, accountID, store.Filter{Exclude: exclude})
	if err != nil {
		return policy.SchemeFacts{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count deposits")
	}
	return policy.SchemeFacts{MonthSum: monthSum, MonthCount: monthCount, LifetimeCount: lifetime}, nil
}

func (s *Service) translateAccountErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "account not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
}

// reasonLabel names a rejection for metrics: the machine reason when one is
// attached, the error code otherwise.
func reasonLabel(err error) string {
	if reason := dErrors.ReasonOf(err); reason != "" {
		return reason
	}
	return string(dErrors.CodeOf(err))
}

// auditable reports whether a failure is a policy-side rejection worth an
// audit event. Infrastructure trouble and lost write races are operational
// noise, not collector behaviour.
func auditable(err error) bool {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeValidation, dErrors.CodePolicy, dErrors.CodeNotFound,
		dErrors.CodeForbidden, dErrors.CodeDefect:
		return true
	default:
		return false
	}
}

// baseEvent assembles the envelope every deposit audit event shares.
func (s *Service) baseEvent(ctx context.Context, caller requestcontext.Caller, action audit.AuditEvent) audit.Event {
	return audit.Event{
		Action:      string(action),
		EntityType:  "deposit",
		PerformedBy: caller.UserID,
		Role:        caller.Role.String(),
		Timestamp:   requestcontext.Now(ctx),
		RequestID:   requestcontext.RequestID(ctx),
		ClientIP:    requestcontext.ClientIP(ctx),
		Device:      requestcontext.DeviceLabel(ctx),
	}
}

// emitRejection records a *_FAILED event for a policy-side rejection. The
// rejection is already on its way to the caller, so an audit failure here is
// logged loudly rather than masking the original outcome.
func (s *Service) emitRejection(ctx context.Context, caller requestcontext.Caller, action audit.AuditEvent, accountID id.AccountID, entityID string, rejection error, details map[string]any) {
	if s.auditPublisher == nil || !auditable(rejection) {
		return
	}
	event := s.baseEvent(ctx, caller, action)
	event.EntityID = entityID
	event.AccountID = accountID
	event.Reason = dErrors.ReasonOf(rejection)
	event.Details = details
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to record rejection audit event",
			"action", action,
			"account_id", accountID,
			"reason", event.Reason,
			"error", err,
		)
	}
}

// emit records a success event. Callers run it inside the mutation's
// transaction so a lost audit write rolls the mutation back with it.
func (s *Service) emit(ctx context.Context, event audit.Event) error {
	if s.auditPublisher == nil {
		return nil
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit event")
	}
	return nil
}

func (s *Service) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "deposit."+operation, trace.WithAttributes(attrs...))
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.SetAttributes(
			attribute.String("outcome", "rejected"),
			attribute.String("reason", reasonLabel(err)),
		)
		return
	}
	span.SetAttributes(attribute.String("outcome", "committed"))
}
