package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	accmodels "khata/internal/account/models"
	accstore "khata/internal/account/store"
	"khata/internal/deposit/policy"
	"khata/internal/deposit/store"
	id "khata/pkg/domain"
	dErrors "khata/pkg/domain-errors"
	"khata/pkg/platform/period"
	"khata/pkg/requestcontext"
)

// EligibleAccount is one entry of the collection worklist: an account that
// can accept a deposit right now, with the headroom left before the total
// payable and, for monthly books, the installment the collector should ask
// for.
type EligibleAccount struct {
	Account             *accmodels.Account `json:"account"`
	Remaining           int64              `json:"remaining"`
	ExpectedInstallment int64              `json:"expected_installment,omitempty"`
}

// EligibleAccounts lists the accounts in the caller's scope that can accept
// a deposit now: not matured, short of the total payable, and with the
// current collection period still free. Listings are cached per caller; any
// committed mutation by the caller drops their entry and the TTL bounds how
// stale everyone else's copy can get.
func (s *Service) EligibleAccounts(ctx context.Context) ([]EligibleAccount, error) {
	caller, ok := requestcontext.CallerFrom(ctx)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller identity missing")
	}
	if err := policy.CheckCollectRole(caller.Role); err != nil {
		return nil, err
	}

	if s.cache != nil {
		if cached, ok := s.cache.get(ctx, caller.UserID); ok {
			return cached, nil
		}
	}

	callerScope, err := s.scopes.Resolve(ctx, caller)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve caller scope")
	}

	filter := accstore.Filter{ExcludeMatured: true, OpenOnly: true}
	if !callerScope.Unbounded {
		if len(callerScope.AgentIDs) == 0 {
			return []EligibleAccount{}, nil
		}
		filter.AgentIDs = callerScope.AgentIDs
	}
	accounts, err := s.accounts.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list accounts")
	}

	today := s.businessDay(requestcontext.Now(ctx))
	entries := make([]EligibleAccount, 0, len(accounts))
	for _, account := range accounts {
		// The store filter already drops matured and fully paid accounts;
		// the stored figures can drift, so the arithmetic is rechecked.
		if account.IsMatured() || account.FullyPaid || account.Remaining() <= 0 {
			continue
		}
		switch err := s.periodCheck(ctx, account, today); {
		case err == nil:
		case dErrors.Is(err, dErrors.CodePolicy):
			continue
		default:
			return nil, err
		}
		entry := EligibleAccount{Account: account, Remaining: account.Remaining()}
		if account.Scheme == id.PaymentModeMonthly {
			entry.ExpectedInstallment = account.InstallmentAmount
		}
		entries = append(entries, entry)
	}

	if s.cache != nil {
		s.cache.set(ctx, caller.UserID, entries)
	}
	return entries, nil
}

// periodCheck returns the policy rejection when the account's collection
// period around day already holds a deposit: that day for daily books, its
// calendar month for monthly ones, the lifetime for yearly ones. One count
// query per account.
func (s *Service) periodCheck(ctx context.Context, account *accmodels.Account, day time.Time) error {
	var (
		facts    policy.SchemeFacts
		dayCount int64
	)
	switch account.Scheme {
	case id.PaymentModeDaily:
		window := period.Day(day, time.UTC)
		n, err := s.deposits.CountByAccount(ctx, account.ID, store.Filter{Window: &window})
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to count deposits")
		}
		dayCount = n
	case id.PaymentModeMonthly:
		window := period.Month(day, time.UTC)
		n, err := s.deposits.CountByAccount(ctx, account.ID, store.Filter{Window: &window})
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to count deposits")
		}
		facts.MonthCount = n
	case id.PaymentModeYearly:
		n, err := s.deposits.CountByAccount(ctx, account.ID, store.Filter{})
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to count deposits")
		}
		facts.LifetimeCount = n
	}
	return policy.CheckPeriodFree(account, facts, dayCount)
}

// invalidateEligible drops the caller's cached worklist after a committed
// mutation. Best effort; the TTL is the backstop for everyone else's copy.
func (s *Service) invalidateEligible(ctx context.Context, callerID id.UserID) {
	if s.cache != nil {
		s.cache.invalidate(ctx, callerID)
	}
}

const eligibleKeyPrefix = "eligible:caller:"

// eligibleCache keeps per-caller worklists in Redis. Cache trouble never
// fails a listing: reads fall through to the stores and writes are best
// effort.
type eligibleCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func newEligibleCache(client *redis.Client, ttl time.Duration) *eligibleCache {
	return &eligibleCache{client: client, ttl: ttl, logger: slog.Default()}
}

func (c *eligibleCache) get(ctx context.Context, callerID id.UserID) ([]EligibleAccount, bool) {
	key := eligibleKeyPrefix + callerID.String()

	payload, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		var cached []EligibleAccount
		if unmarshalErr := json.Unmarshal([]byte(payload), &cached); unmarshalErr == nil {
			return cached, true
		}
		// Unreadable entries are dropped and recomputed.
		c.client.Del(ctx, key)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("eligible cache read failed", "error", err, "user_id", callerID)
	}
	return nil, false
}

func (c *eligibleCache) set(ctx context.Context, callerID id.UserID, entries []EligibleAccount) {
	raw, err := json.Marshal(entries)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, eligibleKeyPrefix+callerID.String(), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("eligible cache write failed", "error", err, "user_id", callerID)
	}
}

func (c *eligibleCache) invalidate(ctx context.Context, callerID id.UserID) {
	if err := c.client.Del(ctx, eligibleKeyPrefix+callerID.String()).Err(); err != nil {
		c.logger.Warn("eligible cache invalidation failed", "error", err, "user_id", callerID)
	}
}
