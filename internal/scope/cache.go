package scope

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	id "khata/pkg/domain"
	"khata/pkg/requestcontext"
)

const scopeKeyPrefix = "scope:caller:"

// CachedResolver wraps a Resolver with a per-caller Redis cache. Cache
// trouble never fails a request: reads fall through to the inner resolver
// and writes are best effort. The TTL bounds how long a team change can be
// served stale; Invalidate shortens that window when the directory changes.
type CachedResolver struct {
	inner  Resolver
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedResolver decorates the inner resolver with a Redis cache.
func NewCachedResolver(inner Resolver, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedResolver {
	return &CachedResolver{inner: inner, client: client, ttl: ttl, logger: logger}
}

func (r *CachedResolver) Resolve(ctx context.Context, caller requestcontext.Caller) (Scope, error) {
	key := scopeKeyPrefix + caller.UserID.String()

	payload, err := r.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		var cached Scope
		if unmarshalErr := json.Unmarshal([]byte(payload), &cached); unmarshalErr == nil {
			return cached, nil
		}
		// Unreadable entries are dropped and recomputed.
		r.client.Del(ctx, key)
	case !errors.Is(err, redis.Nil):
		r.logger.Warn("scope cache read failed", "error", err, "user_id", caller.UserID)
	}

	scope, err := r.inner.Resolve(ctx, caller)
	if err != nil {
		return Scope{}, err
	}

	if raw, marshalErr := json.Marshal(scope); marshalErr == nil {
		if setErr := r.client.Set(ctx, key, raw, r.ttl).Err(); setErr != nil {
			r.logger.Warn("scope cache write failed", "error", setErr, "user_id", caller.UserID)
		}
	}
	return scope, nil
}

// Invalidate drops a caller's cached scope after a directory change.
// Best effort; the TTL is the backstop.
func (r *CachedResolver) Invalidate(ctx context.Context, userID id.UserID) {
	if err := r.client.Del(ctx, scopeKeyPrefix+userID.String()).Err(); err != nil {
		r.logger.Warn("scope cache invalidation failed", "error", err, "user_id", userID)
	}
}
