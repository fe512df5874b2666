package testutil

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	id "khata/pkg/domain"
	"khata/pkg/requestcontext"
)

// WithCaller stamps an authenticated caller onto the request context,
// simulating what the auth middleware does for real requests.
func WithCaller(t *testing.T, req *http.Request, userID string, role id.Role) *http.Request {
	t.Helper()

	parsed, err := id.ParseUserID(userID)
	require.NoError(t, err, "test caller user ID must be a valid UUID")

	ctx := requestcontext.WithCaller(req.Context(), requestcontext.Caller{
		UserID: parsed,
		Role:   role,
	})
	return req.WithContext(ctx)
}

// CallerContext returns a bare context carrying an authenticated caller,
// for exercising services directly.
func CallerContext(t *testing.T, userID id.UserID, role id.Role) context.Context {
	t.Helper()
	return requestcontext.WithCaller(context.Background(), requestcontext.Caller{
		UserID: userID,
		Role:   role,
	})
}

// FrozenContext pins the request clock so period checks are deterministic.
func FrozenContext(ctx context.Context, at time.Time) context.Context {
	return requestcontext.WithTime(ctx, at)
}

// WithRequestID stamps a request ID, matching the outermost middleware.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}
