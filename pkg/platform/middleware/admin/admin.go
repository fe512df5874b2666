// Package admin guards operator-only endpoints (sweep triggers) with a
// shared token. These routes bypass the JWT role model: they are called by
// schedulers and runbooks, not by directory users.
package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	request "khata/pkg/platform/middleware/request"
)

func RequireOpsToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get("X-Ops-Token")
			// Use constant-time comparison to prevent timing attacks
			if subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
				ctx := r.Context()
				requestID := request.GetRequestID(ctx)
				logger.WarnContext(ctx, "ops token mismatch",
					"request_id", requestID,
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"status":"error","error":{"code":"UNAUTHORIZED","message":"ops token required"}}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
