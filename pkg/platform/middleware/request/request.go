// Package request provides request-ID middleware and accessors. Every
// request gets a correlation ID: the caller's X-Request-ID when present,
// otherwise a fresh UUID. The ID is echoed on the response and attached to
// the context for logs and audit events.
package request

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"khata/pkg/requestcontext"
)

// HeaderRequestID is the header the ID is read from and echoed on.
const HeaderRequestID = "X-Request-ID"

// Middleware assigns the request ID and stores it in the context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		w.Header().Set(HeaderRequestID, requestID)
		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	return requestcontext.RequestID(ctx)
}
