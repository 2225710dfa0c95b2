// Package request provides request ID middleware for correlation across
// logs and audit events.
package request

import (
	"context"
	"net/http"

	"grantor/pkg/requestcontext"

	"github.com/google/uuid"
)

const headerRequestID = "X-Request-ID"

// RequestID assigns every request a correlation ID. An incoming
// X-Request-ID header is honored so IDs survive proxy hops; otherwise a
// fresh UUID is minted. The ID is echoed on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(headerRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(headerRequestID, requestID)
		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	return requestcontext.RequestID(ctx)
}
