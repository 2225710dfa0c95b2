// Package auth provides the bearer-token guard resource servers mount in
// front of protected endpoints. It validates the access JWT and consults the
// revocation list, so tokens killed by replay detection or RFC 7009
// revocation stop working before their natural expiry.
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	request "grantor/pkg/platform/middleware/request"
)

// TokenValidator validates an access token and returns its claims.
type TokenValidator interface {
	ValidateToken(tokenString string) (*TokenClaims, error)
}

// RevocationChecker answers whether a token or its session lineage has been
// revoked.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
	IsSessionRevoked(ctx context.Context, sessionID string) (bool, error)
}

// TokenClaims are the claims the guard needs from the validator.
type TokenClaims struct {
	SubjectID string
	SessionID string
	ClientID  string
	JTI       string
	Scope     string
}

// Context keys for the authenticated principal.
type contextKeySubjectID struct{}
type contextKeySessionID struct{}
type contextKeyClientID struct{}
type contextKeyScope struct{}

var (
	ContextKeySubjectID = contextKeySubjectID{}
	ContextKeySessionID = contextKeySessionID{}
	ContextKeyClientID  = contextKeyClientID{}
	ContextKeyScope     = contextKeyScope{}
)

// GetSubjectID retrieves the authenticated subject ID from the context.
func GetSubjectID(ctx context.Context) string {
	subjectID, _ := ctx.Value(ContextKeySubjectID).(string)
	return subjectID
}

// GetSessionID retrieves the session ID from the context.
func GetSessionID(ctx context.Context) string {
	sessionID, _ := ctx.Value(ContextKeySessionID).(string)
	return sessionID
}

// GetClientID retrieves the OAuth client ID from the context.
func GetClientID(ctx context.Context) string {
	clientID, _ := ctx.Value(ContextKeyClientID).(string)
	return clientID
}

// GetScope retrieves the granted scope string from the context.
func GetScope(ctx context.Context) string {
	scope, _ := ctx.Value(ContextKeyScope).(string)
	return scope
}

// RequireBearer returns middleware that admits only requests carrying a
// valid, unrevoked bearer access token. On revocation-list outage it fails
// closed with 503 rather than admitting a possibly revoked token.
func RequireBearer(validator TokenValidator, revocations RevocationChecker, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				writeUnauthorized(w, "missing bearer token")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "rejected invalid access token",
					"error", err,
					"request_id", request.GetRequestID(ctx),
				)
				writeUnauthorized(w, "invalid or expired token")
				return
			}

			revoked, err := tokenOrSessionRevoked(ctx, revocations, claims)
			if err != nil {
				logger.ErrorContext(ctx, "revocation check failed",
					"error", err,
					"request_id", request.GetRequestID(ctx),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"error":"temporarily_unavailable","error_description":"revocation check unavailable"}`))
				return
			}
			if revoked {
				logger.WarnContext(ctx, "rejected revoked access token",
					"jti", claims.JTI,
					"session_id", claims.SessionID,
					"request_id", request.GetRequestID(ctx),
				)
				writeUnauthorized(w, "token has been revoked")
				return
			}

			ctx = context.WithValue(ctx, ContextKeySubjectID, claims.SubjectID)
			ctx = context.WithValue(ctx, ContextKeySessionID, claims.SessionID)
			ctx = context.WithValue(ctx, ContextKeyClientID, claims.ClientID)
			ctx = context.WithValue(ctx, ContextKeyScope, claims.Scope)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tokenOrSessionRevoked(ctx context.Context, revocations RevocationChecker, claims *TokenClaims) (bool, error) {
	if revocations == nil {
		return false, nil
	}
	if claims.JTI != "" {
		revoked, err := revocations.IsRevoked(ctx, claims.JTI)
		if err != nil {
			return false, err
		}
		if revoked {
			return true, nil
		}
	}
	if claims.SessionID != "" {
		return revocations.IsSessionRevoked(ctx, claims.SessionID)
	}
	return false, nil
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"invalid_token","error_description":"` + description + `"}`))
}
