// Package store declares the narrow persistence interfaces the grant engine
// consumes. Implementations live in subpackages, one entity per package,
// with in-memory variants for tests/dev and Postgres/Redis variants for
// production.
//
// Error Contract:
// All store methods follow this error pattern:
//   - Return sentinel.ErrNotFound (wrapped) when the requested entity does
//     not exist
//   - Return sentinel.ErrExpired / sentinel.ErrAlreadyUsed (wrapped) from
//     Consume* methods when the record exists but cannot be redeemed
//   - Return nil for successful operations
//   - Return wrapped errors with context for infrastructure failures
//
// Consume* and rotation methods MUST be atomic at the storage layer
// (single-lock section in memory, conditional UPDATE in SQL): concurrent
// redemption of the same code or token yields exactly one success.
package store

import (
	"context"
	"time"

	"grantor/internal/oauth/models"
	id "grantor/pkg/domain"
)

// ClientStore resolves registered relying parties.
type ClientStore interface {
	FindByOAuthClientID(ctx context.Context, clientID string) (*models.Client, error)
}

// AuthorizationCodeStore persists single-use exchange artifacts.
type AuthorizationCodeStore interface {
	Create(ctx context.Context, code *models.AuthorizationCodeRecord) error

	// ConsumeCode atomically validates and marks the code used.
	// IMPORTANT: returns the record even on ErrAlreadyUsed so callers can
	// treat replay as a security signal (revoke the code's lineage).
	ConsumeCode(ctx context.Context, code, clientID, redirectURI string, now time.Time) (*models.AuthorizationCodeRecord, error)

	// DeleteExpiredCodes is storage hygiene only; expiry is enforced at
	// read time by ConsumeCode.
	DeleteExpiredCodes(ctx context.Context, now time.Time) (int, error)
}

// RefreshTokenStore persists rotation chains.
type RefreshTokenStore interface {
	Create(ctx context.Context, token *models.RefreshTokenRecord) error
	Find(ctx context.Context, token string) (*models.RefreshTokenRecord, error)

	// ConsumeRefreshToken atomically validates and marks the token used.
	// IMPORTANT: returns the record even on ErrAlreadyUsed to enable
	// rotation-reuse detection.
	ConsumeRefreshToken(ctx context.Context, token string, now time.Time) (*models.RefreshTokenRecord, error)

	DeleteBySessionID(ctx context.Context, sessionID id.SessionID) (int, error)
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int, error)
}

// SessionStore reads subject sessions established by the upstream login
// flow. The engine only reads; Save exists for wiring and tests.
type SessionStore interface {
	Save(ctx context.Context, session *models.SubjectSession) error
	FindByID(ctx context.Context, sessionID id.SessionID) (*models.SubjectSession, error)
}

// ConsentStore reads consent records captured by the external consent UI.
type ConsentStore interface {
	Save(ctx context.Context, consent *models.ConsentRecord) error
	Find(ctx context.Context, subjectID id.SubjectID, clientID string) (*models.ConsentRecord, error)
}

// RevocationList invalidates already-issued access tokens. Individual tokens
// are revoked by JTI; a replayed code or reused rotated refresh token revokes
// its whole session lineage in one call, since every access token minted by
// the engine carries its session ID as a claim.
type RevocationList interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
	RevokeSession(ctx context.Context, sessionID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
	IsSessionRevoked(ctx context.Context, sessionID string) (bool, error)
}
