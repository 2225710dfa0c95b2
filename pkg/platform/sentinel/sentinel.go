package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain or protocol errors
// without string matching.
//
// These represent factual states about stored resources, not validation
// failures:
// - ErrNotFound: entity does not exist in the store
// - ErrConflict: a concurrent write won; the caller's write was not applied
// - ErrExpired: code/token/session lifetime has elapsed
// - ErrAlreadyUsed: single-use resource (authorization code, refresh token)
//   was consumed before; presenting it again is a replay signal
// - ErrInvalidState: entity exists but is in the wrong state for the operation
// - ErrUnavailable: backing service temporarily unreachable; retryable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
