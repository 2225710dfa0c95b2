package models

import (
	"errors"
	"fmt"
	"net/http"
)

// OAuth 2.0 / OIDC error codes sent verbatim on the wire (RFC 6749 §5.2,
// OIDC Core §3.1.2.6).
const (
	ErrorCodeInvalidRequest       = "invalid_request"
	ErrorCodeInvalidClient        = "invalid_client"
	ErrorCodeInvalidGrant         = "invalid_grant"
	ErrorCodeUnauthorizedClient   = "unauthorized_client"
	ErrorCodeUnsupportedGrantType = "unsupported_grant_type"
	ErrorCodeInvalidScope         = "invalid_scope"
	ErrorCodeLoginRequired        = "login_required"
	ErrorCodeConsentRequired      = "consent_required"
	ErrorCodeAccessDenied         = "access_denied"
	ErrorCodeServerError          = "server_error"
	ErrorCodeTemporarilyUnavail   = "temporarily_unavailable"
)

// OAuthError is a protocol-visible failure. The Code goes on the wire
// exactly as-is; Status drives the HTTP response when the error cannot be
// delivered by redirect.
//
// NoRedirect marks failures raised before the redirect URI was validated
// against the client registration. Delivering those by redirect would turn
// the authorize endpoint into an open redirector, so transport must answer
// them directly.
type OAuthError struct {
	Code        string
	Description string
	Status      int
	NoRedirect  bool
}

// Direct returns a copy flagged as unsafe to deliver by redirect.
func (e *OAuthError) Direct() *OAuthError {
	copied := *e
	copied.NoRedirect = true
	return &copied
}

func (e *OAuthError) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// AsOAuthError extracts an OAuthError from an error chain.
func AsOAuthError(err error) (*OAuthError, bool) {
	var oe *OAuthError
	if errors.As(err, &oe) {
		return oe, true
	}
	return nil, false
}

func ErrInvalidRequest(desc string) *OAuthError {
	return &OAuthError{Code: ErrorCodeInvalidRequest, Description: desc, Status: http.StatusBadRequest}
}

func ErrInvalidClient(desc string) *OAuthError {
	return &OAuthError{Code: ErrorCodeInvalidClient, Description: desc, Status: http.StatusUnauthorized}
}

// ErrInvalidGrant deliberately carries no description on the wire: callers
// must not be able to distinguish "expired" from "already used" from "never
// existed" (the distinction is logged server-side instead).
func ErrInvalidGrant() *OAuthError {
	return &OAuthError{Code: ErrorCodeInvalidGrant, Status: http.StatusBadRequest}
}

func ErrUnauthorizedClient(desc string) *OAuthError {
	return &OAuthError{Code: ErrorCodeUnauthorizedClient, Description: desc, Status: http.StatusBadRequest}
}

func ErrUnsupportedGrantType(desc string) *OAuthError {
	return &OAuthError{Code: ErrorCodeUnsupportedGrantType, Description: desc, Status: http.StatusBadRequest}
}

func ErrInvalidScope(desc string) *OAuthError {
	return &OAuthError{Code: ErrorCodeInvalidScope, Description: desc, Status: http.StatusBadRequest}
}

func ErrLoginRequired(desc string) *OAuthError {
	return &OAuthError{Code: ErrorCodeLoginRequired, Description: desc, Status: http.StatusBadRequest}
}

func ErrConsentRequired(desc string) *OAuthError {
	return &OAuthError{Code: ErrorCodeConsentRequired, Description: desc, Status: http.StatusBadRequest}
}

func ErrServerError() *OAuthError {
	return &OAuthError{Code: ErrorCodeServerError, Status: http.StatusInternalServerError}
}

// ErrTemporarilyUnavailable marks a transient store failure. It maps to 503
// so callers can retry; it is never conflated with invalid_grant.
func ErrTemporarilyUnavailable() *OAuthError {
	return &OAuthError{Code: ErrorCodeTemporarilyUnavail, Status: http.StatusServiceUnavailable}
}
