package models

import (
	"fmt"
	"strings"
	"time"

	id "grantor/pkg/domain"
	dErrors "grantor/pkg/domain-errors"
	pstrings "grantor/pkg/platform/strings"
)

// Prompt values from OIDC Core 3.1.2.1 that the engine understands.
const (
	PromptNone          = "none"
	PromptLogin         = "login"
	PromptConsent       = "consent"
	PromptSelectAccount = "select_account"
)

// PKCE code challenge methods from RFC 7636.
const (
	CodeChallengePlain = "plain"
	CodeChallengeS256  = "S256"
)

// ScopeOpenID switches OpenID Connect processing on for a request.
const ScopeOpenID = "openid"

// AuthorizeRequest is an in-flight authorize call. SessionID references the
// subject session established by the upstream login flow; the engine never
// authenticates subjects itself.
type AuthorizeRequest struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scopes              []string
	State               string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
	Prompt              string
	SessionID           id.SessionID
}

// Normalize trims parameter whitespace in place and dedupes the scope list.
func (r *AuthorizeRequest) Normalize() {
	r.ResponseType = strings.TrimSpace(r.ResponseType)
	r.ClientID = strings.TrimSpace(r.ClientID)
	r.RedirectURI = strings.TrimSpace(r.RedirectURI)
	r.State = strings.TrimSpace(r.State)
	r.Prompt = strings.TrimSpace(r.Prompt)
	r.CodeChallengeMethod = strings.TrimSpace(r.CodeChallengeMethod)
	r.Scopes = pstrings.DedupeAndTrim(r.Scopes)
}

// Validate checks structural requirements that hold for every client.
// Client-dependent rules (redirect match, scope allowance, PKCE) live in the
// grant pipeline.
func (r *AuthorizeRequest) Validate() error {
	if r.ClientID == "" {
		return dErrors.New(dErrors.CodeValidation, "client_id is required")
	}
	if r.RedirectURI == "" {
		return dErrors.New(dErrors.CodeValidation, "redirect_uri is required")
	}
	if len(r.Scopes) == 0 {
		return dErrors.New(dErrors.CodeValidation, "scope is required")
	}
	for _, s := range r.Scopes {
		if s == "" {
			return dErrors.New(dErrors.CodeValidation, "scope contains an empty value")
		}
	}
	return nil
}

// HasScope reports whether the request asks for the given scope.
func (r *AuthorizeRequest) HasScope(scope string) bool {
	return ScopesInclude(r.Scopes, scope)
}

// AuthorizeResult carries the artifacts for the success redirect.
type AuthorizeResult struct {
	Code        string
	State       string
	RedirectURI string
}

// AuthorizationCodeRecord is the persisted single-use exchange artifact.
// The code value is opaque with at least 128 bits of entropy; everything the
// token exchange must re-verify is frozen here at issuance time.
type AuthorizationCodeRecord struct {
	Code                string
	ClientID            string // wire client_id, matched verbatim at redemption
	SubjectID           id.SubjectID
	SessionID           id.SessionID
	Scopes              []string
	RedirectURI         string
	CodeChallenge       string
	CodeChallengeMethod string
	Nonce               string
	AuthTime            time.Time
	CreatedAt           time.Time
	ExpiresAt           time.Time
	Used                bool
	UsedAt              *time.Time
}

// ValidateForConsume checks the redemption preconditions. The error text is
// part of the store contract: stores translate "expired"/"already used" into
// sentinel errors.
func (c *AuthorizationCodeRecord) ValidateForConsume(clientID, redirectURI string, now time.Time) error {
	if c.Used {
		return fmt.Errorf("authorization code already used")
	}
	if now.After(c.ExpiresAt) {
		return fmt.Errorf("authorization code expired")
	}
	if c.ClientID != clientID {
		return fmt.Errorf("authorization code client mismatch")
	}
	if c.RedirectURI != redirectURI {
		return fmt.Errorf("authorization code redirect_uri mismatch")
	}
	return nil
}

// MarkUsed flags the code as consumed. Call only after ValidateForConsume.
func (c *AuthorizationCodeRecord) MarkUsed(now time.Time) {
	c.Used = true
	c.UsedAt = &now
}

// HasScope reports whether the code was issued with the given scope.
func (c *AuthorizationCodeRecord) HasScope(scope string) bool {
	return ScopesInclude(c.Scopes, scope)
}

// ScopesInclude reports whether scopes contains the given scope.
func ScopesInclude(scopes []string, scope string) bool {
	for _, s := range scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// ScopesSubset reports whether every scope in sub also appears in super.
func ScopesSubset(sub, super []string) bool {
	allowed := make(map[string]bool, len(super))
	for _, s := range super {
		allowed[s] = true
	}
	for _, s := range sub {
		if !allowed[s] {
			return false
		}
	}
	return true
}
