package models

import (
	"fmt"
	"strings"
	"time"

	id "grantor/pkg/domain"
	dErrors "grantor/pkg/domain-errors"
	pstrings "grantor/pkg/platform/strings"
)

// TokenRequest is an inbound token endpoint call, already form-decoded.
type TokenRequest struct {
	GrantType    string
	ClientID     string
	ClientSecret string

	// authorization_code fields
	Code         string
	RedirectURI  string
	CodeVerifier string

	// refresh_token fields
	RefreshToken string
	Scopes       []string // optional narrowing; empty means "same as before"
}

// Normalize trims parameter whitespace in place and dedupes the scope list.
func (r *TokenRequest) Normalize() {
	r.GrantType = strings.TrimSpace(r.GrantType)
	r.ClientID = strings.TrimSpace(r.ClientID)
	r.Code = strings.TrimSpace(r.Code)
	r.RedirectURI = strings.TrimSpace(r.RedirectURI)
	r.RefreshToken = strings.TrimSpace(r.RefreshToken)
	r.Scopes = pstrings.DedupeAndTrim(r.Scopes)
}

// Validate checks the structural requirements shared by every grant type.
func (r *TokenRequest) Validate() error {
	if r.GrantType == "" {
		return dErrors.New(dErrors.CodeValidation, "grant_type is required")
	}
	if r.ClientID == "" {
		return dErrors.New(dErrors.CodeValidation, "client_id is required")
	}
	switch GrantType(r.GrantType) {
	case GrantAuthorizationCode:
		if r.Code == "" {
			return dErrors.New(dErrors.CodeValidation, "code is required")
		}
		if r.RedirectURI == "" {
			return dErrors.New(dErrors.CodeValidation, "redirect_uri is required")
		}
	case GrantRefreshToken:
		if r.RefreshToken == "" {
			return dErrors.New(dErrors.CodeValidation, "refresh_token is required")
		}
	}
	return nil
}

// TokenResult is the token endpoint success payload.
type TokenResult struct {
	AccessToken  string   `json:"access_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int64    `json:"expires_in"`
	RefreshToken string   `json:"refresh_token,omitempty"`
	IDToken      string   `json:"id_token,omitempty"`
	Scopes       []string `json:"-"`
	Scope        string   `json:"scope,omitempty"`
}

// RefreshTokenRecord is one link in a rotation chain. Redeeming a record
// marks it used and creates a successor; presenting a used record again is a
// reuse signal that revokes the whole session lineage.
type RefreshTokenRecord struct {
	Token           string
	SessionID       id.SessionID
	SubjectID       id.SubjectID
	ClientID        string
	Scopes          []string
	Nonce           string // authorize-time nonce, carried for ID token re-issuance
	ParentToken     string // predecessor in the rotation chain, empty for the first link
	CreatedAt       time.Time
	ExpiresAt       time.Time
	LastRefreshedAt *time.Time
	Used            bool
}

// ValidateForConsume checks the rotation preconditions. The error text is
// part of the store contract: stores translate "expired"/"already used" into
// sentinel errors.
func (r *RefreshTokenRecord) ValidateForConsume(now time.Time) error {
	if r.Used {
		return fmt.Errorf("refresh token already used")
	}
	if !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt) {
		return fmt.Errorf("refresh token expired")
	}
	return nil
}

// MarkUsed flags the token as rotated away. Call only after ValidateForConsume.
func (r *RefreshTokenRecord) MarkUsed(now time.Time) {
	r.Used = true
	r.LastRefreshedAt = &now
}

// HasScope reports whether the original grant included the given scope.
func (r *RefreshTokenRecord) HasScope(scope string) bool {
	return ScopesInclude(r.Scopes, scope)
}

// RevokeRequest is an RFC 7009 revocation call.
type RevokeRequest struct {
	Token         string
	TokenTypeHint string
	ClientID      string
	ClientSecret  string
}
