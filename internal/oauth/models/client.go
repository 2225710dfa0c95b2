package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	id "grantor/pkg/domain"
	dErrors "grantor/pkg/domain-errors"
)

// GrantType identifies an OAuth 2.0 grant a client may exercise.
type GrantType string

const (
	GrantAuthorizationCode GrantType = "authorization_code"
	GrantRefreshToken      GrantType = "refresh_token"
)

var validGrantTypes = map[GrantType]bool{
	GrantAuthorizationCode: true,
	GrantRefreshToken:      true,
}

// IsValid checks whether the grant type is one of the supported enum values.
func (g GrantType) IsValid() bool {
	return validGrantTypes[g]
}

// ClientStatus tracks whether a client registration is usable.
type ClientStatus string

const (
	ClientStatusActive   ClientStatus = "active"
	ClientStatusInactive ClientStatus = "inactive"
)

// Client is the aggregate root for an OAuth 2.0 client registration.
//
// Invariants:
//   - Name is non-empty and at most 128 characters
//   - OAuthClientID is non-empty (the public client_id used on the wire)
//   - RedirectURIs, AllowedGrants, and AllowedScopes are non-empty
//   - a redirect_uri in any request must exactly match one registered URI
//   - confidential clients carry a bcrypt secret hash; public clients do not
type Client struct {
	ID            id.ClientID  `json:"id"`
	Name          string       `json:"name"`
	OAuthClientID string       `json:"client_id"`
	SecretHash    string       `json:"-"` // bcrypt hash, never serialized
	RedirectURIs  []string     `json:"redirect_uris"`
	AllowedGrants []GrantType  `json:"allowed_grants"`
	AllowedScopes []string     `json:"allowed_scopes"`
	Confidential  bool         `json:"confidential"`
	RequireNonce  bool         `json:"require_nonce"`
	Status        ClientStatus `json:"status"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

func NewClient(
	clientID id.ClientID,
	name string,
	oauthClientID string,
	secretHash string,
	redirectURIs []string,
	allowedGrants []GrantType,
	allowedScopes []string,
	confidential bool,
	now time.Time,
) (*Client, error) {
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "client name cannot be empty")
	}
	if len(name) > 128 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "client name must be 128 characters or less")
	}
	if oauthClientID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "client_id cannot be empty")
	}
	if len(redirectURIs) == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "redirect_uris cannot be empty")
	}
	if len(allowedGrants) == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "allowed_grants cannot be empty")
	}
	for _, grant := range allowedGrants {
		if !grant.IsValid() {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid allowed_grant")
		}
	}
	if len(allowedScopes) == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "allowed_scopes cannot be empty")
	}
	if confidential && secretHash == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "confidential clients require a secret hash")
	}
	if !confidential && secretHash != "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "public clients must not carry a secret")
	}
	return &Client{
		ID:            clientID,
		Name:          name,
		OAuthClientID: oauthClientID,
		SecretHash:    secretHash,
		RedirectURIs:  redirectURIs,
		AllowedGrants: allowedGrants,
		AllowedScopes: allowedScopes,
		Confidential:  confidential,
		Status:        ClientStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (c *Client) IsActive() bool {
	return c.Status == ClientStatusActive
}

// IsPublic reports whether the client cannot hold a secret. Public clients
// must use PKCE on the authorization code grant.
func (c *Client) IsPublic() bool {
	return !c.Confidential
}

// RedirectURIAllowed requires an exact string match against a registered URI.
// No prefix or wildcard matching: anything looser is an open-redirect vector.
func (c *Client) RedirectURIAllowed(uri string) bool {
	if uri == "" {
		return false
	}
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// GrantAllowed reports whether the client may exercise the given grant type.
func (c *Client) GrantAllowed(grant GrantType) bool {
	for _, allowed := range c.AllowedGrants {
		if allowed == grant {
			return true
		}
	}
	return false
}

// ScopesAllowed reports whether every requested scope is registered for the
// client.
func (c *Client) ScopesAllowed(scopes []string) bool {
	allowed := make(map[string]bool, len(c.AllowedScopes))
	for _, s := range c.AllowedScopes {
		allowed[s] = true
	}
	for _, s := range scopes {
		if !allowed[s] {
			return false
		}
	}
	return true
}

// VerifySecret compares a presented client secret against the stored bcrypt
// hash. Returns CodeUnauthorized on mismatch; public clients always fail.
func (c *Client) VerifySecret(secret string) error {
	if c.IsPublic() || c.SecretHash == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "client has no secret")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(c.SecretHash), []byte(secret)); err != nil {
		return dErrors.New(dErrors.CodeUnauthorized, "client secret mismatch")
	}
	return nil
}
