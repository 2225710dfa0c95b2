// Package grant implements the grant-type execution engine: a registry of
// grant implementations, each bound to an ordered extension chain, turning
// validated authorize and token requests into single-use credential
// exchanges.
package grant

import (
	"context"
	"time"

	"grantor/internal/oauth/models"
	id "grantor/pkg/domain"
)

// AuthorizeContext is the unit of work for one authorize call. The grant
// builds Code incrementally; extensions mutate it before persistence.
type AuthorizeContext struct {
	Client  *models.Client
	Request *models.AuthorizeRequest

	// Session is the authenticated subject context, nil when the caller
	// presented no usable session.
	Session *models.SubjectSession

	// Code is the record being assembled. Populated by the grant after
	// validation, enriched by extensions, persisted last.
	Code *models.AuthorizationCodeRecord

	Now time.Time
}

// TokenContext is the unit of work for one token call. Exactly one of Code
// or Refresh is set, depending on the grant type.
type TokenContext struct {
	Client  *models.Client
	Request *models.TokenRequest

	Code    *models.AuthorizationCodeRecord
	Refresh *models.RefreshTokenRecord

	// GrantedScopes is the effective scope set for the tokens being minted.
	// May be narrower than the original grant on refresh.
	GrantedScopes []string

	// IDToken is filled by the OpenID extension when the granted scopes
	// include openid. The grant copies it into the result verbatim.
	IDToken string

	Now time.Time
}

// Extension is a pluggable rule invoked by a grant around its own
// processing. Extensions implement one or both phase interfaces; the chain
// skips phases an extension does not declare.
type Extension interface {
	Name() string
}

// AuthorizeExtension hooks run after grant validation and before code
// persistence. Returning an error aborts the authorize call with no side
// effects.
type AuthorizeExtension interface {
	Extension
	OnAuthorize(ctx context.Context, ac *AuthorizeContext) error
}

// TokenExtension hooks run after the grant consumed its artifact and before
// any token is minted. Returning an error aborts the exchange.
type TokenExtension interface {
	Extension
	OnToken(ctx context.Context, tc *TokenContext) error
}

// Chain is an ordered extension list. Hooks run in registration order and
// short-circuit on the first failure.
type Chain []Extension

func (c Chain) RunAuthorize(ctx context.Context, ac *AuthorizeContext) error {
	for _, ext := range c {
		hook, ok := ext.(AuthorizeExtension)
		if !ok {
			continue
		}
		if err := hook.OnAuthorize(ctx, ac); err != nil {
			return err
		}
	}
	return nil
}

func (c Chain) RunToken(ctx context.Context, tc *TokenContext) error {
	for _, ext := range c {
		hook, ok := ext.(TokenExtension)
		if !ok {
			continue
		}
		if err := hook.OnToken(ctx, tc); err != nil {
			return err
		}
	}
	return nil
}

// Grant is a registered grant-type implementation.
type Grant interface {
	GrantType() models.GrantType
}

// AuthorizeGrant handles the authorize phase for one response_type.
type AuthorizeGrant interface {
	Grant
	ResponseType() string
	Authorize(ctx context.Context, ac *AuthorizeContext, chain Chain) (*models.AuthorizeResult, error)
}

// TokenGrant handles the token phase for one grant_type.
type TokenGrant interface {
	Grant
	Token(ctx context.Context, tc *TokenContext, chain Chain) (*models.TokenResult, error)
}

// AccessTokenIssuer mints the signed access token for a redeemed grant.
type AccessTokenIssuer interface {
	IssueAccessToken(ctx context.Context, subjectID id.SubjectID, sessionID id.SessionID, clientID string, scopes []string) (token string, expiresIn time.Duration, err error)
}

// SecurityReporter receives replay signals. Redemption of an already-used
// code or rotated-away refresh token indicates credential leakage; the
// reporter is expected to revoke the affected lineage and raise an alert.
// Implementations must not fail the calling request.
type SecurityReporter interface {
	CodeReplayed(ctx context.Context, record *models.AuthorizationCodeRecord)
	RefreshTokenReused(ctx context.Context, record *models.RefreshTokenRecord)
}

// NopReporter discards replay signals. For tests and wiring defaults.
type NopReporter struct{}

func (NopReporter) CodeReplayed(context.Context, *models.AuthorizationCodeRecord) {}
func (NopReporter) RefreshTokenReused(context.Context, *models.RefreshTokenRecord) {}
