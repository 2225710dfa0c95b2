package grant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"grantor/internal/oauth/models"
	"grantor/internal/oauth/store"
	"grantor/pkg/platform/sentinel"
)

// AuthorizationCodeGrant implements the authorization code flow: authorize
// requests mint a short-lived single-use code, token requests redeem it for
// an access token plus optional refresh and ID tokens.
//
// Redemption is an atomic compare-and-swap at the store: the code is burnt
// first, then the extension chain (PKCE, OpenID) runs, then tokens are
// minted. A chain failure after the swap leaves the code burnt, which is the
// safe direction: a verifier-guessing attacker gets one attempt per code.
type AuthorizationCodeGrant struct {
	codes         store.AuthorizationCodeStore
	refreshTokens store.RefreshTokenStore
	issuer        AccessTokenIssuer
	security      SecurityReporter

	codeTTL      time.Duration
	refreshTTL   time.Duration
	issueRefresh bool
}

// AuthorizationCodeConfig wires the grant's collaborators.
type AuthorizationCodeConfig struct {
	Codes         store.AuthorizationCodeStore
	RefreshTokens store.RefreshTokenStore
	Issuer        AccessTokenIssuer
	Security      SecurityReporter

	CodeTTL    time.Duration
	RefreshTTL time.Duration

	// IssueRefreshTokens controls whether redemption also mints the first
	// link of a rotation chain.
	IssueRefreshTokens bool
}

// NewAuthorizationCode constructs the grant.
func NewAuthorizationCode(cfg AuthorizationCodeConfig) (*AuthorizationCodeGrant, error) {
	if cfg.Codes == nil {
		return nil, fmt.Errorf("authorization code grant: code store is required")
	}
	if cfg.Issuer == nil {
		return nil, fmt.Errorf("authorization code grant: access token issuer is required")
	}
	if cfg.IssueRefreshTokens && cfg.RefreshTokens == nil {
		return nil, fmt.Errorf("authorization code grant: refresh token store is required when rotation is enabled")
	}
	if cfg.CodeTTL <= 0 {
		return nil, fmt.Errorf("authorization code grant: code ttl must be positive")
	}
	if cfg.Security == nil {
		cfg.Security = NopReporter{}
	}
	return &AuthorizationCodeGrant{
		codes:         cfg.Codes,
		refreshTokens: cfg.RefreshTokens,
		issuer:        cfg.Issuer,
		security:      cfg.Security,
		codeTTL:       cfg.CodeTTL,
		refreshTTL:    cfg.RefreshTTL,
		issueRefresh:  cfg.IssueRefreshTokens,
	}, nil
}

func (g *AuthorizationCodeGrant) GrantType() models.GrantType {
	return models.GrantAuthorizationCode
}

func (g *AuthorizationCodeGrant) ResponseType() string { return "code" }

// Authorize validates the request against the resolved client, runs the
// authorize-phase chain, then persists a fresh code. Nothing is written
// until every check has passed.
func (g *AuthorizationCodeGrant) Authorize(ctx context.Context, ac *AuthorizeContext, chain Chain) (*models.AuthorizeResult, error) {
	req := ac.Request
	client := ac.Client

	if req.ResponseType != g.ResponseType() {
		return nil, models.ErrInvalidRequest("response_type must be code")
	}
	if !client.GrantAllowed(models.GrantAuthorizationCode) {
		return nil, models.ErrUnauthorizedClient("client may not use the authorization_code grant")
	}
	if !client.ScopesAllowed(req.Scopes) {
		return nil, models.ErrInvalidScope("requested scope exceeds the client's allowed scopes")
	}

	code := &models.AuthorizationCodeRecord{
		ClientID:    client.OAuthClientID,
		Scopes:      req.Scopes,
		RedirectURI: req.RedirectURI,
		CreatedAt:   ac.Now,
		ExpiresAt:   ac.Now.Add(g.codeTTL),
	}
	ac.Code = code

	if err := chain.RunAuthorize(ctx, ac); err != nil {
		return nil, err
	}

	// The prompt validator has passed by now, so a session is guaranteed.
	if ac.Session == nil {
		return nil, models.ErrLoginRequired("no active session")
	}
	code.SubjectID = ac.Session.SubjectID
	code.SessionID = ac.Session.ID
	code.AuthTime = ac.Session.AuthTime

	value, err := NewOpaqueValue("authz_")
	if err != nil {
		return nil, err
	}
	code.Code = value

	if err := g.codes.Create(ctx, code); err != nil {
		return nil, fmt.Errorf("persist authorization code: %w", err)
	}

	return &models.AuthorizeResult{
		Code:        code.Code,
		State:       req.State,
		RedirectURI: req.RedirectURI,
	}, nil
}

// Token redeems a code. Exactly one concurrent redemption of the same code
// succeeds; replay of an already-redeemed code raises a security signal and
// fails like any other invalid grant, leaking nothing to the caller.
func (g *AuthorizationCodeGrant) Token(ctx context.Context, tc *TokenContext, chain Chain) (*models.TokenResult, error) {
	req := tc.Request
	client := tc.Client

	if !client.GrantAllowed(models.GrantAuthorizationCode) {
		return nil, models.ErrUnauthorizedClient("client may not use the authorization_code grant")
	}

	record, err := g.codes.ConsumeCode(ctx, req.Code, client.OAuthClientID, req.RedirectURI, tc.Now)
	switch {
	case err == nil:
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		g.security.CodeReplayed(ctx, record)
		return nil, models.ErrInvalidGrant()
	case errors.Is(err, sentinel.ErrNotFound),
		errors.Is(err, sentinel.ErrExpired),
		errors.Is(err, sentinel.ErrInvalidState):
		return nil, models.ErrInvalidGrant()
	default:
		return nil, fmt.Errorf("consume authorization code: %w", err)
	}

	tc.Code = record
	tc.GrantedScopes = record.Scopes

	if err := chain.RunToken(ctx, tc); err != nil {
		return nil, err
	}

	accessToken, expiresIn, err := g.issuer.IssueAccessToken(ctx, record.SubjectID, record.SessionID, client.OAuthClientID, tc.GrantedScopes)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	result := &models.TokenResult{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(expiresIn.Seconds()),
		IDToken:     tc.IDToken,
		Scopes:      tc.GrantedScopes,
		Scope:       strings.Join(tc.GrantedScopes, " "),
	}

	if g.issueRefresh && client.GrantAllowed(models.GrantRefreshToken) {
		refreshValue, err := NewOpaqueValue("rt_")
		if err != nil {
			return nil, err
		}
		refresh := &models.RefreshTokenRecord{
			Token:     refreshValue,
			SessionID: record.SessionID,
			SubjectID: record.SubjectID,
			ClientID:  client.OAuthClientID,
			Scopes:    record.Scopes,
			Nonce:     record.Nonce,
			CreatedAt: tc.Now,
			ExpiresAt: tc.Now.Add(g.refreshTTL),
		}
		if err := g.refreshTokens.Create(ctx, refresh); err != nil {
			return nil, fmt.Errorf("persist refresh token: %w", err)
		}
		result.RefreshToken = refreshValue
	}

	return result, nil
}
