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

// RefreshTokenGrant rotates refresh tokens: each redemption invalidates the
// presented token and issues a successor, so a rotated-away token showing up
// again is proof of leakage. Requested scope may narrow the original grant
// but never widen it.
type RefreshTokenGrant struct {
	refreshTokens store.RefreshTokenStore
	issuer        AccessTokenIssuer
	security      SecurityReporter

	refreshTTL time.Duration
	rotate     bool
}

// RefreshTokenConfig wires the grant's collaborators.
type RefreshTokenConfig struct {
	RefreshTokens store.RefreshTokenStore
	Issuer        AccessTokenIssuer
	Security      SecurityReporter

	RefreshTTL time.Duration

	// Rotate controls successor issuance. Disabling it keeps tokens
	// single-use without replacements, which effectively caps a session at
	// one refresh.
	Rotate bool
}

// NewRefreshToken constructs the grant.
func NewRefreshToken(cfg RefreshTokenConfig) (*RefreshTokenGrant, error) {
	if cfg.RefreshTokens == nil {
		return nil, fmt.Errorf("refresh token grant: refresh token store is required")
	}
	if cfg.Issuer == nil {
		return nil, fmt.Errorf("refresh token grant: access token issuer is required")
	}
	if cfg.Rotate && cfg.RefreshTTL <= 0 {
		return nil, fmt.Errorf("refresh token grant: refresh ttl must be positive when rotation is enabled")
	}
	if cfg.Security == nil {
		cfg.Security = NopReporter{}
	}
	return &RefreshTokenGrant{
		refreshTokens: cfg.RefreshTokens,
		issuer:        cfg.Issuer,
		security:      cfg.Security,
		refreshTTL:    cfg.RefreshTTL,
		rotate:        cfg.Rotate,
	}, nil
}

func (g *RefreshTokenGrant) GrantType() models.GrantType {
	return models.GrantRefreshToken
}

// Token rotates the presented refresh token and mints a fresh token set.
func (g *RefreshTokenGrant) Token(ctx context.Context, tc *TokenContext, chain Chain) (*models.TokenResult, error) {
	req := tc.Request
	client := tc.Client

	if !client.GrantAllowed(models.GrantRefreshToken) {
		return nil, models.ErrUnauthorizedClient("client may not use the refresh_token grant")
	}

	// Scope and ownership checks run against a plain read first, so a
	// malformed request does not burn the rotation chain. The consume below
	// remains the atomic gate.
	preview, err := g.refreshTokens.Find(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, models.ErrInvalidGrant()
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	if preview.ClientID != client.OAuthClientID {
		return nil, models.ErrInvalidGrant()
	}
	granted := preview.Scopes
	if len(req.Scopes) > 0 {
		if !models.ScopesSubset(req.Scopes, preview.Scopes) {
			return nil, models.ErrInvalidScope("requested scope widens the original grant")
		}
		granted = req.Scopes
	}

	record, err := g.refreshTokens.ConsumeRefreshToken(ctx, req.RefreshToken, tc.Now)
	switch {
	case err == nil:
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		g.security.RefreshTokenReused(ctx, record)
		return nil, models.ErrInvalidGrant()
	case errors.Is(err, sentinel.ErrNotFound),
		errors.Is(err, sentinel.ErrExpired),
		errors.Is(err, sentinel.ErrInvalidState):
		return nil, models.ErrInvalidGrant()
	default:
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}

	tc.Refresh = record
	tc.GrantedScopes = granted

	if err := chain.RunToken(ctx, tc); err != nil {
		return nil, err
	}

	accessToken, expiresIn, err := g.issuer.IssueAccessToken(ctx, record.SubjectID, record.SessionID, client.OAuthClientID, granted)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	result := &models.TokenResult{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(expiresIn.Seconds()),
		IDToken:     tc.IDToken,
		Scopes:      granted,
		Scope:       strings.Join(granted, " "),
	}

	if g.rotate {
		successor, err := NewOpaqueValue("rt_")
		if err != nil {
			return nil, err
		}
		// The successor carries the full original scope set: narrowing
		// bounds the access token, not the grant itself.
		next := &models.RefreshTokenRecord{
			Token:       successor,
			SessionID:   record.SessionID,
			SubjectID:   record.SubjectID,
			ClientID:    record.ClientID,
			Scopes:      record.Scopes,
			Nonce:       record.Nonce,
			ParentToken: record.Token,
			CreatedAt:   tc.Now,
			ExpiresAt:   tc.Now.Add(g.refreshTTL),
		}
		if err := g.refreshTokens.Create(ctx, next); err != nil {
			return nil, fmt.Errorf("persist rotated refresh token: %w", err)
		}
		result.RefreshToken = successor
	}

	return result, nil
}
