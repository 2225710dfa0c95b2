package grant

import (
	"context"
	"testing"
	"time"

	"grantor/internal/oauth/models"
	id "grantor/pkg/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) seedRefreshToken(t *testing.T, client *models.Client, scopes []string) *models.RefreshTokenRecord {
	t.Helper()
	record := &models.RefreshTokenRecord{
		Token:     "rt_seed",
		SessionID: id.SessionID(uuid.New()),
		SubjectID: id.SubjectID(uuid.New()),
		ClientID:  client.OAuthClientID,
		Scopes:    scopes,
		Nonce:     "n-0S6_WzA2Mj",
		CreatedAt: f.now,
		ExpiresAt: f.now.Add(30 * 24 * time.Hour),
	}
	require.NoError(t, f.refresh.Create(context.Background(), record))
	return record
}

func (f *fixture) rotate(t *testing.T, g *RefreshTokenGrant, chain Chain, client *models.Client, token string, scopes []string) (*models.TokenResult, error) {
	t.Helper()
	tc := &TokenContext{
		Client: client,
		Request: &models.TokenRequest{
			GrantType:    string(models.GrantRefreshToken),
			ClientID:     client.OAuthClientID,
			RefreshToken: token,
			Scopes:       scopes,
		},
		Now: f.now,
	}
	return g.Token(context.Background(), tc, chain)
}

func TestRefreshToken_Rotation(t *testing.T) {
	t.Run("rotation issues a distinct successor and invalidates the original", func(t *testing.T) {
		f := newFixture()
		g := f.refreshGrant(t)
		client := f.publicClient(t)
		seed := f.seedRefreshToken(t, client, []string{"openid", "profile"})

		result, err := f.rotate(t, g, f.fullChain(), client, seed.Token, nil)
		require.NoError(t, err)
		require.NotEmpty(t, result.RefreshToken)
		assert.NotEqual(t, seed.Token, result.RefreshToken)
		assert.Equal(t, "at_refreshed", result.AccessToken)
		assert.NotEmpty(t, result.IDToken, "original grant included openid")

		// Presenting the rotated-away token again fails and flags reuse.
		_, err = f.rotate(t, g, f.fullChain(), client, seed.Token, nil)
		assertOAuthCode(t, err, models.ErrorCodeInvalidGrant)
		require.Len(t, f.reporter.reusedRefresh, 1)
		assert.Equal(t, seed.Token, f.reporter.reusedRefresh[0].Token)

		// The successor still works and chains back to its parent.
		successor, err := f.refresh.Find(context.Background(), result.RefreshToken)
		require.NoError(t, err)
		assert.Equal(t, seed.Token, successor.ParentToken)
		assert.Equal(t, seed.SessionID, successor.SessionID)
	})

	t.Run("unknown token fails with invalid_grant", func(t *testing.T) {
		f := newFixture()
		g := f.refreshGrant(t)
		_, err := f.rotate(t, g, f.fullChain(), f.publicClient(t), "rt_unknown", nil)
		assertOAuthCode(t, err, models.ErrorCodeInvalidGrant)
		assert.Empty(t, f.reporter.reusedRefresh, "an unknown token is not a reuse signal")
	})

	t.Run("expired token fails with invalid_grant", func(t *testing.T) {
		f := newFixture()
		g := f.refreshGrant(t)
		client := f.publicClient(t)
		seed := f.seedRefreshToken(t, client, []string{"openid"})
		seed.ExpiresAt = f.now.Add(-time.Minute)

		_, err := f.rotate(t, g, f.fullChain(), client, seed.Token, nil)
		assertOAuthCode(t, err, models.ErrorCodeInvalidGrant)
	})

	t.Run("another client's token fails with invalid_grant", func(t *testing.T) {
		f := newFixture()
		g := f.refreshGrant(t)
		owner := f.publicClient(t)
		seed := f.seedRefreshToken(t, owner, []string{"openid"})

		other := f.publicClient(t)
		other.OAuthClientID = "other-client"
		_, err := f.rotate(t, g, f.fullChain(), other, seed.Token, nil)
		assertOAuthCode(t, err, models.ErrorCodeInvalidGrant)
	})
}

func TestRefreshToken_ScopeNarrowing(t *testing.T) {
	t.Run("narrowing bounds the access token, widening is rejected", func(t *testing.T) {
		f := newFixture()
		g := f.refreshGrant(t)
		client := f.publicClient(t)
		f.seedRefreshToken(t, client, []string{"profile", "email"})

		_, err := f.rotate(t, g, f.fullChain(), client, "rt_seed", []string{"profile", "email", "openid"})
		assertOAuthCode(t, err, models.ErrorCodeInvalidScope)

		// The rejected widening attempt must not burn the token.
		result, err := f.rotate(t, g, f.fullChain(), client, "rt_seed", []string{"profile"})
		require.NoError(t, err)
		assert.Equal(t, "profile", result.Scope)
		assert.Empty(t, result.IDToken, "openid was not granted this round")

		// The successor keeps the original grant's scopes.
		successor, err := f.refresh.Find(context.Background(), result.RefreshToken)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"profile", "email"}, successor.Scopes)
	})

	t.Run("no scope parameter keeps the original scopes", func(t *testing.T) {
		f := newFixture()
		g := f.refreshGrant(t)
		client := f.publicClient(t)
		f.seedRefreshToken(t, client, []string{"openid", "profile"})

		result, err := f.rotate(t, g, f.fullChain(), client, "rt_seed", nil)
		require.NoError(t, err)
		assert.Equal(t, "openid profile", result.Scope)
	})
}

func TestRefreshToken_DisallowedClient(t *testing.T) {
	f := newFixture()
	g := f.refreshGrant(t)
	client := f.publicClient(t)
	client.AllowedGrants = []models.GrantType{models.GrantAuthorizationCode}
	f.seedRefreshToken(t, client, []string{"openid"})

	_, err := f.rotate(t, g, f.fullChain(), client, "rt_seed", nil)
	assertOAuthCode(t, err, models.ErrorCodeUnauthorizedClient)
}
