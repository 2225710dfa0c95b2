package grant

import (
	"context"
	"strings"
	"testing"

	"grantor/internal/oauth/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pkceAuthorizeContext(f *fixture, t *testing.T, challenge, method string) *AuthorizeContext {
	client := f.publicClient(t)
	return &AuthorizeContext{
		Client: client,
		Request: &models.AuthorizeRequest{
			ResponseType:        "code",
			ClientID:            client.OAuthClientID,
			RedirectURI:         client.RedirectURIs[0],
			Scopes:              []string{"openid"},
			CodeChallenge:       challenge,
			CodeChallengeMethod: method,
		},
		Code: &models.AuthorizationCodeRecord{},
		Now:  f.now,
	}
}

func TestPKCE_Authorize(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	t.Run("records S256 challenge on the code", func(t *testing.T) {
		ac := pkceAuthorizeContext(f, t, testChallengeS256, models.CodeChallengeS256)
		require.NoError(t, NewPKCE().OnAuthorize(ctx, ac))
		assert.Equal(t, testChallengeS256, ac.Code.CodeChallenge)
		assert.Equal(t, models.CodeChallengeS256, ac.Code.CodeChallengeMethod)
	})

	t.Run("missing method defaults to plain", func(t *testing.T) {
		ac := pkceAuthorizeContext(f, t, "some-challenge-value", "")
		require.NoError(t, NewPKCE().OnAuthorize(ctx, ac))
		assert.Equal(t, models.CodeChallengePlain, ac.Code.CodeChallengeMethod)
	})

	t.Run("unknown method is rejected", func(t *testing.T) {
		ac := pkceAuthorizeContext(f, t, "challenge", "S512")
		err := NewPKCE().OnAuthorize(ctx, ac)
		oe, ok := models.AsOAuthError(err)
		require.True(t, ok)
		assert.Equal(t, models.ErrorCodeInvalidRequest, oe.Code)
	})

	t.Run("plain is rejected when disallowed", func(t *testing.T) {
		ac := pkceAuthorizeContext(f, t, "challenge", models.CodeChallengePlain)
		err := NewPKCE(WithoutPlain()).OnAuthorize(ctx, ac)
		oe, ok := models.AsOAuthError(err)
		require.True(t, ok)
		assert.Equal(t, models.ErrorCodeInvalidRequest, oe.Code)
	})

	t.Run("public client without challenge is rejected", func(t *testing.T) {
		ac := pkceAuthorizeContext(f, t, "", "")
		err := NewPKCE().OnAuthorize(ctx, ac)
		oe, ok := models.AsOAuthError(err)
		require.True(t, ok)
		assert.Equal(t, models.ErrorCodeInvalidRequest, oe.Code)
	})

	t.Run("confidential client without challenge passes", func(t *testing.T) {
		ac := pkceAuthorizeContext(f, t, "", "")
		ac.Client.Confidential = true
		require.NoError(t, NewPKCE().OnAuthorize(ctx, ac))
		assert.Empty(t, ac.Code.CodeChallenge)
	})
}

func pkceTokenContext(f *fixture, t *testing.T, challenge, method, verifier string) *TokenContext {
	client := f.publicClient(t)
	return &TokenContext{
		Client: client,
		Request: &models.TokenRequest{
			GrantType:    string(models.GrantAuthorizationCode),
			ClientID:     client.OAuthClientID,
			CodeVerifier: verifier,
		},
		Code: &models.AuthorizationCodeRecord{
			CodeChallenge:       challenge,
			CodeChallengeMethod: method,
		},
		Now: f.now,
	}
}

func TestPKCE_TokenVerification(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	t.Run("matching S256 verifier passes", func(t *testing.T) {
		tc := pkceTokenContext(f, t, testChallengeS256, models.CodeChallengeS256, testVerifier)
		require.NoError(t, NewPKCE().OnToken(ctx, tc))
	})

	t.Run("any other verifier fails with invalid_grant", func(t *testing.T) {
		wrong := strings.Repeat("a", len(testVerifier))
		tc := pkceTokenContext(f, t, testChallengeS256, models.CodeChallengeS256, wrong)
		err := NewPKCE().OnToken(ctx, tc)
		oe, ok := models.AsOAuthError(err)
		require.True(t, ok)
		assert.Equal(t, models.ErrorCodeInvalidGrant, oe.Code)
	})

	t.Run("missing verifier against a stored challenge fails with invalid_grant", func(t *testing.T) {
		tc := pkceTokenContext(f, t, testChallengeS256, models.CodeChallengeS256, "")
		err := NewPKCE().OnToken(ctx, tc)
		oe, ok := models.AsOAuthError(err)
		require.True(t, ok)
		assert.Equal(t, models.ErrorCodeInvalidGrant, oe.Code)
	})

	t.Run("plain method compares verbatim", func(t *testing.T) {
		tc := pkceTokenContext(f, t, testVerifier, models.CodeChallengePlain, testVerifier)
		require.NoError(t, NewPKCE().OnToken(ctx, tc))

		tc = pkceTokenContext(f, t, testVerifier, models.CodeChallengePlain, strings.Repeat("b", 43))
		err := NewPKCE().OnToken(ctx, tc)
		oe, ok := models.AsOAuthError(err)
		require.True(t, ok)
		assert.Equal(t, models.ErrorCodeInvalidGrant, oe.Code)
	})

	t.Run("verifier length outside RFC bounds is rejected", func(t *testing.T) {
		tc := pkceTokenContext(f, t, "short", models.CodeChallengePlain, "short")
		err := NewPKCE().OnToken(ctx, tc)
		oe, ok := models.AsOAuthError(err)
		require.True(t, ok)
		assert.Equal(t, models.ErrorCodeInvalidRequest, oe.Code)
	})

	t.Run("no stored challenge and no verifier passes", func(t *testing.T) {
		tc := pkceTokenContext(f, t, "", "", "")
		require.NoError(t, NewPKCE().OnToken(ctx, tc))
	})

	t.Run("refresh exchange is out of scope", func(t *testing.T) {
		tc := pkceTokenContext(f, t, "", "", "")
		tc.Code = nil
		tc.Refresh = &models.RefreshTokenRecord{}
		require.NoError(t, NewPKCE().OnToken(ctx, tc))
	})
}
