package grant

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"grantor/internal/oauth/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) authorize(t *testing.T, g *AuthorizationCodeGrant, chain Chain, mutate func(*AuthorizeContext)) (*models.AuthorizeResult, error) {
	t.Helper()
	client := f.publicClient(t)
	session := f.session(t)
	ac := &AuthorizeContext{
		Client:  client,
		Request: authorizeRequest(client, session),
		Session: session,
		Now:     f.now,
	}
	if mutate != nil {
		mutate(ac)
	}
	return g.Authorize(context.Background(), ac, chain)
}

func TestAuthorizationCode_Authorize(t *testing.T) {
	t.Run("issues a code bound to the session", func(t *testing.T) {
		f := newFixture()
		g := f.authCodeGrant(t)

		var ac *AuthorizeContext
		result, err := f.authorize(t, g, f.fullChain(), func(a *AuthorizeContext) { ac = a })
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(result.Code, "authz_"))
		assert.Equal(t, "af0ifjsldkj", result.State)
		assert.Equal(t, "https://app/cb", result.RedirectURI)

		stored, err := f.codes.FindByCode(context.Background(), result.Code)
		require.NoError(t, err)
		assert.Equal(t, ac.Session.SubjectID, stored.SubjectID)
		assert.Equal(t, ac.Session.ID, stored.SessionID)
		assert.Equal(t, testChallengeS256, stored.CodeChallenge)
		assert.Equal(t, f.now.Add(5*time.Minute), stored.ExpiresAt)
		assert.False(t, stored.Used)
	})

	t.Run("wrong response_type fails", func(t *testing.T) {
		f := newFixture()
		g := f.authCodeGrant(t)
		_, err := f.authorize(t, g, f.fullChain(), func(a *AuthorizeContext) {
			a.Request.ResponseType = "token"
		})
		assertOAuthCode(t, err, models.ErrorCodeInvalidRequest)
	})

	t.Run("disallowed grant fails with unauthorized_client", func(t *testing.T) {
		f := newFixture()
		g := f.authCodeGrant(t)
		_, err := f.authorize(t, g, f.fullChain(), func(a *AuthorizeContext) {
			a.Client.AllowedGrants = []models.GrantType{models.GrantRefreshToken}
		})
		assertOAuthCode(t, err, models.ErrorCodeUnauthorizedClient)
	})

	t.Run("scope outside the client allowance fails with invalid_scope", func(t *testing.T) {
		f := newFixture()
		g := f.authCodeGrant(t)
		_, err := f.authorize(t, g, f.fullChain(), func(a *AuthorizeContext) {
			a.Request.Scopes = []string{"openid", "admin"}
		})
		assertOAuthCode(t, err, models.ErrorCodeInvalidScope)
	})

	t.Run("session gating runs before pkce and claims checks", func(t *testing.T) {
		f := newFixture()
		g := f.authCodeGrant(t)
		// Unauthenticated caller with every other defect at once: the answer
		// must still be login_required, not a PKCE or openid complaint.
		_, err := f.authorize(t, g, f.fullChain(), func(a *AuthorizeContext) {
			a.Session = nil
			a.Request.Prompt = models.PromptNone
			a.Request.CodeChallenge = ""
			a.Request.CodeChallengeMethod = ""
		})
		assertOAuthCode(t, err, models.ErrorCodeLoginRequired)
	})

	t.Run("extension failure leaves no code behind", func(t *testing.T) {
		f := newFixture()
		g := f.authCodeGrant(t)
		_, err := f.authorize(t, g, f.fullChain(), func(a *AuthorizeContext) {
			a.Request.CodeChallenge = ""
			a.Request.CodeChallengeMethod = ""
		})
		assertOAuthCode(t, err, models.ErrorCodeInvalidRequest)

		deleted, err2 := f.codes.DeleteExpiredCodes(context.Background(), f.now.Add(24*time.Hour))
		require.NoError(t, err2)
		assert.Zero(t, deleted, "a failed authorize call must not persist a code")
	})
}

func (f *fixture) redeem(t *testing.T, g *AuthorizationCodeGrant, chain Chain, code string, client *models.Client, verifier string) (*models.TokenResult, error) {
	t.Helper()
	tc := &TokenContext{
		Client: client,
		Request: &models.TokenRequest{
			GrantType:    string(models.GrantAuthorizationCode),
			ClientID:     client.OAuthClientID,
			Code:         code,
			RedirectURI:  client.RedirectURIs[0],
			CodeVerifier: verifier,
		},
		Now: f.now,
	}
	return g.Token(context.Background(), tc, chain)
}

func TestAuthorizationCode_Redeem(t *testing.T) {
	t.Run("full exchange returns access, refresh and id tokens", func(t *testing.T) {
		f := newFixture()
		g := f.authCodeGrant(t)
		chain := f.fullChain()

		var client *models.Client
		result, err := f.authorize(t, g, chain, func(a *AuthorizeContext) { client = a.Client })
		require.NoError(t, err)

		tokens, err := f.redeem(t, g, chain, result.Code, client, testVerifier)
		require.NoError(t, err)

		assert.Equal(t, "at_test", tokens.AccessToken)
		assert.Equal(t, "Bearer", tokens.TokenType)
		assert.Equal(t, int64(3600), tokens.ExpiresIn)
		assert.True(t, strings.HasPrefix(tokens.RefreshToken, "rt_"))
		assert.NotEmpty(t, tokens.IDToken)
		assert.Equal(t, "openid profile", tokens.Scope)
	})

	t.Run("wrong verifier fails with invalid_grant and burns the code", func(t *testing.T) {
		f := newFixture()
		g := f.authCodeGrant(t)
		chain := f.fullChain()

		var client *models.Client
		result, err := f.authorize(t, g, chain, func(a *AuthorizeContext) { client = a.Client })
		require.NoError(t, err)

		_, err = f.redeem(t, g, chain, result.Code, client, strings.Repeat("x", 43))
		assertOAuthCode(t, err, models.ErrorCodeInvalidGrant)

		// The failed exchange consumed the code: a retry with the right
		// verifier must not succeed.
		_, err = f.redeem(t, g, chain, result.Code, client, testVerifier)
		assertOAuthCode(t, err, models.ErrorCodeInvalidGrant)
	})

	t.Run("unknown code fails with invalid_grant", func(t *testing.T) {
		f := newFixture()
		g := f.authCodeGrant(t)
		_, err := f.redeem(t, g, f.fullChain(), "authz_nope", f.publicClient(t), testVerifier)
		assertOAuthCode(t, err, models.ErrorCodeInvalidGrant)
	})

	t.Run("expired code fails with invalid_grant", func(t *testing.T) {
		f := newFixture()
		g := f.authCodeGrant(t)
		chain := f.fullChain()

		var client *models.Client
		result, err := f.authorize(t, g, chain, func(a *AuthorizeContext) { client = a.Client })
		require.NoError(t, err)

		f.now = f.now.Add(10 * time.Minute)
		_, err = f.redeem(t, g, chain, result.Code, client, testVerifier)
		assertOAuthCode(t, err, models.ErrorCodeInvalidGrant)
	})

	t.Run("redirect_uri mismatch fails with invalid_grant", func(t *testing.T) {
		f := newFixture()
		g := f.authCodeGrant(t)
		chain := f.fullChain()

		var client *models.Client
		result, err := f.authorize(t, g, chain, func(a *AuthorizeContext) { client = a.Client })
		require.NoError(t, err)

		client.RedirectURIs = []string{"https://evil/cb"}
		_, err = f.redeem(t, g, chain, result.Code, client, testVerifier)
		assertOAuthCode(t, err, models.ErrorCodeInvalidGrant)
	})

	t.Run("replay raises a security signal", func(t *testing.T) {
		f := newFixture()
		g := f.authCodeGrant(t)
		chain := f.fullChain()

		var client *models.Client
		result, err := f.authorize(t, g, chain, func(a *AuthorizeContext) { client = a.Client })
		require.NoError(t, err)

		_, err = f.redeem(t, g, chain, result.Code, client, testVerifier)
		require.NoError(t, err)

		_, err = f.redeem(t, g, chain, result.Code, client, testVerifier)
		assertOAuthCode(t, err, models.ErrorCodeInvalidGrant)

		require.Len(t, f.reporter.replayedCodes, 1)
		assert.Equal(t, result.Code, f.reporter.replayedCodes[0].Code)
	})

	t.Run("concurrent redemption yields exactly one success", func(t *testing.T) {
		f := newFixture()
		g := f.authCodeGrant(t)
		chain := f.fullChain()

		var client *models.Client
		result, err := f.authorize(t, g, chain, func(a *AuthorizeContext) { client = a.Client })
		require.NoError(t, err)

		const attempts = 16
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
			failures  int
		)
		wg.Add(attempts)
		for i := 0; i < attempts; i++ {
			go func() {
				defer wg.Done()
				_, err := f.redeem(t, g, chain, result.Code, client, testVerifier)
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					successes++
					return
				}
				oe, ok := models.AsOAuthError(err)
				if ok && oe.Code == models.ErrorCodeInvalidGrant {
					failures++
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, successes)
		assert.Equal(t, attempts-1, failures, "every loser fails with invalid_grant")
	})
}

// TestAuthorizationCode_EndToEnd walks the documented happy path: a public
// client with an S256 challenge authorizes for openid+profile without a
// nonce, then exchanges the code with the matching verifier.
func TestAuthorizationCode_EndToEnd(t *testing.T) {
	f := newFixture()
	g := f.authCodeGrant(t)
	chain := f.fullChain()

	var (
		client  *models.Client
		session *models.SubjectSession
	)
	result, err := f.authorize(t, g, chain, func(a *AuthorizeContext) {
		client = a.Client
		session = a.Session
		a.Request.Nonce = ""
	})
	require.NoError(t, err)

	tokens, err := f.redeem(t, g, chain, result.Code, client, testVerifier)
	require.NoError(t, err)

	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)
	require.NotEmpty(t, tokens.IDToken)

	parsed, err := jwt.ParseWithClaims(tokens.IDToken, &jwtIDClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte("grant-test-key"), nil
	})
	require.NoError(t, err)
	claims := parsed.Claims.(*jwtIDClaims)
	assert.Equal(t, session.SubjectID.String(), claims.Subject)
	assert.Empty(t, claims.Nonce, "no nonce was sent, none may be fabricated")
	assert.Equal(t, session.AuthTime.Unix(), claims.AuthTime)
}

type jwtIDClaims struct {
	Nonce    string `json:"nonce,omitempty"`
	AuthTime int64  `json:"auth_time,omitempty"`
	jwt.RegisteredClaims
}
