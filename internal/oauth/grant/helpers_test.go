package grant

import (
	"context"
	"sync"
	"testing"
	"time"

	jwttoken "grantor/internal/jwt_token"
	"grantor/internal/oauth/models"
	authcodestore "grantor/internal/oauth/store/authorization-code"
	consentstore "grantor/internal/oauth/store/consent"
	refreshstore "grantor/internal/oauth/store/refresh-token"
	sessionstore "grantor/internal/oauth/store/session"
	id "grantor/pkg/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Values from RFC 7636 appendix B. SHA256(testVerifier) base64url-encodes to
// testChallengeS256.
const (
	testChallengeS256 = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
	testVerifier      = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
)

// staticIssuer returns a fixed access token without signing anything.
type staticIssuer struct {
	token     string
	expiresIn time.Duration
}

func (s staticIssuer) IssueAccessToken(context.Context, id.SubjectID, id.SessionID, string, []string) (string, time.Duration, error) {
	return s.token, s.expiresIn, nil
}

// recordingReporter captures replay signals for assertions.
type recordingReporter struct {
	mu             sync.Mutex
	replayedCodes  []*models.AuthorizationCodeRecord
	reusedRefresh  []*models.RefreshTokenRecord
}

func (r *recordingReporter) CodeReplayed(_ context.Context, record *models.AuthorizationCodeRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replayedCodes = append(r.replayedCodes, record)
}

func (r *recordingReporter) RefreshTokenReused(_ context.Context, record *models.RefreshTokenRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reusedRefresh = append(r.reusedRefresh, record)
}

type fixture struct {
	now      time.Time
	codes    *authcodestore.InMemoryStore
	refresh  *refreshstore.InMemoryStore
	sessions *sessionstore.InMemoryStore
	consents *consentstore.InMemoryStore
	reporter *recordingReporter
	jwt      *jwttoken.JWTService
}

func newFixture() *fixture {
	return &fixture{
		now:      time.Now().Truncate(time.Second),
		codes:    authcodestore.New(),
		refresh:  refreshstore.New(),
		sessions: sessionstore.New(),
		consents: consentstore.New(),
		reporter: &recordingReporter{},
		jwt:      jwttoken.NewJWTService("grant-test-key", "https://issuer.test"),
	}
}

func (f *fixture) publicClient(t *testing.T) *models.Client {
	t.Helper()
	client, err := models.NewClient(
		id.ClientID(uuid.New()),
		"Public App",
		"public-client",
		"",
		[]string{"https://app/cb"},
		[]models.GrantType{models.GrantAuthorizationCode, models.GrantRefreshToken},
		[]string{"openid", "profile", "email"},
		false,
		f.now,
	)
	require.NoError(t, err)
	return client
}

func (f *fixture) session(t *testing.T) *models.SubjectSession {
	t.Helper()
	session := &models.SubjectSession{
		ID:        id.SessionID(uuid.New()),
		SubjectID: id.SubjectID(uuid.New()),
		AuthTime:  f.now.Add(-5 * time.Minute),
		AMR:       []string{"pwd"},
		Active:    true,
		CreatedAt: f.now.Add(-5 * time.Minute),
		ExpiresAt: f.now.Add(24 * time.Hour),
	}
	require.NoError(t, f.sessions.Save(context.Background(), session))
	return session
}

func (f *fixture) consent(t *testing.T, subjectID id.SubjectID, clientID string, scopes []string) {
	t.Helper()
	require.NoError(t, f.consents.Save(context.Background(), &models.ConsentRecord{
		SubjectID: subjectID,
		ClientID:  clientID,
		Scopes:    scopes,
		GrantedAt: f.now.Add(-time.Minute),
	}))
}

func (f *fixture) authCodeGrant(t *testing.T) *AuthorizationCodeGrant {
	t.Helper()
	g, err := NewAuthorizationCode(AuthorizationCodeConfig{
		Codes:              f.codes,
		RefreshTokens:      f.refresh,
		Issuer:             staticIssuer{token: "at_test", expiresIn: time.Hour},
		Security:           f.reporter,
		CodeTTL:            5 * time.Minute,
		RefreshTTL:         30 * 24 * time.Hour,
		IssueRefreshTokens: true,
	})
	require.NoError(t, err)
	return g
}

func (f *fixture) refreshGrant(t *testing.T) *RefreshTokenGrant {
	t.Helper()
	g, err := NewRefreshToken(RefreshTokenConfig{
		RefreshTokens: f.refresh,
		Issuer:        staticIssuer{token: "at_refreshed", expiresIn: time.Hour},
		Security:      f.reporter,
		RefreshTTL:    30 * 24 * time.Hour,
		Rotate:        true,
	})
	require.NoError(t, err)
	return g
}

func (f *fixture) fullChain() Chain {
	return Chain{
		NewPrompt(f.consents, 10*time.Minute, 0),
		NewPKCE(),
		NewOpenID(f.jwt, f.sessions, time.Hour),
	}
}

func authorizeRequest(client *models.Client, session *models.SubjectSession) *models.AuthorizeRequest {
	return &models.AuthorizeRequest{
		ResponseType:        "code",
		ClientID:            client.OAuthClientID,
		RedirectURI:         client.RedirectURIs[0],
		Scopes:              []string{"openid", "profile"},
		State:               "af0ifjsldkj",
		CodeChallenge:       testChallengeS256,
		CodeChallengeMethod: models.CodeChallengeS256,
		SessionID:           session.ID,
	}
}
