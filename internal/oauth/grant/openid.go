package grant

import (
	"context"
	"errors"
	"fmt"
	"time"

	jwttoken "grantor/internal/jwt_token"
	"grantor/internal/oauth/models"
	"grantor/internal/oauth/store"
	id "grantor/pkg/domain"
	"grantor/pkg/platform/sentinel"

	"github.com/google/uuid"
)

// OpenIDExtension assembles the OpenID Connect identity assertion.
//
// Authorize-phase: when the request asks for the openid scope, freezes the
// nonce (if supplied) on the code record.
// Token-phase: when the granted scopes include openid, signs an ID token
// from the validated grant context. The nonce claim echoes the recorded
// value exactly, or is absent when none was recorded.
type OpenIDExtension struct {
	jwt          *jwttoken.JWTService
	sessions     store.SessionStore
	lifetime     time.Duration
	requireNonce bool
}

// OpenIDOption configures an OpenIDExtension instance.
type OpenIDOption func(*OpenIDExtension)

// WithRequireNonce rejects openid authorize requests that carry no nonce.
// Off by default; per-client enforcement comes from the client record.
func WithRequireNonce() OpenIDOption {
	return func(e *OpenIDExtension) {
		e.requireNonce = true
	}
}

// NewOpenID constructs the OpenID claims extension. sessions may be nil, in
// which case acr/amr enrichment is skipped on refresh.
func NewOpenID(jwt *jwttoken.JWTService, sessions store.SessionStore, idTokenLifetime time.Duration, opts ...OpenIDOption) *OpenIDExtension {
	ext := &OpenIDExtension{
		jwt:      jwt,
		sessions: sessions,
		lifetime: idTokenLifetime,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ext)
		}
	}
	return ext
}

func (e *OpenIDExtension) Name() string { return "openid" }

func (e *OpenIDExtension) OnAuthorize(_ context.Context, ac *AuthorizeContext) error {
	if !ac.Request.HasScope(models.ScopeOpenID) {
		return nil
	}
	if ac.Session == nil || ac.Session.SubjectID.IsNil() {
		return models.ErrInvalidRequest("openid requires an authenticated subject")
	}
	if ac.Request.Nonce == "" && (e.requireNonce || ac.Client.RequireNonce) {
		return models.ErrInvalidRequest("nonce is required")
	}
	ac.Code.Nonce = ac.Request.Nonce
	return nil
}

func (e *OpenIDExtension) OnToken(ctx context.Context, tc *TokenContext) error {
	if !models.ScopesInclude(tc.GrantedScopes, models.ScopeOpenID) {
		return nil
	}

	input := jwttoken.IDTokenInput{
		ClientID:  tc.Client.OAuthClientID,
		ExpiresIn: e.lifetime,
	}

	var sessionID id.SessionID
	switch {
	case tc.Code != nil:
		input.SubjectID = uuid.UUID(tc.Code.SubjectID)
		input.Nonce = tc.Code.Nonce
		input.AuthTime = tc.Code.AuthTime
		sessionID = tc.Code.SessionID
	case tc.Refresh != nil:
		input.SubjectID = uuid.UUID(tc.Refresh.SubjectID)
		input.Nonce = tc.Refresh.Nonce
		sessionID = tc.Refresh.SessionID
	default:
		return fmt.Errorf("openid token phase without a grant artifact")
	}

	// acr/amr come from the live session when it is still around. A missing
	// session is not an error here: the grant artifact already proved the
	// original authentication.
	if e.sessions != nil {
		session, err := e.sessions.FindByID(ctx, sessionID)
		switch {
		case err == nil:
			input.ACR = session.ACR
			input.AMR = session.AMR
			if input.AuthTime.IsZero() {
				input.AuthTime = session.AuthTime
			}
		case errors.Is(err, sentinel.ErrNotFound):
		default:
			return fmt.Errorf("load session for id token: %w", err)
		}
	}

	idToken, err := e.jwt.GenerateIDToken(input)
	if err != nil {
		return fmt.Errorf("sign id token: %w", err)
	}
	tc.IDToken = idToken
	return nil
}
