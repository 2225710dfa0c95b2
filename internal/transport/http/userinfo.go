package httptransport

import (
	"net/http"

	jwttoken "grantor/internal/jwt_token"
	"grantor/pkg/platform/httputil"
	authmw "grantor/pkg/platform/middleware/auth"
)

// AccessTokenValidator adapts the JWT service to the bearer guard mounted in
// front of protected routes.
type AccessTokenValidator struct {
	jwt *jwttoken.JWTService
}

// NewAccessTokenValidator wraps the JWT service for RequireBearer.
func NewAccessTokenValidator(jwt *jwttoken.JWTService) *AccessTokenValidator {
	return &AccessTokenValidator{jwt: jwt}
}

func (v *AccessTokenValidator) ValidateToken(tokenString string) (*authmw.TokenClaims, error) {
	claims, err := v.jwt.ValidateAccessToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &authmw.TokenClaims{
		SubjectID: claims.Subject,
		SessionID: claims.SessionID,
		ClientID:  claims.ClientID,
		JTI:       claims.ID,
		Scope:     claims.Scope,
	}, nil
}

// handleUserInfo serves the OIDC userinfo endpoint. The bearer guard has
// already validated the token and checked the revocation list, so the
// handler only reflects the authenticated principal. sid is the OIDC
// session ID claim; clients use it to correlate logout.
func handleUserInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body := map[string]string{
		"sub": authmw.GetSubjectID(ctx),
	}
	if sid := authmw.GetSessionID(ctx); sid != "" {
		body["sid"] = sid
	}
	httputil.WriteJSON(w, http.StatusOK, body)
}
