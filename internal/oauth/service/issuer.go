package service

import (
	"context"
	"strings"
	"time"

	jwttoken "grantor/internal/jwt_token"
	id "grantor/pkg/domain"

	"github.com/google/uuid"
)

// TokenIssuer adapts the JWT service to the grant engine's issuer contract,
// fixing the access token lifetime at wiring time.
type TokenIssuer struct {
	jwt       *jwttoken.JWTService
	accessTTL time.Duration
}

// NewTokenIssuer constructs the adapter.
func NewTokenIssuer(jwt *jwttoken.JWTService, accessTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{jwt: jwt, accessTTL: accessTTL}
}

func (i *TokenIssuer) IssueAccessToken(_ context.Context, subjectID id.SubjectID, sessionID id.SessionID, clientID string, scopes []string) (string, time.Duration, error) {
	token, err := i.jwt.GenerateAccessToken(jwttoken.AccessTokenInput{
		SubjectID: uuid.UUID(subjectID),
		SessionID: uuid.UUID(sessionID),
		ClientID:  clientID,
		Scope:     strings.Join(scopes, " "),
		ExpiresIn: i.accessTTL,
	})
	if err != nil {
		return "", 0, err
	}
	return token, i.accessTTL, nil
}
