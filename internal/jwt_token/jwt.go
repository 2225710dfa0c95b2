package jwttoken

import (
	"errors"
	"time"

	dErrors "grantor/pkg/domain-errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenClaims are the claims carried by access tokens. SessionID links
// the token to its issuing session so one revocation entry covers the whole
// lineage.
type AccessTokenClaims struct {
	SessionID string `json:"session_id"`
	ClientID  string `json:"client_id"`
	Scope     string `json:"scope"`
	jwt.RegisteredClaims
}

// IDTokenClaims are the OpenID Connect identity assertion claims. Nonce is
// present exactly when the authorize request carried one.
type IDTokenClaims struct {
	Nonce    string   `json:"nonce,omitempty"`
	AuthTime int64    `json:"auth_time,omitempty"`
	ACR      string   `json:"acr,omitempty"`
	AMR      []string `json:"amr,omitempty"`
	jwt.RegisteredClaims
}

// JWTService signs and validates access and ID tokens with HS256.
type JWTService struct {
	signingKey []byte
	issuer     string
	clock      func() time.Time
}

// Option configures a JWTService instance.
type Option func(*JWTService)

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) Option {
	return func(s *JWTService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewJWTService(signingKey string, issuer string, opts ...Option) *JWTService {
	service := &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		clock:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(service)
		}
	}
	return service
}

// AccessTokenInput carries everything GenerateAccessToken needs. Scope is the
// space-joined granted scope string.
type AccessTokenInput struct {
	SubjectID uuid.UUID
	SessionID uuid.UUID
	ClientID  string
	Scope     string
	ExpiresIn time.Duration
}

func (s *JWTService) GenerateAccessToken(input AccessTokenInput) (string, error) {
	now := s.clock()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessTokenClaims{
		SessionID: input.SessionID.String(),
		ClientID:  input.ClientID,
		Scope:     input.Scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   input.SubjectID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(input.ExpiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{input.ClientID},
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(s.signingKey)
}

// IDTokenInput carries everything GenerateIDToken needs. AuthTime is the
// original subject authentication instant, not the token issuance instant.
type IDTokenInput struct {
	SubjectID uuid.UUID
	ClientID  string
	Nonce     string
	AuthTime  time.Time
	ACR       string
	AMR       []string
	ExpiresIn time.Duration
}

func (s *JWTService) GenerateIDToken(input IDTokenInput) (string, error) {
	now := s.clock()
	claims := IDTokenClaims{
		Nonce: input.Nonce,
		ACR:   input.ACR,
		AMR:   input.AMR,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   input.SubjectID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(input.ExpiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{input.ClientID},
		},
	}
	if !input.AuthTime.IsZero() {
		claims.AuthTime = input.AuthTime.Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.signingKey)
}

func (s *JWTService) ValidateAccessToken(tokenString string) (*AccessTokenClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &AccessTokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	claims, ok := parsed.Claims.(*AccessTokenClaims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return claims, nil
}

// ExtractSessionID returns the session ID claim from a still-valid access
// token. Revocation endpoints use it to locate the token's lineage.
func (s *JWTService) ExtractSessionID(tokenString string) (uuid.UUID, error) {
	claims, err := s.ValidateAccessToken(tokenString)
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(claims.SessionID)
}
