package grant

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"

	"grantor/internal/oauth/models"
)

// RFC 7636 §4.1 bounds for code_verifier length.
const (
	minVerifierLength = 43
	maxVerifierLength = 128
)

// PKCEExtension binds authorization codes to a client-held verifier via a
// one-way challenge transform, closing the code interception attack.
//
// Authorize-phase: validates the challenge method and freezes the challenge
// on the code record. A public client without a challenge is rejected
// outright.
// Token-phase: recomputes the transform over the presented verifier and
// requires a byte-exact match, strictly before any token is minted.
type PKCEExtension struct {
	allowPlain bool
}

// PKCEOption configures a PKCEExtension instance.
type PKCEOption func(*PKCEExtension)

// WithoutPlain rejects the "plain" challenge method, leaving S256 as the
// only accepted transform.
func WithoutPlain() PKCEOption {
	return func(e *PKCEExtension) {
		e.allowPlain = false
	}
}

// NewPKCE constructs the PKCE extension. Both S256 and plain are accepted
// by default; S256 is the preferred method.
func NewPKCE(opts ...PKCEOption) *PKCEExtension {
	ext := &PKCEExtension{allowPlain: true}
	for _, opt := range opts {
		if opt != nil {
			opt(ext)
		}
	}
	return ext
}

func (e *PKCEExtension) Name() string { return "pkce" }

func (e *PKCEExtension) OnAuthorize(_ context.Context, ac *AuthorizeContext) error {
	challenge := ac.Request.CodeChallenge
	method := ac.Request.CodeChallengeMethod

	if challenge == "" {
		if method != "" {
			return models.ErrInvalidRequest("code_challenge_method without code_challenge")
		}
		if ac.Client.IsPublic() {
			return models.ErrInvalidRequest("code_challenge is required for public clients")
		}
		return nil
	}

	if method == "" {
		// RFC 7636 §4.3 defaults an absent method to plain.
		method = models.CodeChallengePlain
	}
	switch method {
	case models.CodeChallengeS256:
	case models.CodeChallengePlain:
		if !e.allowPlain {
			return models.ErrInvalidRequest("code_challenge_method plain is not allowed")
		}
	default:
		return models.ErrInvalidRequest("unsupported code_challenge_method")
	}

	ac.Code.CodeChallenge = challenge
	ac.Code.CodeChallengeMethod = method
	return nil
}

func (e *PKCEExtension) OnToken(_ context.Context, tc *TokenContext) error {
	if tc.Code == nil {
		// PKCE applies to the authorization code exchange only.
		return nil
	}
	challenge := tc.Code.CodeChallenge
	verifier := tc.Request.CodeVerifier

	if challenge == "" {
		if verifier != "" {
			return models.ErrInvalidRequest("code_verifier without a recorded code_challenge")
		}
		return nil
	}
	if verifier == "" {
		return models.ErrInvalidGrant()
	}
	if len(verifier) < minVerifierLength || len(verifier) > maxVerifierLength {
		return models.ErrInvalidRequest("code_verifier length out of range")
	}

	var computed string
	switch tc.Code.CodeChallengeMethod {
	case models.CodeChallengeS256:
		sum := sha256.Sum256([]byte(verifier))
		computed = base64.RawURLEncoding.EncodeToString(sum[:])
	case models.CodeChallengePlain:
		computed = verifier
	default:
		// A stored method outside the supported set means the authorize
		// phase was bypassed; fail closed.
		return models.ErrInvalidGrant()
	}

	if subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) != 1 {
		return models.ErrInvalidGrant()
	}
	return nil
}
