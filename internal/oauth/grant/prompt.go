package grant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"grantor/internal/oauth/models"
	"grantor/internal/oauth/store"
	"grantor/pkg/platform/sentinel"
)

// PromptExtension enforces OIDC prompt semantics against the subject session
// and the consent ledger at authorize-time. It only reads; session and
// consent state are owned by the upstream login and consent UI.
type PromptExtension struct {
	consents      store.ConsentStore
	loginWindow   time.Duration // freshness bound for prompt=login
	consentWindow time.Duration // freshness bound for prompt=consent, 0 means any age
}

// NewPrompt constructs the prompt validator. loginWindow bounds how recent
// the upstream authentication must be for prompt=login; consentWindow bounds
// how recent the consent capture must be for prompt=consent.
func NewPrompt(consents store.ConsentStore, loginWindow, consentWindow time.Duration) *PromptExtension {
	return &PromptExtension{consents: consents, loginWindow: loginWindow, consentWindow: consentWindow}
}

func (e *PromptExtension) Name() string { return "prompt" }

func (e *PromptExtension) OnAuthorize(ctx context.Context, ac *AuthorizeContext) error {
	session := ac.Session
	active := session != nil && session.Active && ac.Now.Before(session.ExpiresAt)

	switch ac.Request.Prompt {
	case models.PromptNone:
		// No interaction may happen. Everything must already be in place.
		if !active {
			return models.ErrLoginRequired("no active session")
		}
		consented, err := e.hasConsent(ctx, ac)
		if err != nil {
			return err
		}
		if !consented {
			return models.ErrConsentRequired("consent has not been granted")
		}
		return nil

	case models.PromptLogin:
		if !active {
			return models.ErrLoginRequired("no active session")
		}
		if !session.FreshlyAuthenticated(ac.Now, e.loginWindow) {
			return models.ErrLoginRequired("re-authentication required")
		}
		return nil

	case models.PromptConsent:
		if !active {
			return models.ErrLoginRequired("no active session")
		}
		record, err := e.findConsent(ctx, ac)
		if err != nil {
			return err
		}
		if record == nil || !record.Covers(ac.Request.Scopes) || !record.FreshAsOf(ac.Now, e.consentWindow) {
			return models.ErrConsentRequired("fresh consent required")
		}
		return nil

	case "", models.PromptSelectAccount:
		// Defers to upstream session state; the engine still needs an
		// authenticated subject to bind the code to.
		if !active {
			return models.ErrLoginRequired("no active session")
		}
		return nil

	default:
		return models.ErrInvalidRequest(fmt.Sprintf("unsupported prompt %q", ac.Request.Prompt))
	}
}

func (e *PromptExtension) hasConsent(ctx context.Context, ac *AuthorizeContext) (bool, error) {
	record, err := e.findConsent(ctx, ac)
	if err != nil {
		return false, err
	}
	return record != nil && record.Covers(ac.Request.Scopes), nil
}

func (e *PromptExtension) findConsent(ctx context.Context, ac *AuthorizeContext) (*models.ConsentRecord, error) {
	record, err := e.consents.Find(ctx, ac.Session.SubjectID, ac.Client.OAuthClientID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load consent: %w", err)
	}
	return record, nil
}
