// Package service fronts the grant engine: it resolves and authenticates
// clients, dispatches requests through the registry, translates internal
// failures into the OAuth error taxonomy, and emits audit events. Handlers
// talk only to this package.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	jwttoken "grantor/internal/jwt_token"
	"grantor/internal/oauth/grant"
	"grantor/internal/oauth/models"
	"grantor/internal/oauth/store"
	"grantor/internal/platform/metrics"
	id "grantor/pkg/domain"
	dErrors "grantor/pkg/domain-errors"
	"grantor/pkg/platform/audit"
	"grantor/pkg/platform/sentinel"
)

const tracerName = "grantor/internal/oauth/service"

// Service executes OAuth requests end to end.
type Service struct {
	registry      *grant.Registry
	clients       store.ClientStore
	sessions      store.SessionStore
	refreshTokens store.RefreshTokenStore
	revocations   store.RevocationList
	jwt           *jwttoken.JWTService

	auditPub     AuditPublisher
	logger       *slog.Logger
	metrics      *metrics.Metrics
	tracer       trace.Tracer
	clock        func() time.Time
	storeTimeout time.Duration
}

// Option configures optional Service collaborators.
type Option func(*Service)

// WithLogger overrides the default slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAuditPublisher routes audit events to the given publisher.
func WithAuditPublisher(pub AuditPublisher) Option {
	return func(s *Service) {
		if pub != nil {
			s.auditPub = pub
		}
	}
}

// WithMetrics enables Prometheus counters. Without it nothing is recorded.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithStoreTimeout bounds every store round trip. Zero disables the bound.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) { s.storeTimeout = d }
}

// New constructs the service. All positional dependencies are required.
func New(
	registry *grant.Registry,
	clients store.ClientStore,
	sessions store.SessionStore,
	refreshTokens store.RefreshTokenStore,
	revocations store.RevocationList,
	jwt *jwttoken.JWTService,
	opts ...Option,
) (*Service, error) {
	if registry == nil {
		return nil, fmt.Errorf("service: registry is required")
	}
	if clients == nil {
		return nil, fmt.Errorf("service: client store is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("service: session store is required")
	}
	if refreshTokens == nil {
		return nil, fmt.Errorf("service: refresh token store is required")
	}
	if revocations == nil {
		return nil, fmt.Errorf("service: revocation list is required")
	}
	if jwt == nil {
		return nil, fmt.Errorf("service: jwt service is required")
	}
	s := &Service{
		registry:      registry,
		clients:       clients,
		sessions:      sessions,
		refreshTokens: refreshTokens,
		revocations:   revocations,
		jwt:           jwt,
		auditPub:      nopAuditPublisher{},
		logger:        slog.Default(),
		tracer:        otel.Tracer(tracerName),
		clock:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Authorize runs the authorize phase: resolve the client, gate the redirect
// URI, attach the subject session, and dispatch by response_type. The
// returned result carries the single-use code and the echoed state.
func (s *Service) Authorize(ctx context.Context, req *models.AuthorizeRequest) (*models.AuthorizeResult, error) {
	ctx, span := s.tracer.Start(ctx, "oauth.authorize",
		trace.WithAttributes(attribute.String("oauth.client_id", req.ClientID)))
	defer span.End()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, models.ErrInvalidRequest(dErrors.MessageOf(err)).Direct()
	}

	client, err := s.resolveClient(ctx, req.ClientID)
	if err != nil {
		if oerr, ok := models.AsOAuthError(err); ok {
			return nil, oerr.Direct()
		}
		return nil, err
	}
	// The redirect URI gate runs before anything else client-dependent.
	// Failures up to and including this point must never be delivered by
	// redirect; everything after it may, the URI is now trusted.
	if !client.RedirectURIAllowed(req.RedirectURI) {
		return nil, models.ErrInvalidRequest("redirect_uri is not registered for this client").Direct()
	}

	session, err := s.loadSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	g, chain, err := s.registry.AuthorizeGrantFor(req.ResponseType)
	if err != nil {
		return nil, s.translate(ctx, err)
	}

	ac := &grant.AuthorizeContext{
		Client:  client,
		Request: req,
		Session: session,
		Now:     s.clock(),
	}
	result, err := g.Authorize(ctx, ac, chain)
	if err != nil {
		oerr := s.translate(ctx, err)
		s.metrics.IncGrantFailures(oauthCode(oerr))
		s.emitAudit(ctx, audit.Event{
			SubjectID: subjectOf(session),
			SessionID: req.SessionID.String(),
			ClientID:  req.ClientID,
			Action:    string(audit.EventAuthorizeRejected),
			Reason:    oauthCode(oerr),
		})
		return nil, oerr
	}

	s.metrics.IncCodesIssued()
	s.emitAudit(ctx, audit.Event{
		SubjectID: subjectOf(session),
		SessionID: req.SessionID.String(),
		ClientID:  req.ClientID,
		Action:    string(audit.EventCodeIssued),
	})
	return result, nil
}

// Token runs the token phase: authenticate the client, then dispatch by
// grant_type. Both authorization_code redemption and refresh_token rotation
// land here.
func (s *Service) Token(ctx context.Context, req *models.TokenRequest) (*models.TokenResult, error) {
	ctx, span := s.tracer.Start(ctx, "oauth.token",
		trace.WithAttributes(
			attribute.String("oauth.client_id", req.ClientID),
			attribute.String("oauth.grant_type", req.GrantType),
		))
	defer span.End()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, models.ErrInvalidRequest(dErrors.MessageOf(err))
	}

	client, err := s.authenticateClient(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, err
	}

	tg, chain, err := s.registry.TokenGrantFor(req.GrantType)
	if err != nil {
		return nil, s.translate(ctx, err)
	}

	tc := &grant.TokenContext{
		Client:  client,
		Request: req,
		Now:     s.clock(),
	}
	result, err := tg.Token(ctx, tc, chain)
	if err != nil {
		oerr := s.translate(ctx, err)
		s.metrics.IncGrantFailures(oauthCode(oerr))
		return nil, oerr
	}

	s.recordTokenSuccess(ctx, req.GrantType, tc)
	return result, nil
}

// Revoke implements RFC 7009. Presenting a refresh token revokes its whole
// session lineage; presenting an access token denylists its JTI until the
// token would have expired anyway. Tokens the server does not recognize or
// that belong to another client revoke nothing, and the call still succeeds.
func (s *Service) Revoke(ctx context.Context, req *models.RevokeRequest) error {
	ctx, span := s.tracer.Start(ctx, "oauth.revoke",
		trace.WithAttributes(attribute.String("oauth.client_id", req.ClientID)))
	defer span.End()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if req.Token == "" {
		return models.ErrInvalidRequest("token is required")
	}
	client, err := s.authenticateClient(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return err
	}

	if done, err := s.revokeAsRefreshToken(ctx, client, req.Token); done || err != nil {
		return err
	}
	return s.revokeAsAccessToken(ctx, client, req.Token)
}

func (s *Service) revokeAsRefreshToken(ctx context.Context, client *models.Client, token string) (bool, error) {
	record, err := s.refreshTokens.Find(ctx, token)
	switch {
	case err == nil:
	case errors.Is(err, sentinel.ErrNotFound):
		return false, nil
	case errors.Is(err, sentinel.ErrUnavailable):
		return true, models.ErrTemporarilyUnavailable()
	default:
		s.logger.Error("revoke: refresh token lookup failed", "error", err)
		return true, models.ErrServerError()
	}
	if record.ClientID != client.OAuthClientID {
		// RFC 7009 2.1: do not reveal token existence to other clients.
		return true, nil
	}

	if err := s.revocations.RevokeSession(ctx, record.SessionID.String(), s.revocationTTL(record.ExpiresAt)); err != nil {
		return true, s.translate(ctx, err)
	}
	if _, err := s.refreshTokens.DeleteBySessionID(ctx, record.SessionID); err != nil {
		s.logger.Error("revoke: failed to delete refresh token chain",
			"session_id", record.SessionID.String(), "error", err)
	}
	s.metrics.IncTokensRevoked()
	s.emitAudit(ctx, audit.Event{
		SubjectID: record.SubjectID,
		SessionID: record.SessionID.String(),
		ClientID:  client.OAuthClientID,
		Action:    string(audit.EventSessionRevoked),
		Reason:    "refresh token revoked by client request",
	})
	return true, nil
}

func (s *Service) revokeAsAccessToken(ctx context.Context, client *models.Client, token string) error {
	claims, err := s.jwt.ValidateAccessToken(token)
	if err != nil {
		// Unknown or already-expired tokens are a no-op success.
		return nil
	}
	if claims.ClientID != client.OAuthClientID {
		return nil
	}
	ttl := time.Duration(0)
	if claims.ExpiresAt != nil {
		ttl = claims.ExpiresAt.Time.Sub(s.clock())
	}
	if ttl <= 0 {
		return nil
	}
	if err := s.revocations.RevokeToken(ctx, claims.ID, ttl); err != nil {
		return s.translate(ctx, err)
	}
	s.metrics.IncTokensRevoked()
	subjectID, _ := id.ParseSubjectID(claims.Subject)
	s.emitAudit(ctx, audit.Event{
		SubjectID: subjectID,
		SessionID: claims.SessionID,
		ClientID:  client.OAuthClientID,
		Action:    string(audit.EventTokenRevoked),
		Reason:    "access token revoked by client request",
	})
	return nil
}

// resolveClient loads an active client record. Missing or disabled clients
// surface uniformly as invalid_client.
func (s *Service) resolveClient(ctx context.Context, clientID string) (*models.Client, error) {
	client, err := s.clients.FindByOAuthClientID(ctx, clientID)
	switch {
	case err == nil:
	case errors.Is(err, sentinel.ErrNotFound):
		return nil, models.ErrInvalidClient("unknown client")
	case errors.Is(err, sentinel.ErrUnavailable):
		return nil, models.ErrTemporarilyUnavailable()
	default:
		s.logger.Error("client lookup failed", "client_id", clientID, "error", err)
		return nil, models.ErrServerError()
	}
	if !client.IsActive() {
		return nil, models.ErrInvalidClient("client is disabled")
	}
	return client, nil
}

// authenticateClient resolves the client and, for confidential clients,
// verifies the presented secret. Public clients authenticate by identifier
// alone.
func (s *Service) authenticateClient(ctx context.Context, clientID, clientSecret string) (*models.Client, error) {
	client, err := s.resolveClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if client.Confidential {
		if err := client.VerifySecret(clientSecret); err != nil {
			s.emitAudit(ctx, audit.Event{
				ClientID: clientID,
				Action:   string(audit.EventClientAuthFailed),
				Reason:   "client secret verification failed",
			})
			return nil, models.ErrInvalidClient("client authentication failed")
		}
	}
	return client, nil
}

// loadSession resolves the subject session named by the request, if any.
// A nil session is a valid outcome; the grant pipeline decides whether one
// is required.
func (s *Service) loadSession(ctx context.Context, sessionID id.SessionID) (*models.SubjectSession, error) {
	if sessionID.IsNil() {
		return nil, nil
	}
	session, err := s.sessions.FindByID(ctx, sessionID)
	switch {
	case err == nil:
		return session, nil
	case errors.Is(err, sentinel.ErrNotFound), errors.Is(err, sentinel.ErrExpired):
		return nil, nil
	case errors.Is(err, sentinel.ErrUnavailable):
		return nil, models.ErrTemporarilyUnavailable()
	default:
		s.logger.Error("session lookup failed", "session_id", sessionID.String(), "error", err)
		return nil, models.ErrServerError()
	}
}

func (s *Service) recordTokenSuccess(ctx context.Context, grantType string, tc *grant.TokenContext) {
	s.metrics.IncTokensIssued(grantType)
	switch models.GrantType(grantType) {
	case models.GrantAuthorizationCode:
		s.metrics.IncCodesRedeemed()
		if tc.Code != nil {
			s.emitAudit(ctx, audit.Event{
				SubjectID: tc.Code.SubjectID,
				SessionID: tc.Code.SessionID.String(),
				ClientID:  tc.Client.OAuthClientID,
				Action:    string(audit.EventTokenIssued),
			})
		}
	case models.GrantRefreshToken:
		if tc.Refresh != nil {
			s.emitAudit(ctx, audit.Event{
				SubjectID: tc.Refresh.SubjectID,
				SessionID: tc.Refresh.SessionID.String(),
				ClientID:  tc.Client.OAuthClientID,
				Action:    string(audit.EventTokenRefreshed),
			})
		}
	}
}

// translate maps internal failures onto the OAuth error taxonomy. OAuth
// errors pass through untouched; infrastructure unavailability becomes a
// retryable 503 and is never conflated with invalid_grant; anything
// unexpected is logged and collapsed to server_error.
func (s *Service) translate(ctx context.Context, err error) *models.OAuthError {
	if oerr, ok := models.AsOAuthError(err); ok {
		return oerr
	}
	if errors.Is(err, sentinel.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		s.logger.Warn("store unavailable", "error", err)
		return models.ErrTemporarilyUnavailable()
	}
	if dErrors.HasCode(err, dErrors.CodeValidation) || dErrors.HasCode(err, dErrors.CodeInvalidInput) {
		return models.ErrInvalidRequest(dErrors.MessageOf(err))
	}
	s.logger.ErrorContext(ctx, "grant execution failed", "error", err)
	return models.ErrServerError()
}

// withTimeout bounds a whole operation when a store timeout is configured.
// Grant execution spans several store calls that share one bound.
func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.storeTimeout)
}

func (s *Service) revocationTTL(expiresAt time.Time) time.Duration {
	ttl := expiresAt.Sub(s.clock())
	if ttl <= 0 {
		ttl = time.Minute
	}
	return ttl
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if err := s.auditPub.Emit(ctx, event); err != nil {
		s.logger.Warn("audit emit failed", "action", event.Action, "error", err)
	}
}

func oauthCode(err *models.OAuthError) string {
	if err == nil {
		return ""
	}
	return err.Code
}

func subjectOf(session *models.SubjectSession) id.SubjectID {
	if session == nil {
		return id.SubjectID{}
	}
	return session.SubjectID
}
