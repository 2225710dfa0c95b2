package service

import (
	"context"
	"log/slog"
	"time"

	"grantor/internal/oauth/models"
	"grantor/internal/oauth/store"
	"grantor/internal/platform/metrics"
	id "grantor/pkg/domain"
	"grantor/pkg/platform/audit"
)

// SecurityReporter reacts to replay signals from the grant engine. A
// redeemed-again authorization code or rotated-away refresh token means the
// credential leaked; the reporter revokes the whole session lineage so every
// access token minted under it stops working, deletes the refresh chain, and
// raises an audit event. It never fails the calling request: revocation
// errors are logged and swallowed.
type SecurityReporter struct {
	revocations   store.RevocationList
	refreshTokens store.RefreshTokenStore
	auditPub      AuditPublisher
	logger        *slog.Logger
	metrics       *metrics.Metrics
	revocationTTL time.Duration
}

// ReporterOption configures optional SecurityReporter collaborators.
type ReporterOption func(*SecurityReporter)

// WithReporterMetrics counts detected replays on the given collector.
func WithReporterMetrics(m *metrics.Metrics) ReporterOption {
	return func(r *SecurityReporter) { r.metrics = m }
}

// NewSecurityReporter constructs the reporter. The revocation TTL should
// cover the longest-lived access token plus clock skew.
func NewSecurityReporter(revocations store.RevocationList, refreshTokens store.RefreshTokenStore, auditPub AuditPublisher, logger *slog.Logger, revocationTTL time.Duration, opts ...ReporterOption) *SecurityReporter {
	if logger == nil {
		logger = slog.Default()
	}
	if auditPub == nil {
		auditPub = nopAuditPublisher{}
	}
	r := &SecurityReporter{
		revocations:   revocations,
		refreshTokens: refreshTokens,
		auditPub:      auditPub,
		logger:        logger,
		revocationTTL: revocationTTL,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *SecurityReporter) CodeReplayed(ctx context.Context, record *models.AuthorizationCodeRecord) {
	if record == nil {
		return
	}
	r.logger.Error("authorization code replayed, revoking session lineage",
		"client_id", record.ClientID,
		"subject_id", record.SubjectID.String(),
		"session_id", record.SessionID.String(),
	)
	r.metrics.IncReplaysDetected("authorization_code")
	r.revokeLineage(ctx, record.SessionID)
	_ = r.auditPub.Emit(ctx, audit.Event{
		SubjectID: record.SubjectID,
		SessionID: record.SessionID.String(),
		ClientID:  record.ClientID,
		Action:    string(audit.EventCodeReplayed),
		Reason:    "authorization code redeemed twice",
	})
}

func (r *SecurityReporter) RefreshTokenReused(ctx context.Context, record *models.RefreshTokenRecord) {
	if record == nil {
		return
	}
	r.logger.Error("refresh token reused after rotation, revoking session lineage",
		"client_id", record.ClientID,
		"subject_id", record.SubjectID.String(),
		"session_id", record.SessionID.String(),
	)
	r.metrics.IncReplaysDetected("refresh_token")
	r.revokeLineage(ctx, record.SessionID)
	_ = r.auditPub.Emit(ctx, audit.Event{
		SubjectID: record.SubjectID,
		SessionID: record.SessionID.String(),
		ClientID:  record.ClientID,
		Action:    string(audit.EventRefreshReuseDetected),
		Reason:    "rotated refresh token presented again",
	})
}

// revokeLineage revokes the session on the denylist and deletes every refresh
// token descended from it. Both operations are best effort.
func (r *SecurityReporter) revokeLineage(ctx context.Context, sessionID id.SessionID) {
	if sessionID.IsNil() {
		return
	}
	if r.revocations != nil {
		if err := r.revocations.RevokeSession(ctx, sessionID.String(), r.revocationTTL); err != nil {
			r.logger.Error("failed to revoke session", "session_id", sessionID.String(), "error", err)
		}
	}
	if r.refreshTokens != nil {
		if _, err := r.refreshTokens.DeleteBySessionID(ctx, sessionID); err != nil {
			r.logger.Error("failed to delete refresh token chain", "session_id", sessionID.String(), "error", err)
		}
	}
}
