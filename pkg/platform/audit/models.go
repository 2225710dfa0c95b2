package audit

import (
	"context"
	"time"

	id "grantor/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose. This
// enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/regulatory significance.
	// These require tamper-proof storage and long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to security monitoring and
	// forensics. These feed into SIEM systems and alerting pipelines.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers events useful for debugging and operational
	// visibility. These can be sampled or aggregated with short retention.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from the grant engine to capture key credential actions.
// Kept transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory `json:"category"`
	Timestamp time.Time     `json:"timestamp"`
	SubjectID id.SubjectID  `json:"subject_id"`
	SessionID string        `json:"session_id,omitempty"`
	ClientID  string        `json:"client_id,omitempty"`
	Action    string        `json:"action"`
	Reason    string        `json:"reason,omitempty"`
	// RequestID is the correlation ID from the HTTP request context.
	RequestID string `json:"request_id,omitempty"`
	// Device is a human-readable description of the requesting device,
	// derived from the User-Agent header.
	Device string `json:"device,omitempty"`
}

type AuditEvent string

const (
	// Authorization code lifecycle
	EventCodeIssued   AuditEvent = "code_issued"
	EventCodeRedeemed AuditEvent = "code_redeemed"
	EventCodeReplayed AuditEvent = "code_replayed"

	// Token lifecycle
	EventTokenIssued          AuditEvent = "token_issued"
	EventTokenRefreshed       AuditEvent = "token_refreshed"
	EventRefreshReuseDetected AuditEvent = "refresh_reuse_detected"
	EventTokenRevoked         AuditEvent = "token_revoked"
	EventSessionRevoked       AuditEvent = "session_revoked"

	// Request gating
	EventAuthorizeRejected AuditEvent = "authorize_rejected"
	EventClientAuthFailed  AuditEvent = "client_auth_failed"
)

// eventCategories maps each audit event to its category.
var eventCategories = map[AuditEvent]EventCategory{
	// Security events - replay and reuse are leakage signals
	EventCodeReplayed:         CategorySecurity,
	EventRefreshReuseDetected: CategorySecurity,
	EventClientAuthFailed:     CategorySecurity,
	EventSessionRevoked:       CategorySecurity,

	// Compliance events - credential revocation must be provable
	EventTokenRevoked: CategoryCompliance,

	// Operations events - routine issuance, can be sampled
	EventCodeIssued:        CategoryOperations,
	EventCodeRedeemed:      CategoryOperations,
	EventTokenIssued:       CategoryOperations,
	EventTokenRefreshed:    CategoryOperations,
	EventAuthorizeRejected: CategoryOperations,
}

// Category returns the EventCategory for this audit event. Unknown events
// default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events. Implementations: in-memory for tests/dev,
// Kafka sink for production fan-out.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subjectID id.SubjectID) ([]Event, error)
}
