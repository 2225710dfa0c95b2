package service

import (
	"context"

	audit "grantor/pkg/platform/audit"
)

// AuditPublisher records credential lifecycle events for the observability
// collaborators. Emission failures never fail the calling request except
// where a publisher implements fail-closed semantics itself.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type nopAuditPublisher struct{}

func (nopAuditPublisher) Emit(context.Context, audit.Event) error { return nil }
