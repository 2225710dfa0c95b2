package models

import (
	"time"

	id "grantor/pkg/domain"
)

// SubjectSession is the authenticated resource-owner context established by
// the upstream login flow. The grant engine reads it to gate prompt semantics
// and to stamp auth_time into ID tokens; it never mutates session state.
type SubjectSession struct {
	ID        id.SessionID
	SubjectID id.SubjectID
	AuthTime  time.Time
	ACR       string
	AMR       []string
	Active    bool
	CreatedAt time.Time
	ExpiresAt time.Time
}

// FreshlyAuthenticated reports whether the login happened within the given
// window, measured from now. prompt=login requires this.
func (s *SubjectSession) FreshlyAuthenticated(now time.Time, window time.Duration) bool {
	if s.AuthTime.IsZero() {
		return false
	}
	return now.Sub(s.AuthTime) <= window
}

// ConsentRecord captures a subject's approval of a client+scope combination.
// The prompt validator reads these; writing them is the consent UI's job.
type ConsentRecord struct {
	SubjectID id.SubjectID
	ClientID  string
	Scopes    []string
	GrantedAt time.Time
}

// Covers reports whether the record approves every requested scope.
func (c *ConsentRecord) Covers(scopes []string) bool {
	return ScopesSubset(scopes, c.Scopes)
}

// FreshAsOf reports whether consent was captured within the given window.
func (c *ConsentRecord) FreshAsOf(now time.Time, window time.Duration) bool {
	if window <= 0 {
		return true
	}
	return now.Sub(c.GrantedAt) <= window
}
