package domain

import (
	"github.com/google/uuid"

	dErrors "grantor/pkg/domain-errors"
)

// Typed identifiers for the core entities. Wrapping uuid.UUID in distinct
// named types makes cross-entity assignment a compile error, so a subject ID
// can never be passed where a client ID is expected.
//
// Usage: construct via the Parse* functions at trust boundaries to enforce
// the "valid, non-empty, non-nil UUID" invariant; direct casting bypasses
// validation and is reserved for values that are already trusted (e.g. rows
// read back from our own store).

// ClientID identifies a registered relying party.
type ClientID uuid.UUID

// SubjectID identifies an authenticated resource owner.
type SubjectID uuid.UUID

// SessionID identifies a subject session established by the upstream login flow.
type SessionID uuid.UUID

func (id ClientID) String() string  { return uuid.UUID(id).String() }
func (id SubjectID) String() string { return uuid.UUID(id).String() }
func (id SessionID) String() string { return uuid.UUID(id).String() }

func (id ClientID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id SubjectID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id SessionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// ParseClientID constructs a ClientID from external input.
//
// Errors: returns CodeInvalidInput when the value is empty, malformed, or the
// nil UUID; no other errors are expected.
func ParseClientID(s string) (ClientID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return ClientID(uuid.Nil), err
	}
	return ClientID(u), nil
}

// ParseSubjectID constructs a SubjectID from external input.
func ParseSubjectID(s string) (SubjectID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return SubjectID(uuid.Nil), err
	}
	return SubjectID(u), nil
}

// ParseSessionID constructs a SessionID from external input.
func ParseSessionID(s string) (SessionID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return SessionID(uuid.Nil), err
	}
	return SessionID(u), nil
}

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must be a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be the nil UUID")
	}
	return u, nil
}
