package authorizationcode

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"grantor/internal/oauth/models"
	"grantor/pkg/platform/sentinel"
)

// translateConsumeError converts domain errors from ValidateForConsume to
// sentinel errors per the store boundary contract.
func translateConsumeError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "expired"):
		return fmt.Errorf("%s: %w", msg, sentinel.ErrExpired)
	case strings.Contains(msg, "already used"):
		return fmt.Errorf("%s: %w", msg, sentinel.ErrAlreadyUsed)
	default:
		return fmt.Errorf("%s: %w", msg, sentinel.ErrInvalidState)
	}
}

// InMemoryStore keeps authorization codes in memory for tests/dev.
type InMemoryStore struct {
	mu    sync.RWMutex
	codes map[string]*models.AuthorizationCodeRecord
}

// New constructs an empty in-memory authorization code store.
func New() *InMemoryStore {
	return &InMemoryStore{codes: make(map[string]*models.AuthorizationCodeRecord)}
}

func (s *InMemoryStore) Create(_ context.Context, code *models.AuthorizationCodeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.codes[code.Code]; exists {
		return fmt.Errorf("authorization code collision: %w", sentinel.ErrConflict)
	}
	s.codes[code.Code] = code
	return nil
}

func (s *InMemoryStore) FindByCode(_ context.Context, code string) (*models.AuthorizationCodeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if record, ok := s.codes[code]; ok {
		return record, nil
	}
	return nil, fmt.Errorf("authorization code not found: %w", sentinel.ErrNotFound)
}

// ConsumeCode marks the authorization code as used if it is still redeemable
// by this client+redirect_uri pair. Validation and the state flip happen
// under one lock, so concurrent redemption attempts see exactly one success.
// Returns the record even on ErrAlreadyUsed to enable replay detection.
func (s *InMemoryStore) ConsumeCode(_ context.Context, code, clientID, redirectURI string, now time.Time) (*models.AuthorizationCodeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.codes[code]
	if !ok {
		return nil, fmt.Errorf("authorization code not found: %w", sentinel.ErrNotFound)
	}

	if err := record.ValidateForConsume(clientID, redirectURI, now); err != nil {
		return record, translateConsumeError(err)
	}

	record.MarkUsed(now)
	return record, nil
}

// DeleteExpiredCodes removes all authorization codes expired as of the given
// time. The time parameter is injected for testability.
func (s *InMemoryStore) DeleteExpiredCodes(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for code, record := range s.codes {
		if record.ExpiresAt.Before(now) {
			delete(s.codes, code)
			deleted++
		}
	}
	return deleted, nil
}
