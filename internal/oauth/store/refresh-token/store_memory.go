package refreshtoken

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"grantor/internal/oauth/models"
	id "grantor/pkg/domain"
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

// InMemoryStore keeps refresh token rotation chains in memory for tests/dev.
type InMemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]*models.RefreshTokenRecord
}

// New constructs an empty in-memory refresh token store.
func New() *InMemoryStore {
	return &InMemoryStore{tokens: make(map[string]*models.RefreshTokenRecord)}
}

func (s *InMemoryStore) Create(_ context.Context, token *models.RefreshTokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tokens[token.Token]; exists {
		return fmt.Errorf("refresh token collision: %w", sentinel.ErrConflict)
	}
	s.tokens[token.Token] = token
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, token string) (*models.RefreshTokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if record, ok := s.tokens[token]; ok {
		return record, nil
	}
	return nil, fmt.Errorf("refresh token not found: %w", sentinel.ErrNotFound)
}

// ConsumeRefreshToken marks the refresh token as used if it is still
// redeemable. Validation and the state flip happen under one lock, so
// concurrent rotation attempts see exactly one success.
// Returns the record even on ErrAlreadyUsed to enable reuse detection.
func (s *InMemoryStore) ConsumeRefreshToken(_ context.Context, token string, now time.Time) (*models.RefreshTokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.tokens[token]
	if !ok {
		return nil, fmt.Errorf("refresh token not found: %w", sentinel.ErrNotFound)
	}

	if err := record.ValidateForConsume(now); err != nil {
		return record, translateConsumeError(err)
	}

	record.MarkUsed(now)
	return record, nil
}

// DeleteBySessionID removes every token in the session's rotation chain,
// used and unused alike. Reuse detection tears down the whole lineage.
func (s *InMemoryStore) DeleteBySessionID(_ context.Context, sessionID id.SessionID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for key, token := range s.tokens {
		if token.SessionID == sessionID {
			delete(s.tokens, key)
			deleted++
		}
	}
	return deleted, nil
}

// DeleteExpiredTokens removes all refresh tokens expired as of the given
// time. The time parameter is injected for testability.
func (s *InMemoryStore) DeleteExpiredTokens(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for key, token := range s.tokens {
		if token.ExpiresAt.Before(now) {
			delete(s.tokens, key)
			deleted++
		}
	}
	return deleted, nil
}
