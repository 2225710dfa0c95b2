package revocation

import (
	"context"
	"sync"
	"time"
)

// InMemoryList keeps revocation state in memory for tests/dev. Entries lapse
// naturally: lookups compare against the stored expiry instead of a reaper.
type InMemoryList struct {
	mu       sync.RWMutex
	tokens   map[string]time.Time // jti -> revocation expiry
	sessions map[string]time.Time // session ID -> revocation expiry
	clock    func() time.Time
}

// Option configures an InMemoryList instance.
type Option func(*InMemoryList)

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) Option {
	return func(l *InMemoryList) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// New constructs an empty in-memory revocation list.
func New(opts ...Option) *InMemoryList {
	list := &InMemoryList{
		tokens:   make(map[string]time.Time),
		sessions: make(map[string]time.Time),
		clock:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(list)
		}
	}
	return list
}

func (l *InMemoryList) RevokeToken(_ context.Context, jti string, ttl time.Duration) error {
	if jti == "" {
		return nil
	}
	if err := validateTTL(ttl); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tokens[jti] = l.clock().Add(ttl)
	return nil
}

func (l *InMemoryList) RevokeSession(_ context.Context, sessionID string, ttl time.Duration) error {
	if sessionID == "" {
		return nil
	}
	if err := validateTTL(ttl); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sessions[sessionID] = l.clock().Add(ttl)
	return nil
}

func (l *InMemoryList) IsRevoked(_ context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	expiresAt, ok := l.tokens[jti]
	return ok && l.clock().Before(expiresAt), nil
}

func (l *InMemoryList) IsSessionRevoked(_ context.Context, sessionID string) (bool, error) {
	if sessionID == "" {
		return false, nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	expiresAt, ok := l.sessions[sessionID]
	return ok && l.clock().Before(expiresAt), nil
}
