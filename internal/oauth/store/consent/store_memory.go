package consent

import (
	"context"
	"fmt"
	"sync"

	"grantor/internal/oauth/models"
	id "grantor/pkg/domain"
	"grantor/pkg/platform/sentinel"
)

type consentKey struct {
	subjectID id.SubjectID
	clientID  string
}

// InMemoryStore keeps consent records in memory for tests/dev.
type InMemoryStore struct {
	mu       sync.RWMutex
	consents map[consentKey]*models.ConsentRecord
}

// New constructs an empty in-memory consent store.
func New() *InMemoryStore {
	return &InMemoryStore{consents: make(map[consentKey]*models.ConsentRecord)}
}

func (s *InMemoryStore) Save(_ context.Context, consent *models.ConsentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consents[consentKey{consent.SubjectID, consent.ClientID}] = consent
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, subjectID id.SubjectID, clientID string) (*models.ConsentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if consent, ok := s.consents[consentKey{subjectID, clientID}]; ok {
		return consent, nil
	}
	return nil, fmt.Errorf("consent not found: %w", sentinel.ErrNotFound)
}
