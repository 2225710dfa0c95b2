package client

import (
	"context"
	"fmt"
	"sync"

	"grantor/internal/oauth/models"
	"grantor/pkg/platform/sentinel"
)

// InMemoryStore keeps registered clients in memory for tests/dev.
type InMemoryStore struct {
	mu      sync.RWMutex
	clients map[string]*models.Client // keyed by wire client_id
}

// New constructs an empty in-memory client store.
func New() *InMemoryStore {
	return &InMemoryStore{clients: make(map[string]*models.Client)}
}

func (s *InMemoryStore) Save(_ context.Context, client *models.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client.OAuthClientID] = client
	return nil
}

func (s *InMemoryStore) FindByOAuthClientID(_ context.Context, clientID string) (*models.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if client, ok := s.clients[clientID]; ok {
		return client, nil
	}
	return nil, fmt.Errorf("client not found: %w", sentinel.ErrNotFound)
}
