package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"grantor/internal/oauth/models"
	id "grantor/pkg/domain"
	"grantor/pkg/platform/sentinel"
)

const sessionKeyPrefix = "session:"

// RedisStore keeps subject sessions in Redis, keyed by session ID with a TTL
// matching the session expiry. Production-recommended when multiple instances
// share login state.
type RedisStore struct {
	client *redis.Client
	clock  func() time.Time
}

// RedisOption configures a RedisStore instance.
type RedisOption func(*RedisStore)

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) RedisOption {
	return func(s *RedisStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewRedis constructs a Redis-backed session store.
func NewRedis(client *redis.Client, opts ...RedisOption) *RedisStore {
	store := &RedisStore{client: client, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

// sessionRecord is the Redis wire shape. Timestamps are unix seconds.
type sessionRecord struct {
	ID        string   `json:"id"`
	SubjectID string   `json:"subject_id"`
	AuthTime  int64    `json:"auth_time"`
	ACR       string   `json:"acr,omitempty"`
	AMR       []string `json:"amr,omitempty"`
	Active    bool     `json:"active"`
	CreatedAt int64    `json:"created_at"`
	ExpiresAt int64    `json:"expires_at"`
}

func (s *RedisStore) Save(ctx context.Context, session *models.SubjectSession) error {
	record := sessionRecord{
		ID:        session.ID.String(),
		SubjectID: session.SubjectID.String(),
		AuthTime:  session.AuthTime.Unix(),
		ACR:       session.ACR,
		AMR:       session.AMR,
		Active:    session.Active,
		CreatedAt: session.CreatedAt.Unix(),
		ExpiresAt: session.ExpiresAt.Unix(),
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ttl := session.ExpiresAt.Sub(s.clock())
	if ttl <= 0 {
		return fmt.Errorf("session already expired: %w", sentinel.ErrExpired)
	}
	key := sessionKeyPrefix + session.ID.String()
	if err := s.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *RedisStore) FindByID(ctx context.Context, sessionID id.SessionID) (*models.SubjectSession, error) {
	key := sessionKeyPrefix + sessionID.String()
	payload, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}

	var record sessionRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}

	session := &models.SubjectSession{
		AuthTime:  time.Unix(record.AuthTime, 0).UTC(),
		ACR:       record.ACR,
		AMR:       record.AMR,
		Active:    record.Active,
		CreatedAt: time.Unix(record.CreatedAt, 0).UTC(),
		ExpiresAt: time.Unix(record.ExpiresAt, 0).UTC(),
	}
	if session.ID, err = id.ParseSessionID(record.ID); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	if session.SubjectID, err = id.ParseSubjectID(record.SubjectID); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return session, nil
}
