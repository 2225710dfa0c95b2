package authorizationcode

import (
	"context"
	"sync"
	"testing"
	"time"

	"grantor/internal/oauth/models"
	id "grantor/pkg/domain"
	"grantor/pkg/platform/sentinel"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type AuthCodeStoreSuite struct {
	suite.Suite
	store *InMemoryStore
}

func (s *AuthCodeStoreSuite) SetupTest() {
	s.store = New()
}

func TestAuthCodeStoreSuite(t *testing.T) {
	suite.Run(t, new(AuthCodeStoreSuite))
}

func newTestCode(code string, now time.Time) *models.AuthorizationCodeRecord {
	return &models.AuthorizationCodeRecord{
		Code:        code,
		ClientID:    "client-1",
		SubjectID:   id.SubjectID(uuid.New()),
		SessionID:   id.SessionID(uuid.New()),
		Scopes:      []string{"openid", "profile"},
		RedirectURI: "https://app.example.com/callback",
		CreatedAt:   now,
		ExpiresAt:   now.Add(5 * time.Minute),
	}
}

func (s *AuthCodeStoreSuite) TestCodeLookup() {
	ctx := context.Background()
	now := time.Now()

	s.Run("returns stored code when found", func() {
		record := newTestCode("authz_123456", now)
		s.Require().NoError(s.store.Create(ctx, record))

		found, err := s.store.FindByCode(ctx, "authz_123456")
		s.Require().NoError(err)
		s.Equal(record, found)
	})

	s.Run("returns ErrNotFound when code does not exist", func() {
		_, err := s.store.FindByCode(ctx, "no_such_code")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("rejects duplicate code values", func() {
		record := newTestCode("authz_dup", now)
		s.Require().NoError(s.store.Create(ctx, record))
		err := s.store.Create(ctx, newTestCode("authz_dup", now))
		s.Require().ErrorIs(err, sentinel.ErrConflict)
	})
}

func (s *AuthCodeStoreSuite) TestCodeConsumption() {
	ctx := context.Background()
	now := time.Now()

	s.Run("fresh code can be consumed once", func() {
		store := New()
		record := newTestCode("authz_fresh", now)
		s.Require().NoError(store.Create(ctx, record))

		consumed, err := store.ConsumeCode(ctx, record.Code, record.ClientID, record.RedirectURI, now)
		s.Require().NoError(err)
		s.True(consumed.Used)
		s.Require().NotNil(consumed.UsedAt)
		s.True(consumed.UsedAt.Equal(now))
	})

	s.Run("second consume returns ErrAlreadyUsed with the record", func() {
		store := New()
		record := newTestCode("authz_replay", now)
		s.Require().NoError(store.Create(ctx, record))

		_, err := store.ConsumeCode(ctx, record.Code, record.ClientID, record.RedirectURI, now)
		s.Require().NoError(err)

		consumed, err := store.ConsumeCode(ctx, record.Code, record.ClientID, record.RedirectURI, now)
		s.Require().ErrorIs(err, sentinel.ErrAlreadyUsed)
		s.NotNil(consumed)
		s.Equal(record.SessionID, consumed.SessionID)
	})

	s.Run("expired code returns ErrExpired", func() {
		store := New()
		record := newTestCode("authz_expired", now)
		s.Require().NoError(store.Create(ctx, record))

		_, err := store.ConsumeCode(ctx, record.Code, record.ClientID, record.RedirectURI, now.Add(10*time.Minute))
		s.Require().ErrorIs(err, sentinel.ErrExpired)
	})

	s.Run("client mismatch returns ErrInvalidState without consuming", func() {
		store := New()
		record := newTestCode("authz_wrong_client", now)
		s.Require().NoError(store.Create(ctx, record))

		_, err := store.ConsumeCode(ctx, record.Code, "other-client", record.RedirectURI, now)
		s.Require().ErrorIs(err, sentinel.ErrInvalidState)

		// The failed attempt must not burn the code.
		_, err = store.ConsumeCode(ctx, record.Code, record.ClientID, record.RedirectURI, now)
		s.Require().NoError(err)
	})

	s.Run("redirect_uri mismatch returns ErrInvalidState", func() {
		store := New()
		record := newTestCode("authz_wrong_redirect", now)
		s.Require().NoError(store.Create(ctx, record))

		_, err := store.ConsumeCode(ctx, record.Code, record.ClientID, "https://evil.example.com/cb", now)
		s.Require().ErrorIs(err, sentinel.ErrInvalidState)
	})

	s.Run("unknown code returns ErrNotFound", func() {
		_, err := s.store.ConsumeCode(ctx, "no_such_code", "client-1", "https://app.example.com/callback", now)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

// TestConcurrentConsumption drives parallel redemption of one code and
// asserts exactly one goroutine wins.
func (s *AuthCodeStoreSuite) TestConcurrentConsumption() {
	ctx := context.Background()
	now := time.Now()

	record := newTestCode("authz_race", now)
	s.Require().NoError(s.store.Create(ctx, record))

	const attempts = 32
	var (
		wg        sync.WaitGroup
		successes int32
		mu        sync.Mutex
	)
	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			_, err := s.store.ConsumeCode(ctx, record.Code, record.ClientID, record.RedirectURI, now)
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successes)
}

func (s *AuthCodeStoreSuite) TestDeleteExpiredCodes() {
	ctx := context.Background()
	now := time.Now()

	live := newTestCode("authz_live", now)
	stale := newTestCode("authz_stale", now.Add(-time.Hour))
	s.Require().NoError(s.store.Create(ctx, live))
	s.Require().NoError(s.store.Create(ctx, stale))

	deleted, err := s.store.DeleteExpiredCodes(ctx, now)
	s.Require().NoError(err)
	s.Equal(1, deleted)

	_, err = s.store.FindByCode(ctx, "authz_stale")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.FindByCode(ctx, "authz_live")
	s.Require().NoError(err)
}
