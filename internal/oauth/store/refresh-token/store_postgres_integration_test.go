//go:build integration

package refreshtoken

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"grantor/internal/oauth/models"
	id "grantor/pkg/domain"
	"grantor/pkg/platform/sentinel"
	"grantor/pkg/testutil/containers"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type PostgresRefreshTokenSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *PostgresStore
}

func (s *PostgresRefreshTokenSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = NewPostgres(s.pg.DB)
}

func (s *PostgresRefreshTokenSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateAll(context.Background()))
}

func TestPostgresRefreshTokenSuite(t *testing.T) {
	suite.Run(t, new(PostgresRefreshTokenSuite))
}

func newPostgresTestToken(token string, now time.Time) *models.RefreshTokenRecord {
	return &models.RefreshTokenRecord{
		Token:     token,
		SessionID: id.SessionID(uuid.New()),
		SubjectID: id.SubjectID(uuid.New()),
		ClientID:  "client-1",
		Scopes:    []string{"openid", "offline_access"},
		Nonce:     "n-0S6_WzA2Mj",
		CreatedAt: now,
		ExpiresAt: now.Add(30 * 24 * time.Hour),
	}
}

func (s *PostgresRefreshTokenSuite) TestRoundTrip() {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	record := newPostgresTestToken("rt_pg_roundtrip", now)
	s.Require().NoError(s.store.Create(ctx, record))

	found, err := s.store.Find(ctx, record.Token)
	s.Require().NoError(err)
	s.Equal(record.Token, found.Token)
	s.Equal(record.SessionID, found.SessionID)
	s.Equal(record.SubjectID, found.SubjectID)
	s.Equal(record.ClientID, found.ClientID)
	s.Equal(record.Scopes, found.Scopes)
	s.Equal(record.Nonce, found.Nonce)
	s.Empty(found.ParentToken)
	s.False(found.Used)
	s.Nil(found.LastRefreshedAt)

	s.Require().ErrorIs(s.store.Create(ctx, record), sentinel.ErrConflict)

	_, err = s.store.Find(ctx, "no_such_token")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresRefreshTokenSuite) TestConsumeRefreshToken() {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	s.Run("rotation marks the token used", func() {
		record := newPostgresTestToken("rt_pg_rotate", now)
		s.Require().NoError(s.store.Create(ctx, record))

		consumed, err := s.store.ConsumeRefreshToken(ctx, record.Token, now)
		s.Require().NoError(err)
		s.True(consumed.Used)
		s.Require().NotNil(consumed.LastRefreshedAt)
	})

	s.Run("reuse returns ErrAlreadyUsed with the record", func() {
		record := newPostgresTestToken("rt_pg_reuse", now)
		s.Require().NoError(s.store.Create(ctx, record))

		_, err := s.store.ConsumeRefreshToken(ctx, record.Token, now)
		s.Require().NoError(err)

		consumed, err := s.store.ConsumeRefreshToken(ctx, record.Token, now)
		s.Require().ErrorIs(err, sentinel.ErrAlreadyUsed)
		s.Require().NotNil(consumed)
		s.Equal(record.SessionID, consumed.SessionID)
	})

	s.Run("expired token returns ErrExpired", func() {
		record := newPostgresTestToken("rt_pg_expired", now)
		record.ExpiresAt = now.Add(-time.Minute)
		s.Require().NoError(s.store.Create(ctx, record))

		_, err := s.store.ConsumeRefreshToken(ctx, record.Token, now)
		s.Require().ErrorIs(err, sentinel.ErrExpired)
	})
}

func (s *PostgresRefreshTokenSuite) TestDeleteBySessionID() {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	sessionID := id.SessionID(uuid.New())
	chain := newPostgresTestToken("rt_pg_chain_1", now)
	chain.SessionID = sessionID
	successor := newPostgresTestToken("rt_pg_chain_2", now)
	successor.SessionID = sessionID
	successor.ParentToken = chain.Token
	other := newPostgresTestToken("rt_pg_other", now)

	s.Require().NoError(s.store.Create(ctx, chain))
	s.Require().NoError(s.store.Create(ctx, successor))
	s.Require().NoError(s.store.Create(ctx, other))

	deleted, err := s.store.DeleteBySessionID(ctx, sessionID)
	s.Require().NoError(err)
	s.Equal(2, deleted)

	_, err = s.store.Find(ctx, chain.Token)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.Find(ctx, other.Token)
	s.Require().NoError(err)
}

// TestConcurrentRotation races real connections against the conditional
// UPDATE and asserts exactly one rotation succeeds.
func (s *PostgresRefreshTokenSuite) TestConcurrentRotation() {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	record := newPostgresTestToken("rt_pg_race", now)
	s.Require().NoError(s.store.Create(ctx, record))

	const attempts = 16
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
	)
	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			if _, err := s.store.ConsumeRefreshToken(ctx, record.Token, now); err == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successes.Load())
}
