package refreshtoken

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"grantor/internal/oauth/models"
	id "grantor/pkg/domain"
	"grantor/pkg/platform/sentinel"
)

// PostgresStore persists refresh token rotation chains in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed refresh token store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const refreshTokenColumns = `token, session_id, subject_id, client_id, scopes, nonce,
	parent_token, created_at, expires_at, last_refreshed_at, used`

func (s *PostgresStore) Create(ctx context.Context, token *models.RefreshTokenRecord) error {
	query := `
		INSERT INTO refresh_tokens (` + refreshTokenColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.db.ExecContext(ctx, query,
		token.Token, token.SessionID.String(), token.SubjectID.String(), token.ClientID,
		pq.Array(token.Scopes), token.Nonce, token.ParentToken,
		token.CreatedAt, token.ExpiresAt, token.LastRefreshedAt, token.Used,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("refresh token collision: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, token string) (*models.RefreshTokenRecord, error) {
	query := `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens WHERE token = $1`
	record, err := scanRefreshToken(s.db.QueryRowContext(ctx, query, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("refresh token not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return record, nil
}

// ConsumeRefreshToken rotates the token with a single conditional UPDATE, so
// concurrent rotation of the same token yields exactly one success. When the
// CAS misses, the row is re-read to classify the failure; the record is
// returned on ErrAlreadyUsed to enable reuse detection.
func (s *PostgresStore) ConsumeRefreshToken(ctx context.Context, token string, now time.Time) (*models.RefreshTokenRecord, error) {
	query := `
		UPDATE refresh_tokens
		SET used = TRUE, last_refreshed_at = $2
		WHERE token = $1
		  AND used = FALSE
		  AND expires_at >= $2
		RETURNING ` + refreshTokenColumns
	record, err := scanRefreshToken(s.db.QueryRowContext(ctx, query, token, now))
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}

	record, err = s.Find(ctx, token)
	if err != nil {
		return nil, err
	}
	if vErr := record.ValidateForConsume(now); vErr != nil {
		return record, translateConsumeError(vErr)
	}
	// Valid on re-read means a concurrent caller won the CAS between our two
	// statements. Report it as already used.
	return record, fmt.Errorf("refresh token already used: %w", sentinel.ErrAlreadyUsed)
}

func (s *PostgresStore) DeleteBySessionID(ctx context.Context, sessionID id.SessionID) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE session_id = $1`, sessionID.String())
	if err != nil {
		return 0, fmt.Errorf("delete refresh tokens by session: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete refresh tokens by session: %w", err)
	}
	return int(deleted), nil
}

func (s *PostgresStore) DeleteExpiredTokens(ctx context.Context, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	return int(deleted), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRefreshToken(row rowScanner) (*models.RefreshTokenRecord, error) {
	var (
		record               models.RefreshTokenRecord
		sessionID, subjectID string
	)
	err := row.Scan(
		&record.Token, &sessionID, &subjectID, &record.ClientID,
		pq.Array(&record.Scopes), &record.Nonce, &record.ParentToken,
		&record.CreatedAt, &record.ExpiresAt, &record.LastRefreshedAt, &record.Used,
	)
	if err != nil {
		return nil, err
	}
	record.SessionID, err = id.ParseSessionID(sessionID)
	if err != nil {
		return nil, err
	}
	record.SubjectID, err = id.ParseSubjectID(subjectID)
	if err != nil {
		return nil, err
	}
	return &record, nil
}
