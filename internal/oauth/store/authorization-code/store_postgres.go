package authorizationcode

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

// PostgresStore persists authorization codes in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed authorization code store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const authCodeColumns = `code, client_id, subject_id, session_id, scopes, redirect_uri,
	code_challenge, code_challenge_method, nonce, auth_time, created_at, expires_at, used, used_at`

func (s *PostgresStore) Create(ctx context.Context, code *models.AuthorizationCodeRecord) error {
	query := `
		INSERT INTO authorization_codes (` + authCodeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := s.db.ExecContext(ctx, query,
		code.Code, code.ClientID, code.SubjectID.String(), code.SessionID.String(),
		pq.Array(code.Scopes), code.RedirectURI,
		code.CodeChallenge, code.CodeChallengeMethod, code.Nonce,
		code.AuthTime, code.CreatedAt, code.ExpiresAt, code.Used, code.UsedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("authorization code collision: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("create authorization code: %w", err)
	}
	return nil
}

// ConsumeCode redeems the code with a single conditional UPDATE, so under
// concurrent redemption exactly one caller gets the row back. When the CAS
// misses, the row is re-read to classify the failure; the record is returned
// on ErrAlreadyUsed so callers can treat replay as a security signal.
func (s *PostgresStore) ConsumeCode(ctx context.Context, code, clientID, redirectURI string, now time.Time) (*models.AuthorizationCodeRecord, error) {
	query := `
		UPDATE authorization_codes
		SET used = TRUE, used_at = $5
		WHERE code = $1
		  AND client_id = $2
		  AND redirect_uri = $3
		  AND used = FALSE
		  AND expires_at >= $4
		RETURNING ` + authCodeColumns
	record, err := scanAuthCode(s.db.QueryRowContext(ctx, query, code, clientID, redirectURI, now, now))
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("consume authorization code: %w", err)
	}

	// The CAS missed. Re-read to tell not-found from replay/expiry/mismatch.
	record, err = s.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if vErr := record.ValidateForConsume(clientID, redirectURI, now); vErr != nil {
		return record, translateConsumeError(vErr)
	}
	// Valid on re-read means a concurrent redeemer won the CAS between our
	// two statements. Report it as already used.
	return record, fmt.Errorf("authorization code already used: %w", sentinel.ErrAlreadyUsed)
}

func (s *PostgresStore) FindByCode(ctx context.Context, code string) (*models.AuthorizationCodeRecord, error) {
	query := `SELECT ` + authCodeColumns + ` FROM authorization_codes WHERE code = $1`
	record, err := scanAuthCode(s.db.QueryRowContext(ctx, query, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("authorization code not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find authorization code: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) DeleteExpiredCodes(ctx context.Context, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM authorization_codes WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired authorization codes: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired authorization codes: %w", err)
	}
	return int(deleted), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuthCode(row rowScanner) (*models.AuthorizationCodeRecord, error) {
	var (
		record               models.AuthorizationCodeRecord
		subjectID, sessionID string
	)
	err := row.Scan(
		&record.Code, &record.ClientID, &subjectID, &sessionID,
		pq.Array(&record.Scopes), &record.RedirectURI,
		&record.CodeChallenge, &record.CodeChallengeMethod, &record.Nonce,
		&record.AuthTime, &record.CreatedAt, &record.ExpiresAt, &record.Used, &record.UsedAt,
	)
	if err != nil {
		return nil, err
	}
	record.SubjectID, err = id.ParseSubjectID(subjectID)
	if err != nil {
		return nil, err
	}
	record.SessionID, err = id.ParseSessionID(sessionID)
	if err != nil {
		return nil, err
	}
	return &record, nil
}
