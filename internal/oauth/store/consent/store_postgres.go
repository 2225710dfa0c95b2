package consent

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"grantor/internal/oauth/models"
	id "grantor/pkg/domain"
	"grantor/pkg/platform/sentinel"
)

// PostgresStore persists consent records in PostgreSQL, one row per
// subject+client pair. Re-granting consent replaces the scope set.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed consent store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, consent *models.ConsentRecord) error {
	query := `
		INSERT INTO consents (subject_id, client_id, scopes, granted_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (subject_id, client_id) DO UPDATE SET
			scopes = EXCLUDED.scopes,
			granted_at = EXCLUDED.granted_at
	`
	_, err := s.db.ExecContext(ctx, query,
		consent.SubjectID.String(), consent.ClientID, pq.Array(consent.Scopes), consent.GrantedAt,
	)
	if err != nil {
		return fmt.Errorf("save consent: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, subjectID id.SubjectID, clientID string) (*models.ConsentRecord, error) {
	query := `
		SELECT subject_id, client_id, scopes, granted_at
		FROM consents
		WHERE subject_id = $1 AND client_id = $2
	`
	var (
		record     models.ConsentRecord
		rawSubject string
	)
	err := s.db.QueryRowContext(ctx, query, subjectID.String(), clientID).Scan(
		&rawSubject, &record.ClientID, pq.Array(&record.Scopes), &record.GrantedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("consent not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find consent: %w", err)
	}
	record.SubjectID, err = id.ParseSubjectID(rawSubject)
	if err != nil {
		return nil, fmt.Errorf("find consent: %w", err)
	}
	return &record, nil
}
