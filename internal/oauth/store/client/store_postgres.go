package client

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

// PostgresStore persists registered clients in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed client store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const clientColumns = `id, name, oauth_client_id, secret_hash, redirect_uris,
	allowed_grants, allowed_scopes, confidential, require_nonce, status, created_at, updated_at`

func (s *PostgresStore) Save(ctx context.Context, client *models.Client) error {
	grants := make([]string, len(client.AllowedGrants))
	for i, g := range client.AllowedGrants {
		grants[i] = string(g)
	}
	query := `
		INSERT INTO clients (` + clientColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (oauth_client_id) DO UPDATE SET
			name = EXCLUDED.name,
			secret_hash = EXCLUDED.secret_hash,
			redirect_uris = EXCLUDED.redirect_uris,
			allowed_grants = EXCLUDED.allowed_grants,
			allowed_scopes = EXCLUDED.allowed_scopes,
			confidential = EXCLUDED.confidential,
			require_nonce = EXCLUDED.require_nonce,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		client.ID.String(), client.Name, client.OAuthClientID, client.SecretHash,
		pq.Array(client.RedirectURIs), pq.Array(grants), pq.Array(client.AllowedScopes),
		client.Confidential, client.RequireNonce, string(client.Status),
		client.CreatedAt, client.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save client: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByOAuthClientID(ctx context.Context, clientID string) (*models.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE oauth_client_id = $1`

	var (
		record       models.Client
		rawID        string
		rawGrants    []string
		rawStatus    string
	)
	err := s.db.QueryRowContext(ctx, query, clientID).Scan(
		&rawID, &record.Name, &record.OAuthClientID, &record.SecretHash,
		pq.Array(&record.RedirectURIs), pq.Array(&rawGrants), pq.Array(&record.AllowedScopes),
		&record.Confidential, &record.RequireNonce, &rawStatus,
		&record.CreatedAt, &record.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("client not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find client: %w", err)
	}

	record.ID, err = id.ParseClientID(rawID)
	if err != nil {
		return nil, fmt.Errorf("find client: %w", err)
	}
	record.AllowedGrants = make([]models.GrantType, len(rawGrants))
	for i, g := range rawGrants {
		record.AllowedGrants[i] = models.GrantType(g)
	}
	record.Status = models.ClientStatus(rawStatus)
	return &record, nil
}
