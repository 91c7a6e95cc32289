package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ErlanBelekov/taskrelay/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type APIKeyRepository struct {
	pool *pgxpool.Pool
}

func NewAPIKeyRepository(pool *pgxpool.Pool) *APIKeyRepository {
	return &APIKeyRepository{pool: pool}
}

const apiKeyColumns = `id, organization_id, name, key_id, key_hash, last_used_at, created_at`

func (r *APIKeyRepository) Create(ctx context.Context, k *domain.APIKey) (*domain.APIKey, error) {
	query := `
		INSERT INTO api_keys (organization_id, name, key_id, key_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + apiKeyColumns
	row := r.pool.QueryRow(ctx, query, k.OrganizationID, k.Name, k.KeyID, k.KeyHash)
	return scanAPIKey(row)
}

func (r *APIKeyRepository) GetByKeyID(ctx context.Context, keyID string) (*domain.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key_id = $1`
	return scanAPIKey(r.pool.QueryRow(ctx, query, keyID))
}

func (r *APIKeyRepository) List(ctx context.Context, orgID string) ([]*domain.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE organization_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*domain.APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (r *APIKeyRepository) Delete(ctx context.Context, id, orgID string) (string, error) {
	var keyID string
	err := r.pool.QueryRow(ctx,
		`DELETE FROM api_keys WHERE id = $1 AND organization_id = $2 RETURNING key_id`,
		id, orgID,
	).Scan(&keyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrAPIKeyNotFound
		}
		return "", fmt.Errorf("delete api key: %w", err)
	}
	return keyID, nil
}

func (r *APIKeyRepository) TouchLastUsed(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touch api key last used: %w", err)
	}
	return nil
}

func scanAPIKey(row rowScanner) (*domain.APIKey, error) {
	var k domain.APIKey
	err := row.Scan(&k.ID, &k.OrganizationID, &k.Name, &k.KeyID, &k.KeyHash, &k.LastUsedAt, &k.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAPIKeyNotFound
		}
		return nil, fmt.Errorf("scan api key: %w", err)
	}
	return &k, nil
}
