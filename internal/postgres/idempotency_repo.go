package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ErlanBelekov/taskrelay/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type IdempotencyRepository struct {
	pool *pgxpool.Pool
}

func NewIdempotencyRepository(pool *pgxpool.Pool) *IdempotencyRepository {
	return &IdempotencyRepository{pool: pool}
}

const idempotencyColumns = `organization_id, key, status_code, response_body, done, inserted_at`

// GetOrCreate inserts a placeholder row (done=false, status_code=0) for the
// first caller of a given (org, key) pair. A racing second caller hits the
// unique constraint on (organization_id, key), ON CONFLICT DO NOTHING makes
// the insert a no-op, and the row is then fetched and returned with
// created=false so the caller knows to poll or replay instead of executing.
func (r *IdempotencyRepository) GetOrCreate(ctx context.Context, orgID, key string) (*domain.IdempotencyRecord, bool, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO idempotency_keys (organization_id, key, status_code, response_body, done)
		VALUES ($1, $2, 0, ''::bytea, false)
		ON CONFLICT (organization_id, key) DO NOTHING
		RETURNING `+idempotencyColumns, orgID, key)

	rec, err := scanIdempotencyRecord(row)
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("insert idempotency key: %w", err)
	}

	existing, err := r.Get(ctx, orgID, key)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *IdempotencyRepository) PutResult(ctx context.Context, orgID, key string, statusCode int, body []byte) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE idempotency_keys SET status_code = $3, response_body = $4, done = true
		WHERE organization_id = $1 AND key = $2`, orgID, key, statusCode, body)
	if err != nil {
		return fmt.Errorf("put idempotency result: %w", err)
	}
	return nil
}

func (r *IdempotencyRepository) Get(ctx context.Context, orgID, key string) (*domain.IdempotencyRecord, error) {
	query := `SELECT ` + idempotencyColumns + ` FROM idempotency_keys WHERE organization_id = $1 AND key = $2`
	rec, err := scanIdempotencyRecord(r.pool.QueryRow(ctx, query, orgID, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrIdempotencyConflict
		}
		return nil, err
	}
	return rec, nil
}

func scanIdempotencyRecord(row rowScanner) (*domain.IdempotencyRecord, error) {
	var rec domain.IdempotencyRecord
	err := row.Scan(&rec.OrganizationID, &rec.Key, &rec.StatusCode, &rec.ResponseBody, &rec.Done, &rec.InsertedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("scan idempotency record: %w", err)
	}
	return &rec, nil
}
