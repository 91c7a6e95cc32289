package postgres

import (
	"context"
	"fmt"

	"github.com/ErlanBelekov/taskrelay/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

type QueueRepository struct {
	pool *pgxpool.Pool
}

func NewQueueRepository(pool *pgxpool.Pool) *QueueRepository {
	return &QueueRepository{pool: pool}
}

func (r *QueueRepository) List(ctx context.Context, orgID string) ([]*domain.Queue, error) {
	rows, err := r.pool.Query(ctx, `SELECT organization_id, name, paused FROM queues WHERE organization_id = $1 ORDER BY name ASC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list queues: %w", err)
	}
	defer rows.Close()

	var queues []*domain.Queue
	for rows.Next() {
		var q domain.Queue
		if err := rows.Scan(&q.OrganizationID, &q.Name, &q.Paused); err != nil {
			return nil, fmt.Errorf("scan queue: %w", err)
		}
		queues = append(queues, &q)
	}
	return queues, rows.Err()
}

func (r *QueueRepository) SetPaused(ctx context.Context, orgID, name string, paused bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE queues SET paused = $3 WHERE organization_id = $1 AND name = $2`,
		orgID, name, paused)
	if err != nil {
		return fmt.Errorf("set queue paused: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQueueNotFound
	}
	return nil
}

func (r *QueueRepository) EnsureExists(ctx context.Context, orgID, name string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO queues (organization_id, name, paused) VALUES ($1, $2, false)
		ON CONFLICT (organization_id, name) DO NOTHING`, orgID, name)
	if err != nil {
		return fmt.Errorf("ensure queue exists: %w", err)
	}
	return nil
}
