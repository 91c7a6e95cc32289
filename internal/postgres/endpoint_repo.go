package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ErlanBelekov/taskrelay/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type EndpointRepository struct {
	pool *pgxpool.Pool
}

func NewEndpointRepository(pool *pgxpool.Pool) *EndpointRepository {
	return &EndpointRepository{pool: pool}
}

const endpointColumns = `
	id, organization_id, name, slug, forward_urls, forward_method, forward_headers,
	forward_body, retry_attempts, use_queue, enabled,
	notify_on_failure, notify_on_recovery, on_failure_url, on_recovery_url,
	created_at, updated_at`

func (r *EndpointRepository) Create(ctx context.Context, e *domain.Endpoint) (*domain.Endpoint, error) {
	query := `
		INSERT INTO endpoints (
			organization_id, name, slug, forward_urls, forward_method, forward_headers,
			forward_body, retry_attempts, use_queue, enabled,
			notify_on_failure, notify_on_recovery, on_failure_url, on_recovery_url
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING ` + endpointColumns

	row := r.pool.QueryRow(ctx, query,
		e.OrganizationID, e.Name, e.Slug, e.ForwardURLs, e.ForwardMethod, e.ForwardHeaders,
		e.ForwardBody, e.RetryAttempts, e.UseQueue, e.Enabled,
		e.NotifyOnFailure, e.NotifyOnRecovery, e.OnFailureURL, e.OnRecoveryURL,
	)
	return scanEndpoint(row)
}

func (r *EndpointRepository) GetByID(ctx context.Context, id, orgID string) (*domain.Endpoint, error) {
	query := `SELECT ` + endpointColumns + ` FROM endpoints WHERE id = $1 AND organization_id = $2`
	return scanEndpoint(r.pool.QueryRow(ctx, query, id, orgID))
}

func (r *EndpointRepository) GetBySlug(ctx context.Context, slug string) (*domain.Endpoint, error) {
	query := `SELECT ` + endpointColumns + ` FROM endpoints WHERE slug = $1`
	return scanEndpoint(r.pool.QueryRow(ctx, query, slug))
}

func (r *EndpointRepository) List(ctx context.Context, orgID string) ([]*domain.Endpoint, error) {
	query := `SELECT ` + endpointColumns + ` FROM endpoints WHERE organization_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}
	defer rows.Close()

	var endpoints []*domain.Endpoint
	for rows.Next() {
		e, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, e)
	}
	return endpoints, rows.Err()
}

func (r *EndpointRepository) Update(ctx context.Context, e *domain.Endpoint) (*domain.Endpoint, error) {
	query := `
		UPDATE endpoints SET
			name = $3, forward_urls = $4, forward_method = $5, forward_headers = $6,
			forward_body = $7, retry_attempts = $8, use_queue = $9, enabled = $10,
			notify_on_failure = $11, notify_on_recovery = $12, on_failure_url = $13, on_recovery_url = $14,
			updated_at = NOW()
		WHERE id = $1 AND organization_id = $2
		RETURNING ` + endpointColumns

	row := r.pool.QueryRow(ctx, query,
		e.ID, e.OrganizationID, e.Name, e.ForwardURLs, e.ForwardMethod, e.ForwardHeaders,
		e.ForwardBody, e.RetryAttempts, e.UseQueue, e.Enabled,
		e.NotifyOnFailure, e.NotifyOnRecovery, e.OnFailureURL, e.OnRecoveryURL,
	)
	return scanEndpoint(row)
}

func (r *EndpointRepository) Delete(ctx context.Context, id, orgID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM endpoints WHERE id = $1 AND organization_id = $2`, id, orgID)
	if err != nil {
		return fmt.Errorf("delete endpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEndpointNotFound
	}
	return nil
}

func scanEndpoint(row rowScanner) (*domain.Endpoint, error) {
	var e domain.Endpoint
	err := row.Scan(
		&e.ID, &e.OrganizationID, &e.Name, &e.Slug, &e.ForwardURLs, &e.ForwardMethod, &e.ForwardHeaders,
		&e.ForwardBody, &e.RetryAttempts, &e.UseQueue, &e.Enabled,
		&e.NotifyOnFailure, &e.NotifyOnRecovery, &e.OnFailureURL, &e.OnRecoveryURL,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEndpointNotFound
		}
		return nil, fmt.Errorf("scan endpoint: %w", err)
	}
	return &e, nil
}

type InboundEventRepository struct {
	pool *pgxpool.Pool
}

func NewInboundEventRepository(pool *pgxpool.Pool) *InboundEventRepository {
	return &InboundEventRepository{pool: pool}
}

func (r *InboundEventRepository) Create(ctx context.Context, ev *domain.InboundEvent) (*domain.InboundEvent, error) {
	query := `
		INSERT INTO inbound_events (endpoint_id, method, headers, body, source_ip, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, endpoint_id, method, headers, body, source_ip, received_at, task_ids`

	row := r.pool.QueryRow(ctx, query, ev.EndpointID, ev.Method, ev.Headers, ev.Body, ev.SourceIP, ev.ReceivedAt)
	return scanInboundEvent(row)
}

func (r *InboundEventRepository) GetByID(ctx context.Context, id string) (*domain.InboundEvent, error) {
	query := `SELECT id, endpoint_id, method, headers, body, source_ip, received_at, task_ids
		FROM inbound_events WHERE id = $1`
	return scanInboundEvent(r.pool.QueryRow(ctx, query, id))
}

func (r *InboundEventRepository) SetTaskIDs(ctx context.Context, id string, taskIDs []string) error {
	_, err := r.pool.Exec(ctx, `UPDATE inbound_events SET task_ids = $2 WHERE id = $1`, id, taskIDs)
	if err != nil {
		return fmt.Errorf("set inbound event task ids: %w", err)
	}
	return nil
}

func scanInboundEvent(row rowScanner) (*domain.InboundEvent, error) {
	var ev domain.InboundEvent
	err := row.Scan(&ev.ID, &ev.EndpointID, &ev.Method, &ev.Headers, &ev.Body, &ev.SourceIP, &ev.ReceivedAt, &ev.TaskIDs)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("inbound event: %w", pgx.ErrNoRows)
		}
		return nil, fmt.Errorf("scan inbound event: %w", err)
	}
	return &ev, nil
}
