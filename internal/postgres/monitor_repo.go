package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ErlanBelekov/taskrelay/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MonitorRepository struct {
	pool *pgxpool.Pool
}

func NewMonitorRepository(pool *pgxpool.Pool) *MonitorRepository {
	return &MonitorRepository{pool: pool}
}

const monitorColumns = `
	id, organization_id, name, ping_token, schedule_type, interval_seconds, cron_expression,
	grace_period_seconds, status, enabled, last_ping_at, next_expected_at,
	notify_on_failure, notify_on_recovery, created_at, updated_at`

func (r *MonitorRepository) Create(ctx context.Context, m *domain.Monitor) (*domain.Monitor, error) {
	query := `
		INSERT INTO monitors (
			organization_id, name, ping_token, schedule_type, interval_seconds, cron_expression,
			grace_period_seconds, status, enabled, next_expected_at,
			notify_on_failure, notify_on_recovery
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING ` + monitorColumns

	row := r.pool.QueryRow(ctx, query,
		m.OrganizationID, m.Name, m.PingToken, m.ScheduleType, m.IntervalSeconds, m.CronExpression,
		m.GracePeriodSeconds, m.Status, m.Enabled, m.NextExpectedAt,
		m.NotifyOnFailure, m.NotifyOnRecovery,
	)
	return scanMonitor(row)
}

func (r *MonitorRepository) GetByID(ctx context.Context, id, orgID string) (*domain.Monitor, error) {
	query := `SELECT ` + monitorColumns + ` FROM monitors WHERE id = $1 AND organization_id = $2`
	return scanMonitor(r.pool.QueryRow(ctx, query, id, orgID))
}

func (r *MonitorRepository) GetByPingToken(ctx context.Context, token string) (*domain.Monitor, error) {
	query := `SELECT ` + monitorColumns + ` FROM monitors WHERE ping_token = $1`
	m, err := scanMonitor(r.pool.QueryRow(ctx, query, token))
	if err != nil {
		if errors.Is(err, domain.ErrMonitorNotFound) {
			return nil, domain.ErrPingTokenUnknown
		}
		return nil, err
	}
	return m, nil
}

func (r *MonitorRepository) List(ctx context.Context, orgID string) ([]*domain.Monitor, error) {
	query := `SELECT ` + monitorColumns + ` FROM monitors WHERE organization_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("list monitors: %w", err)
	}
	defer rows.Close()

	var monitors []*domain.Monitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, err
		}
		monitors = append(monitors, m)
	}
	return monitors, rows.Err()
}

func (r *MonitorRepository) Update(ctx context.Context, m *domain.Monitor) (*domain.Monitor, error) {
	query := `
		UPDATE monitors SET
			name = $3, schedule_type = $4, interval_seconds = $5, cron_expression = $6,
			grace_period_seconds = $7, enabled = $8,
			notify_on_failure = $9, notify_on_recovery = $10, updated_at = NOW()
		WHERE id = $1 AND organization_id = $2
		RETURNING ` + monitorColumns

	row := r.pool.QueryRow(ctx, query,
		m.ID, m.OrganizationID, m.Name, m.ScheduleType, m.IntervalSeconds, m.CronExpression,
		m.GracePeriodSeconds, m.Enabled, m.NotifyOnFailure, m.NotifyOnRecovery,
	)
	return scanMonitor(row)
}

func (r *MonitorRepository) Delete(ctx context.Context, id, orgID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM monitors WHERE id = $1 AND organization_id = $2`, id, orgID)
	if err != nil {
		return fmt.Errorf("delete monitor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMonitorNotFound
	}
	return nil
}

func (r *MonitorRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]*domain.Monitor, error) {
	query := `SELECT ` + monitorColumns + ` FROM monitors
		WHERE enabled AND status IN ('new','up')
		  AND next_expected_at IS NOT NULL
		  AND next_expected_at + (grace_period_seconds * interval '1 second') <= $1
		ORDER BY next_expected_at ASC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list overdue monitors: %w", err)
	}
	defer rows.Close()

	var monitors []*domain.Monitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, err
		}
		monitors = append(monitors, m)
	}
	return monitors, rows.Err()
}

func (r *MonitorRepository) TransitionStatus(ctx context.Context, id string, to domain.MonitorStatus) error {
	tag, err := r.pool.Exec(ctx, `UPDATE monitors SET status = $2, updated_at = NOW() WHERE id = $1`, id, to)
	if err != nil {
		return fmt.Errorf("transition monitor status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMonitorNotFound
	}
	return nil
}

func (r *MonitorRepository) SetNextExpectedAt(ctx context.Context, id string, next time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE monitors SET next_expected_at = $2, updated_at = NOW() WHERE id = $1`, id, next)
	if err != nil {
		return fmt.Errorf("set next_expected_at: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMonitorNotFound
	}
	return nil
}

func (r *MonitorRepository) RecordPing(ctx context.Context, monitorID string, now time.Time, nextExpectedAt time.Time, intervalSeconds int) (*domain.MonitorPing, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin record ping: %w", err)
	}
	defer tx.Rollback(ctx)

	var ping domain.MonitorPing
	err = tx.QueryRow(ctx, `
		INSERT INTO monitor_pings (monitor_id, received_at, expected_interval_seconds)
		VALUES ($1, $2, $3)
		RETURNING id, monitor_id, received_at, expected_interval_seconds`,
		monitorID, now, intervalSeconds,
	).Scan(&ping.ID, &ping.MonitorID, &ping.ReceivedAt, &ping.ExpectedIntervalSeconds)
	if err != nil {
		return nil, fmt.Errorf("insert monitor ping: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE monitors SET last_ping_at = $2, next_expected_at = $3, updated_at = NOW()
		WHERE id = $1`, monitorID, now, nextExpectedAt)
	if err != nil {
		return nil, fmt.Errorf("update monitor ping bookkeeping: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit record ping: %w", err)
	}
	return &ping, nil
}

func (r *MonitorRepository) ListPings(ctx context.Context, monitorID string, limit int) ([]*domain.MonitorPing, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, monitor_id, received_at, expected_interval_seconds
		FROM monitor_pings WHERE monitor_id = $1
		ORDER BY received_at DESC LIMIT $2`, monitorID, limit)
	if err != nil {
		return nil, fmt.Errorf("list monitor pings: %w", err)
	}
	defer rows.Close()

	var pings []*domain.MonitorPing
	for rows.Next() {
		var p domain.MonitorPing
		if err := rows.Scan(&p.ID, &p.MonitorID, &p.ReceivedAt, &p.ExpectedIntervalSeconds); err != nil {
			return nil, fmt.Errorf("scan monitor ping: %w", err)
		}
		pings = append(pings, &p)
	}
	return pings, rows.Err()
}

func scanMonitor(row rowScanner) (*domain.Monitor, error) {
	var m domain.Monitor
	err := row.Scan(
		&m.ID, &m.OrganizationID, &m.Name, &m.PingToken, &m.ScheduleType, &m.IntervalSeconds, &m.CronExpression,
		&m.GracePeriodSeconds, &m.Status, &m.Enabled, &m.LastPingAt, &m.NextExpectedAt,
		&m.NotifyOnFailure, &m.NotifyOnRecovery, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMonitorNotFound
		}
		return nil, fmt.Errorf("scan monitor: %w", err)
	}
	return &m, nil
}
