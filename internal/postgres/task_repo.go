package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ErlanBelekov/taskrelay/internal/domain"
	"github.com/ErlanBelekov/taskrelay/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TaskRepository struct {
	pool *pgxpool.Pool
}

func NewTaskRepository(pool *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{pool: pool}
}

const taskColumns = `
	id, organization_id, name, url, method, headers, body,
	schedule_type, cron_expression, scheduled_at, enabled, timeout_ms,
	retry_attempts, callback_url, expected_status_codes, expected_body_pattern,
	queue, next_run_at, last_execution_at, last_execution_status,
	notify_on_failure, notify_on_recovery, internal,
	fanout_endpoint_id, fanout_forward_url, deleted_at, created_at, updated_at`

func (r *TaskRepository) Create(ctx context.Context, t *domain.Task) (*domain.Task, error) {
	query := `
		INSERT INTO tasks (
			organization_id, name, url, method, headers, body,
			schedule_type, cron_expression, scheduled_at, enabled, timeout_ms,
			retry_attempts, callback_url, expected_status_codes, expected_body_pattern,
			queue, next_run_at, internal, fanout_endpoint_id, fanout_forward_url,
			notify_on_failure, notify_on_recovery
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
		RETURNING ` + taskColumns

	row := r.pool.QueryRow(ctx, query,
		t.OrganizationID, t.Name, t.URL, t.Method, t.Headers, t.Body,
		t.ScheduleType, t.CronExpression, t.ScheduledAt, t.Enabled, t.TimeoutMS,
		t.RetryAttempts, t.CallbackURL, t.ExpectedStatusCodes, t.ExpectedBodyPattern,
		t.Queue, t.NextRunAt, t.Internal, t.FanoutEndpointID, t.FanoutForwardURL,
		t.NotifyOnFailure, t.NotifyOnRecovery,
	)
	return scanTask(row)
}

func (r *TaskRepository) GetByID(ctx context.Context, id, orgID string) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL`
	return scanTask(r.pool.QueryRow(ctx, query, id, orgID))
}

func (r *TaskRepository) Update(ctx context.Context, t *domain.Task) (*domain.Task, error) {
	query := `
		UPDATE tasks SET
			name = $3, url = $4, method = $5, headers = $6, body = $7,
			schedule_type = $8, cron_expression = $9, scheduled_at = $10,
			enabled = $11, timeout_ms = $12, retry_attempts = $13,
			callback_url = $14, expected_status_codes = $15, expected_body_pattern = $16,
			queue = $17, notify_on_failure = $18, notify_on_recovery = $19,
			next_run_at = $20, updated_at = NOW()
		WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL
		RETURNING ` + taskColumns

	row := r.pool.QueryRow(ctx, query,
		t.ID, t.OrganizationID, t.Name, t.URL, t.Method, t.Headers, t.Body,
		t.ScheduleType, t.CronExpression, t.ScheduledAt, t.Enabled, t.TimeoutMS,
		t.RetryAttempts, t.CallbackURL, t.ExpectedStatusCodes, t.ExpectedBodyPattern,
		t.Queue, t.NotifyOnFailure, t.NotifyOnRecovery, t.NextRunAt,
	)
	return scanTask(row)
}

func (r *TaskRepository) SoftDelete(ctx context.Context, id, orgID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tasks SET deleted_at = NOW(), enabled = false, updated_at = NOW()
		 WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL`, id, orgID)
	if err != nil {
		return fmt.Errorf("soft delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

func (r *TaskRepository) List(ctx context.Context, input repository.ListTasksInput) ([]*domain.Task, error) {
	args := []any{input.OrganizationID}
	where := []string{"organization_id = $1", "deleted_at IS NULL"}

	if input.Queue != nil {
		args = append(args, *input.Queue)
		where = append(where, fmt.Sprintf("queue = $%d", len(args)))
	}
	if input.CursorTime != nil {
		args = append(args, *input.CursorTime, input.CursorID)
		where = append(where, fmt.Sprintf("(created_at, id) < ($%d, $%d)", len(args)-1, len(args)))
	}
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit)

	query := fmt.Sprintf(`SELECT %s FROM tasks WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d`,
		taskColumns, strings.Join(where, " AND "), len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// ListDueTasks returns enabled, non-deleted tasks materializing within
// horizon of now, used by the scheduler's tick (§4.3).
func (r *TaskRepository) ListDueTasks(ctx context.Context, now time.Time, horizon time.Duration, limit int) ([]*domain.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE enabled AND deleted_at IS NULL
		  AND next_run_at IS NOT NULL
		  AND next_run_at <= $1
		ORDER BY next_run_at ASC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, now.Add(horizon), limit)
	if err != nil {
		return nil, fmt.Errorf("list due tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (r *TaskRepository) AdvanceNextRunAt(ctx context.Context, taskID string, nextRunAt *time.Time, lastExecutionAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE tasks SET next_run_at = $2, last_execution_at = $3, updated_at = NOW() WHERE id = $1`,
		taskID, nextRunAt, lastExecutionAt)
	if err != nil {
		return fmt.Errorf("advance next_run_at: %w", err)
	}
	return nil
}

func (r *TaskRepository) FindFanoutSibling(ctx context.Context, endpointID, forwardURL string) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE fanout_endpoint_id = $1 AND fanout_forward_url = $2 AND deleted_at IS NULL
		LIMIT 1`
	t, err := scanTask(r.pool.QueryRow(ctx, query, endpointID, forwardURL))
	if err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

func (r *TaskRepository) GetByName(ctx context.Context, orgID, name string) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE organization_id = $1 AND name = $2 AND deleted_at IS NULL AND internal = false
		LIMIT 1`
	return scanTask(r.pool.QueryRow(ctx, query, orgID, name))
}

func (r *TaskRepository) SoftDeleteAllExcept(ctx context.Context, orgID string, keep []string) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tasks SET deleted_at = NOW(), enabled = false, updated_at = NOW()
		WHERE organization_id = $1 AND deleted_at IS NULL AND internal = false
		  AND NOT (name = ANY($2))`, orgID, keep)
	if err != nil {
		return 0, fmt.Errorf("soft delete all except: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *TaskRepository) CancelPendingInQueue(ctx context.Context, orgID, queue string) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM executions
		WHERE organization_id = $1 AND queue = $2 AND status = 'pending'`,
		orgID, queue)
	if err != nil {
		return 0, fmt.Errorf("cancel pending in queue: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var t domain.Task
	err := row.Scan(
		&t.ID, &t.OrganizationID, &t.Name, &t.URL, &t.Method, &t.Headers, &t.Body,
		&t.ScheduleType, &t.CronExpression, &t.ScheduledAt, &t.Enabled, &t.TimeoutMS,
		&t.RetryAttempts, &t.CallbackURL, &t.ExpectedStatusCodes, &t.ExpectedBodyPattern,
		&t.Queue, &t.NextRunAt, &t.LastExecutionAt, &t.LastExecutionStatus,
		&t.NotifyOnFailure, &t.NotifyOnRecovery, &t.Internal,
		&t.FanoutEndpointID, &t.FanoutForwardURL, &t.DeletedAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}
	return &t, nil
}
