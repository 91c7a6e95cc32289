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

type ExecutionRepository struct {
	pool *pgxpool.Pool
}

func NewExecutionRepository(pool *pgxpool.Pool) *ExecutionRepository {
	return &ExecutionRepository{pool: pool}
}

const executionColumns = `
	id, task_id, organization_id, queue, status, scheduled_for, started_at,
	finished_at, status_code, duration_ms, response_body, error_message,
	attempt, callback_url, created_at, updated_at`

func (r *ExecutionRepository) Create(ctx context.Context, input repository.CreateExecutionInput) (*domain.Execution, error) {
	query := `
		INSERT INTO executions (
			task_id, organization_id, queue, status, scheduled_for, attempt, callback_url
		) VALUES ($1, $2, $3, 'pending', $4, $5, $6)
		ON CONFLICT (task_id, scheduled_for) DO NOTHING
		RETURNING ` + executionColumns

	row := r.pool.QueryRow(ctx, query,
		input.TaskID, input.OrganizationID, input.Queue, input.ScheduledFor, input.Attempt, input.CallbackURL,
	)
	exec, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, domain.ErrExecutionNotFound) {
			// The unique index on (task_id, scheduled_for) absorbed a
			// duplicate materialization attempt (§5, invariant 1).
			return nil, nil
		}
		return nil, err
	}
	return exec, nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id, orgID string) (*domain.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE id = $1 AND organization_id = $2`
	return scanExecution(r.pool.QueryRow(ctx, query, id, orgID))
}

func (r *ExecutionRepository) List(ctx context.Context, input repository.ListExecutionsInput) ([]*domain.Execution, error) {
	args := []any{input.OrgID}
	where := []string{"organization_id = $1"}

	if input.TaskID != nil {
		args = append(args, *input.TaskID)
		where = append(where, fmt.Sprintf("task_id = $%d", len(args)))
	}
	if input.CursorTime != nil {
		args = append(args, *input.CursorTime, input.CursorID)
		where = append(where, fmt.Sprintf("(scheduled_for, id) < ($%d, $%d)", len(args)-1, len(args)))
	}
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit)

	query := fmt.Sprintf(`SELECT %s FROM executions WHERE %s ORDER BY scheduled_for DESC, id DESC LIMIT $%d`,
		executionColumns, strings.Join(where, " AND "), len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var execs []*domain.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, e)
	}
	return execs, rows.Err()
}

func (r *ExecutionRepository) ExistsPendingAt(ctx context.Context, taskID string, scheduledFor time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM executions WHERE task_id = $1 AND scheduled_for = $2 AND status = 'pending')`,
		taskID, scheduledFor).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("exists pending at: %w", err)
	}
	return exists, nil
}

// claimOrgAttempts bounds how many organizations one ClaimNext call screens
// before giving up and reporting no work. Orgs skipped here are picked up
// on the caller's next poll.
const claimOrgAttempts = 3

// screenClaimQuery finds the best-ranked organization with a claimable
// execution under the current snapshot. It is only a screen: the fairness
// and queue predicates it evaluates are re-checked authoritatively after
// the per-org advisory lock is held.
const screenClaimQuery = `
	SELECT e.organization_id
	FROM executions e
	JOIN organizations o ON o.id = e.organization_id
	LEFT JOIN queues q ON q.organization_id = e.organization_id AND q.name = e.queue
	WHERE e.status = 'pending'
	  AND e.scheduled_for <= $1
	  AND COALESCE(q.paused, false) = false
	  AND NOT (e.organization_id = ANY($4))
	  AND (e.queue IS NULL OR NOT EXISTS (
		SELECT 1 FROM executions r
		WHERE r.organization_id = e.organization_id
		  AND r.queue = e.queue
		  AND r.status = 'running'
	  ))
	  AND (
		SELECT COUNT(*) FROM executions r2
		WHERE r2.organization_id = e.organization_id AND r2.status = 'running'
	  ) < CASE WHEN o.tier = 'pro' THEN $2 ELSE $3 END
	ORDER BY (o.tier = 'pro') DESC, e.scheduled_for ASC, e.id ASC
	LIMIT 1`

const claimQuery = `
	WITH candidate AS (
		SELECT e.id
		FROM executions e
		JOIN organizations o ON o.id = e.organization_id
		LEFT JOIN queues q ON q.organization_id = e.organization_id AND q.name = e.queue
		WHERE e.status = 'pending'
		  AND e.organization_id = $4
		  AND e.scheduled_for <= $1
		  AND COALESCE(q.paused, false) = false
		  AND (e.queue IS NULL OR NOT EXISTS (
			SELECT 1 FROM executions r
			WHERE r.organization_id = e.organization_id
			  AND r.queue = e.queue
			  AND r.status = 'running'
		  ))
		  AND (
			SELECT COUNT(*) FROM executions r2
			WHERE r2.organization_id = e.organization_id AND r2.status = 'running'
		  ) < CASE WHEN o.tier = 'pro' THEN $2 ELSE $3 END
		ORDER BY e.scheduled_for ASC, e.id ASC
		LIMIT 1
		FOR UPDATE OF e SKIP LOCKED
	)
	UPDATE executions
	SET status = 'running', started_at = $1, updated_at = NOW()
	WHERE id IN (SELECT id FROM candidate)
	RETURNING ` + executionColumns

// ClaimNext implements the atomic claim primitive (§4.2). Ordering:
//  1. tier priority (pro before free)
//  2. queue eligibility (paused queues and queues with a running execution
//     are ineligible — strict per-(org,queue) serialization)
//  3. org fairness cap (running executions for the org < its tier cap)
//  4. earliest scheduled_for, tie-broken by id
//
// Claims for the same organization are serialized by a transaction-scoped
// advisory lock taken before the fairness and queue predicates are
// evaluated. Row locks alone cannot protect those predicates: the
// running-count and queue-running subqueries read rows other than the
// candidate, and under READ COMMITTED a concurrent claim's snapshot can
// see them stale while the competing claim commits. With the advisory
// lock held, the claim statement runs on a snapshot taken after any prior
// same-org claim committed, making its re-check authoritative (§8,
// invariants 3 and 4). Contended orgs are try-locked and skipped, never
// waited on, so concurrent callers each get a distinct row or nil.
func (r *ExecutionRepository) ClaimNext(ctx context.Context, now time.Time, workerID string, cfg repository.FairnessConfig) (*domain.Execution, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin claim: %w", err)
	}
	defer tx.Rollback(ctx)

	excluded := []string{}
	for attempt := 0; attempt < claimOrgAttempts; attempt++ {
		var orgID string
		err := tx.QueryRow(ctx, screenClaimQuery, now, cfg.ProConcurrencyCap, cfg.FreeConcurrencyCap, excluded).Scan(&orgID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, nil
			}
			return nil, fmt.Errorf("screen claimable org: %w", err)
		}

		var locked bool
		if err := tx.QueryRow(ctx, `SELECT pg_try_advisory_xact_lock(hashtext($1))`, orgID).Scan(&locked); err != nil {
			return nil, fmt.Errorf("lock claim org: %w", err)
		}
		if !locked {
			// Another worker is mid-claim for this org; its commit will
			// make the counts we need visible. Move on.
			excluded = append(excluded, orgID)
			continue
		}

		exec, err := scanExecution(tx.QueryRow(ctx, claimQuery, now, cfg.ProConcurrencyCap, cfg.FreeConcurrencyCap, orgID))
		if err != nil {
			if errors.Is(err, domain.ErrExecutionNotFound) {
				// The authoritative re-check disqualified the org (filled
				// to cap or queue became busy between screen and lock).
				excluded = append(excluded, orgID)
				continue
			}
			return nil, fmt.Errorf("claim next execution: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit claim: %w", err)
		}
		return exec, nil
	}
	return nil, nil
}

func (r *ExecutionRepository) Finish(ctx context.Context, id string, outcome repository.ExecutionOutcome) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE executions
		SET status = $2, finished_at = $3, status_code = $4, duration_ms = $5,
		    response_body = $6, error_message = $7, updated_at = NOW()
		WHERE id = $1 AND status = 'running'`,
		id, outcome.Status, outcome.FinishedAt, outcome.StatusCode, outcome.DurationMS,
		outcome.ResponseBody, outcome.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("finish execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Already terminal (monotonicity, §3) or reaped — not an error.
		return nil
	}
	return nil
}

func (r *ExecutionRepository) PreviousTerminalStatus(ctx context.Context, taskID, beforeExecutionID string) (domain.ExecutionStatus, bool, error) {
	var status domain.ExecutionStatus
	err := r.pool.QueryRow(ctx, `
		SELECT status FROM executions
		WHERE task_id = $1 AND id < $2
		  AND status IN ('success','failed','timeout')
		ORDER BY id DESC
		LIMIT 1`, taskID, beforeExecutionID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("previous terminal status: %w", err)
	}
	return status, true, nil
}

func (r *ExecutionRepository) ReapStuckRunning(ctx context.Context, olderThan time.Time, limit int) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE executions
		SET status = 'failed', finished_at = NOW(), error_message = 'worker lost', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM executions
			WHERE status = 'running' AND started_at < $1
			ORDER BY started_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)`, olderThan, limit)
	if err != nil {
		return 0, fmt.Errorf("reap stuck running: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *ExecutionRepository) CountRunningByOrg(ctx context.Context, orgID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM executions WHERE organization_id = $1 AND status = 'running'`, orgID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count running by org: %w", err)
	}
	return n, nil
}

func scanExecution(row rowScanner) (*domain.Execution, error) {
	var e domain.Execution
	err := row.Scan(
		&e.ID, &e.TaskID, &e.OrganizationID, &e.Queue, &e.Status, &e.ScheduledFor, &e.StartedAt,
		&e.FinishedAt, &e.StatusCode, &e.DurationMS, &e.ResponseBody, &e.ErrorMessage,
		&e.Attempt, &e.CallbackURL, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrExecutionNotFound
		}
		return nil, fmt.Errorf("scan execution: %w", err)
	}
	return &e, nil
}
