package repository

import (
	"context"
	"time"

	"github.com/ErlanBelekov/taskrelay/internal/domain"
)

// FairnessConfig parameterizes the claim query's org-cap and queue-block
// predicates (§4.4, §4.7 — tunable, not hardcoded into SQL literals).
type FairnessConfig struct {
	FreeConcurrencyCap int
	ProConcurrencyCap  int
}

type CreateExecutionInput struct {
	TaskID         string
	OrganizationID string
	Queue          *string
	ScheduledFor   time.Time
	Attempt        int
	CallbackURL    *string
}

type ExecutionOutcome struct {
	Status       domain.ExecutionStatus
	FinishedAt   time.Time
	StatusCode   *int
	DurationMS   int64
	ResponseBody *string
	ErrorMessage *string
}

type ListExecutionsInput struct {
	TaskID     *string
	OrgID      string
	CursorTime *time.Time
	CursorID   string
	Limit      int
}

type ExecutionStore interface {
	Create(ctx context.Context, input CreateExecutionInput) (*domain.Execution, error)
	GetByID(ctx context.Context, id, orgID string) (*domain.Execution, error)
	List(ctx context.Context, input ListExecutionsInput) ([]*domain.Execution, error)

	// ExistsPendingAt implements the unique-index guarantee of §5: at most
	// one pending execution per (task_id, scheduled_for).
	ExistsPendingAt(ctx context.Context, taskID string, scheduledFor time.Time) (bool, error)

	// ClaimNext implements the atomic claim primitive of §4.2: tier
	// priority, queue eligibility, org fairness cap, then scheduled_for/id.
	ClaimNext(ctx context.Context, now time.Time, workerID string, cfg FairnessConfig) (*domain.Execution, error)

	Finish(ctx context.Context, id string, outcome ExecutionOutcome) error

	// PreviousTerminalStatus returns the terminal status of the execution
	// immediately preceding the given one for the same task (by id order,
	// since ids are monotonically sortable) — used to decide whether a
	// recovery notification fires. Comparing by id rather than attempt
	// matters: attempt numbers restart at 1 for every fire, and recovery
	// must see the previous fire's failure streak.
	PreviousTerminalStatus(ctx context.Context, taskID, beforeExecutionID string) (domain.ExecutionStatus, bool, error)

	// ReapStuckRunning transitions running executions whose started_at is
	// older than the stuck threshold to failed(reason="worker lost").
	ReapStuckRunning(ctx context.Context, olderThan time.Time, limit int) (int, error)

	CountRunningByOrg(ctx context.Context, orgID string) (int, error)
}
