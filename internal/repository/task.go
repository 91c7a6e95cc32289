package repository

import (
	"context"
	"time"

	"github.com/ErlanBelekov/taskrelay/internal/domain"
)

type ListTasksInput struct {
	OrganizationID string
	Queue          *string
	CursorTime     *time.Time
	CursorID       string
	Limit          int
}

type TaskStore interface {
	Create(ctx context.Context, t *domain.Task) (*domain.Task, error)
	GetByID(ctx context.Context, id, orgID string) (*domain.Task, error)
	Update(ctx context.Context, t *domain.Task) (*domain.Task, error)
	SoftDelete(ctx context.Context, id, orgID string) error
	List(ctx context.Context, input ListTasksInput) ([]*domain.Task, error)

	// ListDueTasks returns enabled, non-deleted tasks whose next_run_at is
	// within horizon of now — the scheduler's materialization candidate set.
	ListDueTasks(ctx context.Context, now time.Time, horizon time.Duration, limit int) ([]*domain.Task, error)
	AdvanceNextRunAt(ctx context.Context, taskID string, nextRunAt *time.Time, lastExecutionAt time.Time) error

	// FindFanoutSibling locates a previously-created synthetic task for the
	// given (endpoint, forward_url) pair, so fan-out can reuse it (§4.5 step 3).
	FindFanoutSibling(ctx context.Context, endpointID, forwardURL string) (*domain.Task, error)

	CancelPendingInQueue(ctx context.Context, orgID, queue string) (int, error)

	// GetByName and SoftDeleteAllExcept support the declarative sync surface
	// (§6: PUT /api/v1/sync): tasks are keyed by name within an organization,
	// and delete_removed prunes whatever the payload no longer declares.
	GetByName(ctx context.Context, orgID, name string) (*domain.Task, error)
	SoftDeleteAllExcept(ctx context.Context, orgID string, keep []string) (int, error)
}
