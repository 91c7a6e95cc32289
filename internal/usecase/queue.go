package usecase

import (
	"context"
	"fmt"

	"github.com/ErlanBelekov/taskrelay/internal/domain"
	"github.com/ErlanBelekov/taskrelay/internal/repository"
)

type QueueUsecase struct {
	queues repository.QueueStore
	tasks  repository.TaskStore
}

func NewQueueUsecase(queues repository.QueueStore, tasks repository.TaskStore) *QueueUsecase {
	return &QueueUsecase{queues: queues, tasks: tasks}
}

func (u *QueueUsecase) List(ctx context.Context, orgID string) ([]*domain.Queue, error) {
	return u.queues.List(ctx, orgID)
}

func (u *QueueUsecase) Pause(ctx context.Context, orgID, name string) error {
	if err := u.queues.SetPaused(ctx, orgID, name, true); err != nil {
		return fmt.Errorf("pause queue: %w", err)
	}
	return nil
}

// Resume unpauses a queue. Executions already queued resume claim
// eligibility on the next scheduler/worker tick — no bulk wake is needed,
// the claim query simply stops filtering them out.
func (u *QueueUsecase) Resume(ctx context.Context, orgID, name string) error {
	if err := u.queues.SetPaused(ctx, orgID, name, false); err != nil {
		return fmt.Errorf("resume queue: %w", err)
	}
	return nil
}

// Cancel drops pending (not yet claimed) executions for a queue, used when
// an operator wants to drain a queue without waiting them out.
func (u *QueueUsecase) Cancel(ctx context.Context, orgID, name string) (int, error) {
	n, err := u.tasks.CancelPendingInQueue(ctx, orgID, name)
	if err != nil {
		return 0, fmt.Errorf("cancel pending in queue: %w", err)
	}
	return n, nil
}
