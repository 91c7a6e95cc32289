package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/ErlanBelekov/taskrelay/internal/apperror"
	"github.com/ErlanBelekov/taskrelay/internal/domain"
	"github.com/ErlanBelekov/taskrelay/internal/quota"
	"github.com/ErlanBelekov/taskrelay/internal/repository"
)

// ExecutionUsecase covers read access to execution history plus the manual
// "run now" trigger (§6: POST /tasks/{id}/trigger), which admits a pending
// execution directly rather than through the scheduler and so enforces the
// quota admission refusal of §4.9 itself. Fan-out receive and replay
// (internal/fanout) also insert pending executions directly and do not
// check the quota.
type ExecutionUsecase struct {
	executions repository.ExecutionStore
	tasks      repository.TaskStore
	quota      *quota.Counter
	wake       Waker
}

func NewExecutionUsecase(executions repository.ExecutionStore, tasks repository.TaskStore, q *quota.Counter, wake Waker) *ExecutionUsecase {
	return &ExecutionUsecase{executions: executions, tasks: tasks, quota: q, wake: wake}
}

func (u *ExecutionUsecase) GetByID(ctx context.Context, id, orgID string) (*domain.Execution, error) {
	return u.executions.GetByID(ctx, id, orgID)
}

type ListExecutionsInput = repository.ListExecutionsInput

func (u *ExecutionUsecase) List(ctx context.Context, in ListExecutionsInput) ([]*domain.Execution, error) {
	return u.executions.List(ctx, in)
}

// Trigger inserts an immediate, attempt=1 pending execution for a task
// outside its regular schedule.
func (u *ExecutionUsecase) Trigger(ctx context.Context, taskID, orgID string) (*domain.Execution, error) {
	task, err := u.tasks.GetByID(ctx, taskID, orgID)
	if err != nil {
		return nil, err
	}

	if u.quota != nil {
		allowed, err := u.quota.Allow(ctx, orgID)
		if err != nil {
			return nil, fmt.Errorf("check quota: %w", err)
		}
		if !allowed {
			return nil, apperror.New(apperror.KindQuotaExceeded, "organization monthly execution quota exceeded")
		}
	}

	exec, err := u.executions.Create(ctx, repository.CreateExecutionInput{
		TaskID:         task.ID,
		OrganizationID: orgID,
		Queue:          task.Queue,
		ScheduledFor:   time.Now().UTC(),
		Attempt:        1,
		CallbackURL:    task.CallbackURL,
	})
	if err != nil {
		return nil, fmt.Errorf("trigger execution: %w", err)
	}
	if u.wake != nil {
		u.wake.Wake()
	}
	return exec, nil
}
