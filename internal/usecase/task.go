package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/ErlanBelekov/taskrelay/internal/apperror"
	"github.com/ErlanBelekov/taskrelay/internal/cronexpr"
	"github.com/ErlanBelekov/taskrelay/internal/domain"
	"github.com/ErlanBelekov/taskrelay/internal/repository"
)

// Waker is notified when a task's next_run_at may need the scheduler's
// attention sooner than its regular tick (§4.3: "wake-up channel fed by API
// ingress on task create/enable").
type Waker interface {
	Wake()
}

type TaskUsecase struct {
	tasks repository.TaskStore
	queue repository.QueueStore
	wake  Waker
}

func NewTaskUsecase(tasks repository.TaskStore, queues repository.QueueStore, wake Waker) *TaskUsecase {
	return &TaskUsecase{tasks: tasks, queue: queues, wake: wake}
}

type CreateTaskInput struct {
	OrganizationID      string
	Name                string
	URL                 string
	Method              string
	Headers             map[string]string
	Body                *string
	CronExpression      *string
	ScheduledAt         *time.Time
	Enabled             bool
	TimeoutMS           int
	RetryAttempts       int
	CallbackURL         *string
	ExpectedStatusCodes []int
	ExpectedBodyPattern *string
	Queue               *string
	NotifyOnFailure     *bool
	NotifyOnRecovery    *bool
}

func (u *TaskUsecase) Create(ctx context.Context, in CreateTaskInput) (*domain.Task, error) {
	t := &domain.Task{
		OrganizationID:      in.OrganizationID,
		Name:                in.Name,
		URL:                 in.URL,
		Method:              in.Method,
		Headers:             in.Headers,
		Body:                in.Body,
		CronExpression:      in.CronExpression,
		ScheduledAt:         in.ScheduledAt,
		Enabled:             in.Enabled,
		TimeoutMS:           in.TimeoutMS,
		RetryAttempts:       in.RetryAttempts,
		CallbackURL:         in.CallbackURL,
		ExpectedStatusCodes: in.ExpectedStatusCodes,
		ExpectedBodyPattern: in.ExpectedBodyPattern,
		Queue:               in.Queue,
		NotifyOnFailure:     in.NotifyOnFailure,
		NotifyOnRecovery:    in.NotifyOnRecovery,
	}

	switch {
	case in.CronExpression != nil:
		t.ScheduleType = domain.ScheduleCron
		expr, err := cronexpr.Parse(*in.CronExpression)
		if err != nil {
			return nil, err
		}
		next := expr.Next(time.Now())
		t.NextRunAt = &next
	case in.ScheduledAt != nil:
		t.ScheduleType = domain.ScheduleOnce
		t.NextRunAt = in.ScheduledAt
	default:
		return nil, domain.ErrScheduleInvalid
	}

	if t.Queue != nil {
		if err := u.queue.EnsureExists(ctx, in.OrganizationID, *t.Queue); err != nil {
			return nil, fmt.Errorf("ensure queue exists: %w", err)
		}
	}

	created, err := u.tasks.Create(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	if created.Enabled {
		u.wake.Wake()
	}
	return created, nil
}

// CreateBatch bulk-creates up to 1000 tasks sharing one queue in a single
// call (§6: "POST /api/v1/tasks/batch"). All tasks land in the same queue so
// a single EnsureExists call and a single wake suffice.
func (u *TaskUsecase) CreateBatch(ctx context.Context, orgID, queue string, items []CreateTaskInput) ([]*domain.Task, error) {
	if len(items) == 0 {
		return nil, apperror.New(apperror.KindInvalidInput, "items must not be empty")
	}
	if len(items) > 1000 {
		return nil, apperror.New(apperror.KindInvalidInput, "items must not exceed 1000")
	}
	built := make([]*domain.Task, 0, len(items))
	for i := range items {
		in := items[i]
		in.OrganizationID = orgID
		if queue != "" {
			in.Queue = &queue
		}
		t, err := u.buildTask(in)
		if err != nil {
			return nil, fmt.Errorf("task %d: %w", i, err)
		}
		built = append(built, t)
	}

	if queue != "" {
		if err := u.queue.EnsureExists(ctx, orgID, queue); err != nil {
			return nil, fmt.Errorf("ensure queue exists: %w", err)
		}
	}

	created := make([]*domain.Task, 0, len(items))
	anyEnabled := false
	for i, t := range built {
		row, err := u.tasks.Create(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("create task %d: %w", i, err)
		}
		created = append(created, row)
		anyEnabled = anyEnabled || row.Enabled
	}
	if anyEnabled {
		u.wake.Wake()
	}
	return created, nil
}

// buildTask applies the same schedule-derivation rules as Create without
// persisting, so CreateBatch can validate every item before writing any.
func (u *TaskUsecase) buildTask(in CreateTaskInput) (*domain.Task, error) {
	t := &domain.Task{
		OrganizationID:      in.OrganizationID,
		Name:                in.Name,
		URL:                 in.URL,
		Method:              in.Method,
		Headers:             in.Headers,
		Body:                in.Body,
		CronExpression:      in.CronExpression,
		ScheduledAt:         in.ScheduledAt,
		Enabled:             in.Enabled,
		TimeoutMS:           in.TimeoutMS,
		RetryAttempts:       in.RetryAttempts,
		CallbackURL:         in.CallbackURL,
		ExpectedStatusCodes: in.ExpectedStatusCodes,
		ExpectedBodyPattern: in.ExpectedBodyPattern,
		Queue:               in.Queue,
		NotifyOnFailure:     in.NotifyOnFailure,
		NotifyOnRecovery:    in.NotifyOnRecovery,
	}
	switch {
	case in.CronExpression != nil:
		t.ScheduleType = domain.ScheduleCron
		expr, err := cronexpr.Parse(*in.CronExpression)
		if err != nil {
			return nil, err
		}
		next := expr.Next(time.Now())
		t.NextRunAt = &next
	case in.ScheduledAt != nil:
		t.ScheduleType = domain.ScheduleOnce
		t.NextRunAt = in.ScheduledAt
	default:
		return nil, domain.ErrScheduleInvalid
	}
	return t, nil
}

func (u *TaskUsecase) GetByID(ctx context.Context, id, orgID string) (*domain.Task, error) {
	return u.tasks.GetByID(ctx, id, orgID)
}

type ListTasksInput = repository.ListTasksInput

func (u *TaskUsecase) List(ctx context.Context, in ListTasksInput) ([]*domain.Task, error) {
	return u.tasks.List(ctx, in)
}

func (u *TaskUsecase) Update(ctx context.Context, t *domain.Task) (*domain.Task, error) {
	updated, err := u.tasks.Update(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	if updated.Enabled {
		u.wake.Wake()
	}
	return updated, nil
}

func (u *TaskUsecase) Delete(ctx context.Context, id, orgID string) error {
	if err := u.tasks.SoftDelete(ctx, id, orgID); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// CancelQueue drops every pending execution in the named queue. Running
// executions are untouched (§5: cancellation never interrupts in-flight work).
func (u *TaskUsecase) CancelQueue(ctx context.Context, orgID, queue string) (int, error) {
	n, err := u.tasks.CancelPendingInQueue(ctx, orgID, queue)
	if err != nil {
		return 0, fmt.Errorf("cancel queue: %w", err)
	}
	return n, nil
}
