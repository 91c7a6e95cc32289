// Package scheduler implements C5: the leader-only loop that turns enabled
// tasks' next_run_at into pending execution rows. Structurally grounded on
// the teacher's scheduler.Dispatcher (tick loop, ClaimAndFire-shaped batch
// call, cron recompute via robfig/cron), generalized from a single
// per-schedule job to the full task/execution domain with missed-fire
// coalescing and a wake-up channel fed by API ingress (§4.3).
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/taskrelay/internal/cronexpr"
	"github.com/ErlanBelekov/taskrelay/internal/domain"
	"github.com/ErlanBelekov/taskrelay/internal/repository"
)

type Materializer struct {
	tasks      repository.TaskStore
	executions repository.ExecutionStore
	logger     *slog.Logger

	tick                time.Duration
	horizon             time.Duration
	missedFireThreshold time.Duration

	wake chan struct{}
}

func New(tasks repository.TaskStore, executions repository.ExecutionStore, logger *slog.Logger, tick, horizon, missedFireThreshold time.Duration) *Materializer {
	return &Materializer{
		tasks:               tasks,
		executions:          executions,
		logger:              logger.With("component", "scheduler"),
		tick:                tick,
		horizon:             horizon,
		missedFireThreshold: missedFireThreshold,
		wake:                make(chan struct{}, 1),
	}
}

// Wake schedules an immediate tick, used by API ingress on task create/enable
// so a newly-enabled task doesn't wait out a full tick interval (§4.3, §5).
func (m *Materializer) Wake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled, materializing due tasks on every tick
// interval or wake signal. Intended to run only while leader (§4.3, §5).
func (m *Materializer) Run(ctx context.Context) {
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	m.logger.Info("scheduler started", "tick", m.tick, "horizon", m.horizon)
	m.runTick(ctx)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			m.runTick(ctx)
		case <-m.wake:
			m.runTick(ctx)
		}
	}
}

func (m *Materializer) runTick(ctx context.Context) {
	now := time.Now().UTC()
	due, err := m.tasks.ListDueTasks(ctx, now, m.horizon, 500)
	if err != nil {
		m.logger.Error("list due tasks", "error", err)
		return
	}
	for _, t := range due {
		if err := m.materialize(ctx, t, now); err != nil {
			m.logger.Error("materialize task", "task_id", t.ID, "error", err)
		}
	}
}

// materialize inserts the pending execution for a task's current
// next_run_at and recomputes next_run_at (§4.3). The unique index on
// (task_id, scheduled_for) makes the insert idempotent (§8, invariant 1):
// whether this tick created the row or a previous tick already did, the
// instant is materialized and next_run_at must still advance, or the task
// would be re-offered by ListDueTasks forever.
func (m *Materializer) materialize(ctx context.Context, t *domain.Task, now time.Time) error {
	if t.NextRunAt == nil {
		return nil
	}
	scheduledFor := *t.NextRunAt

	_, err := m.executions.Create(ctx, repository.CreateExecutionInput{
		TaskID:         t.ID,
		OrganizationID: t.OrganizationID,
		Queue:          t.Queue,
		ScheduledFor:   scheduledFor,
		Attempt:        1,
		CallbackURL:    t.CallbackURL,
	})
	if err != nil {
		return err
	}

	missedFire := t.ScheduleType == domain.ScheduleCron && now.Sub(scheduledFor) > m.missedFireThreshold
	if missedFire {
		m.logger.Warn("missed cron fire, coalescing", "task_id", t.ID, "scheduled_for", scheduledFor)
	}

	var next *time.Time
	switch t.ScheduleType {
	case domain.ScheduleCron:
		if t.CronExpression == nil {
			return errors.New("cron task missing cron_expression")
		}
		expr, err := cronexpr.Parse(*t.CronExpression)
		if err != nil {
			return err
		}
		// §4.3: "the cron evaluator from now + 1s" — also the correct jump
		// target on a missed fire ("first fire strictly after now").
		n := expr.Next(now.Add(time.Second))
		next = &n
	case domain.ScheduleOnce:
		next = nil
	}

	return m.tasks.AdvanceNextRunAt(ctx, t.ID, next, now)
}
