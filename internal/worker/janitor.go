package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/taskrelay/internal/metrics"
	"github.com/ErlanBelekov/taskrelay/internal/repository"
)

// Janitor reclaims executions stuck in running because their worker died
// mid-dispatch (§5: "a worker crash mid-dispatch leaves a running row; the
// janitor reclaims it after stuck_running_threshold"). Grounded on the
// teacher's scheduler.Reaper — same tick-and-bulk-update shape.
type Janitor struct {
	executions repository.ExecutionStore
	logger     *slog.Logger
	tick       time.Duration
	threshold  time.Duration
}

func NewJanitor(executions repository.ExecutionStore, logger *slog.Logger, tick, threshold time.Duration) *Janitor {
	return &Janitor{
		executions: executions,
		logger:     logger.With("component", "janitor"),
		tick:       tick,
		threshold:  threshold,
	}
}

func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.reapOnce(ctx)
		}
	}
}

func (j *Janitor) reapOnce(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-j.threshold)
	n, err := j.executions.ReapStuckRunning(ctx, cutoff, 200)
	if err != nil {
		j.logger.Error("reap stuck running executions", "error", err)
		return
	}
	if n > 0 {
		j.logger.Warn("reaped stuck running executions", "count", n)
		metrics.JanitorReapedTotal.Add(float64(n))
	}
}
