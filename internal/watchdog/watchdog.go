// Package watchdog implements C9: the leader-only tick loop that transitions
// overdue monitors to down and fires the failure notification (§4.7). The
// up/recovery half of §4.7 is ping-driven and lives in usecase.MonitorUsecase.Ping,
// since it must run synchronously with the HTTP ping handler rather than on a
// tick. Grounded on the teacher's scheduler.Reaper tick shape.
package watchdog

import (
	"context"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/taskrelay/internal/domain"
	"github.com/ErlanBelekov/taskrelay/internal/metrics"
	"github.com/ErlanBelekov/taskrelay/internal/notifier"
	"github.com/ErlanBelekov/taskrelay/internal/repository"
)

type Watchdog struct {
	monitors repository.MonitorStore
	notifier *notifier.Notifier
	logger   *slog.Logger
	tick     time.Duration
}

func New(monitors repository.MonitorStore, notif *notifier.Notifier, logger *slog.Logger, tick time.Duration) *Watchdog {
	return &Watchdog{
		monitors: monitors,
		notifier: notif,
		logger:   logger.With("component", "watchdog"),
		tick:     tick,
	}
}

func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweepOnce(ctx)
		}
	}
}

func (w *Watchdog) sweepOnce(ctx context.Context) {
	now := time.Now().UTC()
	overdue, err := w.monitors.ListOverdue(ctx, now, 500)
	if err != nil {
		w.logger.Error("list overdue monitors", "error", err)
		return
	}
	for _, m := range overdue {
		if err := w.transitionDown(ctx, m); err != nil {
			w.logger.Error("transition monitor down", "monitor_id", m.ID, "error", err)
		}
	}
}

func (w *Watchdog) transitionDown(ctx context.Context, m *domain.Monitor) error {
	if err := w.monitors.TransitionStatus(ctx, m.ID, domain.MonitorDown); err != nil {
		return err
	}
	metrics.WatchdogTransitionsTotal.WithLabelValues("down").Inc()

	if w.notifier == nil {
		return nil
	}
	return w.notifier.NotifyFailure(ctx, m.OrganizationID, "monitor", m.ID, notifier.MonitorOverrides(m), map[string]any{"monitor_id": m.ID})
}
