package usecase

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/ErlanBelekov/taskrelay/internal/cronexpr"
	"github.com/ErlanBelekov/taskrelay/internal/domain"
	"github.com/ErlanBelekov/taskrelay/internal/metrics"
	"github.com/ErlanBelekov/taskrelay/internal/notifier"
	"github.com/ErlanBelekov/taskrelay/internal/repository"
)

type MonitorUsecase struct {
	monitors repository.MonitorStore
	notifier *notifier.Notifier
}

func NewMonitorUsecase(monitors repository.MonitorStore, notif *notifier.Notifier) *MonitorUsecase {
	return &MonitorUsecase{monitors: monitors, notifier: notif}
}

type CreateMonitorInput struct {
	OrganizationID     string
	Name               string
	ScheduleType       domain.MonitorScheduleType
	IntervalSeconds    *int
	CronExpression     *string
	GracePeriodSeconds int
	NotifyOnFailure    *bool
	NotifyOnRecovery   *bool
}

func (u *MonitorUsecase) Create(ctx context.Context, in CreateMonitorInput) (*domain.Monitor, error) {
	token, err := randomToken()
	if err != nil {
		return nil, fmt.Errorf("generate ping token: %w", err)
	}

	next, err := firstExpectedAt(in.ScheduleType, in.IntervalSeconds, in.CronExpression, time.Now())
	if err != nil {
		return nil, err
	}

	m := &domain.Monitor{
		OrganizationID:     in.OrganizationID,
		Name:               in.Name,
		PingToken:          token,
		ScheduleType:       in.ScheduleType,
		IntervalSeconds:    in.IntervalSeconds,
		CronExpression:     in.CronExpression,
		GracePeriodSeconds: in.GracePeriodSeconds,
		Status:             domain.MonitorNew,
		Enabled:            true,
		NextExpectedAt:     &next,
		NotifyOnFailure:    in.NotifyOnFailure,
		NotifyOnRecovery:   in.NotifyOnRecovery,
	}
	created, err := u.monitors.Create(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("create monitor: %w", err)
	}
	return created, nil
}

func (u *MonitorUsecase) GetByID(ctx context.Context, id, orgID string) (*domain.Monitor, error) {
	return u.monitors.GetByID(ctx, id, orgID)
}

func (u *MonitorUsecase) List(ctx context.Context, orgID string) ([]*domain.Monitor, error) {
	return u.monitors.List(ctx, orgID)
}

type UpdateMonitorInput struct {
	ID                 string
	OrganizationID     string
	Name               string
	ScheduleType       domain.MonitorScheduleType
	IntervalSeconds    *int
	CronExpression     *string
	GracePeriodSeconds int
	Enabled            bool
	NotifyOnFailure    *bool
	NotifyOnRecovery   *bool
}

// Update rewrites a monitor's schedule and flags; next_expected_at is
// recomputed from the new schedule so the watchdog doesn't judge the next
// ping against a stale expectation.
func (u *MonitorUsecase) Update(ctx context.Context, in UpdateMonitorInput) (*domain.Monitor, error) {
	m, err := u.monitors.GetByID(ctx, in.ID, in.OrganizationID)
	if err != nil {
		return nil, err
	}

	m.Name = in.Name
	m.ScheduleType = in.ScheduleType
	m.IntervalSeconds = in.IntervalSeconds
	m.CronExpression = in.CronExpression
	m.GracePeriodSeconds = in.GracePeriodSeconds
	m.Enabled = in.Enabled
	m.NotifyOnFailure = in.NotifyOnFailure
	m.NotifyOnRecovery = in.NotifyOnRecovery

	updated, err := u.monitors.Update(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("update monitor: %w", err)
	}

	from := time.Now()
	if updated.LastPingAt != nil {
		from = *updated.LastPingAt
	}
	next, err := firstExpectedAt(updated.ScheduleType, updated.IntervalSeconds, updated.CronExpression, from)
	if err != nil {
		return nil, err
	}
	if err := u.monitors.SetNextExpectedAt(ctx, updated.ID, next); err != nil {
		return nil, fmt.Errorf("reset next_expected_at: %w", err)
	}
	updated.NextExpectedAt = &next
	return updated, nil
}

func (u *MonitorUsecase) Delete(ctx context.Context, id, orgID string) error {
	if err := u.monitors.Delete(ctx, id, orgID); err != nil {
		return fmt.Errorf("delete monitor: %w", err)
	}
	return nil
}

// Ping records a heartbeat, recomputes next_expected_at from the monitor's
// own schedule snapshot, and transitions status back to up if it had lapsed.
func (u *MonitorUsecase) Ping(ctx context.Context, token string) (*domain.Monitor, error) {
	m, err := u.monitors.GetByPingToken(ctx, token)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	next, err := firstExpectedAt(m.ScheduleType, m.IntervalSeconds, m.CronExpression, now)
	if err != nil {
		return nil, err
	}

	interval := 0
	if m.IntervalSeconds != nil {
		interval = *m.IntervalSeconds
	}
	if _, err := u.monitors.RecordPing(ctx, m.ID, now, next, interval); err != nil {
		return nil, fmt.Errorf("record ping: %w", err)
	}
	if m.Status == domain.MonitorDown {
		if err := u.monitors.TransitionStatus(ctx, m.ID, domain.MonitorUp); err != nil {
			return nil, fmt.Errorf("transition monitor up: %w", err)
		}
		if u.notifier != nil {
			if err := u.notifier.NotifyRecovery(ctx, m.OrganizationID, "monitor", m.ID, notifier.MonitorOverrides(m), map[string]any{"monitor_id": m.ID}); err != nil {
				return nil, fmt.Errorf("notify monitor recovery: %w", err)
			}
		}
		metrics.WatchdogTransitionsTotal.WithLabelValues("up").Inc()
		m.Status = domain.MonitorUp
	} else if m.Status != domain.MonitorUp {
		if err := u.monitors.TransitionStatus(ctx, m.ID, domain.MonitorUp); err != nil {
			return nil, fmt.Errorf("transition monitor up: %w", err)
		}
		m.Status = domain.MonitorUp
	}
	m.LastPingAt = &now
	m.NextExpectedAt = &next
	return m, nil
}

func firstExpectedAt(st domain.MonitorScheduleType, intervalSeconds *int, cron *string, from time.Time) (time.Time, error) {
	switch st {
	case domain.MonitorScheduleInterval:
		if intervalSeconds == nil {
			return time.Time{}, domain.ErrScheduleInvalid
		}
		return from.Add(time.Duration(*intervalSeconds) * time.Second), nil
	case domain.MonitorScheduleCron:
		if cron == nil {
			return time.Time{}, domain.ErrScheduleInvalid
		}
		expr, err := cronexpr.Parse(*cron)
		if err != nil {
			return time.Time{}, err
		}
		// Next is boundary-inclusive, so a ping landing exactly on a fire
		// time must expect the following one — evaluate from one second
		// later, the same bump the scheduler applies to next_run_at.
		return expr.Next(from.Add(time.Second)), nil
	default:
		return time.Time{}, domain.ErrScheduleInvalid
	}
}

func randomToken() (string, error) {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
