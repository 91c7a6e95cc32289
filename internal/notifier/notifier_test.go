package notifier_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ErlanBelekov/taskrelay/internal/domain"
	"github.com/ErlanBelekov/taskrelay/internal/notifier"
)

// ---- fakes ----

type fakeOrgStore struct {
	org *domain.Organization
}

func (s *fakeOrgStore) Create(ctx context.Context, o *domain.Organization) (*domain.Organization, error) {
	return o, nil
}
func (s *fakeOrgStore) GetByID(ctx context.Context, id string) (*domain.Organization, error) {
	return s.org, nil
}
func (s *fakeOrgStore) UpdateNotifyConfig(ctx context.Context, id string, notifyOnFailure, notifyOnRecovery bool, email, webhookURL *string) error {
	return nil
}
func (s *fakeOrgStore) BumpMonthlyCounter(ctx context.Context, orgID string, delta int) (int, error) {
	return 0, nil
}
func (s *fakeOrgStore) MarkWarningSent(ctx context.Context, orgID string) error { return nil }
func (s *fakeOrgStore) MarkReachedSent(ctx context.Context, orgID string) error { return nil }
func (s *fakeOrgStore) ResetMonthlyCounters(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

type fakeNotificationStore struct {
	sentCount int
	recorded  []string
}

func (s *fakeNotificationStore) CountRecentSent(ctx context.Context, orgID, emailType string, since time.Time) (int, error) {
	return s.sentCount, nil
}

func (s *fakeNotificationStore) RecordSent(ctx context.Context, orgID, emailType string, at time.Time) error {
	s.recorded = append(s.recorded, emailType)
	return nil
}

type fakeSink struct {
	emailsSent   int
	webhooksSent int
}

func (s *fakeSink) SendEmail(ctx context.Context, to, template string, data map[string]any) error {
	s.emailsSent++
	return nil
}

func (s *fakeSink) PostWebhook(ctx context.Context, url string, body []byte, secret string) error {
	s.webhooksSent++
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ---- NotifyFailure ----

func TestNotifyFailure_OrgFlagTrue_Dispatches(t *testing.T) {
	email := "alerts@example.com"
	orgs := &fakeOrgStore{org: &domain.Organization{ID: "org-1", NotifyOnFailure: true, NotifyEmail: &email}}
	notifications := &fakeNotificationStore{}
	sink := &fakeSink{}
	n := notifier.New(notifications, orgs, sink, testLogger(), 5*time.Minute)

	task := &domain.Task{ID: "task-1"}
	if err := n.NotifyFailure(context.Background(), "org-1", "task", task.ID, notifier.TaskOverrides(task), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sink.emailsSent != 1 {
		t.Errorf("emailsSent = %d, want 1", sink.emailsSent)
	}
	if len(notifications.recorded) != 1 || notifications.recorded[0] != "failure" {
		t.Errorf("recorded = %v, want one failure entry", notifications.recorded)
	}
}

func TestNotifyFailure_OrgFlagFalse_NoOverride_Skipped(t *testing.T) {
	orgs := &fakeOrgStore{org: &domain.Organization{ID: "org-1", NotifyOnFailure: false}}
	notifications := &fakeNotificationStore{}
	sink := &fakeSink{}
	n := notifier.New(notifications, orgs, sink, testLogger(), 5*time.Minute)

	task := &domain.Task{ID: "task-1"}
	if err := n.NotifyFailure(context.Background(), "org-1", "task", task.ID, notifier.TaskOverrides(task), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sink.emailsSent != 0 {
		t.Errorf("emailsSent = %d, want 0 when org flag is false and no override", sink.emailsSent)
	}
}

func TestNotifyFailure_ResourceOverrideTrue_OverridesOrgFalse(t *testing.T) {
	orgs := &fakeOrgStore{org: &domain.Organization{ID: "org-1", NotifyOnFailure: false}}
	notifications := &fakeNotificationStore{}
	sink := &fakeSink{}
	n := notifier.New(notifications, orgs, sink, testLogger(), 5*time.Minute)

	override := true
	task := &domain.Task{ID: "task-1", NotifyOnFailure: &override}
	if err := n.NotifyFailure(context.Background(), "org-1", "task", task.ID, notifier.TaskOverrides(task), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notifications.recorded) != 1 {
		t.Errorf("want one dispatch when task-level override forces notify on, got %d", len(notifications.recorded))
	}
}

func TestNotifyFailure_Throttled_NoSecondDelivery(t *testing.T) {
	email := "alerts@example.com"
	orgs := &fakeOrgStore{org: &domain.Organization{ID: "org-1", NotifyOnFailure: true, NotifyEmail: &email}}
	notifications := &fakeNotificationStore{sentCount: 1}
	sink := &fakeSink{}
	n := notifier.New(notifications, orgs, sink, testLogger(), 5*time.Minute)

	task := &domain.Task{ID: "task-1"}
	if err := n.NotifyFailure(context.Background(), "org-1", "task", task.ID, notifier.TaskOverrides(task), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sink.emailsSent != 0 {
		t.Errorf("emailsSent = %d, want 0 within throttle window", sink.emailsSent)
	}
	if len(notifications.recorded) != 0 {
		t.Errorf("want no new recorded entry while throttled, got %v", notifications.recorded)
	}
}

// ---- NotifyRecovery ----

func TestNotifyRecovery_OrgFlagTrue_Dispatches(t *testing.T) {
	webhook := "https://hooks.example.com/recovery"
	orgs := &fakeOrgStore{org: &domain.Organization{ID: "org-1", NotifyOnRecovery: true, NotifyWebhookURL: &webhook, WebhookSecret: "s3cr3t"}}
	notifications := &fakeNotificationStore{}
	sink := &fakeSink{}
	n := notifier.New(notifications, orgs, sink, testLogger(), 5*time.Minute)

	monitor := &domain.Monitor{ID: "mon-1"}
	if err := n.NotifyRecovery(context.Background(), "org-1", "monitor", monitor.ID, notifier.MonitorOverrides(monitor), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sink.webhooksSent != 1 {
		t.Errorf("webhooksSent = %d, want 1", sink.webhooksSent)
	}
}

func TestNotifyRecovery_OrgFlagFalse_Skipped(t *testing.T) {
	orgs := &fakeOrgStore{org: &domain.Organization{ID: "org-1", NotifyOnRecovery: false}}
	notifications := &fakeNotificationStore{}
	sink := &fakeSink{}
	n := notifier.New(notifications, orgs, sink, testLogger(), 5*time.Minute)

	monitor := &domain.Monitor{ID: "mon-1"}
	if err := n.NotifyRecovery(context.Background(), "org-1", "monitor", monitor.ID, notifier.MonitorOverrides(monitor), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sink.webhooksSent != 0 || len(notifications.recorded) != 0 {
		t.Error("want no delivery when recovery notifications are disabled")
	}
}
