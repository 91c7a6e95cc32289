// Package notifier implements the failure/recovery notification policy of
// §4.6: resource-level override resolution, throttling, and handoff to an
// abstract delivery Sink. Grounded on the teacher's internal/email package
// (Sender interface + LogSender/ResendSender split by ENV), generalized
// from "send a magic link" to "notify org + resource about task health".
package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/taskrelay/internal/domain"
	"github.com/ErlanBelekov/taskrelay/internal/repository"
)

const (
	emailTypeFailure  = "failure"
	emailTypeRecovery = "recovery"
)

// Sink is the abstract delivery channel §9 calls for: "replaced by an
// interface Sink{send_email; post_webhook} with a default implementation
// per build." The core only guarantees at-most-once decision, at-least-once
// delivery attempt (§4.6) — Sink implementations may retry internally.
type Sink interface {
	SendEmail(ctx context.Context, to, template string, data map[string]any) error
	PostWebhook(ctx context.Context, url string, body []byte, secret string) error
}

type Notifier struct {
	notifications repository.NotificationStore
	orgs          repository.OrganizationStore
	sink          Sink
	logger        *slog.Logger
	throttle      time.Duration
}

func New(notifications repository.NotificationStore, orgs repository.OrganizationStore, sink Sink, logger *slog.Logger, throttle time.Duration) *Notifier {
	return &Notifier{
		notifications: notifications,
		orgs:          orgs,
		sink:          sink,
		logger:        logger.With("component", "notifier"),
		throttle:      throttle,
	}
}

// resourceOverrides carries a resource's nullable notify overrides (§3) plus
// an optional webhook target; TaskOverrides, MonitorOverrides and the
// Endpoint*Overrides adapters build it from the domain types.
type resourceOverrides struct {
	NotifyOnFailure  *bool
	NotifyOnRecovery *bool
	WebhookURL       *string
}

func (n *Notifier) effectiveFlag(override *bool, orgFlag bool) bool {
	if override != nil {
		return *override
	}
	return orgFlag
}

// NotifyFailure fires when a resource's final attempt terminated in
// failed/timeout and the effective notify_on_failure flag is true (§4.6).
// resourceKind+resourceID identify the task, endpoint, or monitor in the
// delivered payload; the throttle window is keyed by (org, email type) only.
func (n *Notifier) NotifyFailure(ctx context.Context, orgID, resourceKind, resourceID string, override resourceOverrides, detail map[string]any) error {
	org, err := n.orgs.GetByID(ctx, orgID)
	if err != nil {
		return fmt.Errorf("notifier: load org: %w", err)
	}
	if !n.effectiveFlag(override.NotifyOnFailure, org.NotifyOnFailure) {
		return nil
	}
	return n.dispatch(ctx, org, emailTypeFailure, resourceKind, resourceID, override.WebhookURL, detail)
}

// NotifyRecovery fires on the first success after a failure streak (§4.6).
func (n *Notifier) NotifyRecovery(ctx context.Context, orgID, resourceKind, resourceID string, override resourceOverrides, detail map[string]any) error {
	org, err := n.orgs.GetByID(ctx, orgID)
	if err != nil {
		return fmt.Errorf("notifier: load org: %w", err)
	}
	if !n.effectiveFlag(override.NotifyOnRecovery, org.NotifyOnRecovery) {
		return nil
	}
	return n.dispatch(ctx, org, emailTypeRecovery, resourceKind, resourceID, override.WebhookURL, detail)
}

func (n *Notifier) dispatch(ctx context.Context, org *domain.Organization, emailType, resourceKind, resourceID string, webhookURL *string, detail map[string]any) error {
	sent, err := n.notifications.CountRecentSent(ctx, org.ID, emailType, time.Now().Add(-n.throttle))
	if err != nil {
		return fmt.Errorf("notifier: check throttle: %w", err)
	}
	if sent > 0 {
		n.logger.DebugContext(ctx, "notification throttled", "org_id", org.ID, "type", emailType)
		return nil
	}

	var deliveryErr error
	if org.NotifyEmail != nil {
		data := map[string]any{"resource_kind": resourceKind, "resource_id": resourceID}
		for k, v := range detail {
			data[k] = v
		}
		if err := n.sink.SendEmail(ctx, *org.NotifyEmail, emailType, data); err != nil {
			deliveryErr = fmt.Errorf("send email: %w", err)
			n.logger.WarnContext(ctx, "notifier email delivery failed", "org_id", org.ID, "error", err)
		}
	}

	target := org.NotifyWebhookURL
	if webhookURL != nil {
		target = webhookURL
	}
	if target != nil {
		body := []byte(fmt.Sprintf(`{"type":%q,"resource_kind":%q,"resource_id":%q}`, emailType, resourceKind, resourceID))
		if err := n.sink.PostWebhook(ctx, *target, body, org.WebhookSecret); err != nil {
			deliveryErr = fmt.Errorf("post webhook: %w", err)
			n.logger.WarnContext(ctx, "notifier webhook delivery failed", "org_id", org.ID, "error", err)
		}
	}

	// §4.6: "at-most-once decision, at-least-once delivery attempt" — the
	// decision (throttle record) is written regardless of delivery outcome.
	if err := n.notifications.RecordSent(ctx, org.ID, emailType, time.Now()); err != nil {
		return fmt.Errorf("notifier: record sent: %w", err)
	}
	return deliveryErr
}

// TaskOverrides adapts a task's nullable notify fields to resourceOverrides.
func TaskOverrides(t *domain.Task) resourceOverrides {
	return resourceOverrides{NotifyOnFailure: t.NotifyOnFailure, NotifyOnRecovery: t.NotifyOnRecovery}
}

// MonitorOverrides adapts a monitor's nullable notify fields.
func MonitorOverrides(m *domain.Monitor) resourceOverrides {
	return resourceOverrides{NotifyOnFailure: m.NotifyOnFailure, NotifyOnRecovery: m.NotifyOnRecovery}
}

// EndpointFailureOverrides adapts an endpoint's failure notify override,
// routing the webhook half to on_failure_url when set.
func EndpointFailureOverrides(e *domain.Endpoint) resourceOverrides {
	return resourceOverrides{NotifyOnFailure: e.NotifyOnFailure, NotifyOnRecovery: e.NotifyOnRecovery, WebhookURL: e.OnFailureURL}
}

// EndpointRecoveryOverrides is the recovery-side counterpart, routing to
// on_recovery_url.
func EndpointRecoveryOverrides(e *domain.Endpoint) resourceOverrides {
	return resourceOverrides{NotifyOnFailure: e.NotifyOnFailure, NotifyOnRecovery: e.NotifyOnRecovery, WebhookURL: e.OnRecoveryURL}
}
