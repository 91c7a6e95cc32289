package repository

import (
	"context"
	"time"
)

// NotificationStore backs the notifier's throttle window (§4.6): "for a
// given (org_id, email_type) pair, at most one delivery per throttle_window".
type NotificationStore interface {
	CountRecentSent(ctx context.Context, orgID, emailType string, since time.Time) (int, error)
	RecordSent(ctx context.Context, orgID, emailType string, at time.Time) error
}
