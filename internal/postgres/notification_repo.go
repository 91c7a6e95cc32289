package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type NotificationRepository struct {
	pool *pgxpool.Pool
}

func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

func (r *NotificationRepository) CountRecentSent(ctx context.Context, orgID, emailType string, since time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications_sent
		WHERE organization_id = $1 AND email_type = $2 AND sent_at >= $3`,
		orgID, emailType, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count recent sent: %w", err)
	}
	return n, nil
}

func (r *NotificationRepository) RecordSent(ctx context.Context, orgID, emailType string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications_sent (organization_id, email_type, sent_at) VALUES ($1, $2, $3)`,
		orgID, emailType, at)
	if err != nil {
		return fmt.Errorf("record sent: %w", err)
	}
	return nil
}
