package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ErlanBelekov/taskrelay/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OrganizationRepository struct {
	pool *pgxpool.Pool
}

func NewOrganizationRepository(pool *pgxpool.Pool) *OrganizationRepository {
	return &OrganizationRepository{pool: pool}
}

const organizationColumns = `
	id, tier, webhook_secret, exec_count, reset_at, warning_sent_at, reached_sent_at,
	notify_on_failure, notify_on_recovery, notify_email, notify_webhook_url,
	created_at, updated_at`

func (r *OrganizationRepository) Create(ctx context.Context, o *domain.Organization) (*domain.Organization, error) {
	query := `
		INSERT INTO organizations (tier, webhook_secret, reset_at, notify_on_failure, notify_on_recovery)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + organizationColumns
	row := r.pool.QueryRow(ctx, query, o.Tier, o.WebhookSecret, o.ResetAt, o.NotifyOnFailure, o.NotifyOnRecovery)
	return scanOrganization(row)
}

func (r *OrganizationRepository) GetByID(ctx context.Context, id string) (*domain.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE id = $1`
	return scanOrganization(r.pool.QueryRow(ctx, query, id))
}

func (r *OrganizationRepository) UpdateNotifyConfig(ctx context.Context, id string, notifyOnFailure, notifyOnRecovery bool, email, webhookURL *string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE organizations SET
			notify_on_failure = $2, notify_on_recovery = $3, notify_email = $4, notify_webhook_url = $5,
			updated_at = NOW()
		WHERE id = $1`, id, notifyOnFailure, notifyOnRecovery, email, webhookURL)
	if err != nil {
		return fmt.Errorf("update notify config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOrganizationNotFound
	}
	return nil
}

func (r *OrganizationRepository) BumpMonthlyCounter(ctx context.Context, orgID string, delta int) (int, error) {
	var newCount int
	err := r.pool.QueryRow(ctx, `
		UPDATE organizations SET exec_count = exec_count + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING exec_count`, orgID, delta).Scan(&newCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrOrganizationNotFound
		}
		return 0, fmt.Errorf("bump monthly counter: %w", err)
	}
	return newCount, nil
}

func (r *OrganizationRepository) MarkWarningSent(ctx context.Context, orgID string) error {
	_, err := r.pool.Exec(ctx, `UPDATE organizations SET warning_sent_at = NOW() WHERE id = $1`, orgID)
	if err != nil {
		return fmt.Errorf("mark warning sent: %w", err)
	}
	return nil
}

func (r *OrganizationRepository) MarkReachedSent(ctx context.Context, orgID string) error {
	_, err := r.pool.Exec(ctx, `UPDATE organizations SET reached_sent_at = NOW() WHERE id = $1`, orgID)
	if err != nil {
		return fmt.Errorf("mark reached sent: %w", err)
	}
	return nil
}

// ResetMonthlyCounters zeroes exec_count for every org that has rolled into
// a new calendar month since its reset_at, and advances reset_at to the
// first instant of the org's new month (§4.9).
func (r *OrganizationRepository) ResetMonthlyCounters(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE organizations SET
			exec_count = 0, warning_sent_at = NULL, reached_sent_at = NULL,
			reset_at = date_trunc('month', $1::timestamptz), updated_at = NOW()
		WHERE date_trunc('month', reset_at) < date_trunc('month', $1::timestamptz)`, now)
	if err != nil {
		return 0, fmt.Errorf("reset monthly counters: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanOrganization(row rowScanner) (*domain.Organization, error) {
	var o domain.Organization
	err := row.Scan(
		&o.ID, &o.Tier, &o.WebhookSecret, &o.ExecCount, &o.ResetAt, &o.WarningSentAt, &o.ReachedSentAt,
		&o.NotifyOnFailure, &o.NotifyOnRecovery, &o.NotifyEmail, &o.NotifyWebhookURL,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("scan organization: %w", err)
	}
	return &o, nil
}

type MemberRepository struct {
	pool *pgxpool.Pool
}

func NewMemberRepository(pool *pgxpool.Pool) *MemberRepository {
	return &MemberRepository{pool: pool}
}

func (r *MemberRepository) Create(ctx context.Context, m *domain.Member) (*domain.Member, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO members (organization_id, email) VALUES ($1, $2)
		RETURNING id, organization_id, email, created_at`, m.OrganizationID, m.Email)
	var out domain.Member
	if err := row.Scan(&out.ID, &out.OrganizationID, &out.Email, &out.CreatedAt); err != nil {
		return nil, fmt.Errorf("create member: %w", err)
	}
	return &out, nil
}

func (r *MemberRepository) ListByOrg(ctx context.Context, orgID string) ([]*domain.Member, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, organization_id, email, created_at FROM members
		WHERE organization_id = $1 ORDER BY created_at ASC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []*domain.Member
	for rows.Next() {
		var m domain.Member
		if err := rows.Scan(&m.ID, &m.OrganizationID, &m.Email, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, &m)
	}
	return members, rows.Err()
}

type InviteRepository struct {
	pool *pgxpool.Pool
}

func NewInviteRepository(pool *pgxpool.Pool) *InviteRepository {
	return &InviteRepository{pool: pool}
}

const inviteColumns = `id, organization_id, email, token_hash, expires_at, accepted_at, created_at`

func (r *InviteRepository) Create(ctx context.Context, inv *domain.Invite) (*domain.Invite, error) {
	query := `
		INSERT INTO invites (organization_id, email, token_hash, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + inviteColumns
	row := r.pool.QueryRow(ctx, query, inv.OrganizationID, inv.Email, inv.TokenHash, inv.ExpiresAt)
	return scanInvite(row)
}

func (r *InviteRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Invite, error) {
	query := `SELECT ` + inviteColumns + ` FROM invites WHERE token_hash = $1`
	return scanInvite(r.pool.QueryRow(ctx, query, tokenHash))
}

func (r *InviteRepository) MarkAccepted(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE invites SET accepted_at = NOW() WHERE id = $1 AND accepted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("mark invite accepted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInviteAlreadyAccepted
	}
	return nil
}

func scanInvite(row rowScanner) (*domain.Invite, error) {
	var inv domain.Invite
	err := row.Scan(&inv.ID, &inv.OrganizationID, &inv.Email, &inv.TokenHash, &inv.ExpiresAt, &inv.AcceptedAt, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrInviteNotFound
		}
		return nil, fmt.Errorf("scan invite: %w", err)
	}
	return &inv, nil
}
