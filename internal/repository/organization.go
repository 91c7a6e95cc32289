package repository

import (
	"context"
	"time"

	"github.com/ErlanBelekov/taskrelay/internal/domain"
)

type OrganizationStore interface {
	Create(ctx context.Context, o *domain.Organization) (*domain.Organization, error)
	GetByID(ctx context.Context, id string) (*domain.Organization, error)
	UpdateNotifyConfig(ctx context.Context, id string, notifyOnFailure, notifyOnRecovery bool, email, webhookURL *string) error

	// BumpMonthlyCounter increments exec_count and returns the new value,
	// used by the quota counter (C11) on attempt=1 terminal executions.
	BumpMonthlyCounter(ctx context.Context, orgID string, delta int) (int, error)
	MarkWarningSent(ctx context.Context, orgID string) error
	MarkReachedSent(ctx context.Context, orgID string) error

	// ResetMonthlyCounters zeroes exec_count and clears the sent markers for
	// every org whose reset_at.month != now.month (§4.9).
	ResetMonthlyCounters(ctx context.Context, now time.Time) (int, error)
}

type MemberStore interface {
	Create(ctx context.Context, m *domain.Member) (*domain.Member, error)
	ListByOrg(ctx context.Context, orgID string) ([]*domain.Member, error)
}

type InviteStore interface {
	Create(ctx context.Context, inv *domain.Invite) (*domain.Invite, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Invite, error)
	MarkAccepted(ctx context.Context, id string) error
}
