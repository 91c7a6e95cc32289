package repository

import (
	"context"
	"time"

	"github.com/ErlanBelekov/taskrelay/internal/domain"
)

type MonitorStore interface {
	Create(ctx context.Context, m *domain.Monitor) (*domain.Monitor, error)
	GetByID(ctx context.Context, id, orgID string) (*domain.Monitor, error)
	GetByPingToken(ctx context.Context, token string) (*domain.Monitor, error)
	List(ctx context.Context, orgID string) ([]*domain.Monitor, error)
	Update(ctx context.Context, m *domain.Monitor) (*domain.Monitor, error)
	Delete(ctx context.Context, id, orgID string) error

	// ListOverdue returns enabled monitors in {new,up} whose
	// next_expected_at + grace has passed (§4.7).
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]*domain.Monitor, error)
	TransitionStatus(ctx context.Context, id string, to domain.MonitorStatus) error
	SetNextExpectedAt(ctx context.Context, id string, next time.Time) error

	RecordPing(ctx context.Context, monitorID string, now time.Time, nextExpectedAt time.Time, intervalSeconds int) (*domain.MonitorPing, error)
	ListPings(ctx context.Context, monitorID string, limit int) ([]*domain.MonitorPing, error)
}
