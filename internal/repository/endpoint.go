package repository

import (
	"context"

	"github.com/ErlanBelekov/taskrelay/internal/domain"
)

type EndpointStore interface {
	Create(ctx context.Context, e *domain.Endpoint) (*domain.Endpoint, error)
	GetByID(ctx context.Context, id, orgID string) (*domain.Endpoint, error)
	GetBySlug(ctx context.Context, slug string) (*domain.Endpoint, error)
	List(ctx context.Context, orgID string) ([]*domain.Endpoint, error)
	Update(ctx context.Context, e *domain.Endpoint) (*domain.Endpoint, error)
	Delete(ctx context.Context, id, orgID string) error
}

type InboundEventStore interface {
	Create(ctx context.Context, ev *domain.InboundEvent) (*domain.InboundEvent, error)
	GetByID(ctx context.Context, id string) (*domain.InboundEvent, error)
	SetTaskIDs(ctx context.Context, id string, taskIDs []string) error
}
