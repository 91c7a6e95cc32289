package repository

import (
	"context"

	"github.com/ErlanBelekov/taskrelay/internal/domain"
)

type QueueStore interface {
	List(ctx context.Context, orgID string) ([]*domain.Queue, error)
	SetPaused(ctx context.Context, orgID, name string, paused bool) error
	// EnsureExists creates the queue row on first use (lifecycle: implicit
	// creation on first task with that queue — §3).
	EnsureExists(ctx context.Context, orgID, name string) error
}
