package repository

import (
	"context"

	"github.com/ErlanBelekov/taskrelay/internal/domain"
)

type APIKeyStore interface {
	Create(ctx context.Context, k *domain.APIKey) (*domain.APIKey, error)
	GetByKeyID(ctx context.Context, keyID string) (*domain.APIKey, error)
	List(ctx context.Context, orgID string) ([]*domain.APIKey, error)
	// Delete removes the key and returns its public key_id so the caller can
	// invalidate the cache entry without a separate lookup.
	Delete(ctx context.Context, id, orgID string) (keyID string, err error)
	// TouchLastUsed is debounced by the caller (apikeycache), not here; the
	// store just performs the write.
	TouchLastUsed(ctx context.Context, id string) error
}
