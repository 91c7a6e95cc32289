package repository

import (
	"context"

	"github.com/ErlanBelekov/taskrelay/internal/domain"
)

// IdempotencyStore backs the §4.8 idempotency middleware. GetOrCreate is the
// atomic primitive: it inserts a placeholder row and returns (nil, true) for
// the first caller, or the existing (possibly still in-flight) record and
// false for every subsequent caller racing the same key.
type IdempotencyStore interface {
	GetOrCreate(ctx context.Context, orgID, key string) (record *domain.IdempotencyRecord, created bool, err error)
	PutResult(ctx context.Context, orgID, key string, statusCode int, body []byte) error
	Get(ctx context.Context, orgID, key string) (*domain.IdempotencyRecord, error)
}
