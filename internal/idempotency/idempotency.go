// Package idempotency implements the second half of §4.8: replaying a
// cached response for a repeated (organization, Idempotency-Key) pair and
// making concurrent duplicate callers wait for the first caller's result
// instead of double-running the handler. Postgres's unique constraint on
// (organization_id, key) — fronted by repository.IdempotencyStore.GetOrCreate
// — is the correctness primitive; this package only adds the bounded poll
// and the "first writer wins" bookkeeping on top of it.
package idempotency

import (
	"context"
	"time"

	"github.com/ErlanBelekov/taskrelay/internal/apperror"
	"github.com/ErlanBelekov/taskrelay/internal/domain"
	"github.com/ErlanBelekov/taskrelay/internal/repository"
)

// Result is what a caller either produces (first writer) or replays
// (subsequent callers, or the same caller retrying after a partial result).
type Result struct {
	StatusCode int
	Body       []byte
}

type Guard struct {
	store   repository.IdempotencyStore
	waitFor time.Duration
	poll    time.Duration
}

func New(store repository.IdempotencyStore, waitFor time.Duration) *Guard {
	return &Guard{store: store, waitFor: waitFor, poll: 50 * time.Millisecond}
}

// Execute runs handler exactly once for a given (orgID, key) pair and caches
// its terminal result. Every other concurrent or later caller with the same
// key gets the cached Result back verbatim (§8, invariant 8) without
// re-running handler. If the first caller's result isn't written within
// waitFor, Execute returns apperror.KindConflict per §4.8.
func (g *Guard) Execute(ctx context.Context, orgID, key string, handler func(ctx context.Context) (Result, error)) (Result, error) {
	rec, created, err := g.store.GetOrCreate(ctx, orgID, key)
	if err != nil {
		return Result{}, err
	}

	if created {
		res, err := handler(ctx)
		if err != nil {
			// Leave the placeholder row in place so a racing duplicate still
			// waits/conflicts rather than silently re-running a handler that
			// errored; the caller sees its own error directly.
			return Result{}, err
		}
		if putErr := g.store.PutResult(ctx, orgID, key, res.StatusCode, res.Body); putErr != nil {
			return Result{}, putErr
		}
		return res, nil
	}

	if rec != nil && rec.Done {
		return Result{StatusCode: rec.StatusCode, Body: rec.ResponseBody}, nil
	}
	return g.waitForResult(ctx, orgID, key)
}

// waitForResult polls the placeholder row left by the first caller until it
// is marked done or waitFor elapses (§4.8: "waits up to idempotency_wait_ms
// polling, then returns the stored response or fails with conflict").
func (g *Guard) waitForResult(ctx context.Context, orgID, key string) (Result, error) {
	deadline := time.Now().Add(g.waitFor)
	ticker := time.NewTicker(g.poll)
	defer ticker.Stop()

	for {
		rec, err := g.store.Get(ctx, orgID, key)
		if err == nil && rec.Done {
			return Result{StatusCode: rec.StatusCode, Body: rec.ResponseBody}, nil
		}
		if err != nil && err != domain.ErrIdempotencyConflict {
			return Result{}, err
		}
		if time.Now().After(deadline) {
			return Result{}, apperror.New(apperror.KindConflict, "idempotency key in progress, no result yet")
		}
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-ticker.C:
		}
	}
}
