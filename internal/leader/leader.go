// Package leader elects a single process, among any number of scheduler
// replicas, to run the materializer, watchdog, and monthly-reset job. The
// election primitive is a Postgres session-level advisory lock keyed to a
// well-known constant (§4.3): "the database is the source of truth" (§1),
// so no external coordination service is introduced.
package leader

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// lockKey is an arbitrary but fixed int64 — every process in the fleet
// contends for the same advisory lock.
const lockKey int64 = 0x5343_4845_44554C45 // "SCHEDULE" in hex-ish, just needs to be constant

// Elector holds a dedicated connection that owns the advisory lock for as
// long as it is checked out from the pool. Losing the connection (crash,
// network partition) releases the lock automatically — Postgres ties
// session-level advisory locks to the session lifetime.
type Elector struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	retry  time.Duration
}

func NewElector(pool *pgxpool.Pool, logger *slog.Logger, retry time.Duration) *Elector {
	return &Elector{pool: pool, logger: logger.With("component", "leader"), retry: retry}
}

// Run blocks until ctx is cancelled. While leader, onElected's context is
// valid; it is cancelled once the periodic liveness ping finds the lock's
// connection lost,
// and Run attempts reacquisition after retry (§7: "the scheduler leader
// reacquires the advisory lock on any loss and resumes").
func (e *Elector) Run(ctx context.Context, onElected func(leaderCtx context.Context)) {
	for {
		if ctx.Err() != nil {
			return
		}
		e.runOnce(ctx, onElected)
		select {
		case <-ctx.Done():
			return
		case <-time.After(e.retry):
		}
	}
}

func (e *Elector) runOnce(ctx context.Context, onElected func(leaderCtx context.Context)) {
	conn, err := e.pool.Acquire(ctx)
	if err != nil {
		if ctx.Err() == nil {
			e.logger.Warn("acquire connection for leader lock failed", "error", err)
		}
		return
	}
	defer conn.Release()

	var acquired bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", lockKey).Scan(&acquired); err != nil {
		e.logger.Warn("try advisory lock failed", "error", err)
		return
	}
	if !acquired {
		return
	}
	e.logger.Info("became leader")

	leaderCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		onElected(leaderCtx)
	}()

	// Hold the lock until the parent context is done or the connection to
	// Postgres itself fails (detected via a periodic liveness ping).
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			cancel()
			<-done
			e.unlock(conn)
			return
		case <-ticker.C:
			if err := conn.Ping(ctx); err != nil {
				e.logger.Warn("lost leader connection", "error", err)
				cancel()
				<-done
				return
			}
		}
	}
}

func (e *Elector) unlock(conn *pgxpool.Conn) {
	var released bool
	bg := context.Background()
	if err := conn.QueryRow(bg, "SELECT pg_advisory_unlock($1)", lockKey).Scan(&released); err != nil {
		e.logger.Warn("advisory unlock failed", "error", err)
	}
}
