package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AdvisoryLocker hands out session-level advisory locks keyed by name. Each held lock pins one
// pooled connection until released, so a crashed holder frees the lock when its session ends.
type AdvisoryLocker struct {
	pool *pgxpool.Pool
}

func NewAdvisoryLocker(pool *pgxpool.Pool) (*AdvisoryLocker, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &AdvisoryLocker{pool: pool}, nil
}

// TryLock attempts to take the lock without waiting. When acquired is false another session
// holds it. The returned release func is safe to call more than once.
func (l *AdvisoryLocker) TryLock(ctx context.Context, key string) (release func(), acquired bool, err error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock %q: %w", key, err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	released := false
	release = func() {
		if released {
			return
		}
		released = true

		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.Exec(unlockCtx, `SELECT pg_advisory_unlock(hashtext($1))`, key); err != nil {
			// Dropping the session is the only other way to free a session-level lock.
			_ = conn.Conn().Close(unlockCtx)
		}
		conn.Release()
	}
	return release, true, nil
}
