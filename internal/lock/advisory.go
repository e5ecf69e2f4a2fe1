// Package lock serializes promotion runs against a target database using
// MySQL advisory locks.
package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrLockTimeout is returned when the lock is held by another instance.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// Timeout values for lock acquisition, in seconds.
const (
	// TimeoutImmediate returns without waiting when the lock is taken.
	TimeoutImmediate = 0
	// TimeoutShort fails fast on a concurrent run against the same target.
	TimeoutShort = 1
)

// AdvisoryLock wraps a MySQL GET_LOCK named lock. The lock is released by
// RELEASE_LOCK or, failing that, when the holding connection closes.
type AdvisoryLock struct {
	db       *sql.DB
	lockName string
	held     bool
}

// NewAdvisoryLock creates a lock with the given name. Nothing is acquired
// until Acquire is called.
func NewAdvisoryLock(db *sql.DB, lockName string) *AdvisoryLock {
	return &AdvisoryLock{db: db, lockName: lockName}
}

// NewPromotionLock creates the advisory lock that serializes promotions
// against one target database.
func NewPromotionLock(db *sql.DB, databaseName string) *AdvisoryLock {
	return NewAdvisoryLock(db, promotionLockName(databaseName))
}

// promotionLockName builds "dbpromote:target:<database>" with problematic
// characters replaced.
func promotionLockName(databaseName string) string {
	sanitized := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, databaseName)
	return fmt.Sprintf("dbpromote:target:%s", sanitized)
}

// Acquire attempts to take the lock, waiting up to timeoutSeconds.
// GET_LOCK returns 1 on success, 0 on timeout and NULL on engine error.
func (a *AdvisoryLock) Acquire(ctx context.Context, timeoutSeconds int) (bool, error) {
	if a.held {
		return true, nil
	}

	var result sql.NullInt64
	err := a.db.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", a.lockName, timeoutSeconds).Scan(&result)
	if err != nil {
		return false, fmt.Errorf("failed to execute GET_LOCK: %w", err)
	}
	if !result.Valid {
		return false, fmt.Errorf("GET_LOCK returned NULL for lock %q", a.lockName)
	}

	switch result.Int64 {
	case 1:
		a.held = true
		return true, nil
	case 0:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected GET_LOCK return value: %d", result.Int64)
	}
}

// Release gives the lock back. Returns false when this instance was not
// holding it.
func (a *AdvisoryLock) Release(ctx context.Context) (bool, error) {
	if !a.held {
		return false, nil
	}

	var result sql.NullInt64
	err := a.db.QueryRowContext(ctx, "SELECT RELEASE_LOCK(?)", a.lockName).Scan(&result)
	if err != nil {
		return false, fmt.Errorf("failed to execute RELEASE_LOCK: %w", err)
	}
	if !result.Valid {
		a.held = false
		return false, fmt.Errorf("RELEASE_LOCK returned NULL for lock %q", a.lockName)
	}

	a.held = false
	return result.Int64 == 1, nil
}

// IsHeld reports whether this instance holds the lock.
func (a *AdvisoryLock) IsHeld() bool {
	return a.held
}

// LockName returns the lock's name.
func (a *AdvisoryLock) LockName() string {
	return a.lockName
}

// WithLock runs fn while holding the lock and releases it afterwards, also
// on panic. Returns ErrLockTimeout when another instance holds the lock.
func (a *AdvisoryLock) WithLock(ctx context.Context, timeoutSeconds int, fn func() error) error {
	acquired, err := a.Acquire(ctx, timeoutSeconds)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return fmt.Errorf("%w: lock %q is held by another instance", ErrLockTimeout, a.lockName)
	}

	defer func() {
		// The surrounding context may already be cancelled; release on a
		// fresh one so cleanup still goes through.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = a.Release(releaseCtx)
	}()

	return fn()
}
