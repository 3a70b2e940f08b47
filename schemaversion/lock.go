package schemaversion

import (
	"context"
	"time"

	irerrors "github.com/r3e-network/irgraph/infrastructure/errors"
	"github.com/r3e-network/irgraph/infrastructure/logging"
)

// DefaultStaleLockTimeout matches MIGRATION_STALE_LOCK_MINUTES' default of
// 30 minutes (spec.md §6).
const DefaultStaleLockTimeout = 30 * time.Minute

// Lock coordinates exclusive access to the schema version singleton
// across concurrent migration attempts (spec.md §5: only one migration
// may run at a time).
type Lock struct {
	store        *Store
	staleTimeout time.Duration
	now          func() time.Time
	logger       *logging.Logger
}

// NewLock constructs a Lock over store with the given stale-lock timeout.
func NewLock(store *Store, staleTimeout time.Duration) *Lock {
	return &Lock{
		store:        store,
		staleTimeout: staleTimeout,
		now:          time.Now,
		logger:       logging.Default(),
	}
}

// Acquire attempts a conditional-update lock acquisition keyed on
// holder. It clears a stale lock (older than staleTimeout) before
// retrying once, emitting a StaleLockCleared log event, then returns
// LockBusy if the singleton is still held by someone else.
func (l *Lock) Acquire(ctx context.Context, holder string) error {
	state, err := l.store.Current(ctx)
	if err != nil {
		return err
	}

	if state.Locked() {
		if state.LockedAt != nil && l.now().Sub(*state.LockedAt) > l.staleTimeout {
			l.logger.WithContext(ctx).WithFields(map[string]interface{}{
				"event":        "StaleLockCleared",
				"previous_holder": state.LockedBy,
				"locked_at":    state.LockedAt,
			}).Warn("clearing stale schema version lock")
			if err := l.forceClear(ctx); err != nil {
				return err
			}
		} else {
			var lockedAt string
			if state.LockedAt != nil {
				lockedAt = state.LockedAt.Format(time.RFC3339)
			}
			return irerrors.LockBusy(state.LockedBy, lockedAt)
		}
	}

	acquired, err := l.tryAcquire(ctx, holder)
	if err != nil {
		return err
	}
	if !acquired {
		state, stateErr := l.store.Current(ctx)
		if stateErr != nil {
			return stateErr
		}
		var lockedAt string
		if state.LockedAt != nil {
			lockedAt = state.LockedAt.Format(time.RFC3339)
		}
		return irerrors.LockBusy(state.LockedBy, lockedAt)
	}
	return nil
}

// ClearIfStale clears the lock if it is held and has exceeded staleTimeout,
// reporting whether it did so. Unlike Acquire, it never attempts to take
// the lock for a new holder — it is meant for the Health Monitor's
// periodic sweep (spec.md §4.7), not for migration startup.
func (l *Lock) ClearIfStale(ctx context.Context) (bool, error) {
	state, err := l.store.Current(ctx)
	if err != nil {
		return false, err
	}
	if !state.Locked() || state.LockedAt == nil || l.now().Sub(*state.LockedAt) <= l.staleTimeout {
		return false, nil
	}

	l.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"event":           "StaleLockCleared",
		"previous_holder": state.LockedBy,
		"locked_at":       state.LockedAt,
	}).Warn("clearing stale schema version lock")
	if err := l.forceClear(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (l *Lock) tryAcquire(ctx context.Context, holder string) (bool, error) {
	records, err := l.store.client.Execute(ctx, `
		UPDATE schema_version
		SET locked_by = :holder, locked_at = now(), updated_at = now()
		WHERE singleton = true AND locked_by IS NULL
		RETURNING locked_by
	`, map[string]interface{}{"holder": holder})
	if err != nil {
		return false, err
	}
	return len(records) == 1, nil
}

func (l *Lock) forceClear(ctx context.Context) error {
	_, err := l.store.client.Execute(ctx, `
		UPDATE schema_version
		SET locked_by = NULL, locked_at = NULL, updated_at = now()
		WHERE singleton = true
	`, nil)
	return err
}

// Release clears the lock unconditionally. Callers must only release a
// lock they are confident they hold (the Migration Engine releases from
// the same goroutine that acquired it).
func (l *Lock) Release(ctx context.Context) error {
	return l.forceClear(ctx)
}
