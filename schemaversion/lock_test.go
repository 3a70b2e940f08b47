package schemaversion

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	irerrors "github.com/r3e-network/irgraph/infrastructure/errors"
)

func TestAcquireSucceedsWhenUnlocked(t *testing.T) {
	store, mock := newTestStore(t)
	mock.ExpectQuery(`SELECT version, locked_by, locked_at, last_migration, sprints_completed FROM schema_version`).
		WillReturnRows(sqlmock.NewRows([]string{"version", "locked_by", "locked_at"}).AddRow(int64(1), "", nil))
	mock.ExpectQuery(`(?s)UPDATE schema_version.*RETURNING locked_by`).
		WillReturnRows(sqlmock.NewRows([]string{"locked_by"}).AddRow("migration-0004"))

	lock := NewLock(store, DefaultStaleLockTimeout)
	err := lock.Acquire(context.Background(), "migration-0004")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireFailsWhenHeldAndFresh(t *testing.T) {
	store, mock := newTestStore(t)
	recentLock := time.Now().Add(-5 * time.Minute)
	mock.ExpectQuery(`SELECT version, locked_by, locked_at, last_migration, sprints_completed FROM schema_version`).
		WillReturnRows(sqlmock.NewRows([]string{"version", "locked_by", "locked_at"}).
			AddRow(int64(1), "migration-0003", recentLock))

	lock := NewLock(store, DefaultStaleLockTimeout)
	err := lock.Acquire(context.Background(), "migration-0004")
	require.Error(t, err)
	assert.True(t, irerrors.Is(err, irerrors.CodeLockBusy))
}

func TestAcquireClearsStaleLockThenSucceeds(t *testing.T) {
	store, mock := newTestStore(t)
	staleLock := time.Now().Add(-2 * time.Hour)

	mock.ExpectQuery(`SELECT version, locked_by, locked_at, last_migration, sprints_completed FROM schema_version`).
		WillReturnRows(sqlmock.NewRows([]string{"version", "locked_by", "locked_at"}).
			AddRow(int64(1), "migration-0002", staleLock))
	mock.ExpectQuery(`UPDATE schema_version\s+SET locked_by = NULL.*`).
		WillReturnRows(sqlmock.NewRows([]string{}))
	mock.ExpectQuery(`(?s)UPDATE schema_version.*RETURNING locked_by`).
		WillReturnRows(sqlmock.NewRows([]string{"locked_by"}).AddRow("migration-0004"))

	lock := NewLock(store, DefaultStaleLockTimeout)
	err := lock.Acquire(context.Background(), "migration-0004")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseClearsLock(t *testing.T) {
	store, mock := newTestStore(t)
	mock.ExpectQuery(`UPDATE schema_version\s+SET locked_by = NULL.*`).
		WillReturnRows(sqlmock.NewRows([]string{}))

	lock := NewLock(store, DefaultStaleLockTimeout)
	err := lock.Release(context.Background())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
