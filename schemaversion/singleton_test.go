package schemaversion

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/irgraph/graph"
	"github.com/r3e-network/irgraph/infrastructure/metrics"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	client := graph.NewClient(sqlx.NewDb(db, "postgres"), graph.WithMetrics(metrics.NewWithRegistry(nil)))
	return NewStore(client), mock
}

func TestCurrentReadsSingletonRow(t *testing.T) {
	store, mock := newTestStore(t)
	rows := sqlmock.NewRows([]string{"version", "locked_by", "locked_at"}).
		AddRow(int64(3), "", nil)
	mock.ExpectQuery(`SELECT version, locked_by, locked_at, last_migration, sprints_completed FROM schema_version`).WillReturnRows(rows)

	state, err := store.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, state.Version)
	assert.False(t, state.Locked())
}

func TestCurrentReportsHeldLock(t *testing.T) {
	store, mock := newTestStore(t)
	lockedAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"version", "locked_by", "locked_at"}).
		AddRow(int64(3), "migration-0004", lockedAt)
	mock.ExpectQuery(`SELECT version, locked_by, locked_at, last_migration, sprints_completed FROM schema_version`).WillReturnRows(rows)

	state, err := store.Current(context.Background())
	require.NoError(t, err)
	assert.True(t, state.Locked())
	assert.Equal(t, "migration-0004", state.LockedBy)
}

func TestAdvanceUpdatesVersionAndClearsLock(t *testing.T) {
	store, mock := newTestStore(t)
	mock.ExpectQuery(`UPDATE schema_version`).WillReturnRows(sqlmock.NewRows([]string{}))

	err := store.AdvanceWithMigration(context.Background(), 4, "0004_migrate_flows", "sprint-7")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
