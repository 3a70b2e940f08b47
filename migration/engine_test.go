package migration

import (
	"context"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/irgraph/graph"
	irerrors "github.com/r3e-network/irgraph/infrastructure/errors"
	"github.com/r3e-network/irgraph/infrastructure/metrics"
	"github.com/r3e-network/irgraph/schemaversion"
)

type stubValidator struct {
	err error
}

func (s *stubValidator) Validate(ctx context.Context, q graph.Queryer) error {
	return s.err
}

func newTestEngine(t *testing.T, validator Validator) (*Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	client := graph.NewClient(sqlx.NewDb(db, "postgres"), graph.WithMetrics(metrics.NewWithRegistry(nil)))
	store := schemaversion.NewStore(client)
	lock := schemaversion.NewLock(store, schemaversion.DefaultStaleLockTimeout)

	registry := NewRegistry()
	applyCalls := 0
	registry.Register(Migration{
		ID:                  "0004_migrate_flows",
		SchemaVersionBefore: 3,
		SchemaVersionAfter:  4,
		PreferredMode:       ModeCheckpoint,
		Apply: func(ctx context.Context, exec *Exec) error {
			applyCalls++
			_, err := exec.Execute(ctx, `
				UPDATE ir_nodes SET properties = properties || jsonb_build_object('migration_run_id', :run_id)
				WHERE label = 'Flow'
			`, map[string]interface{}{"run_id": "whatever"})
			return err
		},
	})

	counter := 0
	engine := NewEngine(client, registry, store, lock, validator, func() string {
		counter++
		return "run-1"
	})
	return engine, mock
}

func expectVersionRead(mock sqlmock.Sqlmock, version int) {
	mock.ExpectQuery(`SELECT version, locked_by, locked_at, last_migration, sprints_completed FROM schema_version`).
		WillReturnRows(sqlmock.NewRows([]string{"version", "locked_by", "locked_at"}).AddRow(int64(version), "", nil))
}

func expectLockAcquire(mock sqlmock.Sqlmock, version int, holder string) {
	expectVersionRead(mock, version)
	mock.ExpectQuery(`(?s)UPDATE schema_version.*RETURNING locked_by`).
		WillReturnRows(sqlmock.NewRows([]string{"locked_by"}).AddRow(holder))
}

func expectLockRelease(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(`UPDATE schema_version\s+SET locked_by = NULL.*`).
		WillReturnRows(sqlmock.NewRows([]string{}))
}

func TestRunSucceedsAndAdvancesVersion(t *testing.T) {
	engine, mock := newTestEngine(t, &stubValidator{})

	expectVersionRead(mock, 3) // preflight
	expectLockAcquire(mock, 3, "0004_migrate_flows")
	mock.ExpectQuery(`INSERT INTO migration_runs`).WillReturnRows(sqlmock.NewRows([]string{}))
	mock.ExpectQuery(`UPDATE ir_nodes SET properties`).WillReturnRows(sqlmock.NewRows([]string{}))
	mock.ExpectQuery(`UPDATE schema_version\s+SET version = \$1`).WillReturnRows(sqlmock.NewRows([]string{}))
	mock.ExpectQuery(`UPDATE migration_runs`).WillReturnRows(sqlmock.NewRows([]string{}))
	expectLockRelease(mock)

	run, err := engine.Run(context.Background(), "0004_migrate_flows")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRejectsVersionMismatch(t *testing.T) {
	engine, mock := newTestEngine(t, &stubValidator{})
	expectVersionRead(mock, 9)

	_, err := engine.Run(context.Background(), "0004_migrate_flows")
	require.Error(t, err)
	assert.True(t, irerrors.Is(err, irerrors.CodeVersionMismatch))
}

func TestRunRollsBackOnContractFailure(t *testing.T) {
	engine, mock := newTestEngine(t, &stubValidator{err: errors.New("missing required property")})

	expectVersionRead(mock, 3)
	expectLockAcquire(mock, 3, "0004_migrate_flows")
	mock.ExpectQuery(`INSERT INTO migration_runs`).WillReturnRows(sqlmock.NewRows([]string{}))
	mock.ExpectQuery(`UPDATE ir_nodes SET properties`).WillReturnRows(sqlmock.NewRows([]string{}))

	// CheckpointRunner.Rollback
	mock.ExpectBegin()
	mock.ExpectQuery(`DELETE FROM ir_edges WHERE properties`).WillReturnRows(sqlmock.NewRows([]string{}))
	mock.ExpectQuery(`DELETE FROM ir_nodes WHERE properties`).WillReturnRows(sqlmock.NewRows([]string{}))
	mock.ExpectQuery(`DELETE FROM migration_checkpoints`).WillReturnRows(sqlmock.NewRows([]string{}))
	mock.ExpectCommit()

	mock.ExpectQuery(`UPDATE migration_runs`).WillReturnRows(sqlmock.NewRows([]string{}))
	expectLockRelease(mock)

	run, err := engine.Run(context.Background(), "0004_migrate_flows")
	require.Error(t, err)
	assert.True(t, irerrors.Is(err, irerrors.CodeContractAssertion))
	assert.Equal(t, StatusRolledBack, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRejectsUnmetDependency(t *testing.T) {
	engine, mock := newTestEngine(t, &stubValidator{})
	engine.registry.Register(Migration{
		ID:                  "0005_depends",
		SchemaVersionBefore: 3,
		SchemaVersionAfter:  4,
		DependsOn:           []string{"0099_never_ran"},
		Apply:               func(ctx context.Context, exec *Exec) error { return nil },
	})

	expectVersionRead(mock, 3)
	mock.ExpectQuery(`SELECT 1 FROM migration_runs`).WillReturnRows(sqlmock.NewRows([]string{}))

	_, err := engine.Run(context.Background(), "0005_depends")
	require.Error(t, err)
	assert.True(t, irerrors.Is(err, irerrors.CodeUnmetDependency))
}
