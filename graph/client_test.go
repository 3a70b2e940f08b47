package graph

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/irgraph/infrastructure/metrics"
)

func newMockClient(t *testing.T) (*Client, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sqlxDB := sqlx.NewDb(db, "postgres")
	client := NewClient(sqlxDB,
		WithMetrics(metrics.NewWithRegistry(nil)),
		WithRetryBudget(0, time.Millisecond),
	)
	return client, mock
}

func TestExecuteReturnsRecords(t *testing.T) {
	client, mock := newMockClient(t)

	rows := sqlmock.NewRows([]string{"id", "label"}).
		AddRow("node-1", "Entity")
	mock.ExpectQuery(`SELECT id, label FROM ir_nodes WHERE id = :id`).
		WithArgs("node-1").
		WillReturnRows(rows)

	records, err := client.Execute(context.Background(), "SELECT id, label FROM ir_nodes WHERE id = :id", map[string]interface{}{"id": "node-1"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "node-1", records[0]["id"])
	assert.Equal(t, "Entity", records[0]["label"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionCommitsOnSuccess(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE ir_nodes SET .*`).WillReturnRows(sqlmock.NewRows([]string{}))
	mock.ExpectCommit()

	err := client.Transaction(context.Background(), func(ctx context.Context, tx *Tx) error {
		_, execErr := tx.Execute(ctx, "UPDATE ir_nodes SET updated_at = :now WHERE id = :id",
			map[string]interface{}{"now": time.Now(), "id": "node-1"})
		return execErr
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRollsBackOnError(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := client.Transaction(context.Background(), func(ctx context.Context, tx *Tx) error {
		return assertErr
	})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNestedTransactionRejected(t *testing.T) {
	client, mock := newMockClient(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	err := client.Transaction(context.Background(), func(ctx context.Context, tx *Tx) error {
		return client.Transaction(ctx, func(ctx context.Context, tx *Tx) error { return nil })
	})
	require.Error(t, err)
}

func TestBatchedExecuteChunks(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectExec(`INSERT INTO ir_nodes .*`).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`INSERT INTO ir_nodes .*`).WillReturnResult(sqlmock.NewResult(0, 1))

	params := []map[string]interface{}{
		{"id": "n1"}, {"id": "n2"}, {"id": "n3"},
	}
	err := client.BatchedExecute(context.Background(), "INSERT INTO ir_nodes (id) VALUES (:id)", params, 2)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

var assertErr = &staticError{"boom"}

type staticError struct{ msg string }

func (e *staticError) Error() string { return e.msg }
