package ir

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/irgraph/graph"
	"github.com/r3e-network/irgraph/infrastructure/metrics"
	"github.com/r3e-network/irgraph/temporal"
)

func newTestRepo(t *testing.T) (*BaseRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	client := graph.NewClient(sqlx.NewDb(db, "postgres"),
		graph.WithMetrics(metrics.NewWithRegistry(nil)),
		graph.WithRetryBudget(0, time.Millisecond),
	)
	clock := temporal.NewWithClock(func() time.Time { return time.Unix(0, 0).UTC() })
	return NewBaseRepository(client, clock), mock
}

func testCtx() context.Context {
	return temporal.WithActor(context.Background(), temporal.ActorPipeline)
}

// expectNoRowFound mocks a SELECT created_at lookup that finds nothing,
// i.e. every upsert in these tests is treated as a fresh create.
func expectNoRowFound(mock sqlmock.Sqlmock, pattern string) {
	mock.ExpectQuery(pattern).WillReturnRows(sqlmock.NewRows([]string{}))
}

func expectWrite(mock sqlmock.Sqlmock, pattern string) {
	mock.ExpectQuery(pattern).WillReturnRows(sqlmock.NewRows([]string{}))
}
