package lineage

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/irgraph/graph"
	irerrors "github.com/r3e-network/irgraph/infrastructure/errors"
	"github.com/r3e-network/irgraph/infrastructure/metrics"
	"github.com/r3e-network/irgraph/ir"
	"github.com/r3e-network/irgraph/temporal"
)

func newTestTracker(t *testing.T) (*Tracker, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	client := graph.NewClient(sqlx.NewDb(db, "postgres"),
		graph.WithMetrics(metrics.NewWithRegistry(nil)),
		graph.WithRetryBudget(0, time.Millisecond),
	)
	clock := temporal.NewWithClock(func() time.Time { return time.Unix(0, 0).UTC() })
	base := ir.NewBaseRepository(client, clock)
	return NewTracker(base), mock
}

func testCtx() context.Context {
	return temporal.WithActor(context.Background(), temporal.ActorPipeline)
}

func expectNoRowFound(mock sqlmock.Sqlmock, pattern string) {
	mock.ExpectQuery(pattern).WillReturnRows(sqlmock.NewRows([]string{}))
}

func TestLinkSpecToIRRejectsMissingHash(t *testing.T) {
	tr, _ := newTestTracker(t)
	err := tr.LinkSpecToIR(testCtx(), "", "app-1")
	require.Error(t, err)
	assert.True(t, irerrors.Is(err, irerrors.CodeMissingRequired))
}

func TestLinkSpecToIRMergesNodeAndEdge(t *testing.T) {
	tr, mock := newTestTracker(t)

	expectNoRowFound(mock, `SELECT created_at FROM ir_nodes WHERE id = \$1`)
	mock.ExpectQuery(`INSERT INTO ir_nodes .*`).WillReturnRows(sqlmock.NewRows([]string{}))
	expectNoRowFound(mock, `SELECT created_at FROM ir_edges .*`)
	mock.ExpectQuery(`INSERT INTO ir_edges .*`).WillReturnRows(sqlmock.NewRows([]string{}))

	err := tr.LinkSpecToIR(testCtx(), "sha256:abc", "app-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLinkGenerationMergesFileEdgeAndPatterns(t *testing.T) {
	tr, mock := newTestTracker(t)

	// GeneratedFile node upsert.
	expectNoRowFound(mock, `SELECT created_at FROM ir_nodes WHERE id = \$1`)
	mock.ExpectQuery(`INSERT INTO ir_nodes .*`).WillReturnRows(sqlmock.NewRows([]string{}))
	// GENERATES edge.
	expectNoRowFound(mock, `SELECT created_at FROM ir_edges .*`)
	mock.ExpectQuery(`INSERT INTO ir_edges .*`).WillReturnRows(sqlmock.NewRows([]string{}))
	// Two USED_PATTERN edges.
	expectNoRowFound(mock, `SELECT created_at FROM ir_edges .*`)
	mock.ExpectQuery(`INSERT INTO ir_edges .*`).WillReturnRows(sqlmock.NewRows([]string{}))
	expectNoRowFound(mock, `SELECT created_at FROM ir_edges .*`)
	mock.ExpectQuery(`INSERT INTO ir_edges .*`).WillReturnRows(sqlmock.NewRows([]string{}))

	err := tr.LinkGeneration(testCtx(), "app-1", "src/widgets.go", "sha256:def", []string{"pattern-crud", "pattern-repo"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLinkGenerationRejectsMissingContentHash(t *testing.T) {
	tr, _ := newTestTracker(t)
	err := tr.LinkGeneration(testCtx(), "app-1", "src/widgets.go", "", nil)
	require.Error(t, err)
	assert.True(t, irerrors.Is(err, irerrors.CodeMissingRequired))
}

func TestLinkErrorWithoutPatternSkipsEdge(t *testing.T) {
	tr, mock := newTestTracker(t)

	expectNoRowFound(mock, `SELECT created_at FROM ir_nodes WHERE id = \$1`)
	mock.ExpectQuery(`INSERT INTO ir_nodes .*`).WillReturnRows(sqlmock.NewRows([]string{}))

	err := tr.LinkError(testCtx(), "src/widgets.go", "compile_error", "undefined symbol", "")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLinkErrorWithPatternMergesEdge(t *testing.T) {
	tr, mock := newTestTracker(t)

	expectNoRowFound(mock, `SELECT created_at FROM ir_nodes WHERE id = \$1`)
	mock.ExpectQuery(`INSERT INTO ir_nodes .*`).WillReturnRows(sqlmock.NewRows([]string{}))
	expectNoRowFound(mock, `SELECT created_at FROM ir_edges .*`)
	mock.ExpectQuery(`INSERT INTO ir_edges .*`).WillReturnRows(sqlmock.NewRows([]string{}))

	err := tr.LinkError(testCtx(), "src/widgets.go", "compile_error", "undefined symbol", "pattern-crud")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
