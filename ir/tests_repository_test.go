package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	irerrors "github.com/r3e-network/irgraph/infrastructure/errors"
)

func TestDetectSeedCycleFindsDirectCycle(t *testing.T) {
	err := detectSeedCycle([]SeedEntityIR{
		{EntityName: "Order", Dependencies: []string{"Customer"}},
		{EntityName: "Customer", Dependencies: []string{"Order"}},
	})
	require.Error(t, err)
	assert.True(t, irerrors.Is(err, irerrors.CodeSeedCycle))
}

func TestDetectSeedCycleAllowsDAG(t *testing.T) {
	err := detectSeedCycle([]SeedEntityIR{
		{EntityName: "Order", Dependencies: []string{"Customer"}},
		{EntityName: "Customer"},
	})
	assert.NoError(t, err)
}

func TestRecordExecutionAppendsWithoutDeleting(t *testing.T) {
	base, mock := newTestRepo(t)
	repo := NewTestsRepository(base)

	expectNoRowFound(mock, `SELECT created_at FROM ir_nodes WHERE id = \$1`)
	expectWrite(mock, `INSERT INTO ir_nodes .*`)
	expectNoRowFound(mock, `SELECT created_at FROM ir_edges .*`)
	expectWrite(mock, `INSERT INTO ir_edges .*`)

	err := repo.RecordExecution(testCtx(), "suite-1", TestExecutionIR{
		ExecutionID: "exec-1", ScenarioID: "scn-1", Status: "passed", DurationMS: 42,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTestsRepositorySaveReplacesSubgraph(t *testing.T) {
	base, mock := newTestRepo(t)
	repo := NewTestsRepository(base)

	mock.ExpectBegin()
	expectNoRowFound(mock, `SELECT created_at FROM ir_nodes WHERE id = \$1`) // root
	expectWrite(mock, `INSERT INTO ir_nodes .*`)

	// seed entities (none)
	expectWrite(mock, `DELETE FROM ir_nodes WHERE id IN .*`)
	expectWrite(mock, `DELETE FROM ir_edges WHERE from_id = \$1 AND rel_type = \$2`)

	// endpoint suites
	expectNoRowFound(mock, `SELECT to_id FROM ir_edges WHERE from_id = \$1 AND rel_type = \$2`)
	expectWrite(mock, `DELETE FROM ir_nodes WHERE id IN .*`)
	expectWrite(mock, `DELETE FROM ir_edges WHERE from_id = \$1 AND rel_type = \$2`)
	expectNoRowFound(mock, `SELECT created_at FROM ir_nodes WHERE id = \$1`)
	expectWrite(mock, `INSERT INTO ir_nodes .*`)
	expectNoRowFound(mock, `SELECT created_at FROM ir_edges .*`)
	expectWrite(mock, `INSERT INTO ir_edges .*`)

	// scenarios under the one endpoint suite (none)
	expectWrite(mock, `DELETE FROM ir_nodes WHERE id IN .*`)
	expectWrite(mock, `DELETE FROM ir_edges WHERE from_id = \$1 AND rel_type = \$2`)
	// VALIDATES_ENDPOINT
	expectNoRowFound(mock, `SELECT created_at FROM ir_edges .*`)
	expectWrite(mock, `INSERT INTO ir_edges .*`)

	// flow suites (none)
	expectNoRowFound(mock, `SELECT to_id FROM ir_edges WHERE from_id = \$1 AND rel_type = \$2`)
	expectWrite(mock, `DELETE FROM ir_nodes WHERE id IN .*`)
	expectWrite(mock, `DELETE FROM ir_edges WHERE from_id = \$1 AND rel_type = \$2`)
	mock.ExpectCommit()

	model := TestsModelIR{
		EndpointSuites: []EndpointTestSuite{
			{EndpointPath: "/widgets", HTTPMethod: "GET", OperationID: "listWidgets"},
		},
	}
	err := repo.Save(testCtx(), "app-1", model)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
