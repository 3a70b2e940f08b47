package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfrastructureRepositorySaveReplacesSubgraph(t *testing.T) {
	base, mock := newTestRepo(t)
	repo := NewInfrastructureRepository(base)

	mock.ExpectBegin()
	expectNoRowFound(mock, `SELECT created_at FROM ir_nodes WHERE id = \$1`) // root
	expectWrite(mock, `INSERT INTO ir_nodes .*`)

	// databases (none)
	expectWrite(mock, `DELETE FROM ir_nodes WHERE id IN .*`)
	expectWrite(mock, `DELETE FROM ir_edges WHERE from_id = \$1 AND rel_type = \$2`)

	// services
	expectWrite(mock, `DELETE FROM ir_nodes WHERE id IN .*`)
	expectWrite(mock, `DELETE FROM ir_edges WHERE from_id = \$1 AND rel_type = \$2`)
	expectNoRowFound(mock, `SELECT created_at FROM ir_nodes WHERE id = \$1`)
	expectWrite(mock, `INSERT INTO ir_nodes .*`)
	expectNoRowFound(mock, `SELECT created_at FROM ir_edges .*`)
	expectWrite(mock, `INSERT INTO ir_edges .*`)

	// observability (none)
	expectWrite(mock, `DELETE FROM ir_nodes WHERE id IN .*`)
	expectWrite(mock, `DELETE FROM ir_edges WHERE from_id = \$1 AND rel_type = \$2`)

	// no DEPENDS_ON edges (single service, no dependencies)
	mock.ExpectCommit()

	model := InfrastructureModelIR{
		Services: []ContainerService{{Name: "api", Image: "app/api:latest", Ports: []int{8080}}},
	}
	err := repo.Save(testCtx(), "app-1", model)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
