package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	irerrors "github.com/r3e-network/irgraph/infrastructure/errors"
)

func TestValidateEntitiesRejectsAttributelessEntity(t *testing.T) {
	err := validateEntities([]Entity{{Name: "Widget"}})
	require.Error(t, err)
	assert.True(t, irerrors.Is(err, irerrors.CodeCardinality))
}

func TestValidateEntitiesAcceptsPopulatedEntities(t *testing.T) {
	err := validateEntities([]Entity{{Name: "Widget", Attributes: []Attribute{{Name: "id"}}}})
	assert.NoError(t, err)
}

func TestDomainRepositorySaveReplacesSubgraph(t *testing.T) {
	base, mock := newTestRepo(t)
	repo := NewDomainRepository(base)

	mock.ExpectBegin()
	expectNoRowFound(mock, `SELECT created_at FROM ir_nodes WHERE id = \$1`)
	expectWrite(mock, `INSERT INTO ir_nodes .*`)
	expectNoRowFound(mock, `SELECT to_id FROM ir_edges WHERE from_id = \$1 AND rel_type = \$2`)
	expectWrite(mock, `DELETE FROM ir_nodes WHERE id IN .*`)
	expectWrite(mock, `DELETE FROM ir_edges WHERE from_id = \$1 AND rel_type = \$2`)
	expectNoRowFound(mock, `SELECT created_at FROM ir_nodes WHERE id = \$1`)
	expectWrite(mock, `INSERT INTO ir_nodes .*`)
	expectNoRowFound(mock, `SELECT created_at FROM ir_edges .*`)
	expectWrite(mock, `INSERT INTO ir_edges .*`)
	expectWrite(mock, `DELETE FROM ir_nodes WHERE id IN .*`)
	expectWrite(mock, `DELETE FROM ir_edges WHERE from_id = \$1 AND rel_type = \$2`)
	expectNoRowFound(mock, `SELECT created_at FROM ir_nodes WHERE id = \$1`)
	expectWrite(mock, `INSERT INTO ir_nodes .*`)
	expectNoRowFound(mock, `SELECT created_at FROM ir_edges .*`)
	expectWrite(mock, `INSERT INTO ir_edges .*`)
	mock.ExpectCommit()

	model := DomainModelIR{
		Entities: []Entity{
			{
				Name:       "Widget",
				Attributes: []Attribute{{Name: "id", DataType: "uuid", IsPrimaryKey: true}},
			},
		},
	}
	err := repo.Save(testCtx(), "app-1", model)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
