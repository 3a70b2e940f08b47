package ir

import (
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	irerrors "github.com/r3e-network/irgraph/infrastructure/errors"
)

func newTestApplicationRepository(t *testing.T) (*ApplicationRepository, sqlmock.Sqlmock) {
	t.Helper()
	base, mock := newTestRepo(t)
	repo := NewApplicationRepository(
		base,
		NewDomainRepository(base),
		NewAPIRepository(base),
		NewBehaviorRepository(base),
		NewValidationRepository(base),
		NewInfrastructureRepository(base),
		NewTestsRepository(base),
	)
	return repo, mock
}

func TestApplicationRepositorySaveRejectsMissingAppID(t *testing.T) {
	repo, _ := newTestApplicationRepository(t)
	err := repo.Save(testCtx(), ApplicationIR{})
	require.Error(t, err)
	assert.True(t, irerrors.Is(err, irerrors.CodeMissingRequired))
}

func TestApplicationRepositorySaveLinksPopulatedSubmodel(t *testing.T) {
	repo, mock := newTestApplicationRepository(t)

	// ApplicationIR root upsert.
	expectNoRowFound(mock, `SELECT created_at FROM ir_nodes WHERE id = \$1`)
	expectWrite(mock, `INSERT INTO ir_nodes .*`)

	// DomainRepository.Save's own transaction: root, one entity, one attribute.
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

	// ApplicationRepository.linkSubmodel's HAS_DOMAIN_MODEL merge edge.
	expectNoRowFound(mock, `SELECT created_at FROM ir_edges .*`)
	expectWrite(mock, `INSERT INTO ir_edges .*`)

	app := ApplicationIR{
		AppID:   "app-1",
		Name:    "Storefront",
		Version: 1,
		Domain: &DomainModelIR{
			Entities: []Entity{
				{Name: "Widget", Attributes: []Attribute{{Name: "id", DataType: "uuid", IsPrimaryKey: true}}},
			},
		},
	}
	err := repo.Save(testCtx(), app)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
