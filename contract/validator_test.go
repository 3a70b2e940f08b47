package contract

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
)

func newMockClient(t *testing.T) (*graph.Client, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	client := graph.NewClient(sqlx.NewDb(db, "postgres"),
		graph.WithMetrics(metrics.NewWithRegistry(nil)),
		graph.WithRetryBudget(0, time.Millisecond),
	)
	return client, mock
}

func testPhase() *Phase {
	upper := 1000
	return &Phase{
		SchemaVersion:  1,
		RequiredLabels: []string{"Entity", "Attribute"},
		Labels: []LabelContract{
			{Label: "Entity", RequiredProperties: []string{"name"}},
			{Label: "Attribute", RequiredProperties: []string{"name", "data_type"}},
		},
		Relationships: []RelationshipContract{
			{RelType: "HAS_ATTRIBUTE", FromLabel: "Entity", Cardinality: &CardinalityBound{Lower: 1, Upper: &upper}},
		},
	}
}

func TestValidatorPassesOnHealthyGraph(t *testing.T) {
	client, mock := newMockClient(t)
	v := NewValidator(testPhase())

	mock.ExpectQuery(`SELECT DISTINCT label FROM ir_nodes`).
		WillReturnRows(sqlmock.NewRows([]string{"label"}).AddRow("Entity").AddRow("Attribute"))
	mock.ExpectQuery(`SELECT id, properties FROM ir_nodes WHERE label = \$1`).
		WithArgs("Entity").
		WillReturnRows(sqlmock.NewRows([]string{"id", "properties"}).
			AddRow("entity-1", []byte(`{"name":"Product"}`)))
	mock.ExpectQuery(`SELECT id, properties FROM ir_nodes WHERE label = \$1`).
		WithArgs("Attribute").
		WillReturnRows(sqlmock.NewRows([]string{"id", "properties"}).
			AddRow("attr-1", []byte(`{"name":"sku","data_type":"text"}`)))
	mock.ExpectQuery(`SELECT n.id AS from_id, COUNT\(e.to_id\) AS child_count`).
		WillReturnRows(sqlmock.NewRows([]string{"from_id", "child_count"}).AddRow("entity-1", int64(1)))

	report, err := v.Run(context.Background(), client)
	require.NoError(t, err)
	assert.True(t, report.Passed())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestValidatorReportsCardinalityViolation(t *testing.T) {
	client, mock := newMockClient(t)
	v := NewValidator(testPhase())

	mock.ExpectQuery(`SELECT DISTINCT label FROM ir_nodes`).
		WillReturnRows(sqlmock.NewRows([]string{"label"}).AddRow("Entity").AddRow("Attribute"))
	mock.ExpectQuery(`SELECT id, properties FROM ir_nodes WHERE label = \$1`).
		WithArgs("Entity").
		WillReturnRows(sqlmock.NewRows([]string{"id", "properties"}).
			AddRow("entity-1", []byte(`{"name":"Product"}`)))
	mock.ExpectQuery(`SELECT id, properties FROM ir_nodes WHERE label = \$1`).
		WithArgs("Attribute").
		WillReturnRows(sqlmock.NewRows([]string{"id", "properties"}))
	mock.ExpectQuery(`SELECT n.id AS from_id, COUNT\(e.to_id\) AS child_count`).
		WillReturnRows(sqlmock.NewRows([]string{"from_id", "child_count"}).AddRow("entity-1", int64(0)))

	report, err := v.Run(context.Background(), client)
	require.NoError(t, err)
	require.False(t, report.Passed())
	require.Len(t, report.Failures, 1)
	assert.Equal(t, CategoryCardinalityViolation, report.Failures[0].Category)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestValidateReturnsContractAssertionError(t *testing.T) {
	client, mock := newMockClient(t)
	v := NewValidator(testPhase())

	mock.ExpectQuery(`SELECT DISTINCT label FROM ir_nodes`).
		WillReturnRows(sqlmock.NewRows([]string{"label"}))
	mock.ExpectQuery(`SELECT id, properties FROM ir_nodes WHERE label = \$1`).
		WithArgs("Entity").
		WillReturnRows(sqlmock.NewRows([]string{"id", "properties"}))
	mock.ExpectQuery(`SELECT id, properties FROM ir_nodes WHERE label = \$1`).
		WithArgs("Attribute").
		WillReturnRows(sqlmock.NewRows([]string{"id", "properties"}))
	mock.ExpectQuery(`SELECT n.id AS from_id, COUNT\(e.to_id\) AS child_count`).
		WillReturnRows(sqlmock.NewRows([]string{"from_id", "child_count"}))

	err := v.Validate(context.Background(), client)
	require.Error(t, err)
	assert.True(t, irerrors.Is(err, irerrors.CodeContractAssertion))
}
