package graph

import (
	"context"

	"github.com/jmoiron/sqlx"

	irerrors "github.com/r3e-network/irgraph/infrastructure/errors"
)

// txKey marks a context as already carrying an open transaction, so a
// second Transaction call on the same context is rejected rather than
// silently nesting (spec.md §4.1: "nested transactions are a engine
// error, not a savepoint").
type txKey struct{}

// Tx is a scoped transaction handle. Commit and Rollback are its only
// exit paths; a Tx must not outlive the call that opened it.
type Tx struct {
	tx     *sqlx.Tx
	client *Client
	done   bool
}

// Transaction opens a new Tx and passes it to fn. fn's returned error
// triggers a rollback; a nil error commits. Opening a Transaction from a
// context that already carries one returns a NestedTransaction error
// instead of a savepoint, matching the engine's single-level transaction
// model.
func (c *Client) Transaction(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	if ctx.Value(txKey{}) != nil {
		return irerrors.NestedTransaction()
	}

	sqlxTx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return irerrors.Fatal("begin_transaction", err)
	}

	tx := &Tx{tx: sqlxTx, client: c}
	txCtx := context.WithValue(ctx, txKey{}, tx)

	if err := fn(txCtx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Execute runs a statement within the transaction.
func (tx *Tx) Execute(ctx context.Context, stmt string, params map[string]interface{}) ([]Record, error) {
	return tx.client.executeOn(ctx, tx.tx, stmt, params)
}

// Commit finalizes the transaction. Calling Commit or Rollback more than
// once is a no-op.
func (tx *Tx) Commit() error {
	if tx.done {
		return nil
	}
	tx.done = true
	if err := tx.tx.Commit(); err != nil {
		return irerrors.Fatal("commit", err)
	}
	return nil
}

// Rollback aborts the transaction. Calling Commit or Rollback more than
// once is a no-op.
func (tx *Tx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	if err := tx.tx.Rollback(); err != nil {
		return irerrors.Fatal("rollback", err)
	}
	return nil
}
