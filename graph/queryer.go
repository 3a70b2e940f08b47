package graph

import "context"

// Queryer is the common read/write surface shared by Client and Tx (and,
// by extension, migration.Exec, which forwards to whichever is active).
// Code that should work identically whether or not it is inside a
// transaction — contract validation, health checks — should depend on
// Queryer rather than *Client directly.
type Queryer interface {
	Execute(ctx context.Context, stmt string, params map[string]interface{}) ([]Record, error)
}

var (
	_ Queryer = (*Client)(nil)
	_ Queryer = (*Tx)(nil)
)
