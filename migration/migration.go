// Package migration implements the Migration Engine (spec.md §4.4): a
// code-registered, versioned sequence of graph transformations, applied
// under the Schema Version Singleton's lock in one of three atomicity
// modes (single transaction, checkpoint, shadow graph).
package migration

import (
	"context"

	"github.com/r3e-network/irgraph/graph"
)

// Mode is a migration's atomicity strategy.
type Mode string

const (
	// ModeTransaction wraps the whole migration in one graph.Client
	// transaction. Appropriate for small, fast migrations.
	ModeTransaction Mode = "transaction"
	// ModeCheckpoint batches the migration's work and records a
	// MigrationCheckpoint after each batch, so the writes of a run that
	// failed partway can be rolled back by their migration_run_id stamp.
	// The engine does not resume a run from its checkpoints. This is the
	// engine's default mode.
	ModeCheckpoint Mode = "checkpoint"
	// ModeShadow builds the migrated subgraph under _TEMP labels/rel
	// types and promotes it atomically. Opt-in, for migrations that
	// restructure a large fraction of the graph and cannot tolerate a
	// partially-migrated graph being visible mid-run.
	ModeShadow Mode = "shadow"
)

// ObjectCounts tallies how many graph objects a migration's Apply
// function created, updated, or deleted (spec.md §3's MigrationRun
// attributes, §8 scenario 3).
type ObjectCounts struct {
	Created int
	Updated int
	Deleted int
}

// Exec is the handle a Migration's Apply function uses to read and write
// the graph. It exists so migrations are written against a narrow
// interface instead of the full graph.Client, keeping engine-level
// concerns (retries, timeouts) out of migration code. Apply
// implementations increment Counts themselves as they write; the engine
// reads it back once Apply returns to populate Run.Objects{Created,
// Updated,Deleted}.
type Exec struct {
	Client *graph.Client
	Tx     *graph.Tx
	Counts ObjectCounts
}

// Execute runs stmt through whichever handle is active: inside a
// transaction-mode or checkpoint-mode batch, through Tx; otherwise
// directly through Client.
func (e *Exec) Execute(ctx context.Context, stmt string, params map[string]interface{}) ([]graph.Record, error) {
	if e.Tx != nil {
		return e.Tx.Execute(ctx, stmt, params)
	}
	return e.Client.Execute(ctx, stmt, params)
}

// Migration is a single code-registered schema transformation.
type Migration struct {
	ID   string
	// Name is the human-readable migration_name recorded on MigrationRun
	// (spec.md §3); ID is the stable identifier used for lookups,
	// dependency edges, and locking.
	Name string
	// Sprint names the sprint this migration belongs to (spec.md §3's
	// MigrationRun.sprint, §6's sprints_completed on the singleton).
	Sprint              string
	SchemaVersionBefore int
	SchemaVersionAfter  int
	DependsOn           []string
	PreferredMode       Mode
	BatchSize           int
	// Apply performs the transformation. For ModeCheckpoint, Apply is
	// expected to be structured as a sequence of idempotent batches
	// driven by CheckpointRunner (see checkpoint.go); for ModeTransaction and
	// ModeShadow, Apply runs once against the supplied Exec.
	Apply func(ctx context.Context, exec *Exec) error
}

// Registry holds the known migrations in registration order. Migrations
// are looked up by ID for dependency checks and iterated in order for
// a forward run.
type Registry struct {
	migrations []Migration
	byID       map[string]Migration
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]Migration)}
}

// Register adds a migration. Registration order is preserved for
// Pending/All.
func (r *Registry) Register(m Migration) {
	r.migrations = append(r.migrations, m)
	r.byID[m.ID] = m
}

// Get looks up a migration by ID.
func (r *Registry) Get(id string) (Migration, bool) {
	m, ok := r.byID[id]
	return m, ok
}

// All returns every registered migration in registration order.
func (r *Registry) All() []Migration {
	out := make([]Migration, len(r.migrations))
	copy(out, r.migrations)
	return out
}

// Pending returns migrations whose SchemaVersionBefore is >= the current
// version, in registration order.
func (r *Registry) Pending(currentVersion int) []Migration {
	var pending []Migration
	for _, m := range r.migrations {
		if m.SchemaVersionBefore >= currentVersion {
			pending = append(pending, m)
		}
	}
	return pending
}
