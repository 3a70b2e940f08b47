// Package schemaversion implements the Schema Version Singleton (spec.md
// §4.3): a single coordination row that tracks the current schema
// version and doubles as a distributed mutex held by the Migration
// Engine for the duration of a migration run.
package schemaversion

import (
	"context"
	"strings"
	"time"

	"github.com/r3e-network/irgraph/graph"
	irerrors "github.com/r3e-network/irgraph/infrastructure/errors"
)

// State describes the current lock state of the singleton, plus the
// audit trail spec.md §3/§6 track on it: the last migration applied and
// the running list of sprints the schema has completed.
type State struct {
	Version          int
	LockedBy         string
	LockedAt         *time.Time
	LastMigration    string
	SprintsCompleted []string
}

// Locked reports whether the singleton is currently held.
func (s State) Locked() bool {
	return s.LockedBy != ""
}

// Store reads and mutates the schema_version singleton row.
type Store struct {
	client *graph.Client
}

// NewStore constructs a Store over an already-open graph.Client.
func NewStore(client *graph.Client) *Store {
	return &Store{client: client}
}

// Current returns the singleton's current state.
func (s *Store) Current(ctx context.Context) (State, error) {
	records, err := s.client.Execute(ctx, `
		SELECT version, locked_by, locked_at, last_migration, sprints_completed FROM schema_version WHERE singleton = true
	`, nil)
	if err != nil {
		return State{}, err
	}
	if len(records) == 0 {
		return State{}, irerrors.Fatal("schema_version_read", nil).WithDetails("reason", "singleton row missing")
	}
	return stateFromRecord(records[0]), nil
}

func stateFromRecord(r graph.Record) State {
	state := State{}
	if v, ok := r["version"].(int64); ok {
		state.Version = int(v)
	} else if v, ok := r["version"].(int32); ok {
		state.Version = int(v)
	}
	if v, ok := r["locked_by"].(string); ok {
		state.LockedBy = v
	}
	if v, ok := r["locked_at"].(time.Time); ok {
		state.LockedAt = &v
	}
	if v, ok := r["last_migration"].(string); ok {
		state.LastMigration = v
	}
	state.SprintsCompleted = parsePGTextArray(r["sprints_completed"])
	return state
}

// parsePGTextArray parses a Postgres text[] column as it comes back from
// MapScan: the driver hands back the wire literal ("{a,b,c}") as a string
// or []byte rather than a native slice, since this client never scans
// through pq.Array. Returns nil for NULL, empty, or unrecognized input.
func parsePGTextArray(v interface{}) []string {
	var literal string
	switch t := v.(type) {
	case string:
		literal = t
	case []byte:
		literal = string(t)
	default:
		return nil
	}
	literal = strings.TrimSpace(literal)
	literal = strings.TrimPrefix(literal, "{")
	literal = strings.TrimSuffix(literal, "}")
	if literal == "" {
		return nil
	}
	parts := strings.Split(literal, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.Trim(p, `"`))
	}
	return out
}

// AdvanceWithMigration bumps the singleton's version, releases the lock,
// and records the audit trail spec.md §4.3 requires: last_migration is
// set to migrationID, and sprint is appended to sprints_completed unless
// empty. It must be called while the caller holds the lock (see
// Lock.Acquire); it does not itself check ownership beyond clearing
// locked_by.
func (s *Store) AdvanceWithMigration(ctx context.Context, newVersion int, migrationID, sprint string) error {
	_, err := s.client.Execute(ctx, `
		UPDATE schema_version
		SET version = :version,
		    locked_by = NULL,
		    locked_at = NULL,
		    last_migration = :last_migration,
		    sprints_completed = CASE WHEN :sprint = '' THEN sprints_completed ELSE array_append(sprints_completed, :sprint) END,
		    updated_at = now()
		WHERE singleton = true
	`, map[string]interface{}{
		"version":        newVersion,
		"last_migration": migrationID,
		"sprint":         sprint,
	})
	return err
}
