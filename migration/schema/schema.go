// Package schema embeds the idempotent bootstrap SQL for the physical
// tables backing the property graph (ir_nodes, ir_edges, schema_version,
// migration_runs, migration_checkpoints).
package schema

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"
)

//go:embed *.sql
var files embed.FS

// Apply executes all embedded SQL files in lexical order. Every file is
// written with IF NOT EXISTS / ON CONFLICT DO NOTHING guards so Apply is
// safe to call on every process start, not just the first.
func Apply(ctx context.Context, db *sql.DB) error {
	names, err := sortedSQLFiles()
	if err != nil {
		return err
	}

	for _, name := range names {
		sqlBytes, err := files.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := db.ExecContext(ctx, string(sqlBytes)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}

func sortedSQLFiles() ([]string, error) {
	entries, err := files.ReadDir(".")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if name := entry.Name(); strings.HasSuffix(name, ".sql") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}
