package migration

import (
	"context"
	"time"

	"github.com/r3e-network/irgraph/graph"
	irerrors "github.com/r3e-network/irgraph/infrastructure/errors"
	"github.com/r3e-network/irgraph/migration/batchlog"
)

// BatchFunc performs one checkpoint-mode batch of work and reports how
// many records it touched. Implementations should stamp every row they
// write with the owning migration_run_id (via WHERE/SET properties ||
// jsonb_build_object('migration_run_id', :run_id)) so Rollback can
// identify exactly what this run wrote.
type BatchFunc func(ctx context.Context, exec *Exec) (recordsProcessed int, err error)

// CheckpointRunner drives a migration's checkpoint-mode batches: each
// batch commits in its own transaction and records a MigrationCheckpoint
// row, so a crash mid-run leaves a resumable, auditable trail instead of
// an all-or-nothing transaction spanning the whole migration.
type CheckpointRunner struct {
	client      *graph.Client
	runID       string
	migrationID string
	logger      *batchlog.Logger
}

// NewCheckpointRunner constructs a CheckpointRunner for one migration run.
func NewCheckpointRunner(client *graph.Client, runID, migrationID string) *CheckpointRunner {
	return &CheckpointRunner{
		client:      client,
		runID:       runID,
		migrationID: migrationID,
		logger:      batchlog.New(),
	}
}

// RunBatch executes fn inside a transaction and records the outcome as a
// MigrationCheckpoint row in the same transaction, so the checkpoint and
// the work it describes are never observed out of sync.
func (r *CheckpointRunner) RunBatch(ctx context.Context, batchNumber int, fn BatchFunc) error {
	start := time.Now()
	var recordsProcessed int

	err := r.client.Transaction(ctx, func(ctx context.Context, tx *graph.Tx) error {
		exec := &Exec{Client: r.client, Tx: tx}
		n, fnErr := fn(ctx, exec)
		recordsProcessed = n
		status := "completed"
		if fnErr != nil {
			status = "failed"
		}
		if _, err := tx.Execute(ctx, `
			INSERT INTO migration_checkpoints (migration_run_id, batch_number, records_processed, status)
			VALUES (:run_id, :batch_number, :records_processed, :status)
		`, map[string]interface{}{
			"run_id":            r.runID,
			"batch_number":      batchNumber,
			"records_processed": recordsProcessed,
			"status":            status,
		}); err != nil {
			return err
		}
		return fnErr
	})

	r.logger.LogBatch(ctx, r.migrationID, batchNumber, recordsProcessed, time.Since(start), err)

	if err != nil {
		return irerrors.CheckpointFailed(r.migrationID, batchNumber, err)
	}
	return nil
}

// Rollback reverts every node and edge this run's batches stamped with
// migration_run_id, then clears the run's checkpoints. It is the
// compensating action for a checkpoint-mode migration that failed partway:
// since each batch already committed independently, rollback cannot rely
// on a database transaction spanning the whole run and instead deletes by
// stamp.
func (r *CheckpointRunner) Rollback(ctx context.Context) error {
	return r.client.Transaction(ctx, func(ctx context.Context, tx *graph.Tx) error {
		if _, err := tx.Execute(ctx, `
			DELETE FROM ir_edges WHERE properties->>'migration_run_id' = :run_id
		`, map[string]interface{}{"run_id": r.runID}); err != nil {
			return err
		}
		if _, err := tx.Execute(ctx, `
			DELETE FROM ir_nodes WHERE properties->>'migration_run_id' = :run_id
		`, map[string]interface{}{"run_id": r.runID}); err != nil {
			return err
		}
		_, err := tx.Execute(ctx, `
			DELETE FROM migration_checkpoints WHERE migration_run_id = :run_id
		`, map[string]interface{}{"run_id": r.runID})
		return err
	})
}
