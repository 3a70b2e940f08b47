package migration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/r3e-network/irgraph/graph"
	irerrors "github.com/r3e-network/irgraph/infrastructure/errors"
	"github.com/r3e-network/irgraph/infrastructure/logging"
	"github.com/r3e-network/irgraph/infrastructure/metrics"
	"github.com/r3e-network/irgraph/schemaversion"
)

// Validator runs the Graph Shape Contract Validator against a Queryer
// (either the live client or an in-flight transaction/Exec), returning a
// non-nil error if any contract assertion fails. Defined locally to
// avoid migration depending on package contract; contract.Phase
// implements this interface.
type Validator interface {
	Validate(ctx context.Context, q graph.Queryer) error
}

// Run records the outcome of one migration attempt.
type Run struct {
	ID                  string
	MigrationID         string
	MigrationName       string
	Sprint              string
	SchemaVersionBefore int
	SchemaVersionAfter  int
	Mode                Mode
	Status              string
	StartedAt           time.Time
	FinishedAt          *time.Time
	DurationSeconds     float64
	ObjectsCreated      int
	ObjectsUpdated      int
	ObjectsDeleted      int
	Affected            []string
	ErrorMessage        string
}

// applyCounts copies an Exec's accumulated object counts onto run, once
// its migration's Apply function has returned.
func applyCounts(run *Run, c ObjectCounts) {
	run.ObjectsCreated = c.Created
	run.ObjectsUpdated = c.Updated
	run.ObjectsDeleted = c.Deleted
}

const (
	StatusRunning    = "running"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusRolledBack = "rolled_back"
	// StatusDryRun marks a run that validated but never committed its
	// writes (spec.md §6: run_migration(..., dry_run=true)).
	StatusDryRun = "dry_run"
)

// errDryRunRollback forces Client.Transaction to roll back a successful
// dry run; it is never returned to a caller of RunWithOptions.
var errDryRunRollback = errors.New("migration: dry run rollback")

// RunOptions controls a single Run/RunWithOptions invocation (spec.md
// §6: run_migration(migration_id, *, mode, dry_run)).
type RunOptions struct {
	// ForceMode overrides the migration's PreferredMode when non-empty.
	ForceMode Mode
	// DryRun runs the migration's Apply and post-migration validation
	// inside a transaction that is always rolled back, regardless of
	// outcome. No IR data is written; only the MigrationRun bookkeeping
	// row records the attempt, with Status == StatusDryRun on success.
	DryRun bool
}

// Engine orchestrates migration runs: version/dependency preflight,
// exclusive lock acquisition, mode dispatch, post-migration contract
// validation, and run/checkpoint bookkeeping.
type Engine struct {
	client           *graph.Client
	registry         *Registry
	store            *schemaversion.Store
	lock             *schemaversion.Lock
	validator        Validator
	metrics          *metrics.Metrics
	logger           *logging.Logger
	defaultBatchSize int
	newRunID         func() string
}

// NewEngine constructs an Engine. newRunID generates unique Run IDs (the
// caller typically passes a uuid.New().String()-backed closure).
func NewEngine(client *graph.Client, registry *Registry, store *schemaversion.Store, lock *schemaversion.Lock, validator Validator, newRunID func() string) *Engine {
	return &Engine{
		client:           client,
		registry:         registry,
		store:            store,
		lock:             lock,
		validator:        validator,
		metrics:          metrics.Global(),
		logger:           logging.Default(),
		defaultBatchSize: 100,
		newRunID:         newRunID,
	}
}

// Run executes the named migration under its preferred atomicity mode.
func (e *Engine) Run(ctx context.Context, migrationID string) (*Run, error) {
	return e.RunWithOptions(ctx, migrationID, RunOptions{})
}

// RunWithOptions executes the named migration, optionally overriding its
// atomicity mode or running it as a dry run (spec.md §6).
func (e *Engine) RunWithOptions(ctx context.Context, migrationID string, opts RunOptions) (*Run, error) {
	m, ok := e.registry.Get(migrationID)
	if !ok {
		return nil, irerrors.Fatal("migration_lookup", nil).WithDetails("migration_id", migrationID)
	}

	if err := e.preflight(ctx, m); err != nil {
		return nil, err
	}

	if err := e.lock.Acquire(ctx, m.ID); err != nil {
		return nil, err
	}
	defer e.lock.Release(ctx)

	run := &Run{
		ID:                  e.newRunID(),
		MigrationID:         m.ID,
		MigrationName:       m.Name,
		Sprint:              m.Sprint,
		SchemaVersionBefore: m.SchemaVersionBefore,
		SchemaVersionAfter:  m.SchemaVersionAfter,
		Mode:                e.resolveMode(m, opts.ForceMode),
		Status:              StatusRunning,
		StartedAt:           time.Now(),
	}
	if err := e.recordRunStart(ctx, run); err != nil {
		return nil, err
	}

	var runErr error
	if opts.DryRun {
		runErr = e.runDryRun(ctx, m, run)
	} else {
		switch run.Mode {
		case ModeShadow:
			runErr = e.runShadow(ctx, m, run)
		case ModeCheckpoint:
			runErr = e.runCheckpoint(ctx, m, run)
		default:
			runErr = e.runTransaction(ctx, m, run)
		}
	}

	finished := time.Now()
	run.FinishedAt = &finished
	duration := finished.Sub(run.StartedAt)
	run.DurationSeconds = duration.Seconds()

	if runErr != nil {
		if run.Status == StatusRunning {
			run.Status = StatusFailed
		}
		run.ErrorMessage = runErr.Error()
		e.metrics.RecordMigrationRun(m.ID, run.Status, string(run.Mode), duration)
		_ = e.recordRunFinish(ctx, run)
		return run, runErr
	}

	if opts.DryRun {
		run.Status = StatusDryRun
		e.metrics.RecordMigrationRun(m.ID, run.Status, string(run.Mode), duration)
		if err := e.recordRunFinish(ctx, run); err != nil {
			return run, err
		}
		return run, nil
	}

	if err := e.store.AdvanceWithMigration(ctx, m.SchemaVersionAfter, m.ID, m.Sprint); err != nil {
		run.Status = StatusFailed
		run.ErrorMessage = err.Error()
		_ = e.recordRunFinish(ctx, run)
		return run, err
	}

	run.Status = StatusCompleted
	e.metrics.RecordMigrationRun(m.ID, run.Status, string(run.Mode), duration)
	if err := e.recordRunFinish(ctx, run); err != nil {
		return run, err
	}
	return run, nil
}

func (e *Engine) resolveMode(m Migration, forceMode Mode) Mode {
	if forceMode != "" {
		return forceMode
	}
	if m.PreferredMode == "" {
		return ModeCheckpoint
	}
	return m.PreferredMode
}

// runDryRun applies the migration and runs post-migration validation
// inside a transaction that is unconditionally rolled back, regardless
// of the migration's own PreferredMode (a dry run never promotes a
// shadow graph or commits a checkpoint batch). errDryRunRollback is the
// sentinel that forces the rollback on an otherwise-successful attempt;
// it is unwrapped back to nil before returning to RunWithOptions.
func (e *Engine) runDryRun(ctx context.Context, m Migration, run *Run) error {
	txErr := e.client.Transaction(ctx, func(ctx context.Context, tx *graph.Tx) error {
		exec := &Exec{Client: e.client, Tx: tx}
		if err := m.Apply(ctx, exec); err != nil {
			return err
		}
		applyCounts(run, exec.Counts)
		if e.validator != nil {
			if err := e.validator.Validate(ctx, tx); err != nil {
				return irerrors.ContractAssertionFailed(m.ID, err)
			}
		}
		return errDryRunRollback
	})
	if errors.Is(txErr, errDryRunRollback) {
		return nil
	}
	return txErr
}

func (e *Engine) preflight(ctx context.Context, m Migration) error {
	state, err := e.store.Current(ctx)
	if err != nil {
		return err
	}
	if state.Version != m.SchemaVersionBefore {
		return irerrors.VersionMismatch(m.SchemaVersionBefore, state.Version)
	}

	for _, dep := range m.DependsOn {
		completed, err := e.dependencyCompleted(ctx, dep)
		if err != nil {
			return err
		}
		if !completed {
			return irerrors.UnmetDependency(m.ID, dep)
		}
	}
	return nil
}

func (e *Engine) dependencyCompleted(ctx context.Context, migrationID string) (bool, error) {
	records, err := e.client.Execute(ctx, `
		SELECT 1 FROM migration_runs WHERE migration_id = :migration_id AND status = 'completed' LIMIT 1
	`, map[string]interface{}{"migration_id": migrationID})
	if err != nil {
		return false, err
	}
	return len(records) > 0, nil
}

func (e *Engine) runTransaction(ctx context.Context, m Migration, run *Run) error {
	return e.client.Transaction(ctx, func(ctx context.Context, tx *graph.Tx) error {
		exec := &Exec{Client: e.client, Tx: tx}
		if err := m.Apply(ctx, exec); err != nil {
			return err
		}
		applyCounts(run, exec.Counts)
		if e.validator != nil {
			if err := e.validator.Validate(ctx, tx); err != nil {
				return irerrors.ContractAssertionFailed(m.ID, err)
			}
		}
		return nil
	})
}

func (e *Engine) runCheckpoint(ctx context.Context, m Migration, run *Run) error {
	exec := &Exec{Client: e.client}
	if err := m.Apply(ctx, exec); err != nil {
		return err
	}
	applyCounts(run, exec.Counts)

	if e.validator == nil {
		return nil
	}

	if err := e.validator.Validate(ctx, e.client); err != nil {
		runner := NewCheckpointRunner(e.client, run.ID, m.ID)
		if rollbackErr := runner.Rollback(ctx); rollbackErr != nil {
			return fmt.Errorf("rollback after contract failure: %w (validation error: %v)", rollbackErr, err)
		}
		run.Status = StatusRolledBack
		// Rollback deletes every node/edge this run wrote, so the counts
		// recorded above no longer reflect what's in the graph (spec.md
		// §8 scenario 3: objects_created reset to zero after cleanup).
		run.ObjectsCreated, run.ObjectsUpdated, run.ObjectsDeleted = 0, 0, 0
		return irerrors.ContractAssertionFailed(m.ID, err)
	}
	return nil
}

func (e *Engine) runShadow(ctx context.Context, m Migration, run *Run) error {
	exec := &Exec{Client: e.client}
	if err := m.Apply(ctx, exec); err != nil {
		return err
	}
	applyCounts(run, exec.Counts)
	// The migration's Apply function is expected to call Promote itself
	// via a ShadowRunner constructed with the same client, once its
	// shadow build is complete; the engine only runs post-migration
	// validation once Apply returns, against the now-promoted graph.
	if e.validator == nil {
		return nil
	}
	if err := e.validator.Validate(ctx, e.client); err != nil {
		return irerrors.ContractAssertionFailed(m.ID, err)
	}
	return nil
}

func (e *Engine) recordRunStart(ctx context.Context, run *Run) error {
	_, err := e.client.Execute(ctx, `
		INSERT INTO migration_runs (id, migration_id, migration_name, sprint, schema_version_before, schema_version_after, mode, status, started_at)
		VALUES (:id, :migration_id, :migration_name, :sprint, :before, :after, :mode, :status, :started_at)
	`, map[string]interface{}{
		"id":             run.ID,
		"migration_id":   run.MigrationID,
		"migration_name": run.MigrationName,
		"sprint":         run.Sprint,
		"before":         run.SchemaVersionBefore,
		"after":          run.SchemaVersionAfter,
		"mode":           string(run.Mode),
		"status":         run.Status,
		"started_at":     run.StartedAt,
	})
	return err
}

func (e *Engine) recordRunFinish(ctx context.Context, run *Run) error {
	_, err := e.client.Execute(ctx, `
		UPDATE migration_runs
		SET status = :status, finished_at = :finished_at, error_message = :error_message,
		    duration_seconds = :duration_seconds, objects_created = :objects_created,
		    objects_updated = :objects_updated, objects_deleted = :objects_deleted
		WHERE id = :id
	`, map[string]interface{}{
		"id":               run.ID,
		"status":           run.Status,
		"finished_at":      run.FinishedAt,
		"error_message":    run.ErrorMessage,
		"duration_seconds": run.DurationSeconds,
		"objects_created":  run.ObjectsCreated,
		"objects_updated":  run.ObjectsUpdated,
		"objects_deleted":  run.ObjectsDeleted,
	})
	return err
}
