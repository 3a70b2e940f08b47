// Package errors provides the structured error taxonomy shared by every
// layer of the IR graph store (spec.md §7).
package errors

import (
	"errors"
	"fmt"
)

// Kind identifies which of the six taxonomies (spec.md §7) an error belongs to.
type Kind string

const (
	KindEngine      Kind = "engine"
	KindPersistence Kind = "persistence"
	KindContract    Kind = "contract"
	KindMigration   Kind = "migration"
	KindLock        Kind = "lock"
	KindLoader      Kind = "loader"
)

// Code is a stable, machine-readable error code within a Kind.
type Code string

const (
	// Engine errors (graph.Client).
	CodeTransient Code = "ENGINE_TRANSIENT"
	CodeFatal     Code = "ENGINE_FATAL"
	CodeNested    Code = "ENGINE_NESTED_TX"

	// Persistence errors (ir repositories).
	CodeWriteFailed  Code = "PERSIST_WRITE_FAILED"
	CodeStaleWrite   Code = "PERSIST_STALE_WRITE"
	CodeMissingActor Code = "PERSIST_MISSING_ACTOR"

	// Contract errors (shape invariants).
	CodeCardinality       Code = "CONTRACT_CARDINALITY"
	CodeMissingRequired   Code = "CONTRACT_MISSING_REQUIRED_PROPERTY"
	CodeUnknownEnum       Code = "CONTRACT_UNKNOWN_ENUM_VALUE"
	CodeDuplicateKey      Code = "CONTRACT_DUPLICATE_UNIQUE_KEY"
	CodeSeedCycle         Code = "CONTRACT_SEED_CYCLE"
	CodeNonContiguousStep Code = "CONTRACT_NON_CONTIGUOUS_STEP_ORDER"

	// Migration errors (Migration Engine).
	CodeVersionMismatch      Code = "MIGRATION_VERSION_MISMATCH"
	CodeUnmetDependency      Code = "MIGRATION_UNMET_DEPENDENCY"
	CodeContractAssertion    Code = "MIGRATION_CONTRACT_ASSERTION_FAILED"
	CodeCheckpointFailed     Code = "MIGRATION_CHECKPOINT_FAILED"
	CodeShadowPromotionFails Code = "MIGRATION_SHADOW_PROMOTION_FAILED"

	// Lock errors (Schema Version Singleton).
	CodeLockBusy  Code = "LOCK_BUSY"
	CodeLockStale Code = "LOCK_STALE"

	// Loader errors (Full IR Loader).
	CodeNotFound            Code = "LOADER_NOT_FOUND"
	CodeInconsistentSnapsot Code = "LOADER_INCONSISTENT_SNAPSHOT"
)

// IRError is the structured error carried across every package boundary in
// the IR graph store.
type IRError struct {
	Kind    Kind                   `json:"kind"`
	Code    Code                   `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

// Error implements the error interface.
func (e *IRError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s/%s] %s: %v", e.Kind, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s/%s] %s", e.Kind, e.Code, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *IRError) Unwrap() error {
	return e.Err
}

// WithDetails attaches a key/value pair to the error's Details map.
func (e *IRError) WithDetails(key string, value interface{}) *IRError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a bare IRError.
func New(kind Kind, code Code, message string) *IRError {
	return &IRError{Kind: kind, Code: code, Message: message}
}

// Wrap creates an IRError wrapping an existing error.
func Wrap(kind Kind, code Code, message string, err error) *IRError {
	return &IRError{Kind: kind, Code: code, Message: message, Err: err}
}

// Engine errors.

func Transient(operation string, err error) *IRError {
	return Wrap(KindEngine, CodeTransient, "graph engine operation failed transiently", err).
		WithDetails("operation", operation)
}

func Fatal(operation string, err error) *IRError {
	return Wrap(KindEngine, CodeFatal, "graph engine operation failed fatally", err).
		WithDetails("operation", operation)
}

func NestedTransaction() *IRError {
	return New(KindEngine, CodeNested, "nested transactions are not supported")
}

// Persistence errors.

func WriteFailed(operation string, err error) *IRError {
	return Wrap(KindPersistence, CodeWriteFailed, "write failed", err).
		WithDetails("operation", operation)
}

func StaleWrite(appID string, expected, actual int) *IRError {
	return New(KindPersistence, CodeStaleWrite, "write attempted through a stale IR snapshot").
		WithDetails("app_id", appID).
		WithDetails("expected_version", expected).
		WithDetails("actual_version", actual)
}

func MissingActor() *IRError {
	return New(KindPersistence, CodeMissingActor, "no actor present in the write context")
}

// Contract errors.

func Cardinality(label, relType string, lower, upper *int) *IRError {
	e := New(KindContract, CodeCardinality, "cardinality bound violated").
		WithDetails("label", label).
		WithDetails("rel_type", relType)
	if lower != nil {
		e.WithDetails("lower", *lower)
	}
	if upper != nil {
		e.WithDetails("upper", *upper)
	}
	return e
}

func MissingRequiredProperty(label, property string) *IRError {
	return New(KindContract, CodeMissingRequired, "required property missing").
		WithDetails("label", label).
		WithDetails("property", property)
}

func UnknownEnumValue(property, value string, allowed []string) *IRError {
	return New(KindContract, CodeUnknownEnum, "value outside enumerated set").
		WithDetails("property", property).
		WithDetails("value", value).
		WithDetails("allowed", allowed)
}

func DuplicateUniqueKey(label string, key map[string]interface{}) *IRError {
	return New(KindContract, CodeDuplicateKey, "duplicate unique key").
		WithDetails("label", label).
		WithDetails("key", key)
}

func SeedCycle(cycle []string) *IRError {
	return New(KindContract, CodeSeedCycle, "seed entity dependency cycle detected").
		WithDetails("cycle", cycle)
}

func NonContiguousStepOrder(flowName string, orders []int) *IRError {
	return New(KindContract, CodeNonContiguousStep, "flow step order is not a contiguous permutation from 1").
		WithDetails("flow", flowName).
		WithDetails("orders", orders)
}

// Migration errors.

func VersionMismatch(expected, actual int) *IRError {
	return New(KindMigration, CodeVersionMismatch, "schema version mismatch").
		WithDetails("expected", expected).
		WithDetails("actual", actual)
}

func UnmetDependency(migrationID, dependencyID string) *IRError {
	return New(KindMigration, CodeUnmetDependency, "migration dependency not completed").
		WithDetails("migration_id", migrationID).
		WithDetails("dependency_id", dependencyID)
}

func ContractAssertionFailed(migrationID string, err error) *IRError {
	return Wrap(KindMigration, CodeContractAssertion, "post-migration contract validation failed", err).
		WithDetails("migration_id", migrationID)
}

func CheckpointFailed(migrationID string, batch int, err error) *IRError {
	return Wrap(KindMigration, CodeCheckpointFailed, "migration checkpoint batch failed", err).
		WithDetails("migration_id", migrationID).
		WithDetails("batch", batch)
}

func ShadowPromotionFailed(migrationID string, err error) *IRError {
	return Wrap(KindMigration, CodeShadowPromotionFails, "shadow graph promotion failed", err).
		WithDetails("migration_id", migrationID)
}

// Lock errors.

func LockBusy(lockedBy string, lockedAt string) *IRError {
	return New(KindLock, CodeLockBusy, "another migration holds the schema version lock").
		WithDetails("locked_by", lockedBy).
		WithDetails("locked_at", lockedAt)
}

func LockStale(lockedBy string, lockedAt string) *IRError {
	return New(KindLock, CodeLockStale, "stale migration lock forcibly cleared").
		WithDetails("locked_by", lockedBy).
		WithDetails("locked_at", lockedAt)
}

// Loader errors.

func NotFound(appID string) *IRError {
	return New(KindLoader, CodeNotFound, "application IR not found").
		WithDetails("app_id", appID)
}

func InconsistentSnapshot(appID, reason string) *IRError {
	return New(KindLoader, CodeInconsistentSnapsot, "loaded snapshot violates an IR invariant").
		WithDetails("app_id", appID).
		WithDetails("reason", reason)
}

// Helper functions.

// IsIRError reports whether err is (or wraps) an *IRError.
func IsIRError(err error) bool {
	var irErr *IRError
	return errors.As(err, &irErr)
}

// As extracts the *IRError from err's chain, if present.
func As(err error) *IRError {
	var irErr *IRError
	if errors.As(err, &irErr) {
		return irErr
	}
	return nil
}

// Is reports whether err carries the given Code anywhere in its chain.
func Is(err error, code Code) bool {
	irErr := As(err)
	return irErr != nil && irErr.Code == code
}
