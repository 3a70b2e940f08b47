// Package batchlog provides a high-frequency structured logger for
// checkpoint-mode migration batches. Checkpoint batches can fire far more
// often than ordinary service logs, so this uses zerolog's
// allocation-light API rather than the general-purpose logrus logger
// used elsewhere in the store.
package batchlog

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger emits one structured line per migration batch.
type Logger struct {
	zl zerolog.Logger
}

// New constructs a Logger writing JSON lines to stderr.
func New() *Logger {
	return &Logger{zl: zerolog.New(os.Stderr).With().Timestamp().Logger()}
}

// NewWithWriter constructs a Logger over an arbitrary io.Writer, for tests.
func NewWithWriter(w io.Writer) *Logger {
	return &Logger{zl: zerolog.New(w).With().Timestamp().Logger()}
}

// LogBatch records one checkpoint batch's outcome.
func (l *Logger) LogBatch(ctx context.Context, migrationID string, batchNumber, recordsProcessed int, duration time.Duration, err error) {
	event := l.zl.Info()
	if err != nil {
		event = l.zl.Error().Err(err)
	}
	event.
		Str("migration_id", migrationID).
		Int("batch_number", batchNumber).
		Int("records_processed", recordsProcessed).
		Dur("duration", duration).
		Msg("migration checkpoint batch")
}
