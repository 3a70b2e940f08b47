package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultsInvalidLevel(t *testing.T) {
	logger := New("test", "not-a-level", "json")
	require.NotNil(t, logger)
	assert.Equal(t, "info", logger.Logger.Level.String())
}

func TestWithContextCarriesFields(t *testing.T) {
	logger := New("test", "debug", "text")

	ctx := context.Background()
	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithAppID(ctx, "app-1")
	ctx = WithMigrationID(ctx, "mig-1")
	ctx = WithActor(ctx, "pipeline")

	entry := logger.WithContext(ctx)
	assert.Equal(t, "trace-1", entry.Data["trace_id"])
	assert.Equal(t, "app-1", entry.Data["app_id"])
	assert.Equal(t, "mig-1", entry.Data["migration_id"])
	assert.Equal(t, "pipeline", entry.Data["actor"])
	assert.Equal(t, "test", entry.Data["component"])
}

func TestGetActorAbsent(t *testing.T) {
	assert.Equal(t, "", GetActor(context.Background()))
}

func TestNewTraceIDUnique(t *testing.T) {
	a := NewTraceID()
	b := NewTraceID()
	assert.NotEqual(t, a, b)
}

func TestDefaultLoggerFallback(t *testing.T) {
	defaultLogger = nil
	logger := Default()
	assert.NotNil(t, logger)
}
