// Package logging provides structured logging for the IR graph store.
package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContextKey is the type for context keys carried by the logger.
type ContextKey string

const (
	// TraceIDKey is the context key for the request/operation trace ID.
	TraceIDKey ContextKey = "trace_id"
	// AppIDKey is the context key for the application IR identifier.
	AppIDKey ContextKey = "app_id"
	// MigrationIDKey is the context key for the active migration run ID.
	MigrationIDKey ContextKey = "migration_id"
	// ActorKey is the context key for the temporal-metadata actor.
	ActorKey ContextKey = "actor"
)

// Logger wraps logrus.Logger with IR-store specific context fields.
type Logger struct {
	*logrus.Logger
	component string
}

// New creates a new Logger for the given component ("migration", "loader", ...).
func New(component, level, format string) *Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}

	logger.SetOutput(os.Stdout)

	return &Logger{Logger: logger, component: component}
}

// NewFromEnv builds a logger from LOG_LEVEL and LOG_FORMAT, defaulting to info/json.
func NewFromEnv(component string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(component, level, format)
}

// WithContext returns an entry carrying trace/app/migration/actor fields found in ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("component", l.component)

	if traceID := ctx.Value(TraceIDKey); traceID != nil {
		entry = entry.WithField("trace_id", traceID)
	}
	if appID := ctx.Value(AppIDKey); appID != nil {
		entry = entry.WithField("app_id", appID)
	}
	if migrationID := ctx.Value(MigrationIDKey); migrationID != nil {
		entry = entry.WithField("migration_id", migrationID)
	}
	if actor := ctx.Value(ActorKey); actor != nil {
		entry = entry.WithField("actor", actor)
	}
	return entry
}

// WithFields returns an entry with the component field plus the given fields.
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["component"] = l.component
	return l.Logger.WithFields(fields)
}

// NewTraceID returns a new random trace identifier.
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID attaches a trace ID to ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithAppID attaches an app_id to ctx.
func WithAppID(ctx context.Context, appID string) context.Context {
	return context.WithValue(ctx, AppIDKey, appID)
}

// WithMigrationID attaches a migration run ID to ctx.
func WithMigrationID(ctx context.Context, migrationID string) context.Context {
	return context.WithValue(ctx, MigrationIDKey, migrationID)
}

// WithActor attaches the temporal-metadata actor to ctx.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, ActorKey, actor)
}

// GetActor reads the actor previously attached with WithActor, or "" if absent.
func GetActor(ctx context.Context) string {
	if actor, ok := ctx.Value(ActorKey).(string); ok {
		return actor
	}
	return ""
}

// LogQuery logs a graph engine statement execution.
func (l *Logger) LogQuery(ctx context.Context, stmt string, duration time.Duration, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"duration_ms": duration.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Error("graph query failed")
		return
	}
	entry.Debug("graph query executed")
}

// LogMigrationBatch logs a single migration batch at the service-log level
// (the high-frequency checkpoint record itself goes through migration/batchlog).
func (l *Logger) LogMigrationBatch(ctx context.Context, batch int, recordsProcessed int, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"batch":             batch,
		"records_processed": recordsProcessed,
	})
	if err != nil {
		entry.WithError(err).Error("migration batch failed")
		return
	}
	entry.Info("migration batch committed")
}

// Global default logger.
var defaultLogger *Logger

// InitDefault initializes the package-wide default logger.
func InitDefault(component, level, format string) {
	defaultLogger = New(component, level, format)
}

// Default returns the package-wide default logger, creating a fallback if unset.
func Default() *Logger {
	if defaultLogger == nil {
		defaultLogger = New("irgraph", "info", "json")
	}
	return defaultLogger
}
