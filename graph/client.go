// Package graph implements the Graph Engine Client (spec.md §4.1): a
// thin, process-wide client wrapping the underlying property graph,
// modeled atop PostgreSQL as two tables, ir_nodes and ir_edges, since no
// dedicated graph-database driver exists anywhere in the corpus this
// module was grounded on (see DESIGN.md).
package graph

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"golang.org/x/time/rate"

	irerrors "github.com/r3e-network/irgraph/infrastructure/errors"
	"github.com/r3e-network/irgraph/infrastructure/logging"
	"github.com/r3e-network/irgraph/infrastructure/metrics"
)

// Record is a single row returned by Execute, keyed by column name.
type Record map[string]interface{}

// Client is the process-wide Graph Engine Client. It is safe for concurrent
// use by multiple goroutines (spec.md §5).
type Client struct {
	db      *sqlx.DB
	logger  *logging.Logger
	metrics *metrics.Metrics

	statementTimeout time.Duration
	retryBudget      int
	retryBaseDelay   time.Duration
	batchLimiter     *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithStatementTimeout overrides the default 30s statement timeout.
func WithStatementTimeout(d time.Duration) Option {
	return func(c *Client) { c.statementTimeout = d }
}

// WithRetryBudget overrides the number of retry attempts for TRANSIENT engine errors.
func WithRetryBudget(attempts int, baseDelay time.Duration) Option {
	return func(c *Client) {
		c.retryBudget = attempts
		c.retryBaseDelay = baseDelay
	}
}

// WithBatchRateLimit bounds batched_execute throughput (statements/sec) so a
// runaway caller cannot starve the connection pool.
func WithBatchRateLimit(statementsPerSecond float64, burst int) Option {
	return func(c *Client) { c.batchLimiter = rate.NewLimiter(rate.Limit(statementsPerSecond), burst) }
}

// WithLogger attaches a logger; logging.Default() is used otherwise.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics attaches a Metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// Open connects to the underlying PostgreSQL-backed graph store and verifies
// connectivity with a ping.
func Open(ctx context.Context, dsn string, opts ...Option) (*Client, error) {
	sqlxDB, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, irerrors.Fatal("open", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := sqlxDB.PingContext(pingCtx); err != nil {
		sqlxDB.Close()
		return nil, irerrors.Fatal("ping", err)
	}

	return NewClient(sqlxDB, opts...), nil
}

// NewClient wraps an already-open *sqlx.DB (useful for sqlmock-backed tests).
func NewClient(db *sqlx.DB, opts ...Option) *Client {
	c := &Client{
		db:               db,
		logger:           logging.Default(),
		metrics:          metrics.Global(),
		statementTimeout: 30 * time.Second,
		retryBudget:      3,
		retryBaseDelay:   50 * time.Millisecond,
		batchLimiter:     rate.NewLimiter(rate.Limit(200), 50),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.db.Close()
}

// DB exposes the underlying *sqlx.DB for repository-level typed scans.
// Repositories should still prefer Client.Execute/Transaction for
// consistency with the retry/metrics/timeout policy; DB is for the rare
// case of needing sqlx.StructScan over a bespoke query shape.
func (c *Client) DB() *sqlx.DB {
	return c.db
}

// Execute runs a single parameterized statement and returns its result rows.
// It retries TRANSIENT engine errors with exponential backoff up to the
// client's retry budget (spec.md §4.1).
func (c *Client) Execute(ctx context.Context, stmt string, params map[string]interface{}) ([]Record, error) {
	return c.executeOn(ctx, c.db, stmt, params)
}

func (c *Client) executeOn(ctx context.Context, execer sqlx.ExtContext, stmt string, params map[string]interface{}) ([]Record, error) {
	start := time.Now()
	var lastErr error

	for attempt := 0; attempt <= c.retryBudget; attempt++ {
		stmtCtx, cancel := context.WithTimeout(ctx, c.statementTimeout)
		rows, err := sqlx.NamedQueryContext(stmtCtx, execer, stmt, params)
		if err == nil {
			defer cancel()
			records, scanErr := scanRows(rows)
			rows.Close()
			if scanErr != nil {
				c.recordQuery(stmt, "error", time.Since(start))
				return nil, irerrors.Fatal("scan", scanErr)
			}
			c.recordQuery(stmt, "ok", time.Since(start))
			return records, nil
		}
		cancel()

		lastErr = err
		if !isTransient(err) {
			c.recordQuery(stmt, "error", time.Since(start))
			return nil, irerrors.Fatal("execute", err)
		}

		if c.metrics != nil {
			c.metrics.EngineRetries.WithLabelValues("execute").Inc()
		}
		if attempt < c.retryBudget {
			time.Sleep(backoffDelay(c.retryBaseDelay, attempt))
		}
	}

	c.recordQuery(stmt, "error", time.Since(start))
	return nil, irerrors.Transient("execute", lastErr)
}

func (c *Client) recordQuery(stmt, status string, duration time.Duration) {
	if c.logger != nil {
		c.logger.LogQuery(context.Background(), stmt, duration, nil)
	}
	if c.metrics != nil {
		c.metrics.RecordQuery("execute", status, duration)
	}
}

// BatchedExecute applies stmt once per element of batchParams, chunked into
// groups of batchSize, each group using the engine's own expansion
// primitive for a single round trip. It is rate limited so callers cannot
// exceed the client's configured batch throughput.
func (c *Client) BatchedExecute(ctx context.Context, stmt string, batchParams []map[string]interface{}, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 100
	}

	for start := 0; start < len(batchParams); start += batchSize {
		end := start + batchSize
		if end > len(batchParams) {
			end = len(batchParams)
		}
		chunk := batchParams[start:end]

		if c.batchLimiter != nil {
			if err := c.batchLimiter.WaitN(ctx, len(chunk)); err != nil {
				return irerrors.Fatal("batched_execute", err)
			}
		}

		stmtCtx, cancel := context.WithTimeout(ctx, c.statementTimeout)
		_, err := sqlx.NamedExecContext(stmtCtx, c.db, stmt, chunk)
		cancel()
		if err != nil {
			if isTransient(err) {
				return irerrors.Transient("batched_execute", err)
			}
			return irerrors.Fatal("batched_execute", err)
		}
	}
	return nil
}

func scanRows(rows *sqlx.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		row := make(Record)
		if err := rows.MapScan(row); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if err == sql.ErrConnDone || err == sql.ErrTxDone {
		return true
	}
	if err == context.DeadlineExceeded {
		return true
	}
	return false
}

func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

// tableExists is a small helper used by bootstrap code/tests to check that
// migration/schema's embedded SQL has run.
func tableExists(ctx context.Context, db *sqlx.DB, name string) (bool, error) {
	var exists bool
	err := db.GetContext(ctx, &exists, `SELECT EXISTS (
		SELECT FROM information_schema.tables WHERE table_name = $1
	)`, name)
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", name, err)
	}
	return exists, nil
}
