package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/go-redis/redis/v8"

	"github.com/r3e-network/irgraph/contract"
	"github.com/r3e-network/irgraph/graph"
	"github.com/r3e-network/irgraph/health"
	"github.com/r3e-network/irgraph/infrastructure/config"
	irerrors "github.com/r3e-network/irgraph/infrastructure/errors"
	"github.com/r3e-network/irgraph/infrastructure/logging"
	"github.com/r3e-network/irgraph/infrastructure/metrics"
	"github.com/r3e-network/irgraph/internal/version"
	"github.com/r3e-network/irgraph/ir"
	"github.com/r3e-network/irgraph/loader"
	"github.com/r3e-network/irgraph/loader/cache"
	"github.com/r3e-network/irgraph/migration"
	"github.com/r3e-network/irgraph/migration/schema"
	"github.com/r3e-network/irgraph/schemaversion"
	"github.com/r3e-network/irgraph/temporal"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:]))
}

// run dispatches to a subcommand and returns the process exit code per
// spec.md §6: 0 success, 1 shape contract failure, 2 lock contention,
// 3 unmet dependency, 4 version mismatch, >4 engine/transport errors.
func run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		printUsage()
		return 5
	}

	envFile := os.Getenv("IRGRAPHCTL_ENV_FILE")
	settings, err := config.LoadSettings(envFile)
	if err != nil && args[0] != "version" && args[0] != "help" {
		fmt.Fprintf(os.Stderr, "Error: load settings: %v\n", err)
		return 5
	}

	switch args[0] {
	case "version":
		fmt.Println(version.FullVersion())
		return 0
	case "help", "-h", "--help":
		printUsage()
		return 0
	}

	deps, err := wire(ctx, settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 5
	}
	defer deps.client.Close()

	var cmdErr error
	switch args[0] {
	case "save":
		cmdErr = handleSave(ctx, deps)
	case "load":
		cmdErr = handleLoad(ctx, deps, args[1:])
	case "migrate":
		cmdErr = handleMigrate(ctx, deps, args[1:])
	case "validate":
		cmdErr = handleValidate(ctx, deps, args[1:])
	case "health":
		cmdErr = handleHealth(ctx, deps)
	case "serve":
		cmdErr = handleServe(ctx, deps, args[1:])
	default:
		printUsage()
		return 5
	}

	if cmdErr == nil {
		return 0
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", cmdErr)
	return exitCode(cmdErr)
}

func printUsage() {
	fmt.Println(`irgraphctl — operator CLI for the IR graph store

Usage:
  irgraphctl save < application_ir.json
  irgraphctl load <app-id>
  irgraphctl migrate <migration-id> [--mode transaction|checkpoint|shadow] [--dry-run]
  irgraphctl validate [--schema-version N]
  irgraphctl health
  irgraphctl serve [--addr :8090]
  irgraphctl version

Environment:
  DB_URI, DB_USER, DB_PASSWORD, DB_NAME     graph engine connection
  MIGRATION_STALE_LOCK_MINUTES              default 30
  MIGRATION_DEFAULT_BATCH_SIZE              default 100
  LOADER_CACHE_TTL_SECONDS                  default 3600
  LOADER_CACHE_BACKEND                      memory|redis, default memory
  HEALTH_HIGH_DEGREE_THRESHOLD              default 10000
  ACTOR_DEFAULT                             default pipeline

Exit codes: 0 success, 1 shape contract failure, 2 lock contention,
3 unmet dependency, 4 version mismatch, >4 engine/transport errors.`)
}

// exitCode maps an IRError's Kind/Code onto spec.md §6's exit semantics.
// Non-IRError failures (connection refused, context cancellation, a
// subcommand's own flag errors) fall through to the catch-all >4 band.
func exitCode(err error) int {
	irErr := irerrors.As(err)
	if irErr == nil {
		return 5
	}
	switch irErr.Code {
	case irerrors.CodeCardinality, irerrors.CodeMissingRequired, irerrors.CodeUnknownEnum,
		irerrors.CodeDuplicateKey, irerrors.CodeSeedCycle, irerrors.CodeNonContiguousStep,
		irerrors.CodeContractAssertion:
		return 1
	case irerrors.CodeLockBusy, irerrors.CodeLockStale:
		return 2
	case irerrors.CodeUnmetDependency:
		return 3
	case irerrors.CodeVersionMismatch:
		return 4
	default:
		return 5
	}
}

// deps bundles the wired components every subcommand needs. Built fresh
// per invocation: irgraphctl is a one-shot CLI, not a long-lived process
// (other than `serve`).
type deps struct {
	settings  config.Settings
	client    *graph.Client
	store     *schemaversion.Store
	lock      *schemaversion.Lock
	validator *contract.Validator
	engine    *migration.Engine
	ldr       *loader.Loader
	monitor   *health.Monitor
	logger    *logging.Logger
	apps      *ir.ApplicationRepository
}

func wire(ctx context.Context, settings config.Settings) (*deps, error) {
	logger := logging.NewFromEnv("irgraphctl")
	m := metrics.Global()

	client, err := graph.Open(ctx, settings.DataSourceName(),
		graph.WithStatementTimeout(settings.StatementTimeout()),
		graph.WithLogger(logger),
		graph.WithMetrics(m),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to graph engine: %w", err)
	}

	if err := schema.Apply(ctx, client.DB().DB); err != nil {
		client.Close()
		return nil, fmt.Errorf("apply physical bootstrap: %w", err)
	}

	store := schemaversion.NewStore(client)
	lock := schemaversion.NewLock(store, settings.StaleLockTimeout())

	state, err := store.Current(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("read schema version: %w", err)
	}

	var validator *contract.Validator
	if phase, err := contract.LoadPhase(state.Version); err == nil {
		validator = contract.NewValidator(phase)
	} else {
		logger.WithContext(ctx).WithFields(map[string]interface{}{"schema_version": state.Version}).
			Warn("no contract phase registered for current schema version; validate/migrate will skip shape checks")
	}

	registry := migration.NewRegistry()
	engine := migration.NewEngine(client, registry, store, lock, engineValidator(validator), func() string {
		return uuid.New().String()
	})

	var snapshot cache.Snapshot
	switch settings.LoaderCacheBackend {
	case "redis":
		snapshot = cache.NewRedis(redis.NewClient(&redis.Options{Addr: settings.LoaderRedisAddr}), settings.LoaderCacheTTL())
	default:
		snapshot = cache.NewInProcess(settings.LoaderCacheTTL())
	}
	ldr := loader.New(client, snapshot, logger)

	monitor := health.New(client, lock, health.Config{HighDegreeThreshold: settings.HealthHighDegreeThreshold}, logger, m)

	base := ir.NewBaseRepository(client, temporal.New())
	apps := ir.NewApplicationRepository(base,
		ir.NewDomainRepository(base),
		ir.NewAPIRepository(base),
		ir.NewBehaviorRepository(base),
		ir.NewValidationRepository(base),
		ir.NewInfrastructureRepository(base),
		ir.NewTestsRepository(base),
	)

	return &deps{
		settings:  settings,
		client:    client,
		store:     store,
		lock:      lock,
		validator: validator,
		engine:    engine,
		ldr:       ldr,
		monitor:   monitor,
		logger:    logger,
		apps:      apps,
	}, nil
}

// engineValidator adapts a possibly-nil *contract.Validator to
// migration.Validator: a nil interface value (not a non-nil interface
// wrapping a nil pointer) signals "no contract phase, skip validation"
// to the engine.
func engineValidator(v *contract.Validator) migration.Validator {
	if v == nil {
		return nil
	}
	return v
}

func handleSave(ctx context.Context, d *deps) error {
	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("read application IR from stdin: %w", err)
	}
	var app ir.ApplicationIR
	if err := json.Unmarshal(raw, &app); err != nil {
		return irerrors.Wrap(irerrors.KindContract, irerrors.CodeMissingRequired, "application IR is not valid JSON", err)
	}
	if app.AppID == "" {
		return irerrors.New(irerrors.KindContract, irerrors.CodeMissingRequired, "app_id is required")
	}
	return d.apps.Save(ctx, app)
}

func handleMigrate(ctx context.Context, d *deps, args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	mode := fs.String("mode", "", "Override the migration's preferred atomicity mode (transaction|checkpoint|shadow)")
	dryRun := fs.Bool("dry-run", false, "Validate without writing IR data")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("migrate requires exactly one migration id")
	}

	run, err := d.engine.RunWithOptions(ctx, fs.Arg(0), migration.RunOptions{
		ForceMode: migration.Mode(*mode),
		DryRun:    *dryRun,
	})
	if run != nil {
		printJSON(run)
	}
	return err
}

func handleValidate(ctx context.Context, d *deps, args []string) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	schemaVersion := fs.Int("schema-version", 0, "Contract phase to validate against (defaults to the current schema version)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	v := d.validator
	if *schemaVersion != 0 {
		phase, err := contract.LoadPhase(*schemaVersion)
		if err != nil {
			return fmt.Errorf("load contract phase %d: %w", *schemaVersion, err)
		}
		v = contract.NewValidator(phase)
	}
	if v == nil {
		return errors.New("no contract phase registered for the current schema version")
	}

	report, err := v.Run(ctx, d.client)
	if err != nil {
		return err
	}
	printJSON(report)
	if !report.Passed() {
		return irerrors.New(irerrors.KindContract, irerrors.CodeCardinality, "shape contract validation failed").
			WithDetails("failures", len(report.Failures))
	}
	return nil
}

func handleHealth(ctx context.Context, d *deps) error {
	report, err := d.monitor.Run(ctx)
	if err != nil {
		return err
	}
	printJSON(report)
	if report.Status == health.SeverityCritical {
		return irerrors.New(irerrors.KindContract, irerrors.CodeCardinality, "health sweep reported a critical finding")
	}
	return nil
}

func handleLoad(ctx context.Context, d *deps, args []string) error {
	if len(args) != 1 {
		return errors.New("load requires exactly one app id")
	}
	app, err := d.ldr.Load(ctx, args[0])
	if err != nil {
		return err
	}
	printJSON(app)
	return nil
}

func printJSON(v interface{}) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(raw))
}

// handleServe exposes /healthz and /validate over HTTP for operators who
// prefer polling an endpoint to shelling out per check (SPEC_FULL.md §6).
func handleServe(ctx context.Context, d *deps, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	addr := fs.String("addr", ":8090", "Address to listen on")
	if err := fs.Parse(args); err != nil {
		return err
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		report, err := d.monitor.Run(req.Context())
		if err != nil {
			writeJSONError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if report.Status == health.SeverityCritical {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(report)
	}).Methods(http.MethodGet)

	r.HandleFunc("/validate", func(w http.ResponseWriter, req *http.Request) {
		if d.validator == nil {
			writeJSONError(w, errors.New("no contract phase registered for the current schema version"))
			return
		}
		report, err := d.validator.Run(req.Context(), d.client)
		if err != nil {
			writeJSONError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if !report.Passed() {
			w.WriteHeader(http.StatusUnprocessableEntity)
		}
		_ = json.NewEncoder(w).Encode(report)
	}).Methods(http.MethodGet)

	d.logger.WithContext(ctx).WithFields(map[string]interface{}{"addr": *addr}).Info("serving /healthz and /validate")
	return http.ListenAndServe(*addr, r)
}

func writeJSONError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
