// Package health implements the Graph Health Monitor (spec.md §4.7):
// continuous and on-demand structural and operational health checks over
// the property graph.
package health

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/r3e-network/irgraph/graph"
	"github.com/r3e-network/irgraph/infrastructure/logging"
	"github.com/r3e-network/irgraph/infrastructure/metrics"
	"github.com/r3e-network/irgraph/schemaversion"
)

// Severity is one of HEALTHY/WARNING/CRITICAL (spec.md §4.7).
type Severity string

const (
	SeverityHealthy  Severity = "HEALTHY"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

func (s Severity) worseThan(other Severity) bool {
	rank := map[Severity]int{SeverityHealthy: 0, SeverityWarning: 1, SeverityCritical: 2}
	return rank[s] > rank[other]
}

// Finding is one health check's result.
type Finding struct {
	Check    string   `json:"check"`
	Severity Severity `json:"severity"`
	Detail   string   `json:"detail"`
	Samples  []string `json:"samples,omitempty"`
}

// Report aggregates every check's findings plus an overall status: the
// worst severity among all findings, HEALTHY if there are none.
type Report struct {
	Status   Severity  `json:"status"`
	Findings []Finding `json:"findings"`
}

func (r *Report) add(f Finding) {
	r.Findings = append(r.Findings, f)
	if f.Severity.worseThan(r.Status) {
		r.Status = f.Severity
	}
}

// Config tunes the monitor's thresholds (spec.md §6 env-var contract).
type Config struct {
	HighDegreeThreshold int
	KnownLabels         []string
}

// DefaultConfig returns the spec-mandated defaults.
func DefaultConfig() Config {
	return Config{HighDegreeThreshold: 10000}
}

// Monitor runs the structural health sweep (spec.md §4.7) and can
// optionally schedule itself, and the Schema Version Singleton's
// stale-lock cleanup, on a cron schedule.
type Monitor struct {
	client  *graph.Client
	lock    *schemaversion.Lock
	config  Config
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// New constructs a Monitor. lock may be nil; when set, Schedule also
// clears stale migration locks on each tick.
func New(client *graph.Client, lock *schemaversion.Lock, config Config, logger *logging.Logger, m *metrics.Metrics) *Monitor {
	return &Monitor{client: client, lock: lock, config: config, logger: logger, metrics: m}
}

// Run performs an on-demand sweep across every check (spec.md §4.7).
func (m *Monitor) Run(ctx context.Context) (*Report, error) {
	report := &Report{Status: SeverityHealthy}

	checks := []func(context.Context) ([]Finding, error){
		m.checkOrphanNodes,
		m.checkMissingRequiredProperties,
		m.checkHighDegreeNodes,
		m.checkDuplicateUniqueKeys,
		m.checkInvalidRelationshipPayloads,
		m.checkUndocumentedLabels,
	}

	for _, check := range checks {
		findings, err := check(ctx)
		if err != nil {
			return nil, err
		}
		for _, f := range findings {
			report.add(f)
		}
	}

	if m.metrics != nil {
		m.metrics.RecordHealthCheck(string(report.Status))
	}
	if m.logger != nil {
		m.logger.WithContext(ctx).WithFields(map[string]interface{}{
			"status": report.Status, "findings": len(report.Findings),
		}).Info("health check complete")
	}
	return report, nil
}

// Schedule registers the sweep, plus stale-lock cleanup when a Lock was
// provided, on a robfig/cron/v3 schedule. It returns the running cron
// instance; callers stop it via cron.Stop().
func (m *Monitor) Schedule(ctx context.Context, spec string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if _, err := m.Run(ctx); err != nil && m.logger != nil {
			m.logger.WithContext(ctx).WithError(err).Error("scheduled health check failed")
		}
		if m.lock != nil {
			if _, err := m.lock.ClearIfStale(ctx); err != nil && m.logger != nil {
				m.logger.WithContext(ctx).WithError(err).Error("scheduled stale-lock cleanup failed")
			}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("register health check schedule %q: %w", spec, err)
	}
	c.Start()
	return c, nil
}
