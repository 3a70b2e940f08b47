package contract

import (
	"context"
	"encoding/json"
	"fmt"

	jsonpath "github.com/PaesslerAG/jsonpath"

	"github.com/r3e-network/irgraph/graph"
	irerrors "github.com/r3e-network/irgraph/infrastructure/errors"
)

// FailureCategory is one of the six categories spec.md §4.6 names.
type FailureCategory string

const (
	CategoryCardinalityViolation      FailureCategory = "CARDINALITY_VIOLATION"
	CategoryMissingLabel              FailureCategory = "MISSING_LABEL"
	CategoryUndocumentedLabel         FailureCategory = "UNDOCUMENTED_LABEL"
	CategoryMissingRequiredProperty   FailureCategory = "MISSING_REQUIRED_PROPERTY"
	CategoryInvalidRelationshipProperty FailureCategory = "INVALID_RELATIONSHIP_PROPERTY"
	CategoryQueryAssertionFailed       FailureCategory = "QUERY_ASSERTION_FAILED"
)

// maxSamples bounds how many offending node/edge identifiers a Failure
// carries, per spec.md §4.6's "bounded in size" requirement.
const maxSamples = 20

// Failure is one structural violation found during validation.
type Failure struct {
	Category FailureCategory `json:"category"`
	Subject  string          `json:"subject"`
	Detail   string          `json:"detail"`
	Samples  []string        `json:"samples,omitempty"`
}

// Report is the structured result of a validation run.
type Report struct {
	SchemaVersion int       `json:"schema_version"`
	Failures      []Failure `json:"failures"`
}

// Passed reports whether the validated graph satisfies the contract.
func (r *Report) Passed() bool { return len(r.Failures) == 0 }

// Validator runs a Phase's checks against a graph.Queryer.
type Validator struct {
	phase *Phase
}

// NewValidator constructs a Validator bound to one contract phase.
func NewValidator(phase *Phase) *Validator {
	return &Validator{phase: phase}
}

// Validate implements migration.Validator: it runs the full contract and
// turns any failure into a CONTRACT_ASSERTION_FAILED error, so a calling
// migration's checkpoint/transaction runner can trigger its rollback path.
func (v *Validator) Validate(ctx context.Context, q graph.Queryer) error {
	report, err := v.Run(ctx, q)
	if err != nil {
		return err
	}
	if !report.Passed() {
		migrationID := fmt.Sprintf("schema_version_%d", v.phase.SchemaVersion)
		reportErr := fmt.Errorf("%d contract failure(s), first: %s (%s)",
			len(report.Failures), report.Failures[0].Subject, report.Failures[0].Category)
		return irerrors.ContractAssertionFailed(migrationID, reportErr).
			WithDetails("failures", report.Failures)
	}
	return nil
}

// Run executes every check in the phase and returns the full report
// regardless of pass/fail, for callers (health monitor, CLI) that want
// the structured detail rather than a single pass/fail error.
func (v *Validator) Run(ctx context.Context, q graph.Queryer) (*Report, error) {
	report := &Report{SchemaVersion: v.phase.SchemaVersion}

	presentLabels, err := v.distinctLabels(ctx, q)
	if err != nil {
		return nil, err
	}

	report.Failures = append(report.Failures, v.checkRequiredLabels(presentLabels)...)
	report.Failures = append(report.Failures, v.checkUndocumentedLabels(presentLabels)...)

	for _, lc := range v.phase.Labels {
		failures, err := v.checkLabel(ctx, q, lc)
		if err != nil {
			return nil, err
		}
		report.Failures = append(report.Failures, failures...)
	}

	for _, rc := range v.phase.Relationships {
		failures, err := v.checkRelationship(ctx, q, rc)
		if err != nil {
			return nil, err
		}
		report.Failures = append(report.Failures, failures...)
	}

	for _, query := range v.phase.Queries {
		failure, err := v.checkQuery(ctx, q, query)
		if err != nil {
			return nil, err
		}
		if failure != nil {
			report.Failures = append(report.Failures, *failure)
		}
	}

	return report, nil
}

func (v *Validator) distinctLabels(ctx context.Context, q graph.Queryer) (map[string]bool, error) {
	records, err := q.Execute(ctx, `SELECT DISTINCT label FROM ir_nodes`, nil)
	if err != nil {
		return nil, fmt.Errorf("list distinct labels: %w", err)
	}
	present := make(map[string]bool, len(records))
	for _, rec := range records {
		if label, ok := rec["label"].(string); ok {
			present[label] = true
		}
	}
	return present, nil
}

func (v *Validator) checkRequiredLabels(present map[string]bool) []Failure {
	var failures []Failure
	for _, label := range v.phase.RequiredLabels {
		if !present[label] {
			failures = append(failures, Failure{
				Category: CategoryMissingLabel, Subject: label,
				Detail: fmt.Sprintf("required label %q has no nodes", label),
			})
		}
	}
	return failures
}

func (v *Validator) checkUndocumentedLabels(present map[string]bool) []Failure {
	known := make(map[string]bool, len(v.phase.RequiredLabels)+len(v.phase.Labels))
	for _, label := range v.phase.RequiredLabels {
		known[label] = true
	}
	for _, lc := range v.phase.Labels {
		known[lc.Label] = true
	}

	var failures []Failure
	for label := range present {
		if !known[label] {
			failures = append(failures, Failure{
				Category: CategoryUndocumentedLabel, Subject: label,
				Detail: fmt.Sprintf("label %q is not declared in any contract", label),
			})
		}
	}
	return failures
}

func (v *Validator) checkLabel(ctx context.Context, q graph.Queryer, lc LabelContract) ([]Failure, error) {
	records, err := q.Execute(ctx, `SELECT id, properties FROM ir_nodes WHERE label = :label`, map[string]interface{}{"label": lc.Label})
	if err != nil {
		return nil, fmt.Errorf("list nodes for label %s: %w", lc.Label, err)
	}

	var failures []Failure
	var missingSamples, invalidSamples []string
	for _, rec := range records {
		id, _ := rec["id"].(string)
		props, err := decodeProperties(rec["properties"])
		if err != nil {
			return nil, fmt.Errorf("decode properties for %s: %w", id, err)
		}

		for _, required := range lc.RequiredProperties {
			if _, ok := props[required]; !ok {
				if len(missingSamples) < maxSamples {
					missingSamples = append(missingSamples, fmt.Sprintf("%s.%s", id, required))
				}
			}
		}

		for prop, allowed := range lc.EnumeratedProperties {
			value, ok := props[prop]
			if !ok {
				continue
			}
			if !containsValue(allowed, fmt.Sprintf("%v", value)) {
				if len(invalidSamples) < maxSamples {
					invalidSamples = append(invalidSamples, fmt.Sprintf("%s.%s=%v", id, prop, value))
				}
			}
		}
	}

	if len(missingSamples) > 0 {
		failures = append(failures, Failure{
			Category: CategoryMissingRequiredProperty, Subject: lc.Label,
			Detail:  fmt.Sprintf("%d node(s) of label %s missing a required property", len(missingSamples), lc.Label),
			Samples: missingSamples,
		})
	}
	if len(invalidSamples) > 0 {
		failures = append(failures, Failure{
			Category: CategoryInvalidRelationshipProperty, Subject: lc.Label,
			Detail:  fmt.Sprintf("%d node(s) of label %s have an out-of-enum property value", len(invalidSamples), lc.Label),
			Samples: invalidSamples,
		})
	}
	return failures, nil
}

func (v *Validator) checkRelationship(ctx context.Context, q graph.Queryer, rc RelationshipContract) ([]Failure, error) {
	if rc.Cardinality == nil {
		return nil, nil
	}
	records, err := q.Execute(ctx, `
		SELECT n.id AS from_id, COUNT(e.to_id) AS child_count
		FROM ir_nodes n
		LEFT JOIN ir_edges e ON e.from_id = n.id AND e.rel_type = :rel_type
		WHERE n.label = :from_label
		GROUP BY n.id
	`, map[string]interface{}{"rel_type": rc.RelType, "from_label": rc.FromLabel})
	if err != nil {
		return nil, fmt.Errorf("list relationship cardinality for %s: %w", rc.RelType, err)
	}

	var samples []string
	for _, rec := range records {
		count, ok := asInt(rec["child_count"])
		if !ok {
			continue
		}
		if count < rc.Cardinality.Lower || (rc.Cardinality.Upper != nil && count > *rc.Cardinality.Upper) {
			if len(samples) < maxSamples {
				fromID, _ := rec["from_id"].(string)
				samples = append(samples, fmt.Sprintf("%s (count=%d)", fromID, count))
			}
		}
	}

	if len(samples) == 0 {
		return nil, nil
	}
	return []Failure{{
		Category: CategoryCardinalityViolation, Subject: rc.RelType,
		Detail:  fmt.Sprintf("%d %s node(s) violate %s cardinality bound", len(samples), rc.FromLabel, rc.RelType),
		Samples: samples,
	}}, nil
}

func (v *Validator) checkQuery(ctx context.Context, q graph.Queryer, query Query) (*Failure, error) {
	records, err := q.Execute(ctx, `SELECT properties FROM ir_nodes WHERE label = :label`, map[string]interface{}{"label": query.Label})
	if err != nil {
		return nil, fmt.Errorf("run query %s: %w", query.Name, err)
	}

	docs := make([]interface{}, 0, len(records))
	for _, rec := range records {
		props, err := decodeProperties(rec["properties"])
		if err != nil {
			return nil, fmt.Errorf("decode properties for query %s: %w", query.Name, err)
		}
		docs = append(docs, map[string]interface{}(props))
	}

	result, err := jsonpath.Get(query.Path, docs)
	if err != nil {
		// jsonpath returns an error on "no results" for filter expressions;
		// treat that the same as a zero-result match rather than a hard error.
		result = []interface{}{}
	}

	count := jsonpathResultCount(result)
	minResults := query.MinResults
	if minResults == 0 {
		minResults = 1
	}
	if count >= minResults {
		return nil, nil
	}
	return &Failure{
		Category: CategoryQueryAssertionFailed, Subject: query.Name,
		Detail: fmt.Sprintf("query %q matched %d result(s), expected at least %d", query.Name, count, minResults),
	}, nil
}

func jsonpathResultCount(result interface{}) int {
	switch v := result.(type) {
	case []interface{}:
		return len(v)
	case nil:
		return 0
	default:
		return 1
	}
}

func containsValue(allowed []string, value string) bool {
	for _, a := range allowed {
		if a == value {
			return true
		}
	}
	return false
}

func decodeProperties(raw interface{}) (map[string]interface{}, error) {
	switch v := raw.(type) {
	case nil:
		return map[string]interface{}{}, nil
	case []byte:
		var props map[string]interface{}
		if err := json.Unmarshal(v, &props); err != nil {
			return nil, err
		}
		return props, nil
	case string:
		var props map[string]interface{}
		if err := json.Unmarshal([]byte(v), &props); err != nil {
			return nil, err
		}
		return props, nil
	case map[string]interface{}:
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported properties scan type %T", raw)
	}
}

func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int64:
		return int(n), true
	case int32:
		return int(n), true
	case int:
		return n, true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
