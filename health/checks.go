package health

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/r3e-network/irgraph/graph"
)

const maxSamples = 20

// ownedChild describes one owned-hierarchy relationship the IR model
// establishes (spec.md §3): every node of ChildLabel must be reachable via
// ParentRelType from some parent, or it is orphaned.
type ownedChild struct {
	ChildLabel    string
	ParentRelType string
}

var ownedChildren = []ownedChild{
	{ChildLabel: "Entity", ParentRelType: "HAS_ENTITY"},
	{ChildLabel: "Attribute", ParentRelType: "HAS_ATTRIBUTE"},
	{ChildLabel: "Endpoint", ParentRelType: "HAS_ENDPOINT"},
	{ChildLabel: "APIParameter", ParentRelType: "HAS_PARAMETER"},
	{ChildLabel: "APISchema", ParentRelType: "HAS_SCHEMA"},
	{ChildLabel: "APISchemaField", ParentRelType: "HAS_FIELD"},
	{ChildLabel: "Flow", ParentRelType: "HAS_FLOW"},
	{ChildLabel: "Step", ParentRelType: "HAS_STEP"},
	{ChildLabel: "Invariant", ParentRelType: "HAS_INVARIANT"},
	{ChildLabel: "ValidationRule", ParentRelType: "HAS_RULE"},
	{ChildLabel: "DatabaseConfig", ParentRelType: "HAS_DATABASE"},
	{ChildLabel: "ContainerService", ParentRelType: "HAS_SERVICE"},
	{ChildLabel: "ObservabilityConfig", ParentRelType: "HAS_OBSERVABILITY"},
	{ChildLabel: "SeedEntityIR", ParentRelType: "HAS_SEED_ENTITY"},
	{ChildLabel: "EndpointTestSuite", ParentRelType: "HAS_ENDPOINT_SUITE"},
	{ChildLabel: "FlowTestSuite", ParentRelType: "HAS_FLOW_SUITE"},
	{ChildLabel: "TestScenarioIR", ParentRelType: "HAS_SCENARIO"},
}

// requiredProperty mirrors one of the contract's per-label required
// properties, kept local to avoid a health->contract import for what is
// otherwise a cheap standalone check. Order is fixed (not a map) so the
// query sequence stays deterministic across runs.
type requiredProperty struct {
	Label      string
	Properties []string
}

var requiredPropertiesByLabel = []requiredProperty{
	{Label: "Entity", Properties: []string{"name"}},
	{Label: "Attribute", Properties: []string{"name", "data_type"}},
	{Label: "Endpoint", Properties: []string{"path", "method"}},
}

var relatesToTypes = map[string]bool{"one_to_one": true, "one_to_many": true, "many_to_many": true}

func (m *Monitor) checkOrphanNodes(ctx context.Context) ([]Finding, error) {
	var findings []Finding
	for _, oc := range ownedChildren {
		records, err := m.client.Execute(ctx, `
			SELECT id FROM ir_nodes n
			WHERE label = :label
			  AND NOT EXISTS (SELECT 1 FROM ir_edges e WHERE e.to_id = n.id AND e.rel_type = :rel_type)
		`, map[string]interface{}{"label": oc.ChildLabel, "rel_type": oc.ParentRelType})
		if err != nil {
			return nil, fmt.Errorf("check orphans for %s: %w", oc.ChildLabel, err)
		}
		if len(records) == 0 {
			continue
		}
		findings = append(findings, Finding{
			Check: "orphan_nodes", Severity: SeverityWarning,
			Detail:  fmt.Sprintf("%d %s node(s) have no %s parent", len(records), oc.ChildLabel, oc.ParentRelType),
			Samples: sampleIDs(records),
		})
	}
	return findings, nil
}

func (m *Monitor) checkMissingRequiredProperties(ctx context.Context) ([]Finding, error) {
	var findings []Finding
	for _, rp := range requiredPropertiesByLabel {
		records, err := m.client.Execute(ctx, `SELECT id, properties FROM ir_nodes WHERE label = :label`, map[string]interface{}{"label": rp.Label})
		if err != nil {
			return nil, fmt.Errorf("check required properties for %s: %w", rp.Label, err)
		}

		var samples []string
		for _, rec := range records {
			props, err := decodeProperties(rec["properties"])
			if err != nil {
				return nil, err
			}
			for _, r := range rp.Properties {
				if _, ok := props[r]; !ok {
					if len(samples) < maxSamples {
						id, _ := rec["id"].(string)
						samples = append(samples, fmt.Sprintf("%s.%s", id, r))
					}
					break
				}
			}
		}
		if len(samples) > 0 {
			findings = append(findings, Finding{
				Check: "missing_required_properties", Severity: SeverityCritical,
				Detail:  fmt.Sprintf("%d %s node(s) missing a required property", len(samples), rp.Label),
				Samples: samples,
			})
		}
	}
	return findings, nil
}

func (m *Monitor) checkHighDegreeNodes(ctx context.Context) ([]Finding, error) {
	records, err := m.client.Execute(ctx, `
		SELECT from_id, COUNT(*) AS degree FROM ir_edges GROUP BY from_id HAVING COUNT(*) > :threshold
	`, map[string]interface{}{"threshold": m.config.HighDegreeThreshold})
	if err != nil {
		return nil, fmt.Errorf("check high-degree nodes: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	var samples []string
	for _, rec := range records {
		if len(samples) >= maxSamples {
			break
		}
		id, _ := rec["from_id"].(string)
		degree, _ := asInt(rec["degree"])
		samples = append(samples, fmt.Sprintf("%s (degree=%d)", id, degree))
	}
	return []Finding{{
		Check: "high_degree_nodes", Severity: SeverityWarning,
		Detail:  fmt.Sprintf("%d node(s) exceed the high-degree threshold of %d", len(records), m.config.HighDegreeThreshold),
		Samples: samples,
	}}, nil
}

func (m *Monitor) checkDuplicateUniqueKeys(ctx context.Context) ([]Finding, error) {
	records, err := m.client.Execute(ctx, `
		SELECT properties->>'method' AS method, properties->>'path' AS path, COUNT(*) AS n
		FROM ir_nodes
		WHERE label = 'Endpoint'
		GROUP BY properties->>'method', properties->>'path'
		HAVING COUNT(*) > 1
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("check duplicate endpoint keys: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	var samples []string
	for _, rec := range records {
		if len(samples) >= maxSamples {
			break
		}
		method, _ := rec["method"].(string)
		path, _ := rec["path"].(string)
		samples = append(samples, fmt.Sprintf("%s %s", method, path))
	}
	return []Finding{{
		Check: "duplicate_unique_keys", Severity: SeverityCritical,
		Detail:  fmt.Sprintf("%d (method, path) key(s) collide across distinct Endpoint nodes", len(records)),
		Samples: samples,
	}}, nil
}

func (m *Monitor) checkInvalidRelationshipPayloads(ctx context.Context) ([]Finding, error) {
	records, err := m.client.Execute(ctx, `
		SELECT from_id, to_id, properties FROM ir_edges WHERE rel_type = 'RELATES_TO'
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("check RELATES_TO payloads: %w", err)
	}

	var samples []string
	for _, rec := range records {
		raw, err := decodeProperties(rec["properties"])
		if err != nil {
			return nil, err
		}
		relType, _ := raw["type"].(string)
		if !relatesToTypes[relType] {
			if len(samples) < maxSamples {
				fromID, _ := rec["from_id"].(string)
				toID, _ := rec["to_id"].(string)
				samples = append(samples, fmt.Sprintf("%s->%s type=%q", fromID, toID, relType))
			}
		}
	}
	if len(samples) == 0 {
		return nil, nil
	}
	return []Finding{{
		Check: "invalid_relationship_payloads", Severity: SeverityCritical,
		Detail:  fmt.Sprintf("%d RELATES_TO edge(s) carry a type outside {one_to_one, one_to_many, many_to_many}", len(samples)),
		Samples: samples,
	}}, nil
}

func (m *Monitor) checkUndocumentedLabels(ctx context.Context) ([]Finding, error) {
	if len(m.config.KnownLabels) == 0 {
		return nil, nil
	}
	known := make(map[string]bool, len(m.config.KnownLabels))
	for _, label := range m.config.KnownLabels {
		known[label] = true
	}

	records, err := m.client.Execute(ctx, `SELECT DISTINCT label FROM ir_nodes`, nil)
	if err != nil {
		return nil, fmt.Errorf("list distinct labels: %w", err)
	}

	var samples []string
	for _, rec := range records {
		label, _ := rec["label"].(string)
		if !known[label] && len(samples) < maxSamples {
			samples = append(samples, label)
		}
	}
	if len(samples) == 0 {
		return nil, nil
	}
	return []Finding{{
		Check: "undocumented_labels", Severity: SeverityWarning,
		Detail:  fmt.Sprintf("%d label(s) present with no contract entry", len(samples)),
		Samples: samples,
	}}, nil
}

func sampleIDs(records []graph.Record) []string {
	ids := make([]string, 0, maxSamples)
	for _, rec := range records {
		if len(ids) >= maxSamples {
			break
		}
		if id, ok := rec["id"].(string); ok {
			ids = append(ids, id)
		}
	}
	return ids
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
