// Package contract implements the Graph Shape Contract Validator
// (spec.md §4.6): declarative post-migration and on-demand structural
// validation of the property graph against a per-schema-version YAML
// document.
package contract

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"gopkg.in/yaml.v3"
)

// CardinalityBound is a [lower, upper] bound on how many children of a
// relationship a node may have; a nil Upper means unbounded.
type CardinalityBound struct {
	Lower int  `yaml:"lower"`
	Upper *int `yaml:"upper"`
}

// LabelContract describes the expected shape for one node label.
type LabelContract struct {
	Label               string              `yaml:"label"`
	RequiredProperties  []string            `yaml:"required_properties"`
	EnumeratedProperties map[string][]string `yaml:"enumerated_properties"`
}

// RelationshipContract describes the expected shape for one relationship
// type, keyed by the label it originates from.
type RelationshipContract struct {
	RelType          string                      `yaml:"rel_type"`
	FromLabel        string                      `yaml:"from_label"`
	ToLabel          string                      `yaml:"to_label"`
	Cardinality      *CardinalityBound           `yaml:"cardinality"`
	EnumeratedProps  map[string][]string         `yaml:"enumerated_properties"`
}

// Query is a named JSONPath assertion run against the matched node set's
// property documents; a query must evaluate to at least one result (or
// at least MinResults, when set) for the phase to pass.
type Query struct {
	Name       string `yaml:"name"`
	Label      string `yaml:"label"`
	Path       string `yaml:"path"`
	MinResults int    `yaml:"min_results"`
}

// Phase is one schema version's contract document (spec.md §4.6).
type Phase struct {
	SchemaVersion  int                     `yaml:"schema_version"`
	RequiredLabels []string                `yaml:"required_labels"`
	Labels         []LabelContract         `yaml:"labels"`
	Relationships  []RelationshipContract  `yaml:"relationships"`
	Queries        []Query                 `yaml:"queries"`
}

//go:embed phases/*.yaml
var phaseFiles embed.FS

// LoadPhase parses the contract document for schemaVersion from the
// embedded phases/ directory.
func LoadPhase(schemaVersion int) (*Phase, error) {
	entries, err := fs.ReadDir(phaseFiles, "phases")
	if err != nil {
		return nil, fmt.Errorf("read embedded phases: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		raw, err := phaseFiles.ReadFile("phases/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read phase file %s: %w", entry.Name(), err)
		}
		var phase Phase
		if err := yaml.Unmarshal(raw, &phase); err != nil {
			return nil, fmt.Errorf("parse phase file %s: %w", entry.Name(), err)
		}
		if phase.SchemaVersion == schemaVersion {
			return &phase, nil
		}
	}
	return nil, fmt.Errorf("no contract phase registered for schema version %d", schemaVersion)
}

// ParsePhase parses a single contract document from raw YAML bytes,
// bypassing the embedded phases/ directory. Used by tests and by callers
// that load contracts from an external source.
func ParsePhase(raw []byte) (*Phase, error) {
	var phase Phase
	if err := yaml.Unmarshal(raw, &phase); err != nil {
		return nil, fmt.Errorf("parse phase: %w", err)
	}
	return &phase, nil
}
