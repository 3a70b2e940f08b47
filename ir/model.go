// Package ir defines the typed Intermediate Representation the graph
// store persists (spec.md §3): an ApplicationIR root and six submodels,
// each owning a tree of leaf nodes.
package ir

import "time"

// Meta is the temporal stamp every persisted node carries (spec.md §4.2).
type Meta struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	UpdatedBy string    `json:"updated_by"`
}

// ApplicationIR is the IR root, one per application, keyed by a stable
// app_id (spec.md §3).
type ApplicationIR struct {
	AppID    string `json:"app_id"`
	Name     string `json:"name"`
	Version  int    `json:"version"`
	SpecHash string `json:"spec_hash"`
	Meta

	Domain         *DomainModelIR         `json:"domain,omitempty"`
	API            *APIModelIR            `json:"api,omitempty"`
	Behavior       *BehaviorModelIR       `json:"behavior,omitempty"`
	Validation     *ValidationModelIR     `json:"validation,omitempty"`
	Infrastructure *InfrastructureModelIR `json:"infrastructure,omitempty"`
	Tests          *TestsModelIR          `json:"tests,omitempty"`
}

// DomainModelIR owns Entity children.
type DomainModelIR struct {
	ID       string   `json:"id"`
	AppID    string   `json:"app_id"`
	Entities []Entity `json:"entities"`
}

// Entity is a domain entity; every Entity must own at least one Attribute
// (spec.md §3 invariant).
type Entity struct {
	EntityID        string      `json:"entity_id"`
	Name            string      `json:"name"`
	Description     string      `json:"description"`
	IsAggregateRoot bool        `json:"is_aggregate_root"`
	Attributes      []Attribute `json:"attributes"`
	Relations       []EntityRelation `json:"relations"`
}

// Attribute is an Entity's field. (entity_id, name) is unique.
type Attribute struct {
	AttributeID  string                 `json:"attribute_id"`
	Name         string                 `json:"name"`
	DataType     string                 `json:"data_type"`
	IsPrimaryKey bool                   `json:"is_primary_key"`
	IsNullable   bool                   `json:"is_nullable"`
	IsUnique     bool                   `json:"is_unique"`
	DefaultValue interface{}            `json:"default_value,omitempty"`
	Constraints  map[string]interface{} `json:"constraints,omitempty"`
}

// RelationType enumerates RELATES_TO.type (spec.md global invariant 5).
type RelationType string

const (
	RelationOneToOne   RelationType = "one_to_one"
	RelationOneToMany  RelationType = "one_to_many"
	RelationManyToMany RelationType = "many_to_many"
)

// EntityRelation is Entity -[:RELATES_TO]-> Entity, a merged cross-entity
// reference edge, not a subgraph-replace child.
type EntityRelation struct {
	ToEntityID    string       `json:"to_entity_id"`
	Type          RelationType `json:"type"`
	FieldName     string       `json:"field_name"`
	BackPopulates string       `json:"back_populates,omitempty"`
}

// APIModelIR owns Endpoint and APISchema children.
type APIModelIR struct {
	ID        string      `json:"id"`
	AppID     string      `json:"app_id"`
	Endpoints []Endpoint  `json:"endpoints"`
	Schemas   []APISchema `json:"schemas"`
}

// HTTPMethod enumerates Endpoint.method.
type HTTPMethod string

const (
	MethodGet    HTTPMethod = "GET"
	MethodPost   HTTPMethod = "POST"
	MethodPut    HTTPMethod = "PUT"
	MethodPatch  HTTPMethod = "PATCH"
	MethodDelete HTTPMethod = "DELETE"
)

// Endpoint is an API surface entry. (api_model_id, path, method) is unique.
type Endpoint struct {
	EndpointID      string          `json:"endpoint_id"`
	Path            string          `json:"path"`
	Method          HTTPMethod      `json:"method"`
	OperationID     string          `json:"operation_id"`
	AuthRequired    bool            `json:"auth_required"`
	Inferred        bool            `json:"inferred"`
	InferenceSource string          `json:"inference_source,omitempty"`
	Parameters      []APIParameter  `json:"parameters"`
	RequestSchema   string          `json:"request_schema,omitempty"`
	ResponseSchema  string          `json:"response_schema,omitempty"`
	TargetsEntities []EntityTarget  `json:"targets_entities,omitempty"`
	UsesFields      []string        `json:"uses_fields,omitempty"`
}

// EntityTarget is Endpoint -[:TARGETS_ENTITY {confidence, inferred}]-> Entity.
type EntityTarget struct {
	EntityID   string  `json:"entity_id"`
	Confidence float64 `json:"confidence"`
	Inferred   bool    `json:"inferred"`
}

// ParameterLocation enumerates APIParameter.location.
type ParameterLocation string

const (
	LocationPath   ParameterLocation = "path"
	LocationQuery  ParameterLocation = "query"
	LocationHeader ParameterLocation = "header"
	LocationBody   ParameterLocation = "body"
)

// APIParameter describes one Endpoint parameter. (endpoint_id, name) is unique.
type APIParameter struct {
	Name     string            `json:"name"`
	Location ParameterLocation `json:"location"`
	DataType string            `json:"data_type"`
	Required bool              `json:"required"`
}

// SchemaSource enumerates APISchema.source.
type SchemaSource string

const (
	SourceOpenAPI     SchemaSource = "openapi"
	SourceInferred    SchemaSource = "inferred"
	SourceCRUDPattern SchemaSource = "crud_pattern"
	SourceManual      SchemaSource = "manual"
)

// APISchema is a request/response schema. (api_model_id, name) is unique.
type APISchema struct {
	Name           string                 `json:"name"`
	Source         SchemaSource           `json:"source"`
	SourceMetadata map[string]interface{} `json:"source_metadata,omitempty"`
	Fields         []APISchemaField       `json:"fields"`
}

// APISchemaField is one field of an APISchema. (schema_id, name) is unique.
type APISchemaField struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

// BehaviorModelIR owns Flow and Invariant children.
type BehaviorModelIR struct {
	ID         string      `json:"id"`
	AppID      string      `json:"app_id"`
	Flows      []Flow      `json:"flows"`
	Invariants []Invariant `json:"invariants"`
}

// Flow is a behavior flow composed of ordered Steps.
type Flow struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Trigger     string `json:"trigger"`
	Description string `json:"description"`
	Steps       []Step `json:"steps"`
}

// Step is one Flow step. Order values must be unique and contiguous from 1.
type Step struct {
	Order        int    `json:"order"`
	Action       string `json:"action"`
	TargetEntity string `json:"target_entity"`
}

// EnforcementLevel enumerates Invariant.enforcement_level.
type EnforcementLevel string

const (
	EnforcementStrict   EnforcementLevel = "strict"
	EnforcementAdvisory EnforcementLevel = "advisory"
)

// Invariant is a cross-cutting business rule.
type Invariant struct {
	Entity           string           `json:"entity"`
	Description      string           `json:"description"`
	Expression       string           `json:"expression"`
	EnforcementLevel EnforcementLevel `json:"enforcement_level"`
}

// ValidationModelIR owns ValidationRule children.
type ValidationModelIR struct {
	ID    string           `json:"id"`
	AppID string           `json:"app_id"`
	Rules []ValidationRule `json:"rules"`
}

// ValidationRule is a field-level or entity-level validation rule.
type ValidationRule struct {
	Entity              string                 `json:"entity"`
	Attribute           string                 `json:"attribute"`
	Type                string                 `json:"type"`
	Condition           string                 `json:"condition"`
	Severity            string                 `json:"severity"`
	EnforcementType     string                 `json:"enforcement_type"`
	EnforcementStrategy *EnforcementStrategy   `json:"enforcement_strategy,omitempty"`
}

// EnforcementStrategy describes how a ValidationRule is enforced.
type EnforcementStrategy struct {
	Type           string   `json:"type"`
	Implementation string   `json:"implementation"`
	AppliedAt      []string `json:"applied_at"`
}

// InfrastructureModelIR owns database, container and observability descriptors.
type InfrastructureModelIR struct {
	ID             string              `json:"id"`
	AppID          string              `json:"app_id"`
	Databases      []DatabaseConfig    `json:"databases"`
	Services       []ContainerService  `json:"services"`
	Observability  []ObservabilityConfig `json:"observability"`
}

// DatabaseConfig describes one provisioned database.
type DatabaseConfig struct {
	Name    string                 `json:"name"`
	Engine  string                 `json:"engine"`
	Options map[string]interface{} `json:"options,omitempty"`
}

// ContainerService describes one deployable service. DEPENDS_ON between
// services is a merged cross-reference, not a subgraph-replace child.
type ContainerService struct {
	Name      string   `json:"name"`
	Image     string   `json:"image"`
	Ports     []int    `json:"ports,omitempty"`
	DependsOn []string `json:"depends_on,omitempty"`
}

// ObservabilityConfig describes logging/metrics/tracing wiring.
type ObservabilityConfig struct {
	Name    string                 `json:"name"`
	Kind    string                 `json:"kind"`
	Options map[string]interface{} `json:"options,omitempty"`
}

// TestsModelIR owns seed data and test suite children.
type TestsModelIR struct {
	ID             string              `json:"id"`
	AppID          string              `json:"app_id"`
	SeedEntities   []SeedEntityIR      `json:"seed_entities"`
	EndpointSuites []EndpointTestSuite `json:"endpoint_suites"`
	FlowSuites     []FlowTestSuite     `json:"flow_suites"`
}

// SeedEntityIR describes fixture data for one entity. DEPENDS_ON_SEED
// edges between SeedEntityIR rows must be acyclic.
type SeedEntityIR struct {
	EntityName   string   `json:"entity_name"`
	TableName    string   `json:"table_name"`
	Count        int      `json:"count"`
	Dependencies []string `json:"dependencies,omitempty"`
}

// EndpointTestSuite groups TestScenarioIR rows for one endpoint.
type EndpointTestSuite struct {
	EndpointPath string             `json:"endpoint_path"`
	HTTPMethod   string             `json:"http_method"`
	OperationID  string             `json:"operation_id"`
	Scenarios    []TestScenarioIR   `json:"scenarios"`
}

// FlowTestSuite groups TestScenarioIR rows for one behavior flow.
type FlowTestSuite struct {
	Name      string           `json:"name"`
	Scenarios []TestScenarioIR `json:"scenarios"`
}

// TestScenarioIR is one concrete request/response test case.
type TestScenarioIR struct {
	ScenarioID         string                 `json:"scenario_id"`
	Name               string                 `json:"name"`
	EndpointPath       string                 `json:"endpoint_path"`
	HTTPMethod         string                 `json:"http_method"`
	TestType           string                 `json:"test_type"`
	Priority           string                 `json:"priority"`
	PathParams         map[string]interface{} `json:"path_params,omitempty"`
	QueryParams        map[string]interface{} `json:"query_params,omitempty"`
	Headers            map[string]interface{} `json:"headers,omitempty"`
	RequestBody        map[string]interface{} `json:"request_body,omitempty"`
	ExpectedOutcome    string                 `json:"expected_outcome"`
	ExpectedStatusCode int                    `json:"expected_status_code"`
	RequiresAuth       bool                   `json:"requires_auth"`
	SourceEndpointID   string                 `json:"source_endpoint_id,omitempty"`
}

// TestExecutionIR records one execution of a TestScenarioIR. It is
// append-only (spec.md §3, ownership semantics) and first-class in this
// implementation, resolving spec.md §9's open question in favor of
// persisting execution history rather than treating it as an unstored
// interface.
type TestExecutionIR struct {
	ExecutionID string    `json:"execution_id"`
	ScenarioID  string     `json:"scenario_id"`
	Status      string     `json:"status"`
	DurationMS  int64      `json:"duration_ms"`
	Output      string     `json:"output,omitempty"`
	ExecutedAt  time.Time  `json:"executed_at"`
}

// ChildID builds a deterministic child identifier from its parent and
// semantic key, per spec.md global invariant 4:
// {parent_id}|{component_type}|{identifier[|index]}.
func ChildID(parentID, componentType string, identifier ...string) string {
	id := parentID + "|" + componentType
	for _, part := range identifier {
		id += "|" + part
	}
	return id
}
