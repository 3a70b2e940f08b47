// Package loader implements the Full IR Loader (spec.md §4.8):
// reconstructing a complete, typed ApplicationIR tree from the property
// graph in a single breadth-covering query pair, guarded by a cache.
package loader

import (
	"context"
	"fmt"
	"sort"

	"github.com/r3e-network/irgraph/graph"
	irerrors "github.com/r3e-network/irgraph/infrastructure/errors"
	"github.com/r3e-network/irgraph/infrastructure/logging"
	"github.com/r3e-network/irgraph/ir"
	"github.com/r3e-network/irgraph/loader/cache"
)

// DefaultCacheTTL matches LOADER_CACHE_TTL_SECONDS' spec-mandated default
// of one hour (spec.md §6).
const DefaultCacheTTL = 3600

// Loader assembles an ApplicationIR tree on demand, guarded by a Snapshot
// cache (spec.md §4.8).
type Loader struct {
	client *graph.Client
	cache  cache.Snapshot
	logger *logging.Logger
}

// New constructs a Loader. snapshot may be nil to disable caching entirely.
func New(client *graph.Client, snapshot cache.Snapshot, logger *logging.Logger) *Loader {
	return &Loader{client: client, cache: snapshot, logger: logger}
}

// Load reconstructs the complete ApplicationIR for appID. It guarantees a
// single engine snapshot at query time: the node and edge reads that cover
// appID's whole subtree are each issued as one statement, so no concurrent
// save_application_ir can be observed half-applied (spec.md §4.8).
//
// It returns irerrors.NotFound if the ApplicationIR root does not exist,
// and irerrors.InconsistentSnapshot if the reconstructed tree violates an
// invariant the graph should never have allowed in the first place (e.g.
// duplicate endpoint keys) — a signal the health monitor should also be
// run, not something callers should retry past.
func (l *Loader) Load(ctx context.Context, appID string) (*ir.ApplicationIR, error) {
	if l.cache != nil {
		if app, ok := l.cache.Get(ctx, appID); ok {
			return app, nil
		}
	}

	g, err := l.fetchSubgraph(ctx, appID)
	if err != nil {
		return nil, err
	}

	app, err := assembleApplication(appID, g)
	if err != nil {
		return nil, err
	}
	if err := checkConsistency(appID, app); err != nil {
		return nil, err
	}

	if l.cache != nil {
		l.cache.Set(ctx, appID, app)
	}
	if l.logger != nil {
		l.logger.WithContext(ctx).WithFields(map[string]interface{}{
			"app_id": appID, "nodes": len(g.nodes),
		}).Info("loaded application ir")
	}
	return app, nil
}

// Invalidate evicts appID's cached snapshot, called by callers right after
// a successful save_application_ir so the next Load re-reads the graph.
func (l *Loader) Invalidate(ctx context.Context, appID string) {
	if l.cache != nil {
		l.cache.Invalidate(ctx, appID)
	}
}

// subgraph indexes every node and edge reachable from an ApplicationIR
// root by prefix, grounded on ir.ChildID's "{parent}|{type}|..." convention:
// every descendant's id is prefixed by its ancestor chain starting at
// app_id, so a single LIKE-prefix query covers the whole tree.
type subgraph struct {
	nodes map[string]node
	edges map[string][]edge // keyed by fromID + "\x00" + relType
}

type node struct {
	label      string
	properties map[string]interface{}
}

type edge struct {
	toID       string
	properties map[string]interface{}
}

func (g *subgraph) node(id string) (node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

func (g *subgraph) children(fromID, relType string) []edge {
	return g.edges[fromID+"\x00"+relType]
}

func (l *Loader) fetchSubgraph(ctx context.Context, appID string) (*subgraph, error) {
	prefix := appID + "|%"

	nodeRows, err := l.client.Execute(ctx, `
		SELECT id, label, properties FROM ir_nodes WHERE id = :app_id OR id LIKE :prefix
	`, map[string]interface{}{"app_id": appID, "prefix": prefix})
	if err != nil {
		return nil, fmt.Errorf("load subgraph nodes: %w", err)
	}

	g := &subgraph{nodes: make(map[string]node, len(nodeRows)), edges: make(map[string][]edge)}
	for _, rec := range nodeRows {
		id, _ := rec["id"].(string)
		label, _ := rec["label"].(string)
		props, err := decodeProperties(rec["properties"])
		if err != nil {
			return nil, irerrors.InconsistentSnapshot(appID, fmt.Sprintf("decode properties for %s: %v", id, err))
		}
		g.nodes[id] = node{label: label, properties: props}
	}

	if _, ok := g.nodes[appID]; !ok {
		return nil, irerrors.NotFound(appID)
	}

	edgeRows, err := l.client.Execute(ctx, `
		SELECT rel_type, from_id, to_id, properties FROM ir_edges
		WHERE from_id = :app_id OR from_id LIKE :prefix OR to_id = :app_id OR to_id LIKE :prefix
	`, map[string]interface{}{"app_id": appID, "prefix": prefix})
	if err != nil {
		return nil, fmt.Errorf("load subgraph edges: %w", err)
	}
	for _, rec := range edgeRows {
		relType, _ := rec["rel_type"].(string)
		fromID, _ := rec["from_id"].(string)
		toID, _ := rec["to_id"].(string)
		props, err := decodeProperties(rec["properties"])
		if err != nil {
			return nil, irerrors.InconsistentSnapshot(appID, fmt.Sprintf("decode edge properties %s->%s: %v", fromID, toID, err))
		}
		key := fromID + "\x00" + relType
		g.edges[key] = append(g.edges[key], edge{toID: toID, properties: props})
	}

	return g, nil
}

// assembleApplication reconstructs the typed ApplicationIR tree from the
// indexed subgraph, mirroring in reverse what ir.ApplicationRepository and
// the six submodel repositories wrote (spec.md §4.5): each submodel's
// presence is detected by whether its deterministic root id exists, a
// missing HAS_TESTS_MODEL edge (no Tests root) meaning the submodel is
// simply absent rather than an error.
func assembleApplication(appID string, g *subgraph) (*ir.ApplicationIR, error) {
	root := g.nodes[appID]
	app := &ir.ApplicationIR{
		AppID:    appID,
		Name:     propString(root.properties, "name"),
		Version:  propInt(root.properties, "version"),
		SpecHash: propString(root.properties, "spec_hash"),
	}

	if _, ok := g.node(ir.ChildID(appID, ir.LabelDomainModel)); ok {
		app.Domain = assembleDomain(appID, g)
	}
	if _, ok := g.node(ir.ChildID(appID, ir.LabelAPIModel)); ok {
		app.API = assembleAPI(appID, g)
	}
	if _, ok := g.node(ir.ChildID(appID, ir.LabelBehaviorModel)); ok {
		app.Behavior = assembleBehavior(appID, g)
	}
	if _, ok := g.node(ir.ChildID(appID, ir.LabelValidationModel)); ok {
		app.Validation = assembleValidation(appID, g)
	}
	if _, ok := g.node(ir.ChildID(appID, ir.LabelInfrastructureModel)); ok {
		app.Infrastructure = assembleInfrastructure(appID, g)
	}
	if _, ok := g.node(ir.ChildID(appID, ir.LabelTestsModel)); ok {
		app.Tests = assembleTests(appID, g)
	}

	return app, nil
}

func assembleDomain(appID string, g *subgraph) *ir.DomainModelIR {
	domainID := ir.ChildID(appID, ir.LabelDomainModel)
	model := &ir.DomainModelIR{ID: domainID, AppID: appID}

	for _, child := range g.children(domainID, ir.RelHasEntity) {
		n, ok := g.node(child.toID)
		if !ok {
			continue
		}
		entity := ir.Entity{
			EntityID:        child.toID,
			Name:            propString(n.properties, "name"),
			Description:     propString(n.properties, "description"),
			IsAggregateRoot: propBool(n.properties, "is_aggregate_root"),
		}
		for _, a := range g.children(child.toID, ir.RelHasAttribute) {
			an, ok := g.node(a.toID)
			if !ok {
				continue
			}
			entity.Attributes = append(entity.Attributes, ir.Attribute{
				AttributeID:  a.toID,
				Name:         propString(an.properties, "name"),
				DataType:     propString(an.properties, "data_type"),
				IsPrimaryKey: propBool(an.properties, "is_primary_key"),
				IsNullable:   propBool(an.properties, "is_nullable"),
				IsUnique:     propBool(an.properties, "is_unique"),
				DefaultValue: an.properties["default_value"],
				Constraints:  propMap(an.properties, "constraints"),
			})
		}
		for _, rel := range g.children(child.toID, ir.RelRelatesTo) {
			toName := ""
			if toNode, ok := g.node(rel.toID); ok {
				toName = propString(toNode.properties, "name")
			}
			entity.Relations = append(entity.Relations, ir.EntityRelation{
				ToEntityID:    toName,
				Type:          ir.RelationType(propString(rel.properties, "type")),
				FieldName:     propString(rel.properties, "field_name"),
				BackPopulates: propString(rel.properties, "back_populates"),
			})
		}
		model.Entities = append(model.Entities, entity)
	}
	return model
}

func assembleAPI(appID string, g *subgraph) *ir.APIModelIR {
	apiID := ir.ChildID(appID, ir.LabelAPIModel)
	model := &ir.APIModelIR{ID: apiID, AppID: appID}

	for _, s := range g.children(apiID, ir.RelHasSchema) {
		sn, ok := g.node(s.toID)
		if !ok {
			continue
		}
		schema := ir.APISchema{
			Name:           propString(sn.properties, "name"),
			Source:         ir.SchemaSource(propString(sn.properties, "source")),
			SourceMetadata: propMap(sn.properties, "source_metadata"),
		}
		for _, f := range g.children(s.toID, ir.RelHasField) {
			fn, ok := g.node(f.toID)
			if !ok {
				continue
			}
			schema.Fields = append(schema.Fields, ir.APISchemaField{
				Name:     propString(fn.properties, "name"),
				Type:     propString(fn.properties, "type"),
				Required: propBool(fn.properties, "required"),
			})
		}
		model.Schemas = append(model.Schemas, schema)
	}

	for _, e := range g.children(apiID, ir.RelHasEndpoint) {
		en, ok := g.node(e.toID)
		if !ok {
			continue
		}
		endpoint := ir.Endpoint{
			EndpointID:      e.toID,
			Path:            propString(en.properties, "path"),
			Method:          ir.HTTPMethod(propString(en.properties, "method")),
			OperationID:     propString(en.properties, "operation_id"),
			AuthRequired:    propBool(en.properties, "auth_required"),
			Inferred:        propBool(en.properties, "inferred"),
			InferenceSource: propString(en.properties, "inference_source"),
		}
		for _, p := range g.children(e.toID, ir.RelHasParameter) {
			pn, ok := g.node(p.toID)
			if !ok {
				continue
			}
			endpoint.Parameters = append(endpoint.Parameters, ir.APIParameter{
				Name:     propString(pn.properties, "name"),
				Location: ir.ParameterLocation(propString(pn.properties, "location")),
				DataType: propString(pn.properties, "data_type"),
				Required: propBool(pn.properties, "required"),
			})
		}
		if reqs := g.children(e.toID, ir.RelRequestSchema); len(reqs) > 0 {
			if sn, ok := g.node(reqs[0].toID); ok {
				endpoint.RequestSchema = propString(sn.properties, "name")
			}
		}
		if resps := g.children(e.toID, ir.RelResponseSchema); len(resps) > 0 {
			if sn, ok := g.node(resps[0].toID); ok {
				endpoint.ResponseSchema = propString(sn.properties, "name")
			}
		}
		for _, t := range g.children(e.toID, ir.RelTargetsEntity) {
			endpoint.TargetsEntities = append(endpoint.TargetsEntities, ir.EntityTarget{
				EntityID:   t.toID,
				Confidence: propFloat64(t.properties, "confidence"),
				Inferred:   propBool(t.properties, "inferred"),
			})
		}
		for _, f := range g.children(e.toID, ir.RelUsesField) {
			endpoint.UsesFields = append(endpoint.UsesFields, f.toID)
		}
		model.Endpoints = append(model.Endpoints, endpoint)
	}
	return model
}

func assembleBehavior(appID string, g *subgraph) *ir.BehaviorModelIR {
	behaviorID := ir.ChildID(appID, ir.LabelBehaviorModel)
	model := &ir.BehaviorModelIR{ID: behaviorID, AppID: appID}

	for _, f := range g.children(behaviorID, ir.RelHasFlow) {
		fn, ok := g.node(f.toID)
		if !ok {
			continue
		}
		flow := ir.Flow{
			Name:        propString(fn.properties, "name"),
			Type:        propString(fn.properties, "type"),
			Trigger:     propString(fn.properties, "trigger"),
			Description: propString(fn.properties, "description"),
		}
		for _, s := range g.children(f.toID, ir.RelHasStep) {
			sn, ok := g.node(s.toID)
			if !ok {
				continue
			}
			flow.Steps = append(flow.Steps, ir.Step{
				Order:        propInt(sn.properties, "order"),
				Action:       propString(sn.properties, "action"),
				TargetEntity: propString(sn.properties, "target_entity"),
			})
		}
		sort.Slice(flow.Steps, func(i, j int) bool { return flow.Steps[i].Order < flow.Steps[j].Order })
		model.Flows = append(model.Flows, flow)
	}

	for _, inv := range g.children(behaviorID, ir.RelHasInvariant) {
		n, ok := g.node(inv.toID)
		if !ok {
			continue
		}
		model.Invariants = append(model.Invariants, ir.Invariant{
			Entity:           propString(n.properties, "entity"),
			Description:      propString(n.properties, "description"),
			Expression:       propString(n.properties, "expression"),
			EnforcementLevel: ir.EnforcementLevel(propString(n.properties, "enforcement_level")),
		})
	}
	return model
}

func assembleValidation(appID string, g *subgraph) *ir.ValidationModelIR {
	validationID := ir.ChildID(appID, ir.LabelValidationModel)
	model := &ir.ValidationModelIR{ID: validationID, AppID: appID}

	for _, r := range g.children(validationID, ir.RelHasRule) {
		rn, ok := g.node(r.toID)
		if !ok {
			continue
		}
		rule := ir.ValidationRule{
			Entity:          propString(rn.properties, "entity"),
			Attribute:       propString(rn.properties, "attribute"),
			Type:            propString(rn.properties, "type"),
			Condition:       propString(rn.properties, "condition"),
			Severity:        propString(rn.properties, "severity"),
			EnforcementType: propString(rn.properties, "enforcement_type"),
		}
		if strategies := g.children(r.toID, ir.RelHasStrategy); len(strategies) > 0 {
			if sn, ok := g.node(strategies[0].toID); ok {
				rule.EnforcementStrategy = &ir.EnforcementStrategy{
					Type:           propString(sn.properties, "type"),
					Implementation: propString(sn.properties, "implementation"),
					AppliedAt:      propStringSlice(sn.properties, "applied_at"),
				}
			}
		}
		model.Rules = append(model.Rules, rule)
	}
	return model
}

func assembleInfrastructure(appID string, g *subgraph) *ir.InfrastructureModelIR {
	infraID := ir.ChildID(appID, ir.LabelInfrastructureModel)
	model := &ir.InfrastructureModelIR{ID: infraID, AppID: appID}

	for _, d := range g.children(infraID, ir.RelHasDatabase) {
		n, ok := g.node(d.toID)
		if !ok {
			continue
		}
		model.Databases = append(model.Databases, ir.DatabaseConfig{
			Name:    propString(n.properties, "name"),
			Engine:  propString(n.properties, "engine"),
			Options: propMap(n.properties, "options"),
		})
	}

	for _, s := range g.children(infraID, ir.RelHasService) {
		n, ok := g.node(s.toID)
		if !ok {
			continue
		}
		service := ir.ContainerService{
			Name:  propString(n.properties, "name"),
			Image: propString(n.properties, "image"),
			Ports: propIntSlice(n.properties, "ports"),
		}
		for _, dep := range g.children(s.toID, ir.RelDependsOn) {
			if depNode, ok := g.node(dep.toID); ok {
				service.DependsOn = append(service.DependsOn, propString(depNode.properties, "name"))
			}
		}
		model.Services = append(model.Services, service)
	}

	for _, o := range g.children(infraID, ir.RelHasObservability) {
		n, ok := g.node(o.toID)
		if !ok {
			continue
		}
		model.Observability = append(model.Observability, ir.ObservabilityConfig{
			Name:    propString(n.properties, "name"),
			Kind:    propString(n.properties, "kind"),
			Options: propMap(n.properties, "options"),
		})
	}
	return model
}

func assembleTests(appID string, g *subgraph) *ir.TestsModelIR {
	testsID := ir.ChildID(appID, ir.LabelTestsModel)
	model := &ir.TestsModelIR{ID: testsID, AppID: appID}

	for _, s := range g.children(testsID, ir.RelHasSeedEntity) {
		n, ok := g.node(s.toID)
		if !ok {
			continue
		}
		seed := ir.SeedEntityIR{
			EntityName: propString(n.properties, "entity_name"),
			TableName:  propString(n.properties, "table_name"),
			Count:      propInt(n.properties, "count"),
		}
		for _, dep := range g.children(s.toID, ir.RelDependsOnSeed) {
			if depNode, ok := g.node(dep.toID); ok {
				seed.Dependencies = append(seed.Dependencies, propString(depNode.properties, "entity_name"))
			}
		}
		model.SeedEntities = append(model.SeedEntities, seed)
	}

	for _, s := range g.children(testsID, ir.RelHasEndpointSuite) {
		n, ok := g.node(s.toID)
		if !ok {
			continue
		}
		model.EndpointSuites = append(model.EndpointSuites, ir.EndpointTestSuite{
			EndpointPath: propString(n.properties, "endpoint_path"),
			HTTPMethod:   propString(n.properties, "http_method"),
			OperationID:  propString(n.properties, "operation_id"),
			Scenarios:    assembleScenarios(g, s.toID),
		})
	}

	for _, s := range g.children(testsID, ir.RelHasFlowSuite) {
		n, ok := g.node(s.toID)
		if !ok {
			continue
		}
		model.FlowSuites = append(model.FlowSuites, ir.FlowTestSuite{
			Name:      propString(n.properties, "name"),
			Scenarios: assembleScenarios(g, s.toID),
		})
	}
	return model
}

func assembleScenarios(g *subgraph, suiteID string) []ir.TestScenarioIR {
	var scenarios []ir.TestScenarioIR
	for _, sc := range g.children(suiteID, ir.RelHasScenario) {
		n, ok := g.node(sc.toID)
		if !ok {
			continue
		}
		scenarios = append(scenarios, ir.TestScenarioIR{
			ScenarioID:         propString(n.properties, "scenario_id"),
			Name:               propString(n.properties, "name"),
			EndpointPath:       propString(n.properties, "endpoint_path"),
			HTTPMethod:         propString(n.properties, "http_method"),
			TestType:           propString(n.properties, "test_type"),
			Priority:           propString(n.properties, "priority"),
			PathParams:         propMap(n.properties, "path_params"),
			QueryParams:        propMap(n.properties, "query_params"),
			Headers:            propMap(n.properties, "headers"),
			RequestBody:        propMap(n.properties, "request_body"),
			ExpectedOutcome:    propString(n.properties, "expected_outcome"),
			ExpectedStatusCode: propInt(n.properties, "expected_status_code"),
			RequiresAuth:       propBool(n.properties, "requires_auth"),
			SourceEndpointID:   propString(n.properties, "source_endpoint_id"),
		})
	}
	return scenarios
}

// checkConsistency re-validates the invariants the submodel repositories
// enforce before writing, catching the case a concurrent write corrupted
// between the node and edge reads or a prior write predates the invariant
// (spec.md §4.8: INCONSISTENT_SNAPSHOT on "duplicate endpoint keys" etc).
func checkConsistency(appID string, app *ir.ApplicationIR) error {
	if app.API != nil {
		seen := make(map[string]bool, len(app.API.Endpoints))
		for _, e := range app.API.Endpoints {
			key := string(e.Method) + " " + e.Path
			if seen[key] {
				return irerrors.InconsistentSnapshot(appID, fmt.Sprintf("duplicate endpoint key %s", key))
			}
			seen[key] = true
		}
	}
	if app.Domain != nil {
		for _, e := range app.Domain.Entities {
			if len(e.Attributes) == 0 {
				return irerrors.InconsistentSnapshot(appID, fmt.Sprintf("entity %s has no attributes", e.Name))
			}
		}
	}
	return nil
}
