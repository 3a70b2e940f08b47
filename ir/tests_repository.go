package ir

import (
	"context"

	"github.com/r3e-network/irgraph/graph"
	irerrors "github.com/r3e-network/irgraph/infrastructure/errors"
)

const (
	LabelTestsModel        = "TestsModelIR"
	LabelSeedEntity        = "SeedEntityIR"
	LabelEndpointTestSuite = "EndpointTestSuite"
	LabelFlowTestSuite     = "FlowTestSuite"
	LabelTestScenario      = "TestScenarioIR"
	LabelTestExecution     = "TestExecutionIR"

	RelHasTestsModel     = "HAS_TESTS_MODEL"
	RelHasSeedEntity     = "HAS_SEED_ENTITY"
	RelHasEndpointSuite  = "HAS_ENDPOINT_SUITE"
	RelHasFlowSuite      = "HAS_FLOW_SUITE"
	RelHasScenario       = "HAS_SCENARIO"
	RelDependsOnSeed     = "DEPENDS_ON_SEED"
	RelValidatesEndpoint = "VALIDATES_ENDPOINT"
	RelValidatesFlow     = "VALIDATES_FLOW"
	RelHasExecution      = "HAS_EXECUTION"
)

// TestsRepository persists TestsModelIR (spec.md §4.5, TestsModelIR
// repository). Seed entities, endpoint suites, and flow suites are each
// subgraph-replaced under the model root; each suite's scenarios are
// subgraph-replaced under it; DEPENDS_ON_SEED edges between seed entities
// are merged and checked for cycles before any write.
type TestsRepository struct {
	base *BaseRepository
}

// NewTestsRepository constructs a TestsRepository.
func NewTestsRepository(base *BaseRepository) *TestsRepository {
	return &TestsRepository{base: base}
}

// Save replaces the entire tests model for appID.
func (r *TestsRepository) Save(ctx context.Context, appID string, model TestsModelIR) error {
	if err := detectSeedCycle(model.SeedEntities); err != nil {
		return err
	}

	return r.base.client.Transaction(ctx, func(ctx context.Context, tx *graph.Tx) error {
		testsID := ChildID(appID, LabelTestsModel)
		if err := r.base.SaveRoot(ctx, tx, LabelTestsModel, testsID, appID, nil); err != nil {
			return err
		}

		seedNodes := make([]Node, 0, len(model.SeedEntities))
		for _, seed := range model.SeedEntities {
			seedNodes = append(seedNodes, Node{
				ID: ChildID(testsID, LabelSeedEntity, seed.EntityName), Label: LabelSeedEntity,
				Properties: map[string]interface{}{
					"entity_name": seed.EntityName, "table_name": seed.TableName, "count": seed.Count,
				},
			})
		}
		if err := ReplaceChildren(ctx, r.base, tx, testsID, RelHasSeedEntity, seedNodes); err != nil {
			return err
		}
		for _, seed := range model.SeedEntities {
			fromID := ChildID(testsID, LabelSeedEntity, seed.EntityName)
			for _, dep := range seed.Dependencies {
				toID := ChildID(testsID, LabelSeedEntity, dep)
				if err := r.base.MergeEdge(ctx, tx, RelDependsOnSeed, fromID, toID, nil); err != nil {
					return err
				}
			}
		}

		apiID := ChildID(appID, LabelAPIModel)
		endpointSuiteNodes := make([]Node, 0, len(model.EndpointSuites))
		for _, suite := range model.EndpointSuites {
			endpointSuiteNodes = append(endpointSuiteNodes, Node{
				ID: ChildID(testsID, LabelEndpointTestSuite, suite.HTTPMethod, suite.EndpointPath), Label: LabelEndpointTestSuite,
				Properties: map[string]interface{}{
					"endpoint_path": suite.EndpointPath, "http_method": suite.HTTPMethod, "operation_id": suite.OperationID,
				},
			})
		}
		if err := ReplaceChildren(ctx, r.base, tx, testsID, RelHasEndpointSuite, endpointSuiteNodes, LabelTestScenario); err != nil {
			return err
		}
		for _, suite := range model.EndpointSuites {
			suiteID := ChildID(testsID, LabelEndpointTestSuite, suite.HTTPMethod, suite.EndpointPath)
			if err := r.saveScenarios(ctx, tx, suiteID, suite.Scenarios); err != nil {
				return err
			}
			if suite.EndpointPath != "" {
				endpointID := ChildID(apiID, LabelEndpoint, suite.HTTPMethod, suite.EndpointPath)
				if err := r.base.MergeEdge(ctx, tx, RelValidatesEndpoint, suiteID, endpointID, nil); err != nil {
					return err
				}
			}
		}

		behaviorID := ChildID(appID, LabelBehaviorModel)
		flowSuiteNodes := make([]Node, 0, len(model.FlowSuites))
		for _, suite := range model.FlowSuites {
			flowSuiteNodes = append(flowSuiteNodes, Node{
				ID: ChildID(testsID, LabelFlowTestSuite, suite.Name), Label: LabelFlowTestSuite,
				Properties: map[string]interface{}{"name": suite.Name},
			})
		}
		if err := ReplaceChildren(ctx, r.base, tx, testsID, RelHasFlowSuite, flowSuiteNodes, LabelTestScenario); err != nil {
			return err
		}
		for _, suite := range model.FlowSuites {
			suiteID := ChildID(testsID, LabelFlowTestSuite, suite.Name)
			if err := r.saveScenarios(ctx, tx, suiteID, suite.Scenarios); err != nil {
				return err
			}
			flowID := ChildID(behaviorID, LabelFlow, suite.Name)
			if err := r.base.MergeEdge(ctx, tx, RelValidatesFlow, suiteID, flowID, nil); err != nil {
				return err
			}
		}

		return nil
	})
}

func (r *TestsRepository) saveScenarios(ctx context.Context, tx *graph.Tx, suiteID string, scenarios []TestScenarioIR) error {
	scenarioNodes := make([]Node, 0, len(scenarios))
	for _, sc := range scenarios {
		scenarioNodes = append(scenarioNodes, Node{
			ID: ChildID(suiteID, LabelTestScenario, sc.ScenarioID), Label: LabelTestScenario,
			Properties: map[string]interface{}{
				"scenario_id": sc.ScenarioID, "name": sc.Name, "endpoint_path": sc.EndpointPath,
				"http_method": sc.HTTPMethod, "test_type": sc.TestType, "priority": sc.Priority,
				"path_params": sc.PathParams, "query_params": sc.QueryParams, "headers": sc.Headers,
				"request_body": sc.RequestBody, "expected_outcome": sc.ExpectedOutcome,
				"expected_status_code": sc.ExpectedStatusCode, "requires_auth": sc.RequiresAuth,
				"source_endpoint_id": sc.SourceEndpointID,
			},
		})
	}
	return ReplaceChildren(ctx, r.base, tx, suiteID, RelHasScenario, scenarioNodes)
}

// RecordExecution appends a TestExecutionIR under its scenario. Executions
// are never subgraph-replaced: a scenario accumulates one row per run, the
// same append-only discipline the engine uses for MigrationRun (spec.md §9).
func (r *TestsRepository) RecordExecution(ctx context.Context, suiteID string, exec TestExecutionIR) error {
	scenarioID := ChildID(suiteID, LabelTestScenario, exec.ScenarioID)
	node := Node{
		ID:    ChildID(scenarioID, LabelTestExecution, exec.ExecutionID),
		Label: LabelTestExecution,
		Properties: map[string]interface{}{
			"execution_id": exec.ExecutionID, "scenario_id": exec.ScenarioID, "status": exec.Status,
			"duration_ms": exec.DurationMS, "output": exec.Output, "executed_at": exec.ExecutedAt,
		},
	}
	if err := BatchUpsert(ctx, r.base, []Node{node}); err != nil {
		return err
	}
	return r.base.MergeEdge(ctx, r.base.client, RelHasExecution, scenarioID, node.ID, nil)
}

// detectSeedCycle walks each seed entity's Dependencies graph with DFS and
// returns irerrors.SeedCycle on the first cycle found (spec.md §3).
func detectSeedCycle(seeds []SeedEntityIR) error {
	deps := make(map[string][]string, len(seeds))
	for _, s := range seeds {
		deps[s.EntityName] = s.Dependencies
	}

	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)
	state := make(map[string]int, len(seeds))
	var path []string

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case visited:
			return nil
		case visiting:
			return irerrors.SeedCycle(append(append([]string(nil), path...), name))
		}
		state[name] = visiting
		path = append(path, name)
		for _, dep := range deps[name] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		state[name] = visited
		return nil
	}

	for _, s := range seeds {
		if err := visit(s.EntityName); err != nil {
			return err
		}
	}
	return nil
}
