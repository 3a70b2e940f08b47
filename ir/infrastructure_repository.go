package ir

import (
	"context"

	"github.com/r3e-network/irgraph/graph"
)

const (
	LabelInfrastructureModel = "InfrastructureModelIR"
	LabelDatabaseConfig      = "DatabaseConfig"
	LabelContainerService    = "ContainerService"
	LabelObservabilityConfig = "ObservabilityConfig"

	RelHasInfrastructureModel = "HAS_INFRASTRUCTURE_MODEL"
	RelHasDatabase            = "HAS_DATABASE"
	RelHasService             = "HAS_SERVICE"
	RelHasObservability       = "HAS_OBSERVABILITY"
	RelDependsOn              = "DEPENDS_ON"
)

// InfrastructureRepository persists InfrastructureModelIR (spec.md §4.5,
// InfrastructureModelIR repository). Databases, services, and observability
// configs are each subgraph-replaced independently under the model root;
// inter-service DEPENDS_ON edges are merged since they describe a stable
// topology rather than an owned hierarchy.
type InfrastructureRepository struct {
	base *BaseRepository
}

// NewInfrastructureRepository constructs an InfrastructureRepository.
func NewInfrastructureRepository(base *BaseRepository) *InfrastructureRepository {
	return &InfrastructureRepository{base: base}
}

// Save replaces the entire infrastructure model for appID.
func (r *InfrastructureRepository) Save(ctx context.Context, appID string, model InfrastructureModelIR) error {
	return r.base.client.Transaction(ctx, func(ctx context.Context, tx *graph.Tx) error {
		infraID := ChildID(appID, LabelInfrastructureModel)
		if err := r.base.SaveRoot(ctx, tx, LabelInfrastructureModel, infraID, appID, nil); err != nil {
			return err
		}

		dbNodes := make([]Node, 0, len(model.Databases))
		for _, db := range model.Databases {
			dbNodes = append(dbNodes, Node{
				ID: ChildID(infraID, LabelDatabaseConfig, db.Name), Label: LabelDatabaseConfig,
				Properties: map[string]interface{}{"name": db.Name, "engine": db.Engine, "options": db.Options},
			})
		}
		if err := ReplaceChildren(ctx, r.base, tx, infraID, RelHasDatabase, dbNodes); err != nil {
			return err
		}

		serviceNodes := make([]Node, 0, len(model.Services))
		for _, svc := range model.Services {
			serviceNodes = append(serviceNodes, Node{
				ID: ChildID(infraID, LabelContainerService, svc.Name), Label: LabelContainerService,
				Properties: map[string]interface{}{"name": svc.Name, "image": svc.Image, "ports": svc.Ports},
			})
		}
		if err := ReplaceChildren(ctx, r.base, tx, infraID, RelHasService, serviceNodes); err != nil {
			return err
		}

		obsNodes := make([]Node, 0, len(model.Observability))
		for _, obs := range model.Observability {
			obsNodes = append(obsNodes, Node{
				ID: ChildID(infraID, LabelObservabilityConfig, obs.Name), Label: LabelObservabilityConfig,
				Properties: map[string]interface{}{"name": obs.Name, "kind": obs.Kind, "options": obs.Options},
			})
		}
		if err := ReplaceChildren(ctx, r.base, tx, infraID, RelHasObservability, obsNodes); err != nil {
			return err
		}

		for _, svc := range model.Services {
			fromID := ChildID(infraID, LabelContainerService, svc.Name)
			for _, dep := range svc.DependsOn {
				toID := ChildID(infraID, LabelContainerService, dep)
				if err := r.base.MergeEdge(ctx, tx, RelDependsOn, fromID, toID, nil); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
