package ir

import (
	"context"

	"github.com/r3e-network/irgraph/graph"
	irerrors "github.com/r3e-network/irgraph/infrastructure/errors"
)

const (
	LabelAPIModel       = "APIModelIR"
	LabelEndpoint       = "Endpoint"
	LabelAPIParameter   = "APIParameter"
	LabelAPISchema      = "APISchema"
	LabelAPISchemaField = "APISchemaField"

	RelHasAPIModel    = "HAS_API_MODEL"
	RelHasEndpoint    = "HAS_ENDPOINT"
	RelHasParameter   = "HAS_PARAMETER"
	RelHasSchema      = "HAS_SCHEMA"
	RelHasField       = "HAS_FIELD"
	RelRequestSchema  = "REQUEST_SCHEMA"
	RelResponseSchema = "RESPONSE_SCHEMA"
	RelTargetsEntity  = "TARGETS_ENTITY"
	RelUsesField      = "USES_FIELD"
)

// APIRepository persists APIModelIR (spec.md §4.5, APIModelIR repository).
// Endpoints (with their parameters and request/response schema edges) and
// schemas (with their fields) are each subgraph-replaced independently;
// TARGETS_ENTITY and USES_FIELD are optional, merged edges because they
// may be curated by multiple inference passes.
type APIRepository struct {
	base *BaseRepository
}

// NewAPIRepository constructs an APIRepository.
func NewAPIRepository(base *BaseRepository) *APIRepository {
	return &APIRepository{base: base}
}

// Save replaces the entire API model for appID.
func (r *APIRepository) Save(ctx context.Context, appID string, model APIModelIR) error {
	if err := validateEndpointUniqueness(model.Endpoints); err != nil {
		return err
	}

	return r.base.client.Transaction(ctx, func(ctx context.Context, tx *graph.Tx) error {
		apiID := ChildID(appID, LabelAPIModel)
		if err := r.base.SaveRoot(ctx, tx, LabelAPIModel, apiID, appID, nil); err != nil {
			return err
		}

		schemaNodes := make([]Node, 0, len(model.Schemas))
		for i := range model.Schemas {
			s := &model.Schemas[i]
			schemaID := ChildID(apiID, LabelAPISchema, s.Name)
			schemaNodes = append(schemaNodes, Node{
				ID: schemaID, Label: LabelAPISchema,
				Properties: map[string]interface{}{
					"name": s.Name, "source": string(s.Source), "source_metadata": s.SourceMetadata,
				},
			})
		}
		if err := ReplaceChildren(ctx, r.base, tx, apiID, RelHasSchema, schemaNodes, LabelAPISchemaField); err != nil {
			return err
		}
		for i := range model.Schemas {
			s := &model.Schemas[i]
			schemaID := ChildID(apiID, LabelAPISchema, s.Name)
			fieldNodes := make([]Node, 0, len(s.Fields))
			for _, f := range s.Fields {
				fieldNodes = append(fieldNodes, Node{
					ID: ChildID(schemaID, LabelAPISchemaField, f.Name), Label: LabelAPISchemaField,
					Properties: map[string]interface{}{"name": f.Name, "type": f.Type, "required": f.Required},
				})
			}
			if err := ReplaceChildren(ctx, r.base, tx, schemaID, RelHasField, fieldNodes); err != nil {
				return err
			}
		}

		endpointNodes := make([]Node, 0, len(model.Endpoints))
		for i := range model.Endpoints {
			e := &model.Endpoints[i]
			e.EndpointID = ChildID(apiID, LabelEndpoint, string(e.Method), e.Path)
			endpointNodes = append(endpointNodes, Node{
				ID: e.EndpointID, Label: LabelEndpoint,
				Properties: map[string]interface{}{
					"path": e.Path, "method": string(e.Method), "operation_id": e.OperationID,
					"auth_required": e.AuthRequired, "inferred": e.Inferred, "inference_source": e.InferenceSource,
				},
			})
		}
		if err := ReplaceChildren(ctx, r.base, tx, apiID, RelHasEndpoint, endpointNodes, LabelAPIParameter); err != nil {
			return err
		}

		for _, e := range model.Endpoints {
			paramNodes := make([]Node, 0, len(e.Parameters))
			for _, p := range e.Parameters {
				paramNodes = append(paramNodes, Node{
					ID: ChildID(e.EndpointID, LabelAPIParameter, p.Name), Label: LabelAPIParameter,
					Properties: map[string]interface{}{
						"name": p.Name, "location": string(p.Location), "data_type": p.DataType, "required": p.Required,
					},
				})
			}
			if err := ReplaceChildren(ctx, r.base, tx, e.EndpointID, RelHasParameter, paramNodes); err != nil {
				return err
			}

			if e.RequestSchema != "" {
				if err := r.base.MergeEdge(ctx, tx, RelRequestSchema, e.EndpointID, ChildID(apiID, LabelAPISchema, e.RequestSchema), nil); err != nil {
					return err
				}
			}
			if e.ResponseSchema != "" {
				if err := r.base.MergeEdge(ctx, tx, RelResponseSchema, e.EndpointID, ChildID(apiID, LabelAPISchema, e.ResponseSchema), nil); err != nil {
					return err
				}
			}
			for _, target := range e.TargetsEntities {
				if err := r.base.MergeEdge(ctx, tx, RelTargetsEntity, e.EndpointID, target.EntityID, map[string]interface{}{
					"confidence": target.Confidence, "inferred": target.Inferred,
				}); err != nil {
					return err
				}
			}
			for _, field := range e.UsesFields {
				if err := r.base.MergeEdge(ctx, tx, RelUsesField, e.EndpointID, field, nil); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// validateEndpointUniqueness enforces (api_model_id, path, method)
// uniqueness before any write (spec.md §3).
func validateEndpointUniqueness(endpoints []Endpoint) error {
	seen := make(map[string]bool, len(endpoints))
	for _, e := range endpoints {
		key := string(e.Method) + " " + e.Path
		if seen[key] {
			return irerrors.DuplicateUniqueKey(LabelEndpoint, map[string]interface{}{"path": e.Path, "method": e.Method})
		}
		seen[key] = true
	}
	return nil
}
