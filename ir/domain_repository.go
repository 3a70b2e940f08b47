package ir

import (
	"context"

	"github.com/r3e-network/irgraph/graph"
	irerrors "github.com/r3e-network/irgraph/infrastructure/errors"
)

// LabelDomainModel and friends are the persisted graph surface's labels
// and relationship types for the domain submodel (spec.md §3, §6).
const (
	LabelDomainModel = "DomainModelIR"
	LabelEntity      = "Entity"
	LabelAttribute   = "Attribute"

	RelHasDomainModel = "HAS_DOMAIN_MODEL"
	RelHasEntity      = "HAS_ENTITY"
	RelHasAttribute   = "HAS_ATTRIBUTE"
	RelRelatesTo      = "RELATES_TO"
)

// DomainRepository persists DomainModelIR and its Entity/Attribute/
// RELATES_TO subgraph (spec.md §4.5, DomainModelIR repository).
type DomainRepository struct {
	base *BaseRepository
}

// NewDomainRepository constructs a DomainRepository.
func NewDomainRepository(base *BaseRepository) *DomainRepository {
	return &DomainRepository{base: base}
}

// Save replaces the entire domain model for appID: the root is upserted
// in place, entities (and their attributes) are subgraph-replaced, and
// RELATES_TO edges are merged by (source entity, target entity, field_name)
// rather than replaced, since they may also be written by other passes.
func (r *DomainRepository) Save(ctx context.Context, appID string, model DomainModelIR) error {
	if err := validateEntities(model.Entities); err != nil {
		return err
	}

	return r.base.client.Transaction(ctx, func(ctx context.Context, tx *graph.Tx) error {
		domainID := ChildID(appID, LabelDomainModel)
		if err := r.base.SaveRoot(ctx, tx, LabelDomainModel, domainID, appID, map[string]interface{}{}); err != nil {
			return err
		}

		entityNodes := make([]Node, 0, len(model.Entities))
		for i := range model.Entities {
			e := &model.Entities[i]
			e.EntityID = ChildID(domainID, LabelEntity, e.Name)
			entityNodes = append(entityNodes, Node{
				ID:    e.EntityID,
				Label: LabelEntity,
				Properties: map[string]interface{}{
					"name":              e.Name,
					"description":       e.Description,
					"is_aggregate_root": e.IsAggregateRoot,
				},
			})
		}
		if err := ReplaceChildren(ctx, r.base, tx, domainID, RelHasEntity, entityNodes, LabelAttribute); err != nil {
			return err
		}

		for _, e := range model.Entities {
			attrNodes := make([]Node, 0, len(e.Attributes))
			for _, a := range e.Attributes {
				attrNodes = append(attrNodes, Node{
					ID:    ChildID(e.EntityID, LabelAttribute, a.Name),
					Label: LabelAttribute,
					Properties: map[string]interface{}{
						"name":           a.Name,
						"data_type":      a.DataType,
						"is_primary_key": a.IsPrimaryKey,
						"is_nullable":    a.IsNullable,
						"is_unique":      a.IsUnique,
						"default_value":  a.DefaultValue,
						"constraints":    a.Constraints,
					},
				})
			}
			if err := ReplaceChildren(ctx, r.base, tx, e.EntityID, RelHasAttribute, attrNodes); err != nil {
				return err
			}
		}

		for _, e := range model.Entities {
			for _, rel := range e.Relations {
				toID := ChildID(domainID, LabelEntity, rel.ToEntityID)
				if err := r.base.MergeEdge(ctx, tx, RelRelatesTo, e.EntityID, toID, map[string]interface{}{
					"type":           string(rel.Type),
					"field_name":     rel.FieldName,
					"back_populates": rel.BackPopulates,
				}); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// validateEntities enforces spec.md §3's "every Entity must have at
// least one Attribute" invariant before any write happens.
func validateEntities(entities []Entity) error {
	for _, e := range entities {
		if len(e.Attributes) == 0 {
			return irerrors.Cardinality(LabelAttribute, RelHasAttribute, intPtr(1), nil).
				WithDetails("entity", e.Name)
		}
	}
	return nil
}

func intPtr(v int) *int { return &v }
