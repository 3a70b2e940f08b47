package ir

import (
	"context"

	"github.com/r3e-network/irgraph/graph"
)

const (
	LabelValidationModel     = "ValidationModelIR"
	LabelValidationRule      = "ValidationRule"
	LabelEnforcementStrategy = "EnforcementStrategy"

	RelHasValidationModel = "HAS_VALIDATION_MODEL"
	RelHasRule             = "HAS_RULE"
	RelHasStrategy         = "HAS_STRATEGY"
	RelValidatesEntity     = "VALIDATES_ENTITY"
	RelValidatesField      = "VALIDATES_FIELD"
)

// ValidationRepository persists ValidationModelIR (spec.md §4.5,
// ValidationModelIR repository). Rules are subgraph-replaced under the
// model root; each rule's enforcement strategy, if present, is
// subgraph-replaced under the rule; VALIDATES_ENTITY/VALIDATES_FIELD are
// merged edges since multiple rules may target the same attribute.
type ValidationRepository struct {
	base *BaseRepository
}

// NewValidationRepository constructs a ValidationRepository.
func NewValidationRepository(base *BaseRepository) *ValidationRepository {
	return &ValidationRepository{base: base}
}

// Save replaces the entire validation model for appID.
func (r *ValidationRepository) Save(ctx context.Context, appID string, model ValidationModelIR) error {
	return r.base.client.Transaction(ctx, func(ctx context.Context, tx *graph.Tx) error {
		validationID := ChildID(appID, LabelValidationModel)
		if err := r.base.SaveRoot(ctx, tx, LabelValidationModel, validationID, appID, nil); err != nil {
			return err
		}

		ruleIDs := make([]string, len(model.Rules))
		ruleNodes := make([]Node, 0, len(model.Rules))
		for i, rule := range model.Rules {
			ruleID := ChildID(validationID, LabelValidationRule, rule.Entity, rule.Attribute, rule.Type)
			ruleIDs[i] = ruleID
			ruleNodes = append(ruleNodes, Node{
				ID: ruleID, Label: LabelValidationRule,
				Properties: map[string]interface{}{
					"entity": rule.Entity, "attribute": rule.Attribute, "type": rule.Type,
					"condition": rule.Condition, "severity": rule.Severity,
					"enforcement_type": rule.EnforcementType,
				},
			})
		}
		if err := ReplaceChildren(ctx, r.base, tx, validationID, RelHasRule, ruleNodes, LabelEnforcementStrategy); err != nil {
			return err
		}

		for i, rule := range model.Rules {
			ruleID := ruleIDs[i]
			var strategyNodes []Node
			if rule.EnforcementStrategy != nil {
				s := rule.EnforcementStrategy
				strategyNodes = []Node{{
					ID: ChildID(ruleID, LabelEnforcementStrategy), Label: LabelEnforcementStrategy,
					Properties: map[string]interface{}{
						"type": s.Type, "implementation": s.Implementation, "applied_at": s.AppliedAt,
					},
				}}
			}
			if err := ReplaceChildren(ctx, r.base, tx, ruleID, RelHasStrategy, strategyNodes); err != nil {
				return err
			}

			entityID := ChildID(ChildID(appID, LabelDomainModel), LabelEntity, rule.Entity)
			if err := r.base.MergeEdge(ctx, tx, RelValidatesEntity, ruleID, entityID, nil); err != nil {
				return err
			}
			if rule.Attribute != "" {
				attrID := ChildID(entityID, LabelAttribute, rule.Attribute)
				if err := r.base.MergeEdge(ctx, tx, RelValidatesField, ruleID, attrID, nil); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
