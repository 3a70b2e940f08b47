package ir

import (
	"context"
	"sort"
	"strconv"

	"github.com/r3e-network/irgraph/graph"
	irerrors "github.com/r3e-network/irgraph/infrastructure/errors"
)

const (
	LabelBehaviorModel = "BehaviorModelIR"
	LabelFlow          = "Flow"
	LabelStep          = "Step"
	LabelInvariant     = "Invariant"

	RelHasBehaviorModel = "HAS_BEHAVIOR_MODEL"
	RelHasFlow          = "HAS_FLOW"
	RelHasStep          = "HAS_STEP"
	RelHasInvariant     = "HAS_INVARIANT"
)

// BehaviorRepository persists BehaviorModelIR: flows and invariants are
// subgraph-replaced, and each flow's steps are subgraph-replaced under it
// (spec.md §4.5, BehaviorModelIR repository).
type BehaviorRepository struct {
	base *BaseRepository
}

// NewBehaviorRepository constructs a BehaviorRepository.
func NewBehaviorRepository(base *BaseRepository) *BehaviorRepository {
	return &BehaviorRepository{base: base}
}

// Save replaces the entire behavior model for appID.
func (r *BehaviorRepository) Save(ctx context.Context, appID string, model BehaviorModelIR) error {
	for _, flow := range model.Flows {
		if err := validateStepOrder(flow); err != nil {
			return err
		}
	}

	return r.base.client.Transaction(ctx, func(ctx context.Context, tx *graph.Tx) error {
		behaviorID := ChildID(appID, LabelBehaviorModel)
		if err := r.base.SaveRoot(ctx, tx, LabelBehaviorModel, behaviorID, appID, nil); err != nil {
			return err
		}

		flowNodes := make([]Node, 0, len(model.Flows))
		for i := range model.Flows {
			f := &model.Flows[i]
			flowID := ChildID(behaviorID, LabelFlow, f.Name)
			flowNodes = append(flowNodes, Node{
				ID: flowID, Label: LabelFlow,
				Properties: map[string]interface{}{
					"name": f.Name, "type": f.Type, "trigger": f.Trigger, "description": f.Description,
				},
			})
		}
		if err := ReplaceChildren(ctx, r.base, tx, behaviorID, RelHasFlow, flowNodes, LabelStep); err != nil {
			return err
		}

		for i := range model.Flows {
			f := &model.Flows[i]
			flowID := ChildID(behaviorID, LabelFlow, f.Name)
			stepNodes := make([]Node, 0, len(f.Steps))
			for _, s := range f.Steps {
				stepNodes = append(stepNodes, Node{
					ID: ChildID(flowID, LabelStep, strconv.Itoa(s.Order)), Label: LabelStep,
					Properties: map[string]interface{}{
						"order": s.Order, "action": s.Action, "target_entity": s.TargetEntity,
					},
				})
			}
			if err := ReplaceChildren(ctx, r.base, tx, flowID, RelHasStep, stepNodes); err != nil {
				return err
			}
		}

		invariantNodes := make([]Node, 0, len(model.Invariants))
		for _, inv := range model.Invariants {
			invariantNodes = append(invariantNodes, Node{
				ID: ChildID(behaviorID, LabelInvariant, inv.Entity, inv.Description), Label: LabelInvariant,
				Properties: map[string]interface{}{
					"entity": inv.Entity, "description": inv.Description,
					"expression": inv.Expression, "enforcement_level": string(inv.EnforcementLevel),
				},
			})
		}
		return ReplaceChildren(ctx, r.base, tx, behaviorID, RelHasInvariant, invariantNodes)
	})
}

// validateStepOrder enforces spec.md §3: within a Flow, order values must
// be unique and contiguous starting from 1.
func validateStepOrder(flow Flow) error {
	orders := make([]int, len(flow.Steps))
	for i, s := range flow.Steps {
		orders[i] = s.Order
	}
	sorted := append([]int(nil), orders...)
	sort.Ints(sorted)
	for i, o := range sorted {
		if o != i+1 {
			return irerrors.NonContiguousStepOrder(flow.Name, orders)
		}
	}
	return nil
}
