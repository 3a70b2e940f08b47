package ir

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/r3e-network/irgraph/graph"
	irerrors "github.com/r3e-network/irgraph/infrastructure/errors"
	"github.com/r3e-network/irgraph/temporal"
)

// Keyed is implemented by every node type the base repository writes: it
// reports the node's deterministic id and the label it is stored under.
type Keyed interface {
	NodeID() string
	NodeLabel() string
	NodeProperties() map[string]interface{}
}

// BaseRepository provides the subgraph-replace/batch-upsert/batch-connect
// primitives spec.md §4.5 names, generalized with Go generics over any
// Keyed node type the way the teacher generalizes CRUD with GenericCreate/
// GenericList (infrastructure/database/generic_repository.go in the
// example pack this module studied).
type BaseRepository struct {
	client   *graph.Client
	temporal *temporal.Service
}

// NewBaseRepository constructs a BaseRepository.
func NewBaseRepository(client *graph.Client, temporalSvc *temporal.Service) *BaseRepository {
	return &BaseRepository{client: client, temporal: temporalSvc}
}

// SaveRoot upserts a submodel root bound to app_id. IR roots are always
// updated in place (spec.md §4.5: subgraph-replace does not apply to
// root nodes).
func (r *BaseRepository) SaveRoot(ctx context.Context, q graph.Queryer, label, id, appID string, properties map[string]interface{}) error {
	if properties == nil {
		properties = map[string]interface{}{}
	}
	properties["app_id"] = appID

	propsJSON, err := json.Marshal(properties)
	if err != nil {
		return fmt.Errorf("marshal root properties: %w", err)
	}

	stamp, err := r.stampForUpsert(ctx, q, id)
	if err != nil {
		return err
	}

	_, err = q.Execute(ctx, `
		INSERT INTO ir_nodes (id, label, properties, created_at, updated_at, updated_by)
		VALUES (:id, :label, :properties, :created_at, :updated_at, :updated_by)
		ON CONFLICT (id) DO UPDATE SET
			properties = EXCLUDED.properties,
			updated_at = EXCLUDED.updated_at,
			updated_by = EXCLUDED.updated_by
	`, map[string]interface{}{
		"id": id, "label": label, "properties": propsJSON,
		"created_at": stamp.CreatedAt, "updated_at": stamp.UpdatedAt, "updated_by": string(stamp.UpdatedBy),
	})
	if err != nil {
		return irerrors.WriteFailed("save_root", err)
	}
	return nil
}

// ReplaceChildren implements subgraph-replace (spec.md §4.5): it deletes
// every existing child of (parentID, relType) and the edge rows
// connecting them, then writes the new set. ON DELETE CASCADE on
// ir_edges.from_id/to_id only removes edge rows once a node is deleted —
// it never reaches down to that node's own children — so a removed
// parent's grandchildren (e.g. a removed Entity's Attribute rows) would
// otherwise survive as permanent orphans. cascadeLabels names the labels
// of those grandchildren (spec.md §4.5's replace_children(..., *,
// cascade_labels=None)): for each deleted child, every node reachable by
// one outgoing edge whose label is in cascadeLabels is deleted too,
// before the new set is written.
func ReplaceChildren[T Keyed](ctx context.Context, repo *BaseRepository, q graph.Queryer, parentID, relType string, children []T, cascadeLabels ...string) error {
	var deletedIDs []string
	if len(cascadeLabels) > 0 {
		records, err := q.Execute(ctx, `
			SELECT to_id FROM ir_edges WHERE from_id = :parent_id AND rel_type = :rel_type
		`, map[string]interface{}{"parent_id": parentID, "rel_type": relType})
		if err != nil {
			return irerrors.WriteFailed("replace_children_collect_ids", err)
		}
		for _, rec := range records {
			if id, ok := rec["to_id"].(string); ok {
				deletedIDs = append(deletedIDs, id)
			}
		}
	}

	for _, label := range cascadeLabels {
		for _, deletedID := range deletedIDs {
			if _, err := q.Execute(ctx, `
				DELETE FROM ir_nodes WHERE label = :label AND id IN (
					SELECT to_id FROM ir_edges WHERE from_id = :from_id
				)
			`, map[string]interface{}{"label": label, "from_id": deletedID}); err != nil {
				return irerrors.WriteFailed("replace_children_cascade_delete", err)
			}
		}
	}

	if _, err := q.Execute(ctx, `
		DELETE FROM ir_nodes WHERE id IN (
			SELECT to_id FROM ir_edges WHERE from_id = :parent_id AND rel_type = :rel_type
		)
	`, map[string]interface{}{"parent_id": parentID, "rel_type": relType}); err != nil {
		return irerrors.WriteFailed("replace_children_delete_nodes", err)
	}
	if _, err := q.Execute(ctx, `
		DELETE FROM ir_edges WHERE from_id = :parent_id AND rel_type = :rel_type
	`, map[string]interface{}{"parent_id": parentID, "rel_type": relType}); err != nil {
		return irerrors.WriteFailed("replace_children_delete_edges", err)
	}

	for _, child := range children {
		if err := repo.upsertNode(ctx, q, child); err != nil {
			return err
		}
		if err := repo.mergeEdge(ctx, q, relType, parentID, child.NodeID(), nil); err != nil {
			return err
		}
	}
	return nil
}

// BatchUpsert writes a homogeneous set of nodes via MERGE-style upsert
// (spec.md §4.5). Unlike ReplaceChildren it never deletes: callers use it
// for standalone batches with their own uniqueness discipline (e.g.
// appended test execution records and lineage nodes).
func BatchUpsert[T Keyed](ctx context.Context, repo *BaseRepository, nodes []T) error {
	for _, node := range nodes {
		if err := repo.upsertNode(ctx, repo.client, node); err != nil {
			return err
		}
	}
	return nil
}

// MergeEdge creates or updates a cross-entity reference edge keyed by the
// semantic triple (relType, fromID, toID) — spec.md §4.5's merge
// semantics for RELATES_TO/TARGETS_ENTITY/USES_FIELD/VALIDATES_*/
// DEPENDS_ON_SEED, which must never be subgraph-replaced since multiple
// inference passes can independently contribute them.
func (r *BaseRepository) MergeEdge(ctx context.Context, q graph.Queryer, relType, fromID, toID string, properties map[string]interface{}) error {
	return r.mergeEdge(ctx, q, relType, fromID, toID, properties)
}

func (r *BaseRepository) mergeEdge(ctx context.Context, q graph.Queryer, relType, fromID, toID string, properties map[string]interface{}) error {
	if properties == nil {
		properties = map[string]interface{}{}
	}
	propsJSON, err := json.Marshal(properties)
	if err != nil {
		return fmt.Errorf("marshal edge properties: %w", err)
	}

	stamp, err := r.stampForEdgeUpsert(ctx, q, relType, fromID, toID)
	if err != nil {
		return err
	}

	_, err = q.Execute(ctx, `
		INSERT INTO ir_edges (rel_type, from_id, to_id, properties, created_at, updated_at, updated_by)
		VALUES (:rel_type, :from_id, :to_id, :properties, :created_at, :updated_at, :updated_by)
		ON CONFLICT (rel_type, from_id, to_id) DO UPDATE SET
			properties = EXCLUDED.properties,
			updated_at = EXCLUDED.updated_at,
			updated_by = EXCLUDED.updated_by
	`, map[string]interface{}{
		"rel_type": relType, "from_id": fromID, "to_id": toID, "properties": propsJSON,
		"created_at": stamp.CreatedAt, "updated_at": stamp.UpdatedAt, "updated_by": string(stamp.UpdatedBy),
	})
	if err != nil {
		return irerrors.WriteFailed("merge_edge", err)
	}
	return nil
}

// BatchConnect creates relationships in bulk, keyed by semantic
// identifiers rather than engine-internal IDs (spec.md §4.5).
func (r *BaseRepository) BatchConnect(ctx context.Context, relType string, pairs []FromTo) error {
	for _, pair := range pairs {
		if err := r.mergeEdge(ctx, r.client, relType, pair.FromID, pair.ToID, pair.Properties); err != nil {
			return err
		}
	}
	return nil
}

// FromTo is one semantic-identifier pair for BatchConnect.
type FromTo struct {
	FromID     string
	ToID       string
	Properties map[string]interface{}
}

func (r *BaseRepository) upsertNode(ctx context.Context, q graph.Queryer, node Keyed) error {
	propsJSON, err := json.Marshal(node.NodeProperties())
	if err != nil {
		return fmt.Errorf("marshal node properties: %w", err)
	}

	stamp, err := r.stampForUpsert(ctx, q, node.NodeID())
	if err != nil {
		return err
	}

	_, err = q.Execute(ctx, `
		INSERT INTO ir_nodes (id, label, properties, created_at, updated_at, updated_by)
		VALUES (:id, :label, :properties, :created_at, :updated_at, :updated_by)
		ON CONFLICT (id) DO UPDATE SET
			properties = EXCLUDED.properties,
			updated_at = EXCLUDED.updated_at,
			updated_by = EXCLUDED.updated_by
	`, map[string]interface{}{
		"id": node.NodeID(), "label": node.NodeLabel(), "properties": propsJSON,
		"created_at": stamp.CreatedAt, "updated_at": stamp.UpdatedAt, "updated_by": string(stamp.UpdatedBy),
	})
	if err != nil {
		return irerrors.WriteFailed("upsert_node", err)
	}
	return nil
}

// stampForUpsert resolves the temporal stamp for a write to id: a create
// stamp if id is new, an update stamp (preserving created_at) if it
// already exists.
func (r *BaseRepository) stampForUpsert(ctx context.Context, q graph.Queryer, id string) (temporal.Stamp, error) {
	records, err := q.Execute(ctx, `SELECT created_at FROM ir_nodes WHERE id = :id`, map[string]interface{}{"id": id})
	if err != nil {
		return temporal.Stamp{}, err
	}
	if len(records) == 0 {
		return r.temporal.StampForCreate(ctx)
	}
	createdAt, ok := asTime(records[0]["created_at"])
	if !ok {
		return r.temporal.StampForCreate(ctx)
	}
	return r.temporal.StampForUpdate(ctx, createdAt)
}

// stampForEdgeUpsert is stampForUpsert's edge-table counterpart: edges
// live in ir_edges, keyed by (rel_type, from_id, to_id), not by a single id.
func (r *BaseRepository) stampForEdgeUpsert(ctx context.Context, q graph.Queryer, relType, fromID, toID string) (temporal.Stamp, error) {
	records, err := q.Execute(ctx, `
		SELECT created_at FROM ir_edges WHERE rel_type = :rel_type AND from_id = :from_id AND to_id = :to_id
	`, map[string]interface{}{"rel_type": relType, "from_id": fromID, "to_id": toID})
	if err != nil {
		return temporal.Stamp{}, err
	}
	if len(records) == 0 {
		return r.temporal.StampForCreate(ctx)
	}
	createdAt, ok := asTime(records[0]["created_at"])
	if !ok {
		return r.temporal.StampForCreate(ctx)
	}
	return r.temporal.StampForUpdate(ctx, createdAt)
}
