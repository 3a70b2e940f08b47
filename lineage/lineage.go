// Package lineage implements the Lineage Tracker's write primitives
// (spec.md §4.9): attaching spec provenance and generation provenance to
// the IR graph. The core only owns these merges and their idempotency
// guarantee; consuming lineage for queries or a repair agent is downstream
// tooling's job, not this package's.
package lineage

import (
	"context"

	irerrors "github.com/r3e-network/irgraph/infrastructure/errors"
	"github.com/r3e-network/irgraph/ir"
)

const (
	LabelSpec            = "Spec"
	LabelGeneratedFile   = "GeneratedFile"
	LabelGenerationError = "GenerationError"

	RelProduces    = "PRODUCES"
	RelGenerates   = "GENERATES"
	RelUsedPattern = "USED_PATTERN"
)

// Tracker persists lineage edges via the same BaseRepository primitives the
// IR submodel repositories use (spec.md §4.5's upsert/merge idioms), so
// lineage writes carry the same temporal stamping discipline.
type Tracker struct {
	base *ir.BaseRepository
}

// NewTracker constructs a Tracker.
func NewTracker(base *ir.BaseRepository) *Tracker {
	return &Tracker{base: base}
}

// LinkSpecToIR merges a Spec{hash} node and a PRODUCES edge to the
// ApplicationIR root. The node id is the hash itself, so repeated calls
// for the same spec_hash are idempotent regardless of app_id (spec.md
// §4.9: "the core guarantees idempotency of merges by these hashes").
func (t *Tracker) LinkSpecToIR(ctx context.Context, specHash, appID string) error {
	if specHash == "" {
		return irerrors.MissingRequiredProperty(LabelSpec, "hash")
	}
	if appID == "" {
		return irerrors.MissingRequiredProperty(ir.LabelApplication, "app_id")
	}

	node := ir.Node{ID: specHash, Label: LabelSpec, Properties: map[string]interface{}{"hash": specHash}}
	if err := ir.BatchUpsert(ctx, t.base, []ir.Node{node}); err != nil {
		return err
	}
	return t.base.BatchConnect(ctx, RelProduces, []ir.FromTo{{FromID: specHash, ToID: appID}})
}

// LinkGeneration merges a GeneratedFile{path, content_hash} node under
// appID's subtree, a GENERATES edge from the ApplicationIR root, and a
// USED_PATTERN edge to every pattern in patternsUsed. The file node is
// keyed by (appID, content_hash): regenerating the same content for the
// same app is a no-op merge, while a changed content_hash for the same
// path is tracked as a distinct GeneratedFile revision rather than
// overwriting the prior one, preserving generation history.
func (t *Tracker) LinkGeneration(ctx context.Context, appID, filePath, contentHash string, patternsUsed []string) error {
	if appID == "" {
		return irerrors.MissingRequiredProperty(ir.LabelApplication, "app_id")
	}
	if contentHash == "" {
		return irerrors.MissingRequiredProperty(LabelGeneratedFile, "content_hash")
	}

	fileID := ir.ChildID(appID, LabelGeneratedFile, contentHash)
	node := ir.Node{ID: fileID, Label: LabelGeneratedFile, Properties: map[string]interface{}{
		"path": filePath, "content_hash": contentHash,
	}}
	if err := ir.BatchUpsert(ctx, t.base, []ir.Node{node}); err != nil {
		return err
	}
	if err := t.base.BatchConnect(ctx, RelGenerates, []ir.FromTo{{FromID: appID, ToID: fileID}}); err != nil {
		return err
	}
	if len(patternsUsed) == 0 {
		return nil
	}

	pairs := make([]ir.FromTo, 0, len(patternsUsed))
	for _, patternID := range patternsUsed {
		pairs = append(pairs, ir.FromTo{FromID: fileID, ToID: patternID})
	}
	return t.base.BatchConnect(ctx, RelUsedPattern, pairs)
}

// LinkError records a generation failure for the repair agent (spec.md
// §4.9, optional). It is not scoped under any app_id's subtree since the
// primitive takes none; the node is keyed by its own content so repeated
// reports of the identical failure merge rather than accumulate.
func (t *Tracker) LinkError(ctx context.Context, filePath, errorType, message, patternID string) error {
	if filePath == "" {
		return irerrors.MissingRequiredProperty(LabelGenerationError, "file_path")
	}

	errorID := ir.ChildID(filePath, LabelGenerationError, errorType, message)
	node := ir.Node{ID: errorID, Label: LabelGenerationError, Properties: map[string]interface{}{
		"file_path": filePath, "error_type": errorType, "message": message,
	}}
	if err := ir.BatchUpsert(ctx, t.base, []ir.Node{node}); err != nil {
		return err
	}
	if patternID == "" {
		return nil
	}
	return t.base.BatchConnect(ctx, RelUsedPattern, []ir.FromTo{{FromID: errorID, ToID: patternID}})
}
