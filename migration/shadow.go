package migration

import (
	"context"
	"fmt"

	"github.com/r3e-network/irgraph/graph"
	irerrors "github.com/r3e-network/irgraph/infrastructure/errors"
)

// shadowSuffix marks labels and relationship types belonging to a
// not-yet-promoted shadow graph (spec.md §9: "shadow-graph" atomicity
// mode). A migration building a shadow graph writes its new nodes under
// "<Label>_TEMP" and its new edges under "<REL_TYPE>_TEMP"; ShadowRunner
// promotes them by stripping the suffix in a single transaction.
const shadowSuffix = "_TEMP"

// ShadowLabel returns the _TEMP-suffixed label a shadow-mode migration
// should write its nodes under.
func ShadowLabel(label string) string {
	return label + shadowSuffix
}

// ShadowRelType returns the _TEMP-suffixed relationship type a shadow-mode
// migration should write its edges under.
func ShadowRelType(relType string) string {
	return relType + shadowSuffix
}

// ShadowRunner builds a migration's output under _TEMP labels/rel-types,
// then promotes them atomically. Between build and promote, readers of
// the real graph see no partial migration: the shadow rows are inert
// until the rename commits.
type ShadowRunner struct {
	client      *graph.Client
	migrationID string
}

// NewShadowRunner constructs a ShadowRunner.
func NewShadowRunner(client *graph.Client, migrationID string) *ShadowRunner {
	return &ShadowRunner{client: client, migrationID: migrationID}
}

// Build runs fn against the shared client so it can write _TEMP-labeled
// rows without any special transaction scoping: those rows are inert to
// every other reader until Promote runs.
func (r *ShadowRunner) Build(ctx context.Context, fn func(ctx context.Context, exec *Exec) error) error {
	return fn(ctx, &Exec{Client: r.client})
}

// Promote renames every node label and edge rel_type in labels and relTypes from
// its _TEMP form to its real form, replacing any existing rows holding
// the real form, in a single transaction. A failure here is reported as
// ShadowPromotionFailed and leaves the shadow rows in place for
// inspection or a retried promotion.
func (r *ShadowRunner) Promote(ctx context.Context, labels []string, relTypes []string) error {
	err := r.client.Transaction(ctx, func(ctx context.Context, tx *graph.Tx) error {
		for _, label := range labels {
			if _, err := tx.Execute(ctx, `DELETE FROM ir_nodes WHERE label = :label`,
				map[string]interface{}{"label": label}); err != nil {
				return fmt.Errorf("clear existing label %s: %w", label, err)
			}
			if _, err := tx.Execute(ctx, `UPDATE ir_nodes SET label = :label WHERE label = :shadow_label`,
				map[string]interface{}{"label": label, "shadow_label": ShadowLabel(label)}); err != nil {
				return fmt.Errorf("promote label %s: %w", label, err)
			}
		}
		for _, relType := range relTypes {
			if _, err := tx.Execute(ctx, `DELETE FROM ir_edges WHERE rel_type = :rel_type`,
				map[string]interface{}{"rel_type": relType}); err != nil {
				return fmt.Errorf("clear existing rel_type %s: %w", relType, err)
			}
			if _, err := tx.Execute(ctx, `UPDATE ir_edges SET rel_type = :rel_type WHERE rel_type = :shadow_rel_type`,
				map[string]interface{}{"rel_type": relType, "shadow_rel_type": ShadowRelType(relType)}); err != nil {
				return fmt.Errorf("promote rel_type %s: %w", relType, err)
			}
		}
		return nil
	})
	if err != nil {
		return irerrors.ShadowPromotionFailed(r.migrationID, err)
	}
	return nil
}

// Discard removes a shadow build without promoting it, for a migration
// that is being abandoned before Promote ran.
func (r *ShadowRunner) Discard(ctx context.Context, labels []string, relTypes []string) error {
	return r.client.Transaction(ctx, func(ctx context.Context, tx *graph.Tx) error {
		for _, label := range labels {
			if _, err := tx.Execute(ctx, `DELETE FROM ir_nodes WHERE label = :shadow_label`,
				map[string]interface{}{"shadow_label": ShadowLabel(label)}); err != nil {
				return err
			}
		}
		for _, relType := range relTypes {
			if _, err := tx.Execute(ctx, `DELETE FROM ir_edges WHERE rel_type = :shadow_rel_type`,
				map[string]interface{}{"shadow_rel_type": ShadowRelType(relType)}); err != nil {
				return err
			}
		}
		return nil
	})
}
