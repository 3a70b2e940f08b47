package ir

import (
	"context"

	irerrors "github.com/r3e-network/irgraph/infrastructure/errors"
)

// LabelApplication is the IR root's label (spec.md §3).
const LabelApplication = "ApplicationIR"

// ApplicationRepository implements save_application_ir (spec.md §6): it
// upserts the ApplicationIR root and dispatches each populated submodel to
// its own specialized repository, linking the root to each submodel root
// via its HAS_*_MODEL edge.
type ApplicationRepository struct {
	base           *BaseRepository
	domain         *DomainRepository
	api            *APIRepository
	behavior       *BehaviorRepository
	validation     *ValidationRepository
	infrastructure *InfrastructureRepository
	tests          *TestsRepository
}

// NewApplicationRepository constructs an ApplicationRepository over the
// six submodel-specific repositories.
func NewApplicationRepository(
	base *BaseRepository,
	domain *DomainRepository,
	api *APIRepository,
	behavior *BehaviorRepository,
	validation *ValidationRepository,
	infrastructure *InfrastructureRepository,
	tests *TestsRepository,
) *ApplicationRepository {
	return &ApplicationRepository{
		base:           base,
		domain:         domain,
		api:            api,
		behavior:       behavior,
		validation:     validation,
		infrastructure: infrastructure,
		tests:          tests,
	}
}

// Save upserts the ApplicationIR root in place, then each populated
// submodel via its own repository, each under its own transaction (a
// nested transaction would panic-as-error per the Graph Engine Client's
// NESTED guard), linking each submodel root back to the ApplicationIR
// root with its HAS_*_MODEL edge.
func (r *ApplicationRepository) Save(ctx context.Context, app ApplicationIR) error {
	if app.AppID == "" {
		return irerrors.MissingRequiredProperty(LabelApplication, "app_id")
	}

	if err := r.base.SaveRoot(ctx, r.base.client, LabelApplication, app.AppID, app.AppID, map[string]interface{}{
		"name":      app.Name,
		"version":   app.Version,
		"spec_hash": app.SpecHash,
	}); err != nil {
		return err
	}

	if app.Domain != nil {
		if err := r.domain.Save(ctx, app.AppID, *app.Domain); err != nil {
			return err
		}
		if err := r.linkSubmodel(ctx, app.AppID, RelHasDomainModel, LabelDomainModel); err != nil {
			return err
		}
	}
	if app.API != nil {
		if err := r.api.Save(ctx, app.AppID, *app.API); err != nil {
			return err
		}
		if err := r.linkSubmodel(ctx, app.AppID, RelHasAPIModel, LabelAPIModel); err != nil {
			return err
		}
	}
	if app.Behavior != nil {
		if err := r.behavior.Save(ctx, app.AppID, *app.Behavior); err != nil {
			return err
		}
		if err := r.linkSubmodel(ctx, app.AppID, RelHasBehaviorModel, LabelBehaviorModel); err != nil {
			return err
		}
	}
	if app.Validation != nil {
		if err := r.validation.Save(ctx, app.AppID, *app.Validation); err != nil {
			return err
		}
		if err := r.linkSubmodel(ctx, app.AppID, RelHasValidationModel, LabelValidationModel); err != nil {
			return err
		}
	}
	if app.Infrastructure != nil {
		if err := r.infrastructure.Save(ctx, app.AppID, *app.Infrastructure); err != nil {
			return err
		}
		if err := r.linkSubmodel(ctx, app.AppID, RelHasInfrastructureModel, LabelInfrastructureModel); err != nil {
			return err
		}
	}
	if app.Tests != nil {
		if err := r.tests.Save(ctx, app.AppID, *app.Tests); err != nil {
			return err
		}
		if err := r.linkSubmodel(ctx, app.AppID, RelHasTestsModel, LabelTestsModel); err != nil {
			return err
		}
	}

	return nil
}

// linkSubmodel merges the ApplicationIR -> submodel-root edge. The
// submodel root id is deterministic (ChildID(appID, label)), the same
// identifier each submodel repository computes internally for its own
// root, so no read-back is needed.
func (r *ApplicationRepository) linkSubmodel(ctx context.Context, appID, relType, submodelLabel string) error {
	rootID := ChildID(appID, submodelLabel)
	return r.base.MergeEdge(ctx, r.base.client, relType, appID, rootID, nil)
}
