// Package cache provides the Full IR Loader's snapshot cache (spec.md
// §4.8): a keyed-by-app_id store of fully assembled ApplicationIR trees,
// selected between an in-process and a Redis-backed implementation by
// LOADER_CACHE_BACKEND (spec.md §6).
package cache

import (
	"context"

	"github.com/r3e-network/irgraph/ir"
)

// Snapshot caches one fully assembled ApplicationIR per app_id.
type Snapshot interface {
	Get(ctx context.Context, appID string) (*ir.ApplicationIR, bool)
	Set(ctx context.Context, appID string, app *ir.ApplicationIR)
	Invalidate(ctx context.Context, appID string)
}
