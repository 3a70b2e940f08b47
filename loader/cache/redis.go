package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/r3e-network/irgraph/ir"
)

// Redis is a Snapshot backed by go-redis/v8, selected via
// LOADER_CACHE_BACKEND=redis (spec.md §6) so a fleet of Loader processes
// shares one snapshot cache instead of each holding its own in-process copy.
type Redis struct {
	client    *redis.Client
	ttl       time.Duration
	keyPrefix string
}

// NewRedis constructs a Redis-backed Snapshot cache.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Redis{client: client, ttl: ttl, keyPrefix: "irgraph:snapshot:"}
}

// Get decodes the cached snapshot for appID, if present.
func (r *Redis) Get(ctx context.Context, appID string) (*ir.ApplicationIR, bool) {
	raw, err := r.client.Get(ctx, r.keyPrefix+appID).Bytes()
	if err != nil {
		return nil, false
	}
	var app ir.ApplicationIR
	if err := json.Unmarshal(raw, &app); err != nil {
		return nil, false
	}
	return &app, true
}

// Set stores app under appID with the cache's configured TTL. Marshal
// failures are swallowed: a cache write is an optimization, not a
// correctness requirement, and the caller already has the freshly loaded
// tree regardless of whether it lands in Redis.
func (r *Redis) Set(ctx context.Context, appID string, app *ir.ApplicationIR) {
	raw, err := json.Marshal(app)
	if err != nil {
		return
	}
	r.client.Set(ctx, r.keyPrefix+appID, raw, r.ttl)
}

// Invalidate evicts appID's cached snapshot.
func (r *Redis) Invalidate(ctx context.Context, appID string) {
	r.client.Del(ctx, r.keyPrefix+appID)
}
