package cache

import (
	"context"
	"sync"
	"time"

	"github.com/r3e-network/irgraph/ir"
)

type entry struct {
	app        *ir.ApplicationIR
	expiration time.Time
}

// InProcess is an in-memory Snapshot, adapted from the teacher's TTLCache
// (infrastructure/cache.TTLCache): a mutex-protected map with a background
// goroutine sweeping expired entries, specialized here to store one
// *ir.ApplicationIR per app_id instead of an arbitrary interface{} value.
type InProcess struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
}

// NewInProcess constructs an InProcess cache with the given entry TTL and
// starts its background cleanup sweep, which runs at the same cadence as
// the TTL itself.
func NewInProcess(ttl time.Duration) *InProcess {
	if ttl <= 0 {
		ttl = time.Hour
	}
	c := &InProcess{entries: make(map[string]entry), ttl: ttl}
	go c.startCleanup()
	return c
}

func (c *InProcess) startCleanup() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()
	for range ticker.C {
		c.cleanup()
	}
}

func (c *InProcess) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for appID, e := range c.entries {
		if now.After(e.expiration) {
			delete(c.entries, appID)
		}
	}
}

// Get returns the cached snapshot for appID, if present and unexpired.
func (c *InProcess) Get(ctx context.Context, appID string) (*ir.ApplicationIR, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[appID]
	if !ok || time.Now().After(e.expiration) {
		return nil, false
	}
	return e.app, true
}

// Set stores app under appID with the cache's configured TTL.
func (c *InProcess) Set(ctx context.Context, appID string, app *ir.ApplicationIR) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[appID] = entry{app: app, expiration: time.Now().Add(c.ttl)}
}

// Invalidate evicts appID's cached snapshot, called after save_application_ir
// writes so a stale tree is never served (spec.md §4.8).
func (c *InProcess) Invalidate(ctx context.Context, appID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, appID)
}
