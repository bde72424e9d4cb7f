// Package channelpool implements the Router-owned Channel Pool: a
// cache of tenant_id -> (host, port, generation) entries backing
// internal/tenantclient's Resolver. The in-memory copy-on-write map
// (snapshot.go, the same single-writer/lock-free-read shape
// internal/registry uses) is the primary source of truth for this
// Router replica; an optional Redis-backed cache (redis.go) lets a fleet
// of stateless Router replicas share entries instead of every replica
// paying a cold registry lookup on first contact with a tenant.
package channelpool

import (
	"context"
	"fmt"
	"time"

	"github.com/LerianStudio/acsd/internal/registry"
)

// ChannelEntry is one cached route to a tenant's worker.
type ChannelEntry struct {
	TenantID   string
	Generation uint64
	Host       string
	Port       int
	OpenedAt   time.Time
}

// RemoteCache is the cross-replica sharing boundary Pool optionally
// writes through to. redis.go's redisCache implements it; tests use a
// fake.
type RemoteCache interface {
	Get(ctx context.Context, tenantID string) (ChannelEntry, bool, error)
	Set(ctx context.Context, entry ChannelEntry) error
	Delete(ctx context.Context, tenantID string) error
}

// Pool is the Router's Channel Pool: a copy-on-write local map fronting
// an optional RemoteCache.
type Pool struct {
	cache    RemoteCache
	snapshot atomicSnapshot
}

// New builds a Pool. cache may be nil, in which case the Pool is purely
// local to this Router replica.
func New(cache RemoteCache) *Pool {
	p := &Pool{cache: cache}
	p.snapshot.store(map[string]ChannelEntry{})
	return p
}

// Lookup resolves tenantID from this replica's local entries, satisfying
// internal/tenantclient.Resolver. A cached entry is always reported as
// Ready; no generation check is made here and the RemoteCache is not
// consulted (Resolve does that).
func (p *Pool) Lookup(tenantID string) (registry.TenantRecord, bool) {
	entry, ok := p.snapshot.load()[tenantID]
	if !ok {
		return registry.TenantRecord{}, false
	}
	return registry.TenantRecord{
		TenantID:   entry.TenantID,
		ListenPort: entry.Port,
		Generation: entry.Generation,
		State:      registry.StateReady,
	}, true
}

// Get returns the locally cached entry for tenantID, without falling
// back to the RemoteCache. Used by Resolve and by tests asserting at
// most one live entry per tenant.
func (p *Pool) Get(tenantID string) (ChannelEntry, bool) {
	entry, ok := p.snapshot.load()[tenantID]
	return entry, ok
}

// Resolve is Get with a RemoteCache fallback: on a local miss, it
// consults cache (if configured) so a Router replica that has never
// talked to tenantID can reuse another replica's freshly opened entry
// instead of forcing a registry round trip.
func (p *Pool) Resolve(ctx context.Context, tenantID string) (ChannelEntry, bool, error) {
	if entry, ok := p.Get(tenantID); ok {
		return entry, true, nil
	}
	if p.cache == nil {
		return ChannelEntry{}, false, nil
	}

	entry, ok, err := p.cache.Get(ctx, tenantID)
	if err != nil {
		return ChannelEntry{}, false, fmt.Errorf("channelpool: remote cache get: %w", err)
	}
	if !ok {
		return ChannelEntry{}, false, nil
	}

	p.storeLocal(entry)
	return entry, true, nil
}

// Put installs entry as tenantID's live channel — at most one live
// entry per tenant_id, so whatever was previously cached is replaced
// unconditionally — and mirrors it to the RemoteCache so other replicas
// can Resolve it.
func (p *Pool) Put(ctx context.Context, entry ChannelEntry) error {
	p.storeLocal(entry)

	if p.cache == nil {
		return nil
	}
	if err := p.cache.Set(ctx, entry); err != nil {
		return fmt.Errorf("channelpool: remote cache set: %w", err)
	}
	return nil
}

// Evict removes tenantID's entry locally and from the RemoteCache, so
// the next Get misses and a fresh Resolve/Put cycle follows.
func (p *Pool) Evict(ctx context.Context, tenantID string) error {
	snap := p.snapshot.load()
	if _, ok := snap[tenantID]; !ok {
		return nil
	}

	next := make(map[string]ChannelEntry, len(snap))
	for k, v := range snap {
		if k != tenantID {
			next[k] = v
		}
	}
	p.snapshot.store(next)

	if p.cache == nil {
		return nil
	}
	if err := p.cache.Delete(ctx, tenantID); err != nil {
		return fmt.Errorf("channelpool: remote cache delete: %w", err)
	}
	return nil
}

func (p *Pool) storeLocal(entry ChannelEntry) {
	snap := p.snapshot.load()
	next := make(map[string]ChannelEntry, len(snap)+1)
	for k, v := range snap {
		next[k] = v
	}
	next[entry.TenantID] = entry
	p.snapshot.store(next)
}
