package channelpool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRemoteCache struct {
	entries map[string]ChannelEntry
}

func newFakeRemoteCache() *fakeRemoteCache {
	return &fakeRemoteCache{entries: make(map[string]ChannelEntry)}
}

func (f *fakeRemoteCache) Get(ctx context.Context, tenantID string) (ChannelEntry, bool, error) {
	e, ok := f.entries[tenantID]
	return e, ok, nil
}

func (f *fakeRemoteCache) Set(ctx context.Context, entry ChannelEntry) error {
	f.entries[entry.TenantID] = entry
	return nil
}

func (f *fakeRemoteCache) Delete(ctx context.Context, tenantID string) error {
	delete(f.entries, tenantID)
	return nil
}

func TestPool_PutThenGet(t *testing.T) {
	p := New(nil)
	ctx := context.Background()

	entry := ChannelEntry{TenantID: "t1", Generation: 1, Host: "127.0.0.1", Port: 9001, OpenedAt: time.Unix(0, 0)}
	require.NoError(t, p.Put(ctx, entry))

	got, ok := p.Get("t1")
	require.True(t, ok)
	assert.Equal(t, entry, got)
}

func TestPool_PutEnforcesSingleLiveEntry(t *testing.T) {
	p := New(nil)
	ctx := context.Background()

	require.NoError(t, p.Put(ctx, ChannelEntry{TenantID: "t1", Generation: 1, Port: 9001}))
	require.NoError(t, p.Put(ctx, ChannelEntry{TenantID: "t1", Generation: 2, Port: 9002}))

	got, ok := p.Get("t1")
	require.True(t, ok)
	assert.Equal(t, uint64(2), got.Generation)
	assert.Equal(t, 9002, got.Port)
}

func TestPool_EvictRemovesLocalAndRemote(t *testing.T) {
	cache := newFakeRemoteCache()
	p := New(cache)
	ctx := context.Background()

	require.NoError(t, p.Put(ctx, ChannelEntry{TenantID: "t1", Generation: 1}))
	require.NoError(t, p.Evict(ctx, "t1"))

	_, ok := p.Get("t1")
	assert.False(t, ok)
	_, ok, err := cache.Get(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPool_ResolveFallsBackToRemoteCacheOnLocalMiss(t *testing.T) {
	cache := newFakeRemoteCache()
	cache.entries["t1"] = ChannelEntry{TenantID: "t1", Generation: 3, Host: "10.0.0.1", Port: 7000}

	p := New(cache)
	ctx := context.Background()

	entry, ok, err := p.Resolve(ctx, "t1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(3), entry.Generation)

	local, ok := p.Get("t1")
	require.True(t, ok)
	assert.Equal(t, entry, local)
}

func TestPool_ResolveMissWithNoRemoteCache(t *testing.T) {
	p := New(nil)
	_, ok, err := p.Resolve(context.Background(), "unknown")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPool_LookupSatisfiesResolverInterface(t *testing.T) {
	p := New(nil)
	ctx := context.Background()
	require.NoError(t, p.Put(ctx, ChannelEntry{TenantID: "t1", Generation: 5, Port: 9001}))

	rec, ok := p.Lookup("t1")
	require.True(t, ok)
	assert.Equal(t, uint64(5), rec.Generation)
	assert.Equal(t, 9001, rec.ListenPort)
}
