package redis

import (
	"context"
	"testing"
	"time"

	"github.com/Nixie-Tech-LLC/minaret/internal/model"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupCacheStore(t *testing.T) (*CacheStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := NewClient(mr.Addr(), "", "")
	t.Cleanup(func() { _ = rdb.Close() })
	return NewCacheStore(rdb), mr
}

func TestCacheStoreRoundTrip(t *testing.T) {
	store, mr := setupCacheStore(t)
	ctx := context.Background()

	resolvedAt := time.Date(2025, 8, 5, 14, 3, 0, 0, time.UTC)
	entry := model.ResolutionCacheEntry{
		UserID:         "user-1",
		LastLat:        41.8781,
		LastLon:        -87.6298,
		LastOrgID:      "org-loop",
		LastDistanceM:  412,
		LastResolvedAt: resolvedAt,
	}
	require.NoError(t, store.Write(ctx, entry))

	got, err := store.Read(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "org-loop", got.LastOrgID)
	assert.Equal(t, 412, got.LastDistanceM)
	assert.True(t, resolvedAt.Equal(got.LastResolvedAt))
	assert.Equal(t, entry.LastLat, got.LastLat)

	assert.Equal(t, time.Duration(0), mr.TTL("resolution:user-1"))
}

func TestCacheStoreOverwrites(t *testing.T) {
	store, _ := setupCacheStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, model.ResolutionCacheEntry{UserID: "u", LastOrgID: "a", LastDistanceM: 10}))
	require.NoError(t, store.Write(ctx, model.ResolutionCacheEntry{UserID: "u", LastOrgID: "b", LastDistanceM: 20}))

	got, err := store.Read(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, "b", got.LastOrgID)
	assert.Equal(t, 20, got.LastDistanceM)
}

func TestCacheStoreMissingAndCorrupt(t *testing.T) {
	store, mr := setupCacheStore(t)
	ctx := context.Background()

	got, err := store.Read(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, mr.Set("resolution:broken", "{not json"))
	got, err = store.Read(ctx, "broken")
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.Error(t, store.Write(ctx, model.ResolutionCacheEntry{}))
}

func TestCacheStoreUnavailable(t *testing.T) {
	store, mr := setupCacheStore(t)
	mr.Close()

	_, err := store.Read(context.Background(), "user-1")
	assert.Error(t, err)
	assert.Error(t, store.Ping(context.Background()))
}

func TestCacheStorePing(t *testing.T) {
	store, _ := setupCacheStore(t)
	assert.NoError(t, store.Ping(context.Background()))
}
