package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/fedsearch/fedsearch/internal/errors"
)

func TestMemoryStoreSetGet(t *testing.T) {
	store := NewMemoryStore(0, 0)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a", []byte("payload"), time.Minute))

	data, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	_, err = store.Get(ctx, "missing")
	assert.True(t, apperrors.IsCacheMiss(err))
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	store := NewMemoryStore(0, 0)
	defer store.Close()
	ctx := context.Background()

	now := time.Now()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Set(ctx, "a", []byte("payload"), time.Minute))

	now = now.Add(59 * time.Second)
	_, err := store.Get(ctx, "a")
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	_, err = store.Get(ctx, "a")
	assert.True(t, apperrors.IsCacheMiss(err))
	assert.EqualValues(t, 1, store.Evictions())
}

func TestMemoryStoreZeroTTLNeverExpires(t *testing.T) {
	store := NewMemoryStore(0, 0)
	defer store.Close()
	ctx := context.Background()

	now := time.Now()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Set(ctx, "a", []byte("payload"), 0))

	now = now.Add(1000 * time.Hour)
	_, err := store.Get(ctx, "a")
	assert.NoError(t, err)
}

func TestMemoryStoreEvictsLeastRecentlyUsed(t *testing.T) {
	// Budget fits exactly three 8-byte payloads.
	store := NewMemoryStore(24, 0)
	defer store.Close()
	ctx := context.Background()

	payload := []byte("12345678")
	require.NoError(t, store.Set(ctx, "a", payload, 0))
	require.NoError(t, store.Set(ctx, "b", payload, 0))
	require.NoError(t, store.Set(ctx, "c", payload, 0))

	// Touch a so b becomes the least recently used entry.
	_, err := store.Get(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, "d", payload, 0))

	_, err = store.Get(ctx, "b")
	assert.True(t, apperrors.IsCacheMiss(err), "least recently used entry should be evicted")
	for _, key := range []string{"a", "c", "d"} {
		_, err := store.Get(ctx, key)
		assert.NoError(t, err, key)
	}
	assert.EqualValues(t, 1, store.Evictions())

	size, err := store.TotalSize(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 24, size)
}

func TestMemoryStoreKeepsNewestEntryWhenOverBudget(t *testing.T) {
	store := NewMemoryStore(4, 0)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "big", []byte("12345678"), 0))

	_, err := store.Get(ctx, "big")
	assert.NoError(t, err, "a single oversized entry is kept rather than thrashed")
}

func TestMemoryStoreReplaceAdjustsSize(t *testing.T) {
	store := NewMemoryStore(0, 0)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a", []byte("12345678"), 0))
	require.NoError(t, store.Set(ctx, "a", []byte("1234"), 0))

	size, err := store.TotalSize(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 4, size)

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryStorePrefixOperations(t *testing.T) {
	store := NewMemoryStore(0, 0)
	defer store.Close()
	ctx := context.Background()

	for _, key := range []string{"fs:sales:1", "fs:sales:1:p1", "fs:hr:2"} {
		require.NoError(t, store.Set(ctx, key, []byte("x"), 0))
	}

	keys, err := store.Keys(ctx, "fs:sales:")
	require.NoError(t, err)
	assert.Equal(t, []string{"fs:sales:1", "fs:sales:1:p1"}, keys)

	removed, err := store.DeleteByPrefix(ctx, "fs:sales:")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryStoreDeleteIsIdempotent(t *testing.T) {
	store := NewMemoryStore(0, 0)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a", []byte("x"), 0))
	require.NoError(t, store.Delete(ctx, "a"))
	require.NoError(t, store.Delete(ctx, "a"))

	size, err := store.TotalSize(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, size)
}

func TestMemoryStoreSweepRemovesExpired(t *testing.T) {
	store := NewMemoryStore(0, 0)
	defer store.Close()
	ctx := context.Background()

	now := time.Now()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Set(ctx, "short", []byte("x"), time.Second))
	require.NoError(t, store.Set(ctx, "long", []byte("x"), time.Hour))

	now = now.Add(2 * time.Second)
	store.sweepExpired()

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = store.Get(ctx, "long")
	assert.NoError(t, err)
	assert.EqualValues(t, 1, store.Evictions())
}

func TestMemoryStoreCloseIsIdempotent(t *testing.T) {
	store := NewMemoryStore(0, time.Millisecond)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())
}
