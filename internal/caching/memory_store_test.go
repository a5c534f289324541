package caching

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_RoundTripAndExpiry(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	store := NewMemoryStore(clock, 10)

	require.NoError(t, store.Set(ctx, "k", []byte("v"), 300*time.Second))

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	clock.Advance(299 * time.Second)
	got, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	clock.Advance(time.Second)
	got, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got, "entry must be gone once its TTL has elapsed")
}

func TestMemoryStore_SetOverwrites(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	store := NewMemoryStore(clock, 10)

	require.NoError(t, store.Set(ctx, "k", []byte("old"), time.Second))
	require.NoError(t, store.Set(ctx, "k", []byte("new"), time.Minute))

	clock.Advance(30 * time.Second)
	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), got)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(clockwork.NewFakeClock(), 10)

	value := []byte("abc")
	require.NoError(t, store.Set(ctx, "k", value, time.Minute))
	value[0] = 'x'

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)

	got[1] = 'y'
	again, _ := store.Get(ctx, "k")
	assert.Equal(t, []byte("abc"), again)
}

func TestMemoryStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(clockwork.NewFakeClock(), 10)

	require.NoError(t, store.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, store.Set(ctx, "b", []byte("2"), time.Minute))
	require.NoError(t, store.Delete(ctx, "a", "missing"))

	got, _ := store.Get(ctx, "a")
	assert.Nil(t, got)
	got, _ = store.Get(ctx, "b")
	assert.Equal(t, []byte("2"), got)
}

func TestMemoryStore_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(clockwork.NewFakeClock(), 2)

	require.NoError(t, store.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, store.Set(ctx, "b", []byte("2"), time.Minute))
	_, _ = store.Get(ctx, "a")
	require.NoError(t, store.Set(ctx, "c", []byte("3"), time.Minute))

	got, _ := store.Get(ctx, "b")
	assert.Nil(t, got)
	got, _ = store.Get(ctx, "a")
	assert.Equal(t, []byte("1"), got)
	assert.EqualValues(t, 1, store.Stats().Evictions)
}

func TestMemoryStore_Counters(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	store := NewMemoryStore(clock, 1)
	seed := clock.Now().UnixMicro()

	require.NoError(t, store.Incr(ctx, "g1", "g2"))
	require.NoError(t, store.Incr(ctx, "g1"))

	// Filling the LRU must not touch counters.
	require.NoError(t, store.Set(ctx, "x", []byte("1"), time.Minute))
	require.NoError(t, store.Set(ctx, "y", []byte("1"), time.Minute))

	got, err := store.Counters(ctx, "g1", "g2", "never")
	require.NoError(t, err)
	assert.Equal(t, []int64{seed + 2, seed + 1, seed}, got)
}

func TestMemoryStore_DroppedCounterNeverRepeats(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	store := NewMemoryStore(clock, 10)

	require.NoError(t, store.Incr(ctx, "gen", "gen", "gen"))
	before, err := store.Counters(ctx, "gen")
	require.NoError(t, err)

	clock.Advance(counterIdleTTL - time.Second)
	store.PurgeExpired()
	assert.Equal(t, 1, store.Stats().Counters, "recently used counters stay")

	clock.Advance(counterIdleTTL)
	store.PurgeExpired()
	assert.Equal(t, 0, store.Stats().Counters)

	after, err := store.Counters(ctx, "gen")
	require.NoError(t, err)
	assert.Greater(t, after[0], before[0])
}

func TestMemoryStore_PurgeExpired(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	store := NewMemoryStore(clock, 10)

	require.NoError(t, store.Set(ctx, "short", []byte("1"), time.Second))
	require.NoError(t, store.Set(ctx, "long", []byte("2"), time.Hour))

	clock.Advance(time.Minute)
	assert.Equal(t, 2, store.Len())
	assert.Equal(t, 1, store.PurgeExpired())
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStore_RejectsEmptyKey(t *testing.T) {
	store := NewMemoryStore(nil, 0)
	assert.ErrorIs(t, store.Set(context.Background(), "", []byte("v"), time.Second), ErrEmptyKey)
}
