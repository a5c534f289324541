package caching

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredisStore(t *testing.T) (*miniredis.Miniredis, Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisStore(client)
}

func TestRedisStore_RoundTripAndExpiry(t *testing.T) {
	ctx := context.Background()
	mr, store := newMiniredisStore(t)

	require.NoError(t, store.Set(ctx, "k", []byte("v"), 300*time.Second))

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	mr.FastForward(301 * time.Second)

	got, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStore_Delete(t *testing.T) {
	ctx := context.Background()
	_, store := newMiniredisStore(t)

	require.NoError(t, store.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, store.Delete(ctx, "a", "missing"))
	require.NoError(t, store.Delete(ctx))

	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStore_Counters(t *testing.T) {
	ctx := context.Background()
	mr, store := newMiniredisStore(t)
	clock := clockwork.NewFakeClock()
	store.(*redisStore).clock = clock
	seed := clock.Now().UnixMicro()

	require.NoError(t, store.Incr(ctx, "g1", "g2"))
	require.NoError(t, store.Incr(ctx, "g1"))

	got, err := store.Counters(ctx, "g1", "g2", "never")
	require.NoError(t, err)
	assert.Equal(t, []int64{seed + 2, seed + 1, seed}, got)

	mr.FastForward(24 * time.Hour)
	got, err = store.Counters(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, []int64{seed + 2}, got, "counters carry no TTL")
}

func TestRedisStore_EvictedCounterNeverRepeats(t *testing.T) {
	ctx := context.Background()
	mr, store := newMiniredisStore(t)
	clock := clockwork.NewFakeClock()
	store.(*redisStore).clock = clock

	require.NoError(t, store.Incr(ctx, "gen", "gen", "gen"))
	before, err := store.Counters(ctx, "gen")
	require.NoError(t, err)

	// allkeys-* eviction drops keys without a TTL as well.
	clock.Advance(time.Second)
	mr.Del("gen")

	after, err := store.Counters(ctx, "gen")
	require.NoError(t, err)
	assert.Greater(t, after[0], before[0])

	clock.Advance(time.Second)
	mr.Del("gen")
	require.NoError(t, store.Incr(ctx, "gen"))
	bumped, err := store.Counters(ctx, "gen")
	require.NoError(t, err)
	assert.Greater(t, bumped[0], after[0])
}

func TestRedisStore_Unavailable(t *testing.T) {
	ctx := context.Background()
	mr, store := newMiniredisStore(t)
	mr.Close()

	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheUnavailable)
	assert.ErrorIs(t, store.Ping(ctx), ErrCacheUnavailable)
	assert.ErrorIs(t, store.Incr(ctx, "g"), ErrCacheUnavailable)
}

func TestConnectRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := ConnectRedis(context.Background(), "redis://"+mr.Addr()+"/0", time.Second)
	require.NoError(t, err)
	defer client.Close()
	assert.NoError(t, client.Ping(context.Background()).Err())

	_, err = ConnectRedis(context.Background(), "::not a url", time.Second)
	assert.ErrorIs(t, err, ErrFailedToParseRedisURL)
}
