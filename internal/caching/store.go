package caching

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
)

var (
	ErrCacheUnavailable = errors.New("cache backend unavailable")
	ErrEmptyKey         = errors.New("cache key must not be empty")
)

// Store is the key-value backend behind the cache. Values are opaque bytes.
//
// Get returns (nil, nil) on a miss, including for entries whose TTL has
// elapsed but that have not been purged yet.
//
// Counters carry no TTL. A counter that does not exist, because it was never
// created or because the backend evicted it, is first seeded with
// counterSeed. A recreated counter therefore starts above every value its
// predecessor reached and never points readers back at old generations.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error

	// Incr bumps every counter by one in a single atomic step.
	Incr(ctx context.Context, counters ...string) error
	Counters(ctx context.Context, counters ...string) ([]int64, error)

	Ping(ctx context.Context) error
}

// counterSeed is the clock in microseconds. A lost counter is re-created
// above its old value unless it was bumped more than once per microsecond
// over its whole lifetime.
func counterSeed(clock clockwork.Clock) int64 {
	return clock.Now().UnixMicro()
}
