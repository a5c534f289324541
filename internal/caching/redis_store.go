package caching

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

var (
	ErrFailedToParseRedisURL = errors.New("failed to parse redis connection string")
	ErrRedisNotReady         = errors.New("redis did not become ready within the given time period")
)

// Missing counters are seeded with ARGV[1] inside the script, so seeding and
// reading or bumping happen in one atomic step.
var (
	readCountersScript = redis.NewScript(`
local out = {}
for i, key in ipairs(KEYS) do
  local v = redis.call('GET', key)
  if not v then
    redis.call('SET', key, ARGV[1])
    v = ARGV[1]
  end
  out[i] = v
end
return out
`)

	incrCountersScript = redis.NewScript(`
for _, key in ipairs(KEYS) do
  if redis.call('EXISTS', key) == 0 then
    redis.call('SET', key, ARGV[1])
  end
  redis.call('INCR', key)
end
return #KEYS
`)
)

type redisStore struct {
	client redis.UniversalClient
	clock  clockwork.Clock
}

func NewRedisStore(client redis.UniversalClient) Store {
	return &redisStore{client: client, clock: clockwork.NewRealClock()}
}

// ConnectRedis parses url and pings the server until it answers or timeout elapses.
func ConnectRedis(ctx context.Context, url string, timeout time.Duration) (*redis.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseRedisURL, err)
	}

	client := redis.NewClient(opts)
	for {
		err := client.Ping(ctx).Err()
		if err == nil {
			return client, nil
		}
		select {
		case <-ctx.Done():
			_ = client.Close()
			return nil, errors.Join(ErrRedisNotReady, err)
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (r *redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // cache miss
		}
		return nil, errors.Join(ErrCacheUnavailable, err)
	}
	return data, nil
}

func (r *redisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return errors.Join(ErrCacheUnavailable, err)
	}
	return nil
}

func (r *redisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return errors.Join(ErrCacheUnavailable, err)
	}
	return nil
}

func (r *redisStore) seed() string {
	return strconv.FormatInt(counterSeed(r.clock), 10)
}

func (r *redisStore) Incr(ctx context.Context, counters ...string) error {
	if len(counters) == 0 {
		return nil
	}
	if err := incrCountersScript.Run(ctx, r.client, counters, r.seed()).Err(); err != nil {
		return errors.Join(ErrCacheUnavailable, err)
	}
	return nil
}

func (r *redisStore) Counters(ctx context.Context, counters ...string) ([]int64, error) {
	if len(counters) == 0 {
		return nil, nil
	}
	vals, err := readCountersScript.Run(ctx, r.client, counters, r.seed()).StringSlice()
	if err != nil {
		return nil, errors.Join(ErrCacheUnavailable, err)
	}

	out := make([]int64, len(vals))
	for i, v := range vals {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, errors.Join(ErrCacheUnavailable, err)
		}
		out[i] = n
	}
	return out, nil
}

func (r *redisStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return errors.Join(ErrCacheUnavailable, err)
	}
	return nil
}
