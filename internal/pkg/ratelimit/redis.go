package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// INCR and PEXPIRE run as one script so concurrent instances never observe a
// counter without its expiry.
var hitScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisStore shares counters between application instances. Windows expire
// through Redis key TTLs, so Sweep has nothing to do.
type RedisStore struct {
	client redis.Scripter
	prefix string
}

// NewRedisStore creates a store writing keys below prefix.
func NewRedisStore(client redis.Scripter, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Hit implements Store.
func (s *RedisStore) Hit(ctx context.Context, key string, window time.Duration, now time.Time) (Entry, error) {
	ms := window.Milliseconds()
	if ms <= 0 {
		ms = 1
	}

	vals, err := hitScript.Run(ctx, s.client, []string{s.prefix + key}, ms).Int64Slice()
	if err != nil {
		return Entry{}, fmt.Errorf("redis rate limit hit: %w", err)
	}
	if len(vals) != 2 {
		return Entry{}, fmt.Errorf("redis rate limit hit: unexpected reply %v", vals)
	}

	return Entry{
		Count:   int(vals[0]),
		ResetAt: now.Add(time.Duration(vals[1]) * time.Millisecond),
	}, nil
}

// Sweep implements Store.
func (s *RedisStore) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}
