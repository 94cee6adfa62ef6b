package ratelimit

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const isolatedRateLimitTestRedisDB = 13

func testRedisClient(t *testing.T) *redis.Client {
	t.Helper()

	host := os.Getenv("CACHE_HOST")
	if host == "" {
		host = "localhost"
	}
	port := os.Getenv("CACHE_PORT")
	if port == "" {
		port = "6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: os.Getenv("CACHE_PASSWORD"),
		DB:       isolatedRateLimitTestRedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Skipping Redis-dependent test: no reachable Redis endpoint (%v)", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisStore_FixedWindow(t *testing.T) {
	client := testRedisClient(t)
	prefix := "test:ratelimit:" + uuid.New().String() + ":"
	t.Cleanup(func() {
		keys, _ := client.Keys(context.Background(), prefix+"*").Result()
		if len(keys) > 0 {
			client.Del(context.Background(), keys...)
		}
	})

	l := New(NewRedisStore(client, prefix), DefaultPolicies(), nil)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		res, err := l.Check(ctx, "redis-client", PolicyStrict)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 5-i, res.Remaining)
	}
	res, err := l.Check(ctx, "redis-client", PolicyStrict)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.ResetInMs(), int64(0))
	assert.LessOrEqual(t, res.ResetInMs(), int64(60_000))

	ttl, err := client.PTTL(ctx, prefix+PolicyStrict+":redis-client").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
