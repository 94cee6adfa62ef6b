package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T) (*Limiter, *testclock.Clock, *MemoryStore) {
	t.Helper()
	clk := testclock.NewClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	store := NewMemoryStore()
	return New(store, DefaultPolicies(), clk), clk, store
}

func TestCheck_RejectsRequestAboveLimit(t *testing.T) {
	l, _, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		res, err := l.Check(ctx, "10.0.0.1", PolicyStrict)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i)
		assert.Equal(t, 5-i, res.Remaining)
		assert.Equal(t, 5, res.Limit)
	}

	res, err := l.Check(ctx, "10.0.0.1", PolicyStrict)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, int64(60_000), res.ResetInMs())
}

func TestCheck_NextWindowAcceptsAfterReset(t *testing.T) {
	l, clk, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := l.Check(ctx, "client", PolicyStrict)
		require.NoError(t, err)
	}
	res, err := l.Check(ctx, "client", PolicyStrict)
	require.NoError(t, err)
	require.False(t, res.Allowed)

	clk.Advance(res.ResetIn)

	for i := 1; i <= 5; i++ {
		res, err = l.Check(ctx, "client", PolicyStrict)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d of new window", i)
	}
	res, err = l.Check(ctx, "client", PolicyStrict)
	require.NoError(t, err)
	assert.False(t, res.Allowed, "6th request of new window")
}

func TestCheck_WindowIsFixedNotSliding(t *testing.T) {
	l, clk, _ := newTestLimiter(t)
	ctx := context.Background()

	first, err := l.Check(ctx, "client", PolicyStrict)
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, first.ResetIn)

	clk.Advance(30 * time.Second)
	second, err := l.Check(ctx, "client", PolicyStrict)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, second.ResetIn, "hits must not extend the window")
}

func TestCheck_DefaultPolicy101stRequestRejected(t *testing.T) {
	l, _, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		res, err := l.Check(ctx, "guest", PolicyDefault)
		require.NoError(t, err)
		require.True(t, res.Allowed)
	}
	res, err := l.Check(ctx, "guest", PolicyDefault)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
}

func TestCheck_PoliciesAndClientsAreIndependent(t *testing.T) {
	l, _, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := l.Check(ctx, "a", PolicyStrict)
		require.NoError(t, err)
	}

	res, err := l.Check(ctx, "b", PolicyStrict)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = l.Check(ctx, "a", PolicyDefault)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestCheck_UnknownPolicy(t *testing.T) {
	l, _, _ := newTestLimiter(t)
	_, err := l.Check(context.Background(), "a", "nope")
	require.Error(t, err)
}

func TestCheck_ConcurrentBurstHasNoLostUpdates(t *testing.T) {
	l, _, _ := newTestLimiter(t)
	ctx := context.Background()

	var allowed int64
	var wg sync.WaitGroup
	for g := 0; g < 50; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 3; i++ {
				res, err := l.Check(ctx, "burst", PolicyDefault)
				if err == nil && res.Allowed {
					atomic.AddInt64(&allowed, 1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(100), allowed)
}

func TestSweep_RemovesOnlyExpiredWindows(t *testing.T) {
	l, clk, store := newTestLimiter(t)
	ctx := context.Background()

	_, err := l.Check(ctx, "short", PolicyStrict)
	require.NoError(t, err)
	_, err = l.Check(ctx, "long", PolicyAuth)
	require.NoError(t, err)
	require.Equal(t, 2, store.Len())

	clk.Advance(61 * time.Second)
	n, err := l.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, store.Len())
}

func TestStartStop(t *testing.T) {
	l, _, _ := newTestLimiter(t)
	l.Start(time.Second)
	l.Start(time.Second)
	l.Stop()
	l.Stop()
}
