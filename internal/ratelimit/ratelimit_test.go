package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiter(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(Config{Requests: 3, Window: time.Minute, Burst: 3})
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for range 3 {
		d, err := l.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}

	d, err := l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, 20*time.Second, d.RetryAfter)

	d, err = l.Allow(ctx, "5.6.7.8")
	require.NoError(t, err)
	require.True(t, d.Allowed, "keys are independent")

	now = now.Add(20 * time.Second)
	d, err = l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	require.True(t, d.Allowed, "one token refilled")
}

func TestRedisLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisLimiter(client, "rl:auth", Config{Requests: 2, Window: time.Minute})
	ctx := context.Background()

	for range 2 {
		d, err := l.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}

	d, err := l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, time.Minute, d.RetryAfter)
	require.Equal(t, "3", mustGet(t, mr, "rl:auth:1.2.3.4"))

	mr.FastForward(time.Minute)
	d, err = l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	require.True(t, d.Allowed, "window expired")
}

func TestRedisLimiter_CounterAlwaysExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisLimiter(client, "rl:auth", Config{Requests: 5, Window: time.Minute})
	ctx := context.Background()

	_, err := l.Allow(ctx, "fresh")
	require.NoError(t, err)
	require.Equal(t, time.Minute, mr.TTL("rl:auth:fresh"))
	require.Equal(t, "1", mustGet(t, mr, "rl:auth:fresh"))

	// a counter stuck without expiry is repaired instead of locking the client out
	require.NoError(t, mr.Set("rl:auth:stuck", "9"))
	d, err := l.Allow(ctx, "stuck")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, time.Minute, d.RetryAfter)
	require.Equal(t, time.Minute, mr.TTL("rl:auth:stuck"))

	mr.FastForward(time.Minute)
	d, err = l.Allow(ctx, "stuck")
	require.NoError(t, err)
	require.True(t, d.Allowed)
}

func TestRedisLimiter_Unavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	_, err := NewRedisLimiter(client, "rl", Config{Requests: 1, Window: time.Second}).Allow(context.Background(), "k")
	require.ErrorIs(t, err, ErrUnavailable)
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}
