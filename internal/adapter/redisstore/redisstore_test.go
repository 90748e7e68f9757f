package redisstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore connects to REDIS_ADDR (default localhost:6379) and skips
// the test outright if nothing answers, the same "skip when the real
// backing service isn't reachable" shape goadesign-goa-ai's integration
// tests use, minus the testcontainers dependency this module doesn't carry.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not reachable at %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb)
}

func TestSetIfNotExistOnlyFirstCallerWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := "flowcraft:test:setnx:" + t.Name()
	defer func() { _ = s.Delete(ctx, key) }()

	first, err := s.SetIfNotExist(ctx, key, "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := s.SetIfNotExist(ctx, key, "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, second)

	val, found, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "a", val)
}

func TestIncrementAccumulatesAndTTLSurvivesCalls(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := "flowcraft:test:incr:" + t.Name()
	defer func() { _ = s.Delete(ctx, key) }()

	first, err := s.Increment(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first)

	second, err := s.Increment(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), second)

	ttl, err := s.rdb.TTL(ctx, key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestGetMissReturnsFoundFalse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, found, err := s.Get(ctx, "flowcraft:test:missing:"+t.Name())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDeleteRemovesKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := "flowcraft:test:del:" + t.Name()

	_, err := s.SetIfNotExist(ctx, key, "x", time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, key))

	_, found, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)
}
