// Package redisstore implements adapter.CoordinationStore over Redis,
// mapping its five primitives directly onto INCR/SETNX/EXPIRE/DEL/GET.
//
// Grounded on goadesign-goa-ai/registry's Redis usage: registry.go's
// Redis *redis.Client field, result_stream.go's rdb.Get(ctx,
// key).Result()/redis.Nil-as-miss pattern and rdb.Expire(ctx, key,
// ttl).Err() calls, service.go's rdb.Expire(...).Result() TTL refresh, and
// cmd/registry/main.go's redis.NewClient(&redis.Options{Addr, Password})
// construction.
package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store adapts a *redis.Client to adapter.CoordinationStore.
type Store struct {
	rdb *redis.Client
}

// New wraps an already-constructed *redis.Client. Callers build the client
// themselves (redis.NewClient(&redis.Options{Addr, Password, ...})) the way
// cmd/registry/main.go does, so connection lifecycle stays with the caller.
func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Increment runs INCR then refreshes the key's TTL, matching the
// increment-then-extend shape result_stream.go's TTL-refresh calls use
// (two round trips rather than a Lua script, since the coordination store
// seam doesn't require single-round-trip atomicity beyond INCR itself).
func (s *Store) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if err := s.rdb.Expire(ctx, key, ttl).Err(); err != nil {
		return count, err
	}
	return count, nil
}

// SetIfNotExist runs SETNX with an expiry, reporting whether this caller
// was the one to set it.
func (s *Store) SetIfNotExist(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, key, value, ttl).Result()
}

// ExtendTTL refreshes key's expiry, the same call service.go's heartbeat
// refresh uses (rdb.Expire(ctx, key, ttl)).
func (s *Store) ExtendTTL(ctx context.Context, key string, ttl time.Duration) error {
	return s.rdb.Expire(ctx, key, ttl).Err()
}

// Delete removes key, the same rdb.Del(ctx, key).Err() shape
// result_stream.go uses to drop a consumed mapping.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

// Get reads key, reporting (value, false, nil) on a miss rather than
// surfacing redis.Nil as an error, matching result_stream.go's
// errors.Is(err, redis.Nil) miss-handling.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}
