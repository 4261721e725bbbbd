package policy

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounterStore backs the counters with Redis atomic INCR/INCRBY. The
// TTL is attached only when the key is created, so the window expiry is
// anchored at the first hit.
type RedisCounterStore struct {
	client *redis.Client
}

// NewRedisCounterStore wraps an existing Redis client.
func NewRedisCounterStore(client *redis.Client) *RedisCounterStore {
	return &RedisCounterStore{client: client}
}

func (s *RedisCounterStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return s.Add(ctx, key, 1, ttl)
}

func (s *RedisCounterStore) Add(ctx context.Context, key string, n int64, ttl time.Duration) (int64, error) {
	pipe := s.client.TxPipeline()
	incr := pipe.IncrBy(ctx, key, n)
	pipe.ExpireNX(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (s *RedisCounterStore) Get(ctx context.Context, key string) (int64, error) {
	v, err := s.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return v, nil
}

// Ping verifies Redis connectivity; used by the readiness probe.
func (s *RedisCounterStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
