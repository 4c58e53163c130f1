package cache

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

// RedisCache is an optional shared cache backend: teams running RTX across
// many CI runners can point every runner at the same Redis instance so a
// cache warmed by one runner is a hit for the next, without needing a
// shared filesystem. It still single-flights through an in-process
// MemoryCache first, since coalescing concurrent misses within one process
// does not need a round trip to Redis.
type RedisCache struct {
	client *redis.Client
	mem    *MemoryCache
	prefix string
}

// NewRedisCache wraps an existing *redis.Client. prefix namespaces keys so
// multiple RTX deployments can share one Redis instance safely.
func NewRedisCache(client *redis.Client, prefix string, maxSize int) *RedisCache {
	return &RedisCache{client: client, mem: NewMemoryCache(maxSize), prefix: prefix}
}

func (c *RedisCache) redisKey(key Key) string {
	return c.prefix + ":" + singleflightKey(key)
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	if payload, ok, err := c.mem.Get(ctx, key); err == nil && ok {
		return payload, true, nil
	}

	payload, err := c.client.Get(ctx, c.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "cache: redis get")
	}

	ttl, err := c.client.TTL(ctx, c.redisKey(key)).Result()
	if err != nil || ttl <= 0 {
		return nil, false, nil
	}
	_ = c.mem.Set(ctx, key, payload, ttl)
	return payload, true, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, key Key, payload []byte, ttl time.Duration) error {
	if err := c.mem.Set(ctx, key, payload, ttl); err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.redisKey(key), payload, ttl).Err(); err != nil {
		return errors.Wrap(err, "cache: redis set")
	}
	return nil
}

// GetOrFetch implements Cache.
func (c *RedisCache) GetOrFetch(ctx context.Context, key Key, ttl time.Duration, fetch func(context.Context) ([]byte, error)) ([]byte, error) {
	if payload, ok, _ := c.Get(ctx, key); ok {
		return payload, nil
	}
	return c.mem.GetOrFetch(ctx, key, ttl, func(ctx context.Context) ([]byte, error) {
		payload, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, c.redisKey(key), payload, ttl).Err(); err != nil {
			return nil, errors.Wrap(err, "cache: redis set")
		}
		return payload, nil
	})
}
