// Package cache provides a best-effort Redis read-through cache. The
// persistence layer remains the source of truth: cache failures are logged
// and never fail a request.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// NewClient creates a Redis client and verifies connectivity.
func NewClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		PoolSize: 20,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, errors.Wrapf(err, "ping redis at %s", addr)
	}
	return client, nil
}

// Cache is a JSON key-value cache with a fixed key prefix and TTL.
type Cache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	lg     *zap.Logger
}

// New creates a Cache. Keys are namespaced as "<prefix>:<key>".
func New(rdb *redis.Client, prefix string, ttl time.Duration, lg *zap.Logger) *Cache {
	return &Cache{rdb: rdb, prefix: prefix, ttl: ttl, lg: lg}
}

func (c *Cache) key(k string) string {
	return c.prefix + ":" + k
}

// Get loads the cached value for key into dest. Returns false on a miss or
// on any cache failure.
func (c *Cache) Get(ctx context.Context, key string, dest any) bool {
	data, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.lg.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		c.lg.Warn("cache entry corrupt, dropping", zap.String("key", key), zap.Error(err))
		c.Delete(ctx, key)
		return false
	}
	return true
}

// Set stores value under key with the cache's TTL.
func (c *Cache) Set(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		c.lg.Warn("cache marshal failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.rdb.Set(ctx, c.key(key), data, c.ttl).Err(); err != nil {
		c.lg.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// Delete removes the given keys.
func (c *Cache) Delete(ctx context.Context, keys ...string) {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	if err := c.rdb.Del(ctx, full...).Err(); err != nil {
		c.lg.Warn("cache delete failed", zap.Strings("keys", keys), zap.Error(err))
	}
}
