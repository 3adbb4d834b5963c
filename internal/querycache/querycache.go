// Package querycache is the outer per-user query cache backed by Redis.
//
// It sits in front of the answer pipeline: a hit skips embedding, search
// and generation entirely. Redis being down degrades to cache misses, it
// never fails a query.
package querycache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/koopa0/secondbrain/internal/log"
)

// DefaultTTL is how long a cached query response stays valid.
const DefaultTTL = time.Hour

// Redis is the subset of redis.Client commands the cache uses.
type Redis interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Cache caches query responses per user.
// A nil *Cache is valid and always misses, so callers need no nil checks
// when Redis is not configured.
type Cache struct {
	client Redis
	ttl    time.Duration
	logger log.Logger
}

// New creates a cache. ttl <= 0 uses DefaultTTL.
func New(client Redis, ttl time.Duration, logger log.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Cache{client: client, ttl: ttl, logger: logger}
}

// Get returns a cached response for the user's query.
func (c *Cache) Get(ctx context.Context, ownerID, query string) (string, bool) {
	if c == nil || c.client == nil {
		return "", false
	}

	val, err := c.client.Get(ctx, cacheKey(ownerID, query)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false
	}
	if err != nil {
		c.logger.Warn("query cache read failed", "error", err)
		return "", false
	}
	return val, true
}

// Set stores a response for the user's query. Write failures are logged
// and swallowed.
func (c *Cache) Set(ctx context.Context, ownerID, query, response string) {
	if c == nil || c.client == nil {
		return
	}

	if err := c.client.Set(ctx, cacheKey(ownerID, query), response, c.ttl).Err(); err != nil {
		c.logger.Warn("query cache write failed", "error", err)
	}
}

func cacheKey(ownerID, query string) string {
	return fmt.Sprintf("query:%s:%s", ownerID, query)
}
