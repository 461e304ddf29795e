// Package cache provides the Redis-backed answer cache for routed queries.
// Keys carry the routing component versions, so deploying a change to a
// component invalidates the answers that depended on it.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/dileep-u-k/mcp-gateway/internal/version"
)

const answerCachePrefix = "routecache"

// DefaultTTL keeps routed answers for a day.
const DefaultTTL = 24 * time.Hour

// AnswerCache caches final routed answers in Redis under version-aware keys.
// A nil AnswerCache is valid and disables caching.
type AnswerCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New builds an answer cache. A nil Redis client yields a disabled cache.
func New(rdb *redis.Client, ttl time.Duration) *AnswerCache {
	if rdb == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &AnswerCache{rdb: rdb, ttl: ttl}
}

// Get loads the cached answer for a query into dest and reports whether it
// was found. Redis errors are logged and reported as misses so the route
// still proceeds.
func (c *AnswerCache) Get(ctx context.Context, query string, dest any) bool {
	if c == nil {
		return false
	}
	key := version.GenerateVersionedCacheKey(answerCachePrefix, query)
	payload, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		log.Debug().Msg("Answer cache MISS")
		return false
	}
	if err != nil {
		log.Warn().Err(err).Msg("Answer cache read failed")
		return false
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		log.Warn().Err(err).Msg("Discarding unreadable answer cache entry")
		return false
	}
	log.Debug().Msg("Answer cache HIT")
	return true
}

// Set stores a routed answer under the query's versioned key.
func (c *AnswerCache) Set(ctx context.Context, query string, value any) {
	if c == nil {
		return
	}
	payload, err := json.Marshal(value)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to marshal answer for cache")
		return
	}
	key := version.GenerateVersionedCacheKey(answerCachePrefix, query)
	if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Msg("Failed to write answer cache")
	}
}
