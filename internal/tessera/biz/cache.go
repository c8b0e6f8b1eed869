package biz

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/tessera-ai/tessera/internal/model"
)

// AnswerCacheConfig configures the answer cache.
type AnswerCacheConfig struct {
	// TTL is the entry lifetime.
	TTL time.Duration
	// KeyPrefix namespaces the cache keys.
	KeyPrefix string
}

// DefaultAnswerCacheConfig returns the default cache configuration.
func DefaultAnswerCacheConfig() *AnswerCacheConfig {
	return &AnswerCacheConfig{
		TTL:       1 * time.Hour,
		KeyPrefix: "tessera:answers:",
	}
}

// AnswerCache caches (collection, query) answers in Redis.
//
// The cache is an optimization only. Every operation degrades to miss
// behavior when Redis is unavailable, a nil client disables caching entirely.
type AnswerCache struct {
	redis  *goredis.Client
	config *AnswerCacheConfig
}

// NewAnswerCache creates an answer cache. A nil client yields a disabled
// cache whose operations are all no-ops.
func NewAnswerCache(redis *goredis.Client, config *AnswerCacheConfig) *AnswerCache {
	if config == nil {
		config = DefaultAnswerCacheConfig()
	}
	return &AnswerCache{
		redis:  redis,
		config: config,
	}
}

// key derives the content-addressed cache key. The query is trimmed before
// hashing so trailing whitespace does not split entries.
func (c *AnswerCache) key(collectionID, query string) string {
	hash := sha256.Sum256([]byte(strings.TrimSpace(query)))
	return c.config.KeyPrefix + collectionID + ":" + hex.EncodeToString(hash[:])
}

// collectionPattern matches every key of a collection.
func (c *AnswerCache) collectionPattern(collectionID string) string {
	return c.config.KeyPrefix + collectionID + ":*"
}

// Get returns the cached result for the query, or nil on miss. Backend
// failures and corrupt entries are logged and reported as misses.
func (c *AnswerCache) Get(ctx context.Context, collectionID, query string) *model.QueryResult {
	if c.redis == nil {
		return nil
	}

	cacheKey := c.key(collectionID, query)
	data, err := c.redis.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if err != goredis.Nil {
			logger.Warnw("failed to get from answer cache", "key", cacheKey, "error", err.Error())
		}
		return nil
	}

	var result model.QueryResult
	if err := json.Unmarshal(data, &result); err != nil {
		logger.Warnw("corrupt answer cache entry deleted", "key", cacheKey, "error", err.Error())
		_ = c.redis.Del(ctx, cacheKey).Err()
		return nil
	}

	logger.Debugw("answer cache hit", "collection", collectionID, "key", cacheKey)
	return &result
}

// Set stores the result for the query. Failures are logged, never surfaced.
func (c *AnswerCache) Set(ctx context.Context, collectionID, query string, result *model.QueryResult) {
	if c.redis == nil {
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		logger.Warnw("failed to marshal answer for caching", "error", err.Error())
		return
	}

	cacheKey := c.key(collectionID, query)
	if err := c.redis.Set(ctx, cacheKey, data, c.config.TTL).Err(); err != nil {
		logger.Warnw("failed to set answer cache", "key", cacheKey, "error", err.Error())
		return
	}

	logger.Debugw("answer cached", "collection", collectionID, "key", cacheKey, "ttl", c.config.TTL)
}

// Invalidate removes every entry of a collection. It runs synchronously
// inside corpus mutations, so a later cache hit can never predate the
// mutation it was invalidated for.
func (c *AnswerCache) Invalidate(ctx context.Context, collectionID string) error {
	if c.redis == nil {
		return nil
	}

	pattern := c.collectionPattern(collectionID)
	iter := c.redis.Scan(ctx, 0, pattern, 100).Iterator()

	deleted := 0
	for iter.Next(ctx) {
		if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return err
	}

	if deleted > 0 {
		logger.Infow("answer cache invalidated", "collection", collectionID, "entries", deleted)
	}
	return nil
}
