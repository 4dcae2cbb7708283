package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ContentCacheEntry represents a cached document with metadata
type ContentCacheEntry struct {
	Document  json.RawMessage `json:"document"`
	CachedAt  time.Time       `json:"cached_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// ContentCacheStats tracks cache performance metrics
type ContentCacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
}

// RedisContentCache caches scraped content documents (news, market summary,
// sectors, companies) in Redis.
type RedisContentCache struct {
	redis  *redis.Client
	ttl    time.Duration
	prefix string
	logger *logrus.Logger

	mu    sync.RWMutex
	stats ContentCacheStats
}

// NewRedisContentCache creates a new Redis-based content cache
func NewRedisContentCache(redisClient *redis.Client, ttl time.Duration, logger *logrus.Logger) *RedisContentCache {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RedisContentCache{
		redis:  redisClient,
		ttl:    ttl,
		prefix: "content_cache:",
		logger: logger,
	}
}

// Get retrieves a document. A miss, a Redis error or a corrupt entry all
// report false; the caller falls back to the source file.
func (c *RedisContentCache) Get(ctx context.Context, name string) (json.RawMessage, bool) {
	data, err := c.redis.Get(ctx, c.prefix+name).Bytes()
	if errors.Is(err, redis.Nil) {
		c.miss()
		return nil, false
	}
	if err != nil {
		c.logger.WithError(err).WithField("document", name).Warn("Redis error getting cached content")
		c.miss()
		return nil, false
	}

	var entry ContentCacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.WithError(err).WithField("document", name).Warn("Error deserializing cached content")
		c.miss()
		return nil, false
	}

	c.mu.Lock()
	c.stats.Hits++
	c.mu.Unlock()
	return entry.Document, true
}

// Set stores a document with the configured TTL
func (c *RedisContentCache) Set(ctx context.Context, name string, doc json.RawMessage) error {
	now := time.Now()
	data, err := json.Marshal(ContentCacheEntry{
		Document:  doc,
		CachedAt:  now,
		ExpiresAt: now.Add(c.ttl),
	})
	if err != nil {
		return fmt.Errorf("error serializing %s: %w", name, err)
	}

	if err := c.redis.Set(ctx, c.prefix+name, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis error setting %s: %w", name, err)
	}

	c.mu.Lock()
	c.stats.Sets++
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"document": name,
		"bytes":    len(doc),
		"ttl":      c.ttl.String(),
	}).Debug("Cached content document")
	return nil
}

// GetStats returns current cache statistics
func (c *RedisContentCache) GetStats() ContentCacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// Clear removes all cached documents
func (c *RedisContentCache) Clear(ctx context.Context) error {
	var keys []string
	iter := c.redis.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("error scanning cache keys: %w", err)
	}

	if len(keys) == 0 {
		return nil
	}

	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("error clearing cache: %w", err)
	}

	c.logger.WithField("count", len(keys)).Info("Cleared content cache entries")
	return nil
}

func (c *RedisContentCache) miss() {
	c.mu.Lock()
	c.stats.Misses++
	c.mu.Unlock()
}
