package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	overallCategory   = "overall"
	analyticsStatsKey = "cache:analytics:stats"
)

// CacheStats represents cache statistics
type CacheStats struct {
	Hits        int64     `json:"hits"`
	Misses      int64     `json:"misses"`
	HitRate     float64   `json:"hit_rate"`
	TotalOps    int64     `json:"total_ops"`
	LastUpdated time.Time `json:"last_updated"`
}

func (s *CacheStats) record(hit bool, now time.Time) {
	if hit {
		s.Hits++
	} else {
		s.Misses++
	}
	s.TotalOps++
	s.HitRate = float64(s.Hits) / float64(s.TotalOps)
	s.LastUpdated = now
}

// CacheAnalyticsService tracks content cache hit rates per document and
// persists a snapshot to Redis.
type CacheAnalyticsService struct {
	redisClient *redis.Client
	logger      *logrus.Logger
	stats       map[string]*CacheStats
	mu          sync.RWMutex
}

// NewCacheAnalyticsService creates a new cache analytics service. A nil
// client keeps stats in memory only.
func NewCacheAnalyticsService(redisClient *redis.Client, logger *logrus.Logger) *CacheAnalyticsService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &CacheAnalyticsService{
		redisClient: redisClient,
		logger:      logger,
		stats:       make(map[string]*CacheStats),
	}
}

// RecordHit records a cache hit for the given category
func (c *CacheAnalyticsService) RecordHit(category string) {
	c.record(category, true)
}

// RecordMiss records a cache miss for the given category
func (c *CacheAnalyticsService) RecordMiss(category string) {
	c.record(category, false)
}

func (c *CacheAnalyticsService) record(category string, hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for _, key := range []string{category, overallCategory} {
		if c.stats[key] == nil {
			c.stats[key] = &CacheStats{}
		}
		c.stats[key].record(hit, now)
	}
}

// GetStats returns cache statistics for a specific category
func (c *CacheAnalyticsService) GetStats(category string) CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if stats, exists := c.stats[category]; exists {
		return *stats
	}
	return CacheStats{}
}

// GetAllStats returns all cache statistics
func (c *CacheAnalyticsService) GetAllStats() map[string]CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]CacheStats, len(c.stats))
	for category, stats := range c.stats {
		result[category] = *stats
	}
	return result
}

// ResetStats resets all cache statistics
func (c *CacheAnalyticsService) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = make(map[string]*CacheStats)
}

// StartPeriodicReporting persists stats every interval until ctx is done.
func (c *CacheAnalyticsService) StartPeriodicReporting(ctx context.Context, interval time.Duration) {
	if c.redisClient == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.ReportStats(ctx); err != nil {
					c.logger.WithError(err).Warn("Failed to persist cache analytics")
				}
			}
		}
	}()
}

// ReportStats writes the current stats to Redis with a 24 hour TTL.
func (c *CacheAnalyticsService) ReportStats(ctx context.Context) error {
	if c.redisClient == nil {
		return nil
	}
	statsJSON, err := json.Marshal(c.GetAllStats())
	if err != nil {
		return err
	}
	return c.redisClient.Set(ctx, analyticsStatsKey, statsJSON, 24*time.Hour).Err()
}
