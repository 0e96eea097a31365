package cache

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/medical-report-analyzer/internal/domain"
)

// TieredCache checks the memory cache first and falls back to Redis, refilling
// memory on a Redis hit. Without Redis it behaves as the memory cache alone.
type TieredCache struct {
	memory *MemoryCache
	redis  *RedisCache
	logger *logrus.Logger
}

// NewTieredCache combines a memory cache with an optional Redis cache.
func NewTieredCache(memory *MemoryCache, redis *RedisCache, logger *logrus.Logger) *TieredCache {
	return &TieredCache{
		memory: memory,
		redis:  redis,
		logger: logger,
	}
}

// Get looks key up in memory, then Redis.
func (c *TieredCache) Get(ctx context.Context, key string) (*domain.AnalysisResult, bool) {
	if result, ok := c.memory.Get(ctx, key); ok {
		return result, true
	}
	if c.redis == nil {
		return nil, false
	}

	result, ok := c.redis.Get(ctx, key)
	if !ok {
		return nil, false
	}
	if err := c.memory.Set(ctx, key, result); err != nil {
		c.logger.WithError(err).Debug("Failed to refill memory cache")
	}
	return result, true
}

// Set writes to both tiers. The memory write always happens; a Redis failure is returned.
func (c *TieredCache) Set(ctx context.Context, key string, result *domain.AnalysisResult) error {
	if err := c.memory.Set(ctx, key, result); err != nil {
		return err
	}
	if c.redis == nil {
		return nil
	}
	return c.redis.Set(ctx, key, result)
}

// Remove drops key from both tiers.
func (c *TieredCache) Remove(ctx context.Context, key string) error {
	if err := c.memory.Remove(ctx, key); err != nil {
		return err
	}
	if c.redis == nil {
		return nil
	}
	return c.redis.Delete(ctx, key)
}

// Purge empties both tiers.
func (c *TieredCache) Purge(ctx context.Context) error {
	if err := c.memory.Purge(ctx); err != nil {
		return err
	}
	if c.redis == nil {
		return nil
	}
	removed, err := c.redis.Purge(ctx)
	c.logger.WithField("redis_keys", removed).Debug("Purged redis result cache")
	return err
}

// Memory returns the in-process tier.
func (c *TieredCache) Memory() *MemoryCache {
	return c.memory
}

// HasRedis reports whether a Redis tier is configured.
func (c *TieredCache) HasRedis() bool {
	return c.redis != nil
}

// Health reports Redis connectivity; it is nil when Redis is not configured.
func (c *TieredCache) Health(ctx context.Context) error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Ping(ctx)
}

// Close closes the Redis tier.
func (c *TieredCache) Close() error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Close()
}
