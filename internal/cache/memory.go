// Package cache keeps analysis results keyed by report hash in an in-process
// LRU and, optionally, in Redis.
package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/medical-report-analyzer/internal/domain"
)

// Stats reports cache activity.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Items  int   `json:"items"`
}

// MemoryCache is a size-bounded LRU whose entries expire after a TTL.
type MemoryCache struct {
	lru    *expirable.LRU[string, *domain.AnalysisResult]
	hits   atomic.Int64
	misses atomic.Int64
}

// NewMemoryCache creates a memory cache holding at most maxItems results for ttl each.
func NewMemoryCache(maxItems int, ttl time.Duration) (*MemoryCache, error) {
	if maxItems <= 0 {
		return nil, fmt.Errorf("cache size must be positive, got %d", maxItems)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("cache TTL must be positive, got %s", ttl)
	}
	return &MemoryCache{
		lru: expirable.NewLRU[string, *domain.AnalysisResult](maxItems, nil, ttl),
	}, nil
}

// Get returns a copy of the cached result for key.
func (c *MemoryCache) Get(_ context.Context, key string) (*domain.AnalysisResult, bool) {
	result, ok := c.lru.Get(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return result.Clone(), true
}

// Set stores a copy of result under key.
func (c *MemoryCache) Set(_ context.Context, key string, result *domain.AnalysisResult) error {
	if result == nil {
		return fmt.Errorf("cannot cache nil result")
	}
	c.lru.Add(key, result.Clone())
	return nil
}

// Remove drops key from the cache.
func (c *MemoryCache) Remove(_ context.Context, key string) error {
	c.lru.Remove(key)
	return nil
}

// Purge empties the cache.
func (c *MemoryCache) Purge(_ context.Context) error {
	c.lru.Purge()
	return nil
}

// Len returns the number of cached results.
func (c *MemoryCache) Len() int {
	return c.lru.Len()
}

// Stats returns hit and miss counters.
func (c *MemoryCache) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Items:  c.lru.Len(),
	}
}
