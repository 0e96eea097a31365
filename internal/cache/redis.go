package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/medical-report-analyzer/internal/domain"
)

const redisKeyPrefix = "mra:analysis:"

const purgeBatchSize = 100

// RedisConfig configures the Redis result cache.
type RedisConfig struct {
	URL          string
	TTL          time.Duration
	MaxRetries   int
	PoolSize     int
	PoolTimeout  time.Duration
	FailureLimit uint32
	OpenTimeout  time.Duration
}

// RedisCache stores results in Redis behind a circuit breaker, so an unreachable
// Redis costs one fast failure per call instead of a dial timeout.
type RedisCache struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
	ttl     time.Duration
	logger  *logrus.Logger
}

// NewRedisCache connects to the Redis server at cfg.URL.
func NewRedisCache(cfg RedisConfig, logger *logrus.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	if cfg.MaxRetries != 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.PoolTimeout > 0 {
		opts.PoolTimeout = cfg.PoolTimeout
	}

	return NewRedisCacheWithClient(redis.NewClient(opts), cfg, logger), nil
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(client *redis.Client, cfg RedisConfig, logger *logrus.Logger) *RedisCache {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.FailureLimit == 0 {
		cfg.FailureLimit = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        "RedisResultCache",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureLimit
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"circuit_breaker": name,
				"from_state":      from.String(),
				"to_state":        to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}

	return &RedisCache{
		client:  client,
		breaker: gobreaker.NewCircuitBreaker(settings),
		ttl:     cfg.TTL,
		logger:  logger,
	}
}

// Get returns the cached result for key. Misses, decode failures and Redis
// errors are all reported as a miss.
func (c *RedisCache) Get(ctx context.Context, key string) (*domain.AnalysisResult, bool) {
	value, err := c.breaker.Execute(func() (interface{}, error) {
		data, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return data, err
	})
	if err != nil {
		c.logger.WithError(err).Debug("Redis cache lookup failed")
		return nil, false
	}

	data, ok := value.([]byte)
	if !ok || data == nil {
		return nil, false
	}

	result := domain.NewAnalysisResult()
	if err := json.Unmarshal(data, result); err != nil {
		c.logger.WithError(err).Warn("Discarding undecodable cached result")
		return nil, false
	}
	return result, true
}

// Set stores result under key with the configured TTL.
func (c *RedisCache) Set(ctx context.Context, key string, result *domain.AnalysisResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		return nil, c.client.Set(ctx, redisKeyPrefix+key, data, c.ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("writing result to redis: %w", err)
	}
	return nil
}

// Delete removes the result stored under key.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.client.Del(ctx, redisKeyPrefix+key).Err()
	})
	if err != nil {
		return fmt.Errorf("deleting result from redis: %w", err)
	}
	return nil
}

// Purge deletes every result under the cache key prefix and returns how many
// keys were removed.
func (c *RedisCache) Purge(ctx context.Context) (int, error) {
	var removed int
	iter := c.client.Scan(ctx, 0, redisKeyPrefix+"*", purgeBatchSize).Iterator()
	batch := make([]string, 0, purgeBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := c.client.Del(ctx, batch...).Result()
		if err != nil {
			return fmt.Errorf("purging redis results: %w", err)
		}
		removed += int(n)
		batch = batch[:0]
		return nil
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == purgeBatchSize {
			if err := flush(); err != nil {
				return removed, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("scanning redis results: %w", err)
	}
	return removed, flush()
}

// Ping checks connectivity to Redis.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// State returns the circuit breaker state.
func (c *RedisCache) State() gobreaker.State {
	return c.breaker.State()
}

// Close closes the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
