// Package database also provides a Redis-backed execution cache so the
// Execute-by-decision-ID idempotency guarantee survives a process
// restart.
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"ai-trading-agent/config"
	"ai-trading-agent/internal/platform"
)

// Redis key prefixes for execution tracking
const (
	// ExecutionKeyPrefix is the prefix for cached fills
	// Format: agent:execution:{decisionID}
	ExecutionKeyPrefix = "agent:execution"

	// DailyTradesKeyPrefix is the prefix for the daily trade counter
	// Format: agent:daily_trades:{YYYY-MM-DD}
	DailyTradesKeyPrefix = "agent:daily_trades"

	// DefaultExecutionTTL keeps cached fills for two days, long enough
	// to cover any same-day retry after a restart.
	DefaultExecutionTTL = 48 * time.Hour
)

// ExecutionCache stores fills keyed by decision ID. All methods are
// nil-receiver safe; a nil cache behaves as an always-miss cache.
type ExecutionCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewExecutionCache connects to Redis and returns the cache.
func NewExecutionCache(cfg config.RedisConfig, logger zerolog.Logger) (*ExecutionCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &ExecutionCache{
		client: client,
		ttl:    DefaultExecutionTTL,
		logger: logger.With().Str("component", "execution_cache").Logger(),
	}, nil
}

// Close releases the Redis connection.
func (c *ExecutionCache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Get returns the cached fill for a decision ID, or nil on a miss.
func (c *ExecutionCache) Get(ctx context.Context, decisionID string) (*platform.ExecutionResult, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}
	key := fmt.Sprintf("%s:%s", ExecutionKeyPrefix, decisionID)
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("execution cache read failed: %w", err)
	}
	var result platform.ExecutionResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Warn().Err(err).Str("decision_id", decisionID).Msg("dropping corrupt cache entry")
		c.client.Del(ctx, key)
		return nil, nil
	}
	return &result, nil
}

// Put stores a fill under its decision ID.
func (c *ExecutionCache) Put(ctx context.Context, result *platform.ExecutionResult) error {
	if c == nil || c.client == nil {
		return nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("execution cache marshal failed: %w", err)
	}
	key := fmt.Sprintf("%s:%s", ExecutionKeyPrefix, result.DecisionID)
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Error().Err(err).Str("decision_id", result.DecisionID).Msg("failed to cache execution")
		return err
	}
	return nil
}

// IncrDailyTrades atomically increments and returns the trade count
// for the given trading day.
func (c *ExecutionCache) IncrDailyTrades(ctx context.Context, day time.Time) (int, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	key := fmt.Sprintf("%s:%s", DailyTradesKeyPrefix, day.Format("2006-01-02"))
	count, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("daily trade counter failed: %w", err)
	}
	// Counter only matters for the current day; expire after two.
	c.client.Expire(ctx, key, 48*time.Hour)
	return int(count), nil
}

// DailyTrades returns the trade count for the given trading day.
func (c *ExecutionCache) DailyTrades(ctx context.Context, day time.Time) (int, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	key := fmt.Sprintf("%s:%s", DailyTradesKeyPrefix, day.Format("2006-01-02"))
	count, err := c.client.Get(ctx, key).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("daily trade counter read failed: %w", err)
	}
	return count, nil
}
