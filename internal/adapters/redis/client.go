package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/aldhinn/Fintel/internal/adapters/config"
	"github.com/aldhinn/Fintel/pkg/logger"
)

const descriptionKeyPrefix = "fintel:description:"

// Client wraps the Redis connection used for provider metadata caching
type Client struct {
	cache *redis.Client
}

// New creates new Redis client and verifies the connection
func New(cfg *config.RedisConfig) (*Client, error) {
	cacheClient := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := cacheClient.Ping(ctx).Err(); err != nil {
		cacheClient.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("redis cache client initialized",
		zap.String("address", cfg.Addr()),
		zap.Int("db", cfg.DB),
	)

	return &Client{cache: cacheClient}, nil
}

// Close closes redis connections
func (c *Client) Close() error {
	if c.cache != nil {
		logger.Info("closing redis cache client")
		if err := c.cache.Close(); err != nil {
			return fmt.Errorf("failed to close redis cache: %w", err)
		}
	}
	return nil
}

// Health pings redis
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.cache.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// GetDescription returns a cached description. The boolean is false on a miss.
func (c *Client) GetDescription(ctx context.Context, symbol string) (string, bool, error) {
	val, err := c.cache.Get(ctx, descriptionKeyPrefix+symbol).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// SetDescription caches a description with TTL
func (c *Client) SetDescription(ctx context.Context, symbol, description string, ttl time.Duration) error {
	return c.cache.Set(ctx, descriptionKeyPrefix+symbol, description, ttl).Err()
}
