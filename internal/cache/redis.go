package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisCache stores predictions in Redis with a TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisCache connects to addr and verifies the connection with PING.
func NewRedisCache(ctx context.Context, addr string, db int, ttl time.Duration, logger *zap.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info("Redis prediction cache initialized", zap.String("addr", addr), zap.Duration("ttl", ttl))
	return &RedisCache{client: client, ttl: ttl, logger: logger}, nil
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

// Get returns the cached price for key.
func (c *RedisCache) Get(ctx context.Context, key string) (float64, bool, error) {
	s, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get cached price: %w", err)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt cached price %q: %w", s, err)
	}
	c.logger.Debug("Prediction cache hit", zap.String("key", key))
	return v, true, nil
}

// Set stores price under key.
func (c *RedisCache) Set(ctx context.Context, key string, price float64) error {
	v := strconv.FormatFloat(price, 'f', -1, 64)
	if err := c.client.Set(ctx, key, v, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cached price: %w", err)
	}
	return nil
}

// Close closes the client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
