package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache handles Redis operations
type Cache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewCache creates a new cache instance
func NewCache(redisURL string, logger *zap.Logger) (*Cache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	// Test the connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Cache{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping reports whether Redis is reachable.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// StoreFlow keeps a pending sign-in payload under id until it expires or
// is consumed.
func (c *Cache) StoreFlow(ctx context.Context, id string, payload []byte, ttl time.Duration) error {
	key := "flow:" + id
	if err := c.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		c.logger.Error("Failed to store flow", zap.Error(err))
		return err
	}
	return nil
}

// ConsumeFlow returns and deletes the payload stored under id. The second
// call for the same id reports not found.
func (c *Cache) ConsumeFlow(ctx context.Context, id string) ([]byte, bool, error) {
	key := "flow:" + id
	data, err := c.client.GetDel(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		c.logger.Error("Failed to consume flow", zap.Error(err))
		return nil, false, err
	}
	return data, true, nil
}

// PeekFlow returns the payload stored under id without consuming it.
func (c *Cache) PeekFlow(ctx context.Context, id string) ([]byte, bool, error) {
	key := "flow:" + id
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		c.logger.Error("Failed to read flow", zap.Error(err))
		return nil, false, err
	}
	return data, true, nil
}

// MarkOnce records key, for example an exchanged authorization code hash.
// It returns false when key was already recorded.
func (c *Cache) MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, "once:"+key, "1", ttl).Result()
	if err != nil {
		c.logger.Error("Failed to record one-shot key", zap.Error(err))
		return false, err
	}
	return ok, nil
}

// CheckRateLimit checks if key has exceeded limit within window
func (c *Cache) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	redisKey := "rate_limit:" + key
	count, err := c.client.Incr(ctx, redisKey).Result()
	if err != nil {
		c.logger.Error("Failed to increment rate limit counter", zap.String("key", key), zap.Error(err))
		return false, err
	}

	// Set expiration on first request
	if count == 1 {
		if err := c.client.Expire(ctx, redisKey, window).Err(); err != nil {
			c.logger.Error("Failed to set rate limit expiration", zap.Error(err))
		}
	}

	return count > int64(limit), nil
}
