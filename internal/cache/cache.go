// Package cache wraps Redis for daily-summary caching. All Redis failures
// degrade to cache misses so the store stays the source of truth.
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps redis.Client but fails safe by swallowing connectivity
// errors. A nil *Client is valid and behaves like an always-miss cache.
type Client struct {
	client *redis.Client
}

// New creates a cache client around an existing Redis connection. Passing
// nil yields a no-op cache.
func New(rdb *redis.Client) *Client {
	if rdb == nil {
		return nil
	}
	return &Client{client: rdb}
}

// Get returns the cached value, or nil on miss or Redis failure.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}
	res, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		// redis.Nil and transport errors alike behave as a miss
		return nil, nil
	}
	return res, nil
}

// Set stores value with TTL, ignoring Redis errors.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Set(ctx, key, value, ttl).Err()
}

// Delete removes a key, ignoring Redis errors.
func (c *Client) Delete(ctx context.Context, key string) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Del(ctx, key).Err()
}
