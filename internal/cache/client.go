// Package cache backs the mutation idempotency replay store with Redis.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/rueidis"
)

// Client wraps Redis operations using rueidis.
type Client struct {
	redis rueidis.Client
}

// NewClient creates a new Redis client.
func NewClient(ctx context.Context, url string) (*Client, error) {
	opts, err := rueidis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client, err := rueidis.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("create redis client: %w", err)
	}

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{redis: client}, nil
}

// Close closes the Redis client.
func (c *Client) Close() {
	c.redis.Close()
}

// Ping checks if Redis is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.redis.Do(ctx, c.redis.B().Ping().Build()).Error()
}

func replayKey(lawyerID uuid.UUID, key string) string {
	return fmt.Sprintf("retainer:replay:%s:%s", lawyerID, key)
}

// StoreMutationResult stores a committed mutation result under an
// idempotency key. First writer wins; a concurrent retry that lost the race
// keeps the original result.
func (c *Client) StoreMutationResult(ctx context.Context, lawyerID uuid.UUID, key string, result []byte, ttl time.Duration) error {
	cmd := c.redis.B().Set().Key(replayKey(lawyerID, key)).Value(string(result)).Nx().Ex(ttl).Build()
	if err := c.redis.Do(ctx, cmd).Error(); err != nil && !rueidis.IsRedisNil(err) {
		return fmt.Errorf("store mutation result: %w", err)
	}
	return nil
}

// GetMutationResult retrieves a replayable mutation result, or nil when the
// key has not been seen.
func (c *Client) GetMutationResult(ctx context.Context, lawyerID uuid.UUID, key string) ([]byte, error) {
	result, err := c.redis.Do(ctx, c.redis.B().Get().Key(replayKey(lawyerID, key)).Build()).ToString()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get mutation result: %w", err)
	}
	return []byte(result), nil
}
