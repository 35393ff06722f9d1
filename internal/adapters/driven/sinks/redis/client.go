package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client writes watchlist sets to Redis.
type Client struct {
	rdb *redis.Client
}

// NewClient connects to the Redis server at url
// (redis://[user:password@]host:port/db).
func NewClient(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// AddToSet adds members to the set at key and, when ttl is positive,
// refreshes its expiry. Both commands run in one transaction.
func (c *Client) AddToSet(ctx context.Context, key string, ttl time.Duration, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	values := make([]any, len(members))
	for i, m := range members {
		values[i] = m
	}
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, key, values...)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	return err
}

// Members returns the members of the set at key.
func (c *Client) Members(ctx context.Context, key string) ([]string, error) {
	return c.rdb.SMembers(ctx, key).Result()
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}
