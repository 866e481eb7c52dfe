// Package redis publishes balancer status snapshots for external dashboards.
//
// Publishing is one-way reporting: nothing in the request path reads these
// keys back, and endpoint health is never coordinated across processes.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// Client wraps Redis operations for stats publishing.
type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health checks if Redis is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func statsKey(group string) string {
	return fmt.Sprintf("failover:stats:%s", group)
}

// PublishStats writes the per-endpoint status labels of a group as a hash.
// The key expires after ttl so stale groups disappear from dashboards.
func (c *Client) PublishStats(ctx context.Context, group string, stats map[string]string, ttl time.Duration) error {
	if len(stats) == 0 {
		return nil
	}

	fields := make(map[string]any, len(stats))
	for endpoint, status := range stats {
		fields[endpoint] = status
	}

	key := statsKey(group)
	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish stats for %s: %w", group, err)
	}
	return nil
}

// GetStats reads back the published snapshot for a group.
func (c *Client) GetStats(ctx context.Context, group string) (map[string]string, error) {
	stats, err := c.rdb.HGetAll(ctx, statsKey(group)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read stats for %s: %w", group, err)
	}
	return stats, nil
}
