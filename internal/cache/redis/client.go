package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/content-agent/backend/pkg/logger"
)

const latestSessionKey = "session:latest_expiry"

type Client struct {
	client *redis.Client
}

func NewClient(host string, port int, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client}, nil
}

// NewFromClient wraps an existing go-redis client.
func NewFromClient(client *redis.Client) *Client {
	return &Client{client: client}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// SetLatestSessionExpiry caches the expiry of the newest session. The entry
// lives until the expiry itself passes.
func (c *Client) SetLatestSessionExpiry(ctx context.Context, expiry time.Time) error {
	ttl := time.Until(expiry)
	if ttl <= 0 {
		return nil
	}

	err := c.client.Set(ctx, latestSessionKey, expiry.UTC().Format(time.RFC3339Nano), ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set session cache: %w", err)
	}

	logger.Debug("Session expiry cached", zap.Time("expiry", expiry), zap.Duration("ttl", ttl))
	return nil
}

func (c *Client) GetLatestSessionExpiry(ctx context.Context) (time.Time, bool, error) {
	val, err := c.client.Get(ctx, latestSessionKey).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get session cache: %w", err)
	}

	expiry, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to parse cached expiry: %w", err)
	}

	logger.Debug("Session cache hit")
	return expiry, true, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
