package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// KeyPrefix namespaces every key written by the snapshot tool.
const KeyPrefix = "nftsnap:"

// Client wraps the Redis client used as a snapshot backend.
type Client struct {
	client *redis.Client
	logger *zap.Logger
}

// NewClient connects to the Redis server at url (redis://[:password@]host:port/db)
// and verifies the connection with a PING.
func NewClient(ctx context.Context, logger *zap.Logger, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	// Connection pool
	opts.PoolSize = 4
	opts.MinIdleConns = 1

	// Timeouts; snapshots of large collections are a few MB.
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 10 * time.Second
	opts.WriteTimeout = 10 * time.Second

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.Addr, err)
	}

	logger.Info("Connected to Redis",
		zap.String("addr", opts.Addr),
		zap.Int("db", opts.DB))

	return &Client{client: rdb, logger: logger}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// Key prefixes name with KeyPrefix.
func Key(name string) string {
	return KeyPrefix + name
}

// GetBytes returns the blob stored under key. A missing key yields (nil, false, nil).
func (c *Client) GetBytes(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// SetBytes overwrites key with b. SET replaces the value atomically.
func (c *Client) SetBytes(ctx context.Context, key string, b []byte) error {
	return c.client.Set(ctx, key, b, 0).Err()
}
