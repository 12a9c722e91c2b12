package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vietddude/buywatch/internal/core/domain"
)

// Client wraps Redis operations shared by buywatch processes: alert dedupe,
// hourly alert limits and the native price cache.
type Client struct {
	rdb        *redis.Client
	prefix     string
	instanceID string
}

// Config holds Redis connection configuration.
type Config struct {
	URL       string        `yaml:"url"`
	Password  string        `yaml:"password"`
	KeyPrefix string        `yaml:"key_prefix"`
	DedupeTTL time.Duration `yaml:"dedupe_ttl"`
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

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newClient(rdb, cfg.KeyPrefix), nil
}

func newClient(rdb *redis.Client, prefix string) *Client {
	if prefix == "" {
		prefix = "buywatch"
	}
	return &Client{rdb: rdb, prefix: prefix, instanceID: uuid.NewString()}
}

// InstanceID identifies this process in dedupe records.
func (c *Client) InstanceID() string {
	return c.instanceID
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Key helpers
func (c *Client) alertKey(k domain.AlertKey) string {
	return fmt.Sprintf("%s:alert:%s:%s:%s", c.prefix, k.TxID, k.Token, k.Channel)
}

func (c *Client) rateKey(chain domain.Chain, token string) string {
	return fmt.Sprintf("%s:ratelimit:%s:%s", c.prefix, chain, token)
}

func (c *Client) priceKey(chain domain.Chain) string {
	return fmt.Sprintf("%s:price:%s", c.prefix, chain)
}
