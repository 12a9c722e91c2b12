package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/buywatch/internal/core/domain"
)

const defaultDedupeTTL = 24 * time.Hour

// Dedupe records delivered alerts so that restarts and other instances do
// not send them again.
type Dedupe struct {
	client *Client
	ttl    time.Duration
}

// NewDedupe creates a dedupe set whose records expire after ttl.
func NewDedupe(client *Client, ttl time.Duration) *Dedupe {
	if ttl <= 0 {
		ttl = defaultDedupeTTL
	}
	return &Dedupe{client: client, ttl: ttl}
}

// Seen reports whether key was recorded.
func (d *Dedupe) Seen(ctx context.Context, key domain.AlertKey) (bool, error) {
	n, err := d.client.rdb.Exists(ctx, d.client.alertKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("exists failed: %w", err)
	}
	return n > 0, nil
}

// Record stores key. It reports false when key was already present.
func (d *Dedupe) Record(ctx context.Context, key domain.AlertKey) (bool, error) {
	ok, err := d.client.rdb.SetNX(ctx, d.client.alertKey(key), d.client.instanceID, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return ok, nil
}
