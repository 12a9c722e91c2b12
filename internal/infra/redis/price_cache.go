package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/vietddude/buywatch/internal/core/domain"
)

// PriceCache shares native prices between processes.
type PriceCache struct {
	client *Client
}

// NewPriceCache creates a price cache on client.
func NewPriceCache(client *Client) *PriceCache {
	return &PriceCache{client: client}
}

// Get returns the cached price of chain, ok=false when absent or expired.
func (p *PriceCache) Get(ctx context.Context, chain domain.Chain) (decimal.Decimal, bool, error) {
	val, err := p.client.rdb.Get(ctx, p.client.priceKey(chain)).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("get failed: %w", err)
	}
	d, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("invalid cached price %q: %w", val, err)
	}
	return d, true, nil
}

// Set stores the price of chain for ttl.
func (p *PriceCache) Set(ctx context.Context, chain domain.Chain, price decimal.Decimal, ttl time.Duration) error {
	return p.client.rdb.Set(ctx, p.client.priceKey(chain), price.String(), ttl).Err()
}
