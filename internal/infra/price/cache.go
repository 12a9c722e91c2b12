package price

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// cell caches one chain's price. Stale values are kept as last-known.
type cell struct {
	mu        sync.RWMutex
	price     decimal.Decimal
	fetchedAt time.Time
	source    string

	// retryAt holds off the source after a failed lookup.
	retryAt time.Time
}

// fresh returns the cached price if it is younger than ttl.
func (c *cell) fresh(now time.Time, ttl time.Duration) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.fetchedAt.IsZero() || now.Sub(c.fetchedAt) >= ttl {
		return decimal.Zero, false
	}
	return c.price, true
}

// last returns the last known price regardless of age.
func (c *cell) last() (decimal.Decimal, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.price, c.fetchedAt, !c.fetchedAt.IsZero()
}

func (c *cell) set(p decimal.Decimal, source string, at time.Time) {
	c.mu.Lock()
	c.price = p
	c.source = source
	c.fetchedAt = at
	c.mu.Unlock()
}

// invalidate forces the next read to ask the source, keeping the last price.
func (c *cell) invalidate() {
	c.mu.Lock()
	if !c.fetchedAt.IsZero() {
		c.fetchedAt = time.Unix(1, 0)
	}
	c.mu.Unlock()
}

func (c *cell) backoff(until time.Time) {
	c.mu.Lock()
	c.retryAt = until
	c.mu.Unlock()
}

func (c *cell) coolingDown(now time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return now.Before(c.retryAt)
}
