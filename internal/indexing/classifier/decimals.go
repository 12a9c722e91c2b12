package classifier

import (
	"context"
	"log/slog"
	"sync"

	"github.com/vietddude/buywatch/internal/core/domain"
	"github.com/vietddude/buywatch/internal/indexing/recovery"
	"github.com/vietddude/buywatch/internal/infra/chain"
)

// DecimalsCache remembers token decimals per (chain, token). Permanent
// failures (revert, empty or malformed return) are cached with the chain
// default. Transient failures return the default uncached.
type DecimalsCache struct {
	m   sync.Map // "chain:token" -> uint8
	log *slog.Logger
}

// NewDecimalsCache creates an empty cache.
func NewDecimalsCache() *DecimalsCache {
	return &DecimalsCache{log: slog.Default().With("component", "decimals")}
}

// Get returns the decimals of token, asking the adapter on first use.
func (c *DecimalsCache) Get(ctx context.Context, adapter chain.Adapter, token string) uint8 {
	key := string(adapter.Chain()) + ":" + token
	if v, ok := c.m.Load(key); ok {
		return v.(uint8)
	}

	dec, err := adapter.TokenDecimals(ctx, token)
	if err != nil {
		dec = adapter.Chain().DefaultTokenDecimals()
		if recovery.Classify(err) != recovery.CategoryPermanent {
			c.log.Warn("decimals lookup failed, using default for now",
				"chain", adapter.Chain(), "token", token, "default", dec, "error", err)
			return dec
		}
		c.log.Warn("token has no readable decimals, using default",
			"chain", adapter.Chain(), "token", token, "default", dec, "error", err)
	}
	actual, _ := c.m.LoadOrStore(key, dec)
	return actual.(uint8)
}

// Set stores known decimals, e.g. taken from a Solana token balance.
func (c *DecimalsCache) Set(chain domain.Chain, token string, decimals uint8) {
	c.m.Store(string(chain)+":"+token, decimals)
}
