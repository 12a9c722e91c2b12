package price

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/vietddude/buywatch/internal/core/domain"
	"github.com/vietddude/buywatch/internal/indexing/metrics"
)

const (
	// DefaultTTL is how long a fetched price is used before asking again.
	DefaultTTL = 5 * time.Minute

	// failureBackoff is how long a failed source is left alone.
	failureBackoff = 30 * time.Second
)

// SharedCache lets several processes share fetched prices.
type SharedCache interface {
	Get(ctx context.Context, chain domain.Chain) (decimal.Decimal, bool, error)
	Set(ctx context.Context, chain domain.Chain, price decimal.Decimal, ttl time.Duration) error
}

// Quote is a price with where it came from.
type Quote struct {
	Price     decimal.Decimal
	Source    string
	FetchedAt time.Time
	Stale     bool
}

// Estimator converts native amounts to USD. Safe for concurrent use.
type Estimator struct {
	source   Source
	fallback *StaticSource
	shared   SharedCache
	ttl      time.Duration
	timeout  time.Duration
	now      func() time.Time
	log      *slog.Logger

	cells map[domain.Chain]*cell
	group singleflight.Group
}

// Option configures the estimator.
type Option func(*Estimator)

// WithTTL sets the cache TTL.
func WithTTL(ttl time.Duration) Option {
	return func(e *Estimator) {
		if ttl > 0 {
			e.ttl = ttl
		}
	}
}

// WithFallbackPrices overrides static fallback prices per chain.
func WithFallbackPrices(prices map[domain.Chain]decimal.Decimal) Option {
	return func(e *Estimator) {
		e.fallback = NewStaticSource(prices)
	}
}

// WithSharedCache adds a cache layer shared between processes.
func WithSharedCache(c SharedCache) Option {
	return func(e *Estimator) {
		e.shared = c
	}
}

// WithLookupTimeout bounds a single source lookup.
func WithLookupTimeout(d time.Duration) Option {
	return func(e *Estimator) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// NewEstimator creates an estimator over source.
func NewEstimator(source Source, opts ...Option) *Estimator {
	e := &Estimator{
		source:   source,
		fallback: NewStaticSource(nil),
		ttl:      DefaultTTL,
		timeout:  5 * time.Second,
		now:      time.Now,
		log:      slog.Default().With("component", "price"),
		cells:    make(map[domain.Chain]*cell, len(domain.AllChains)),
	}
	for _, c := range domain.AllChains {
		e.cells[c] = &cell{}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EstimateUSD returns nativeAmount valued in USD. It never fails.
func (e *Estimator) EstimateUSD(ctx context.Context, chain domain.Chain, nativeAmount decimal.Decimal) decimal.Decimal {
	q := e.Quote(ctx, chain)
	return nativeAmount.Mul(q.Price)
}

// Quote returns the native price of chain: cached, fetched, last known or
// static fallback, in that order.
func (e *Estimator) Quote(ctx context.Context, chain domain.Chain) Quote {
	c := e.cellFor(chain)
	now := e.now()

	if p, ok := c.fresh(now, e.ttl); ok {
		c.mu.RLock()
		src, at := c.source, c.fetchedAt
		c.mu.RUnlock()
		return Quote{Price: p, Source: src, FetchedAt: at}
	}

	v, _, _ := e.group.Do(string(chain), func() (any, error) {
		return e.refresh(ctx, chain, c), nil
	})
	return v.(Quote)
}

// Invalidate drops freshness of every cached price. Last-known values remain.
func (e *Estimator) Invalidate() {
	for _, c := range e.cells {
		c.invalidate()
	}
}

func (e *Estimator) refresh(ctx context.Context, chain domain.Chain, c *cell) Quote {
	// Another caller may have refreshed while we waited for the group.
	if p, ok := c.fresh(e.now(), e.ttl); ok {
		c.mu.RLock()
		src, at := c.source, c.fetchedAt
		c.mu.RUnlock()
		return Quote{Price: p, Source: src, FetchedAt: at}
	}

	lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()

	if e.shared != nil {
		if p, ok, err := e.shared.Get(lookupCtx, chain); err == nil && ok && p.IsPositive() {
			at := e.now()
			c.set(p, "shared", at)
			metrics.NativePriceUSD.WithLabelValues(string(chain)).Set(p.InexactFloat64())
			return Quote{Price: p, Source: "shared", FetchedAt: at}
		} else if err != nil {
			e.log.Debug("shared price cache read failed", "chain", chain, "error", err)
		}
	}

	if e.source != nil && !c.coolingDown(e.now()) {
		p, err := e.source.GetNativePriceUSD(lookupCtx, chain)
		if err == nil && p.IsPositive() {
			at := e.now()
			c.set(p, e.source.Name(), at)
			metrics.NativePriceUSD.WithLabelValues(string(chain)).Set(p.InexactFloat64())
			if e.shared != nil {
				if err := e.shared.Set(lookupCtx, chain, p, e.ttl); err != nil {
					e.log.Debug("shared price cache write failed", "chain", chain, "error", err)
				}
			}
			return Quote{Price: p, Source: e.source.Name(), FetchedAt: at}
		}
		c.backoff(e.now().Add(min(failureBackoff, e.ttl)))
		metrics.PriceSourceErrors.WithLabelValues(string(chain), e.source.Name()).Inc()
		e.log.Warn("price lookup failed", "chain", chain, "source", e.source.Name(), "error", err)
	}

	if p, at, ok := c.last(); ok {
		return Quote{Price: p, Source: "last-known", FetchedAt: at, Stale: true}
	}

	p, _ := e.fallback.GetNativePriceUSD(ctx, chain)
	e.log.Warn("using static fallback price", "chain", chain, "price", p.String())
	return Quote{Price: p, Source: e.fallback.Name(), Stale: true}
}

func (e *Estimator) cellFor(chain domain.Chain) *cell {
	if c, ok := e.cells[chain]; ok {
		return c
	}
	// Unknown chains share a throwaway cell; cells is never written after construction.
	return &cell{}
}
