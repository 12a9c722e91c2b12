// Package price converts native coin amounts to USD.
//
// Sources answer "what is one ETH/BNB/SOL worth". The Estimator caches
// their answers per chain with a TTL and never fails: when the source
// is down it uses the last known price, then a static fallback.
package price

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/buywatch/internal/core/domain"
)

// Source returns the USD price of a chain's native coin.
type Source interface {
	Name() string
	GetNativePriceUSD(ctx context.Context, chain domain.Chain) (decimal.Decimal, error)
}

// DefaultFallbackPrices are rough prices used when no source ever answered.
var DefaultFallbackPrices = map[domain.Chain]decimal.Decimal{
	domain.ChainEVMMainnet:   decimal.NewFromInt(3000),
	domain.ChainEVMSidechain: decimal.NewFromInt(500),
	domain.ChainSolana:       decimal.NewFromInt(150),
}

var errNoPrice = errors.New("no price for chain")

// StaticSource answers from a fixed table.
type StaticSource struct {
	prices map[domain.Chain]decimal.Decimal
}

// NewStaticSource creates a source from prices. Missing chains use
// DefaultFallbackPrices.
func NewStaticSource(prices map[domain.Chain]decimal.Decimal) *StaticSource {
	merged := make(map[domain.Chain]decimal.Decimal, len(DefaultFallbackPrices))
	for c, p := range DefaultFallbackPrices {
		merged[c] = p
	}
	for c, p := range prices {
		if p.IsPositive() {
			merged[c] = p
		}
	}
	return &StaticSource{prices: merged}
}

func (s *StaticSource) Name() string { return "static" }

func (s *StaticSource) GetNativePriceUSD(ctx context.Context, chain domain.Chain) (decimal.Decimal, error) {
	p, ok := s.prices[chain]
	if !ok {
		return decimal.Zero, &domain.PriceLookupError{Chain: chain, Source: s.Name(), Err: errNoPrice}
	}
	return p, nil
}

// ChainSource asks each source in order and returns the first answer.
type ChainSource struct {
	sources []Source
}

// NewChainSource creates a source that tries sources in order.
func NewChainSource(sources ...Source) *ChainSource {
	return &ChainSource{sources: sources}
}

func (s *ChainSource) Name() string {
	name := "chain("
	for i, src := range s.sources {
		if i > 0 {
			name += ","
		}
		name += src.Name()
	}
	return name + ")"
}

func (s *ChainSource) GetNativePriceUSD(ctx context.Context, chain domain.Chain) (decimal.Decimal, error) {
	var errs []error
	for _, src := range s.sources {
		p, err := src.GetNativePriceUSD(ctx, chain)
		if err == nil {
			return p, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		errs = append(errs, errNoPrice)
	}
	return decimal.Zero, &domain.PriceLookupError{Chain: chain, Source: s.Name(), Err: errors.Join(errs...)}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func getJSON(ctx context.Context, client *http.Client, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp, nil
}
