// Package rpc provides a resilient JSON-RPC client for blockchain networks.
//
// This package offers:
//   - Ordered endpoint failover (primary first, fallbacks after)
//   - Per-call timeouts and retry with exponential backoff
//   - A per-endpoint circuit breaker
//   - Health and latency monitoring
//
// # Quick Start
//
//	client := rpc.NewClientFromURLs(domain.ChainEVMMainnet,
//	    []string{primaryURL, fallbackURL}, 10*time.Second)
//
//	var height hexutil.Uint64
//	err := client.Call(ctx, "eth_blockNumber", nil, &height)
//
// # Package Structure
//
//   - provider/ - HTTPProvider and monitoring
//   - routing/  - provider ordering, circuit breaker, retry logic
package rpc

import (
	"fmt"
	"time"

	"github.com/vietddude/buywatch/internal/core/domain"
	"github.com/vietddude/buywatch/internal/infra/rpc/provider"
	"github.com/vietddude/buywatch/internal/infra/rpc/routing"
)

// Provider is the core interface for RPC endpoints.
type Provider = provider.Provider

// HTTPProvider implements Provider for JSON-RPC over HTTP.
type HTTPProvider = provider.HTTPProvider

// RetryConfig defines retry behavior.
type RetryConfig = routing.RetryConfig

// DefaultRetryConfig provides sensible retry defaults.
var DefaultRetryConfig = routing.DefaultRetryConfig

// NewHTTPProvider creates a new HTTP-based RPC provider.
func NewHTTPProvider(name, endpoint string, timeout time.Duration) *HTTPProvider {
	return provider.NewHTTPProvider(name, endpoint, timeout)
}

// NewClientFromURLs builds a client whose providers follow the order of urls.
func NewClientFromURLs(chain domain.Chain, urls []string, timeout time.Duration, opts ...Option) *Client {
	router := routing.NewRouter()
	for i, u := range urls {
		name := "primary"
		if i > 0 {
			name = fmt.Sprintf("fallback-%d", i)
		}
		router.AddProvider(provider.NewHTTPProvider(name, u, timeout))
	}
	opts = append([]Option{WithTimeout(timeout)}, opts...)
	return NewClient(chain, router, opts...)
}
