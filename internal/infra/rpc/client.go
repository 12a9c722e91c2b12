package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/buywatch/internal/core/domain"
	"github.com/vietddude/buywatch/internal/indexing/metrics"
	"github.com/vietddude/buywatch/internal/infra/rpc/routing"
)

// Client is the high-level interface for making RPC calls against one chain.
// This is what chain adapters should use.
type Client struct {
	chain   domain.Chain
	router  *routing.Router
	retry   routing.RetryConfig
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithRetry sets the per-provider retry policy.
func WithRetry(cfg routing.RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithTimeout bounds every individual call attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a new RPC client.
func NewClient(chain domain.Chain, router *routing.Router, opts ...Option) *Client {
	c := &Client{
		chain:   chain,
		router:  router,
		retry:   routing.DefaultRetryConfig,
		timeout: 10 * time.Second,
		logger:  slog.Default().With("component", "rpc", "chain", chain),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Chain returns the chain this client talks to.
func (c *Client) Chain() domain.Chain {
	return c.chain
}

// Router exposes provider state for health reporting.
func (c *Client) Router() *routing.Router {
	return c.router
}

// Call invokes method and decodes the result into out (which may be nil).
func (c *Client) Call(ctx context.Context, method string, params []any, out any) error {
	raw, err := c.CallRaw(ctx, method, params)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		// Every endpoint serves the same data, so retrying will not help.
		return &domain.DecodeError{Chain: c.chain, Reason: "malformed " + method + " result", Err: err}
	}
	return nil
}

// CallRaw invokes method with failover across providers and returns the raw result.
// When every provider fails the error is a *domain.AdapterConnectionError.
func (c *Client) CallRaw(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	providers := c.router.Candidates()
	if len(providers) == 0 {
		return nil, &domain.AdapterConnectionError{Chain: c.chain, Op: method, Err: errors.New("no providers configured")}
	}

	var lastErr error
	for _, p := range providers {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		start := time.Now()
		result, err := routing.CallWithRetry(callCtx, p, method, params, c.retry)
		cancel()
		latency := time.Since(start)

		metrics.RPCCallsTotal.WithLabelValues(string(c.chain), p.Name(), method).Inc()
		metrics.RPCLatency.WithLabelValues(string(c.chain), p.Name(), method).Observe(latency.Seconds())

		if err == nil {
			c.router.RecordSuccess(p.Name(), latency)
			return result, nil
		}

		action := routing.ClassifyError(err)
		metrics.RPCErrorsTotal.WithLabelValues(string(c.chain), p.Name(), action.String()).Inc()
		lastErr = fmt.Errorf("%s: %w", p.Name(), err)

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if action == routing.ActionFatal {
			// The endpoint answered; another one would reject the request too.
			c.router.RecordSuccess(p.Name(), latency)
			return nil, fmt.Errorf("%s %s: %w", c.chain, method, err)
		}

		c.router.RecordFailure(p.Name())
		c.logger.Warn("rpc provider failed, trying next",
			"provider", p.Name(),
			"method", method,
			"action", action.String(),
			"error", err,
		)
	}

	return nil, &domain.AdapterConnectionError{Chain: c.chain, Op: method, Err: lastErr}
}
