// Package alert turns buy candidates into channel notifications.
//
// For every candidate the dispatcher values the trade in USD, keeps the
// subscriptions whose threshold is met, drops channels that were already
// alerted for the same transaction and applies per-token rate limits. Each
// remaining channel gets the rich message with bounded retries, then a
// plain-text fallback. One channel's failure never blocks another.
package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vietddude/buywatch/internal/core/domain"
	"github.com/vietddude/buywatch/internal/indexing/metrics"
	"github.com/vietddude/buywatch/internal/infra/notify"
)

// Outcome labels used in metrics and reports.
const (
	OutcomeSent           = "sent"
	OutcomeFallback       = "fallback"
	OutcomeFailed         = "failed"
	OutcomeDeduped        = "deduped"
	OutcomeBelowThreshold = "below_threshold"
	OutcomeRateLimited    = "rate_limited"
	OutcomeLowConfidence  = "low_confidence"
)

// ErrNoSubscribers is returned by TestAlert when nobody would receive it.
var ErrNoSubscribers = errors.New("no subscribers")

// Estimator values native amounts in USD.
type Estimator interface {
	EstimateUSD(ctx context.Context, chain domain.Chain, nativeAmount decimal.Decimal) decimal.Decimal
}

// SubscriptionLookup finds the subscribers of a token.
type SubscriptionLookup interface {
	Subscriptions(chain domain.Chain, address string) []domain.Subscription
}

// Config controls delivery and limits.
type Config struct {
	MaxRetries          int           `yaml:"max_retries"`
	RetryBackoff        time.Duration `yaml:"retry_backoff"`
	SendTimeout         time.Duration `yaml:"send_timeout"`
	MaxPerTokenPerCycle int           `yaml:"max_per_token_per_cycle"`
	MaxAlertsPerHour    int           `yaml:"max_alerts_per_hour"`
	DedupeWindow        int           `yaml:"dedupe_window"`
	AllowLowConfidence  bool          `yaml:"allow_low_confidence"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:          3,
		RetryBackoff:        500 * time.Millisecond,
		SendTimeout:         10 * time.Second,
		MaxPerTokenPerCycle: 5,
		MaxAlertsPerHour:    10,
		DedupeWindow:        DefaultDedupeWindow,
	}
}

// Report summarizes one Dispatch call.
type Report struct {
	USD            decimal.Decimal
	Sent           int
	Fallback       int
	Failed         int
	Deduped        int
	BelowThreshold int
	RateLimited    bool
	LowConfidence  bool
	Errors         []error
}

// Delivered is the number of channels that received any message.
func (r Report) Delivered() int {
	return r.Sent + r.Fallback
}

// Stats are process-lifetime counters.
type Stats struct {
	Sent        int64 `json:"sent"`
	Fallback    int64 `json:"fallback"`
	Failed      int64 `json:"failed"`
	Deduped     int64 `json:"deduped"`
	RateLimited int64 `json:"rate_limited"`
}

// Dispatcher delivers alerts. Safe for concurrent use by several pollers.
type Dispatcher struct {
	cfg       Config
	estimator Estimator
	notifier  notify.Notifier
	formatter *Formatter
	dedupe    Dedupe
	cycle     *CycleLimiter
	hourly    HourlyLimiter
	subs      SubscriptionLookup
	log       *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error

	sent, fallback, failed, deduped, rateLimited atomic.Int64
}

// Option configures the dispatcher.
type Option func(*Dispatcher)

// WithDedupe replaces the in-memory dedupe set.
func WithDedupe(d Dedupe) Option {
	return func(x *Dispatcher) { x.dedupe = d }
}

// WithHourlyLimiter replaces the in-memory hourly limiter.
func WithHourlyLimiter(l HourlyLimiter) Option {
	return func(x *Dispatcher) { x.hourly = l }
}

// WithFormatter sets the message formatter.
func WithFormatter(f *Formatter) Option {
	return func(x *Dispatcher) { x.formatter = f }
}

// WithSubscriptions lets TestAlert find subscribers on its own.
func WithSubscriptions(s SubscriptionLookup) Option {
	return func(x *Dispatcher) { x.subs = s }
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg Config, estimator Estimator, notifier notify.Notifier, opts ...Option) *Dispatcher {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	d := &Dispatcher{
		cfg:       cfg,
		estimator: estimator,
		notifier:  notifier,
		formatter: NewFormatter(nil),
		dedupe:    NewMemoryDedupe(cfg.DedupeWindow),
		cycle:     NewCycleLimiter(cfg.MaxPerTokenPerCycle),
		hourly:    NewMemoryHourlyLimiter(cfg.MaxAlertsPerHour, time.Hour),
		log:       slog.Default().With("component", "dispatcher"),
		sleep:     sleepCtx,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// BeginCycle resets the per-cycle rate limit of chain.
func (d *Dispatcher) BeginCycle(chain domain.Chain) {
	d.cycle.BeginCycle(chain)
}

// Dispatch alerts every qualifying subscriber of candidate. It never
// returns an error; failures are in the report and the logs.
func (d *Dispatcher) Dispatch(ctx context.Context, c domain.Candidate, subs []domain.Subscription) Report {
	var r Report
	log := d.log.With("chain", c.Chain, "tx", c.TxID, "token", c.Token.Address)

	if c.Confidence == domain.ConfidenceCalldata && !d.cfg.AllowLowConfidence && !c.Test {
		r.LowConfidence = true
		metrics.AlertsTotal.WithLabelValues(string(c.Chain), OutcomeLowConfidence).Inc()
		log.Debug("low confidence candidate skipped")
		return r
	}

	r.USD = d.estimator.EstimateUSD(ctx, c.Chain, c.NativeAmount)

	var pending []domain.Subscription
	for _, s := range subs {
		if !c.Test && r.USD.LessThan(s.MinUSD) {
			r.BelowThreshold++
			continue
		}
		if !c.Test {
			seen, err := d.dedupe.Seen(ctx, c.Key(s.Channel))
			if err != nil {
				log.Warn("dedupe lookup failed", "channel", s.Channel, "error", err)
			}
			if seen {
				r.Deduped++
				continue
			}
		}
		pending = append(pending, s)
	}
	d.deduped.Add(int64(r.Deduped))
	d.count(c.Chain, OutcomeBelowThreshold, r.BelowThreshold)
	d.count(c.Chain, OutcomeDeduped, r.Deduped)

	if len(pending) == 0 {
		return r
	}

	if !c.Test && !d.allow(ctx, c, log) {
		r.RateLimited = true
		d.rateLimited.Add(1)
		d.count(c.Chain, OutcomeRateLimited, 1)
		return r
	}

	for _, s := range pending {
		if !c.Test {
			claimed, err := d.dedupe.Record(ctx, c.Key(s.Channel))
			if err != nil {
				log.Warn("dedupe record failed", "channel", s.Channel, "error", err)
			} else if !claimed {
				r.Deduped++
				d.deduped.Add(1)
				d.count(c.Chain, OutcomeDeduped, 1)
				continue
			}
		}

		outcome, err := d.deliver(ctx, s.Channel, c, r.USD)
		switch outcome {
		case OutcomeSent:
			r.Sent++
			d.sent.Add(1)
		case OutcomeFallback:
			r.Fallback++
			d.fallback.Add(1)
		default:
			r.Failed++
			d.failed.Add(1)
			r.Errors = append(r.Errors, err)
			log.Error("alert delivery failed", "channel", s.Channel, "error", err)
		}
		d.count(c.Chain, outcome, 1)
	}

	log.Info("alert dispatched",
		"usd", r.USD.StringFixed(2), "venue", c.Venue, "height", c.Height,
		"sent", r.Sent, "fallback", r.Fallback, "failed", r.Failed)
	return r
}

// allow applies the per-cycle limit, then the hourly one.
func (d *Dispatcher) allow(ctx context.Context, c domain.Candidate, log *slog.Logger) bool {
	if !d.cycle.Allow(c.Chain, c.Token.Address) {
		log.Warn("per-cycle alert limit reached, dropping candidate", "limit", d.cfg.MaxPerTokenPerCycle)
		return false
	}
	if d.hourly == nil {
		return true
	}
	ok, err := d.hourly.Allow(ctx, c.Chain, c.Token.Address)
	if err != nil {
		log.Warn("hourly limiter unavailable, allowing", "error", err)
		return true
	}
	if !ok {
		log.Warn("hourly alert limit reached, dropping candidate", "limit", d.cfg.MaxAlertsPerHour)
	}
	return ok
}

// deliver sends the rich message with retries, then the plain fallback.
func (d *Dispatcher) deliver(ctx context.Context, channel string, c domain.Candidate, usd decimal.Decimal) (string, error) {
	rich := d.formatter.Rich(c, usd)

	var lastErr error
	for attempt := 0; attempt < d.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := d.sleep(ctx, d.backoff(attempt-1)); err != nil {
				lastErr = err
				break
			}
		}
		if lastErr = d.send(ctx, channel, rich); lastErr == nil {
			return OutcomeSent, nil
		}
		d.log.Debug("alert send failed", "channel", channel, "attempt", attempt+1, "error", lastErr)
	}

	err := d.send(ctx, channel, d.formatter.Plain(c))
	if err == nil {
		d.log.Warn("rich alert failed, plain fallback sent", "channel", channel, "tx", c.TxID, "error", lastErr)
		return OutcomeFallback, nil
	}
	lastErr = errors.Join(lastErr, fmt.Errorf("fallback: %w", err))

	return OutcomeFailed, &domain.DeliveryError{
		Channel:  channel,
		TxID:     c.TxID,
		Attempts: d.cfg.MaxRetries + 1,
		Err:      lastErr,
	}
}

func (d *Dispatcher) send(ctx context.Context, channel string, msg notify.Message) error {
	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()
	return d.notifier.Send(sendCtx, channel, msg)
}

func (d *Dispatcher) backoff(attempt int) time.Duration {
	return d.cfg.RetryBackoff * time.Duration(1<<attempt)
}

// TestAlert sends a synthetic buy of token through the normal formatting
// and delivery path. Threshold, dedupe and rate limits do not apply. With
// no channels given, every subscriber of the token receives it.
func (d *Dispatcher) TestAlert(
	ctx context.Context,
	token domain.TrackedToken,
	nativeAmount decimal.Decimal,
	channels ...string,
) (Report, error) {
	var subs []domain.Subscription
	if len(channels) > 0 {
		for _, ch := range channels {
			subs = append(subs, domain.Subscription{Chain: token.Chain, Token: token.Address, Channel: ch})
		}
	} else if d.subs != nil {
		subs = d.subs.Subscriptions(token.Chain, token.Address)
	}
	if len(subs) == 0 {
		return Report{}, fmt.Errorf("%w for %s", ErrNoSubscribers, token.Key())
	}

	c := domain.Candidate{
		Chain:        token.Chain,
		TxID:         "test-" + uuid.NewString(),
		Token:        token,
		NativeAmount: nativeAmount,
		TokenAmount:  decimal.Zero,
		Venue:        "Test",
		Confidence:   domain.ConfidenceRouter,
		Test:         true,
	}
	return d.Dispatch(ctx, c, subs), nil
}

// Stats returns lifetime counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Sent:        d.sent.Load(),
		Fallback:    d.fallback.Load(),
		Failed:      d.failed.Load(),
		Deduped:     d.deduped.Load(),
		RateLimited: d.rateLimited.Load(),
	}
}

// Dispatched returns the number of alerts delivered since start.
func (d *Dispatcher) Dispatched() int64 {
	return d.sent.Load() + d.fallback.Load()
}

func (d *Dispatcher) count(chain domain.Chain, outcome string, n int) {
	if n > 0 {
		metrics.AlertsTotal.WithLabelValues(string(chain), outcome).Add(float64(n))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
