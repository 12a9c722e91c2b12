// Package poller drives one chain: it follows the chain head, feeds every new
// block through the classifier and hands buys of tracked tokens to the alert
// dispatcher. The cursor only advances after a whole range was processed.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/buywatch/internal/alert"
	"github.com/vietddude/buywatch/internal/core/cursor"
	"github.com/vietddude/buywatch/internal/core/domain"
	"github.com/vietddude/buywatch/internal/core/registry"
	"github.com/vietddude/buywatch/internal/indexing/classifier"
	"github.com/vietddude/buywatch/internal/indexing/metrics"
	"github.com/vietddude/buywatch/internal/indexing/recovery"
	"github.com/vietddude/buywatch/internal/infra/chain"
)

// Dispatcher receives the candidates found in a cycle.
type Dispatcher interface {
	BeginCycle(chain domain.Chain)
	Dispatch(ctx context.Context, c domain.Candidate, subs []domain.Subscription) alert.Report
}

// Registry provides the tracked tokens of a chain.
type Registry interface {
	Snapshot(chain domain.Chain) *registry.Snapshot
}

// Config holds poller settings.
type Config struct {
	PollInterval      time.Duration
	MaxBlocksPerCycle uint64
	// BlockTimeout bounds the RPC work for one block.
	BlockTimeout time.Duration
	Backoff      *recovery.ExponentialBackoff
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Second
	}
	if c.MaxBlocksPerCycle == 0 {
		c.MaxBlocksPerCycle = 50
	}
	if c.BlockTimeout <= 0 {
		c.BlockTimeout = 60 * time.Second
	}
	if c.Backoff == nil {
		c.Backoff = recovery.DefaultBackoff(nil)
	}
}

// Status is a point-in-time view of a poller.
type Status struct {
	Chain             domain.Chain `json:"chain"`
	State             State        `json:"state"`
	Cursor            uint64       `json:"cursor"`
	Head              uint64       `json:"head"`
	Lag               int64        `json:"lag"`
	ConsecutiveErrors int          `json:"consecutive_errors"`
	LastError         string       `json:"last_error,omitempty"`
	LastCycleAt       time.Time    `json:"last_cycle_at"`
	BlocksScanned     uint64       `json:"blocks_scanned"`
	Candidates        uint64       `json:"candidates"`
}

// Poller scans one chain.
type Poller struct {
	cfg        Config
	chain      domain.Chain
	adapter    chain.Adapter
	cursors    cursor.Manager
	registry   Registry
	classifier *classifier.Classifier
	dispatcher Dispatcher
	wake       <-chan uint64
	log        *slog.Logger
	sleep      func(ctx context.Context, d time.Duration, wake <-chan uint64) error

	mu     sync.RWMutex
	status Status
}

// Option configures a poller.
type Option func(*Poller)

// WithWakeups ends the idle sleep early whenever a new head arrives on ch.
func WithWakeups(ch <-chan uint64) Option {
	return func(p *Poller) { p.wake = ch }
}

// New creates a poller for adapter's chain.
func New(
	cfg Config,
	adapter chain.Adapter,
	cursors cursor.Manager,
	reg Registry,
	cls *classifier.Classifier,
	dispatcher Dispatcher,
	opts ...Option,
) *Poller {
	cfg.applyDefaults()
	c := adapter.Chain()
	p := &Poller{
		cfg:        cfg,
		chain:      c,
		adapter:    adapter,
		cursors:    cursors,
		registry:   reg,
		classifier: cls,
		dispatcher: dispatcher,
		log:        slog.Default().With("component", "poller", "chain", c),
		sleep:      sleep,
		status:     Status{Chain: c, State: StateIdle},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.publishState(StateIdle)
	return p
}

// Chain returns the chain this poller scans.
func (p *Poller) Chain() domain.Chain {
	return p.chain
}

// Status returns a copy of the current status.
func (p *Poller) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// Run polls until ctx is cancelled. Cancellation is observed between blocks;
// a block that is being processed is always finished.
func (p *Poller) Run(ctx context.Context) error {
	defer p.transition(StateStopped)

	var height uint64
	for {
		if ctx.Err() != nil {
			return nil
		}
		h, ok := p.connect(ctx)
		if ok {
			height = h
			break
		}
	}
	p.transition(StateConnected)
	p.log.Info("poller started", "cursor", height)

	for {
		if ctx.Err() != nil {
			return nil
		}
		p.transition(StateScanning)
		next, err := p.cycle(ctx, height)
		height = next

		p.transition(StateSleeping)
		var wait time.Duration
		var wake <-chan uint64
		if err != nil {
			attempt := p.recordError(err)
			wait = p.cfg.Backoff.GetDelay(attempt - 1)
			p.log.Warn("cycle failed, backing off", "error", err, "attempt", attempt, "delay", wait)
		} else {
			p.clearError()
			wait, wake = p.cfg.PollInterval, p.wake
		}
		if err := p.sleep(ctx, wait, wake); err != nil {
			return nil
		}
	}
}

// connect reads the head and loads or creates the cursor. It sleeps with
// backoff on failure and stays idle.
func (p *Poller) connect(ctx context.Context) (uint64, bool) {
	head, err := p.latestHeight(ctx)
	if err == nil {
		var c *cursor.Cursor
		c, err = p.cursors.Initialize(ctx, p.chain, head)
		if err == nil {
			p.setHeights(c.Height, head)
			return c.Height, true
		}
		var perr *domain.PersistenceError
		if errors.As(err, &perr) {
			p.log.Error("cursor not persisted, continuing from head in memory", "error", err)
			p.setHeights(head, head)
			return head, true
		}
	}

	attempt := p.recordError(err)
	wait := p.cfg.Backoff.GetDelay(attempt - 1)
	p.log.Warn("chain unavailable", "error", err, "attempt", attempt, "delay", wait)
	_ = p.sleep(ctx, wait, nil)
	return 0, false
}

// cycle scans (from, min(head, from+MaxBlocksPerCycle)] and returns the new
// cursor height. On error or stop the returned height is from.
func (p *Poller) cycle(ctx context.Context, from uint64) (uint64, error) {
	head, err := p.latestHeight(ctx)
	if err != nil {
		return from, err
	}
	p.setHeights(from, head)
	if head <= from {
		return from, nil
	}

	to := min(head, from+p.cfg.MaxBlocksPerCycle)
	snap := p.registry.Snapshot(p.chain)
	p.dispatcher.BeginCycle(p.chain)

	for h := from + 1; h <= to; h++ {
		if ctx.Err() != nil {
			p.log.Info("stopping mid-range, cursor not advanced", "cursor", from, "reached", h-1)
			return from, nil
		}
		if err := p.processBlock(ctx, h, snap); err != nil {
			if p.cfg.Backoff.ShouldRetry(err, 0) {
				return from, fmt.Errorf("block %d: %w", h, err)
			}
			p.log.Error("skipping block after permanent error", "height", h, "error", err)
		}
	}

	if err := p.cursors.Advance(context.WithoutCancel(ctx), p.chain, to); err != nil {
		var perr *domain.PersistenceError
		if !errors.As(err, &perr) {
			return from, err
		}
		// Progress is kept in memory; the next successful Advance persists it.
		p.log.Error("cursor not persisted", "height", to, "error", err)
	}

	p.mu.Lock()
	p.status.Cursor = to
	p.status.Lag = int64(head) - int64(to)
	p.status.LastCycleAt = time.Now()
	p.mu.Unlock()

	p.log.Debug("cycle complete", "from", from+1, "to", to, "head", head, "tracked", snap.Len())
	return to, nil
}

func (p *Poller) processBlock(ctx context.Context, height uint64, snap *registry.Snapshot) error {
	// In-flight block work survives shutdown and is bounded by BlockTimeout.
	bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.BlockTimeout)
	defer cancel()

	block, err := p.adapter.GetBlock(bctx, height)
	if err != nil {
		return err
	}
	if block == nil {
		metrics.SkippedSlots.WithLabelValues(string(p.chain)).Inc()
		p.addScanned(0)
		return nil
	}
	metrics.BlocksScanned.WithLabelValues(string(p.chain)).Inc()

	// Delivery has its own timeouts and must not be cut by BlockTimeout.
	dctx := context.WithoutCancel(ctx)

	var found int
	if snap.Len() > 0 {
		for _, tx := range block.Transactions {
			candidates, err := p.classifier.Classify(bctx, p.adapter, tx, snap)
			if err != nil {
				var connErr *domain.AdapterConnectionError
				if errors.As(err, &connErr) {
					return err
				}
				metrics.DecodeErrors.WithLabelValues(string(p.chain)).Inc()
				p.log.Debug("skipping undecodable transaction", "tx", tx.Hash, "error", err)
				continue
			}
			for _, c := range candidates {
				entry, ok := snap.Lookup(c.Token.Address)
				if !ok {
					continue
				}
				found++
				p.dispatcher.Dispatch(dctx, c, entry.Subscriptions)
			}
		}
	}
	p.addScanned(found)
	return nil
}

func (p *Poller) latestHeight(ctx context.Context) (uint64, error) {
	hctx, cancel := context.WithTimeout(ctx, p.cfg.BlockTimeout)
	defer cancel()
	head, err := p.adapter.LatestHeight(hctx)
	if err != nil {
		return 0, err
	}
	metrics.ChainLatestBlock.WithLabelValues(string(p.chain)).Set(float64(head))
	return head, nil
}

func (p *Poller) transition(to State) {
	p.mu.Lock()
	from := p.status.State
	if !CanTransition(from, to) {
		p.mu.Unlock()
		p.log.Error("invalid poller transition", "from", from, "to", to, "error", ErrInvalidTransition)
		return
	}
	p.status.State = to
	p.mu.Unlock()
	if from != to {
		p.publishState(to)
	}
}

func (p *Poller) publishState(current State) {
	for _, s := range AllStates {
		v := 0.0
		if s == current {
			v = 1
		}
		metrics.PollerState.WithLabelValues(string(p.chain), string(s)).Set(v)
	}
}

func (p *Poller) setHeights(cursor, head uint64) {
	p.mu.Lock()
	p.status.Cursor = cursor
	p.status.Head = head
	p.status.Lag = int64(head) - int64(cursor)
	p.mu.Unlock()
}

func (p *Poller) addScanned(candidates int) {
	p.mu.Lock()
	p.status.BlocksScanned++
	p.status.Candidates += uint64(candidates)
	p.mu.Unlock()
}

func (p *Poller) recordError(err error) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.ConsecutiveErrors++
	p.status.LastError = err.Error()
	return p.status.ConsecutiveErrors
}

func (p *Poller) clearError() {
	p.mu.Lock()
	p.status.ConsecutiveErrors = 0
	p.mu.Unlock()
}

func sleep(ctx context.Context, d time.Duration, wake <-chan uint64) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	case <-wake:
	}
	return nil
}
