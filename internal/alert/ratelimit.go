package alert

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/buywatch/internal/core/domain"
)

// CycleLimiter allows at most K alerted candidates per token per polling
// cycle. Counters are reset per chain by BeginCycle.
type CycleLimiter struct {
	limit int

	mu     sync.Mutex
	counts map[domain.Chain]map[string]int
}

// NewCycleLimiter creates a limiter. A limit of 0 or less disables it.
func NewCycleLimiter(limit int) *CycleLimiter {
	return &CycleLimiter{limit: limit, counts: make(map[domain.Chain]map[string]int)}
}

// BeginCycle resets the counters of chain.
func (l *CycleLimiter) BeginCycle(chain domain.Chain) {
	l.mu.Lock()
	delete(l.counts, chain)
	l.mu.Unlock()
}

// Allow consumes one slot for token.
func (l *CycleLimiter) Allow(chain domain.Chain, token string) bool {
	if l.limit <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.counts[chain]
	if !ok {
		m = make(map[string]int)
		l.counts[chain] = m
	}
	if m[token] >= l.limit {
		return false
	}
	m[token]++
	return true
}

// HourlyLimiter caps alerts per token over a sliding window.
type HourlyLimiter interface {
	Allow(ctx context.Context, chain domain.Chain, token string) (bool, error)
}

// MemoryHourlyLimiter is a per-process sliding window limiter.
type MemoryHourlyLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu     sync.Mutex
	events map[string][]time.Time
}

// NewMemoryHourlyLimiter allows limit alerts per token per window.
func NewMemoryHourlyLimiter(limit int, window time.Duration) *MemoryHourlyLimiter {
	if window <= 0 {
		window = time.Hour
	}
	return &MemoryHourlyLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		events: make(map[string][]time.Time),
	}
}

func (l *MemoryHourlyLimiter) Allow(ctx context.Context, chain domain.Chain, token string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	key := string(chain) + ":" + token
	now := l.now()
	cutoff := now.Add(-l.window)

	kept := l.events[key][:0]
	for _, t := range l.events[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= l.limit {
		l.events[key] = kept
		return false, nil
	}
	l.events[key] = append(kept, now)
	return true, nil
}
