package alert

import (
	"context"
	"log/slog"
	"sync"

	"github.com/vietddude/buywatch/internal/core/domain"
)

// DefaultDedupeWindow is how many alert keys are remembered per token.
const DefaultDedupeWindow = 1000

// Dedupe remembers which (tx, token, channel) alerts were attempted.
type Dedupe interface {
	// Seen reports whether key was recorded.
	Seen(ctx context.Context, key domain.AlertKey) (bool, error)

	// Record claims key. It reports false when key was already recorded.
	Record(ctx context.Context, key domain.AlertKey) (bool, error)
}

// MemoryDedupe keeps the last N keys per token in a ring.
type MemoryDedupe struct {
	window int

	mu     sync.Mutex
	tokens map[string]*keyRing
}

type keyRing struct {
	keys []string
	next int
	set  map[string]struct{}
}

// NewMemoryDedupe remembers up to window keys per token.
func NewMemoryDedupe(window int) *MemoryDedupe {
	if window <= 0 {
		window = DefaultDedupeWindow
	}
	return &MemoryDedupe{window: window, tokens: make(map[string]*keyRing)}
}

func (m *MemoryDedupe) Seen(ctx context.Context, key domain.AlertKey) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.tokens[key.Token]
	if !ok {
		return false, nil
	}
	_, seen := r.set[key.String()]
	return seen, nil
}

func (m *MemoryDedupe) Record(ctx context.Context, key domain.AlertKey) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.tokens[key.Token]
	if !ok {
		r = &keyRing{keys: make([]string, 0, min(m.window, 64)), set: make(map[string]struct{})}
		m.tokens[key.Token] = r
	}

	k := key.String()
	if _, seen := r.set[k]; seen {
		return false, nil
	}

	if len(r.keys) < m.window {
		r.keys = append(r.keys, k)
	} else {
		// Overwrite the oldest key.
		delete(r.set, r.keys[r.next])
		r.keys[r.next] = k
		r.next = (r.next + 1) % m.window
	}
	r.set[k] = struct{}{}
	return true, nil
}

// Len returns the number of keys remembered for token.
func (m *MemoryDedupe) Len(token string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.tokens[token]; ok {
		return len(r.set)
	}
	return 0
}

// LayeredDedupe checks a local set first and a shared one second. Errors of
// the shared layer are logged and treated as "not seen".
type LayeredDedupe struct {
	local  Dedupe
	shared Dedupe
	log    *slog.Logger
}

func NewLayeredDedupe(local, shared Dedupe) *LayeredDedupe {
	return &LayeredDedupe{local: local, shared: shared, log: slog.Default().With("component", "dedupe")}
}

func (l *LayeredDedupe) Seen(ctx context.Context, key domain.AlertKey) (bool, error) {
	if seen, err := l.local.Seen(ctx, key); err == nil && seen {
		return true, nil
	}
	seen, err := l.shared.Seen(ctx, key)
	if err != nil {
		l.log.Warn("shared dedupe lookup failed", "key", key.String(), "error", err)
		return false, nil
	}
	return seen, nil
}

func (l *LayeredDedupe) Record(ctx context.Context, key domain.AlertKey) (bool, error) {
	fresh, err := l.local.Record(ctx, key)
	if err != nil || !fresh {
		return fresh, err
	}
	claimed, err := l.shared.Record(ctx, key)
	if err != nil {
		l.log.Warn("shared dedupe record failed", "key", key.String(), "error", err)
		return true, nil
	}
	return claimed, nil
}
