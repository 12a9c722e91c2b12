package cursor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/buywatch/internal/core/domain"
	"github.com/vietddude/buywatch/internal/indexing/metrics"
	"github.com/vietddude/buywatch/internal/infra/storage"
)

var (
	// ErrCursorNotFound is returned when a chain has no saved cursor.
	ErrCursorNotFound = errors.New("cursor not found")

	// ErrCursorBehind is returned when Advance is asked to move backward.
	ErrCursorBehind = errors.New("cursor would move backward")
)

// Manager handles cursor operations.
type Manager interface {
	// Get retrieves the current cursor for a chain.
	Get(ctx context.Context, chain domain.Chain) (*Cursor, error)

	// Initialize returns the saved cursor, or creates one at head.
	Initialize(ctx context.Context, chain domain.Chain, head uint64) (*Cursor, error)

	// Advance moves the cursor forward to height.
	Advance(ctx context.Context, chain domain.Chain, height uint64) error

	// Reset overwrites the cursor (operator only).
	Reset(ctx context.Context, chain domain.Chain, height uint64) error

	// List returns every saved cursor.
	List(ctx context.Context) ([]Cursor, error)

	// GetLag returns blocks behind the chain tip.
	GetLag(ctx context.Context, chain domain.Chain, latest uint64) (int64, error)

	// GetMetrics returns scan throughput for a chain.
	GetMetrics(chain domain.Chain) Metrics
}

// DefaultManager implements Manager on a storage.CursorStore.
type DefaultManager struct {
	store            storage.CursorStore
	mu               sync.RWMutex
	blockTimeHistory map[domain.Chain]*MetricsCollector
}

// Get retrieves the current cursor for a chain.
func (m *DefaultManager) Get(ctx context.Context, chain domain.Chain) (*Cursor, error) {
	c, err := m.store.Get(ctx, chain)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrCursorNotFound
	}
	return c, nil
}

// Initialize returns the saved cursor for chain. When there is none, a cursor
// is created at head so that the scan starts with the next new block.
func (m *DefaultManager) Initialize(ctx context.Context, chain domain.Chain, head uint64) (*Cursor, error) {
	m.mu.Lock()
	if _, ok := m.blockTimeHistory[chain]; !ok {
		m.blockTimeHistory[chain] = NewMetricsCollector(100)
	}
	m.mu.Unlock()

	existing, err := m.store.Get(ctx, chain)
	switch {
	case errors.Is(err, storage.ErrCorruptRecord):
		// Treated as absent: start again from head.
		slog.Default().With("component", "cursor").Warn("saved cursor unreadable, restarting at head",
			"chain", chain, "head", head, "error", err)
		existing = nil
	case err != nil:
		return nil, fmt.Errorf("failed to get cursor: %w", err)
	}
	if existing != nil {
		metrics.CursorHeight.WithLabelValues(string(chain)).Set(float64(existing.Height))
		return existing, nil
	}

	if err := m.store.Reset(ctx, chain, head); err != nil {
		return nil, &domain.PersistenceError{Op: "initialize cursor " + string(chain), Err: err}
	}
	metrics.CursorHeight.WithLabelValues(string(chain)).Set(float64(head))
	return &Cursor{Chain: chain, Height: head, UpdatedAt: time.Now().UTC()}, nil
}

// Advance moves the cursor to height. Advancing to the current height is a no-op.
func (m *DefaultManager) Advance(ctx context.Context, chain domain.Chain, height uint64) error {
	current, err := m.store.Get(ctx, chain)
	if err != nil {
		return fmt.Errorf("failed to get cursor: %w", err)
	}
	if current != nil {
		if height == current.Height {
			return nil
		}
		if height < current.Height {
			return fmt.Errorf("%w: at %d, got %d", ErrCursorBehind, current.Height, height)
		}
	}

	if err := m.store.Advance(ctx, chain, height); err != nil {
		return &domain.PersistenceError{Op: "advance cursor " + string(chain), Err: err}
	}
	metrics.CursorHeight.WithLabelValues(string(chain)).Set(float64(height))

	m.mu.Lock()
	if collector, ok := m.blockTimeHistory[chain]; ok {
		collector.RecordBlock(height, time.Now())
	}
	m.mu.Unlock()

	return nil
}

// Reset overwrites the cursor, backward moves included.
func (m *DefaultManager) Reset(ctx context.Context, chain domain.Chain, height uint64) error {
	if err := m.store.Reset(ctx, chain, height); err != nil {
		return &domain.PersistenceError{Op: "reset cursor " + string(chain), Err: err}
	}
	metrics.CursorHeight.WithLabelValues(string(chain)).Set(float64(height))

	m.mu.Lock()
	if collector, ok := m.blockTimeHistory[chain]; ok {
		collector.Reset()
	}
	m.mu.Unlock()
	return nil
}

// List returns every saved cursor.
func (m *DefaultManager) List(ctx context.Context) ([]Cursor, error) {
	return m.store.List(ctx)
}

// GetLag returns how many blocks behind the chain tip.
func (m *DefaultManager) GetLag(ctx context.Context, chain domain.Chain, latest uint64) (int64, error) {
	c, err := m.Get(ctx, chain)
	if err != nil {
		return 0, fmt.Errorf("failed to get cursor: %w", err)
	}
	return int64(latest) - int64(c.Height), nil
}

// GetMetrics returns performance metrics for a chain.
func (m *DefaultManager) GetMetrics(chain domain.Chain) Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if collector, ok := m.blockTimeHistory[chain]; ok {
		return collector.GetMetrics()
	}
	return Metrics{}
}
