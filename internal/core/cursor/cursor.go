// Package cursor tracks the scan position for each chain.
//
// The cursor is the last fully processed height. It only moves forward
// during normal operation:
//
//	m := cursor.NewManager(store)
//
//	// First start: begin at the current head, no backfill
//	c, _ := m.Initialize(ctx, domain.ChainSolana, head)
//
//	// After a scan range is fully processed
//	m.Advance(ctx, domain.ChainSolana, rangeEnd)
//
//	// Operator rewind
//	m.Reset(ctx, domain.ChainSolana, 250_000_000)
//
// Advance never rewinds. Reset is the only backward move and is meant for
// the reset-cursor command.
package cursor

import (
	"github.com/vietddude/buywatch/internal/core/domain"
	"github.com/vietddude/buywatch/internal/infra/storage"
)

// Cursor is the persisted scan position of a chain.
type Cursor = domain.ChainCursor

// NewManager creates a new cursor manager on top of store.
func NewManager(store storage.CursorStore) *DefaultManager {
	return &DefaultManager{
		store:            store,
		blockTimeHistory: make(map[domain.Chain]*MetricsCollector),
	}
}

// NewMetricsCollector creates a new metrics collector with the given window size.
func NewMetricsCollector(windowSize int) *MetricsCollector {
	if windowSize <= 0 {
		windowSize = 100
	}
	return &MetricsCollector{
		windowSize: windowSize,
		blockTimes: make([]blockRecord, 0, windowSize),
	}
}
