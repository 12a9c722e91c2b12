package storage

import (
	"context"
	"errors"

	"github.com/vietddude/buywatch/internal/core/domain"
)

var (
	// ErrCorruptRecord is returned when a persisted record cannot be decoded.
	// Callers fall back to an empty state and rewrite the record.
	ErrCorruptRecord = errors.New("corrupt record")
)

// RegistryStore persists the full token registry.
type RegistryStore interface {
	// LoadRegistry returns every tracked token with its subscriptions.
	// A missing record yields an empty slice and no error.
	LoadRegistry(ctx context.Context) ([]domain.TokenSubscriptions, error)

	// SaveRegistry replaces the persisted registry with entries.
	SaveRegistry(ctx context.Context, entries []domain.TokenSubscriptions) error
}

// CursorStore persists per-chain cursors.
type CursorStore interface {
	// Get retrieves the cursor for a chain, nil when none was saved yet
	Get(ctx context.Context, chain domain.Chain) (*domain.ChainCursor, error)

	// Advance stores height if it is above the saved one
	Advance(ctx context.Context, chain domain.Chain, height uint64) error

	// Reset overwrites the cursor, moving it backward if needed (operator only)
	Reset(ctx context.Context, chain domain.Chain, height uint64) error

	// List returns all saved cursors
	List(ctx context.Context) ([]domain.ChainCursor, error)
}
