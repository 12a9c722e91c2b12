package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vietddude/buywatch/internal/core/domain"
)

// CursorRepo implements storage.CursorStore using PostgreSQL.
type CursorRepo struct {
	db *DB
}

// NewCursorRepo creates a new PostgreSQL cursor repository.
func NewCursorRepo(db *DB) *CursorRepo {
	return &CursorRepo{db: db}
}

// Get retrieves a cursor by chain.
func (r *CursorRepo) Get(ctx context.Context, chain domain.Chain) (*domain.ChainCursor, error) {
	var c domain.ChainCursor
	err := r.db.GetContext(ctx, &c,
		`SELECT chain, height, updated_at FROM chain_cursors WHERE chain = $1`, string(chain))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cursor: %w", err)
	}
	return &c, nil
}

// Advance moves the cursor forward; lower heights are ignored.
func (r *CursorRepo) Advance(ctx context.Context, chain domain.Chain, height uint64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO chain_cursors (chain, height, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (chain) DO UPDATE SET height = EXCLUDED.height, updated_at = EXCLUDED.updated_at
		WHERE chain_cursors.height < EXCLUDED.height`,
		string(chain), int64(height))
	if err != nil {
		return fmt.Errorf("failed to advance cursor: %w", err)
	}
	return nil
}

// Reset overwrites the cursor unconditionally.
func (r *CursorRepo) Reset(ctx context.Context, chain domain.Chain, height uint64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO chain_cursors (chain, height, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (chain) DO UPDATE SET height = EXCLUDED.height, updated_at = EXCLUDED.updated_at`,
		string(chain), int64(height))
	if err != nil {
		return fmt.Errorf("failed to reset cursor: %w", err)
	}
	return nil
}

// List returns all cursors.
func (r *CursorRepo) List(ctx context.Context) ([]domain.ChainCursor, error) {
	var out []domain.ChainCursor
	if err := r.db.SelectContext(ctx, &out,
		`SELECT chain, height, updated_at FROM chain_cursors ORDER BY chain`); err != nil {
		return nil, fmt.Errorf("failed to list cursors: %w", err)
	}
	return out, nil
}
