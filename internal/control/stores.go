package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/buywatch/internal/core/config"
	"github.com/vietddude/buywatch/internal/infra/storage"
	"github.com/vietddude/buywatch/internal/infra/storage/file"
	"github.com/vietddude/buywatch/internal/infra/storage/memory"
	"github.com/vietddude/buywatch/internal/infra/storage/postgres"
)

// Stores bundles the persistence backends selected by config.
type Stores struct {
	Registry storage.RegistryStore
	Cursors  storage.CursorStore

	// DB is set for the postgres backend only.
	DB *postgres.DB
}

// OpenStores opens the configured backend. For postgres it also applies
// pending migrations.
func OpenStores(ctx context.Context, cfg *config.AppConfig) (*Stores, error) {
	switch cfg.Storage {
	case config.StoragePostgres:
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		slog.Info("Using PostgreSQL storage")
		return &Stores{
			Registry: postgres.NewRegistryRepo(db),
			Cursors:  postgres.NewCursorRepo(db),
			DB:       db,
		}, nil

	case config.StorageMemory:
		slog.Warn("Using in-memory storage, nothing survives a restart")
		mem := memory.NewStorage()
		return &Stores{Registry: mem, Cursors: mem}, nil

	default:
		slog.Info("Using file storage", "registry", cfg.Registry.Path, "cursors", cfg.Cursor.Path)
		return &Stores{
			Registry: file.NewRegistryStore(cfg.Registry.Path),
			Cursors:  file.NewCursorStore(cfg.Cursor.Path),
		}, nil
	}
}

// Close releases the database connection, if any.
func (s *Stores) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}
