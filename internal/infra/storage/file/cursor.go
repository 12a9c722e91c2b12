package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/buywatch/internal/core/domain"
	"github.com/vietddude/buywatch/internal/infra/storage"
)

// CursorStore keeps all chain cursors in one JSON file.
type CursorStore struct {
	path string
	mu   sync.Mutex
}

func NewCursorStore(path string) *CursorStore {
	return &CursorStore{path: path}
}

func (s *CursorStore) load() (map[domain.Chain]domain.ChainCursor, error) {
	out := make(map[domain.Chain]domain.ChainCursor)

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cursors: %w", err)
	}
	if len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", storage.ErrCorruptRecord, s.path, err)
	}
	return out, nil
}

func (s *CursorStore) save(cursors map[domain.Chain]domain.ChainCursor) error {
	data, err := json.MarshalIndent(cursors, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cursors: %w", err)
	}
	return writeFileAtomic(s.path, data, 0o644)
}

func (s *CursorStore) Get(ctx context.Context, chain domain.Chain) (*domain.ChainCursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cursors, err := s.load()
	if err != nil {
		return nil, err
	}
	c, ok := cursors[chain]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *CursorStore) Advance(ctx context.Context, chain domain.Chain, height uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cursors, err := s.load()
	if err != nil {
		return err
	}
	if c, ok := cursors[chain]; ok && c.Height >= height {
		return nil
	}
	cursors[chain] = domain.ChainCursor{Chain: chain, Height: height, UpdatedAt: time.Now().UTC()}
	return s.save(cursors)
}

func (s *CursorStore) Reset(ctx context.Context, chain domain.Chain, height uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cursors, err := s.load()
	if err != nil && !errors.Is(err, storage.ErrCorruptRecord) {
		return err
	}
	if cursors == nil {
		cursors = make(map[domain.Chain]domain.ChainCursor)
	}
	cursors[chain] = domain.ChainCursor{Chain: chain, Height: height, UpdatedAt: time.Now().UTC()}
	return s.save(cursors)
}

func (s *CursorStore) List(ctx context.Context) ([]domain.ChainCursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cursors, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]domain.ChainCursor, 0, len(cursors))
	for _, c := range cursors {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Chain < out[j].Chain })
	return out, nil
}
