package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/buywatch/internal/core/domain"
)

// Storage keeps registry and cursors in process memory. Used by tests and
// by dry runs without a data directory.
type Storage struct {
	mu       sync.RWMutex
	registry []domain.TokenSubscriptions
	cursors  map[domain.Chain]domain.ChainCursor
	saveErr  error
	saves    int
}

func NewStorage() *Storage {
	return &Storage{
		cursors: make(map[domain.Chain]domain.ChainCursor),
	}
}

// FailSaves makes every write return err until called again with nil.
func (s *Storage) FailSaves(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}

// Saves returns the number of successful SaveRegistry calls.
func (s *Storage) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

// -----------------------------------------------------------------------------
// Registry Store
// -----------------------------------------------------------------------------

func (s *Storage) LoadRegistry(ctx context.Context) ([]domain.TokenSubscriptions, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneEntries(s.registry), nil
}

func (s *Storage) SaveRegistry(ctx context.Context, entries []domain.TokenSubscriptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.registry = cloneEntries(entries)
	s.saves++
	return nil
}

func cloneEntries(in []domain.TokenSubscriptions) []domain.TokenSubscriptions {
	out := make([]domain.TokenSubscriptions, len(in))
	for i, e := range in {
		out[i] = domain.TokenSubscriptions{
			Token:         e.Token,
			Subscriptions: append([]domain.Subscription(nil), e.Subscriptions...),
		}
	}
	return out
}

// -----------------------------------------------------------------------------
// Cursor Store
// -----------------------------------------------------------------------------

func (s *Storage) Get(ctx context.Context, chain domain.Chain) (*domain.ChainCursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cursors[chain]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *Storage) Advance(ctx context.Context, chain domain.Chain, height uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	if c, ok := s.cursors[chain]; ok && c.Height >= height {
		return nil
	}
	s.cursors[chain] = domain.ChainCursor{Chain: chain, Height: height, UpdatedAt: time.Now().UTC()}
	return nil
}

func (s *Storage) Reset(ctx context.Context, chain domain.Chain, height uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.cursors[chain] = domain.ChainCursor{Chain: chain, Height: height, UpdatedAt: time.Now().UTC()}
	return nil
}

func (s *Storage) List(ctx context.Context) ([]domain.ChainCursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ChainCursor, 0, len(s.cursors))
	for _, c := range s.cursors {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Chain < out[j].Chain })
	return out, nil
}
