// Package file stores the registry and cursors as JSON documents on disk.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/vietddude/buywatch/internal/core/domain"
	"github.com/vietddude/buywatch/internal/infra/storage"
)

const registryVersion = 1

type registryDocument struct {
	Version   int                         `json:"version"`
	UpdatedAt time.Time                   `json:"updated_at"`
	Tokens    []domain.TokenSubscriptions `json:"tokens"`
}

// RegistryStore keeps the registry in a single JSON file.
type RegistryStore struct {
	path string
	mu   sync.Mutex
}

// NewRegistryStore creates a store backed by path.
func NewRegistryStore(path string) *RegistryStore {
	return &RegistryStore{path: path}
}

// Path returns the backing file.
func (s *RegistryStore) Path() string {
	return s.path
}

// LoadRegistry reads the registry file. A missing file is an empty registry;
// an empty or undecodable file returns storage.ErrCorruptRecord.
func (s *RegistryStore) LoadRegistry(ctx context.Context) ([]domain.TokenSubscriptions, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", storage.ErrCorruptRecord, s.path)
	}

	var doc registryDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", storage.ErrCorruptRecord, s.path, err)
	}
	return doc.Tokens, nil
}

// SaveRegistry writes the registry atomically.
func (s *RegistryStore) SaveRegistry(ctx context.Context, entries []domain.TokenSubscriptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entries == nil {
		entries = []domain.TokenSubscriptions{}
	}
	data, err := json.MarshalIndent(registryDocument{
		Version:   registryVersion,
		UpdatedAt: time.Now().UTC(),
		Tokens:    entries,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	return writeFileAtomic(s.path, data, 0o644)
}
