package cursor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vietddude/buywatch/internal/core/domain"
	"github.com/vietddude/buywatch/internal/infra/storage/file"
	"github.com/vietddude/buywatch/internal/infra/storage/memory"
)

const chain = domain.ChainEVMMainnet

// =============================================================================
// Manager Tests
// =============================================================================

func TestManager_InitializeAtHead(t *testing.T) {
	ctx := context.Background()
	m := NewManager(memory.NewStorage())

	c, err := m.Initialize(ctx, chain, 1000)
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if c.Height != 1000 {
		t.Errorf("expected cursor at head 1000, got %d", c.Height)
	}

	// A second start keeps the saved position.
	c, err = m.Initialize(ctx, chain, 5000)
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if c.Height != 1000 {
		t.Errorf("expected saved cursor 1000, got %d", c.Height)
	}
}

func TestManager_InitializeRecoversCorruptFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cursors.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	m := NewManager(file.NewCursorStore(path))

	c, err := m.Initialize(ctx, chain, 700)
	if err != nil {
		t.Fatalf("Initialize failed on corrupt file: %v", err)
	}
	if c.Height != 700 {
		t.Errorf("expected cursor at head 700, got %d", c.Height)
	}

	// The file was rewritten, so the next start finds the saved cursor.
	c, err = m.Initialize(ctx, chain, 900)
	if err != nil {
		t.Fatalf("second Initialize failed: %v", err)
	}
	if c.Height != 700 {
		t.Errorf("expected saved cursor 700, got %d", c.Height)
	}
	if err := m.Advance(ctx, chain, 710); err != nil {
		t.Errorf("Advance after recovery failed: %v", err)
	}

	// Another chain sharing the file initializes too.
	other, err := m.Initialize(ctx, domain.ChainSolana, 5)
	if err != nil || other.Height != 5 {
		t.Errorf("expected solana cursor at 5, got %+v, %v", other, err)
	}
}

func TestManager_GetMissing(t *testing.T) {
	m := NewManager(memory.NewStorage())
	if _, err := m.Get(context.Background(), chain); !errors.Is(err, ErrCursorNotFound) {
		t.Errorf("expected ErrCursorNotFound, got %v", err)
	}
}

func TestManager_AdvanceIsMonotonic(t *testing.T) {
	ctx := context.Background()
	m := NewManager(memory.NewStorage())
	if _, err := m.Initialize(ctx, chain, 100); err != nil {
		t.Fatal(err)
	}

	if err := m.Advance(ctx, chain, 110); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if err := m.Advance(ctx, chain, 110); err != nil {
		t.Errorf("same height should be a no-op, got %v", err)
	}
	if err := m.Advance(ctx, chain, 105); !errors.Is(err, ErrCursorBehind) {
		t.Errorf("expected ErrCursorBehind, got %v", err)
	}

	c, _ := m.Get(ctx, chain)
	if c.Height != 110 {
		t.Errorf("expected 110, got %d", c.Height)
	}
}

func TestManager_ResetMovesBackward(t *testing.T) {
	ctx := context.Background()
	m := NewManager(memory.NewStorage())
	_, _ = m.Initialize(ctx, chain, 100)
	_ = m.Advance(ctx, chain, 200)

	if err := m.Reset(ctx, chain, 50); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	c, _ := m.Get(ctx, chain)
	if c.Height != 50 {
		t.Errorf("expected 50 after reset, got %d", c.Height)
	}
}

func TestManager_PersistenceFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	m := NewManager(store)
	_, _ = m.Initialize(ctx, chain, 100)

	store.FailSaves(errors.New("disk full"))
	err := m.Advance(ctx, chain, 101)

	var perr *domain.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
}

func TestManager_GetLag(t *testing.T) {
	ctx := context.Background()
	m := NewManager(memory.NewStorage())
	_, _ = m.Initialize(ctx, chain, 100)

	lag, err := m.GetLag(ctx, chain, 130)
	if err != nil {
		t.Fatal(err)
	}
	if lag != 30 {
		t.Errorf("expected lag 30, got %d", lag)
	}
}

// =============================================================================
// Metrics Tests
// =============================================================================

func TestMetricsCollector(t *testing.T) {
	mc := NewMetricsCollector(3)
	start := time.Now()

	mc.RecordBlock(100, start)
	mc.RecordBlock(110, start.Add(5*time.Second))
	mc.RecordBlock(120, start.Add(10*time.Second))
	mc.RecordBlock(130, start.Add(15*time.Second))

	if len(mc.blockTimes) != 3 {
		t.Fatalf("expected window of 3, got %d", len(mc.blockTimes))
	}

	got := mc.GetMetrics()
	if got.BlocksPerSecond != 2 {
		t.Errorf("expected 2 blocks/s, got %f", got.BlocksPerSecond)
	}
	if got.AverageBlockTime != 500*time.Millisecond {
		t.Errorf("expected 500ms per block, got %v", got.AverageBlockTime)
	}
	if got.LastAdvanceAt == nil {
		t.Error("expected LastAdvanceAt")
	}

	mc.Reset()
	if m := mc.GetMetrics(); m.LastAdvanceAt != nil {
		t.Error("expected empty metrics after reset")
	}
}
