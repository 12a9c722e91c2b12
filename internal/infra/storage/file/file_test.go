package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/buywatch/internal/core/domain"
	"github.com/vietddude/buywatch/internal/infra/storage"
)

func TestRegistryStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "registry.json")
	s := NewRegistryStore(path)

	got, err := s.LoadRegistry(ctx)
	if err != nil || len(got) != 0 {
		t.Fatalf("missing file should load empty, got %v, %v", got, err)
	}

	entries := []domain.TokenSubscriptions{{
		Token: domain.TrackedToken{Chain: domain.ChainEVMMainnet, Address: "0xabc", Name: "Pepe", Symbol: "PEPE"},
		Subscriptions: []domain.Subscription{{
			Chain: domain.ChainEVMMainnet, Token: "0xabc", Channel: "-1001",
			MinUSD: decimal.RequireFromString("12.5"), CreatedAt: time.Unix(1700000000, 0).UTC(),
		}},
	}}
	if err := s.SaveRegistry(ctx, entries); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err = s.LoadRegistry(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 || got[0].Token.Symbol != "PEPE" || len(got[0].Subscriptions) != 1 {
		t.Fatalf("unexpected registry %+v", got)
	}
	if !got[0].Subscriptions[0].MinUSD.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("threshold lost precision: %s", got[0].Subscriptions[0].MinUSD)
	}

	// No temp files left behind.
	files, _ := os.ReadDir(filepath.Dir(path))
	if len(files) != 1 {
		t.Errorf("expected only the registry file, got %d entries", len(files))
	}
}

func TestRegistryStore_Corrupt(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	for name, content := range map[string]string{"empty": "", "garbage": "{not json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".json")
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatal(err)
			}
			_, err := NewRegistryStore(path).LoadRegistry(ctx)
			if !errors.Is(err, storage.ErrCorruptRecord) {
				t.Errorf("expected ErrCorruptRecord, got %v", err)
			}
		})
	}
}

func TestCursorStore_Monotonic(t *testing.T) {
	ctx := context.Background()
	s := NewCursorStore(filepath.Join(t.TempDir(), "cursors.json"))

	c, err := s.Get(ctx, domain.ChainSolana)
	if err != nil || c != nil {
		t.Fatalf("expected no cursor, got %v, %v", c, err)
	}

	if err := s.Advance(ctx, domain.ChainSolana, 100); err != nil {
		t.Fatal(err)
	}
	if err := s.Advance(ctx, domain.ChainSolana, 90); err != nil {
		t.Fatal(err)
	}
	c, _ = s.Get(ctx, domain.ChainSolana)
	if c == nil || c.Height != 100 {
		t.Fatalf("cursor moved backward: %+v", c)
	}

	if err := s.Reset(ctx, domain.ChainSolana, 50); err != nil {
		t.Fatal(err)
	}
	c, _ = s.Get(ctx, domain.ChainSolana)
	if c.Height != 50 {
		t.Errorf("reset should move cursor to 50, got %d", c.Height)
	}

	if err := s.Advance(ctx, domain.ChainEVMMainnet, 7); err != nil {
		t.Fatal(err)
	}
	list, err := s.List(ctx)
	if err != nil || len(list) != 2 {
		t.Fatalf("expected 2 cursors, got %v, %v", list, err)
	}
	if list[0].Chain != domain.ChainEVMMainnet {
		t.Errorf("expected sorted list, got %s first", list[0].Chain)
	}
}
