package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vietddude/buywatch/internal/core/domain"
	"github.com/vietddude/buywatch/internal/infra/storage/file"
	"github.com/vietddude/buywatch/internal/infra/storage/memory"
)

const (
	evmToken = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
	evmLower = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	solMint  = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	channelA = "@alpha"
	channelB = "-1001234567890"
)

func usd(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestRegistry_AddAndLookup(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	r := New(store)

	created, err := r.Add(ctx, domain.ChainEVMMainnet, evmToken, "USD Coin", "USDC", channelA, usd(100))
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if !created {
		t.Error("expected created=true")
	}

	snap := r.Snapshot(domain.ChainEVMMainnet)
	entry, ok := snap.Lookup(evmLower)
	if !ok {
		t.Fatal("token not found by normalized address")
	}
	if entry.Token.Symbol != "USDC" || len(entry.Subscriptions) != 1 {
		t.Errorf("unexpected entry %+v", entry)
	}
	if store.Saves() != 1 {
		t.Errorf("expected 1 save, got %d", store.Saves())
	}
	if r.Snapshot(domain.ChainSolana).Len() != 0 {
		t.Error("other chains must stay empty")
	}
}

func TestRegistry_AddUpdatesThreshold(t *testing.T) {
	ctx := context.Background()
	r := New(memory.NewStorage())

	_, _ = r.Add(ctx, domain.ChainEVMMainnet, evmToken, "", "", channelA, usd(100))
	created, err := r.Add(ctx, domain.ChainEVMMainnet, evmLower, "USD Coin", "USDC", channelA, usd(250))
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("re-subscribing must not create a new subscription")
	}

	subs := r.Subscriptions(domain.ChainEVMMainnet, evmToken)
	if len(subs) != 1 || !subs[0].MinUSD.Equal(usd(250)) {
		t.Errorf("expected single subscription at 250, got %+v", subs)
	}
	if tokens := r.Tokens(domain.ChainEVMMainnet); tokens[0].Name != "USD Coin" {
		t.Errorf("expected name update, got %+v", tokens[0])
	}
}

func TestRegistry_AddValidation(t *testing.T) {
	ctx := context.Background()
	r := New(memory.NewStorage())

	tests := []struct {
		name    string
		chain   domain.Chain
		addr    string
		channel string
		min     decimal.Decimal
		want    error
	}{
		{"bad evm address", domain.ChainEVMMainnet, "0x123", channelA, usd(1), domain.ErrInvalidAddress},
		{"bad solana key", domain.ChainSolana, "not-base58-0OIl", channelA, usd(1), domain.ErrInvalidAddress},
		{"unknown chain", domain.Chain("dogecoin"), evmToken, channelA, usd(1), domain.ErrUnknownChain},
		{"empty channel", domain.ChainEVMMainnet, evmToken, "  ", usd(1), ErrInvalidSubscription},
		{"negative threshold", domain.ChainEVMMainnet, evmToken, channelA, usd(-1), ErrInvalidSubscription},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Add(ctx, tt.chain, tt.addr, "", "", tt.channel, tt.min)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if r.Count() != 0 {
		t.Errorf("rejected adds must not change state, count=%d", r.Count())
	}
}

func TestRegistry_Remove(t *testing.T) {
	ctx := context.Background()
	r := New(memory.NewStorage())
	_, _ = r.Add(ctx, domain.ChainSolana, solMint, "", "USDC", channelA, usd(10))
	_, _ = r.Add(ctx, domain.ChainSolana, solMint, "", "USDC", channelB, usd(20))

	removed, err := r.Remove(ctx, domain.ChainSolana, solMint, channelA)
	if err != nil || !removed {
		t.Fatalf("expected removal, got %v %v", removed, err)
	}
	if subs := r.Subscriptions(domain.ChainSolana, solMint); len(subs) != 1 || subs[0].Channel != channelB {
		t.Errorf("unexpected subscriptions %+v", subs)
	}

	removed, _ = r.Remove(ctx, domain.ChainSolana, solMint, "@missing")
	if removed {
		t.Error("removing an unknown channel must report false")
	}

	_, _ = r.Remove(ctx, domain.ChainSolana, solMint, channelB)
	if r.Snapshot(domain.ChainSolana).Len() != 0 {
		t.Error("token without subscriptions must leave the polling set")
	}
}

func TestRegistry_SnapshotIsImmutable(t *testing.T) {
	ctx := context.Background()
	r := New(memory.NewStorage())
	_, _ = r.Add(ctx, domain.ChainEVMMainnet, evmToken, "", "", channelA, usd(1))

	before := r.Snapshot(domain.ChainEVMMainnet)
	_, _ = r.Add(ctx, domain.ChainEVMMainnet, evmToken, "", "", channelB, usd(1))
	_, _ = r.Remove(ctx, domain.ChainEVMMainnet, evmToken, channelA)

	entry, _ := before.Lookup(evmLower)
	if len(entry.Subscriptions) != 1 || entry.Subscriptions[0].Channel != channelA {
		t.Errorf("old snapshot changed: %+v", entry.Subscriptions)
	}
}

func TestRegistry_PersistenceFailureRetried(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	r := New(store)

	store.FailSaves(errors.New("disk full"))
	created, err := r.Add(ctx, domain.ChainEVMMainnet, evmToken, "", "", channelA, usd(1))

	var perr *domain.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if !created || r.Count() != 1 {
		t.Error("in-memory mutation must stay in effect")
	}
	if !r.Dirty() {
		t.Error("expected dirty registry")
	}

	store.FailSaves(nil)
	if err := r.Save(ctx); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	loaded, _ := store.LoadRegistry(ctx)
	if len(loaded) != 1 {
		t.Errorf("expected retried save to persist full state, got %d entries", len(loaded))
	}
}

func TestRegistry_LoadCorruptFallsBackToEmpty(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "registry.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := file.NewRegistryStore(path)
	r := New(store)
	if err := r.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if r.Count() != 0 {
		t.Errorf("expected empty registry, got %d", r.Count())
	}

	// The record is recreated and loads cleanly.
	entries, err := store.LoadRegistry(ctx)
	if err != nil {
		t.Fatalf("record was not recreated: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty record, got %d", len(entries))
	}
}

func TestRegistry_ReloadPicksUpExternalChanges(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()

	daemon := New(store)
	if err := daemon.Load(ctx); err != nil {
		t.Fatal(err)
	}

	cli := New(store)
	_ = cli.Load(ctx)
	if _, err := cli.Add(ctx, domain.ChainSolana, solMint, "", "", channelA, usd(5)); err != nil {
		t.Fatal(err)
	}

	if daemon.Count() != 0 {
		t.Fatal("daemon should not see the change before reload")
	}
	if err := daemon.Reload(ctx); err != nil {
		t.Fatal(err)
	}
	if daemon.Count() != 1 {
		t.Errorf("expected 1 token after reload, got %d", daemon.Count())
	}
}

func TestRegistry_LoadSanitizes(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	_ = store.SaveRegistry(ctx, []domain.TokenSubscriptions{
		{
			Token:         domain.TrackedToken{Chain: domain.ChainEVMMainnet, Address: evmToken},
			Subscriptions: []domain.Subscription{{Channel: channelA, MinUSD: usd(1)}, {Channel: channelA, MinUSD: usd(2)}},
		},
		{
			Token:         domain.TrackedToken{Chain: domain.ChainEVMMainnet, Address: "garbage"},
			Subscriptions: []domain.Subscription{{Channel: channelA}},
		},
	})

	r := New(store)
	if err := r.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if r.Count() != 1 {
		t.Fatalf("expected invalid entry dropped, got %d tokens", r.Count())
	}
	subs := r.Subscriptions(domain.ChainEVMMainnet, evmLower)
	if len(subs) != 1 || subs[0].Token != evmLower {
		t.Errorf("unexpected subscriptions %+v", subs)
	}
}

func TestRegistry_ConcurrentReadersSeeWholeMutations(t *testing.T) {
	ctx := context.Background()
	r := New(memory.NewStorage())

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			snap := r.Snapshot(domain.ChainEVMMainnet)
			for _, addr := range snap.Addresses() {
				e, ok := snap.Lookup(addr)
				if !ok || len(e.Subscriptions) == 0 {
					t.Errorf("half-visible entry for %s", addr)
					return
				}
			}
		}
	}()

	for i := 0; i < 50; i++ {
		_, _ = r.Add(ctx, domain.ChainEVMMainnet, evmToken, "", "", channelA, usd(int64(i)))
		_, _ = r.Remove(ctx, domain.ChainEVMMainnet, evmToken, channelA)
	}
	close(stop)
	wg.Wait()
}
