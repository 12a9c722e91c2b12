// Package registry holds the set of tracked tokens and their channel
// subscriptions.
//
// Mutations are serialized and published as per-chain copy-on-write
// snapshots, so pollers read a consistent view without locking. Every
// mutation persists the full state through a storage.RegistryStore.
// When persisting fails the in-memory change stays in effect and the
// next mutation (or Save) writes the whole state again.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/buywatch/internal/core/domain"
	"github.com/vietddude/buywatch/internal/indexing/metrics"
	"github.com/vietddude/buywatch/internal/infra/storage"
)

// DefaultMinUSD is the threshold used when a subscription does not set one.
var DefaultMinUSD = decimal.NewFromInt(10)

// ErrInvalidSubscription is returned for an empty channel or negative threshold.
var ErrInvalidSubscription = errors.New("invalid subscription")

type view map[domain.Chain]*Snapshot

// Registry is the in-memory token registry.
type Registry struct {
	store storage.RegistryStore
	log   *slog.Logger
	now   func() time.Time

	mu      sync.Mutex // serializes mutations and persistence
	entries map[string]domain.TokenSubscriptions
	dirty   bool

	current atomic.Pointer[view]
}

// New creates an empty registry backed by store. Call Load to read the
// persisted state.
func New(store storage.RegistryStore) *Registry {
	r := &Registry{
		store:   store,
		log:     slog.Default().With("component", "registry"),
		now:     func() time.Time { return time.Now().UTC() },
		entries: make(map[string]domain.TokenSubscriptions),
	}
	r.publishLocked()
	return r
}

// Load replaces the in-memory state with the persisted one. A corrupt record
// is logged, replaced by an empty registry and rewritten.
func (r *Registry) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	loaded, err := r.store.LoadRegistry(ctx)
	if errors.Is(err, storage.ErrCorruptRecord) {
		r.log.Warn("registry record is corrupt, starting empty", "error", err)
		r.entries = make(map[string]domain.TokenSubscriptions)
		r.publishLocked()
		return r.persistLocked(ctx, "recreate registry")
	}
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	r.entries = r.sanitize(loaded)
	r.dirty = false
	r.publishLocked()
	r.log.Info("registry loaded", "tokens", len(r.entries))
	return nil
}

// Reload picks up changes written by other processes. Local changes that
// were never persisted win: they are written out instead.
func (r *Registry) Reload(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dirty {
		return r.persistLocked(ctx, "retry save")
	}

	loaded, err := r.store.LoadRegistry(ctx)
	if err != nil {
		return fmt.Errorf("failed to reload registry: %w", err)
	}
	r.entries = r.sanitize(loaded)
	r.publishLocked()
	return nil
}

// RunReloader calls Reload every interval until ctx is done.
func (r *Registry) RunReloader(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Reload(ctx); err != nil && ctx.Err() == nil {
				r.log.Warn("registry reload failed", "error", err)
			}
		}
	}
}

// Save persists the full in-memory state.
func (r *Registry) Save(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.persistLocked(ctx, "save registry")
}

// Add subscribes channel to a token. An existing subscription gets its
// threshold, name and symbol updated and created is false.
func (r *Registry) Add(
	ctx context.Context,
	chain domain.Chain,
	address, name, symbol, channel string,
	minUSD decimal.Decimal,
) (created bool, err error) {
	if !chain.Valid() {
		return false, fmt.Errorf("%w: %q", domain.ErrUnknownChain, chain)
	}
	addr, err := domain.NormalizeAddress(chain, address)
	if err != nil {
		return false, err
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return false, fmt.Errorf("%w: empty channel", ErrInvalidSubscription)
	}
	if minUSD.IsNegative() {
		return false, fmt.Errorf("%w: negative threshold %s", ErrInvalidSubscription, minUSD)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := string(chain) + ":" + addr
	entry, ok := r.entries[key]
	if !ok {
		entry = domain.TokenSubscriptions{
			Token: domain.TrackedToken{Chain: chain, Address: addr},
		}
	}
	if name != "" {
		entry.Token.Name = name
	}
	if symbol != "" {
		entry.Token.Symbol = symbol
	}

	subs := append([]domain.Subscription(nil), entry.Subscriptions...)
	created = true
	for i := range subs {
		if subs[i].Channel == channel {
			subs[i].MinUSD = minUSD
			created = false
			break
		}
	}
	if created {
		subs = append(subs, domain.Subscription{
			Chain:     chain,
			Token:     addr,
			Channel:   channel,
			MinUSD:    minUSD,
			CreatedAt: r.now(),
		})
	}
	entry.Subscriptions = subs
	r.entries[key] = entry
	r.publishLocked()

	r.log.Info("subscription added",
		"chain", chain, "token", addr, "channel", channel, "min_usd", minUSD.String(), "created", created)
	return created, r.persistLocked(ctx, "add "+key)
}

// Remove deletes one subscription. A token left without subscriptions is
// no longer tracked. It reports whether anything was removed.
func (r *Registry) Remove(ctx context.Context, chain domain.Chain, address, channel string) (bool, error) {
	addr, err := domain.NormalizeAddress(chain, address)
	if err != nil {
		return false, err
	}
	channel = strings.TrimSpace(channel)

	r.mu.Lock()
	defer r.mu.Unlock()

	key := string(chain) + ":" + addr
	entry, ok := r.entries[key]
	if !ok {
		return false, nil
	}

	subs := make([]domain.Subscription, 0, len(entry.Subscriptions))
	for _, s := range entry.Subscriptions {
		if s.Channel != channel {
			subs = append(subs, s)
		}
	}
	if len(subs) == len(entry.Subscriptions) {
		return false, nil
	}

	if len(subs) == 0 {
		delete(r.entries, key)
	} else {
		entry.Subscriptions = subs
		r.entries[key] = entry
	}
	r.publishLocked()

	r.log.Info("subscription removed", "chain", chain, "token", addr, "channel", channel)
	return true, r.persistLocked(ctx, "remove "+key)
}

// Snapshot returns the current view of chain. It never returns nil.
func (r *Registry) Snapshot(chain domain.Chain) *Snapshot {
	if s, ok := (*r.current.Load())[chain]; ok {
		return s
	}
	return emptySnapshot(chain)
}

// Count returns the number of tracked tokens across all chains.
func (r *Registry) Count() int {
	n := 0
	for _, s := range *r.current.Load() {
		n += s.Len()
	}
	return n
}

// Tokens returns the tracked tokens of chain sorted by address.
func (r *Registry) Tokens(chain domain.Chain) []domain.TrackedToken {
	entries := r.Snapshot(chain).Entries()
	out := make([]domain.TrackedToken, len(entries))
	for i, e := range entries {
		out[i] = e.Token
	}
	return out
}

// Subscriptions returns the subscriptions of one token, or nil if untracked.
func (r *Registry) Subscriptions(chain domain.Chain, address string) []domain.Subscription {
	addr, err := domain.NormalizeAddress(chain, address)
	if err != nil {
		return nil
	}
	e, ok := r.Snapshot(chain).Lookup(addr)
	if !ok {
		return nil
	}
	return append([]domain.Subscription(nil), e.Subscriptions...)
}

// Entries returns every token with its subscriptions, grouped by chain.
func (r *Registry) Entries() []domain.TokenSubscriptions {
	var out []domain.TokenSubscriptions
	for _, c := range domain.AllChains {
		out = append(out, r.Snapshot(c).Entries()...)
	}
	return out
}

// Dirty reports whether the in-memory state has unsaved changes.
func (r *Registry) Dirty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dirty
}

func (r *Registry) persistLocked(ctx context.Context, op string) error {
	if err := r.store.SaveRegistry(ctx, r.sortedLocked()); err != nil {
		r.dirty = true
		r.log.Error("failed to persist registry", "op", op, "error", err)
		return &domain.PersistenceError{Op: op, Err: err}
	}
	r.dirty = false
	return nil
}

func (r *Registry) sortedLocked() []domain.TokenSubscriptions {
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]domain.TokenSubscriptions, len(keys))
	for i, k := range keys {
		out[i] = r.entries[k]
	}
	return out
}

// publishLocked rebuilds the per-chain snapshots from entries.
func (r *Registry) publishLocked() {
	v := make(view, len(domain.AllChains))
	for _, c := range domain.AllChains {
		v[c] = emptySnapshot(c)
	}
	for _, e := range r.entries {
		s, ok := v[e.Token.Chain]
		if !ok {
			continue
		}
		s.tokens[e.Token.Address] = domain.TokenSubscriptions{
			Token:         e.Token,
			Subscriptions: append([]domain.Subscription(nil), e.Subscriptions...),
		}
	}
	r.current.Store(&v)

	for c, s := range v {
		metrics.TrackedTokens.WithLabelValues(string(c)).Set(float64(s.Len()))
	}
}

// sanitize normalizes loaded records and drops the ones that do not parse.
func (r *Registry) sanitize(loaded []domain.TokenSubscriptions) map[string]domain.TokenSubscriptions {
	out := make(map[string]domain.TokenSubscriptions, len(loaded))
	for _, e := range loaded {
		if !e.Token.Chain.Valid() {
			r.log.Warn("dropping registry entry of unknown chain", "chain", e.Token.Chain)
			continue
		}
		addr, err := domain.NormalizeAddress(e.Token.Chain, e.Token.Address)
		if err != nil {
			r.log.Warn("dropping invalid registry entry", "chain", e.Token.Chain, "address", e.Token.Address, "error", err)
			continue
		}
		e.Token.Address = addr

		subs := make([]domain.Subscription, 0, len(e.Subscriptions))
		seen := make(map[string]bool, len(e.Subscriptions))
		for _, s := range e.Subscriptions {
			if s.Channel == "" || seen[s.Channel] {
				continue
			}
			seen[s.Channel] = true
			s.Chain = e.Token.Chain
			s.Token = addr
			subs = append(subs, s)
		}
		if len(subs) == 0 {
			continue
		}
		e.Subscriptions = subs

		key := e.Token.Key()
		if prev, ok := out[key]; ok {
			e.Subscriptions = mergeSubs(prev.Subscriptions, e.Subscriptions)
		}
		out[key] = e
	}
	return out
}

func mergeSubs(a, b []domain.Subscription) []domain.Subscription {
	out := append([]domain.Subscription(nil), a...)
	for _, s := range b {
		dup := false
		for _, existing := range out {
			if existing.Channel == s.Channel {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, s)
		}
	}
	return out
}
