package registry

import (
	"sort"

	"github.com/vietddude/buywatch/internal/core/domain"
)

// Snapshot is an immutable view of one chain's tracked tokens.
// It is safe to share between goroutines.
type Snapshot struct {
	chain  domain.Chain
	tokens map[string]domain.TokenSubscriptions
}

func emptySnapshot(chain domain.Chain) *Snapshot {
	return &Snapshot{chain: chain, tokens: map[string]domain.TokenSubscriptions{}}
}

// Chain returns the chain of the snapshot.
func (s *Snapshot) Chain() domain.Chain {
	return s.chain
}

// Lookup finds a token by normalized address.
func (s *Snapshot) Lookup(address string) (domain.TokenSubscriptions, bool) {
	e, ok := s.tokens[address]
	return e, ok
}

// Len returns the number of tracked tokens.
func (s *Snapshot) Len() int {
	return len(s.tokens)
}

// Addresses returns the tracked addresses in sorted order.
func (s *Snapshot) Addresses() []string {
	out := make([]string, 0, len(s.tokens))
	for addr := range s.tokens {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

// Entries returns all tokens sorted by address.
func (s *Snapshot) Entries() []domain.TokenSubscriptions {
	out := make([]domain.TokenSubscriptions, 0, len(s.tokens))
	for _, addr := range s.Addresses() {
		out = append(out, s.tokens[addr])
	}
	return out
}
