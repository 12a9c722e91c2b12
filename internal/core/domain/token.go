package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// TrackedToken is a token contract (EVM) or mint (Solana) under watch.
type TrackedToken struct {
	Chain   Chain  `json:"chain"   db:"chain"`
	Address string `json:"address" db:"address"`
	Name    string `json:"name"    db:"name"`
	Symbol  string `json:"symbol"  db:"symbol"`
}

// Key returns the registry key of the token.
func (t TrackedToken) Key() string {
	return string(t.Chain) + ":" + t.Address
}

// Subscription binds a channel to a token with a minimum trade value.
type Subscription struct {
	Chain     Chain           `json:"chain"      db:"chain"`
	Token     string          `json:"token"      db:"token"`
	Channel   string          `json:"channel"    db:"channel"`
	MinUSD    decimal.Decimal `json:"min_usd"    db:"min_usd"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// TokenSubscriptions is one token with all of its subscribers.
type TokenSubscriptions struct {
	Token         TrackedToken   `json:"token"`
	Subscriptions []Subscription `json:"subscriptions"`
}

// NormalizeAddress returns the canonical form of addr for chain.
// EVM addresses are lowercased hex; Solana keys are base58 and keep their case.
func NormalizeAddress(chain Chain, addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	switch chain.Family() {
	case FamilyEVM:
		if !common.IsHexAddress(addr) {
			return "", fmt.Errorf("%w: %q is not a hex address", ErrInvalidAddress, addr)
		}
		return strings.ToLower(common.HexToAddress(addr).Hex()), nil
	case FamilySolana:
		pk, err := solana.PublicKeyFromBase58(addr)
		if err != nil {
			return "", fmt.Errorf("%w: %q: %v", ErrInvalidAddress, addr, err)
		}
		return pk.String(), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownChain, chain)
}
