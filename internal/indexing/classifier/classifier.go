// Package classifier turns chain transactions into buy candidates for
// tracked tokens.
//
// Rules, in order:
//
//  1. The transaction calls a known router (or DEX program) and a transfer
//     moves a tracked token from that router to the sender. The amount is
//     exact and the candidate has ConfidenceRouter.
//  2. The call data contains the address of a tracked token. The amount is
//     unknown and the candidate has ConfidenceCalldata.
//
// Anything else is not a buy.
package classifier

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vietddude/buywatch/internal/core/domain"
	"github.com/vietddude/buywatch/internal/core/registry"
	"github.com/vietddude/buywatch/internal/indexing/metrics"
	"github.com/vietddude/buywatch/internal/infra/chain"
)

// Classifier applies the buy rules. It is safe for concurrent use.
type Classifier struct {
	decimals *DecimalsCache
	log      *slog.Logger
}

// New creates a classifier with its own decimals cache.
func New() *Classifier {
	return NewWithCache(NewDecimalsCache())
}

// NewWithCache creates a classifier sharing the given decimals cache.
func NewWithCache(cache *DecimalsCache) *Classifier {
	return &Classifier{
		decimals: cache,
		log:      slog.Default().With("component", "classifier"),
	}
}

// Decimals returns the cache used by the classifier.
func (c *Classifier) Decimals() *DecimalsCache {
	return c.decimals
}

// Classify returns the buy candidates of tx for tokens in snap.
//
// Malformed data yields a *domain.DecodeError for this transaction only.
// A *domain.AdapterConnectionError means the receipt could not be fetched;
// callers should retry the block instead of skipping the transaction.
func (c *Classifier) Classify(
	ctx context.Context,
	adapter chain.Adapter,
	tx *domain.Transaction,
	snap *registry.Snapshot,
) ([]domain.Candidate, error) {
	if tx == nil || snap.Len() == 0 {
		return nil, nil
	}

	isRouter, method := adapter.DecodeSwapCall(tx)
	if isRouter {
		candidates, err := c.byRouter(ctx, adapter, tx, method, snap)
		if err != nil {
			return nil, err
		}
		if len(candidates) > 0 {
			c.count(tx.Chain, domain.ConfidenceRouter, len(candidates))
			return candidates, nil
		}
		if tx.Failed {
			return nil, nil
		}
	}

	candidates := c.byCalldata(adapter, tx, method, snap)
	c.count(tx.Chain, domain.ConfidenceCalldata, len(candidates))
	return candidates, nil
}

func (c *Classifier) byRouter(
	ctx context.Context,
	adapter chain.Adapter,
	tx *domain.Transaction,
	method string,
	snap *registry.Snapshot,
) ([]domain.Candidate, error) {
	transfers, err := adapter.DecodeTransferLogs(ctx, tx)
	if err != nil {
		var connErr *domain.AdapterConnectionError
		if errors.As(err, &connErr) || ctx.Err() != nil {
			return nil, err
		}
		var decErr *domain.DecodeError
		if errors.As(err, &decErr) {
			return nil, err
		}
		return nil, &domain.DecodeError{Chain: tx.Chain, TxID: tx.Hash, Reason: "transfer logs", Err: err}
	}
	if tx.Failed {
		return nil, nil
	}

	// Sum per token: routers may pay out in several transfers.
	type bought struct {
		entry    domain.TokenSubscriptions
		raw      *big.Int
		decimals int
	}
	var order []string
	byToken := make(map[string]*bought)

	for _, t := range transfers {
		if t.From != tx.To || t.To != tx.From || t.RawAmount == nil {
			continue
		}
		entry, ok := snap.Lookup(t.Token)
		if !ok {
			continue
		}
		b, seen := byToken[t.Token]
		if !seen {
			b = &bought{entry: entry, raw: new(big.Int), decimals: t.Decimals}
			byToken[t.Token] = b
			order = append(order, t.Token)
		}
		b.raw.Add(b.raw, t.RawAmount)
	}
	if len(order) == 0 {
		return nil, nil
	}

	native := c.nativeSpent(adapter, tx, transfers)
	venue := adapter.VenueName(tx.To)

	out := make([]domain.Candidate, 0, len(order))
	for _, token := range order {
		b := byToken[token]
		decimals := b.decimals
		if decimals < 0 {
			decimals = int(c.decimals.Get(ctx, adapter, token))
		} else {
			c.decimals.Set(tx.Chain, token, uint8(decimals))
		}

		out = append(out, domain.Candidate{
			Chain:        tx.Chain,
			TxID:         tx.Hash,
			Token:        b.entry.Token,
			TokenAmount:  decimal.NewFromBigInt(b.raw, -int32(decimals)),
			NativeAmount: native,
			Buyer:        tx.From,
			Router:       tx.To,
			Venue:        venue,
			Method:       method,
			Height:       tx.Height,
			Confidence:   domain.ConfidenceRouter,
		})
	}
	return out, nil
}

func (c *Classifier) byCalldata(
	adapter chain.Adapter,
	tx *domain.Transaction,
	method string,
	snap *registry.Snapshot,
) []domain.Candidate {
	if !tx.IsContractCall() || tx.Failed {
		return nil
	}

	var out []domain.Candidate
	for _, addr := range snap.Addresses() {
		if !containsAddress(tx.Chain, tx.Input, addr) {
			continue
		}
		entry, _ := snap.Lookup(addr)
		out = append(out, domain.Candidate{
			Chain:        tx.Chain,
			TxID:         tx.Hash,
			Token:        entry.Token,
			TokenAmount:  decimal.Zero,
			NativeAmount: scaleNative(tx.Chain, tx.Value),
			Buyer:        tx.From,
			Router:       tx.To,
			Venue:        adapter.VenueName(tx.To),
			Method:       method,
			Height:       tx.Height,
			Confidence:   domain.ConfidenceCalldata,
		})
	}
	return out
}

// nativeSpent is tx.Value, or the wrapped native paid by the buyer when the
// swap did not carry value (token-for-token routes through WETH/WSOL).
func (c *Classifier) nativeSpent(adapter chain.Adapter, tx *domain.Transaction, transfers []domain.TransferEvent) decimal.Decimal {
	if tx.Value != nil && tx.Value.Sign() > 0 {
		return scaleNative(tx.Chain, tx.Value)
	}

	wp, ok := adapter.(chain.WrappedNativeProvider)
	if !ok {
		return decimal.Zero
	}
	wrapped := wp.WrappedNative()

	sum := new(big.Int)
	for _, t := range transfers {
		if t.Token == wrapped && t.From == tx.From && t.RawAmount != nil {
			sum.Add(sum, t.RawAmount)
		}
	}
	return scaleNative(tx.Chain, sum)
}

func (c *Classifier) count(ch domain.Chain, conf domain.Confidence, n int) {
	if n > 0 {
		metrics.Candidates.WithLabelValues(string(ch), string(conf)).Add(float64(n))
	}
}

func scaleNative(ch domain.Chain, v *big.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -ch.NativeDecimals())
}

// containsAddress matches EVM addresses without the 0x prefix so that ABI
// encoded arguments match; Solana keys are matched as-is.
func containsAddress(ch domain.Chain, input, addr string) bool {
	if ch.Family() == domain.FamilyEVM {
		return strings.Contains(strings.ToLower(input), strings.TrimPrefix(addr, "0x"))
	}
	return strings.Contains(input, addr)
}
