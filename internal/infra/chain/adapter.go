package chain

import (
	"context"

	"github.com/vietddude/buywatch/internal/core/domain"
)

// Caller is the RPC surface adapters need. *rpc.Client satisfies it.
type Caller interface {
	Call(ctx context.Context, method string, params []any, out any) error
}

// Adapter hides chain-specific block retrieval and decoding from the poller
// and the classifier.
type Adapter interface {
	// Chain returns the chain identifier
	Chain() domain.Chain

	// LatestHeight returns the latest block number (EVM) or slot (Solana)
	LatestHeight(ctx context.Context) (uint64, error)

	// GetBlock fetches a block with its transactions.
	// It returns nil, nil for a slot that was skipped.
	GetBlock(ctx context.Context, height uint64) (*domain.Block, error)

	// DecodeSwapCall reports whether tx calls a known router or DEX program,
	// and the method tag when it can be named
	DecodeSwapCall(tx *domain.Transaction) (bool, string)

	// DecodeTransferLogs returns the token transfers executed by tx
	DecodeTransferLogs(ctx context.Context, tx *domain.Transaction) ([]domain.TransferEvent, error)

	// TokenDecimals looks up the decimals of a token
	TokenDecimals(ctx context.Context, token string) (uint8, error)

	// VenueName returns a display name for a router or program address
	VenueName(address string) string
}

// WrappedNativeProvider is implemented by adapters that know the wrapped
// native token of their chain (WETH, WBNB, WSOL).
type WrappedNativeProvider interface {
	WrappedNative() string
}
