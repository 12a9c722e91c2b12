package domain

import (
	"math/big"
	"time"
)

// Block is one block (EVM) or slot (Solana) with the transactions the
// classifier needs.
type Block struct {
	Chain        Chain
	Height       uint64
	Hash         string
	Timestamp    time.Time
	Transactions []*Transaction
}

// TransferEvent is a fungible token transfer observed inside a transaction.
type TransferEvent struct {
	Token     string
	From      string
	To        string
	RawAmount *big.Int
	// Decimals is -1 when the source did not report them.
	Decimals int
}
