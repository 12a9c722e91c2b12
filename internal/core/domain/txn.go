package domain

import "math/big"

// Transaction is the chain-neutral view of a submitted transaction.
//
// On Solana, To holds the first known DEX program invoked by the transaction,
// Input holds the joined account keys and instruction data, and Transfers is
// filled from the already-parsed instructions.
type Transaction struct {
	Chain  Chain
	Hash   string
	Height uint64
	Index  int
	From   string
	To     string
	Input  string
	Value  *big.Int
	Failed bool
	// Method is a pre-decoded method tag, set where the block format allows it.
	Method string

	Transfers []TransferEvent
	Raw       []byte
}

// IsContractCall reports whether the transaction carries call data.
func (t *Transaction) IsContractCall() bool {
	return len(t.Input) > 2
}
