package domain

import "fmt"

// Chain identifies a monitored network.
type Chain string

// Family groups chains that share an address format and block model.
type Family string

const (
	ChainEVMMainnet   Chain = "evm-mainnet"
	ChainEVMSidechain Chain = "evm-sidechain"
	ChainSolana       Chain = "solana"

	FamilyEVM    Family = "evm"
	FamilySolana Family = "solana"
)

// AllChains lists every supported chain in display order.
var AllChains = []Chain{ChainEVMMainnet, ChainEVMSidechain, ChainSolana}

// ChainNativeSymbol maps a chain to the ticker of its native asset.
var ChainNativeSymbol = map[Chain]string{
	ChainEVMMainnet:   "ETH",
	ChainEVMSidechain: "BNB",
	ChainSolana:       "SOL",
}

// Valid reports whether c is a supported chain.
func (c Chain) Valid() bool {
	switch c {
	case ChainEVMMainnet, ChainEVMSidechain, ChainSolana:
		return true
	}
	return false
}

// Family returns the chain family.
func (c Chain) Family() Family {
	if c == ChainSolana {
		return FamilySolana
	}
	return FamilyEVM
}

// NativeDecimals is the number of decimals of the native coin.
func (c Chain) NativeDecimals() int32 {
	if c.Family() == FamilySolana {
		return 9
	}
	return 18
}

// DefaultTokenDecimals is used when a token's decimals cannot be looked up.
func (c Chain) DefaultTokenDecimals() uint8 {
	if c.Family() == FamilySolana {
		return 9
	}
	return 18
}

// NativeSymbol returns the native asset ticker, e.g. "ETH".
func (c Chain) NativeSymbol() string {
	if s, ok := ChainNativeSymbol[c]; ok {
		return s
	}
	return "NATIVE"
}

// ParseChain converts user input into a Chain.
func ParseChain(s string) (Chain, error) {
	c := Chain(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownChain, s)
	}
	return c, nil
}
