package solana

import (
	"bytes"

	solanago "github.com/gagliardetto/solana-go"
)

// DEX programs recognised as swap venues.
var (
	RaydiumAMMv4   = solanago.MustPublicKeyFromBase58("675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8")
	RaydiumCLMM    = solanago.MustPublicKeyFromBase58("CAMMCzo5YL8w4VFF8KVHrK22GGUsp5VTaW7grrKgrWqK")
	RaydiumCPMM    = solanago.MustPublicKeyFromBase58("CPMMoo8L3F4NbTegBCKVNunggL7H1ZpdTHKxQB5qKP1C")
	PumpFun        = solanago.MustPublicKeyFromBase58("6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")
	JupiterV6      = solanago.MustPublicKeyFromBase58("JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4")
	OrcaWhirlpool  = solanago.MustPublicKeyFromBase58("whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc")
	MeteoraDLMM    = solanago.MustPublicKeyFromBase58("LBUZKhRxPF3XUpBCjp4YzTKgLccjZhTSDM9YuVaPwxo")
	Token2022      = solanago.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")
	WrappedSOLMint = solanago.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
)

var defaultPrograms = map[string]string{
	RaydiumAMMv4.String():  "Raydium AMM",
	RaydiumCLMM.String():   "Raydium CLMM",
	RaydiumCPMM.String():   "Raydium CPMM",
	PumpFun.String():       "Pump.fun",
	JupiterV6.String():     "Jupiter",
	OrcaWhirlpool.String(): "Orca Whirlpool",
	MeteoraDLMM.String():   "Meteora DLMM",
}

// Anchor discriminators of Pump.fun instructions.
var (
	pumpBuyDiscriminator  = []byte{0x66, 0x06, 0x3d, 0x12, 0x01, 0xda, 0xeb, 0xea}
	pumpSellDiscriminator = []byte{0x33, 0xe6, 0x85, 0xa4, 0x01, 0x7f, 0x83, 0xad}
)

// SPL token instruction tags.
const (
	splTransfer        = 3
	splTransferChecked = 12
)

func isTokenProgram(id string) bool {
	return id == solanago.TokenProgramID.String() || id == Token2022.String()
}

// methodTag names the instruction invoked on a DEX program.
func methodTag(program string, data []byte) string {
	if program == PumpFun.String() && len(data) >= 8 {
		switch {
		case bytes.Equal(data[:8], pumpBuyDiscriminator):
			return "buy"
		case bytes.Equal(data[:8], pumpSellDiscriminator):
			return "sell"
		}
	}
	return "swap"
}
