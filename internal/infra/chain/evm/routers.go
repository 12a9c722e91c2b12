package evm

import (
	"strings"

	"github.com/vietddude/buywatch/internal/core/domain"
)

// Router tables keyed by lowercase address.
var defaultRouters = map[domain.Chain]map[string]string{
	domain.ChainEVMMainnet: {
		"0x7a250d5630b4cf539739df2c5dacb4c659f2488d": "Uniswap V2",
		"0xe592427a0aece92de3edee1f18e0157c05861564": "Uniswap V3",
		"0x68b3465833fb72a70ecdf485e0e4c7bd8665fc45": "Uniswap V3",
		"0x3fc91a3afd70395cd496c647d5a6cc9d4b2b7fad": "Uniswap Universal",
		"0xef1c6e67703c7bd7107eed8303fbe6ec2554bf6b": "Uniswap Universal",
		"0xd9e1ce17f2641f24ae83637ab66a2cca9c378b9f": "SushiSwap",
		"0xdef1c0ded9bec7f1a1670819833240f027b25eff": "0x Protocol",
		"0x1111111254fb6c44bac0bed2854e76f90643097d": "1inch",
		"0x1111111254eeb25477b68fb85ed929f73a960582": "1inch",
		"0xa356867fdcea8e71aeaf87805808803806231fdc": "DODO",
		"0x6131b5fae19ea4f9d964eac0408e4408b66337b5": "KyberSwap",
	},
	domain.ChainEVMSidechain: {
		"0x10ed43c718714eb63d5aa57b78b54704e256024e": "PancakeSwap V2",
		"0x1b81d678ffb9c0263b24a97847620c99d213eb14": "PancakeSwap V3",
		"0x13f4ea83d0bd40e75c8222255bc855a974568dd4": "PancakeSwap V3",
		"0x3a6d8ca21d1cf76f653a67577fa0d27453350dd8": "BiSwap",
		"0xcf0febd3f17cef5b47b0cd257acf6025c5bff3b7": "ApeSwap",
		"0x1b02da8cb0d097eb8d57a175b88c7d8b47997506": "SushiSwap",
		"0x1111111254eeb25477b68fb85ed929f73a960582": "1inch",
	},
}

// Wrapped native token per chain.
var defaultWrappedNative = map[domain.Chain]string{
	domain.ChainEVMMainnet:   "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", // WETH
	domain.ChainEVMSidechain: "0xbb4cdb9cbd36b01bd1cbaebf2de08d9173bc095c", // WBNB
}

// Method selectors of swap entry points. Buy-side selectors are flagged.
var swapSelectors = map[string]struct {
	name string
	buy  bool
}{
	"0x7ff36ab5": {"swapExactETHForTokens", true},
	"0xb6f9de95": {"swapExactETHForTokensSupportingFeeOnTransferTokens", true},
	"0xfb3bdb41": {"swapETHForExactTokens", true},
	"0x38ed1739": {"swapExactTokensForTokens", true},
	"0x5c11d795": {"swapExactTokensForTokensSupportingFeeOnTransferTokens", true},
	"0x8803dbee": {"swapTokensForExactTokens", true},
	"0x04e45aaf": {"exactInputSingle", true},
	"0x414bf389": {"exactInputSingle", true},
	"0xb858183f": {"exactInput", true},
	"0xc04b8d59": {"exactInput", true},
	"0xbc651188": {"v3SwapExactIn", true},
	"0x5023b4df": {"exactOutputSingle", true},
	"0xf28c0498": {"exactOutput", true},
	"0x3593564c": {"execute", true},
	"0x24856bc3": {"execute", true},
	"0x12aa3caf": {"swap", true},
	"0x7c025200": {"swap", true},
	"0x415565b0": {"transformERC20", true},
	"0xac9650d8": {"multicall", true},
	"0x5ae401dc": {"multicall", true},
	"0x18cbafe5": {"swapExactTokensForETH", false},
	"0x4a25d94a": {"swapTokensForExactETH", false},
	"0x791ac947": {"swapExactTokensForETHSupportingFeeOnTransferTokens", false},
}

// MethodName returns the swap method for the 4-byte selector at the start of input.
func MethodName(input string) (name string, buy bool) {
	if len(input) < 10 {
		return "", false
	}
	sel := strings.ToLower(input[:10])
	if m, ok := swapSelectors[sel]; ok {
		return m.name, m.buy
	}
	return sel, false
}
