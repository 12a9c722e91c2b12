package evm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/vietddude/buywatch/internal/core/domain"
)

// MockCaller answers JSON-RPC methods with canned JSON.
type MockCaller struct {
	mu        sync.Mutex
	responses map[string]string
	CallFunc  func(method string, params []any) (string, error)
	calls     map[string]int
}

func (m *MockCaller) Call(ctx context.Context, method string, params []any, out any) error {
	m.mu.Lock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[method]++
	m.mu.Unlock()

	var resp string
	var err error
	if m.CallFunc != nil {
		resp, err = m.CallFunc(method, params)
	} else {
		var ok bool
		resp, ok = m.responses[method]
		if !ok {
			err = fmt.Errorf("unexpected method %s", method)
		}
	}
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal([]byte(resp), out)
}

func (m *MockCaller) count(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

const (
	uniV2Router = "0x7a250d5630b4cf539739df2c5dacb4c659f2488d"
	buyer       = "0x1111111111111111111111111111111111111111"
	tokenAddr   = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
)

func pad32(addr string) string {
	return "0x000000000000000000000000" + strings.TrimPrefix(addr, "0x")
}

func TestAdapter_LatestHeight(t *testing.T) {
	mock := &MockCaller{responses: map[string]string{"eth_blockNumber": `"0x12d687"`}}

	adapter := NewAdapter(domain.ChainEVMMainnet, mock)
	height, err := adapter.LatestHeight(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if height != 1234567 {
		t.Errorf("expected height 1234567, got %d", height)
	}
}

func TestAdapter_GetBlock(t *testing.T) {
	block := fmt.Sprintf(`{
		"number": "0x64",
		"hash": "0xabc",
		"timestamp": "0x65678900",
		"transactions": [
			{"hash":"0xAA","from":"%s","to":"%s","input":"0x7ff36ab5deadbeef","value":"0xde0b6b3a7640000","transactionIndex":"0x0"},
			{"hash":"0xbb","from":"%s","to":null,"input":"0x6080","value":"0x0","transactionIndex":"0x1"},
			"not-an-object"
		]
	}`, buyer, uniV2Router, buyer)

	receipt := fmt.Sprintf(`{"status":"0x1","logs":[
		{"address":"%s","topics":["%s","%s","%s"],"data":"0x00000000000000000000000000000000000000000000000000000000000f4240"}
	]}`, tokenAddr, TransferTopic.Hex(), pad32(uniV2Router), pad32(buyer))

	mock := &MockCaller{responses: map[string]string{
		"eth_getBlockByNumber":      block,
		"eth_getTransactionReceipt": receipt,
	}}

	adapter := NewAdapter(domain.ChainEVMMainnet, mock)
	b, err := adapter.GetBlock(context.Background(), 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if b.Height != 100 || b.Hash != "0xabc" {
		t.Errorf("unexpected block header %+v", b)
	}
	if len(b.Transactions) != 2 {
		t.Fatalf("expected malformed tx to be skipped, got %d txs", len(b.Transactions))
	}

	swap := b.Transactions[0]
	if swap.Hash != "0xaa" || swap.To != uniV2Router {
		t.Errorf("unexpected tx %+v", swap)
	}
	if swap.Value.String() != "1000000000000000000" {
		t.Errorf("expected 1 ETH value, got %s", swap.Value)
	}
	if b.Transactions[1].To != "" {
		t.Errorf("contract creation should have empty To")
	}

	// Only the router call gets its receipt prefetched.
	if got := mock.count("eth_getTransactionReceipt"); got != 1 {
		t.Errorf("expected 1 receipt fetch, got %d", got)
	}
	if len(swap.Transfers) != 1 {
		t.Fatalf("expected prefetched transfer, got %d", len(swap.Transfers))
	}
	tr := swap.Transfers[0]
	if tr.Token != tokenAddr || tr.From != uniV2Router || tr.To != buyer || tr.RawAmount.Int64() != 1_000_000 {
		t.Errorf("unexpected transfer %+v", tr)
	}

	// Cached transfers avoid another receipt call.
	if _, err := adapter.DecodeTransferLogs(context.Background(), swap); err != nil {
		t.Fatal(err)
	}
	if got := mock.count("eth_getTransactionReceipt"); got != 1 {
		t.Errorf("expected cached transfers, got %d receipt fetches", got)
	}
}

func TestAdapter_DecodeSwapCall(t *testing.T) {
	adapter := NewAdapter(domain.ChainEVMSidechain, &MockCaller{},
		WithRouters(map[string]string{"0x00000000000000000000000000000000000000AB": "Custom DEX"}))

	tests := []struct {
		name   string
		to     string
		input  string
		ok     bool
		method string
	}{
		{"pancake v2 buy", "0x10ed43c718714eb63d5aa57b78b54704e256024e", "0x7ff36ab5000", true, "swapExactETHForTokens"},
		{"pancake v2 sell", "0x10ed43c718714eb63d5aa57b78b54704e256024e", "0x18cbafe5000", true, "swapExactTokensForETH"},
		{"custom router", "0x00000000000000000000000000000000000000ab", "0x12345678", true, "0x12345678"},
		{"mainnet router on sidechain", uniV2Router, "0x7ff36ab5", false, ""},
		{"plain transfer", buyer, "0x", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, method := adapter.DecodeSwapCall(&domain.Transaction{To: tt.to, Input: tt.input})
			if ok != tt.ok || method != tt.method {
				t.Errorf("got (%v, %q), want (%v, %q)", ok, method, tt.ok, tt.method)
			}
		})
	}

	if got := adapter.VenueName("0x10ED43C718714eb63d5aA57B78B54704E256024E"); got != "PancakeSwap V2" {
		t.Errorf("unexpected venue %q", got)
	}
}

func TestAdapter_DecodeTransferLogs_Reverted(t *testing.T) {
	mock := &MockCaller{responses: map[string]string{
		"eth_getTransactionReceipt": `{"status":"0x0","logs":[]}`,
	}}
	adapter := NewAdapter(domain.ChainEVMMainnet, mock)

	tx := &domain.Transaction{Hash: "0x1", To: uniV2Router}
	transfers, err := adapter.DecodeTransferLogs(context.Background(), tx)
	if err != nil {
		t.Fatal(err)
	}
	if len(transfers) != 0 || !tx.Failed {
		t.Errorf("expected reverted tx with no transfers, got %v failed=%v", transfers, tx.Failed)
	}
}

func TestDecodeTransfers_SkipsNonERC20(t *testing.T) {
	topic := TransferTopic.Hex()
	logs := []rpcLog{
		// ERC-721: tokenId is indexed, data empty.
		{Address: tokenAddr, Topics: []string{topic, pad32(buyer), pad32(uniV2Router), pad32("0x01")}, Data: "0x"},
		// Unrelated event.
		{Address: tokenAddr, Topics: []string{"0x1234", pad32(buyer), pad32(uniV2Router)}, Data: "0x" + strings.Repeat("0", 64)},
		// Truncated data.
		{Address: tokenAddr, Topics: []string{topic, pad32(buyer), pad32(uniV2Router)}, Data: "0x01"},
		{Address: "0xDAC17F958D2ee523a2206206994597C13D831ec7", Topics: []string{topic, pad32(buyer), pad32(uniV2Router)}, Data: "0x" + strings.Repeat("0", 63) + "5"},
	}

	out := decodeTransfers(logs)
	if len(out) != 1 {
		t.Fatalf("expected 1 transfer, got %d", len(out))
	}
	if out[0].Token != "0xdac17f958d2ee523a2206206994597c13d831ec7" || out[0].RawAmount.Int64() != 5 || out[0].Decimals != -1 {
		t.Errorf("unexpected transfer %+v", out[0])
	}
}

func TestAdapter_TokenDecimals(t *testing.T) {
	mock := &MockCaller{CallFunc: func(method string, params []any) (string, error) {
		if method != "eth_call" {
			return "", fmt.Errorf("unexpected %s", method)
		}
		call := params[0].(map[string]string)
		if call["data"] != "0x313ce567" {
			return "", fmt.Errorf("unexpected selector %s", call["data"])
		}
		return `"0x0000000000000000000000000000000000000000000000000000000000000006"`, nil
	}}

	adapter := NewAdapter(domain.ChainEVMMainnet, mock)
	dec, err := adapter.TokenDecimals(context.Background(), tokenAddr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec != 6 {
		t.Errorf("expected 6 decimals, got %d", dec)
	}
}

func TestAdapter_TokenDecimalsEmptyReturn(t *testing.T) {
	mock := &MockCaller{CallFunc: func(method string, params []any) (string, error) {
		return `"0x"`, nil
	}}

	adapter := NewAdapter(domain.ChainEVMMainnet, mock)
	_, err := adapter.TokenDecimals(context.Background(), tokenAddr)
	var decodeErr *domain.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Errorf("expected DecodeError for a contract without decimals, got %v", err)
	}
}

func TestTransferTopic(t *testing.T) {
	const want = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"
	if TransferTopic.Hex() != want {
		t.Errorf("got %s", TransferTopic.Hex())
	}
}
