package solana

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/buywatch/internal/core/domain"
	"github.com/vietddude/buywatch/internal/infra/rpc/provider"
)

type mockCaller struct {
	handle func(method string, params []any) (any, error)
}

func (m *mockCaller) Call(ctx context.Context, method string, params []any, out any) error {
	resp, err := m.handle(method, params)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func newKey() string {
	return solanago.NewWallet().PublicKey().String()
}

type fixture struct {
	buyer, buyerToken, buyerWSOL, vaultToken, vaultWSOL, poolAuth, mint string
}

func newFixture() fixture {
	return fixture{
		buyer:      newKey(),
		buyerToken: newKey(),
		buyerWSOL:  newKey(),
		vaultToken: newKey(),
		vaultWSOL:  newKey(),
		poolAuth:   newKey(),
		mint:       newKey(),
	}
}

func keys(ks ...string) []map[string]any {
	out := make([]map[string]any, len(ks))
	for i, k := range ks {
		out[i] = map[string]any{"pubkey": k, "signer": i == 0, "writable": true}
	}
	return out
}

func balance(idx int, mint, owner string, decimals int) map[string]any {
	return map[string]any{
		"accountIndex": idx,
		"mint":         mint,
		"owner":        owner,
		"uiTokenAmount": map[string]any{
			"amount":   "0",
			"decimals": decimals,
		},
	}
}

func parsedTransferIx(src, dst, amount string) map[string]any {
	return map[string]any{
		"programId": solanago.TokenProgramID.String(),
		"program":   "spl-token",
		"parsed": map[string]any{
			"type": "transfer",
			"info": map[string]any{"source": src, "destination": dst, "amount": amount},
		},
	}
}

// raydiumBuy builds a jsonParsed transaction where the buyer swaps 1 SOL
// (wrapped) for 5 tokens with 6 decimals through Raydium AMM v4.
func raydiumBuy(f fixture) map[string]any {
	wsol := WrappedSOLMint.String()
	return map[string]any{
		"meta": map[string]any{
			"err":          nil,
			"fee":          5000,
			"preBalances":  []uint64{5_000_000_000, 0, 0, 0, 0, 1, 1},
			"postBalances": []uint64{3_999_995_000, 0, 0, 0, 0, 1, 1},
			"preTokenBalances": []any{
				balance(1, f.mint, f.buyer, 6),
				balance(2, wsol, f.buyer, 9),
				balance(3, f.mint, f.poolAuth, 6),
				balance(4, wsol, f.poolAuth, 9),
			},
			"postTokenBalances": []any{},
			"innerInstructions": []any{
				map[string]any{
					"index": 0,
					"instructions": []any{
						parsedTransferIx(f.buyerWSOL, f.vaultWSOL, "1000000000"),
						parsedTransferIx(f.vaultToken, f.buyerToken, "5000000"),
					},
				},
			},
		},
		"transaction": map[string]any{
			"signatures": []string{"sig-raydium"},
			"message": map[string]any{
				"accountKeys": keys(f.buyer, f.buyerToken, f.buyerWSOL, f.vaultToken, f.vaultWSOL,
					RaydiumAMMv4.String(), solanago.TokenProgramID.String()),
				"instructions": []any{
					map[string]any{
						"programId": RaydiumAMMv4.String(),
						"accounts":  []string{f.vaultToken, f.vaultWSOL},
						"data":      base58.Encode([]byte{9, 1, 2, 3}),
					},
				},
			},
		},
	}
}

func TestAdapter_GetBlock_RaydiumBuy(t *testing.T) {
	f := newFixture()
	vote := map[string]any{
		"meta": map[string]any{"err": nil, "fee": 5000, "preBalances": []uint64{1}, "postBalances": []uint64{1}},
		"transaction": map[string]any{
			"signatures": []string{"sig-vote"},
			"message": map[string]any{
				"accountKeys":  keys(newKey()),
				"instructions": []any{map[string]any{"programId": "Vote111111111111111111111111111111111111111", "data": "abc"}},
			},
		},
	}

	mock := &mockCaller{handle: func(method string, params []any) (any, error) {
		require.Equal(t, "getBlock", method)
		require.Equal(t, uint64(250), params[0])
		cfg := params[1].(map[string]any)
		assert.Equal(t, "jsonParsed", cfg["encoding"])
		assert.Equal(t, 0, cfg["maxSupportedTransactionVersion"])
		return map[string]any{
			"blockhash":    "hash250",
			"blockTime":    1700000000,
			"transactions": []any{vote, "garbage", raydiumBuy(f)},
		}, nil
	}}

	a := NewAdapter(mock)
	block, err := a.GetBlock(context.Background(), 250)
	require.NoError(t, err)
	require.NotNil(t, block)
	assert.Equal(t, uint64(250), block.Height)
	assert.Equal(t, "hash250", block.Hash)
	require.Len(t, block.Transactions, 2, "malformed tx must be skipped")

	voteTx := block.Transactions[0]
	ok, _ := a.DecodeSwapCall(voteTx)
	assert.False(t, ok)

	tx := block.Transactions[1]
	assert.Equal(t, "sig-raydium", tx.Hash)
	assert.Equal(t, f.buyer, tx.From)
	assert.Equal(t, RaydiumAMMv4.String(), tx.To)
	assert.Equal(t, "1000000000", tx.Value.String())
	assert.Contains(t, tx.Input, f.vaultToken)

	ok, method := a.DecodeSwapCall(tx)
	assert.True(t, ok)
	assert.Equal(t, "swap", method)
	assert.Equal(t, "Raydium AMM", a.VenueName(tx.To))

	transfers, err := a.DecodeTransferLogs(context.Background(), tx)
	require.NoError(t, err)
	require.Len(t, transfers, 2)

	// WSOL paid by the buyer keeps the buyer as sender.
	assert.Equal(t, WrappedSOLMint.String(), transfers[0].Token)
	assert.Equal(t, f.buyer, transfers[0].From)
	assert.Equal(t, f.poolAuth, transfers[0].To)
	assert.Equal(t, 9, transfers[0].Decimals)

	// Token paid out by the pool is attributed to the DEX program.
	assert.Equal(t, f.mint, transfers[1].Token)
	assert.Equal(t, RaydiumAMMv4.String(), transfers[1].From)
	assert.Equal(t, f.buyer, transfers[1].To)
	assert.Equal(t, "5000000", transfers[1].RawAmount.String())
	assert.Equal(t, 6, transfers[1].Decimals)
}

func TestAdapter_GetBlock_SkippedSlot(t *testing.T) {
	mock := &mockCaller{handle: func(method string, params []any) (any, error) {
		return nil, fmt.Errorf("solana getBlock: %w", &provider.RPCError{Code: -32007, Message: "Slot 10 was skipped"})
	}}

	block, err := NewAdapter(mock).GetBlock(context.Background(), 10)
	assert.NoError(t, err)
	assert.Nil(t, block)
}

func TestAdapter_GetBlock_Error(t *testing.T) {
	mock := &mockCaller{handle: func(method string, params []any) (any, error) {
		return nil, &domain.AdapterConnectionError{Chain: domain.ChainSolana, Op: method, Err: fmt.Errorf("down")}
	}}

	_, err := NewAdapter(mock).GetBlock(context.Background(), 10)
	var connErr *domain.AdapterConnectionError
	assert.ErrorAs(t, err, &connErr)
}

func TestAdapter_PumpFunRawInstructions(t *testing.T) {
	f := newFixture()
	bondingCurve := newKey()

	data := make([]byte, 9)
	data[0] = splTransfer
	binary.LittleEndian.PutUint64(data[1:], 42_000_000)

	buyData := append(append([]byte{}, pumpBuyDiscriminator...), 1, 2, 3)

	tx := map[string]any{
		"meta": map[string]any{
			"err":          nil,
			"fee":          5000,
			"preBalances":  []uint64{2_000_005_000},
			"postBalances": []uint64{1_500_000_000},
			"preTokenBalances": []any{
				balance(1, f.mint, bondingCurve, 6),
			},
			"postTokenBalances": []any{
				balance(2, f.mint, f.buyer, 6),
			},
			"innerInstructions": []any{
				map[string]any{
					"index": 0,
					"instructions": []any{
						map[string]any{
							"programId": solanago.TokenProgramID.String(),
							"accounts":  []string{f.vaultToken, f.buyerToken, bondingCurve},
							"data":      base58.Encode(data),
						},
					},
				},
			},
		},
		"transaction": map[string]any{
			"signatures": []string{"sig-pump"},
			"message": map[string]any{
				"accountKeys": keys(f.buyer, f.vaultToken, f.buyerToken, PumpFun.String()),
				"instructions": []any{
					map[string]any{
						"programId": PumpFun.String(),
						"accounts":  []string{f.vaultToken},
						"data":      base58.Encode(buyData),
					},
				},
			},
		},
	}

	mock := &mockCaller{handle: func(method string, params []any) (any, error) {
		return map[string]any{"blockhash": "h", "transactions": []any{tx}}, nil
	}}

	a := NewAdapter(mock)
	block, err := a.GetBlock(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, block.Transactions, 1)

	got := block.Transactions[0]
	ok, method := a.DecodeSwapCall(got)
	assert.True(t, ok)
	assert.Equal(t, "buy", method)
	assert.Equal(t, "500000000", got.Value.String())

	require.Len(t, got.Transfers, 1)
	ev := got.Transfers[0]
	assert.Equal(t, f.mint, ev.Token)
	assert.Equal(t, PumpFun.String(), ev.From)
	assert.Equal(t, f.buyer, ev.To)
	assert.Equal(t, "42000000", ev.RawAmount.String())
}

func TestAdapter_FailedTransactionHasNoTransfers(t *testing.T) {
	f := newFixture()
	tx := raydiumBuy(f)
	tx["meta"].(map[string]any)["err"] = map[string]any{"InstructionError": []any{0, "Custom"}}

	mock := &mockCaller{handle: func(string, []any) (any, error) {
		return map[string]any{"blockhash": "h", "transactions": []any{tx}}, nil
	}}

	block, err := NewAdapter(mock).GetBlock(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, block.Transactions, 1)
	assert.True(t, block.Transactions[0].Failed)
	assert.Empty(t, block.Transactions[0].Transfers)
}

func TestAdapter_TokenDecimals(t *testing.T) {
	mock := &mockCaller{handle: func(method string, params []any) (any, error) {
		require.Equal(t, "getTokenSupply", method)
		return map[string]any{
			"context": map[string]any{"slot": 1},
			"value":   map[string]any{"amount": "1000", "decimals": 6, "uiAmountString": "0.001"},
		}, nil
	}}

	dec, err := NewAdapter(mock).TokenDecimals(context.Background(), newKey())
	require.NoError(t, err)
	assert.Equal(t, uint8(6), dec)
}

func TestAdapter_LatestHeight(t *testing.T) {
	mock := &mockCaller{handle: func(method string, params []any) (any, error) {
		require.Equal(t, "getSlot", method)
		return 123456, nil
	}}

	slot, err := NewAdapter(mock).LatestHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(123456), slot)
}
