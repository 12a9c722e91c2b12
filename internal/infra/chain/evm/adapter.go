package evm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/buywatch/internal/core/domain"
	"github.com/vietddude/buywatch/internal/infra/chain"
)

// TransferTopic is keccak256("Transfer(address,address,uint256)").
var TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

const erc20DecimalsABI = `[{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"}]`

var erc20ABI = mustParseABI(erc20DecimalsABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Adapter implements chain.Adapter for EVM networks.
type Adapter struct {
	chain         domain.Chain
	client        chain.Caller
	routers       map[string]string
	wrappedNative string
	log           *slog.Logger

	// receiptConcurrency bounds parallel receipt fetches per block.
	receiptConcurrency int
}

// Option configures the adapter.
type Option func(*Adapter)

// WithRouters adds routers (address -> venue name) on top of the built-in table.
func WithRouters(routers map[string]string) Option {
	return func(a *Adapter) {
		for addr, name := range routers {
			a.routers[strings.ToLower(addr)] = name
		}
	}
}

// WithWrappedNative overrides the wrapped native token address.
func WithWrappedNative(addr string) Option {
	return func(a *Adapter) {
		if addr != "" {
			a.wrappedNative = strings.ToLower(addr)
		}
	}
}

// WithReceiptConcurrency sets the number of parallel receipt fetches.
func WithReceiptConcurrency(n int) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.receiptConcurrency = n
		}
	}
}

// NewAdapter creates an EVM adapter for chain c.
func NewAdapter(c domain.Chain, client chain.Caller, opts ...Option) *Adapter {
	a := &Adapter{
		chain:              c,
		client:             client,
		routers:            make(map[string]string),
		wrappedNative:      defaultWrappedNative[c],
		log:                slog.Default().With("component", "evm", "chain", c),
		receiptConcurrency: 8,
	}
	for addr, name := range defaultRouters[c] {
		a.routers[addr] = name
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Chain() domain.Chain {
	return a.chain
}

func (a *Adapter) WrappedNative() string {
	return a.wrappedNative
}

func (a *Adapter) LatestHeight(ctx context.Context) (uint64, error) {
	var height hexutil.Uint64
	if err := a.client.Call(ctx, "eth_blockNumber", nil, &height); err != nil {
		return 0, fmt.Errorf("eth_blockNumber: %w", err)
	}
	return uint64(height), nil
}

type rpcBlock struct {
	Number       hexutil.Uint64    `json:"number"`
	Hash         string            `json:"hash"`
	Timestamp    hexutil.Uint64    `json:"timestamp"`
	Transactions []json.RawMessage `json:"transactions"`
}

type rpcTransaction struct {
	Hash             string          `json:"hash"`
	From             string          `json:"from"`
	To               *string         `json:"to"`
	Input            string          `json:"input"`
	Value            *hexutil.Big    `json:"value"`
	TransactionIndex *hexutil.Uint64 `json:"transactionIndex"`
}

// GetBlock fetches a block with full transactions and prefetches receipts
// of router calls in parallel.
func (a *Adapter) GetBlock(ctx context.Context, height uint64) (*domain.Block, error) {
	var raw *rpcBlock
	if err := a.client.Call(ctx, "eth_getBlockByNumber", []any{hexutil.EncodeUint64(height), true}, &raw); err != nil {
		return nil, fmt.Errorf("eth_getBlockByNumber %d: %w", height, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("block %d not available", height)
	}

	block := &domain.Block{
		Chain:        a.chain,
		Height:       uint64(raw.Number),
		Hash:         raw.Hash,
		Timestamp:    time.Unix(int64(raw.Timestamp), 0).UTC(),
		Transactions: make([]*domain.Transaction, 0, len(raw.Transactions)),
	}

	for i, rawTx := range raw.Transactions {
		tx, err := a.parseTransaction(rawTx, block.Height, i)
		if err != nil {
			a.log.Debug("skip malformed transaction", "height", height, "index", i, "error", err)
			continue
		}
		block.Transactions = append(block.Transactions, tx)
	}

	a.prefetchReceipts(ctx, block.Transactions)
	return block, nil
}

func (a *Adapter) parseTransaction(raw json.RawMessage, height uint64, index int) (*domain.Transaction, error) {
	var rt rpcTransaction
	if err := json.Unmarshal(raw, &rt); err != nil {
		return nil, &domain.DecodeError{Chain: a.chain, Reason: "transaction json", Err: err}
	}
	if rt.Hash == "" {
		return nil, &domain.DecodeError{Chain: a.chain, Reason: "missing hash"}
	}

	tx := &domain.Transaction{
		Chain:  a.chain,
		Hash:   strings.ToLower(rt.Hash),
		Height: height,
		Index:  index,
		From:   strings.ToLower(rt.From),
		Input:  strings.ToLower(rt.Input),
		Value:  new(big.Int),
		Raw:    raw,
	}
	if rt.To != nil {
		tx.To = strings.ToLower(*rt.To)
	}
	if rt.Value != nil {
		tx.Value = rt.Value.ToInt()
	}
	if rt.TransactionIndex != nil {
		tx.Index = int(*rt.TransactionIndex)
	}
	return tx, nil
}

// prefetchReceipts decodes transfers of router calls ahead of classification.
// Failures leave Transfers nil so DecodeTransferLogs retries on demand.
func (a *Adapter) prefetchReceipts(ctx context.Context, txs []*domain.Transaction) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.receiptConcurrency)

	for _, tx := range txs {
		if _, ok := a.routers[tx.To]; !ok {
			continue
		}
		g.Go(func() error {
			transfers, failed, err := a.fetchTransfers(gctx, tx.Hash)
			if err != nil {
				a.log.Debug("receipt prefetch failed", "tx", tx.Hash, "error", err)
				return nil
			}
			tx.Failed = failed
			tx.Transfers = transfers
			return nil
		})
	}
	_ = g.Wait()
}

// DecodeSwapCall reports whether tx targets a known router.
func (a *Adapter) DecodeSwapCall(tx *domain.Transaction) (bool, string) {
	if _, ok := a.routers[strings.ToLower(tx.To)]; !ok {
		return false, ""
	}
	name, _ := MethodName(tx.Input)
	return true, name
}

// DecodeTransferLogs returns ERC-20 Transfer events from the receipt of tx.
func (a *Adapter) DecodeTransferLogs(ctx context.Context, tx *domain.Transaction) ([]domain.TransferEvent, error) {
	if tx.Transfers != nil {
		return tx.Transfers, nil
	}
	transfers, failed, err := a.fetchTransfers(ctx, tx.Hash)
	if err != nil {
		return nil, err
	}
	tx.Failed = failed
	tx.Transfers = transfers
	return transfers, nil
}

type rpcLog struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
	Data    string   `json:"data"`
}

type rpcReceipt struct {
	Status *hexutil.Uint64 `json:"status"`
	Logs   []rpcLog        `json:"logs"`
}

func (a *Adapter) fetchTransfers(ctx context.Context, hash string) ([]domain.TransferEvent, bool, error) {
	var receipt *rpcReceipt
	if err := a.client.Call(ctx, "eth_getTransactionReceipt", []any{hash}, &receipt); err != nil {
		return nil, false, fmt.Errorf("eth_getTransactionReceipt %s: %w", hash, err)
	}
	if receipt == nil {
		return nil, false, &domain.DecodeError{Chain: a.chain, TxID: hash, Reason: "receipt not found"}
	}
	if receipt.Status != nil && *receipt.Status == 0 {
		// Reverted: no token moved.
		return []domain.TransferEvent{}, true, nil
	}
	return decodeTransfers(receipt.Logs), false, nil
}

// decodeTransfers extracts ERC-20 transfers from receipt logs. ERC-721
// transfers (amount in an indexed topic) and malformed logs are skipped.
func decodeTransfers(logs []rpcLog) []domain.TransferEvent {
	out := make([]domain.TransferEvent, 0)
	topic := TransferTopic.Hex()

	for _, l := range logs {
		if len(l.Topics) != 3 || !strings.EqualFold(l.Topics[0], topic) {
			continue
		}
		data := common.FromHex(l.Data)
		if len(data) != 32 {
			continue
		}
		out = append(out, domain.TransferEvent{
			Token:     strings.ToLower(l.Address),
			From:      topicAddress(l.Topics[1]),
			To:        topicAddress(l.Topics[2]),
			RawAmount: new(big.Int).SetBytes(data),
			Decimals:  -1,
		})
	}
	return out
}

func topicAddress(topic string) string {
	return strings.ToLower(common.BytesToAddress(common.FromHex(topic)).Hex())
}

// TokenDecimals calls decimals() on the token contract.
func (a *Adapter) TokenDecimals(ctx context.Context, token string) (uint8, error) {
	data, err := erc20ABI.Pack("decimals")
	if err != nil {
		return 0, err
	}

	call := map[string]string{
		"to":   token,
		"data": hexutil.Encode(data),
	}
	var out hexutil.Bytes
	if err := a.client.Call(ctx, "eth_call", []any{call, "latest"}, &out); err != nil {
		return 0, fmt.Errorf("eth_call decimals %s: %w", token, err)
	}
	if len(out) == 0 {
		return 0, &domain.DecodeError{Chain: a.chain, Reason: "decimals of " + token + ": empty return data"}
	}

	values, err := erc20ABI.Unpack("decimals", out)
	if err != nil {
		return 0, &domain.DecodeError{Chain: a.chain, Reason: "decimals of " + token, Err: err}
	}
	dec, ok := values[0].(uint8)
	if !ok {
		return 0, &domain.DecodeError{Chain: a.chain, Reason: fmt.Sprintf("decimals of %s: unexpected type %T", token, values[0])}
	}
	return dec, nil
}

// VenueName returns the router's display name, or "" when unknown.
func (a *Adapter) VenueName(address string) string {
	return a.routers[strings.ToLower(address)]
}
