package solana

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/mr-tron/base58"

	"github.com/vietddude/buywatch/internal/core/domain"
	"github.com/vietddude/buywatch/internal/infra/chain"
	"github.com/vietddude/buywatch/internal/infra/rpc/provider"
)

const (
	codeSlotSkipped        = -32007
	codeSlotMissingStorage = -32009
)

// Adapter implements chain.Adapter for Solana. Heights are slots.
type Adapter struct {
	client     chain.Caller
	programs   map[string]string
	commitment string
	log        *slog.Logger
}

// Option configures the adapter.
type Option func(*Adapter)

// WithPrograms adds DEX programs (program id -> venue name).
func WithPrograms(programs map[string]string) Option {
	return func(a *Adapter) {
		for id, name := range programs {
			a.programs[id] = name
		}
	}
}

// WithCommitment sets the commitment level used for reads.
func WithCommitment(c string) Option {
	return func(a *Adapter) {
		if c != "" {
			a.commitment = c
		}
	}
}

// NewAdapter creates a Solana adapter.
func NewAdapter(client chain.Caller, opts ...Option) *Adapter {
	a := &Adapter{
		client:     client,
		programs:   make(map[string]string, len(defaultPrograms)),
		commitment: "confirmed",
		log:        slog.Default().With("component", "solana", "chain", domain.ChainSolana),
	}
	for id, name := range defaultPrograms {
		a.programs[id] = name
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Chain() domain.Chain {
	return domain.ChainSolana
}

func (a *Adapter) WrappedNative() string {
	return WrappedSOLMint.String()
}

func (a *Adapter) LatestHeight(ctx context.Context) (uint64, error) {
	var slot uint64
	params := []any{map[string]string{"commitment": a.commitment}}
	if err := a.client.Call(ctx, "getSlot", params, &slot); err != nil {
		return 0, fmt.Errorf("getSlot: %w", err)
	}
	return slot, nil
}

type rpcBlock struct {
	Blockhash    string            `json:"blockhash"`
	BlockTime    *int64            `json:"blockTime"`
	Transactions []json.RawMessage `json:"transactions"`
}

type accountKey struct {
	Pubkey string `json:"pubkey"`
	Signer bool   `json:"signer"`
}

type rpcInstruction struct {
	ProgramID string          `json:"programId"`
	Program   string          `json:"program"`
	Parsed    json.RawMessage `json:"parsed"`
	Accounts  []string        `json:"accounts"`
	Data      string          `json:"data"`
}

type tokenBalance struct {
	AccountIndex  int    `json:"accountIndex"`
	Mint          string `json:"mint"`
	Owner         string `json:"owner"`
	UITokenAmount struct {
		Amount   string `json:"amount"`
		Decimals int    `json:"decimals"`
	} `json:"uiTokenAmount"`
}

type innerInstructions struct {
	Index        int              `json:"index"`
	Instructions []rpcInstruction `json:"instructions"`
}

type rpcMeta struct {
	Err               json.RawMessage     `json:"err"`
	Fee               uint64              `json:"fee"`
	PreBalances       []uint64            `json:"preBalances"`
	PostBalances      []uint64            `json:"postBalances"`
	PreTokenBalances  []tokenBalance      `json:"preTokenBalances"`
	PostTokenBalances []tokenBalance      `json:"postTokenBalances"`
	InnerInstructions []innerInstructions `json:"innerInstructions"`
}

type rpcTransaction struct {
	Meta        *rpcMeta `json:"meta"`
	Transaction struct {
		Signatures []string `json:"signatures"`
		Message    struct {
			AccountKeys  []accountKey     `json:"accountKeys"`
			Instructions []rpcInstruction `json:"instructions"`
		} `json:"message"`
	} `json:"transaction"`
}

type parsedTransfer struct {
	Type string `json:"type"`
	Info struct {
		Source      string `json:"source"`
		Destination string `json:"destination"`
		Mint        string `json:"mint"`
		Amount      string `json:"amount"`
		TokenAmount *struct {
			Amount   string `json:"amount"`
			Decimals int    `json:"decimals"`
		} `json:"tokenAmount"`
	} `json:"info"`
}

// GetBlock fetches a slot with jsonParsed transactions.
// A skipped slot yields nil, nil.
func (a *Adapter) GetBlock(ctx context.Context, slot uint64) (*domain.Block, error) {
	cfg := map[string]any{
		"encoding":                       "jsonParsed",
		"maxSupportedTransactionVersion": 0,
		"transactionDetails":             "full",
		"rewards":                        false,
		"commitment":                     a.commitment,
	}

	var raw *rpcBlock
	if err := a.client.Call(ctx, "getBlock", []any{slot, cfg}, &raw); err != nil {
		var rpcErr *provider.RPCError
		if errors.As(err, &rpcErr) && (rpcErr.Code == codeSlotSkipped || rpcErr.Code == codeSlotMissingStorage) {
			return nil, nil
		}
		return nil, fmt.Errorf("getBlock %d: %w", slot, err)
	}
	if raw == nil {
		return nil, nil
	}

	block := &domain.Block{
		Chain:        domain.ChainSolana,
		Height:       slot,
		Hash:         raw.Blockhash,
		Transactions: make([]*domain.Transaction, 0, len(raw.Transactions)),
	}
	if raw.BlockTime != nil {
		block.Timestamp = time.Unix(*raw.BlockTime, 0).UTC()
	}

	for i, rawTx := range raw.Transactions {
		tx, err := a.parseTransaction(rawTx, slot, i)
		if err != nil {
			a.log.Debug("skip malformed transaction", "slot", slot, "index", i, "error", err)
			continue
		}
		if tx != nil {
			block.Transactions = append(block.Transactions, tx)
		}
	}
	return block, nil
}

type tokenAccount struct {
	mint     string
	owner    string
	decimals int
}

func (a *Adapter) parseTransaction(raw json.RawMessage, slot uint64, index int) (*domain.Transaction, error) {
	var rt rpcTransaction
	if err := json.Unmarshal(raw, &rt); err != nil {
		return nil, &domain.DecodeError{Chain: domain.ChainSolana, Reason: "transaction json", Err: err}
	}
	msg := rt.Transaction.Message
	if len(rt.Transaction.Signatures) == 0 || len(msg.AccountKeys) == 0 {
		return nil, &domain.DecodeError{Chain: domain.ChainSolana, Reason: "missing signature or account keys"}
	}

	sig := rt.Transaction.Signatures[0]
	tx := &domain.Transaction{
		Chain:  domain.ChainSolana,
		Hash:   sig,
		Height: slot,
		Index:  index,
		From:   msg.AccountKeys[0].Pubkey,
		Value:  new(big.Int),
		Raw:    raw,
	}

	firstDex := -1
	for i, ix := range msg.Instructions {
		if _, ok := a.programs[ix.ProgramID]; ok {
			firstDex = i
			break
		}
	}

	var input strings.Builder
	for _, k := range msg.AccountKeys {
		input.WriteString(k.Pubkey)
		input.WriteByte(' ')
	}
	for _, ix := range msg.Instructions {
		if ix.Data != "" {
			input.WriteString(ix.Data)
			input.WriteByte(' ')
		}
	}
	tx.Input = strings.TrimSpace(input.String())

	meta := rt.Meta
	if meta != nil && len(meta.Err) > 0 && string(meta.Err) != "null" {
		tx.Failed = true
	}

	if firstDex >= 0 {
		dexIx := msg.Instructions[firstDex]
		tx.To = dexIx.ProgramID
		data, _ := base58.Decode(dexIx.Data)
		tx.Method = methodTag(dexIx.ProgramID, data)
	}

	if meta == nil {
		tx.Transfers = []domain.TransferEvent{}
		return tx, nil
	}

	if len(meta.PreBalances) > 0 && len(meta.PostBalances) > 0 {
		pre, post := meta.PreBalances[0], meta.PostBalances[0]
		if pre > post+meta.Fee {
			tx.Value = new(big.Int).SetUint64(pre - post - meta.Fee)
		}
	}

	if tx.Failed {
		tx.Transfers = []domain.TransferEvent{}
		return tx, nil
	}

	accounts := tokenAccounts(msg.AccountKeys, meta)
	transfers := make([]domain.TransferEvent, 0)

	for _, ix := range msg.Instructions {
		if ev, ok := a.decodeTransfer(ix, accounts); ok {
			transfers = append(transfers, ev)
		}
	}
	for _, inner := range meta.InnerInstructions {
		parent := ""
		if inner.Index >= 0 && inner.Index < len(msg.Instructions) {
			parent = msg.Instructions[inner.Index].ProgramID
		}
		_, parentIsDex := a.programs[parent]

		for _, ix := range inner.Instructions {
			ev, ok := a.decodeTransfer(ix, accounts)
			if !ok {
				continue
			}
			// Tokens paid out by a pool are reported as sent by the program.
			if parentIsDex && ev.From != tx.From {
				ev.From = parent
			}
			transfers = append(transfers, ev)
		}
	}
	tx.Transfers = transfers
	return tx, nil
}

func tokenAccounts(keys []accountKey, meta *rpcMeta) map[string]tokenAccount {
	out := make(map[string]tokenAccount)
	add := func(balances []tokenBalance) {
		for _, b := range balances {
			if b.AccountIndex < 0 || b.AccountIndex >= len(keys) {
				continue
			}
			out[keys[b.AccountIndex].Pubkey] = tokenAccount{
				mint:     b.Mint,
				owner:    b.Owner,
				decimals: b.UITokenAmount.Decimals,
			}
		}
	}
	add(meta.PreTokenBalances)
	add(meta.PostTokenBalances)
	return out
}

// decodeTransfer handles SPL transfer and transferChecked, parsed or raw.
func (a *Adapter) decodeTransfer(ix rpcInstruction, accounts map[string]tokenAccount) (domain.TransferEvent, bool) {
	if !isTokenProgram(ix.ProgramID) {
		return domain.TransferEvent{}, false
	}

	var source, dest, mint string
	amount := new(big.Int)
	decimals := -1

	switch {
	case len(ix.Parsed) > 0 && ix.Parsed[0] == '{':
		var p parsedTransfer
		if err := json.Unmarshal(ix.Parsed, &p); err != nil {
			return domain.TransferEvent{}, false
		}
		switch p.Type {
		case "transfer":
			if _, ok := amount.SetString(p.Info.Amount, 10); !ok {
				return domain.TransferEvent{}, false
			}
		case "transferChecked":
			if p.Info.TokenAmount == nil {
				return domain.TransferEvent{}, false
			}
			if _, ok := amount.SetString(p.Info.TokenAmount.Amount, 10); !ok {
				return domain.TransferEvent{}, false
			}
			decimals = p.Info.TokenAmount.Decimals
			mint = p.Info.Mint
		default:
			return domain.TransferEvent{}, false
		}
		source, dest = p.Info.Source, p.Info.Destination

	case ix.Data != "":
		data, err := base58.Decode(ix.Data)
		if err != nil || len(data) < 9 {
			return domain.TransferEvent{}, false
		}
		switch data[0] {
		case splTransfer:
			if len(ix.Accounts) < 3 {
				return domain.TransferEvent{}, false
			}
			source, dest = ix.Accounts[0], ix.Accounts[1]
		case splTransferChecked:
			if len(ix.Accounts) < 4 || len(data) < 10 {
				return domain.TransferEvent{}, false
			}
			source, mint, dest = ix.Accounts[0], ix.Accounts[1], ix.Accounts[2]
			decimals = int(data[9])
		default:
			return domain.TransferEvent{}, false
		}
		amount.SetUint64(binary.LittleEndian.Uint64(data[1:9]))

	default:
		return domain.TransferEvent{}, false
	}

	src, srcKnown := accounts[source]
	dst, dstKnown := accounts[dest]
	if mint == "" {
		switch {
		case dstKnown:
			mint = dst.mint
		case srcKnown:
			mint = src.mint
		default:
			return domain.TransferEvent{}, false
		}
	}
	if decimals < 0 {
		if dstKnown && dst.mint == mint {
			decimals = dst.decimals
		} else if srcKnown && src.mint == mint {
			decimals = src.decimals
		}
	}

	ev := domain.TransferEvent{
		Token:     mint,
		From:      source,
		To:        dest,
		RawAmount: amount,
		Decimals:  decimals,
	}
	if srcKnown && src.owner != "" {
		ev.From = src.owner
	}
	if dstKnown && dst.owner != "" {
		ev.To = dst.owner
	}
	return ev, true
}

// DecodeSwapCall reports whether tx invokes a known DEX program.
func (a *Adapter) DecodeSwapCall(tx *domain.Transaction) (bool, string) {
	if _, ok := a.programs[tx.To]; !ok {
		return false, ""
	}
	method := tx.Method
	if method == "" {
		method = "swap"
	}
	return true, method
}

// DecodeTransferLogs returns transfers decoded from the block payload.
func (a *Adapter) DecodeTransferLogs(ctx context.Context, tx *domain.Transaction) ([]domain.TransferEvent, error) {
	if tx.Transfers == nil {
		return nil, &domain.DecodeError{Chain: domain.ChainSolana, TxID: tx.Hash, Reason: "transaction was not loaded from a block"}
	}
	return tx.Transfers, nil
}

type tokenSupply struct {
	Value struct {
		Amount   string `json:"amount"`
		Decimals uint8  `json:"decimals"`
	} `json:"value"`
}

// TokenDecimals reads the mint decimals via getTokenSupply.
func (a *Adapter) TokenDecimals(ctx context.Context, mint string) (uint8, error) {
	var supply tokenSupply
	if err := a.client.Call(ctx, "getTokenSupply", []any{mint}, &supply); err != nil {
		return 0, fmt.Errorf("getTokenSupply %s: %w", mint, err)
	}
	return supply.Value.Decimals, nil
}

// VenueName returns the DEX name of a program id, or "" when unknown.
func (a *Adapter) VenueName(program string) string {
	return a.programs[program]
}
