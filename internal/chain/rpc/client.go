// Package rpc implements chain.Client over a Solana JSON-RPC endpoint.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	solrpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"

	"srwa/internal/chain"
)

const (
	defaultConfirmTimeout = 60 * time.Second
	defaultPollInterval   = 500 * time.Millisecond
)

// Keyring resolves private keys for signers the process controls.
type Keyring map[solana.PublicKey]solana.PrivateKey

// Add registers a key and returns its public key.
func (k Keyring) Add(key solana.PrivateKey) solana.PublicKey {
	pub := key.PublicKey()
	k[pub] = key
	return pub
}

// Client submits transactions and polls until confirmation.
type Client struct {
	rpc            *solrpc.Client
	keys           Keyring
	logger         *slog.Logger
	commitment     solrpc.CommitmentType
	confirmTimeout time.Duration
	pollInterval   time.Duration
}

// Option configures a Client.
type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func WithConfirmTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.confirmTimeout = d
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// New creates a client for endpoint signing with keys.
func New(endpoint string, keys Keyring, opts ...Option) *Client {
	c := &Client{
		rpc:            solrpc.New(endpoint),
		keys:           keys,
		logger:         slog.Default(),
		commitment:     solrpc.CommitmentConfirmed,
		confirmTimeout: defaultConfirmTimeout,
		pollInterval:   defaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetAccount fetches raw account bytes.
func (c *Client) GetAccount(ctx context.Context, address solana.PublicKey) (*chain.Account, error) {
	res, err := c.rpc.GetAccountInfoWithOpts(ctx, address, &solrpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: c.commitment,
	})
	if errors.Is(err, solrpc.ErrNotFound) {
		return nil, chain.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", address, err)
	}
	if res == nil || res.Value == nil {
		return nil, chain.ErrAccountNotFound
	}
	return &chain.Account{
		Address:  address,
		Owner:    res.Value.Owner,
		Lamports: res.Value.Lamports,
		Data:     res.Value.Data.GetBinary(),
	}, nil
}

// Submit builds, signs and sends one transaction, then waits for confirmation.
func (c *Client) Submit(ctx context.Context, payer solana.PublicKey, instructions ...solana.Instruction) (solana.Signature, error) {
	blockhash, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("get latest blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(instructions, blockhash.Value.Blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("build transaction: %w", err)
	}
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if k, ok := c.keys[key]; ok {
			return &k
		}
		return nil
	}); err != nil {
		return solana.Signature{}, fmt.Errorf("sign transaction: %w", err)
	}

	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, solrpc.TransactionOpts{
		PreflightCommitment: c.commitment,
	})
	if err != nil {
		if txErr := preflightError(err, instructions); txErr != nil {
			return solana.Signature{}, txErr
		}
		return solana.Signature{}, fmt.Errorf("send transaction: %w", err)
	}

	lastValid := blockhash.Value.LastValidBlockHeight
	c.logger.DebugContext(ctx, "transaction sent", "signature", sig.String(), "last_valid_block_height", lastValid)
	return sig, c.awaitConfirmation(ctx, sig, lastValid, instructions)
}

func (c *Client) awaitConfirmation(ctx context.Context, sig solana.Signature, lastValid uint64, instructions []solana.Instruction) error {
	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		status, err := c.SignatureStatus(ctx, sig)
		switch {
		case err != nil && ctx.Err() == nil:
			c.logger.WarnContext(ctx, "signature status poll failed", "signature", sig.String(), "error", err)
		case status == chain.StatusConfirmed:
			return nil
		case status == chain.StatusFailed:
			return c.failedTransaction(context.WithoutCancel(ctx), sig, instructions)
		}

		select {
		case <-ctx.Done():
			return &chain.PendingError{Signature: sig, LastValidBlockHeight: lastValid}
		case <-ticker.C:
		}
	}
}

// SignatureStatus reports how far a transaction has progressed.
func (c *Client) SignatureStatus(ctx context.Context, sig solana.Signature) (chain.Status, error) {
	res, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return chain.StatusUnknown, fmt.Errorf("get signature status: %w", err)
	}
	if res == nil || len(res.Value) == 0 || res.Value[0] == nil {
		return chain.StatusUnknown, nil
	}
	st := res.Value[0]
	if st.Err != nil {
		return chain.StatusFailed, nil
	}
	switch st.ConfirmationStatus {
	case solrpc.ConfirmationStatusConfirmed, solrpc.ConfirmationStatusFinalized:
		return chain.StatusConfirmed, nil
	default:
		return chain.StatusProcessed, nil
	}
}

// BlockHeight returns the current block height at the client's commitment.
func (c *Client) BlockHeight(ctx context.Context) (uint64, error) {
	height, err := c.rpc.GetBlockHeight(ctx, c.commitment)
	if err != nil {
		return 0, fmt.Errorf("get block height: %w", err)
	}
	return height, nil
}

func (c *Client) failedTransaction(ctx context.Context, sig solana.Signature, instructions []solana.Instruction) error {
	maxVersion := uint64(0)
	res, err := c.rpc.GetTransaction(ctx, sig, &solrpc.GetTransactionOpts{
		Commitment:                     c.commitment,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil || res == nil || res.Meta == nil {
		return &chain.TxError{Signature: sig, Instruction: -1}
	}
	txErr := decodeTransactionError(res.Meta.Err, instructions)
	txErr.Signature = sig
	txErr.Logs = res.Meta.LogMessages
	return txErr
}

// preflightError extracts the simulation failure from a send error, if any.
func preflightError(err error, instructions []solana.Instruction) *chain.TxError {
	var rpcErr *jsonrpc.RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Data == nil {
		return nil
	}
	raw, mErr := json.Marshal(rpcErr.Data)
	if mErr != nil {
		return nil
	}
	var sim struct {
		Err  any      `json:"err"`
		Logs []string `json:"logs"`
	}
	if json.Unmarshal(raw, &sim) != nil || sim.Err == nil {
		return nil
	}
	txErr := decodeTransactionError(sim.Err, instructions)
	txErr.Logs = sim.Logs
	return txErr
}

// decodeTransactionError reads the runtime's JSON error shape, for example
// {"InstructionError":[0,{"Custom":6001}]} or "AccountNotFound".
func decodeTransactionError(v any, instructions []solana.Instruction) *chain.TxError {
	out := &chain.TxError{Instruction: -1}
	switch e := v.(type) {
	case string:
		out.Kind = e
	case map[string]any:
		ixErr, ok := e["InstructionError"].([]any)
		if !ok || len(ixErr) != 2 {
			for k := range e {
				out.Kind = k
			}
			return out
		}
		if idx, ok := asInt(ixErr[0]); ok {
			out.Instruction = idx
			if idx >= 0 && idx < len(instructions) {
				out.Program = instructions[idx].ProgramID()
			}
		}
		switch detail := ixErr[1].(type) {
		case string:
			out.Kind = detail
		case map[string]any:
			if code, ok := asInt(detail["Custom"]); ok {
				c := uint32(code)
				out.Custom = &c
			} else {
				for k := range detail {
					out.Kind = k
				}
			}
		}
	}
	return out
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	}
	return 0, false
}
