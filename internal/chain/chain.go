// Package chain is the port between the services and a Solana cluster.
//
// Services depend on Client only; the rpc subpackage talks to a real node and
// the chaintest subpackage keeps an in-memory ledger for tests and dry runs.
package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"srwa/pkg/platform/sentinel"
)

// ErrAccountNotFound is returned by GetAccount when no account lives at the address.
var ErrAccountNotFound = fmt.Errorf("account %w", sentinel.ErrNotFound)

// ErrConfirmationTimeout marks a submission whose outcome is unknown.
var ErrConfirmationTimeout = errors.New("confirmation timed out")

// Account is a raw on-chain account.
type Account struct {
	Address  solana.PublicKey
	Owner    solana.PublicKey
	Lamports uint64
	Data     []byte
}

// Status is the confirmation state of a submitted transaction.
type Status int

const (
	StatusUnknown Status = iota
	StatusProcessed
	StatusConfirmed
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusProcessed:
		return "processed"
	case StatusConfirmed:
		return "confirmed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Client reads accounts and submits signed transactions.
//
// Submit signs with every signer the instructions require, sends one atomic
// transaction paid by payer and blocks until it is confirmed or fails. An
// on-chain failure is returned as *TxError. When confirmation cannot be
// observed in time the error is a *PendingError carrying the signature and
// the last block height at which the transaction can still land.
type Client interface {
	GetAccount(ctx context.Context, address solana.PublicKey) (*Account, error)
	Submit(ctx context.Context, payer solana.PublicKey, instructions ...solana.Instruction) (solana.Signature, error)
	SignatureStatus(ctx context.Context, sig solana.Signature) (Status, error)
	BlockHeight(ctx context.Context) (uint64, error)
}

// GetAccountIfExists returns nil without error when the account is absent.
func GetAccountIfExists(ctx context.Context, c Client, address solana.PublicKey) (*Account, error) {
	acct, err := c.GetAccount(ctx, address)
	if errors.Is(err, ErrAccountNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// PendingError reports a transaction that was sent but not observed as confirmed.
// Until the cluster passes LastValidBlockHeight the transaction may still land.
type PendingError struct {
	Signature            solana.Signature
	LastValidBlockHeight uint64
}

// Expired reports whether a transaction whose blockhash is valid through
// lastValid can no longer land at block height. A zero lastValid is never
// considered expired.
func Expired(lastValid, height uint64) bool {
	return lastValid != 0 && height > lastValid
}

func (e *PendingError) Error() string {
	return fmt.Sprintf("transaction %s: %v", e.Signature, ErrConfirmationTimeout)
}

func (e *PendingError) Unwrap() error { return ErrConfirmationTimeout }
