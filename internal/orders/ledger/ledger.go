// Package ledger submits purchase order instructions and reads order
// accounts. The on-chain record is authoritative for every order field.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"srwa/internal/chain"
	"srwa/internal/orders/models"
	dErrors "srwa/pkg/domain-errors"
	"srwa/pkg/platform/sentinel"
)

// Ledger talks to the purchase order program. custodian receives escrow,
// pays refunds and signs approvals.
type Ledger struct {
	chain     chain.Client
	program   solana.PublicKey
	custodian solana.PublicKey
}

func New(client chain.Client, program, custodian solana.PublicKey) *Ledger {
	return &Ledger{chain: client, program: program, custodian: custodian}
}

func (l *Ledger) Program() solana.PublicKey   { return l.program }
func (l *Ledger) Custodian() solana.PublicKey { return l.custodian }

// Create escrows quantity*unitPrice lamports from buyer and writes the order
// in one instruction. buyer signs and pays. An address already in use fails
// with models.ErrAddressTaken before anything is sent.
func (l *Ledger) Create(ctx context.Context, buyer, mint solana.PublicKey, quantity, unitPrice uint64, nonce int64) (solana.PublicKey, solana.Signature, error) {
	ix, addr, err := models.NewCreateInstruction(l.program, buyer, mint, l.custodian, quantity, unitPrice, nonce)
	if err != nil {
		return solana.PublicKey{}, solana.Signature{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build create instruction")
	}
	existing, err := chain.GetAccountIfExists(ctx, l.chain, addr)
	if err != nil {
		return addr, solana.Signature{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read order address")
	}
	if existing != nil {
		return addr, solana.Signature{}, dErrors.Wrap(models.ErrAddressTaken, dErrors.CodeConflict,
			fmt.Sprintf("order %s already exists for nonce %d", addr, nonce))
	}
	sig, err := l.chain.Submit(ctx, buyer, ix)
	if err != nil {
		return addr, sig, l.submitError(err, "create order")
	}
	return addr, sig, nil
}

// MarkApproved records a fulfilled order.
func (l *Ledger) MarkApproved(ctx context.Context, o *models.Order) (solana.Signature, error) {
	ix, err := models.NewMarkApprovedInstruction(l.program, l.custodian, o)
	if err != nil {
		return solana.Signature{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build approval instruction")
	}
	sig, err := l.chain.Submit(ctx, l.custodian, ix)
	if err != nil {
		return sig, l.submitError(err, "approve order")
	}
	return sig, nil
}

// Reject refunds the escrow to the buyer and marks the order rejected in one
// instruction.
func (l *Ledger) Reject(ctx context.Context, o *models.Order, reason string) (solana.Signature, error) {
	ix, err := models.NewRejectInstruction(l.program, l.custodian, o, reason)
	if err != nil {
		return solana.Signature{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build reject instruction")
	}
	sig, err := l.chain.Submit(ctx, l.custodian, ix)
	if err != nil {
		return sig, l.submitError(err, "reject order")
	}
	return sig, nil
}

// Fetch reads the order account at address.
func (l *Ledger) Fetch(ctx context.Context, address solana.PublicKey) (*models.Order, error) {
	acct, err := chain.GetAccountIfExists(ctx, l.chain, address)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read order")
	}
	if acct == nil {
		return nil, dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeNotFound, fmt.Sprintf("order %s not found", address))
	}
	if !acct.Owner.Equals(l.program) {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s is not a purchase order account", address))
	}
	o, err := models.DecodeAccount(address, acct.Data)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to decode order")
	}
	return o, nil
}

// submitError decodes the program's custom error codes; anything else goes
// through the generic submission mapping.
func (l *Ledger) submitError(err error, action string) error {
	var txErr *chain.TxError
	if !errors.As(err, &txErr) || !txErr.Program.Equals(l.program) {
		return chain.SubmitError(err, solana.PublicKey{}, action)
	}
	code, ok := txErr.CustomCode()
	if !ok || !models.ProgramError(code).Known() {
		return chain.SubmitError(err, solana.PublicKey{}, action)
	}
	pe := models.ProgramError(code)
	msg := fmt.Sprintf("%s: ledger refused with %s", action, pe)
	switch pe {
	case models.ErrAlreadyProcessed, models.ErrNotPending:
		return dErrors.Wrap(err, dErrors.CodeAlreadyFinalized, msg)
	case models.ErrInvalidQuantity, models.ErrInvalidPrice, models.ErrRejectReasonTooLong, models.ErrMathOverflow:
		return dErrors.Wrap(err, dErrors.CodeValidation, msg)
	case models.ErrUnauthorizedAdmin, models.ErrUnauthorizedCancel:
		return dErrors.Wrap(err, dErrors.CodeForbidden, msg)
	case models.ErrInsufficientAdminTokens:
		return dErrors.Wrap(err, dErrors.CodeInsufficientFunds, msg)
	}
	return dErrors.Wrap(err, dErrors.CodeOnChainUnclassified, msg)
}
