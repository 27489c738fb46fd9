package models

import (
	"github.com/gagliardetto/solana-go"

	"srwa/internal/chain"
)

// Ledger program instruction names. InstructionApprove only records an
// approval whose tokens were delivered by a separate transfer; it is not
// approve_purchase_order, which moves the tokens itself.
const (
	InstructionCreate  = "create_purchase_order"
	InstructionApprove = "mark_as_approved"
	InstructionReject  = "reject_purchase_order"
)

// NewCreateInstruction escrows quantity*unitPrice lamports from buyer to
// custodian and writes the order record, atomically.
func NewCreateInstruction(program, buyer, mint, custodian solana.PublicKey, quantity, unitPrice uint64, nonce int64) (*solana.GenericInstruction, solana.PublicKey, error) {
	order, _, err := Address(program, mint, buyer, nonce)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	data, err := chain.NewArgs(chain.InstructionDiscriminator(InstructionCreate)).
		U64(quantity).U64(unitPrice).I64(nonce).Bytes()
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	return solana.NewInstruction(program, solana.AccountMetaSlice{
		solana.Meta(buyer).WRITE().SIGNER(),
		solana.Meta(mint),
		solana.Meta(order).WRITE(),
		solana.Meta(custodian).WRITE(),
		solana.Meta(chain.SystemProgramID),
	}, data), order, nil
}

// NewMarkApprovedInstruction records a fulfilled order. The token accounts are
// checked by the program against the order's mint and buyer.
func NewMarkApprovedInstruction(program, admin solana.PublicKey, o *Order) (*solana.GenericInstruction, error) {
	adminATA, err := chain.AssociatedTokenAddress(admin, o.Mint)
	if err != nil {
		return nil, err
	}
	buyerATA, err := chain.AssociatedTokenAddress(o.Buyer, o.Mint)
	if err != nil {
		return nil, err
	}
	data, err := chain.NewArgs(chain.InstructionDiscriminator(InstructionApprove)).Bytes()
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(program, solana.AccountMetaSlice{
		solana.Meta(admin).WRITE().SIGNER(),
		solana.Meta(o.Address).WRITE(),
		solana.Meta(adminATA),
		solana.Meta(buyerATA),
	}, data), nil
}

// NewRejectInstruction refunds the escrow from custodian to buyer and marks
// the order rejected, atomically.
func NewRejectInstruction(program, custodian solana.PublicKey, o *Order, reason string) (*solana.GenericInstruction, error) {
	data, err := chain.NewArgs(chain.InstructionDiscriminator(InstructionReject)).Str(reason).Bytes()
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(program, solana.AccountMetaSlice{
		solana.Meta(custodian).WRITE().SIGNER(),
		solana.Meta(o.Address).WRITE(),
		solana.Meta(custodian).WRITE(),
		solana.Meta(o.Buyer).WRITE(),
		solana.Meta(chain.SystemProgramID),
	}, data), nil
}
