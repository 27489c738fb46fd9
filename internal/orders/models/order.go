package models

import (
	"math/bits"
	"time"

	"github.com/gagliardetto/solana-go"

	dErrors "srwa/pkg/domain-errors"
)

// MaxRejectionReasonLen is the longest rejection reason the ledger stores.
const MaxRejectionReasonLen = 200

// Order is a purchase order: a buyer's escrowed payment for a quantity of a
// restricted token awaiting administrator fulfilment.
//
// Invariants:
//   - TotalEscrowed == Quantity * UnitPrice, computed without overflow at creation
//   - Status starts Pending and reaches exactly one of Approved or Rejected
//   - A terminal status is never changed again
//   - Approved implies the buyer received Quantity tokens; Rejected implies the
//     buyer received TotalEscrowed back, in the same transaction as the mark
//
// The ledger program enforces the terminal-state rule itself; Can* methods
// only let callers fail fast before a submission.
type Order struct {
	Address         solana.PublicKey  `json:"address"`
	Buyer           solana.PublicKey  `json:"buyer"`
	Mint            solana.PublicKey  `json:"mint"`
	Quantity        uint64            `json:"quantity"`
	UnitPrice       uint64            `json:"unit_price"`
	TotalEscrowed   uint64            `json:"total_escrowed"`
	Status          Status            `json:"status"`
	Nonce           int64             `json:"nonce"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	ProcessedBy     *solana.PublicKey `json:"processed_by,omitempty"`
	ApprovalTx      *solana.Signature `json:"approval_tx,omitempty"`
	RejectionReason string            `json:"rejection_reason,omitempty"`
	Bump            uint8             `json:"-"`
}

// EscrowTotal returns quantity*unitPrice, failing on zero inputs or u64 overflow.
func EscrowTotal(quantity, unitPrice uint64) (uint64, error) {
	if quantity == 0 {
		return 0, dErrors.New(dErrors.CodeValidation, "quantity must be greater than zero")
	}
	if unitPrice == 0 {
		return 0, dErrors.New(dErrors.CodeValidation, "unit price must be greater than zero")
	}
	hi, lo := bits.Mul64(quantity, unitPrice)
	if hi != 0 {
		return 0, dErrors.New(dErrors.CodeValidation, "order total overflows")
	}
	return lo, nil
}

// IsPending reports whether the order still awaits a decision.
func (o *Order) IsPending() bool {
	return o.Status == StatusPending
}

// CanApprove checks the order may be fulfilled.
func (o *Order) CanApprove() error {
	if !o.Status.CanTransitionTo(StatusApproved) {
		return dErrors.New(dErrors.CodeAlreadyFinalized, "order is already "+o.Status.String())
	}
	return nil
}

// CanReject checks the order may be refunded with reason.
func (o *Order) CanReject(reason string) error {
	if len(reason) > MaxRejectionReasonLen {
		return dErrors.New(dErrors.CodeValidation, "rejection reason must be 200 bytes or less")
	}
	if !o.Status.CanTransitionTo(StatusRejected) {
		return dErrors.New(dErrors.CodeAlreadyFinalized, "order is already "+o.Status.String())
	}
	return nil
}
