package models

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"

	dErrors "srwa/pkg/domain-errors"
)

// Request asks for Amount tokens of Mint to reach Recipient. Amount is a
// decimal in whole token units ("50", "0.25"). An empty Key derives one from
// the mint, recipient and base amount.
type Request struct {
	Mint      solana.PublicKey
	Recipient solana.PublicKey
	Amount    string
	Key       string
}

// Receipt describes a completed distribution.
type Receipt struct {
	Key         string           `json:"key"`
	Mint        solana.PublicKey `json:"mint"`
	Recipient   solana.PublicKey `json:"recipient"`
	Amount      uint64           `json:"amount"`
	Decimals    uint8            `json:"decimals"`
	Signature   solana.Signature `json:"signature"`
	CompletedAt time.Time        `json:"completed_at"`
	Replayed    bool             `json:"replayed"`
}

// State of a journal entry.
type State string

const (
	StateInFlight  State = "in_flight"
	StatePending   State = "pending"
	StateCompleted State = "completed"
)

// Entry is the journal record of one distribution key.
//
// InFlight entries are leases held by LeaseToken until LeaseExpiresAt.
// Pending entries carry the signature whose outcome is unknown and the last
// block height at which it can still land. Completed entries carry the
// receipt and never change again.
type Entry struct {
	Key                  string           `json:"key"`
	State                State            `json:"state"`
	Signature            solana.Signature `json:"signature,omitzero"`
	LastValidBlockHeight uint64           `json:"last_valid_block_height,omitempty"`
	Receipt              *Receipt         `json:"receipt,omitempty"`
	LeaseToken           string           `json:"lease_token,omitempty"`
	LeaseExpiresAt       time.Time        `json:"lease_expires_at,omitzero"`
}

// LeaseHeld reports whether e is an unexpired in-flight lease at now.
func (e *Entry) LeaseHeld(now time.Time) bool {
	return e != nil && e.State == StateInFlight && now.Before(e.LeaseExpiresAt)
}

// HeldBy reports whether e is the in-flight lease identified by lease.
func (e *Entry) HeldBy(lease *Lease) bool {
	return e != nil && lease != nil && e.State == StateInFlight && e.LeaseToken == lease.Token
}

// Lease identifies one holder of a key. Journal writes made with a lease
// fail once another caller has taken the key over.
type Lease struct {
	Key   string
	Token string
}

// Pending is a transfer that was sent but whose outcome is not known yet.
type Pending struct {
	Signature            solana.Signature
	LastValidBlockHeight uint64
}

// DefaultKey is hex(sha256(mint ‖ recipient ‖ amount u64 LE)).
func DefaultKey(mint, recipient solana.PublicKey, amount uint64) string {
	h := sha256.New()
	h.Write(mint[:])
	h.Write(recipient[:])
	h.Write(binary.LittleEndian.AppendUint64(nil, amount))
	return hex.EncodeToString(h.Sum(nil))
}

// WholeUnits formats an integer count of tokens as an Amount.
func WholeUnits(n uint64) string {
	return fmt.Sprintf("%d", n)
}

var maxUint64 = new(big.Int).SetUint64(^uint64(0))

// ParseAmount scales a decimal token amount to base units. Any fractional
// remainder below one base unit, overflow or a non-positive result is an
// invalid amount.
func ParseAmount(amount string, decimals uint8) (uint64, error) {
	s := strings.TrimSpace(amount)
	if s == "" || strings.Trim(s, "0123456789.") != "" || strings.Count(s, ".") > 1 {
		return 0, dErrors.New(dErrors.CodeInvalidAmount, fmt.Sprintf("amount %q is not a decimal number", amount))
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return 0, dErrors.New(dErrors.CodeInvalidAmount, fmt.Sprintf("amount %q is not a decimal number", amount))
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	r.Mul(r, new(big.Rat).SetInt(scale))
	if !r.IsInt() {
		return 0, dErrors.New(dErrors.CodeInvalidAmount,
			fmt.Sprintf("amount %s has more precision than the mint's %d decimals", s, decimals))
	}
	base := r.Num()
	if base.Sign() <= 0 {
		return 0, dErrors.New(dErrors.CodeInvalidAmount, "amount must be greater than zero")
	}
	if base.Cmp(maxUint64) > 0 {
		return 0, dErrors.New(dErrors.CodeInvalidAmount, fmt.Sprintf("amount %s overflows u64 base units", s))
	}
	return base.Uint64(), nil
}
