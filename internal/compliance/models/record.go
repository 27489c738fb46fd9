package models

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	"srwa/internal/chain"
)

// RecordSeed prefixes compliance record addresses.
const RecordSeed = "kyc"

// Record account layout: disc(8) user(32) role(1) registered_at(8) verified(1) active(1) bump(1).
const RecordLen = 8 + 32 + 1 + 8 + 1 + 1 + 1

// Instruction names on the compliance program.
const (
	InstructionInitialize = "initialize_kyc_registry"
	InstructionUpdate     = "update_kyc_status"
)

// RecordDiscriminator tags compliance record accounts.
var RecordDiscriminator = chain.AccountDiscriminator("UserRegistry")

// Role of the registered wallet.
type Role uint8

const (
	RoleIssuer Role = iota
	RoleInvestor
	RoleAdmin
)

// Record is the on-chain compliance status of one wallet.
type Record struct {
	Address      solana.PublicKey `json:"address"`
	Subject      solana.PublicKey `json:"subject"`
	Role         Role             `json:"role"`
	Verified     bool             `json:"verified"`
	Active       bool             `json:"active"`
	RegisteredAt time.Time        `json:"registered_at"`
	Bump         uint8            `json:"-"`
}

// Cleared reports whether the wallet may hold or receive the token.
func (r *Record) Cleared() bool {
	return r != nil && r.Verified && r.Active
}

// RecordAddress derives the compliance record address of subject.
func RecordAddress(program, subject solana.PublicKey) (solana.PublicKey, uint8, error) {
	return chain.FindPDA(program, []byte(RecordSeed), subject[:])
}

// DecodeRecord parses compliance record account bytes.
func DecodeRecord(address solana.PublicKey, data []byte) (*Record, error) {
	if len(data) < RecordLen || !chain.HasDiscriminator(data, RecordDiscriminator) {
		return nil, fmt.Errorf("compliance record %s: %w", address, chain.ErrMalformedAccount)
	}
	return &Record{
		Address:      address,
		Subject:      solana.PublicKeyFromBytes(data[8:40]),
		Role:         Role(data[40]),
		RegisteredAt: time.Unix(int64(binary.LittleEndian.Uint64(data[41:49])), 0).UTC(),
		Verified:     data[49] == 1,
		Active:       data[50] == 1,
		Bump:         data[51],
	}, nil
}

// EncodeRecord is the inverse of DecodeRecord.
func EncodeRecord(r *Record) []byte {
	data := make([]byte, RecordLen)
	copy(data[:8], RecordDiscriminator[:])
	copy(data[8:40], r.Subject[:])
	data[40] = byte(r.Role)
	binary.LittleEndian.PutUint64(data[41:49], uint64(r.RegisteredAt.Unix()))
	if r.Verified {
		data[49] = 1
	}
	if r.Active {
		data[50] = 1
	}
	data[51] = r.Bump
	return data
}

// NewInitializeInstruction creates the record of subject with the given flags.
func NewInitializeInstruction(program, authority, subject solana.PublicKey, verified, active bool) (*solana.GenericInstruction, error) {
	record, _, err := RecordAddress(program, subject)
	if err != nil {
		return nil, err
	}
	data, err := chain.NewArgs(chain.InstructionDiscriminator(InstructionInitialize)).Bool(verified).Bool(active).Bytes()
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(program, solana.AccountMetaSlice{
		solana.Meta(authority).WRITE().SIGNER(),
		solana.Meta(subject),
		solana.Meta(record).WRITE(),
		solana.Meta(chain.SystemProgramID),
	}, data), nil
}

// NewUpdateInstruction rewrites the flags of an existing record.
func NewUpdateInstruction(program, authority, subject solana.PublicKey, verified, active bool) (*solana.GenericInstruction, error) {
	record, _, err := RecordAddress(program, subject)
	if err != nil {
		return nil, err
	}
	data, err := chain.NewArgs(chain.InstructionDiscriminator(InstructionUpdate)).Bool(verified).Bool(active).Bytes()
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(program, solana.AccountMetaSlice{
		solana.Meta(authority).SIGNER(),
		solana.Meta(subject),
		solana.Meta(record).WRITE(),
	}, data), nil
}
