// Package metalist decodes and resolves transfer-hook extra-account-meta lists.
//
// A meta list is a TLV entry keyed by the hook interface's Execute
// discriminator whose value is a counted slice of fixed-size descriptors.
// Resolution is pure: callers supply the base accounts, the Execute
// instruction data and a lookup for account bytes.
package metalist

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

const (
	entryLen  = 35
	headerLen = 8 + 4 + 4

	// Descriptor discriminators.
	DiscLiteral      uint8 = 0
	DiscPDA          uint8 = 1
	DiscPubkeyData   uint8 = 2
	DiscExternalBase uint8 = 128
)

// ExecuteDiscriminator prefixes the hook's Execute instruction and keys the TLV entry.
var ExecuteDiscriminator = func() [8]byte {
	sum := sha256.Sum256([]byte("spl-transfer-hook-interface:execute"))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}()

// ErrMalformed is returned for meta list bytes that cannot be decoded.
var ErrMalformed = errors.New("malformed extra account meta list")

// Descriptor is one stored extra-account entry.
type Descriptor struct {
	Discriminator uint8
	AddressConfig [32]byte
	IsSigner      bool
	IsWritable    bool
}

// Parse decodes meta list account data into descriptors in stored order.
func Parse(data []byte) ([]Descriptor, error) {
	if len(data) < headerLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformed, len(data))
	}
	if [8]byte(data[:8]) != ExecuteDiscriminator {
		return nil, fmt.Errorf("%w: unexpected TLV discriminator", ErrMalformed)
	}
	length := binary.LittleEndian.Uint32(data[8:12])
	count := binary.LittleEndian.Uint32(data[12:16])
	if uint64(length) < 4+uint64(count)*entryLen || len(data) < 12+int(length) {
		return nil, fmt.Errorf("%w: %d entries do not fit in %d bytes", ErrMalformed, count, length)
	}

	out := make([]Descriptor, count)
	for i := range out {
		e := data[headerLen+i*entryLen : headerLen+(i+1)*entryLen]
		out[i].Discriminator = e[0]
		copy(out[i].AddressConfig[:], e[1:33])
		out[i].IsSigner = e[33] == 1
		out[i].IsWritable = e[34] == 1
	}
	return out, nil
}

// Encode is the inverse of Parse.
func Encode(list []Descriptor) []byte {
	data := make([]byte, headerLen+len(list)*entryLen)
	copy(data[:8], ExecuteDiscriminator[:])
	binary.LittleEndian.PutUint32(data[8:12], uint32(4+len(list)*entryLen))
	binary.LittleEndian.PutUint32(data[12:16], uint32(len(list)))
	for i, d := range list {
		e := data[headerLen+i*entryLen:]
		e[0] = d.Discriminator
		copy(e[1:33], d.AddressConfig[:])
		if d.IsSigner {
			e[33] = 1
		}
		if d.IsWritable {
			e[34] = 1
		}
	}
	return data
}

// Literal describes a fixed account.
func Literal(key solana.PublicKey, signer, writable bool) Descriptor {
	return Descriptor{Discriminator: DiscLiteral, AddressConfig: key, IsSigner: signer, IsWritable: writable}
}

// PDA describes an address derived under the hook program.
func PDA(seeds []Seed, signer, writable bool) (Descriptor, error) {
	return seeded(DiscPDA, seeds, signer, writable)
}

// ExternalPDA describes an address derived under the program found at accountIndex.
func ExternalPDA(accountIndex uint8, seeds []Seed, signer, writable bool) (Descriptor, error) {
	if accountIndex >= DiscExternalBase {
		return Descriptor{}, fmt.Errorf("%w: program index %d out of range", ErrMalformed, accountIndex)
	}
	return seeded(DiscExternalBase+accountIndex, seeds, signer, writable)
}

// PubkeyFromAccountData describes a key stored in another account's data.
func PubkeyFromAccountData(accountIndex, offset uint8, signer, writable bool) Descriptor {
	d := Descriptor{Discriminator: DiscPubkeyData, IsSigner: signer, IsWritable: writable}
	d.AddressConfig[0] = pubkeyFromAccountData
	d.AddressConfig[1] = accountIndex
	d.AddressConfig[2] = offset
	return d
}

// PubkeyFromInstructionData describes a key stored in the Execute data.
func PubkeyFromInstructionData(offset uint8, signer, writable bool) Descriptor {
	d := Descriptor{Discriminator: DiscPubkeyData, IsSigner: signer, IsWritable: writable}
	d.AddressConfig[0] = pubkeyFromInstructionData
	d.AddressConfig[1] = offset
	return d
}

func seeded(disc uint8, seeds []Seed, signer, writable bool) (Descriptor, error) {
	cfg, err := PackSeeds(seeds)
	if err != nil {
		return Descriptor{}, err
	}
	return Descriptor{Discriminator: disc, AddressConfig: cfg, IsSigner: signer, IsWritable: writable}, nil
}

// ExecuteData builds the Execute instruction data for amount.
func ExecuteData(amount uint64) []byte {
	data := make([]byte, 16)
	copy(data[:8], ExecuteDiscriminator[:])
	binary.LittleEndian.PutUint64(data[8:], amount)
	return data
}
