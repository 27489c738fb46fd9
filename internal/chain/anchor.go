package chain

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Discriminator is the 8-byte prefix selecting an instruction or account type.
type Discriminator [8]byte

// InstructionDiscriminator returns sha256("global:<name>")[:8].
func InstructionDiscriminator(name string) Discriminator {
	return hashPrefix("global:" + name)
}

// AccountDiscriminator returns sha256("account:<Name>")[:8].
func AccountDiscriminator(name string) Discriminator {
	return hashPrefix("account:" + name)
}

func hashPrefix(preimage string) Discriminator {
	sum := sha256.Sum256([]byte(preimage))
	var d Discriminator
	copy(d[:], sum[:8])
	return d
}

// HasDiscriminator reports whether data starts with d.
func HasDiscriminator(data []byte, d Discriminator) bool {
	return len(data) >= len(d) && bytes.Equal(data[:len(d)], d[:])
}

// ArgsEncoder packs Borsh instruction arguments behind a discriminator.
type ArgsEncoder struct {
	buf bytes.Buffer
	enc *bin.Encoder
	err error
}

// NewArgs starts an instruction payload with d.
func NewArgs(d Discriminator) *ArgsEncoder {
	a := &ArgsEncoder{}
	a.buf.Write(d[:])
	a.enc = bin.NewBorshEncoder(&a.buf)
	return a
}

func (a *ArgsEncoder) U64(v uint64) *ArgsEncoder {
	if a.err == nil {
		a.err = a.enc.WriteUint64(v, bin.LE)
	}
	return a
}

func (a *ArgsEncoder) I64(v int64) *ArgsEncoder {
	if a.err == nil {
		a.err = a.enc.WriteInt64(v, bin.LE)
	}
	return a
}

func (a *ArgsEncoder) Bool(v bool) *ArgsEncoder {
	if a.err == nil {
		a.err = a.enc.WriteBool(v)
	}
	return a
}

// Str writes a Borsh string: u32 length then the bytes.
func (a *ArgsEncoder) Str(s string) *ArgsEncoder {
	if a.err == nil {
		a.err = a.enc.WriteUint32(uint32(len(s)), bin.LE)
	}
	if a.err == nil {
		a.err = a.enc.WriteBytes([]byte(s), false)
	}
	return a
}

// Bytes returns the encoded payload.
func (a *ArgsEncoder) Bytes() ([]byte, error) {
	if a.err != nil {
		return nil, a.err
	}
	return a.buf.Bytes(), nil
}

// ArgsDecoder reads Borsh arguments after a discriminator. Used by the
// in-memory ledger and by tests that inspect built instructions.
type ArgsDecoder struct {
	dec *bin.Decoder
	err error
}

// ReadArgs checks d and positions a decoder after it.
func ReadArgs(data []byte, d Discriminator) (*ArgsDecoder, bool) {
	if !HasDiscriminator(data, d) {
		return nil, false
	}
	return &ArgsDecoder{dec: bin.NewBorshDecoder(data[len(d):])}, true
}

func (a *ArgsDecoder) U64() uint64 {
	if a.err != nil {
		return 0
	}
	var v uint64
	v, a.err = a.dec.ReadUint64(bin.LE)
	return v
}

func (a *ArgsDecoder) I64() int64 {
	if a.err != nil {
		return 0
	}
	var v int64
	v, a.err = a.dec.ReadInt64(bin.LE)
	return v
}

func (a *ArgsDecoder) Bool() bool {
	if a.err != nil {
		return false
	}
	var v bool
	v, a.err = a.dec.ReadBool()
	return v
}

func (a *ArgsDecoder) Str() string {
	if a.err != nil {
		return ""
	}
	var n uint32
	n, a.err = a.dec.ReadUint32(bin.LE)
	if a.err != nil {
		return ""
	}
	var b []byte
	b, a.err = a.dec.ReadNBytes(int(n))
	return string(b)
}

func (a *ArgsDecoder) Err() error { return a.err }

// FindPDA derives a program address, returning the bump.
func FindPDA(program solana.PublicKey, seeds ...[]byte) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(seeds, program)
}

// I64Seed encodes v as an 8-byte little-endian seed.
func I64Seed(v int64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(v))
	return b
}
