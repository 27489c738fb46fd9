package metalist

import (
	"fmt"
)

// SeedKind tags a packed seed.
type SeedKind uint8

const (
	seedEnd SeedKind = iota
	SeedLiteral
	SeedInstructionData
	SeedAccountKey
	SeedAccountData
)

const (
	pubkeyFromInstructionData uint8 = 1
	pubkeyFromAccountData     uint8 = 2
)

// Seed is one component of a PDA descriptor.
type Seed struct {
	Kind SeedKind
	// Bytes is the literal value for SeedLiteral.
	Bytes []byte
	// Index is the account index for key and data seeds, or the byte offset
	// into the instruction data for SeedInstructionData.
	Index uint8
	// Offset into account data for SeedAccountData.
	Offset uint8
	// Length of the slice for data seeds.
	Length uint8
}

func LiteralSeed(b []byte) Seed      { return Seed{Kind: SeedLiteral, Bytes: b} }
func AccountKeySeed(index uint8) Seed { return Seed{Kind: SeedAccountKey, Index: index} }

func InstructionDataSeed(offset, length uint8) Seed {
	return Seed{Kind: SeedInstructionData, Index: offset, Length: length}
}

func AccountDataSeed(index, offset, length uint8) Seed {
	return Seed{Kind: SeedAccountData, Index: index, Offset: offset, Length: length}
}

// PackSeeds writes seeds into a 32-byte address config.
func PackSeeds(seeds []Seed) ([32]byte, error) {
	var cfg [32]byte
	pos := 0
	put := func(b ...byte) error {
		if pos+len(b) > len(cfg) {
			return fmt.Errorf("%w: seeds exceed 32 bytes", ErrMalformed)
		}
		copy(cfg[pos:], b)
		pos += len(b)
		return nil
	}
	for _, s := range seeds {
		var err error
		switch s.Kind {
		case SeedLiteral:
			if len(s.Bytes) > 255 {
				return cfg, fmt.Errorf("%w: literal seed too long", ErrMalformed)
			}
			err = put(append([]byte{byte(SeedLiteral), byte(len(s.Bytes))}, s.Bytes...)...)
		case SeedInstructionData:
			err = put(byte(SeedInstructionData), s.Index, s.Length)
		case SeedAccountKey:
			err = put(byte(SeedAccountKey), s.Index)
		case SeedAccountData:
			err = put(byte(SeedAccountData), s.Index, s.Offset, s.Length)
		default:
			err = fmt.Errorf("%w: unknown seed kind %d", ErrMalformed, s.Kind)
		}
		if err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// UnpackSeeds reads seeds from an address config until the terminator.
func UnpackSeeds(cfg [32]byte) ([]Seed, error) {
	var seeds []Seed
	b := cfg[:]
	for len(b) > 0 {
		kind := SeedKind(b[0])
		switch kind {
		case seedEnd:
			return seeds, nil
		case SeedLiteral:
			if len(b) < 2 || len(b) < 2+int(b[1]) {
				return nil, fmt.Errorf("%w: truncated literal seed", ErrMalformed)
			}
			n := int(b[1])
			seeds = append(seeds, Seed{Kind: SeedLiteral, Bytes: append([]byte(nil), b[2:2+n]...)})
			b = b[2+n:]
		case SeedInstructionData:
			if len(b) < 3 {
				return nil, fmt.Errorf("%w: truncated instruction data seed", ErrMalformed)
			}
			seeds = append(seeds, Seed{Kind: SeedInstructionData, Index: b[1], Length: b[2]})
			b = b[3:]
		case SeedAccountKey:
			if len(b) < 2 {
				return nil, fmt.Errorf("%w: truncated account key seed", ErrMalformed)
			}
			seeds = append(seeds, Seed{Kind: SeedAccountKey, Index: b[1]})
			b = b[2:]
		case SeedAccountData:
			if len(b) < 4 {
				return nil, fmt.Errorf("%w: truncated account data seed", ErrMalformed)
			}
			seeds = append(seeds, Seed{Kind: SeedAccountData, Index: b[1], Offset: b[2], Length: b[3]})
			b = b[4:]
		default:
			return nil, fmt.Errorf("%w: unknown seed kind %d", ErrMalformed, kind)
		}
	}
	return seeds, nil
}
