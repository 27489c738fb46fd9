package metalist

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// ErrUnresolved is returned when any descriptor cannot be resolved.
var ErrUnresolved = errors.New("extra account could not be resolved")

// AccountDataFunc returns the data of an account, or an error when it is absent.
type AccountDataFunc func(solana.PublicKey) ([]byte, error)

// Resolve turns descriptors into account metas in stored order.
//
// execAccounts is the hook's Execute account prefix (source, mint,
// destination, authority, meta list). Each resolved account joins the index
// space, so a descriptor may reference any account before it but none after.
// Either every descriptor resolves or an error wrapping ErrUnresolved is returned.
func Resolve(list []Descriptor, hookProgram solana.PublicKey, execAccounts []*solana.AccountMeta, executeData []byte, accountData AccountDataFunc) ([]*solana.AccountMeta, error) {
	space := make([]*solana.AccountMeta, len(execAccounts), len(execAccounts)+len(list))
	copy(space, execAccounts)

	resolved := make([]*solana.AccountMeta, 0, len(list))
	for i, d := range list {
		key, err := resolveOne(d, hookProgram, space, executeData, accountData)
		if err != nil {
			return nil, fmt.Errorf("descriptor %d: %w: %w", i, ErrUnresolved, err)
		}
		meta := &solana.AccountMeta{PublicKey: key, IsSigner: d.IsSigner, IsWritable: d.IsWritable}
		space = append(space, meta)
		resolved = append(resolved, meta)
	}
	return resolved, nil
}

func resolveOne(d Descriptor, hookProgram solana.PublicKey, space []*solana.AccountMeta, executeData []byte, accountData AccountDataFunc) (solana.PublicKey, error) {
	switch {
	case d.Discriminator == DiscLiteral:
		return solana.PublicKeyFromBytes(d.AddressConfig[:]), nil
	case d.Discriminator == DiscPDA:
		return derive(d.AddressConfig, hookProgram, space, executeData, accountData)
	case d.Discriminator == DiscPubkeyData:
		return pubkeyFromData(d.AddressConfig, space, executeData, accountData)
	case d.Discriminator >= DiscExternalBase:
		idx := int(d.Discriminator - DiscExternalBase)
		if idx >= len(space) {
			return solana.PublicKey{}, fmt.Errorf("program index %d not yet resolved", idx)
		}
		return derive(d.AddressConfig, space[idx].PublicKey, space, executeData, accountData)
	default:
		return solana.PublicKey{}, fmt.Errorf("unknown discriminator %d", d.Discriminator)
	}
}

func derive(cfg [32]byte, program solana.PublicKey, space []*solana.AccountMeta, executeData []byte, accountData AccountDataFunc) (solana.PublicKey, error) {
	seeds, err := UnpackSeeds(cfg)
	if err != nil {
		return solana.PublicKey{}, err
	}
	raw := make([][]byte, 0, len(seeds))
	for _, s := range seeds {
		b, err := seedBytes(s, space, executeData, accountData)
		if err != nil {
			return solana.PublicKey{}, err
		}
		raw = append(raw, b)
	}
	addr, _, err := solana.FindProgramAddress(raw, program)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive address: %w", err)
	}
	return addr, nil
}

func seedBytes(s Seed, space []*solana.AccountMeta, executeData []byte, accountData AccountDataFunc) ([]byte, error) {
	switch s.Kind {
	case SeedLiteral:
		return s.Bytes, nil
	case SeedInstructionData:
		return slice(executeData, int(s.Index), int(s.Length), "instruction data")
	case SeedAccountKey:
		if int(s.Index) >= len(space) {
			return nil, fmt.Errorf("account index %d not yet resolved", s.Index)
		}
		key := space[s.Index].PublicKey
		return key[:], nil
	case SeedAccountData:
		if int(s.Index) >= len(space) {
			return nil, fmt.Errorf("account index %d not yet resolved", s.Index)
		}
		data, err := accountData(space[s.Index].PublicKey)
		if err != nil {
			return nil, fmt.Errorf("read account %d: %w", s.Index, err)
		}
		return slice(data, int(s.Offset), int(s.Length), "account data")
	default:
		return nil, fmt.Errorf("unknown seed kind %d", s.Kind)
	}
}

func pubkeyFromData(cfg [32]byte, space []*solana.AccountMeta, executeData []byte, accountData AccountDataFunc) (solana.PublicKey, error) {
	switch cfg[0] {
	case pubkeyFromInstructionData:
		b, err := slice(executeData, int(cfg[1]), 32, "instruction data")
		if err != nil {
			return solana.PublicKey{}, err
		}
		return solana.PublicKeyFromBytes(b), nil
	case pubkeyFromAccountData:
		idx := int(cfg[1])
		if idx >= len(space) {
			return solana.PublicKey{}, fmt.Errorf("account index %d not yet resolved", idx)
		}
		data, err := accountData(space[idx].PublicKey)
		if err != nil {
			return solana.PublicKey{}, fmt.Errorf("read account %d: %w", idx, err)
		}
		b, err := slice(data, int(cfg[2]), 32, "account data")
		if err != nil {
			return solana.PublicKey{}, err
		}
		return solana.PublicKeyFromBytes(b), nil
	default:
		return solana.PublicKey{}, fmt.Errorf("unknown pubkey data kind %d", cfg[0])
	}
}

func slice(b []byte, offset, length int, what string) ([]byte, error) {
	if offset+length > len(b) {
		return nil, fmt.Errorf("%s range %d+%d exceeds %d bytes", what, offset, length, len(b))
	}
	return b[offset : offset+length], nil
}
