package chain

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Token-2022 account layout offsets.
const (
	mintBaseLen        = 82
	mintDecimalsOffset = 44
	mintInitOffset     = 45

	TokenAccountLen     = 165
	tokenOwnerOffset    = 32
	tokenAmountOffset   = 64
	accountTypeOffset   = 165
	extensionsOffset    = 166
	accountTypeMint     = 1
	accountTypeAccount  = 2
	tlvHeaderLen        = 4
	transferHookExtType = 14
	transferHookExtLen  = 64

	instructionTransferChecked = 12
	ataCreateIdempotent        = 1
)

// ErrMalformedAccount is returned when account bytes do not match the expected layout.
var ErrMalformedAccount = errors.New("malformed account data")

// Mint is the subset of Token-2022 mint state the services read.
type Mint struct {
	Decimals     uint8
	Initialized  bool
	TransferHook *TransferHook
}

// TransferHook is the TransferHook mint extension.
type TransferHook struct {
	Authority solana.PublicKey
	Program   solana.PublicKey
}

// ParseMint decodes a Token-2022 mint including its extension TLV area.
func ParseMint(data []byte) (*Mint, error) {
	if len(data) < mintBaseLen {
		return nil, fmt.Errorf("mint: %w: %d bytes", ErrMalformedAccount, len(data))
	}
	m := &Mint{
		Decimals:    data[mintDecimalsOffset],
		Initialized: data[mintInitOffset] == 1,
	}
	if len(data) <= accountTypeOffset {
		return m, nil
	}
	if data[accountTypeOffset] != accountTypeMint {
		return nil, fmt.Errorf("mint: %w: account type %d", ErrMalformedAccount, data[accountTypeOffset])
	}

	tlv := data[extensionsOffset:]
	for len(tlv) >= tlvHeaderLen {
		typ := binary.LittleEndian.Uint16(tlv[0:2])
		n := int(binary.LittleEndian.Uint16(tlv[2:4]))
		if typ == 0 && n == 0 {
			break
		}
		if len(tlv) < tlvHeaderLen+n {
			return nil, fmt.Errorf("mint extension %d: %w", typ, ErrMalformedAccount)
		}
		value := tlv[tlvHeaderLen : tlvHeaderLen+n]
		if typ == transferHookExtType {
			if n != transferHookExtLen {
				return nil, fmt.Errorf("transfer hook extension: %w", ErrMalformedAccount)
			}
			hook := &TransferHook{
				Authority: solana.PublicKeyFromBytes(value[:32]),
				Program:   solana.PublicKeyFromBytes(value[32:64]),
			}
			if !hook.Program.IsZero() {
				m.TransferHook = hook
			}
		}
		tlv = tlv[tlvHeaderLen+n:]
	}
	return m, nil
}

// EncodeMint builds Token-2022 mint bytes; hook is optional.
func EncodeMint(authority solana.PublicKey, decimals uint8, hook *TransferHook) []byte {
	size := mintBaseLen
	if hook != nil {
		size = extensionsOffset + tlvHeaderLen + transferHookExtLen
	}
	data := make([]byte, size)
	binary.LittleEndian.PutUint32(data[0:4], 1)
	copy(data[4:36], authority[:])
	data[mintDecimalsOffset] = decimals
	data[mintInitOffset] = 1
	if hook != nil {
		data[accountTypeOffset] = accountTypeMint
		ext := data[extensionsOffset:]
		binary.LittleEndian.PutUint16(ext[0:2], transferHookExtType)
		binary.LittleEndian.PutUint16(ext[2:4], transferHookExtLen)
		copy(ext[4:36], hook.Authority[:])
		copy(ext[36:68], hook.Program[:])
	}
	return data
}

// TokenAccount is the subset of token account state the services read.
type TokenAccount struct {
	Mint   solana.PublicKey
	Owner  solana.PublicKey
	Amount uint64
}

// ParseTokenAccount decodes the base token account layout.
func ParseTokenAccount(data []byte) (*TokenAccount, error) {
	if len(data) < TokenAccountLen {
		return nil, fmt.Errorf("token account: %w: %d bytes", ErrMalformedAccount, len(data))
	}
	return &TokenAccount{
		Mint:   solana.PublicKeyFromBytes(data[0:32]),
		Owner:  solana.PublicKeyFromBytes(data[tokenOwnerOffset : tokenOwnerOffset+32]),
		Amount: binary.LittleEndian.Uint64(data[tokenAmountOffset : tokenAmountOffset+8]),
	}, nil
}

// EncodeTokenAccount builds an initialized token account.
func EncodeTokenAccount(acct TokenAccount) []byte {
	data := make([]byte, TokenAccountLen+1)
	copy(data[0:32], acct.Mint[:])
	copy(data[tokenOwnerOffset:], acct.Owner[:])
	binary.LittleEndian.PutUint64(data[tokenAmountOffset:], acct.Amount)
	data[108] = 1 // initialized
	data[accountTypeOffset] = accountTypeAccount
	return data
}

// SetTokenAmount rewrites the amount field in place.
func SetTokenAmount(data []byte, amount uint64) {
	binary.LittleEndian.PutUint64(data[tokenAmountOffset:tokenAmountOffset+8], amount)
}

// AssociatedTokenAddress derives the Token-2022 associated token account of owner for mint.
func AssociatedTokenAddress(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{owner[:], Token2022ProgramID[:], mint[:]},
		AssociatedTokenProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive associated token account: %w", err)
	}
	return addr, nil
}

// NewTransferChecked builds the base Token-2022 transfer_checked instruction
// with exactly source, mint, destination and authority.
func NewTransferChecked(source, mint, destination, authority solana.PublicKey, amount uint64, decimals uint8) *solana.GenericInstruction {
	data := make([]byte, 10)
	data[0] = instructionTransferChecked
	binary.LittleEndian.PutUint64(data[1:9], amount)
	data[9] = decimals
	return solana.NewInstruction(Token2022ProgramID, solana.AccountMetaSlice{
		solana.Meta(source).WRITE(),
		solana.Meta(mint),
		solana.Meta(destination).WRITE(),
		solana.Meta(authority).SIGNER(),
	}, data)
}

// DecodeTransferChecked returns amount and decimals from transfer_checked data.
func DecodeTransferChecked(data []byte) (amount uint64, decimals uint8, ok bool) {
	if len(data) != 10 || data[0] != instructionTransferChecked {
		return 0, 0, false
	}
	return binary.LittleEndian.Uint64(data[1:9]), data[9], true
}

// NewCreateAssociatedTokenAccount builds an idempotent ATA creation for owner.
func NewCreateAssociatedTokenAccount(payer, owner, mint solana.PublicKey) (*solana.GenericInstruction, error) {
	ata, err := AssociatedTokenAddress(owner, mint)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(AssociatedTokenProgramID, solana.AccountMetaSlice{
		solana.Meta(payer).WRITE().SIGNER(),
		solana.Meta(ata).WRITE(),
		solana.Meta(owner),
		solana.Meta(mint),
		solana.Meta(SystemProgramID),
		solana.Meta(Token2022ProgramID),
	}, []byte{ataCreateIdempotent}), nil
}

// IsCreateIdempotent reports whether data is an idempotent ATA creation.
func IsCreateIdempotent(data []byte) bool {
	return len(data) == 1 && data[0] == ataCreateIdempotent
}
