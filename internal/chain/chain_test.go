package chain

import (
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstructionDiscriminator(t *testing.T) {
	// Anchor's discriminator for "initialize" is well known.
	want := Discriminator{175, 175, 109, 31, 13, 152, 155, 237}
	assert.Equal(t, want, InstructionDiscriminator("initialize"))
	assert.NotEqual(t, InstructionDiscriminator("initialize"), AccountDiscriminator("initialize"))
}

func TestArgsRoundTrip(t *testing.T) {
	d := InstructionDiscriminator("reject_purchase_order")
	data, err := NewArgs(d).U64(50).I64(-7).Bool(true).Str("missing docs").Bytes()
	require.NoError(t, err)

	args, ok := ReadArgs(data, d)
	require.True(t, ok)
	assert.Equal(t, uint64(50), args.U64())
	assert.Equal(t, int64(-7), args.I64())
	assert.True(t, args.Bool())
	assert.Equal(t, "missing docs", args.Str())
	require.NoError(t, args.Err())

	_, ok = ReadArgs(data, InstructionDiscriminator("mark_as_approved"))
	assert.False(t, ok)
}

func TestParseMint(t *testing.T) {
	authority := solana.NewWallet().PublicKey()
	hookProgram := solana.NewWallet().PublicKey()

	t.Run("with transfer hook", func(t *testing.T) {
		data := EncodeMint(authority, 6, &TransferHook{Authority: authority, Program: hookProgram})
		mint, err := ParseMint(data)
		require.NoError(t, err)
		assert.Equal(t, uint8(6), mint.Decimals)
		require.NotNil(t, mint.TransferHook)
		assert.Equal(t, hookProgram, mint.TransferHook.Program)
	})

	t.Run("without extensions", func(t *testing.T) {
		mint, err := ParseMint(EncodeMint(authority, 9, nil))
		require.NoError(t, err)
		assert.Equal(t, uint8(9), mint.Decimals)
		assert.Nil(t, mint.TransferHook)
	})

	t.Run("zero hook program means no hook", func(t *testing.T) {
		mint, err := ParseMint(EncodeMint(authority, 0, &TransferHook{Authority: authority}))
		require.NoError(t, err)
		assert.Nil(t, mint.TransferHook)
	})

	t.Run("short data", func(t *testing.T) {
		_, err := ParseMint(make([]byte, 10))
		assert.ErrorIs(t, err, ErrMalformedAccount)
	})
}

func TestTokenAccountRoundTrip(t *testing.T) {
	in := TokenAccount{
		Mint:   solana.NewWallet().PublicKey(),
		Owner:  solana.NewWallet().PublicKey(),
		Amount: 1_000_000,
	}
	data := EncodeTokenAccount(in)
	out, err := ParseTokenAccount(data)
	require.NoError(t, err)
	assert.Equal(t, in, *out)

	SetTokenAmount(data, 5)
	out, err = ParseTokenAccount(data)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), out.Amount)
}

func TestAssociatedTokenAddressIsDeterministic(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()

	a, err := AssociatedTokenAddress(owner, mint)
	require.NoError(t, err)
	b, err := AssociatedTokenAddress(owner, mint)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	other, err := AssociatedTokenAddress(solana.NewWallet().PublicKey(), mint)
	require.NoError(t, err)
	assert.NotEqual(t, a, other)
}

func TestTransferCheckedLayout(t *testing.T) {
	src, mint, dst, auth := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(),
		solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()
	ix := NewTransferChecked(src, mint, dst, auth, 50_000_000, 6)

	accts := ix.Accounts()
	require.Len(t, accts, 4)
	assert.Equal(t, src, accts[0].PublicKey)
	assert.True(t, accts[0].IsWritable)
	assert.Equal(t, mint, accts[1].PublicKey)
	assert.False(t, accts[1].IsWritable)
	assert.True(t, accts[3].IsSigner)

	data, err := ix.Data()
	require.NoError(t, err)
	amount, decimals, ok := DecodeTransferChecked(data)
	require.True(t, ok)
	assert.Equal(t, uint64(50_000_000), amount)
	assert.Equal(t, uint8(6), decimals)
}

func TestClassify(t *testing.T) {
	hook := solana.NewWallet().PublicKey()
	custom := func(v uint32) *uint32 { return &v }

	t.Run("hook failure is attributed from logs", func(t *testing.T) {
		txErr := &TxError{
			Instruction: 0,
			Program:     Token2022ProgramID,
			Custom:      custom(6000),
			Logs: []string{
				"Program " + Token2022ProgramID.String() + " invoke [1]",
				"Program " + hook.String() + " invoke [2]",
				"Program log: AnchorError occurred. Error Code: KycNotCompleted. Error Number: 6000. Error Message: Destination owner is not compliant.",
				"Program " + hook.String() + " failed: custom program error: 0x1770",
				"Program " + Token2022ProgramID.String() + " failed: custom program error: 0x1770",
			},
		}
		f := Classify(txErr, hook)
		assert.Equal(t, FailureHookRejected, f.Kind)
		assert.Equal(t, "Destination owner is not compliant", f.Reason)
	})

	t.Run("token insufficient funds", func(t *testing.T) {
		txErr := &TxError{Program: Token2022ProgramID, Custom: custom(1)}
		assert.Equal(t, FailureInsufficientFunds, Classify(txErr, hook).Kind)
	})

	t.Run("garbage logs degrade to unclassified", func(t *testing.T) {
		txErr := &TxError{
			Program: solana.NewWallet().PublicKey(),
			Kind:    "InvalidAccountData",
			Logs:    []string{"Program", "Program  failed", "Program not-a-key failed: x", ""},
		}
		f := Classify(txErr, hook)
		assert.Equal(t, FailureUnclassified, f.Kind)
		assert.NotEmpty(t, f.Reason)
	})

	t.Run("nil error", func(t *testing.T) {
		assert.Equal(t, FailureUnclassified, Classify(nil, hook).Kind)
	})
}

func TestPendingErrorUnwraps(t *testing.T) {
	err := error(&PendingError{})
	assert.True(t, errors.Is(err, ErrConfirmationTimeout))
	var pending *PendingError
	assert.True(t, errors.As(err, &pending))
}

func TestExpired(t *testing.T) {
	assert.False(t, Expired(100, 99))
	assert.False(t, Expired(100, 100), "the last valid height itself can still include the transaction")
	assert.True(t, Expired(100, 101))
	assert.False(t, Expired(0, 1_000_000), "unknown expiry never lapses")
}
