package models

import (
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "srwa/pkg/domain-errors"
)

func TestParseAmount(t *testing.T) {
	valid := []struct {
		amount   string
		decimals uint8
		want     uint64
	}{
		{"50", 6, 50_000_000},
		{"0.25", 6, 250_000},
		{"1.500", 1, 15},
		{"7", 0, 7},
		{"18446744073709551615", 0, ^uint64(0)},
		{" 3 ", 2, 300},
	}
	for _, tc := range valid {
		got, err := ParseAmount(tc.amount, tc.decimals)
		require.NoError(t, err, tc.amount)
		assert.Equal(t, tc.want, got, tc.amount)
	}

	invalid := []struct {
		amount   string
		decimals uint8
	}{
		{"", 6},
		{"0", 6},
		{"0.0000001", 6},
		{"-1", 6},
		{"1/3", 6},
		{"1e3", 6},
		{"1.2.3", 6},
		{"18446744073709551616", 0},
		{"18446744073709.551616", 6},
	}
	for _, tc := range invalid {
		_, err := ParseAmount(tc.amount, tc.decimals)
		require.Error(t, err, tc.amount)
		assert.True(t, dErrors.Is(err, dErrors.CodeInvalidAmount), tc.amount)
	}
}

func TestDefaultKey(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	recipient := solana.NewWallet().PublicKey()

	key := DefaultKey(mint, recipient, 10)
	assert.Len(t, key, 64)
	assert.Equal(t, key, DefaultKey(mint, recipient, 10))
	assert.NotEqual(t, key, DefaultKey(mint, recipient, 11))
	assert.NotEqual(t, key, DefaultKey(recipient, mint, 10))
}

func TestLeaseHeld(t *testing.T) {
	now := time.Now()
	var missing *Entry
	assert.False(t, missing.LeaseHeld(now))
	assert.True(t, (&Entry{State: StateInFlight, LeaseExpiresAt: now.Add(time.Second)}).LeaseHeld(now))
	assert.False(t, (&Entry{State: StateInFlight, LeaseExpiresAt: now}).LeaseHeld(now))
	assert.False(t, (&Entry{State: StatePending, LeaseExpiresAt: now.Add(time.Second)}).LeaseHeld(now))
}
