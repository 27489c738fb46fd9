package main

import (
	"bytes"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwttoken "srwa/internal/jwt_token"
	ordermodels "srwa/internal/orders/models"
	orderstore "srwa/internal/orders/store"
)

func listCommand(t *testing.T, args ...string) (orderstore.Filter, error) {
	t.Helper()
	list := ordersCmd()
	cmd, _, err := list.Find([]string{"list"})
	require.NoError(t, err)
	require.NoError(t, cmd.ParseFlags(args))
	return orderFilter(cmd)
}

func TestOrderFilterDefaults(t *testing.T) {
	filter, err := listCommand(t)
	require.NoError(t, err)
	assert.Nil(t, filter.Status)
	assert.Nil(t, filter.Buyer)
	assert.Equal(t, orderstore.DefaultLimit, filter.Limit)
}

func TestOrderFilterFlags(t *testing.T) {
	buyer := solana.NewWallet().PublicKey()
	filter, err := listCommand(t, "--status", "approved", "--buyer", buyer.String(), "--limit", "5")
	require.NoError(t, err)
	require.NotNil(t, filter.Status)
	assert.Equal(t, ordermodels.StatusApproved, *filter.Status)
	assert.Equal(t, buyer, *filter.Buyer)
	assert.Equal(t, 5, filter.Limit)
}

func TestOrderFilterRejectsBadValues(t *testing.T) {
	_, err := listCommand(t, "--status", "shipped")
	assert.Error(t, err)

	_, err = listCommand(t, "--mint", "not-a-key")
	assert.Error(t, err)
}

func TestTokenIssuesValidAdminToken(t *testing.T) {
	t.Setenv("SRWA_PURCHASE_ORDER_PROGRAM", solana.NewWallet().PublicKey().String())
	t.Setenv("SRWA_COMPLIANCE_PROGRAM", solana.NewWallet().PublicKey().String())
	t.Setenv("SRWA_JWT_SIGNING_KEY", "test-key")

	cmd := tokenCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"ops"})
	require.NoError(t, cmd.Execute())

	claims, err := jwttoken.NewJWTService("test-key", "srwa").ValidateToken(string(bytes.TrimSpace(out.Bytes())))
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
	assert.Equal(t, jwttoken.RoleAdmin, claims.Role)
}

func TestTokenRejectsUnknownRole(t *testing.T) {
	t.Setenv("SRWA_PURCHASE_ORDER_PROGRAM", solana.NewWallet().PublicKey().String())
	t.Setenv("SRWA_COMPLIANCE_PROGRAM", solana.NewWallet().PublicKey().String())

	cmd := tokenCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"ops", "--role", "root"})
	assert.Error(t, cmd.Execute())
}
