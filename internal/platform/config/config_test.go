package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	orderProgram      = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"
	complianceProgram = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("SRWA_PURCHASE_ORDER_PROGRAM", orderProgram)
	t.Setenv("SRWA_COMPLIANCE_PROGRAM", complianceProgram)

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.True(t, cfg.Compliance.AutoRegister)
	assert.Equal(t, 30*time.Second, cfg.Chain.ConfirmTimeout)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, orderProgram, cfg.Chain.PurchaseOrderProgram.String())
	assert.Equal(t, 3*time.Minute, cfg.Distribution.LeaseTTL)
	assert.GreaterOrEqual(t, cfg.Distribution.LeaseTTL, MinLeaseTTL(cfg.Chain.ConfirmTimeout))
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("SRWA_PURCHASE_ORDER_PROGRAM", orderProgram)
	t.Setenv("SRWA_COMPLIANCE_PROGRAM", complianceProgram)
	t.Setenv("SRWA_COMPLIANCE_AUTO_REGISTER", "false")
	t.Setenv("SRWA_CONFIRM_TIMEOUT", "5s")
	t.Setenv("SRWA_KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("SRWA_BUYER_KEYPAIRS", "/keys/a.json,/keys/b.json")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.False(t, cfg.Compliance.AutoRegister)
	assert.Equal(t, 5*time.Second, cfg.Chain.ConfirmTimeout)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, []string{"/keys/a.json", "/keys/b.json"}, cfg.Chain.BuyerKeypairPaths)
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	t.Setenv("SRWA_PURCHASE_ORDER_PROGRAM", "not-a-key")
	t.Setenv("SRWA_COMPLIANCE_PROGRAM", complianceProgram)
	_, err := FromEnv()
	assert.Error(t, err)

	t.Setenv("SRWA_PURCHASE_ORDER_PROGRAM", orderProgram)
	t.Setenv("SRWA_CONFIRM_TIMEOUT", "soon")
	_, err = FromEnv()
	assert.Error(t, err)
}

func TestFromEnvRejectsLeaseShorterThanConfirmations(t *testing.T) {
	t.Setenv("SRWA_PURCHASE_ORDER_PROGRAM", orderProgram)
	t.Setenv("SRWA_COMPLIANCE_PROGRAM", complianceProgram)

	t.Setenv("SRWA_DISTRIBUTION_LEASE_TTL", "2m")
	_, err := FromEnv()
	require.Error(t, err, "four 30s confirmation waits fill a 2m lease")
	assert.Contains(t, err.Error(), "SRWA_DISTRIBUTION_LEASE_TTL")

	t.Setenv("SRWA_CONFIRM_TIMEOUT", "10s")
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.Distribution.LeaseTTL)
}

func TestMinLeaseTTL(t *testing.T) {
	assert.Equal(t, 150*time.Second, MinLeaseTTL(30*time.Second))
	assert.Equal(t, 30*time.Second, MinLeaseTTL(0))
}
