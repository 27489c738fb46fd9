package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
	JWTIssuer     string
}

// Chain is the cluster and keys the services act with.
type Chain struct {
	RPCURL               string
	KeypairPath          string
	BuyerKeypairPaths    []string
	PurchaseOrderProgram solana.PublicKey
	ComplianceProgram    solana.PublicKey
	ConfirmTimeout       time.Duration
	PollInterval         time.Duration
}

// RedisConfig configures the mint-state cache and distribution journal.
// An empty URL selects the in-memory implementations.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Database configures the order index and audit outbox. An empty URL keeps
// both in memory.
type Database struct {
	URL string
}

// Kafka configures the audit outbox relay. No brokers disables the relay.
type Kafka struct {
	Brokers    []string
	AuditTopic string
}

// Compliance controls the registrar.
type Compliance struct {
	AutoRegister bool
}

// A distribution submits up to four transactions (two registrations, the
// recipient token account and the transfer) before its outcome is journaled,
// each waiting up to ConfirmTimeout. The lease must outlast all of them.
const (
	submissionsPerDistribution = 4
	leaseMargin                = 30 * time.Second
)

// Distribution controls the executor and its journal.
type Distribution struct {
	LeaseTTL     time.Duration
	MintCacheTTL time.Duration
}

// Config is the full runtime configuration.
type Config struct {
	Server       Server
	Chain        Chain
	Redis        RedisConfig
	Database     Database
	Kafka        Kafka
	Compliance   Compliance
	Distribution Distribution
}

// FromEnv builds the config from SRWA_* environment variables so main stays lean.
func FromEnv() (Config, error) {
	var cfg Config
	var err error

	cfg.Server = Server{
		Addr:          getenv("SRWA_ADDR", ":8080"),
		JWTSigningKey: getenv("SRWA_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		JWTIssuer:     getenv("SRWA_JWT_ISSUER", "srwa"),
	}

	cfg.Chain.RPCURL = getenv("SRWA_RPC_URL", "http://127.0.0.1:8899")
	cfg.Chain.KeypairPath = getenv("SRWA_KEYPAIR", "")
	if paths := os.Getenv("SRWA_BUYER_KEYPAIRS"); paths != "" {
		cfg.Chain.BuyerKeypairPaths = strings.Split(paths, ",")
	}
	if cfg.Chain.PurchaseOrderProgram, err = pubkey("SRWA_PURCHASE_ORDER_PROGRAM"); err != nil {
		return Config{}, err
	}
	if cfg.Chain.ComplianceProgram, err = pubkey("SRWA_COMPLIANCE_PROGRAM"); err != nil {
		return Config{}, err
	}
	if cfg.Chain.ConfirmTimeout, err = duration("SRWA_CONFIRM_TIMEOUT", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.Chain.PollInterval, err = duration("SRWA_POLL_INTERVAL", 500*time.Millisecond); err != nil {
		return Config{}, err
	}

	cfg.Redis = RedisConfig{
		URL:          os.Getenv("SRWA_REDIS_URL"),
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
	cfg.Database.URL = os.Getenv("SRWA_DATABASE_URL")

	if brokers := os.Getenv("SRWA_KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}
	cfg.Kafka.AuditTopic = getenv("SRWA_KAFKA_AUDIT_TOPIC", "srwa.audit")

	if cfg.Compliance.AutoRegister, err = boolean("SRWA_COMPLIANCE_AUTO_REGISTER", true); err != nil {
		return Config{}, err
	}
	if cfg.Distribution.LeaseTTL, err = duration("SRWA_DISTRIBUTION_LEASE_TTL", 3*time.Minute); err != nil {
		return Config{}, err
	}
	if floor := MinLeaseTTL(cfg.Chain.ConfirmTimeout); cfg.Distribution.LeaseTTL < floor {
		return Config{}, fmt.Errorf("SRWA_DISTRIBUTION_LEASE_TTL %s must be at least %s for SRWA_CONFIRM_TIMEOUT %s",
			cfg.Distribution.LeaseTTL, floor, cfg.Chain.ConfirmTimeout)
	}
	if cfg.Distribution.MintCacheTTL, err = duration("SRWA_MINT_CACHE_TTL", 5*time.Minute); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// MinLeaseTTL is the shortest distribution lease that covers every
// confirmation wait of one distribution.
func MinLeaseTTL(confirmTimeout time.Duration) time.Duration {
	return submissionsPerDistribution*confirmTimeout + leaseMargin
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func pubkey(key string) (solana.PublicKey, error) {
	v := os.Getenv(key)
	if v == "" {
		return solana.PublicKey{}, fmt.Errorf("%s is required", key)
	}
	pk, err := solana.PublicKeyFromBase58(v)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%s: %w", key, err)
	}
	return pk, nil
}

func duration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func boolean(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
