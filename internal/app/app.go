// Package app builds the services from configuration. The server and the
// operator CLI share it so both act with the same keys and stores.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gagliardetto/solana-go"

	"srwa/internal/chain/rpc"
	"srwa/internal/compliance"
	compliancemetrics "srwa/internal/compliance/metrics"
	complianceservice "srwa/internal/compliance/service"
	"srwa/internal/distribution"
	distributionjournal "srwa/internal/distribution/journal"
	distributionmetrics "srwa/internal/distribution/metrics"
	distributionmodels "srwa/internal/distribution/models"
	distributionservice "srwa/internal/distribution/service"
	"srwa/internal/hook"
	hookmetrics "srwa/internal/hook/metrics"
	hookservice "srwa/internal/hook/service"
	hookstore "srwa/internal/hook/store"
	"srwa/internal/orders"
	ordermetrics "srwa/internal/orders/metrics"
	orderservice "srwa/internal/orders/service"
	orderstore "srwa/internal/orders/store"
	"srwa/internal/platform/config"
	"srwa/internal/platform/kafka"
	"srwa/internal/platform/postgres"
	"srwa/internal/platform/redis"
	"srwa/migrations"
	"srwa/pkg/platform/audit"
	"srwa/pkg/platform/audit/publisher"
	auditmemory "srwa/pkg/platform/audit/store/memory"
	auditpostgres "srwa/pkg/platform/audit/store/postgres"
	"srwa/pkg/platform/audit/worker"
	"srwa/pkg/platform/httputil"
)

type journal interface {
	distributionservice.Journal
	Get(ctx context.Context, key string) (*distributionmodels.Entry, error)
}

// App holds the wired services and the resources Close releases.
type App struct {
	Custodian solana.PublicKey

	Compliance   *compliance.Service
	Hooks        *hook.Resolver
	Distribution *distribution.Executor
	Orders       *orders.Service

	// Relay is nil unless both a database and Kafka brokers are configured.
	Relay *worker.Relay

	db       *sql.DB
	redis    *redis.Client
	producer *kafka.Producer
	audit    *publisher.Publisher
}

// Build connects to the configured backends and wires every service. Each
// backend left unconfigured falls back to its in-memory implementation.
func Build(ctx context.Context, cfg config.Config, log *slog.Logger) (_ *App, err error) {
	app := &App{}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	keys, custodian, err := loadKeys(cfg.Chain)
	if err != nil {
		return nil, err
	}
	app.Custodian = custodian
	client := rpc.New(cfg.Chain.RPCURL, keys,
		rpc.WithLogger(log),
		rpc.WithConfirmTimeout(cfg.Chain.ConfirmTimeout),
		rpc.WithPollInterval(cfg.Chain.PollInterval),
	)

	if app.db, err = postgres.Open(ctx, cfg.Database.URL); err != nil {
		return nil, err
	}
	if app.db != nil {
		if err := migrations.Apply(ctx, app.db); err != nil {
			return nil, err
		}
	}
	if app.redis, err = redis.New(cfg.Redis); err != nil {
		return nil, err
	}

	var auditStore audit.Store = auditmemory.NewInMemoryStore()
	if app.db != nil {
		outbox := auditpostgres.New(app.db)
		auditStore = outbox
		if len(cfg.Kafka.Brokers) > 0 {
			if app.producer, err = kafka.NewProducer(cfg.Kafka.Brokers, log); err != nil {
				return nil, err
			}
			app.Relay = worker.NewPostgresRelay(outbox, app.producer, cfg.Kafka.AuditTopic, worker.WithLogger(log))
		}
	} else if len(cfg.Kafka.Brokers) > 0 {
		log.Warn("kafka brokers configured without a database; audit relay disabled")
	}
	app.audit = publisher.NewPublisher(auditStore, publisher.WithLogger(log), publisher.WithAsyncBuffer(256))

	registrar := compliance.NewService(client, cfg.Chain.ComplianceProgram, custodian,
		complianceservice.WithLogger(log),
		complianceservice.WithAuditPublisher(app.audit),
		complianceservice.WithMetrics(compliancemetrics.New()),
		complianceservice.WithAutoRegister(cfg.Compliance.AutoRegister),
	)

	var cache hookservice.Cache = hookstore.NewInMemoryCache(cfg.Distribution.MintCacheTTL)
	var entries journal = distributionjournal.NewInMemory()
	if app.redis != nil {
		cache = hookstore.NewRedisCache(app.redis.Client, cfg.Distribution.MintCacheTTL)
		entries = distributionjournal.NewRedis(app.redis.Client)
	}
	resolver := hook.NewResolver(client, custodian,
		hookservice.WithLogger(log),
		hookservice.WithCache(cache),
		hookservice.WithMetrics(hookmetrics.New()),
		hookservice.WithAuditPublisher(app.audit),
	)

	executor := distribution.NewExecutor(client, custodian, registrar, resolver, entries,
		distributionservice.WithLogger(log),
		distributionservice.WithAuditPublisher(app.audit),
		distributionservice.WithMetrics(distributionmetrics.New()),
		distributionservice.WithLeaseTTL(cfg.Distribution.LeaseTTL),
	)

	var index orderservice.Store = orderstore.NewInMemoryStore()
	if app.db != nil {
		index = orderstore.NewPostgres(app.db)
	}
	orderService := orders.NewService(client, cfg.Chain.PurchaseOrderProgram, custodian, index, executor,
		orderservice.WithLogger(log),
		orderservice.WithAuditPublisher(app.audit),
		orderservice.WithMetrics(ordermetrics.New()),
		orderservice.WithDistributionLookup(entries),
	)

	app.Compliance = registrar
	app.Hooks = resolver
	app.Distribution = executor
	app.Orders = orderService
	return app, nil
}

// loadKeys reads the custodian keypair and any custodial buyer keypairs into
// one keyring. The custodian is the compliance authority, order admin and
// treasury owner.
func loadKeys(cfg config.Chain) (rpc.Keyring, solana.PublicKey, error) {
	if cfg.KeypairPath == "" {
		return nil, solana.PublicKey{}, fmt.Errorf("SRWA_KEYPAIR is required")
	}
	keys := rpc.Keyring{}
	key, err := solana.PrivateKeyFromSolanaKeygenFile(cfg.KeypairPath)
	if err != nil {
		return nil, solana.PublicKey{}, fmt.Errorf("read custodian keypair: %w", err)
	}
	custodian := keys.Add(key)
	for _, path := range cfg.BuyerKeypairPaths {
		buyer, err := solana.PrivateKeyFromSolanaKeygenFile(path)
		if err != nil {
			return nil, solana.PublicKey{}, fmt.Errorf("read buyer keypair %s: %w", path, err)
		}
		keys.Add(buyer)
	}
	return keys, custodian, nil
}

// Health reports the reachability of every configured backend.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := map[string]string{"status": "ok"}
	code := http.StatusOK
	if a.db != nil {
		if err := a.db.PingContext(ctx); err != nil {
			status["postgres"] = err.Error()
			code = http.StatusServiceUnavailable
		}
	}
	if a.redis != nil {
		if err := a.redis.Health(ctx); err != nil {
			status["redis"] = err.Error()
			code = http.StatusServiceUnavailable
		}
	}
	if a.producer != nil {
		if err := a.producer.Ping(ctx); err != nil {
			status["kafka"] = err.Error()
			code = http.StatusServiceUnavailable
		}
	}
	if code != http.StatusOK {
		status["status"] = "degraded"
	}
	httputil.WriteJSON(w, code, status)
}

// Close flushes buffered audit events and releases every connection.
func (a *App) Close() {
	if a.audit != nil {
		a.audit.Close()
	}
	if a.producer != nil {
		a.producer.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
