// Package distribution delivers restricted tokens from the treasury to
// compliant recipients, at most once per idempotency key.
package distribution

import (
	"log/slog"

	"github.com/gagliardetto/solana-go"

	"srwa/internal/chain"
	"srwa/internal/distribution/handler"
	"srwa/internal/distribution/service"
)

type Executor = service.Executor

type Handler = handler.Handler

func NewExecutor(client chain.Client, treasury solana.PublicKey, registrar service.Registrar, resolver service.HookResolver, journal service.Journal, opts ...service.Option) *Executor {
	return service.New(client, treasury, registrar, resolver, journal, opts...)
}

func NewHandler(e *Executor, logger *slog.Logger) *Handler {
	return handler.New(e, logger)
}
