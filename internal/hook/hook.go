// Package hook completes Token-2022 transfers with the extra accounts a
// mint's transfer hook program requires.
package hook

import (
	"log/slog"

	"github.com/gagliardetto/solana-go"

	"srwa/internal/chain"
	"srwa/internal/hook/handler"
	"srwa/internal/hook/service"
)

type Resolver = service.Resolver

type Handler = handler.Handler

func NewResolver(client chain.Client, payer solana.PublicKey, opts ...service.Option) *Resolver {
	return service.New(client, payer, opts...)
}

func NewHandler(r *Resolver, logger *slog.Logger) *Handler {
	return handler.New(r, logger)
}
