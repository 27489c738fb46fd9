// Package compliance gates token movement on per-wallet compliance records
// kept by the compliance program.
package compliance

import (
	"log/slog"

	"github.com/gagliardetto/solana-go"

	"srwa/internal/chain"
	"srwa/internal/compliance/handler"
	"srwa/internal/compliance/service"
)

// Service reads and writes compliance records.
type Service = service.Service

// Handler wires HTTP endpoints to the compliance service.
type Handler = handler.Handler

// NewService constructs the registrar.
func NewService(client chain.Client, program, authority solana.PublicKey, opts ...service.Option) *Service {
	return service.New(client, program, authority, opts...)
}

// NewHandler constructs the HTTP handler.
func NewHandler(s *Service, logger *slog.Logger) *Handler {
	return handler.New(s, logger)
}
