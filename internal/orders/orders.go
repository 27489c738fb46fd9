// Package orders runs the purchase order lifecycle: buyers escrow lamports,
// administrators either deliver the tokens or refund the escrow.
package orders

import (
	"log/slog"

	"github.com/gagliardetto/solana-go"

	"srwa/internal/chain"
	"srwa/internal/orders/handler"
	"srwa/internal/orders/ledger"
	"srwa/internal/orders/service"
)

type Service = service.Service

type Handler = handler.Handler

// NewService wires the ledger client for program with the given index and
// distributor. custodian holds escrow and signs every transition.
func NewService(client chain.Client, program, custodian solana.PublicKey, index service.Store, distributor service.Distributor, opts ...service.Option) *Service {
	return service.New(ledger.New(client, program, custodian), index, distributor, opts...)
}

func NewHandler(s *Service, logger *slog.Logger) *Handler {
	return handler.New(s, logger)
}
