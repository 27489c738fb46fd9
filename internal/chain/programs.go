package chain

import (
	"github.com/gagliardetto/solana-go"
)

// Well-known program ids.
var (
	SystemProgramID          = solana.SystemProgramID
	Token2022ProgramID       = solana.Token2022ProgramID
	AssociatedTokenProgramID = solana.SPLAssociatedTokenAccountProgramID
)

// Programs names the deployment-specific programs the services talk to.
type Programs struct {
	// PurchaseOrder owns purchase order accounts and the escrow instructions.
	PurchaseOrder solana.PublicKey
	// Compliance owns compliance records. In the reference deployment it is
	// also the transfer-hook program configured on the mint.
	Compliance solana.PublicKey
}
