package models

import (
	"github.com/gagliardetto/solana-go"

	"srwa/internal/chain"
	"srwa/internal/hook/metalist"
)

// MetaListSeed prefixes the extra-account-meta list address.
const MetaListSeed = "extra-account-metas"

// InstructionInitializeMetaList provisions the meta list on the hook program.
const InstructionInitializeMetaList = "initialize_extra_account_meta_list"

// MintState is the hook-relevant view of a mint.
//
// MetaListInitialized only ever moves from false to true; the resolver
// provisions the list when a hook mint is found without one.
type MintState struct {
	Mint                solana.PublicKey `json:"mint"`
	Decimals            uint8            `json:"decimals"`
	HasHook             bool             `json:"has_hook"`
	HookProgram         solana.PublicKey `json:"hook_program"`
	MetaListAddress     solana.PublicKey `json:"meta_list_address"`
	MetaListInitialized bool             `json:"meta_list_initialized"`
}

// MetaListAddress derives PDA(["extra-account-metas", mint], hookProgram).
func MetaListAddress(hookProgram, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := chain.FindPDA(hookProgram, []byte(MetaListSeed), mint[:])
	return addr, err
}

// NewInitializeMetaListInstruction builds the one-shot meta list provisioning call.
func NewInitializeMetaListInstruction(hookProgram, payer, mint solana.PublicKey) (*solana.GenericInstruction, error) {
	list, err := MetaListAddress(hookProgram, mint)
	if err != nil {
		return nil, err
	}
	data, err := chain.NewArgs(chain.InstructionDiscriminator(InstructionInitializeMetaList)).Bytes()
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(hookProgram, solana.AccountMetaSlice{
		solana.Meta(payer).WRITE().SIGNER(),
		solana.Meta(mint),
		solana.Meta(list).WRITE(),
		solana.Meta(chain.SystemProgramID),
	}, data), nil
}

// ComplianceMetaList is the descriptor list the compliance hook stores: the
// records of the source owner and the destination owner, in that order.
func ComplianceMetaList(recordSeed string) ([]metalist.Descriptor, error) {
	from, err := metalist.PDA([]metalist.Seed{
		metalist.LiteralSeed([]byte(recordSeed)),
		metalist.AccountDataSeed(0, 32, 32),
	}, false, false)
	if err != nil {
		return nil, err
	}
	to, err := metalist.PDA([]metalist.Seed{
		metalist.LiteralSeed([]byte(recordSeed)),
		metalist.AccountDataSeed(2, 32, 32),
	}, false, false)
	if err != nil {
		return nil, err
	}
	return []metalist.Descriptor{from, to}, nil
}
