package chaintest

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"srwa/internal/chain"
)

// Anchor framework and runtime error codes the ledger reproduces.
const (
	anchorConstraintRaw           = 2003
	anchorConstraintSeeds         = 2006
	anchorAccountNotInitialized   = 3012
	systemAccountAlreadyInUse     = 0
	systemInsufficientLamports    = 1
	tokenInsufficientFunds        = 1
	tokenMintMismatch             = 3
	tokenOwnerMismatch            = 4
	tokenMintDecimalsMismatch     = 18
	hookKYCFailed                 = 6000
	complianceUnauthorized        = 6001
	runtimeNotEnoughAccountKeys   = "NotEnoughAccountKeys"
	runtimeInvalidAccountData     = "InvalidAccountData"
	runtimeMissingRequiredSig     = "MissingRequiredSignature"
	runtimeInvalidInstructionData = "InvalidInstructionData"
	runtimeUnsupportedProgram     = "UnsupportedProgramId"
)

// failure is an instruction failure raised by a simulated program.
type failure struct {
	program solana.PublicKey
	custom  *uint32
	kind    string
	name    string
	message string
}

func customFailure(program solana.PublicKey, code uint32, name, message string) *failure {
	return &failure{program: program, custom: &code, name: name, message: message}
}

func runtimeFailure(program solana.PublicKey, kind string) *failure {
	return &failure{program: program, kind: kind}
}

func (f *failure) toTxError(index int, topLevel solana.PublicKey, logs []string) *chain.TxError {
	return &chain.TxError{
		Instruction: index,
		Program:     topLevel,
		Custom:      f.custom,
		Kind:        f.kind,
		Logs:        logs,
	}
}

type executor struct {
	ledger *Ledger
	state  map[solana.PublicKey]*chain.Account
	payer  solana.PublicKey
	logs   []string
}

func (x *executor) run(ix solana.Instruction) *failure {
	program := ix.ProgramID()
	x.logf("Program %s invoke [1]", program)

	data, err := ix.Data()
	if err != nil {
		return x.fail(program, runtimeFailure(program, runtimeInvalidInstructionData))
	}
	accts := ix.Accounts()

	var f *failure
	switch program {
	case chain.AssociatedTokenProgramID:
		f = x.createAssociatedTokenAccount(accts, data)
	case chain.Token2022ProgramID:
		f = x.transferChecked(accts, data)
	case x.ledger.programs.Compliance:
		f = x.compliance(accts, data)
	case x.ledger.programs.PurchaseOrder:
		f = x.purchaseOrder(accts, data)
	default:
		f = runtimeFailure(program, runtimeUnsupportedProgram)
	}
	if f != nil {
		return x.fail(program, f)
	}
	x.logf("Program %s success", program)
	return nil
}

// fail writes the log lines a cluster emits for a failing instruction.
func (x *executor) fail(topLevel solana.PublicKey, f *failure) *failure {
	if f.message != "" {
		x.logf("Program log: AnchorError occurred. Error Code: %s. Error Number: %d. Error Message: %s.", f.name, *f.custom, f.message)
	}
	detail := f.kind
	if f.custom != nil {
		detail = fmt.Sprintf("custom program error: 0x%x", *f.custom)
	}
	x.logf("Program %s failed: %s", f.program, detail)
	if !f.program.Equals(topLevel) {
		x.logf("Program %s failed: %s", topLevel, detail)
	}
	return f
}

func (x *executor) logf(format string, args ...any) {
	x.logs = append(x.logs, fmt.Sprintf(format, args...))
}

func (x *executor) transferLamports(program, from, to solana.PublicKey, amount uint64) *failure {
	src, ok := x.state[from]
	if !ok || src.Lamports < amount {
		x.logf("Program %s invoke [2]", chain.SystemProgramID)
		x.logf("Transfer: insufficient lamports")
		return customFailure(chain.SystemProgramID, systemInsufficientLamports, "", "")
	}
	src.Lamports -= amount
	x.account(to, chain.SystemProgramID).Lamports += amount
	return nil
}

// account returns the account at key, creating an empty one owned by owner.
func (x *executor) account(key, owner solana.PublicKey) *chain.Account {
	acct, ok := x.state[key]
	if !ok {
		acct = &chain.Account{Address: key, Owner: owner}
		x.state[key] = acct
	}
	return acct
}

func (x *executor) create(program, key solana.PublicKey, data []byte) *failure {
	if existing, ok := x.state[key]; ok && len(existing.Data) > 0 {
		x.logf("Program %s invoke [2]", chain.SystemProgramID)
		x.logf("Allocate: account Address { address: %s, base: None } already in use", key)
		return customFailure(chain.SystemProgramID, systemAccountAlreadyInUse, "", "")
	}
	acct := x.account(key, program)
	acct.Owner = program
	acct.Data = data
	return nil
}

func requireAccounts(program solana.PublicKey, accts []*solana.AccountMeta, n int) *failure {
	if len(accts) < n {
		return runtimeFailure(program, runtimeNotEnoughAccountKeys)
	}
	return nil
}

func requireSigner(program solana.PublicKey, meta *solana.AccountMeta) *failure {
	if !meta.IsSigner {
		return runtimeFailure(program, runtimeMissingRequiredSig)
	}
	return nil
}
