package chaintest

import (
	"errors"

	"github.com/gagliardetto/solana-go"

	"srwa/internal/chain"
	compliance "srwa/internal/compliance/models"
	hook "srwa/internal/hook/models"
	"srwa/internal/hook/metalist"
)

func (x *executor) createAssociatedTokenAccount(accts []*solana.AccountMeta, data []byte) *failure {
	program := chain.AssociatedTokenProgramID
	if !chain.IsCreateIdempotent(data) {
		return runtimeFailure(program, runtimeInvalidInstructionData)
	}
	if f := requireAccounts(program, accts, 6); f != nil {
		return f
	}
	if f := requireSigner(program, accts[0]); f != nil {
		return f
	}
	ata, owner, mint := accts[1].PublicKey, accts[2].PublicKey, accts[3].PublicKey
	want, err := chain.AssociatedTokenAddress(owner, mint)
	if err != nil || !want.Equals(ata) {
		return runtimeFailure(program, runtimeInvalidAccountData)
	}
	if _, ok := x.state[ata]; ok {
		return nil
	}
	if m, ok := x.state[mint]; !ok || !m.Owner.Equals(chain.Token2022ProgramID) {
		return runtimeFailure(program, runtimeInvalidAccountData)
	}
	x.state[ata] = &chain.Account{
		Address: ata,
		Owner:   chain.Token2022ProgramID,
		Data:    chain.EncodeTokenAccount(chain.TokenAccount{Mint: mint, Owner: owner}),
	}
	return nil
}

func (x *executor) transferChecked(accts []*solana.AccountMeta, data []byte) *failure {
	program := chain.Token2022ProgramID
	amount, decimals, ok := chain.DecodeTransferChecked(data)
	if !ok {
		return runtimeFailure(program, runtimeInvalidInstructionData)
	}
	if f := requireAccounts(program, accts, 4); f != nil {
		return f
	}
	if f := requireSigner(program, accts[3]); f != nil {
		return f
	}

	mintAcct, ok := x.state[accts[1].PublicKey]
	if !ok {
		return runtimeFailure(program, runtimeInvalidAccountData)
	}
	mint, err := chain.ParseMint(mintAcct.Data)
	if err != nil {
		return runtimeFailure(program, runtimeInvalidAccountData)
	}
	if mint.Decimals != decimals {
		return customFailure(program, tokenMintDecimalsMismatch, "", "")
	}

	srcAcct, srcOK := x.state[accts[0].PublicKey]
	dstAcct, dstOK := x.state[accts[2].PublicKey]
	if !srcOK || !dstOK {
		return runtimeFailure(program, runtimeInvalidAccountData)
	}
	src, err := chain.ParseTokenAccount(srcAcct.Data)
	if err != nil {
		return runtimeFailure(program, runtimeInvalidAccountData)
	}
	dst, err := chain.ParseTokenAccount(dstAcct.Data)
	if err != nil {
		return runtimeFailure(program, runtimeInvalidAccountData)
	}
	if !src.Mint.Equals(accts[1].PublicKey) || !dst.Mint.Equals(accts[1].PublicKey) {
		return customFailure(program, tokenMintMismatch, "", "")
	}
	if !src.Owner.Equals(accts[3].PublicKey) {
		return customFailure(program, tokenOwnerMismatch, "", "")
	}
	if src.Amount < amount {
		x.logf("Program log: Error: insufficient funds")
		return customFailure(program, tokenInsufficientFunds, "", "")
	}

	if mint.TransferHook != nil {
		if f := x.executeHook(mint.TransferHook.Program, accts, amount); f != nil {
			return f
		}
	}

	chain.SetTokenAmount(srcAcct.Data, src.Amount-amount)
	chain.SetTokenAmount(dstAcct.Data, dst.Amount+amount)
	return nil
}

// executeHook checks the hook accounts are present in resolver order and runs
// the compliance hook: both token account owners must be cleared.
func (x *executor) executeHook(hookProgram solana.PublicKey, accts []*solana.AccountMeta, amount uint64) *failure {
	token := chain.Token2022ProgramID
	if len(accts) < 6 {
		x.logf("Program log: Error: missing transfer hook accounts")
		return runtimeFailure(token, runtimeNotEnoughAccountKeys)
	}
	listAddr, err := hook.MetaListAddress(hookProgram, accts[1].PublicKey)
	if err != nil || !accts[4].PublicKey.Equals(hookProgram) || !accts[5].PublicKey.Equals(listAddr) {
		x.logf("Program log: Error: transfer hook accounts out of place")
		return runtimeFailure(token, runtimeNotEnoughAccountKeys)
	}
	listAcct, ok := x.state[listAddr]
	if !ok {
		return runtimeFailure(token, runtimeInvalidAccountData)
	}
	list, err := metalist.Parse(listAcct.Data)
	if err != nil {
		return runtimeFailure(token, runtimeInvalidAccountData)
	}

	execAccounts := append(append([]*solana.AccountMeta{}, accts[:4]...), accts[5])
	extras, err := metalist.Resolve(list, hookProgram, execAccounts, metalist.ExecuteData(amount), func(key solana.PublicKey) ([]byte, error) {
		acct, ok := x.state[key]
		if !ok {
			return nil, errors.New("account not found")
		}
		return acct.Data, nil
	})
	if err != nil {
		return runtimeFailure(token, runtimeInvalidAccountData)
	}
	supplied := accts[6:]
	if len(supplied) < len(extras) {
		return runtimeFailure(token, runtimeNotEnoughAccountKeys)
	}
	for i, meta := range extras {
		if !supplied[i].PublicKey.Equals(meta.PublicKey) {
			x.logf("Program log: Error: extra account %d does not match meta list", i)
			return runtimeFailure(token, runtimeInvalidAccountData)
		}
	}

	x.logf("Program %s invoke [2]", hookProgram)
	if !hookProgram.Equals(x.ledger.programs.Compliance) {
		return runtimeFailure(hookProgram, runtimeUnsupportedProgram)
	}
	for _, meta := range extras {
		acct, ok := x.state[meta.PublicKey]
		var rec *compliance.Record
		if ok {
			rec, _ = compliance.DecodeRecord(meta.PublicKey, acct.Data)
		}
		if !rec.Cleared() {
			return customFailure(hookProgram, hookKYCFailed, "KYCFailed", "KYC verification failed")
		}
	}
	x.logf("Program %s success", hookProgram)
	return nil
}
