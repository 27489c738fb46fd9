package chaintest

import (
	"math/bits"
	"time"

	"github.com/gagliardetto/solana-go"

	"srwa/internal/chain"
	compliance "srwa/internal/compliance/models"
	hook "srwa/internal/hook/models"
	"srwa/internal/hook/metalist"
	orders "srwa/internal/orders/models"
)

func (x *executor) compliance(accts []*solana.AccountMeta, data []byte) *failure {
	program := x.ledger.programs.Compliance

	if args, ok := chain.ReadArgs(data, chain.InstructionDiscriminator(compliance.InstructionInitialize)); ok {
		verified, active := args.Bool(), args.Bool()
		if args.Err() != nil {
			return runtimeFailure(program, runtimeInvalidInstructionData)
		}
		return x.initializeRecord(program, accts, verified, active)
	}
	if args, ok := chain.ReadArgs(data, chain.InstructionDiscriminator(compliance.InstructionUpdate)); ok {
		verified, active := args.Bool(), args.Bool()
		if args.Err() != nil {
			return runtimeFailure(program, runtimeInvalidInstructionData)
		}
		return x.updateRecord(program, accts, verified, active)
	}
	if chain.HasDiscriminator(data, chain.InstructionDiscriminator(hook.InstructionInitializeMetaList)) {
		return x.initializeMetaList(program, accts)
	}
	return runtimeFailure(program, runtimeInvalidInstructionData)
}

func (x *executor) initializeRecord(program solana.PublicKey, accts []*solana.AccountMeta, verified, active bool) *failure {
	if f := requireAccounts(program, accts, 4); f != nil {
		return f
	}
	if f := requireSigner(program, accts[0]); f != nil {
		return f
	}
	subject := accts[1].PublicKey
	addr, bump, err := compliance.RecordAddress(program, subject)
	if err != nil || !addr.Equals(accts[2].PublicKey) {
		return customFailure(program, anchorConstraintSeeds, "ConstraintSeeds", "A seeds constraint was violated")
	}
	rec := &compliance.Record{
		Address:      addr,
		Subject:      subject,
		Role:         compliance.RoleInvestor,
		Verified:     verified,
		Active:       active,
		RegisteredAt: x.ledger.now().UTC().Truncate(time.Second),
		Bump:         bump,
	}
	return x.create(program, addr, compliance.EncodeRecord(rec))
}

func (x *executor) updateRecord(program solana.PublicKey, accts []*solana.AccountMeta, verified, active bool) *failure {
	if f := requireAccounts(program, accts, 3); f != nil {
		return f
	}
	if f := requireSigner(program, accts[0]); f != nil {
		return f
	}
	if !accts[0].PublicKey.Equals(x.ledger.custodian) {
		return customFailure(program, complianceUnauthorized, "Unauthorized", "Only the compliance authority may update records")
	}
	acct, ok := x.state[accts[2].PublicKey]
	if !ok {
		return customFailure(program, anchorAccountNotInitialized, "AccountNotInitialized", "The program expected this account to be already initialized")
	}
	rec, err := compliance.DecodeRecord(acct.Address, acct.Data)
	if err != nil || !rec.Subject.Equals(accts[1].PublicKey) {
		return customFailure(program, anchorConstraintRaw, "ConstraintRaw", "A raw constraint was violated")
	}
	rec.Verified, rec.Active = verified, active
	acct.Data = compliance.EncodeRecord(rec)
	return nil
}

func (x *executor) initializeMetaList(program solana.PublicKey, accts []*solana.AccountMeta) *failure {
	if f := requireAccounts(program, accts, 4); f != nil {
		return f
	}
	if f := requireSigner(program, accts[0]); f != nil {
		return f
	}
	addr, err := hook.MetaListAddress(program, accts[1].PublicKey)
	if err != nil || !addr.Equals(accts[2].PublicKey) {
		return customFailure(program, anchorConstraintSeeds, "ConstraintSeeds", "A seeds constraint was violated")
	}
	list, err := hook.ComplianceMetaList(compliance.RecordSeed)
	if err != nil {
		return runtimeFailure(program, runtimeInvalidAccountData)
	}
	return x.create(program, addr, metalist.Encode(list))
}

func (x *executor) purchaseOrder(accts []*solana.AccountMeta, data []byte) *failure {
	program := x.ledger.programs.PurchaseOrder

	if args, ok := chain.ReadArgs(data, chain.InstructionDiscriminator(orders.InstructionCreate)); ok {
		quantity, price, nonce := args.U64(), args.U64(), args.I64()
		if args.Err() != nil {
			return runtimeFailure(program, runtimeInvalidInstructionData)
		}
		return x.createOrder(program, accts, quantity, price, nonce)
	}
	if chain.HasDiscriminator(data, chain.InstructionDiscriminator(orders.InstructionApprove)) {
		return x.markApproved(program, accts)
	}
	if args, ok := chain.ReadArgs(data, chain.InstructionDiscriminator(orders.InstructionReject)); ok {
		reason := args.Str()
		if args.Err() != nil {
			return runtimeFailure(program, runtimeInvalidInstructionData)
		}
		return x.rejectOrder(program, accts, reason)
	}
	return runtimeFailure(program, runtimeInvalidInstructionData)
}

func orderFailure(program solana.PublicKey, e orders.ProgramError, message string) *failure {
	return customFailure(program, uint32(e), e.String(), message)
}

func (x *executor) createOrder(program solana.PublicKey, accts []*solana.AccountMeta, quantity, price uint64, nonce int64) *failure {
	if f := requireAccounts(program, accts, 5); f != nil {
		return f
	}
	if f := requireSigner(program, accts[0]); f != nil {
		return f
	}
	buyer, mint, orderKey, vault := accts[0].PublicKey, accts[1].PublicKey, accts[2].PublicKey, accts[3].PublicKey

	addr, bump, err := orders.Address(program, mint, buyer, nonce)
	if err != nil || !addr.Equals(orderKey) {
		return customFailure(program, anchorConstraintSeeds, "ConstraintSeeds", "A seeds constraint was violated")
	}
	if quantity == 0 {
		return orderFailure(program, orders.ErrInvalidQuantity, "Invalid quantity")
	}
	if price == 0 {
		return orderFailure(program, orders.ErrInvalidPrice, "Invalid price")
	}
	hi, total := bits.Mul64(quantity, price)
	if hi != 0 {
		return orderFailure(program, orders.ErrMathOverflow, "Math overflow")
	}

	// Allocation happens before the handler body, as with an init constraint.
	placeholder := make([]byte, orders.AccountSpace)
	if f := x.create(program, addr, placeholder); f != nil {
		return f
	}
	if f := x.transferLamports(program, buyer, vault, total); f != nil {
		return f
	}

	o := &orders.Order{
		Address:       addr,
		Buyer:         buyer,
		Mint:          mint,
		Quantity:      quantity,
		UnitPrice:     price,
		TotalEscrowed: total,
		Status:        orders.StatusPending,
		Nonce:         nonce,
		UpdatedAt:     x.ledger.now().UTC().Truncate(time.Second),
		Bump:          bump,
	}
	encoded, err := orders.EncodeAccount(o)
	if err != nil {
		return runtimeFailure(program, runtimeInvalidAccountData)
	}
	x.state[addr].Data = encoded
	return nil
}

func (x *executor) loadOrder(program solana.PublicKey, key solana.PublicKey) (*orders.Order, *failure) {
	acct, ok := x.state[key]
	if !ok || !acct.Owner.Equals(program) {
		return nil, customFailure(program, anchorAccountNotInitialized, "AccountNotInitialized", "The program expected this account to be already initialized")
	}
	o, err := orders.DecodeAccount(key, acct.Data)
	if err != nil {
		return nil, runtimeFailure(program, runtimeInvalidAccountData)
	}
	return o, nil
}

func (x *executor) storeOrder(program solana.PublicKey, o *orders.Order) *failure {
	encoded, err := orders.EncodeAccount(o)
	if err != nil {
		return runtimeFailure(program, runtimeInvalidAccountData)
	}
	x.state[o.Address].Data = encoded
	return nil
}

func (x *executor) markApproved(program solana.PublicKey, accts []*solana.AccountMeta) *failure {
	if f := requireAccounts(program, accts, 4); f != nil {
		return f
	}
	if f := requireSigner(program, accts[0]); f != nil {
		return f
	}
	admin := accts[0].PublicKey
	if !admin.Equals(x.ledger.custodian) {
		return orderFailure(program, orders.ErrUnauthorizedAdmin, "Unauthorized admin")
	}
	o, f := x.loadOrder(program, accts[1].PublicKey)
	if f != nil {
		return f
	}
	if o.Status != orders.StatusPending {
		return orderFailure(program, orders.ErrNotPending, "Purchase order is not pending")
	}
	for i, owner := range []solana.PublicKey{admin, o.Buyer} {
		acct, ok := x.state[accts[2+i].PublicKey]
		if !ok {
			return customFailure(program, anchorAccountNotInitialized, "AccountNotInitialized", "The program expected this account to be already initialized")
		}
		tok, err := chain.ParseTokenAccount(acct.Data)
		if err != nil || !tok.Mint.Equals(o.Mint) || (i == 1 && !tok.Owner.Equals(owner)) {
			return customFailure(program, anchorConstraintRaw, "ConstraintRaw", "A raw constraint was violated")
		}
	}

	o.Status = orders.StatusApproved
	o.UpdatedAt = x.ledger.now().UTC().Truncate(time.Second)
	o.ProcessedBy = &admin
	return x.storeOrder(program, o)
}

func (x *executor) rejectOrder(program solana.PublicKey, accts []*solana.AccountMeta, reason string) *failure {
	if f := requireAccounts(program, accts, 5); f != nil {
		return f
	}
	if f := requireSigner(program, accts[0]); f != nil {
		return f
	}
	admin := accts[0].PublicKey
	if !admin.Equals(x.ledger.custodian) {
		return orderFailure(program, orders.ErrUnauthorizedAdmin, "Unauthorized admin")
	}
	o, f := x.loadOrder(program, accts[1].PublicKey)
	if f != nil {
		return f
	}
	if o.Status != orders.StatusPending {
		return orderFailure(program, orders.ErrNotPending, "Purchase order is not pending")
	}
	if !accts[3].PublicKey.Equals(o.Buyer) {
		return customFailure(program, anchorConstraintRaw, "ConstraintRaw", "A raw constraint was violated")
	}
	if len(reason) > orders.MaxRejectionReasonLen {
		return orderFailure(program, orders.ErrRejectReasonTooLong, "Reject reason too long")
	}
	vault, ok := x.state[accts[2].PublicKey]
	if !ok || vault.Lamports < o.TotalEscrowed {
		return orderFailure(program, orders.ErrInsufficientAdminTokens, "Insufficient admin funds")
	}
	vault.Lamports -= o.TotalEscrowed
	x.account(o.Buyer, chain.SystemProgramID).Lamports += o.TotalEscrowed

	o.Status = orders.StatusRejected
	o.UpdatedAt = x.ledger.now().UTC().Truncate(time.Second)
	o.ProcessedBy = &admin
	o.RejectionReason = reason
	return x.storeOrder(program, o)
}
