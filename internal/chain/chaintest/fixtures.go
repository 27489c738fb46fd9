package chaintest

import (
	"time"

	"github.com/gagliardetto/solana-go"

	"srwa/internal/chain"
	compliance "srwa/internal/compliance/models"
	hook "srwa/internal/hook/models"
	"srwa/internal/hook/metalist"
	orders "srwa/internal/orders/models"
)

// Fund credits lamports to a system account.
func (l *Ledger) Fund(address solana.PublicKey, lamports uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct, ok := l.accounts[address]
	if !ok {
		acct = &chain.Account{Address: address, Owner: chain.SystemProgramID}
		l.accounts[address] = acct
	}
	acct.Lamports += lamports
}

// Lamports returns the balance of address.
func (l *Ledger) Lamports(address solana.PublicKey) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if acct, ok := l.accounts[address]; ok {
		return acct.Lamports
	}
	return 0
}

// CreateMint adds a Token-2022 mint. A non-zero hookProgram installs the
// TransferHook extension.
func (l *Ledger) CreateMint(authority solana.PublicKey, decimals uint8, hookProgram solana.PublicKey) solana.PublicKey {
	mint := solana.NewWallet().PublicKey()
	var ext *chain.TransferHook
	if !hookProgram.IsZero() {
		ext = &chain.TransferHook{Authority: authority, Program: hookProgram}
	}
	l.put(&chain.Account{
		Address: mint,
		Owner:   chain.Token2022ProgramID,
		Data:    chain.EncodeMint(authority, decimals, ext),
	})
	return mint
}

// CreateTokenAccount adds the associated token account of owner holding amount.
func (l *Ledger) CreateTokenAccount(owner, mint solana.PublicKey, amount uint64) solana.PublicKey {
	ata, err := chain.AssociatedTokenAddress(owner, mint)
	if err != nil {
		panic(err)
	}
	l.put(&chain.Account{
		Address: ata,
		Owner:   chain.Token2022ProgramID,
		Data:    chain.EncodeTokenAccount(chain.TokenAccount{Mint: mint, Owner: owner, Amount: amount}),
	})
	return ata
}

// TokenBalance returns the associated token account balance of owner, and
// whether the account exists.
func (l *Ledger) TokenBalance(owner, mint solana.PublicKey) (uint64, bool) {
	ata, err := chain.AssociatedTokenAddress(owner, mint)
	if err != nil {
		return 0, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	acct, ok := l.accounts[ata]
	if !ok {
		return 0, false
	}
	tok, err := chain.ParseTokenAccount(acct.Data)
	if err != nil {
		return 0, false
	}
	return tok.Amount, true
}

// PutComplianceRecord writes a compliance record for subject.
func (l *Ledger) PutComplianceRecord(subject solana.PublicKey, verified, active bool) solana.PublicKey {
	addr, bump, err := compliance.RecordAddress(l.programs.Compliance, subject)
	if err != nil {
		panic(err)
	}
	l.put(&chain.Account{
		Address: addr,
		Owner:   l.programs.Compliance,
		Data: compliance.EncodeRecord(&compliance.Record{
			Subject:      subject,
			Role:         compliance.RoleInvestor,
			Verified:     verified,
			Active:       active,
			RegisteredAt: l.now().UTC().Truncate(time.Second),
			Bump:         bump,
		}),
	})
	return addr
}

// ComplianceRecord returns the record of subject, or nil.
func (l *Ledger) ComplianceRecord(subject solana.PublicKey) *compliance.Record {
	addr, _, err := compliance.RecordAddress(l.programs.Compliance, subject)
	if err != nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	acct, ok := l.accounts[addr]
	if !ok {
		return nil
	}
	rec, err := compliance.DecodeRecord(addr, acct.Data)
	if err != nil {
		return nil
	}
	return rec
}

// PutMetaList writes a meta list for mint under hookProgram directly.
func (l *Ledger) PutMetaList(hookProgram, mint solana.PublicKey, list []metalist.Descriptor) solana.PublicKey {
	addr, err := hook.MetaListAddress(hookProgram, mint)
	if err != nil {
		panic(err)
	}
	l.put(&chain.Account{Address: addr, Owner: hookProgram, Data: metalist.Encode(list)})
	return addr
}

// Order returns the decoded order at address, or nil.
func (l *Ledger) Order(address solana.PublicKey) *orders.Order {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct, ok := l.accounts[address]
	if !ok {
		return nil
	}
	o, err := orders.DecodeAccount(address, acct.Data)
	if err != nil {
		return nil
	}
	return o
}

// PutOrder writes an order account directly.
func (l *Ledger) PutOrder(o *orders.Order) {
	data, err := orders.EncodeAccount(o)
	if err != nil {
		panic(err)
	}
	l.put(&chain.Account{Address: o.Address, Owner: l.programs.PurchaseOrder, Data: data})
}

// PutAccount writes raw account bytes, replacing any account at address.
func (l *Ledger) PutAccount(address, owner solana.PublicKey, data []byte) {
	l.put(&chain.Account{Address: address, Owner: owner, Data: data})
}

// HasAccount reports whether address exists.
func (l *Ledger) HasAccount(address solana.PublicKey) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.accounts[address]
	return ok
}

// DeleteAccount removes address.
func (l *Ledger) DeleteAccount(address solana.PublicKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.accounts, address)
}

func (l *Ledger) put(acct *chain.Account) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts[acct.Address] = acct
}
