// Package chaintest provides an in-memory ledger implementing chain.Client.
//
// The ledger executes the instructions the services build (associated token
// accounts, Token-2022 transfer_checked with transfer-hook enforcement, the
// compliance program and the purchase order program) with the same
// atomicity as a real cluster: a transaction either applies every
// instruction or none. Fault injection covers lost submissions and
// unobserved confirmations.
package chaintest

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"srwa/internal/chain"
)

type faultKind int

const (
	faultError faultKind = iota
	faultUnconfirmed
	faultUnobserved
	faultLost
)

// BlockhashValidity is how many blocks past submission a transaction may land.
const BlockhashValidity = 150

type fault struct {
	kind faultKind
	err  error
}

// Ledger is a deterministic stand-in for a cluster.
type Ledger struct {
	mu        sync.Mutex
	accounts  map[solana.PublicKey]*chain.Account
	statuses  map[solana.Signature]chain.Status
	unseen    map[solana.Signature]uint64
	programs  chain.Programs
	custodian solana.PublicKey
	now       func() time.Time
	faults    []fault
	height    uint64

	submissions int
	invocations map[solana.PublicKey]int

	// BeforeSubmit runs before a submission executes, outside the ledger lock.
	BeforeSubmit func(instructions []solana.Instruction)
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock sets the ledger clock.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates an empty ledger for programs; custodian is the administrator
// the purchase order program accepts.
func New(programs chain.Programs, custodian solana.PublicKey, opts ...Option) *Ledger {
	l := &Ledger{
		accounts:    make(map[solana.PublicKey]*chain.Account),
		statuses:    make(map[solana.Signature]chain.Status),
		unseen:      make(map[solana.Signature]uint64),
		programs:    programs,
		custodian:   custodian,
		now:         time.Now,
		height:      1,
		invocations: make(map[solana.PublicKey]int),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// DefaultPrograms returns fresh random program ids.
func DefaultPrograms() chain.Programs {
	return chain.Programs{
		PurchaseOrder: solana.NewWallet().PublicKey(),
		Compliance:    solana.NewWallet().PublicKey(),
	}
}

// Programs returns the program ids the ledger executes.
func (l *Ledger) Programs() chain.Programs { return l.programs }

// GetAccount returns a copy of the account at address.
func (l *Ledger) GetAccount(_ context.Context, address solana.PublicKey) (*chain.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct, ok := l.accounts[address]
	if !ok {
		return nil, chain.ErrAccountNotFound
	}
	return cloneAccount(acct), nil
}

// SignatureStatus reports the recorded outcome of sig.
func (l *Ledger) SignatureStatus(_ context.Context, sig solana.Signature) (chain.Status, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lastValid, ok := l.unseen[sig]; ok && l.height <= lastValid {
		return chain.StatusUnknown, nil
	}
	return l.statuses[sig], nil
}

// BlockHeight returns the ledger height. Every submission adds one block.
func (l *Ledger) BlockHeight(context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.height, nil
}

// AdvanceBlocks moves the ledger height forward by n blocks.
func (l *Ledger) AdvanceBlocks(n uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.height += n
}

// Submit executes instructions atomically.
func (l *Ledger) Submit(ctx context.Context, payer solana.PublicKey, instructions ...solana.Instruction) (solana.Signature, error) {
	if err := ctx.Err(); err != nil {
		return solana.Signature{}, err
	}
	if l.BeforeSubmit != nil {
		l.BeforeSubmit(instructions)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.submissions++
	l.height++
	lastValid := l.height + BlockhashValidity
	for _, ix := range instructions {
		l.invocations[ix.ProgramID()]++
	}

	var f *fault
	if len(l.faults) > 0 {
		f = &l.faults[0]
		l.faults = l.faults[1:]
	}
	if f != nil && f.kind == faultError {
		return solana.Signature{}, f.err
	}

	sig := newSignature()
	pending := &chain.PendingError{Signature: sig, LastValidBlockHeight: lastValid}
	if f != nil && f.kind == faultLost {
		return solana.Signature{}, pending
	}

	state := cloneState(l.accounts)
	x := &executor{ledger: l, state: state, payer: payer}
	for i, ix := range instructions {
		if err := x.run(ix); err != nil {
			l.statuses[sig] = chain.StatusFailed
			txErr := err.toTxError(i, ix.ProgramID(), x.logs)
			txErr.Signature = sig
			return solana.Signature{}, txErr
		}
	}
	l.accounts = state
	l.statuses[sig] = chain.StatusConfirmed
	switch {
	case f != nil && f.kind == faultUnobserved:
		l.unseen[sig] = lastValid
		return solana.Signature{}, pending
	case f != nil && f.kind == faultUnconfirmed:
		return solana.Signature{}, pending
	}
	return sig, nil
}

// FailNextSubmit makes the next submission return err without executing.
func (l *Ledger) FailNextSubmit(err error) {
	l.pushFault(fault{kind: faultError, err: err})
}

// UnconfirmNextSubmit executes the next submission but reports it as pending.
func (l *Ledger) UnconfirmNextSubmit() {
	l.pushFault(fault{kind: faultUnconfirmed})
}

// UnobserveNextSubmit executes the next submission but reports it as pending
// and keeps its status unknown until its blockhash expires, like a node that
// has not caught up yet.
func (l *Ledger) UnobserveNextSubmit() {
	l.pushFault(fault{kind: faultUnobserved})
}

// LoseNextSubmit reports the next submission as pending without executing it.
func (l *Ledger) LoseNextSubmit() {
	l.pushFault(fault{kind: faultLost})
}

func (l *Ledger) pushFault(f fault) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.faults = append(l.faults, f)
}

// Submissions counts every Submit call, including failed ones.
func (l *Ledger) Submissions() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.submissions
}

// Invocations counts submitted top-level instructions for program.
func (l *Ledger) Invocations(program solana.PublicKey) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.invocations[program]
}

func newSignature() solana.Signature {
	var sig solana.Signature
	_, _ = rand.Read(sig[:])
	return sig
}

func cloneAccount(a *chain.Account) *chain.Account {
	c := *a
	c.Data = append([]byte(nil), a.Data...)
	return &c
}

func cloneState(in map[solana.PublicKey]*chain.Account) map[solana.PublicKey]*chain.Account {
	out := make(map[solana.PublicKey]*chain.Account, len(in))
	for k, v := range in {
		out[k] = cloneAccount(v)
	}
	return out
}

var _ chain.Client = (*Ledger)(nil)
