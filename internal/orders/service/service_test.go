package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"srwa/internal/chain"
	"srwa/internal/chain/chaintest"
	compliance "srwa/internal/compliance/service"
	"srwa/internal/distribution/journal"
	distribution "srwa/internal/distribution/service"
	hook "srwa/internal/hook/service"
	"srwa/internal/orders/ledger"
	"srwa/internal/orders/metrics"
	"srwa/internal/orders/models"
	"srwa/internal/orders/store"
	dErrors "srwa/pkg/domain-errors"
	"srwa/pkg/platform/audit"
	"srwa/pkg/platform/audit/store/memory"
	"srwa/pkg/platform/sentinel"
	"srwa/pkg/requestcontext"
)

type storePublisher struct{ store *memory.InMemoryStore }

func (p storePublisher) Emit(ctx context.Context, e audit.Event) error {
	return p.store.Append(ctx, e)
}

type ServiceSuite struct {
	suite.Suite
	ctx       context.Context
	now       time.Time
	chain     *chaintest.Ledger
	custodian solana.PublicKey
	buyer     solana.PublicKey
	mint      solana.PublicKey
	ledger    *ledger.Ledger
	index     *store.InMemoryStore
	audit     *memory.InMemoryStore
	metrics   *metrics.Metrics
	service   *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.now = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.custodian = solana.NewWallet().PublicKey()
	s.buyer = solana.NewWallet().PublicKey()

	s.chain = chaintest.New(chaintest.DefaultPrograms(), s.custodian)
	s.chain.Fund(s.custodian, 10_000_000_000)
	s.chain.Fund(s.buyer, 1_000_000)
	programs := s.chain.Programs()
	s.mint = s.chain.CreateMint(s.custodian, 6, programs.Compliance)
	s.chain.CreateTokenAccount(s.custodian, s.mint, 1_000_000_000)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registrar := compliance.New(s.chain, programs.Compliance, s.custodian, compliance.WithLogger(logger))
	resolver := hook.New(s.chain, s.custodian, hook.WithLogger(logger))
	entries := journal.NewInMemory()
	executor := distribution.New(s.chain, s.custodian, registrar, resolver, entries, distribution.WithLogger(logger))

	s.ledger = ledger.New(s.chain, programs.PurchaseOrder, s.custodian)
	s.index = store.NewInMemoryStore()
	s.audit = memory.NewInMemoryStore()
	s.metrics = metrics.NewWith(prometheus.NewRegistry())
	s.service = New(s.ledger, s.index, executor,
		WithLogger(logger),
		WithAuditPublisher(storePublisher{s.audit}),
		WithMetrics(s.metrics),
		WithDistributionLookup(entries),
	)
}

func (s *ServiceSuite) create(quantity, unitPrice uint64) *models.Order {
	o, err := s.service.Create(s.ctx, CreateRequest{Buyer: s.buyer, Mint: s.mint, Quantity: quantity, UnitPrice: unitPrice})
	s.Require().NoError(err)
	return o
}

func (s *ServiceSuite) tokens() uint64 {
	balance, _ := s.chain.TokenBalance(s.buyer, s.mint)
	return balance
}

func (s *ServiceSuite) events(action audit.AuditEvent) []audit.Event {
	events, err := s.audit.ListByAction(s.ctx, action)
	s.Require().NoError(err)
	return events
}

func (s *ServiceSuite) transitions(action, outcome string) float64 {
	return testutil.ToFloat64(s.metrics.Transitions.WithLabelValues(action, outcome))
}

func (s *ServiceSuite) TestCreateEscrowsAndIndexes() {
	custodianBefore := s.chain.Lamports(s.custodian)

	o := s.create(3, 100_000)

	s.Equal(models.StatusPending, o.Status)
	s.Equal(uint64(300_000), o.TotalEscrowed)
	s.Equal(s.now.UnixMilli(), o.Nonce/1000)
	s.Equal(s.now, o.CreatedAt)
	s.Equal(uint64(700_000), s.chain.Lamports(s.buyer))
	s.Equal(custodianBefore+300_000, s.chain.Lamports(s.custodian))

	indexed, err := s.index.FindByAddress(s.ctx, o.Address)
	s.Require().NoError(err)
	s.Equal(o.Address, indexed.Address)

	events := s.events(audit.EventOrderCreated)
	s.Require().Len(events, 1)
	s.Equal(o.Address.String(), events[0].Resource)
	s.Equal(1.0, s.transitions(metrics.ActionCreate, metrics.OutcomeSucceeded))
}

func (s *ServiceSuite) TestSameMillisecondOrdersGetDistinctAddresses() {
	first := s.create(1, 10)
	second := s.create(1, 10)

	s.NotEqual(first.Address, second.Address)
	s.NotEqual(first.Nonce, second.Nonce)
	s.Equal(first.CreatedAt, second.CreatedAt)
}

func (s *ServiceSuite) TestTakenNonceIsDrawnAgain() {
	base := s.now.UnixMilli() * 1000
	nonces := []int64{base + 7, base + 7, base + 8}
	service := New(s.ledger, s.index, nil, WithNonceSource(func(time.Time) int64 {
		next := nonces[0]
		nonces = nonces[1:]
		return next
	}))

	first, err := service.Create(s.ctx, CreateRequest{Buyer: s.buyer, Mint: s.mint, Quantity: 1, UnitPrice: 10})
	s.Require().NoError(err)
	second, err := service.Create(s.ctx, CreateRequest{Buyer: s.buyer, Mint: s.mint, Quantity: 1, UnitPrice: 10})
	s.Require().NoError(err)

	s.Equal(base+7, first.Nonce)
	s.Equal(base+8, second.Nonce)
	s.Empty(nonces)
}

// 100 tokens at 10 lamports each, rejected as a duplicate: the buyer gets
// the whole escrow back.
func (s *ServiceSuite) TestRejectedDuplicateOrderRefundsEscrow() {
	o := s.create(100, 10)
	s.Equal(uint64(1_000), o.TotalEscrowed)
	afterEscrow := s.chain.Lamports(s.buyer)

	rejected, err := s.service.Reject(s.ctx, o.Address, "duplicate")
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, rejected.Status)
	s.Equal("duplicate", rejected.RejectionReason)
	s.Equal(uint64(1_000), rejected.TotalEscrowed)
	s.Equal(afterEscrow+1_000, s.chain.Lamports(s.buyer))
	s.Equal("duplicate", s.chain.Order(o.Address).RejectionReason)
	s.Zero(s.tokens())
}

// 50 tokens at 20 lamports each, approved: the buyer receives 50 whole
// tokens scaled by the mint's 6 decimals.
func (s *ServiceSuite) TestApprovedOrderDeliversScaledTokens() {
	o := s.create(50, 20)
	s.Equal(uint64(1_000), o.TotalEscrowed)

	approved, err := s.service.Approve(s.ctx, o.Address)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, approved.Status)
	s.Equal(uint64(1_000), approved.TotalEscrowed)
	s.Equal(uint64(50_000_000), s.tokens())
	s.Equal(models.StatusApproved, s.chain.Order(o.Address).Status)
}

func (s *ServiceSuite) TestCreateRejectsInvalidInput() {
	cases := []struct {
		name      string
		quantity  uint64
		unitPrice uint64
	}{
		{"zero quantity", 0, 10},
		{"zero price", 10, 0},
		{"overflowing total", math.MaxUint64, 2},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := s.service.Create(s.ctx, CreateRequest{Buyer: s.buyer, Mint: s.mint, Quantity: tc.quantity, UnitPrice: tc.unitPrice})
			s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
	s.Equal(0, s.chain.Submissions())
	s.Equal(uint64(1_000_000), s.chain.Lamports(s.buyer))
}

func (s *ServiceSuite) TestCreateWithoutFunds() {
	_, err := s.service.Create(s.ctx, CreateRequest{Buyer: s.buyer, Mint: s.mint, Quantity: 2, UnitPrice: 1_000_000})
	s.True(dErrors.HasCode(err, dErrors.CodeInsufficientFunds))
	s.Equal(uint64(1_000_000), s.chain.Lamports(s.buyer))

	orders, err := s.index.List(s.ctx, store.Filter{})
	s.Require().NoError(err)
	s.Empty(orders)
}

func (s *ServiceSuite) TestApproveDeliversThenMarks() {
	o := s.create(3, 100_000)

	approved, err := s.service.Approve(s.ctx, o.Address)
	s.Require().NoError(err)

	s.Equal(models.StatusApproved, approved.Status)
	s.Require().NotNil(approved.ProcessedBy)
	s.Equal(s.custodian, *approved.ProcessedBy)
	s.Require().NotNil(approved.ApprovalTx, "distribution signature is recorded")
	s.Equal(uint64(3_000_000), s.tokens())
	s.Equal(models.StatusApproved, s.chain.Order(o.Address).Status)

	indexed, err := s.index.FindByAddress(s.ctx, o.Address)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, indexed.Status)
	s.Equal(approved.ApprovalTx, indexed.ApprovalTx)

	events := s.events(audit.EventOrderApproved)
	s.Require().Len(events, 1)
	s.Equal(s.buyer.String(), events[0].Subject)
}

func (s *ServiceSuite) TestSecondApprovalIsAlreadyFinalized() {
	o := s.create(1, 100_000)
	_, err := s.service.Approve(s.ctx, o.Address)
	s.Require().NoError(err)

	_, err = s.service.Approve(s.ctx, o.Address)
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadyFinalized))
	s.Equal(uint64(1_000_000), s.tokens(), "no second delivery")
	s.Equal(1.0, s.transitions(metrics.ActionApprove, metrics.OutcomeAlreadyFinalized))
}

func (s *ServiceSuite) TestRejectRefunds() {
	o := s.create(2, 100_000)

	rejected, err := s.service.Reject(s.ctx, o.Address, "  allocation closed ")
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, rejected.Status)
	s.Equal("allocation closed", rejected.RejectionReason)
	s.Equal(uint64(1_000_000), s.chain.Lamports(s.buyer))

	_, err = s.service.Approve(s.ctx, o.Address)
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadyFinalized))
	_, hasAccount := s.chain.TokenBalance(s.buyer, s.mint)
	s.False(hasAccount, "a rejected order never distributes")

	_, err = s.service.Reject(s.ctx, o.Address, "again")
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadyFinalized))
	s.Equal(uint64(1_000_000), s.chain.Lamports(s.buyer), "refund happens once")

	events := s.events(audit.EventOrderRejected)
	s.Require().Len(events, 1)
	s.Equal("allocation closed", events[0].Reason)
}

func (s *ServiceSuite) TestFailedDistributionLeavesOrderPending() {
	o := s.create(2, 100_000)
	s.chain.PutComplianceRecord(s.buyer, true, false)

	_, err := s.service.Approve(s.ctx, o.Address)
	s.True(dErrors.HasCode(err, dErrors.CodeComplianceInactive))
	s.Equal(models.StatusPending, s.chain.Order(o.Address).Status)
	s.Zero(s.tokens())

	_, err = s.service.Reject(s.ctx, o.Address, "wallet revoked")
	s.Require().NoError(err)
	s.Equal(uint64(1_000_000), s.chain.Lamports(s.buyer))
}

func (s *ServiceSuite) TestApprovalResumesAfterMarkFailure() {
	o := s.create(4, 100_000)
	purchaseOrder := s.chain.Programs().PurchaseOrder
	failed := false
	s.chain.BeforeSubmit = func(ixs []solana.Instruction) {
		if !failed && ixs[0].ProgramID().Equals(purchaseOrder) {
			failed = true
			s.chain.FailNextSubmit(errors.New("blockhash not found"))
		}
	}

	_, err := s.service.Approve(s.ctx, o.Address)
	s.True(dErrors.HasCode(err, dErrors.CodeSubmissionFailed))
	s.Equal(uint64(4_000_000), s.tokens())
	s.Equal(models.StatusPending, s.chain.Order(o.Address).Status)

	_, err = s.service.Reject(s.ctx, o.Address, "")
	s.True(dErrors.HasCode(err, dErrors.CodeConflict), "delivered tokens block a refund")

	approved, err := s.service.Approve(s.ctx, o.Address)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, approved.Status)
	s.Equal(uint64(4_000_000), s.tokens(), "retry replays the delivery")
}

func (s *ServiceSuite) TestRejectDuringDistributionIsRefused() {
	o := s.create(1, 100_000)
	var rejectErr error
	s.chain.BeforeSubmit = func(ixs []solana.Instruction) {
		for _, ix := range ixs {
			data, err := ix.Data()
			if err != nil || !ix.ProgramID().Equals(chain.Token2022ProgramID) {
				continue
			}
			if _, _, ok := chain.DecodeTransferChecked(data); ok {
				s.chain.BeforeSubmit = nil
				_, rejectErr = s.service.Reject(s.ctx, o.Address, "")
			}
		}
	}

	_, err := s.service.Approve(s.ctx, o.Address)
	s.Require().NoError(err)
	s.True(dErrors.HasCode(rejectErr, dErrors.CodeDistributionInFlight))
	s.Equal(uint64(900_000), s.chain.Lamports(s.buyer), "escrow was not refunded")
}

func (s *ServiceSuite) TestGetFallsBackToLedger() {
	address, _, err := s.ledger.Create(s.ctx, s.buyer, s.mint, 1, 500, 42)
	s.Require().NoError(err)

	o, err := s.service.Get(s.ctx, address)
	s.Require().NoError(err)
	s.Equal(uint64(500), o.TotalEscrowed)

	_, err = s.index.FindByAddress(s.ctx, address)
	s.Require().NoError(err, "ledger read is indexed")

	_, err = s.service.Get(s.ctx, solana.NewWallet().PublicKey())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *ServiceSuite) TestSyncRepairsStaleIndex() {
	o := s.create(1, 100)
	_, err := s.ledger.Reject(s.ctx, o, "out of band")
	s.Require().NoError(err)

	stale, err := s.service.Get(s.ctx, o.Address)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, stale.Status)

	synced, err := s.service.Sync(s.ctx, o.Address)
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, synced.Status)

	fresh, err := s.service.Get(s.ctx, o.Address)
	s.Require().NoError(err)
	s.Equal("out of band", fresh.RejectionReason)
}

func (s *ServiceSuite) TestListByStatus() {
	first := s.create(1, 100)
	s.ctx = requestcontext.WithTime(context.Background(), s.now.Add(time.Second))
	second := s.create(1, 200)
	_, err := s.service.Reject(s.ctx, first.Address, "")
	s.Require().NoError(err)

	pending := models.StatusPending
	orders, err := s.service.List(s.ctx, store.Filter{Status: &pending})
	s.Require().NoError(err)
	s.Require().Len(orders, 1)
	s.Equal(second.Address, orders[0].Address)

	all, err := s.service.List(s.ctx, store.Filter{Buyer: &s.buyer})
	s.Require().NoError(err)
	s.Len(all, 2)
}

func (s *ServiceSuite) TestUnconfirmedCreateAsksForRecheck() {
	s.chain.UnconfirmNextSubmit()

	_, err := s.service.Create(s.ctx, CreateRequest{Buyer: s.buyer, Mint: s.mint, Quantity: 1, UnitPrice: 100})
	s.True(dErrors.HasCode(err, dErrors.CodeConfirmationTimeout))
	s.Equal(dErrors.CategorySubmission, dErrors.CategoryOf(err))
}
