package ledger

import (
	"context"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/suite"

	"srwa/internal/chain/chaintest"
	"srwa/internal/orders/models"
	dErrors "srwa/pkg/domain-errors"
	"srwa/pkg/platform/sentinel"
)

type LedgerSuite struct {
	suite.Suite
	ctx       context.Context
	chain     *chaintest.Ledger
	custodian solana.PublicKey
	buyer     solana.PublicKey
	mint      solana.PublicKey
	ledger    *Ledger
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupTest() {
	s.ctx = context.Background()
	s.custodian = solana.NewWallet().PublicKey()
	s.chain = chaintest.New(chaintest.DefaultPrograms(), s.custodian)
	s.chain.Fund(s.custodian, 1_000_000_000)
	s.buyer = solana.NewWallet().PublicKey()
	s.chain.Fund(s.buyer, 100_000)
	s.mint = s.chain.CreateMint(s.custodian, 0, solana.PublicKey{})
	s.ledger = New(s.chain, s.chain.Programs().PurchaseOrder, s.custodian)
}

func (s *LedgerSuite) create(quantity, price uint64) *models.Order {
	addr, _, err := s.ledger.Create(s.ctx, s.buyer, s.mint, quantity, price, 1_700_000_000_000)
	s.Require().NoError(err)
	o, err := s.ledger.Fetch(s.ctx, addr)
	s.Require().NoError(err)
	return o
}

func (s *LedgerSuite) TestCreateEscrowsAndRecords() {
	o := s.create(4, 2_500)

	s.Equal(models.StatusPending, o.Status)
	s.Equal(uint64(10_000), o.TotalEscrowed)
	s.Equal(s.buyer, o.Buyer)
	s.Equal(int64(1_700_000_000_000), o.Nonce)
	s.Equal(models.NonceTime(o.Nonce), o.CreatedAt)
	s.Equal(uint64(90_000), s.chain.Lamports(s.buyer))
}

func (s *LedgerSuite) TestCreateRefusesTakenAddress() {
	first := s.create(1, 1_000)
	submissions := s.chain.Submissions()

	addr, _, err := s.ledger.Create(s.ctx, s.buyer, s.mint, 2, 1_000, first.Nonce)
	s.ErrorIs(err, models.ErrAddressTaken)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Equal(first.Address, addr)
	s.Equal(submissions, s.chain.Submissions(), "nothing is sent")
	s.Equal(uint64(99_000), s.chain.Lamports(s.buyer))
}

func (s *LedgerSuite) TestCreateWithoutFundsLeavesNothing() {
	addr, _, err := s.ledger.Create(s.ctx, s.buyer, s.mint, 1, 1_000_000, 1)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInsufficientFunds))
	s.False(s.chain.HasAccount(addr))
}

func (s *LedgerSuite) TestRejectRefunds() {
	o := s.create(2, 1_000)

	_, err := s.ledger.Reject(s.ctx, o, "sold out")
	s.Require().NoError(err)

	got, err := s.ledger.Fetch(s.ctx, o.Address)
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, got.Status)
	s.Equal("sold out", got.RejectionReason)
	s.Require().NotNil(got.ProcessedBy)
	s.Equal(s.custodian, *got.ProcessedBy)
	s.Equal(uint64(100_000), s.chain.Lamports(s.buyer))
}

func (s *LedgerSuite) TestSecondTerminalTransitionIsAlreadyFinalized() {
	o := s.create(1, 100)
	_, err := s.ledger.Reject(s.ctx, o, "")
	s.Require().NoError(err)

	_, err = s.ledger.Reject(s.ctx, o, "")
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadyFinalized))
	s.Equal(dErrors.CategoryConflict, dErrors.CategoryOf(err))

	s.chain.CreateTokenAccount(s.custodian, s.mint, 0)
	s.chain.CreateTokenAccount(s.buyer, s.mint, 1)
	_, err = s.ledger.MarkApproved(s.ctx, o)
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadyFinalized))
	s.Equal(uint64(100_000), s.chain.Lamports(s.buyer), "refund happens once")
}

func (s *LedgerSuite) TestMarkApproved() {
	o := s.create(3, 10)
	s.chain.CreateTokenAccount(s.custodian, s.mint, 0)
	s.chain.CreateTokenAccount(s.buyer, s.mint, 3)

	_, err := s.ledger.MarkApproved(s.ctx, o)
	s.Require().NoError(err)
	got, err := s.ledger.Fetch(s.ctx, o.Address)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, got.Status)
}

func (s *LedgerSuite) TestOverlongReasonIsValidation() {
	o := s.create(1, 100)
	_, err := s.ledger.Reject(s.ctx, o, strings.Repeat("x", models.MaxRejectionReasonLen+1))
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *LedgerSuite) TestFetch() {
	s.Run("missing", func() {
		_, err := s.ledger.Fetch(s.ctx, solana.NewWallet().PublicKey())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
	s.Run("foreign account", func() {
		_, err := s.ledger.Fetch(s.ctx, s.mint)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}
