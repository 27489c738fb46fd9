package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"srwa/internal/chain/chaintest"
	"srwa/internal/compliance/metrics"
	dErrors "srwa/pkg/domain-errors"
	"srwa/pkg/platform/audit"
	"srwa/pkg/platform/audit/store/memory"
	"srwa/pkg/platform/sentinel"
)

type storePublisher struct{ store *memory.InMemoryStore }

func (p storePublisher) Emit(ctx context.Context, e audit.Event) error {
	return p.store.Append(ctx, e)
}

type failingPublisher struct{ err error }

func (p failingPublisher) Emit(context.Context, audit.Event) error { return p.err }

type ServiceSuite struct {
	suite.Suite
	ctx       context.Context
	ledger    *chaintest.Ledger
	authority solana.PublicKey
	audit     *memory.InMemoryStore
	metrics   *metrics.Metrics
	service   *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.authority = solana.NewWallet().PublicKey()
	s.ledger = chaintest.New(chaintest.DefaultPrograms(), s.authority)
	s.ledger.Fund(s.authority, 10_000_000_000)
	s.audit = memory.NewInMemoryStore()
	s.metrics = metrics.NewWith(prometheus.NewRegistry())
	s.service = s.newService()
}

func (s *ServiceSuite) newService(opts ...Option) *Service {
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditPublisher(storePublisher{s.audit}),
		WithMetrics(s.metrics),
	}
	return New(s.ledger, s.ledger.Programs().Compliance, s.authority, append(base, opts...)...)
}

func (s *ServiceSuite) registrations(outcome string) float64 {
	return testutil.ToFloat64(s.metrics.Registrations.WithLabelValues(outcome))
}

func (s *ServiceSuite) TestLookup() {
	wallet := solana.NewWallet().PublicKey()

	_, err := s.service.Lookup(s.ctx, wallet)
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeNotFound))
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.ledger.PutComplianceRecord(wallet, true, true)
	rec, err := s.service.Lookup(s.ctx, wallet)
	s.Require().NoError(err)
	s.True(rec.Cleared())
	s.Equal(wallet, rec.Subject)
}

func (s *ServiceSuite) TestEnsureRegistered() {
	s.Run("already cleared is a no-op", func() {
		wallet := solana.NewWallet().PublicKey()
		s.ledger.PutComplianceRecord(wallet, true, true)
		before := s.ledger.Submissions()

		s.Require().NoError(s.service.EnsureRegistered(s.ctx, wallet))
		s.Equal(before, s.ledger.Submissions())
	})

	s.Run("absent record is created verified and active", func() {
		wallet := solana.NewWallet().PublicKey()

		s.Require().NoError(s.service.EnsureRegistered(s.ctx, wallet))
		rec := s.ledger.ComplianceRecord(wallet)
		s.Require().NotNil(rec)
		s.True(rec.Verified)
		s.True(rec.Active)

		events, err := s.audit.ListBySubject(s.ctx, wallet.String())
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal(string(audit.EventComplianceRegistered), events[0].Action)
		s.NotEmpty(events[0].Signature)
	})

	s.Run("revoked record is never reactivated", func() {
		wallet := solana.NewWallet().PublicKey()
		s.ledger.PutComplianceRecord(wallet, true, false)
		before := s.ledger.Submissions()

		err := s.service.EnsureRegistered(s.ctx, wallet)
		s.Require().Error(err)
		s.True(dErrors.Is(err, dErrors.CodeComplianceInactive))
		s.Equal(dErrors.CategoryCompliance, dErrors.CategoryOf(err))
		s.Equal(before, s.ledger.Submissions(), "no write for a revoked wallet")
		s.False(s.ledger.ComplianceRecord(wallet).Active)
	})

	s.Run("unverified record is rejected", func() {
		wallet := solana.NewWallet().PublicKey()
		s.ledger.PutComplianceRecord(wallet, false, true)

		err := s.service.EnsureRegistered(s.ctx, wallet)
		s.True(dErrors.Is(err, dErrors.CodeComplianceInactive))
		s.Contains(err.Error(), "unverified")
	})

	s.Run("auto-registration disabled", func() {
		svc := s.newService(WithAutoRegister(false))
		wallet := solana.NewWallet().PublicKey()

		err := svc.EnsureRegistered(s.ctx, wallet)
		s.True(dErrors.Is(err, dErrors.CodeComplianceMissing))
		s.Nil(s.ledger.ComplianceRecord(wallet))
	})
}

func (s *ServiceSuite) TestEnsureRegisteredConcurrentRegistrationWins() {
	wallet := solana.NewWallet().PublicKey()
	s.ledger.BeforeSubmit = func([]solana.Instruction) {
		s.ledger.PutComplianceRecord(wallet, true, true)
	}
	defer func() { s.ledger.BeforeSubmit = nil }()

	s.Require().NoError(s.service.EnsureRegistered(s.ctx, wallet))
	s.Equal(1.0, s.registrations(metrics.OutcomeConcurrent))
}

func (s *ServiceSuite) TestEnsureRegisteredSubmissionFailure() {
	wallet := solana.NewWallet().PublicKey()
	s.ledger.FailNextSubmit(errors.New("rpc unavailable"))

	err := s.service.EnsureRegistered(s.ctx, wallet)
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeEnsureRegistrationFailed))
	s.Contains(err.Error(), "rpc unavailable")
	s.Equal(1.0, s.registrations(metrics.OutcomeFailed))
	s.Equal(1, s.ledger.Submissions(), "no automatic retry")
}

func (s *ServiceSuite) TestEnsureRegisteredUnconfirmedButLanded() {
	wallet := solana.NewWallet().PublicKey()
	s.ledger.UnconfirmNextSubmit()

	s.Require().NoError(s.service.EnsureRegistered(s.ctx, wallet))
	s.True(s.ledger.ComplianceRecord(wallet).Cleared())
}

func (s *ServiceSuite) TestAttestAndRevoke() {
	wallet := solana.NewWallet().PublicKey()

	rec, err := s.service.Attest(s.ctx, wallet, false)
	s.Require().NoError(err)
	s.False(rec.Verified)
	s.True(rec.Active)

	rec, err = s.service.Attest(s.ctx, wallet, true)
	s.Require().NoError(err)
	s.True(rec.Cleared())

	rec, err = s.service.Revoke(s.ctx, wallet, "sanctions hit")
	s.Require().NoError(err)
	s.False(rec.Active)
	s.True(rec.Verified)

	before := s.ledger.Submissions()
	_, err = s.service.Revoke(s.ctx, wallet, "again")
	s.Require().NoError(err)
	s.Equal(before, s.ledger.Submissions(), "revoking an inactive record does not write")

	events, err := s.audit.ListByAction(s.ctx, audit.EventComplianceRevoked)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal("sanctions hit", events[0].Reason)
}

func (s *ServiceSuite) TestRevokeMissing() {
	_, err := s.service.Revoke(s.ctx, solana.NewWallet().PublicKey(), "")
	s.True(dErrors.Is(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestUpdateByForeignAuthorityRejected() {
	wallet := solana.NewWallet().PublicKey()
	s.ledger.PutComplianceRecord(wallet, true, true)
	stranger := solana.NewWallet().PublicKey()
	svc := New(s.ledger, s.ledger.Programs().Compliance, stranger)

	_, err := svc.Revoke(s.ctx, wallet, "")
	s.Require().Error(err)
	s.Equal(dErrors.CategoryOnChain, dErrors.CategoryOf(err))
	s.True(s.ledger.ComplianceRecord(wallet).Active)
}

func (s *ServiceSuite) TestAuditFailureFailsTheChange() {
	service := s.newService(WithAuditPublisher(failingPublisher{errors.New("audit store unavailable")}))
	wallet := solana.NewWallet().PublicKey()

	_, err := service.Attest(s.ctx, wallet, true)
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeInternal))
	s.Contains(err.Error(), "audit")
	s.True(s.ledger.ComplianceRecord(wallet).Cleared(), "the on-chain change stands")

	_, err = service.Revoke(s.ctx, wallet, "sanctions hit")
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeInternal))

	fresh := solana.NewWallet().PublicKey()
	err = service.EnsureRegistered(s.ctx, fresh)
	s.Require().Error(err, "a transfer must not proceed on an unaudited registration")
	s.True(dErrors.Is(err, dErrors.CodeInternal))
}
