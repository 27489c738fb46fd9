package journal

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/suite"

	"srwa/internal/distribution/models"
	"srwa/pkg/platform/sentinel"
)

type InMemorySuite struct {
	suite.Suite
	ctx     context.Context
	now     time.Time
	journal *InMemory
}

func TestInMemorySuite(t *testing.T) {
	suite.Run(t, new(InMemorySuite))
}

func (s *InMemorySuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.journal = NewInMemory(WithClock(func() time.Time { return s.now }))
}

func (s *InMemorySuite) begin(key string) *models.Lease {
	_, lease, err := s.journal.Begin(s.ctx, key, time.Minute)
	s.Require().NoError(err)
	s.Require().NotNil(lease)
	return lease
}

func (s *InMemorySuite) TestLeaseLifecycle() {
	prior, lease, err := s.journal.Begin(s.ctx, "k", time.Minute)
	s.Require().NoError(err)
	s.Require().NotNil(lease)
	s.Nil(prior)
	s.NotEmpty(lease.Token)

	prior, again, err := s.journal.Begin(s.ctx, "k", time.Minute)
	s.Require().NoError(err)
	s.Nil(again, "lease is held")
	s.Equal(models.StateInFlight, prior.State)

	s.now = s.now.Add(time.Minute)
	_, takeover, err := s.journal.Begin(s.ctx, "k", time.Minute)
	s.Require().NoError(err)
	s.Require().NotNil(takeover, "expired lease is taken over")
	s.NotEqual(lease.Token, takeover.Token)

	s.Require().NoError(s.journal.Release(s.ctx, lease))
	_, err = s.journal.Get(s.ctx, "k")
	s.NoError(err, "a stale lease cannot release the new holder")

	s.Require().NoError(s.journal.Release(s.ctx, takeover))
	_, err = s.journal.Get(s.ctx, "k")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemorySuite) TestTakenOverLeaseCannotWrite() {
	stale := s.begin("k")
	s.now = s.now.Add(2 * time.Minute)
	current := s.begin("k")

	s.ErrorIs(s.journal.Renew(s.ctx, stale, time.Minute), sentinel.ErrConflict)
	s.ErrorIs(s.journal.MarkPending(s.ctx, stale, models.Pending{Signature: solana.Signature{1}}), sentinel.ErrConflict)
	s.ErrorIs(s.journal.Complete(s.ctx, stale, &models.Receipt{Key: "k"}), sentinel.ErrConflict)

	e, err := s.journal.Get(s.ctx, "k")
	s.Require().NoError(err)
	s.True(e.HeldBy(current))
}

func (s *InMemorySuite) TestRenewExtendsLease() {
	lease := s.begin("k")
	s.now = s.now.Add(50 * time.Second)
	s.Require().NoError(s.journal.Renew(s.ctx, lease, time.Minute))

	s.now = s.now.Add(50 * time.Second)
	_, other, err := s.journal.Begin(s.ctx, "k", time.Minute)
	s.Require().NoError(err)
	s.Nil(other, "renewed lease is still held")
}

func (s *InMemorySuite) TestPendingIsReacquiredWithSignature() {
	sig := solana.Signature{1, 2, 3}
	lease := s.begin("k")
	s.Require().NoError(s.journal.MarkPending(s.ctx, lease, models.Pending{Signature: sig, LastValidBlockHeight: 300}))

	prior, next, err := s.journal.Begin(s.ctx, "k", time.Minute)
	s.Require().NoError(err)
	s.NotNil(next)
	s.Equal(models.StatePending, prior.State)
	s.Equal(sig, prior.Signature)
	s.Equal(uint64(300), prior.LastValidBlockHeight)

	current, err := s.journal.Get(s.ctx, "k")
	s.Require().NoError(err)
	s.Equal(models.StateInFlight, current.State)
	s.Equal(sig, current.Signature)
	s.Equal(uint64(300), current.LastValidBlockHeight)

	s.now = s.now.Add(time.Minute)
	prior, _, err = s.journal.Begin(s.ctx, "k", time.Minute)
	s.Require().NoError(err)
	s.Equal(sig, prior.Signature, "an abandoned re-check still carries the signature")
}

func (s *InMemorySuite) TestCompletedIsFinal() {
	lease := s.begin("k")
	receipt := &models.Receipt{Key: "k", Amount: 5, Signature: solana.Signature{9}}
	s.Require().NoError(s.journal.Complete(s.ctx, lease, receipt))

	prior, next, err := s.journal.Begin(s.ctx, "k", time.Minute)
	s.Require().NoError(err)
	s.Nil(next)
	s.Equal(models.StateCompleted, prior.State)
	s.Equal(uint64(5), prior.Receipt.Amount)

	s.Require().NoError(s.journal.Release(s.ctx, lease))
	_, err = s.journal.Get(s.ctx, "k")
	s.NoError(err, "release leaves completed entries")
	s.ErrorIs(s.journal.Complete(s.ctx, lease, receipt), sentinel.ErrConflict)
}

func (s *InMemorySuite) TestConcurrentBeginAcquiresOnce() {
	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, lease, err := s.journal.Begin(s.ctx, "race", time.Minute); err == nil && lease != nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), wins.Load())
}
