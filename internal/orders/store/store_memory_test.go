package store

import (
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/suite"

	"srwa/internal/orders/models"
	"srwa/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	ctx   context.Context
	store *InMemoryStore
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewInMemoryStore()
}

func newOrder(buyer solana.PublicKey, status models.Status, created time.Time) *models.Order {
	return &models.Order{
		Address:       solana.NewWallet().PublicKey(),
		Buyer:         buyer,
		Mint:          solana.NewWallet().PublicKey(),
		Quantity:      2,
		UnitPrice:     50,
		TotalEscrowed: 100,
		Status:        status,
		Nonce:         created.UnixMilli(),
		CreatedAt:     created,
		UpdatedAt:     created,
	}
}

func (s *InMemoryStoreSuite) TestSaveAndFind() {
	o := newOrder(solana.NewWallet().PublicKey(), models.StatusPending, time.Now())
	s.Require().NoError(s.store.Save(s.ctx, o))

	found, err := s.store.FindByAddress(s.ctx, o.Address)
	s.Require().NoError(err)
	s.Equal(o, found)

	found.Status = models.StatusApproved
	again, err := s.store.FindByAddress(s.ctx, o.Address)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, again.Status, "callers get copies")

	_, err = s.store.FindByAddress(s.ctx, solana.NewWallet().PublicKey())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestSaveKeepsApprovalSignature() {
	o := newOrder(solana.NewWallet().PublicKey(), models.StatusPending, time.Now())
	sig := solana.Signature{1, 2, 3}
	o.ApprovalTx = &sig
	s.Require().NoError(s.store.Save(s.ctx, o))

	synced := *o
	synced.ApprovalTx = nil
	synced.Status = models.StatusApproved
	s.Require().NoError(s.store.Save(s.ctx, &synced))

	found, err := s.store.FindByAddress(s.ctx, o.Address)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, found.Status)
	s.Require().NotNil(found.ApprovalTx)
	s.Equal(sig, *found.ApprovalTx)
}

func (s *InMemoryStoreSuite) TestListFiltersNewestFirst() {
	buyer := solana.NewWallet().PublicKey()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	older := newOrder(buyer, models.StatusPending, base)
	newer := newOrder(buyer, models.StatusPending, base.Add(time.Hour))
	rejected := newOrder(buyer, models.StatusRejected, base.Add(2*time.Hour))
	other := newOrder(solana.NewWallet().PublicKey(), models.StatusPending, base.Add(3*time.Hour))
	for _, o := range []*models.Order{older, newer, rejected, other} {
		s.Require().NoError(s.store.Save(s.ctx, o))
	}

	pending := models.StatusPending
	got, err := s.store.List(s.ctx, Filter{Status: &pending, Buyer: &buyer})
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal(newer.Address, got[0].Address)
	s.Equal(older.Address, got[1].Address)

	all, err := s.store.List(s.ctx, Filter{})
	s.Require().NoError(err)
	s.Len(all, 4)

	limited, err := s.store.List(s.ctx, Filter{Limit: 1})
	s.Require().NoError(err)
	s.Require().Len(limited, 1)
	s.Equal(other.Address, limited[0].Address)
}
