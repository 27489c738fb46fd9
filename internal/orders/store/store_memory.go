package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"

	"srwa/internal/orders/models"
	"srwa/pkg/platform/sentinel"
)

// InMemoryStore indexes orders in process.
type InMemoryStore struct {
	mu     sync.RWMutex
	orders map[solana.PublicKey]*models.Order
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{orders: make(map[solana.PublicKey]*models.Order)}
}

// Save inserts or replaces the order at o.Address. An approval signature
// already indexed is kept when o has none.
func (s *InMemoryStore) Save(_ context.Context, o *models.Order) error {
	if o == nil {
		return fmt.Errorf("order is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := copyOrder(o)
	if prev, ok := s.orders[o.Address]; ok && next.ApprovalTx == nil {
		next.ApprovalTx = prev.ApprovalTx
	}
	s.orders[o.Address] = next
	return nil
}

func (s *InMemoryStore) FindByAddress(_ context.Context, address solana.PublicKey) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[address]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", address, sentinel.ErrNotFound)
	}
	return copyOrder(o), nil
}

// List returns matching orders, newest first.
func (s *InMemoryStore) List(_ context.Context, filter Filter) ([]*models.Order, error) {
	s.mu.RLock()
	out := make([]*models.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if filter.matches(o) {
			out = append(out, copyOrder(o))
		}
	}
	s.mu.RUnlock()

	sortNewestFirst(out)
	if limit := filter.limit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
