package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"srwa/internal/hook/models"
	"srwa/pkg/platform/sentinel"
)

type cachedState struct {
	state    models.MintState
	storedAt time.Time
}

// InMemoryCache keeps mint states in process with TTL expiration.
type InMemoryCache struct {
	mu     sync.RWMutex
	states map[solana.PublicKey]cachedState
	ttl    time.Duration
	now    func() time.Time
}

type InMemoryOption func(*InMemoryCache)

// WithClock overrides the cache clock; tests use it to expire entries.
func WithClock(now func() time.Time) InMemoryOption {
	return func(c *InMemoryCache) {
		c.now = now
	}
}

func NewInMemoryCache(ttl time.Duration, opts ...InMemoryOption) *InMemoryCache {
	c := &InMemoryCache{
		states: make(map[solana.PublicKey]cachedState),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SaveMintState stores a copy of state. A nil state is a no-op.
func (c *InMemoryCache) SaveMintState(_ context.Context, state *models.MintState) error {
	if state == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[state.Mint] = cachedState{state: *state, storedAt: c.now()}
	return nil
}

// FindMintState returns sentinel.ErrNotFound on a miss or an expired entry.
func (c *InMemoryCache) FindMintState(_ context.Context, mint solana.PublicKey) (*models.MintState, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if cached, ok := c.states[mint]; ok && c.now().Sub(cached.storedAt) < c.ttl {
		state := cached.state
		return &state, nil
	}
	return nil, fmt.Errorf("mint state %s: %w", mint, sentinel.ErrNotFound)
}
