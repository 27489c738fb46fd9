package journal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"srwa/internal/distribution/models"
	"srwa/pkg/platform/sentinel"
)

// InMemory is a single-process journal. Entries live until the process exits.
type InMemory struct {
	mu      sync.Mutex
	entries map[string]models.Entry
	now     func() time.Time
}

type InMemoryOption func(*InMemory)

func WithClock(now func() time.Time) InMemoryOption {
	return func(j *InMemory) {
		j.now = now
	}
}

func NewInMemory(opts ...InMemoryOption) *InMemory {
	j := &InMemory{
		entries: make(map[string]models.Entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

func (j *InMemory) Begin(_ context.Context, key string, ttl time.Duration) (*models.Entry, *models.Lease, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var prior *models.Entry
	if e, ok := j.entries[key]; ok {
		prior = &e
	}
	next, lease := decide(key, prior, j.now(), ttl)
	if lease != nil {
		j.entries[key] = *next
	}
	return prior, lease, nil
}

func (j *InMemory) Renew(_ context.Context, lease *models.Lease, ttl time.Duration) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	e, err := j.held(lease)
	if err != nil {
		return err
	}
	j.entries[lease.Key] = *renewed(e, j.now(), ttl)
	return nil
}

func (j *InMemory) MarkPending(_ context.Context, lease *models.Lease, p models.Pending) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.held(lease); err != nil {
		return err
	}
	j.entries[lease.Key] = *pendingEntry(lease, p)
	return nil
}

func (j *InMemory) Complete(_ context.Context, lease *models.Lease, receipt *models.Receipt) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.held(lease); err != nil {
		return err
	}
	j.entries[lease.Key] = *completedEntry(lease, receipt)
	return nil
}

// Release drops the lease if it is still held; other states are left alone.
func (j *InMemory) Release(_ context.Context, lease *models.Lease) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if e, ok := j.entries[lease.Key]; ok && e.HeldBy(lease) {
		delete(j.entries, lease.Key)
	}
	return nil
}

func (j *InMemory) Get(_ context.Context, key string) (*models.Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	e, ok := j.entries[key]
	if !ok {
		return nil, fmt.Errorf("journal entry %s: %w", key, sentinel.ErrNotFound)
	}
	return &e, nil
}

// held must run under j.mu.
func (j *InMemory) held(lease *models.Lease) (*models.Entry, error) {
	e, ok := j.entries[lease.Key]
	if !ok || !e.HeldBy(lease) {
		return nil, fmt.Errorf("lease on %s lost: %w", lease.Key, sentinel.ErrConflict)
	}
	return &e, nil
}
