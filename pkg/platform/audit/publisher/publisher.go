// Package publisher emits audit events to a Store.
//
// Compliance-category events are always written synchronously and fail
// closed: if the write fails the caller gets the error and must fail its
// operation. Other categories go through an optional bounded buffer drained
// by a background goroutine.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	audit "srwa/pkg/platform/audit"
)

// ErrBufferFull is returned when the async buffer cannot take another event.
var ErrBufferFull = errors.New("audit buffer full")

// Publisher writes audit events to a store.
type Publisher struct {
	store  audit.Store
	logger *slog.Logger
	now    func() time.Time

	buffer chan audit.Event
	wg     sync.WaitGroup
	once   sync.Once
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithAsyncBuffer enables buffered delivery for non-compliance events.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.buffer = make(chan audit.Event, size)
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		p.now = now
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	if p.buffer != nil {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit records event. The category is derived from the action.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Action == "" {
		return fmt.Errorf("audit event requires Action")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}
	event.Category = audit.AuditEvent(event.Action).Category()

	if p.buffer == nil || event.Category == audit.CategoryCompliance {
		return p.write(ctx, event)
	}

	select {
	case p.buffer <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		if p.logger != nil {
			p.logger.WarnContext(ctx, "audit buffer full, dropping event", "action", event.Action)
		}
		return ErrBufferFull
	}
}

func (p *Publisher) write(ctx context.Context, event audit.Event) error {
	if err := p.store.Append(ctx, event); err != nil {
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "audit write failed",
				"action", event.Action,
				"subject", event.Subject,
				"error", err,
			)
		}
		return fmt.Errorf("audit persistence failed: %w", err)
	}
	return nil
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for event := range p.buffer {
		_ = p.write(context.Background(), event)
	}
}

// Close flushes buffered events and stops the background writer.
func (p *Publisher) Close() {
	p.once.Do(func() {
		if p.buffer != nil {
			close(p.buffer)
			p.wg.Wait()
		}
	})
}
