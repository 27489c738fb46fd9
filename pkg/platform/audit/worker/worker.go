package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"srwa/pkg/platform/audit/store/postgres"
	txcontext "srwa/pkg/platform/tx"
)

// Producer publishes one record to a topic.
type Producer interface {
	Produce(ctx context.Context, topic string, key, value []byte) error
}

// Outbox is the slice of the postgres store the relay needs.
type Outbox interface {
	FetchUnpublished(ctx context.Context, limit int) ([]postgres.Entry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID) error
}

// Relay moves committed outbox rows to Kafka. Rows are marked published only
// after the broker acknowledged them, so delivery is at-least-once.
type Relay struct {
	outbox   Outbox
	runTx    func(ctx context.Context, fn func(ctx context.Context) error) error
	producer Producer
	topic    string
	batch    int
	interval time.Duration
	logger   *slog.Logger
}

type Option func(*Relay)

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batch = n
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

// NewRelay builds a relay. runTx wraps each batch in one transaction so the
// row locks taken by FetchUnpublished hold until MarkPublished commits.
func NewRelay(outbox Outbox, runTx func(ctx context.Context, fn func(ctx context.Context) error) error, producer Producer, topic string, opts ...Option) *Relay {
	r := &Relay{
		outbox:   outbox,
		runTx:    runTx,
		producer: producer,
		topic:    topic,
		batch:    100,
		interval: time.Second,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewPostgresRelay wires the relay to a postgres outbox store.
func NewPostgresRelay(store *postgres.Store, producer Producer, topic string, opts ...Option) *Relay {
	runTx := func(ctx context.Context, fn func(ctx context.Context) error) error {
		return txcontext.Run(ctx, store.DB(), fn)
	}
	return NewRelay(store, runTx, producer, topic, opts...)
}

// Run polls until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if _, err := r.Flush(ctx); err != nil {
			r.logger.ErrorContext(ctx, "outbox relay failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Flush publishes one batch and returns how many rows were relayed.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	var relayed int
	err := r.runTx(ctx, func(ctx context.Context) error {
		entries, err := r.outbox.FetchUnpublished(ctx, r.batch)
		if err != nil {
			return err
		}
		ids := make([]uuid.UUID, 0, len(entries))
		for _, e := range entries {
			if err := r.producer.Produce(ctx, r.topic, []byte(e.AggregateID), e.Payload); err != nil {
				break
			}
			ids = append(ids, e.ID)
		}
		if len(ids) == 0 {
			return nil
		}
		if err := r.outbox.MarkPublished(ctx, ids); err != nil {
			return err
		}
		relayed = len(ids)
		return nil
	})
	return relayed, err
}
