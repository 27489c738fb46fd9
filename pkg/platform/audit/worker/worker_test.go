package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"srwa/pkg/platform/audit/store/postgres"
)

type fakeOutbox struct {
	entries   []postgres.Entry
	published []uuid.UUID
}

func (f *fakeOutbox) FetchUnpublished(_ context.Context, limit int) ([]postgres.Entry, error) {
	if len(f.entries) > limit {
		return f.entries[:limit], nil
	}
	return f.entries, nil
}

func (f *fakeOutbox) MarkPublished(_ context.Context, ids []uuid.UUID) error {
	f.published = append(f.published, ids...)
	return nil
}

type fakeProducer struct {
	failAfter int
	records   [][]byte
}

func (f *fakeProducer) Produce(_ context.Context, _ string, _, value []byte) error {
	if f.failAfter >= 0 && len(f.records) >= f.failAfter {
		return errors.New("broker down")
	}
	f.records = append(f.records, value)
	return nil
}

func inline(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

func entries(n int) []postgres.Entry {
	out := make([]postgres.Entry, n)
	for i := range out {
		out[i] = postgres.Entry{ID: uuid.New(), AggregateID: "wallet", Payload: []byte(`{}`)}
	}
	return out
}

func TestRelayFlushMarksPublished(t *testing.T) {
	outbox := &fakeOutbox{entries: entries(3)}
	producer := &fakeProducer{failAfter: -1}
	relay := NewRelay(outbox, inline, producer, "audit")

	n, err := relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, outbox.published, 3)
	assert.Len(t, producer.records, 3)
}

func TestRelayStopsAtFirstProduceFailure(t *testing.T) {
	outbox := &fakeOutbox{entries: entries(3)}
	producer := &fakeProducer{failAfter: 1}
	relay := NewRelay(outbox, inline, producer, "audit")

	n, err := relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []uuid.UUID{outbox.entries[0].ID}, outbox.published)
}

func TestRelayRespectsBatchSize(t *testing.T) {
	outbox := &fakeOutbox{entries: entries(5)}
	relay := NewRelay(outbox, inline, &fakeProducer{failAfter: -1}, "audit", WithBatchSize(2))

	n, err := relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
