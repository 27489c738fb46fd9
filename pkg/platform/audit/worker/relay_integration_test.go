//go:build integration

package worker_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"srwa/internal/platform/kafka"
	"srwa/pkg/platform/audit"
	"srwa/pkg/platform/audit/store/postgres"
	"srwa/pkg/platform/audit/worker"
	"srwa/pkg/testutil/containers"
)

type RelaySuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	redpanda *containers.RedpandaContainer
	producer *kafka.Producer
}

func TestRelaySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RelaySuite))
}

func (s *RelaySuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.redpanda = mgr.GetRedpanda(s.T())
	producer, err := kafka.NewProducer(s.redpanda.Brokers, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Require().NoError(err)
	s.producer = producer
}

func (s *RelaySuite) TearDownSuite() {
	s.producer.Close()
}

func (s *RelaySuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "outbox"))
}

func (s *RelaySuite) TestOutboxReachesTopic() {
	ctx := context.Background()
	topic := "srwa.audit." + time.Now().Format("150405.000000")
	store := postgres.New(s.postgres.DB)
	s.Require().NoError(store.Append(ctx, audit.Event{
		Subject:   "buyer-wallet",
		Action:    string(audit.EventOrderApproved),
		Resource:  "order-address",
		Decision:  "approved",
		Signature: "sig",
		Timestamp: time.Now(),
	}))

	relay := worker.NewPostgresRelay(store, s.producer, topic)
	relayed, err := relay.Flush(ctx)
	s.Require().NoError(err)
	s.Equal(1, relayed)

	again, err := relay.Flush(ctx)
	s.Require().NoError(err)
	s.Zero(again, "published rows are not relayed twice")

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	pollCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	fetches := consumer.PollRecords(pollCtx, 1)
	s.Require().Empty(fetches.Errors())
	records := fetches.Records()
	s.Require().Len(records, 1)
	s.Equal("buyer-wallet", string(records[0].Key))

	var payload postgres.Payload
	s.Require().NoError(json.Unmarshal(records[0].Value, &payload))
	s.Equal(string(audit.EventOrderApproved), payload.Action)
	s.Equal("order-address", payload.Resource)
	s.Equal(string(audit.CategoryCompliance), payload.Category)
}
