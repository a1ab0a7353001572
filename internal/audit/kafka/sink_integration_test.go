//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"agegate/internal/audit"
	"agegate/internal/audit/kafka"
	id "agegate/pkg/domain"
	"agegate/pkg/testutil/containers"
)

func TestSinkProducesKeyedEvents(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	broker := containers.GetManager().GetRedpanda(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	topic := "agegate-audit-" + uuid.NewString()
	sink, err := kafka.NewSink(ctx, kafka.Config{Brokers: broker.Brokers, Topic: topic, Partitions: 1}, nil)
	require.NoError(t, err)
	defer sink.Close()

	// Creating the topic a second time must be harmless.
	again, err := kafka.NewSink(ctx, kafka.Config{Brokers: broker.Brokers, Topic: topic, Partitions: 1}, nil)
	require.NoError(t, err)
	again.Close()

	var bob id.AccountID
	bob[31] = 0x0b
	require.NoError(t, audit.NewPublisher(sink).Emit(ctx, audit.Event{
		Type:    audit.EventSubscriptionCreated,
		Account: bob,
		PlanID:  uuid.NewString(),
	}))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	var got []*kgo.Record
	for len(got) == 0 {
		fetches := consumer.PollFetches(ctx)
		require.NoError(t, ctx.Err())
		fetches.EachRecord(func(r *kgo.Record) { got = append(got, r) })
	}

	require.Equal(t, bob.String(), string(got[0].Key))
	var event audit.Event
	require.NoError(t, json.Unmarshal(got[0].Value, &event))
	require.Equal(t, audit.EventSubscriptionCreated, event.Type)
	require.NotEmpty(t, event.ID)
}
