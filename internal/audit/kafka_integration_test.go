//go:build integration

package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/redpanda"
	"github.com/twmb/franz-go/pkg/kgo"
)

func TestKafkaPublisherProducesEvents(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := redpanda.Run(ctx, "docker.redpanda.com/redpandadata/redpanda:v24.2.4",
		redpanda.WithAutoCreateTopics(),
	)
	require.NoError(t, err, "failed to start redpanda container")
	t.Cleanup(func() { container.Terminate(context.Background()) })

	broker, err := container.KafkaSeedBroker(ctx)
	require.NoError(t, err)

	const topic = "decision-events-test"
	pub, err := NewKafkaPublisher([]string{broker}, topic, nil)
	require.NoError(t, err)

	e := NewEvent("routing", "success", "", map[string]string{"route": "route-fast"}, time.Millisecond)
	require.NoError(t, pub.Publish(ctx, e))
	require.NoError(t, pub.Close())

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	var record *kgo.Record
	for record == nil {
		fetches := consumer.PollFetches(ctx)
		require.NoError(t, ctx.Err(), "no record consumed before timeout")
		fetches.EachRecord(func(r *kgo.Record) {
			if record == nil {
				record = r
			}
		})
	}

	assert.Equal(t, "routing", string(record.Key))

	var got Event
	require.NoError(t, json.Unmarshal(record.Value, &got))
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, map[string]string{"route": "route-fast"}, got.Result)
}
