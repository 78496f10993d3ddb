package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaPublisher produces events as JSON records keyed by model id.
// Records are produced asynchronously; delivery failures are logged.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewKafkaPublisher connects to brokers and produces to topic.
func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("audit: no kafka brokers configured")
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerLinger(0),
	)
	if err != nil {
		return nil, fmt.Errorf("audit: create kafka client: %w", err)
	}

	return &KafkaPublisher{
		client: client,
		topic:  topic,
		logger: logger.With("component", "audit", "topic", topic),
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit: encode event: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(e.ModelID),
		Value: payload,
	}
	// The request context ends with the response; produce must outlive it.
	p.client.Produce(context.WithoutCancel(ctx), record, func(r *kgo.Record, err error) {
		if err != nil {
			p.logger.Warn("failed to produce audit event", "event_id", e.ID, "error", err)
		}
	})
	return nil
}

// Close flushes buffered records and closes the client.
func (p *KafkaPublisher) Close() error {
	if err := p.client.Flush(context.Background()); err != nil {
		p.client.Close()
		return fmt.Errorf("audit: flush: %w", err)
	}
	p.client.Close()
	return nil
}
