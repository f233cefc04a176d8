// Package eventbus publishes violation events to Kafka so downstream
// consumers (dashboards, enforcement queues) see them as they happen.
package eventbus

import (
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/curbsight/curbsight/internal/monitoring"
	"github.com/curbsight/curbsight/internal/traffic"
)

// Publisher sends violation events to a single topic.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewPublisher connects a synchronous producer to the brokers.
func NewPublisher(brokers []string, topic string) (*Publisher, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("eventbus: connect producer: %w", err)
	}
	return &Publisher{producer: producer, topic: topic}, nil
}

// newWithProducer is the injectable constructor used by tests.
func newWithProducer(producer sarama.SyncProducer, topic string) *Publisher {
	return &Publisher{producer: producer, topic: topic}
}

// Publish sends one violation, keyed by type so a partition preserves
// per-type ordering.
func (p *Publisher) Publish(v traffic.Violation) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("eventbus: marshal violation: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(v.Type),
		Value: sarama.ByteEncoder(payload),
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("eventbus: send: %w", err)
	}
	monitoring.Logf("eventbus: published %s to %s partition=%d offset=%d",
		v.Type, p.topic, partition, offset)
	return nil
}

// Close shuts the underlying producer down.
func (p *Publisher) Close() error {
	return p.producer.Close()
}
