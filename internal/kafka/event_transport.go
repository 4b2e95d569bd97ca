package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"schedle/internal/config"
	"schedle/internal/events"
	kafkahandlers "schedle/internal/kafka/handlers"
)

// EventTransport publishes domain events to a Kafka topic and, when running,
// feeds events read from that topic into a local bus. Stored notifications
// are shared through the partition store, but the live websocket push only
// reaches clients connected to the process that consumed the event.
type EventTransport struct {
	producer MessageProducer
	consumer MessageConsumer
	cfg      config.KafkaConfig
	now      func() time.Time
}

// NewEventTransport wires a producer and a consumer to the events topic.
func NewEventTransport(producer MessageProducer, consumer MessageConsumer, cfg config.KafkaConfig) *EventTransport {
	return &EventTransport{producer: producer, consumer: consumer, cfg: cfg, now: time.Now}
}

// Publish sends the event envelope keyed by its first recipient, so events
// for one user stay ordered within a partition.
func (t *EventTransport) Publish(ctx context.Context, event events.Event) error {
	env, err := events.Wrap(event, t.now())
	if err != nil {
		return err
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode event envelope: %w", err)
	}

	var key []byte
	if recipients := event.Recipients(); len(recipients) > 0 {
		key = []byte(recipients[0])
	}
	if err := t.producer.SendMessage(ctx, t.cfg.EventsTopic, key, payload); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.EventType(), err)
	}
	return nil
}

// Run consumes the events topic and dispatches every event to local until ctx is done.
func (t *EventTransport) Run(ctx context.Context, local events.Publisher) error {
	handler := kafkahandlers.NewEnvelopeHandler(local)
	log.Printf("Consuming domain events from %s as %s", t.cfg.EventsTopic, t.cfg.ConsumerGroup)
	return t.consumer.Consume(ctx, []string{t.cfg.EventsTopic}, t.cfg.ConsumerGroup, handler.Handle)
}

// Close releases the producer and the consumer.
func (t *EventTransport) Close() {
	t.producer.Close()
	t.consumer.Close()
}
