package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"schedle/internal/config"
	"schedle/internal/events"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	topic   string
	key     []byte
	payload []byte
}

type fakeProducer struct {
	sent   []sentMessage
	closed bool
}

func (p *fakeProducer) SendMessage(ctx context.Context, topic string, key []byte, payload []byte) error {
	p.sent = append(p.sent, sentMessage{topic: topic, key: key, payload: payload})
	return nil
}

func (p *fakeProducer) Close() { p.closed = true }

// fakeConsumer replays the messages it was given and returns.
type fakeConsumer struct {
	messages []*kafka.Message
	topics   []string
	groupID  string
	closed   bool
}

func (c *fakeConsumer) Consume(ctx context.Context, topics []string, groupID string, handler MessageHandler) error {
	c.topics, c.groupID = topics, groupID
	for _, m := range c.messages {
		if err := handler(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (c *fakeConsumer) Close() { c.closed = true }

func testKafkaConfig() config.KafkaConfig {
	return config.KafkaConfig{EventsTopic: "schedle-domain-events", ConsumerGroup: "schedle-notifications"}
}

func TestEventTransportPublish(t *testing.T) {
	producer := &fakeProducer{}
	transport := NewEventTransport(producer, &fakeConsumer{}, testKafkaConfig())
	transport.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	event := events.FriendRequested{RequestID: "r1", FromUserID: "user1", ToUserID: "user2"}
	require.NoError(t, transport.Publish(context.Background(), event))

	require.Len(t, producer.sent, 1)
	assert.Equal(t, "schedle-domain-events", producer.sent[0].topic)
	assert.Equal(t, "user2", string(producer.sent[0].key))

	var env events.Envelope
	require.NoError(t, json.Unmarshal(producer.sent[0].payload, &env))
	assert.Equal(t, events.TypeFriendRequested, env.Type)
	decoded, err := env.Decode()
	require.NoError(t, err)
	assert.Equal(t, event, decoded)
}

func TestEventTransportRunDispatchesLocally(t *testing.T) {
	producer := &fakeProducer{}
	topic := "schedle-domain-events"

	// Produce through the transport, then feed the payloads back through Run.
	sender := NewEventTransport(producer, &fakeConsumer{}, testKafkaConfig())
	accepted := events.FriendAccepted{RequestID: "r1", RequesterID: "user1", AccepterID: "user2"}
	require.NoError(t, sender.Publish(context.Background(), accepted))

	consumer := &fakeConsumer{messages: []*kafka.Message{
		{TopicPartition: kafka.TopicPartition{Topic: &topic}, Value: []byte("not json")},
		{TopicPartition: kafka.TopicPartition{Topic: &topic}, Value: producer.sent[0].payload},
	}}
	receiver := NewEventTransport(&fakeProducer{}, consumer, testKafkaConfig())

	bus := events.NewBus()
	var received []events.Event
	bus.Subscribe("test", func(ctx context.Context, e events.Event) error {
		received = append(received, e)
		return nil
	})

	require.NoError(t, receiver.Run(context.Background(), bus))
	assert.Equal(t, []string{topic}, consumer.topics)
	assert.Equal(t, "schedle-notifications", consumer.groupID)
	require.Len(t, received, 1)
	assert.Equal(t, accepted, received[0])

	receiver.Close()
	assert.True(t, consumer.closed)
}
