package kafka

import (
	"context"
	"fmt"
	"log"
	"strings"

	"schedle/internal/config"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// MessageHandler processes one consumed message. The offset is committed only
// when it returns nil.
type MessageHandler func(ctx context.Context, msg *kafka.Message) error

// MessageConsumer consumes topics within a consumer group.
type MessageConsumer interface {
	Consume(ctx context.Context, topics []string, groupID string, handler MessageHandler) error
	Close()
}

// confluentKafkaConsumer implements MessageConsumer with confluent-kafka-go.
type confluentKafkaConsumer struct {
	consumer *kafka.Consumer
	cfg      config.KafkaConfig
	groupID  string
}

// NewConfluentKafkaConsumer prepares a consumer; the connection is made in Consume.
func NewConfluentKafkaConsumer(cfg config.KafkaConfig) (MessageConsumer, error) {
	return &confluentKafkaConsumer{cfg: cfg}, nil
}

// Consume blocks until ctx is canceled or a fatal Kafka error occurs.
func (c *confluentKafkaConsumer) Consume(ctx context.Context, topics []string, groupID string, handler MessageHandler) error {
	if len(topics) == 0 {
		return fmt.Errorf("kafka consumer: no topics specified")
	}
	c.groupID = groupID

	configMap := &kafka.ConfigMap{
		"bootstrap.servers":  strings.Join(c.cfg.Brokers, ","),
		"group.id":           c.groupID,
		"auto.offset.reset":  "earliest",
		"enable.auto.commit": "false",
		"security.protocol":  c.cfg.Protocol,
	}
	if c.cfg.ClientID != "" {
		_ = configMap.SetKey("client.id", c.cfg.ClientID)
	}

	consumer, err := kafka.NewConsumer(configMap)
	if err != nil {
		return fmt.Errorf("failed to create Kafka consumer for group %s: %w", groupID, err)
	}
	c.consumer = consumer

	if err := c.consumer.SubscribeTopics(topics, nil); err != nil {
		_ = c.consumer.Close()
		return fmt.Errorf("failed to subscribe to topics %v for group %s: %w", topics, groupID, err)
	}

	log.Printf("Kafka consumer started for group %s, topics %v", groupID, topics)

	for {
		select {
		case <-ctx.Done():
			log.Printf("Context canceled for consumer group %s. Shutting down.", groupID)
			return nil
		default:
		}

		ev := c.consumer.Poll(1000)
		if ev == nil {
			continue
		}

		switch e := ev.(type) {
		case *kafka.Message:
			if err := handler(ctx, e); err != nil {
				log.Printf("Error processing Kafka message for group %s (topic %s, offset %v): %v",
					groupID, *e.TopicPartition.Topic, e.TopicPartition.Offset, err)
				continue
			}
			if _, err := c.consumer.CommitMessage(e); err != nil {
				log.Printf("Failed to commit offset for group %s (topic %s, offset %v): %v",
					groupID, *e.TopicPartition.Topic, e.TopicPartition.Offset, err)
			}
		case kafka.Error:
			log.Printf("Kafka consumer error for group %s: %v (code %d, fatal %t)", groupID, e, e.Code(), e.IsFatal())
			if e.IsFatal() {
				return e
			}
		case kafka.AssignedPartitions:
			log.Printf("Partitions assigned for group %s: %v", groupID, e.Partitions)
			c.consumer.Assign(e.Partitions)
		case kafka.RevokedPartitions:
			log.Printf("Partitions revoked for group %s: %v", groupID, e.Partitions)
			c.consumer.Unassign()
		}
	}
}

// Close closes the underlying consumer.
func (c *confluentKafkaConsumer) Close() {
	if c.consumer == nil {
		return
	}
	log.Printf("Closing Kafka consumer for group %s...", c.groupID)
	if err := c.consumer.Close(); err != nil {
		log.Printf("Error closing Kafka consumer for group %s: %v", c.groupID, err)
	}
	c.consumer = nil
}
