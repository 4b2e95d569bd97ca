package kafkahandlers

import (
	"context"
	"encoding/json"
	"log"

	"schedle/internal/events"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// EnvelopeHandler decodes domain event envelopes and republishes them locally.
type EnvelopeHandler struct {
	local events.Publisher
}

// NewEnvelopeHandler creates a handler that forwards to local.
func NewEnvelopeHandler(local events.Publisher) *EnvelopeHandler {
	if local == nil {
		log.Panic("local publisher cannot be nil")
	}
	return &EnvelopeHandler{local: local}
}

// Handle is the kafka.MessageHandler for the events topic. Undecodable
// messages are logged and skipped so that their offsets get committed.
func (h *EnvelopeHandler) Handle(ctx context.Context, msg *kafka.Message) error {
	var env events.Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		log.Printf("Skipping malformed event envelope (key %s): %v", string(msg.Key), err)
		return nil
	}
	event, err := env.Decode()
	if err != nil {
		log.Printf("Skipping event envelope of type %s: %v", env.Type, err)
		return nil
	}
	return h.local.Publish(ctx, event)
}
