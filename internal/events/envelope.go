package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Envelope is the JSON form of an event when it leaves the process.
type Envelope struct {
	Type       Type            `json:"type"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

// Wrap encodes event into an envelope.
func Wrap(event Event, occurredAt time.Time) (Envelope, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to encode %s payload: %w", event.EventType(), err)
	}
	return Envelope{Type: event.EventType(), OccurredAt: occurredAt, Payload: payload}, nil
}

// Decode turns the envelope back into its typed event.
func (e Envelope) Decode() (Event, error) {
	var (
		event Event
		err   error
	)
	switch e.Type {
	case TypeFriendRequested:
		var v FriendRequested
		err = json.Unmarshal(e.Payload, &v)
		event = v
	case TypeFriendAccepted:
		var v FriendAccepted
		err = json.Unmarshal(e.Payload, &v)
		event = v
	case TypeEventInvited:
		var v EventInvited
		err = json.Unmarshal(e.Payload, &v)
		event = v
	case TypeEventUpdated:
		var v EventUpdated
		err = json.Unmarshal(e.Payload, &v)
		event = v
	case TypeEventCancelled:
		var v EventCancelled
		err = json.Unmarshal(e.Payload, &v)
		event = v
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return event, nil
}
