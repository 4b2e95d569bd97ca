// Package events defines the domain events raised by the core services.
package events

import "context"

// Type names an event kind on the wire.
type Type string

const (
	TypeFriendRequested Type = "friend.requested"
	TypeFriendAccepted  Type = "friend.accepted"
	TypeEventInvited    Type = "event.invited"
	TypeEventUpdated    Type = "event.updated"
	TypeEventCancelled  Type = "event.cancelled"
)

// Event is implemented by every domain event.
type Event interface {
	EventType() Type
	// Recipients lists the users the event is addressed to.
	Recipients() []string
}

// FriendRequested is raised after a pending request was stored.
type FriendRequested struct {
	RequestID  string `json:"requestId"`
	FromUserID string `json:"fromUserId"`
	ToUserID   string `json:"toUserId"`
}

func (FriendRequested) EventType() Type        { return TypeFriendRequested }
func (e FriendRequested) Recipients() []string { return []string{e.ToUserID} }

// FriendAccepted is raised after the recipient accepted a request.
type FriendAccepted struct {
	RequestID   string `json:"requestId"`
	RequesterID string `json:"requesterId"`
	AccepterID  string `json:"accepterId"`
}

func (FriendAccepted) EventType() Type        { return TypeFriendAccepted }
func (e FriendAccepted) Recipients() []string { return []string{e.RequesterID} }

// EventChange carries the fields shared by calendar event notifications.
type EventChange struct {
	EventID        string   `json:"eventId"`
	Title          string   `json:"title"`
	ActorID        string   `json:"actorId"`
	ParticipantIDs []string `json:"participantIds"`
}

// Recipients returns the participants other than the actor, without duplicates.
func (c EventChange) Recipients() []string {
	seen := make(map[string]bool, len(c.ParticipantIDs))
	out := make([]string, 0, len(c.ParticipantIDs))
	for _, id := range c.ParticipantIDs {
		if id == c.ActorID || id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// EventInvited is raised when an event with participants is created.
type EventInvited struct{ EventChange }

// EventUpdated is raised when an event with participants is edited.
type EventUpdated struct{ EventChange }

// EventCancelled is raised when an event with participants is deleted.
type EventCancelled struct{ EventChange }

func (EventInvited) EventType() Type   { return TypeEventInvited }
func (EventUpdated) EventType() Type   { return TypeEventUpdated }
func (EventCancelled) EventType() Type { return TypeEventCancelled }

// Publisher hands events to whoever reacts to them.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Handler reacts to a published event.
type Handler func(ctx context.Context, event Event) error
