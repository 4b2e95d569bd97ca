package models

import "time"

// NotificationType classifies a notification.
type NotificationType string

const (
	NotificationFriendRequest  NotificationType = "friend_request"
	NotificationFriendAccepted NotificationType = "friend_accepted"
	NotificationEventInvite    NotificationType = "event_invite"
	NotificationEventUpdate    NotificationType = "event_update"
	NotificationSystem         NotificationType = "system"
)

// Valid reports whether t is one of the known notification types.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationFriendRequest, NotificationFriendAccepted, NotificationEventInvite,
		NotificationEventUpdate, NotificationSystem:
		return true
	}
	return false
}

// Notification is an entry in a user's notification list.
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Type      NotificationType `json:"type"`
	IsRead    bool             `json:"isRead"`
	CreatedAt time.Time        `json:"createdAt"`
	RelatedID string           `json:"relatedId,omitempty"`
}
