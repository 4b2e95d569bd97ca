package models

import "time"

// DirectMessage is a chat message between two friends. A copy is stored in
// both participants' message partitions.
type DirectMessage struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
}

// Counterpart returns the participant that is not userID.
func (m DirectMessage) Counterpart(userID string) string {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}
