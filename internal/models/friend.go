package models

import "time"

// FriendStatus is the lifecycle state of a FriendRecord.
type FriendStatus string

const (
	FriendStatusPending  FriendStatus = "pending"
	FriendStatusAccepted FriendStatus = "accepted"
	// FriendStatusDeclined is accepted when reading old partitions. Declining
	// removes the record, so new records never carry it.
	FriendStatusDeclined FriendStatus = "declined"
)

// Valid reports whether s is one of the known statuses.
func (s FriendStatus) Valid() bool {
	switch s {
	case FriendStatusPending, FriendStatusAccepted, FriendStatusDeclined:
		return true
	}
	return false
}

// FriendRecord is a directed relationship between two users. The same record
// (same ID) is stored in both users' friend partitions.
type FriendRecord struct {
	ID        string       `json:"id"`
	AddedBy   string       `json:"addedBy"`
	ToUserID  string       `json:"toUserId"`
	Status    FriendStatus `json:"status"`
	CreatedAt time.Time    `json:"createdAt"`
}

// Connects reports whether the record links a and b, in either direction.
func (r FriendRecord) Connects(a, b string) bool {
	return (r.AddedBy == a && r.ToUserID == b) || (r.AddedBy == b && r.ToUserID == a)
}

// Involves reports whether userID is either endpoint.
func (r FriendRecord) Involves(userID string) bool {
	return r.AddedBy == userID || r.ToUserID == userID
}

// Other returns the endpoint that is not userID.
func (r FriendRecord) Other(userID string) string {
	if r.AddedBy == userID {
		return r.ToUserID
	}
	return r.AddedBy
}

// FriendDirection tells whether a record was sent or received by the viewer.
type FriendDirection string

const (
	DirectionIncoming FriendDirection = "incoming"
	DirectionOutgoing FriendDirection = "outgoing"
)

// FriendView joins a record with the current profile of the other user.
type FriendView struct {
	Record    FriendRecord    `json:"record"`
	Other     User            `json:"user"`
	Direction FriendDirection `json:"direction"`
}
