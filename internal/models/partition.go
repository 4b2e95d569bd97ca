package models

import "time"

// PartitionKind names one of the per-user collections in the key-value store.
type PartitionKind string

const (
	PartitionFriends       PartitionKind = "friends"
	PartitionEvents        PartitionKind = "events"
	PartitionGroups        PartitionKind = "groups"
	PartitionNotifications PartitionKind = "notifications"
	PartitionMessages      PartitionKind = "messages"
)

// PartitionKinds lists every kind in a stable order.
var PartitionKinds = []PartitionKind{
	PartitionFriends,
	PartitionEvents,
	PartitionGroups,
	PartitionNotifications,
	PartitionMessages,
}

// Valid reports whether k is a known partition kind.
func (k PartitionKind) Valid() bool {
	for _, known := range PartitionKinds {
		if k == known {
			return true
		}
	}
	return false
}

// KVEntry is the row layout used when the key-value store is backed by SQL.
type KVEntry struct {
	Key       string    `gorm:"primaryKey;type:varchar(255)" json:"key"`
	Value     []byte    `gorm:"type:bytea;not null" json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName 指定 KVEntry 模型的表名。
func (KVEntry) TableName() string {
	return "kv_entries"
}
