package models

import "time"

// EventType is the calendar category of an event.
type EventType string

const (
	EventTypePersonal EventType = "personal"
	EventTypeFriend   EventType = "friend"
	EventTypeGroup    EventType = "group"
	EventTypeWork     EventType = "work"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventTypePersonal, EventTypeFriend, EventTypeGroup, EventTypeWork:
		return true
	}
	return false
}

// Frequency is the repeat interval of a recurring event.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

// Valid reports whether f is one of the known frequencies.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
		return true
	}
	return false
}

// Recurrence describes how an event repeats. A nil Until repeats forever.
type Recurrence struct {
	Frequency Frequency  `json:"frequency"`
	Until     *time.Time `json:"until,omitempty"`
}

// Event is a calendar entry owned by CreatedBy.
type Event struct {
	ID           string      `json:"id"`
	Title        string      `json:"title"`
	Description  string      `json:"description,omitempty"`
	Start        time.Time   `json:"start"`
	End          time.Time   `json:"end"`
	IsMultiDay   bool        `json:"isMultiDay"`
	Location     string      `json:"location,omitempty"`
	Color        string      `json:"color,omitempty"`
	Type         EventType   `json:"type"`
	CreatedBy    string      `json:"createdBy"`
	Participants []string    `json:"participants,omitempty"`
	GroupID      string      `json:"groupId,omitempty"`
	Recurring    *Recurrence `json:"recurring,omitempty"`
}

// SpansMultipleDays reports whether the event lasts longer than 24 hours.
func (e Event) SpansMultipleDays() bool {
	return e.End.Sub(e.Start) > 24*time.Hour
}

// Overlaps reports whether [Start, End] intersects [from, to).
func (e Event) Overlaps(from, to time.Time) bool {
	return e.Start.Before(to) && !e.End.Before(from)
}

// CalendarFilters selects which event categories are visible.
type CalendarFilters struct {
	ShowPersonalEvents bool `json:"showPersonalEvents"`
	ShowFriendEvents   bool `json:"showFriendEvents"`
	ShowWorkEvents     bool `json:"showWorkEvents"`
}

// AllEvents shows every category.
func AllEvents() CalendarFilters {
	return CalendarFilters{ShowPersonalEvents: true, ShowFriendEvents: true, ShowWorkEvents: true}
}

// Shows reports whether an event of type t passes the filters.
// Group events follow the friend toggle.
func (f CalendarFilters) Shows(t EventType) bool {
	switch t {
	case EventTypePersonal:
		return f.ShowPersonalEvents
	case EventTypeFriend, EventTypeGroup:
		return f.ShowFriendEvents
	case EventTypeWork:
		return f.ShowWorkEvents
	}
	return false
}
