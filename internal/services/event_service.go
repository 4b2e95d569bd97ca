package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"schedle/internal/directory"
	"schedle/internal/events"
	"schedle/internal/models"
	"schedle/internal/storage"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"
	"github.com/teambition/rrule-go"
)

var (
	ErrEventNotFound = errors.New("event not found")
	ErrInvalidEvent  = errors.New("invalid event")
	ErrGroupNotFound = errors.New("group not found")
)

// maxOccurrencesPerEvent caps recurrence expansion of a single event.
const maxOccurrencesPerEvent = 1000

// Occurrence is one concrete instance of an event inside a time window.
type Occurrence struct {
	Event models.Event `json:"event"`
	Start time.Time    `json:"start"`
	End   time.Time    `json:"end"`
}

// EventService manages the calendar events owned by a user.
type EventService interface {
	AddEvent(ctx context.Context, actorID string, event models.Event) (*models.Event, error)
	UpdateEvent(ctx context.Context, actorID string, event models.Event) (*models.Event, error)
	DeleteEvent(ctx context.Context, actorID, eventID string) error
	GetEvent(ctx context.Context, userID, eventID string) (*models.Event, error)

	// ListEvents filters the stored events on every call.
	ListEvents(ctx context.Context, userID string, filters models.CalendarFilters) ([]models.Event, error)
	// EventsOn returns the events intersecting the calendar day of day.
	EventsOn(ctx context.Context, userID string, day time.Time) ([]models.Event, error)
	// Occurrences expands recurring events into the window [from, to).
	Occurrences(ctx context.Context, userID string, from, to time.Time) ([]Occurrence, error)
	ExportICS(ctx context.Context, userID string) (string, error)
}

type eventService struct {
	parts     *storage.Partitions
	dir       *directory.Directory
	publisher events.Publisher
	now       func() time.Time
}

// NewEventService creates an EventService. publisher may be nil.
func NewEventService(parts *storage.Partitions, dir *directory.Directory, publisher events.Publisher) EventService {
	return &eventService{
		parts:     parts,
		dir:       dir,
		publisher: publisher,
		now:       time.Now,
	}
}

func (s *eventService) AddEvent(ctx context.Context, actorID string, event models.Event) (*models.Event, error) {
	event.ID = uuid.NewString()
	event.CreatedBy = actorID
	if err := s.prepare(ctx, actorID, &event); err != nil {
		return nil, err
	}

	err := storage.Update(ctx, s.parts, actorID, models.PartitionEvents, func(list []models.Event) ([]models.Event, error) {
		return append(list, event), nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Event %s created by %s", event.ID, actorID)
	s.notify(ctx, event, func(c events.EventChange) events.Event { return events.EventInvited{EventChange: c} }, actorID)
	return &event, nil
}

func (s *eventService) UpdateEvent(ctx context.Context, actorID string, event models.Event) (*models.Event, error) {
	event.CreatedBy = actorID
	if err := s.prepare(ctx, actorID, &event); err != nil {
		return nil, err
	}

	err := storage.Update(ctx, s.parts, actorID, models.PartitionEvents, func(list []models.Event) ([]models.Event, error) {
		for i := range list {
			if list[i].ID == event.ID {
				list[i] = event
				return list, nil
			}
		}
		return nil, ErrEventNotFound
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Event %s updated by %s", event.ID, actorID)
	s.notify(ctx, event, func(c events.EventChange) events.Event { return events.EventUpdated{EventChange: c} }, actorID)
	return &event, nil
}

func (s *eventService) DeleteEvent(ctx context.Context, actorID, eventID string) error {
	var deleted models.Event
	err := storage.Update(ctx, s.parts, actorID, models.PartitionEvents, func(list []models.Event) ([]models.Event, error) {
		for i := range list {
			if list[i].ID == eventID {
				deleted = list[i]
				return append(list[:i], list[i+1:]...), nil
			}
		}
		return nil, ErrEventNotFound
	})
	if err != nil {
		return err
	}

	log.Printf("Event %s deleted by %s", eventID, actorID)
	s.notify(ctx, deleted, func(c events.EventChange) events.Event { return events.EventCancelled{EventChange: c} }, actorID)
	return nil
}

func (s *eventService) GetEvent(ctx context.Context, userID, eventID string) (*models.Event, error) {
	list, err := storage.Load[models.Event](ctx, s.parts, userID, models.PartitionEvents)
	if err != nil {
		return nil, err
	}
	for _, e := range list {
		if e.ID == eventID {
			return &e, nil
		}
	}
	return nil, ErrEventNotFound
}

func (s *eventService) ListEvents(ctx context.Context, userID string, filters models.CalendarFilters) ([]models.Event, error) {
	list, err := storage.Load[models.Event](ctx, s.parts, userID, models.PartitionEvents)
	if err != nil {
		return nil, err
	}
	out := []models.Event{}
	for _, e := range list {
		if filters.Shows(e.Type) {
			out = append(out, e)
		}
	}
	sortByStart(out)
	return out, nil
}

func (s *eventService) EventsOn(ctx context.Context, userID string, day time.Time) ([]models.Event, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	list, err := storage.Load[models.Event](ctx, s.parts, userID, models.PartitionEvents)
	if err != nil {
		return nil, err
	}
	out := []models.Event{}
	for _, e := range list {
		if e.Overlaps(dayStart, dayEnd) {
			out = append(out, e)
		}
	}
	sortByStart(out)
	return out, nil
}

func (s *eventService) Occurrences(ctx context.Context, userID string, from, to time.Time) ([]Occurrence, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("%w: window end must be after its start", ErrInvalidEvent)
	}
	list, err := storage.Load[models.Event](ctx, s.parts, userID, models.PartitionEvents)
	if err != nil {
		return nil, err
	}

	out := []Occurrence{}
	for _, e := range list {
		if e.Recurring == nil {
			if e.Overlaps(from, to) {
				out = append(out, Occurrence{Event: e, Start: e.Start, End: e.End})
			}
			continue
		}
		occ, err := expand(e, from, to)
		if err != nil {
			log.Printf("Skipping recurrence of event %s: %v", e.ID, err)
			continue
		}
		out = append(out, occ...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// expand lists the occurrences of a recurring event that intersect [from, to).
func expand(e models.Event, from, to time.Time) ([]Occurrence, error) {
	freq, err := rruleFrequency(e.Recurring.Frequency)
	if err != nil {
		return nil, err
	}
	opt := rrule.ROption{Freq: freq, Dtstart: e.Start}
	if e.Recurring.Until != nil {
		opt.Until = *e.Recurring.Until
	}
	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, err
	}

	duration := e.End.Sub(e.Start)
	starts := r.Between(from.Add(-duration), to, true)
	out := make([]Occurrence, 0, len(starts))
	for _, start := range starts {
		end := start.Add(duration)
		if !start.Before(to) || end.Before(from) {
			continue
		}
		out = append(out, Occurrence{Event: e, Start: start, End: end})
		if len(out) == maxOccurrencesPerEvent {
			log.Printf("Event %s hit the occurrence cap of %d", e.ID, maxOccurrencesPerEvent)
			break
		}
	}
	return out, nil
}

func rruleFrequency(f models.Frequency) (rrule.Frequency, error) {
	switch f {
	case models.FrequencyDaily:
		return rrule.DAILY, nil
	case models.FrequencyWeekly:
		return rrule.WEEKLY, nil
	case models.FrequencyMonthly:
		return rrule.MONTHLY, nil
	case models.FrequencyYearly:
		return rrule.YEARLY, nil
	}
	return 0, fmt.Errorf("%w: unknown frequency %q", ErrInvalidEvent, f)
}

// ExportICS renders the user's events as an iCalendar document.
func (s *eventService) ExportICS(ctx context.Context, userID string) (string, error) {
	list, err := storage.Load[models.Event](ctx, s.parts, userID, models.PartitionEvents)
	if err != nil {
		return "", err
	}
	sortByStart(list)

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//Schedle//Calendar Export//EN")

	stamp := s.now().UTC()
	for _, e := range list {
		ve := cal.AddEvent(e.ID + "@schedle")
		ve.SetDtStampTime(stamp)
		ve.SetStartAt(e.Start.UTC())
		ve.SetEndAt(e.End.UTC())
		ve.SetSummary(e.Title)
		if e.Description != "" {
			ve.SetDescription(e.Description)
		}
		if e.Location != "" {
			ve.SetLocation(e.Location)
		}
		ve.SetProperty(ical.ComponentPropertyCategories, strings.ToUpper(string(e.Type)))
		if e.Recurring != nil {
			ve.AddRrule(rruleString(*e.Recurring))
		}
	}
	return cal.Serialize(), nil
}

// rruleString formats a recurrence as an RFC 5545 RRULE value.
func rruleString(r models.Recurrence) string {
	rule := "FREQ=" + strings.ToUpper(string(r.Frequency))
	if r.Until != nil {
		rule += ";UNTIL=" + r.Until.UTC().Format("20060102T150405Z")
	}
	return rule
}

// prepare validates event and fills the derived fields.
func (s *eventService) prepare(ctx context.Context, actorID string, event *models.Event) error {
	event.Title = strings.TrimSpace(event.Title)
	if event.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidEvent)
	}
	if event.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidEvent)
	}
	if event.Start.IsZero() || event.End.IsZero() {
		return fmt.Errorf("%w: start and end are required", ErrInvalidEvent)
	}
	if event.End.Before(event.Start) {
		return fmt.Errorf("%w: end is before start", ErrInvalidEvent)
	}
	if !event.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, event.Type)
	}
	if r := event.Recurring; r != nil {
		if !r.Frequency.Valid() {
			return fmt.Errorf("%w: unknown frequency %q", ErrInvalidEvent, r.Frequency)
		}
		if r.Until != nil && r.Until.Before(event.Start) {
			return fmt.Errorf("%w: recurrence ends before the event starts", ErrInvalidEvent)
		}
	}

	participants := event.Participants
	if event.GroupID != "" {
		group, err := findGroup(ctx, s.parts, actorID, event.GroupID)
		if err != nil {
			return err
		}
		participants = append(participants, group.Members...)
	}
	event.Participants = dedupe(participants)
	for _, id := range event.Participants {
		if !s.dir.Exists(id) {
			return fmt.Errorf("%w: participant %s", ErrUnknownUser, id)
		}
	}

	event.IsMultiDay = event.SpansMultipleDays()
	return nil
}

func (s *eventService) notify(ctx context.Context, e models.Event, wrap func(events.EventChange) events.Event, actorID string) {
	if len(e.Participants) == 0 {
		return
	}
	publish(ctx, s.publisher, wrap(events.EventChange{
		EventID:        e.ID,
		Title:          e.Title,
		ActorID:        actorID,
		ParticipantIDs: append([]string(nil), e.Participants...),
	}))
}

func sortByStart(list []models.Event) {
	sort.SliceStable(list, func(i, j int) bool { return list[i].Start.Before(list[j].Start) })
}

// dedupe drops empty and repeated ids, keeping the first occurrence.
func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
