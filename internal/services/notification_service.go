package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"schedle/internal/directory"
	"schedle/internal/events"
	"schedle/internal/models"
	"schedle/internal/storage"

	"github.com/google/uuid"
)

var ErrInvalidNotification = errors.New("invalid notification")

// NotificationInput carries the caller supplied fields of a notification.
type NotificationInput struct {
	UserID    string
	Title     string
	Message   string
	Type      models.NotificationType
	RelatedID string
}

// Pusher delivers a payload to the live connections of a user, if any.
type Pusher interface {
	Push(userID string, payload []byte)
}

// PushMessage is the frame sent to live clients.
type PushMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// NotificationService stores per-user notifications, most recent first.
type NotificationService interface {
	AddNotification(ctx context.Context, in NotificationInput) (*models.Notification, error)
	MarkNotificationAsRead(ctx context.Context, userID, notificationID string) error
	MarkAllAsRead(ctx context.Context, userID string) error
	UnreadCount(ctx context.Context, userID string) (int, error)
	ClearNotifications(ctx context.Context, userID string) error
	// ListNotifications returns at most limit notifications; limit <= 0 returns all.
	ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	// HandleEvent turns a domain event into notifications. It is subscribed to the event bus.
	HandleEvent(ctx context.Context, event events.Event) error
}

type notificationService struct {
	parts  *storage.Partitions
	dir    *directory.Directory
	pusher Pusher
	now    func() time.Time
}

// NewNotificationService creates a NotificationService. pusher may be nil.
func NewNotificationService(parts *storage.Partitions, dir *directory.Directory, pusher Pusher) NotificationService {
	return &notificationService{
		parts:  parts,
		dir:    dir,
		pusher: pusher,
		now:    time.Now,
	}
}

func (s *notificationService) AddNotification(ctx context.Context, in NotificationInput) (*models.Notification, error) {
	if in.UserID == "" {
		return nil, fmt.Errorf("%w: recipient is required", ErrInvalidNotification)
	}
	if !in.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidNotification, in.Type)
	}

	n := models.Notification{
		ID:        uuid.NewString(),
		UserID:    in.UserID,
		Title:     in.Title,
		Message:   in.Message,
		Type:      in.Type,
		IsRead:    false,
		CreatedAt: s.now().UTC(),
		RelatedID: in.RelatedID,
	}

	err := storage.Update(ctx, s.parts, in.UserID, models.PartitionNotifications, func(list []models.Notification) ([]models.Notification, error) {
		return append([]models.Notification{n}, list...), nil
	})
	if err != nil {
		return nil, err
	}

	s.push(n)
	return &n, nil
}

// MarkNotificationAsRead is a no-op when the notification is missing or already read.
func (s *notificationService) MarkNotificationAsRead(ctx context.Context, userID, notificationID string) error {
	return s.markRead(ctx, userID, func(n models.Notification) bool { return n.ID == notificationID })
}

func (s *notificationService) MarkAllAsRead(ctx context.Context, userID string) error {
	return s.markRead(ctx, userID, func(models.Notification) bool { return true })
}

func (s *notificationService) markRead(ctx context.Context, userID string, match func(models.Notification) bool) error {
	changed := false
	err := storage.Update(ctx, s.parts, userID, models.PartitionNotifications, func(list []models.Notification) ([]models.Notification, error) {
		for i := range list {
			if !list[i].IsRead && match(list[i]) {
				list[i].IsRead = true
				changed = true
			}
		}
		if !changed {
			return nil, errUnchanged
		}
		return list, nil
	})
	if errors.Is(err, errUnchanged) {
		return nil
	}
	return err
}

func (s *notificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	list, err := s.ListNotifications(ctx, userID, 0)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, n := range list {
		if !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (s *notificationService) ClearNotifications(ctx context.Context, userID string) error {
	return storage.Update(ctx, s.parts, userID, models.PartitionNotifications, func([]models.Notification) ([]models.Notification, error) {
		return []models.Notification{}, nil
	})
}

func (s *notificationService) ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	list, err := storage.Load[models.Notification](ctx, s.parts, userID, models.PartitionNotifications)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// HandleEvent adds one notification per recipient of event.
func (s *notificationService) HandleEvent(ctx context.Context, event events.Event) error {
	var inputs []NotificationInput

	switch e := event.(type) {
	case events.FriendRequested:
		inputs = append(inputs, NotificationInput{
			UserID:    e.ToUserID,
			Title:     "New friend request",
			Message:   fmt.Sprintf("%s sent you a friend request", s.displayName(e.FromUserID)),
			Type:      models.NotificationFriendRequest,
			RelatedID: e.RequestID,
		})
	case events.FriendAccepted:
		inputs = append(inputs, NotificationInput{
			UserID:    e.RequesterID,
			Title:     "Friend request accepted",
			Message:   fmt.Sprintf("%s accepted your friend request", s.displayName(e.AccepterID)),
			Type:      models.NotificationFriendAccepted,
			RelatedID: e.RequestID,
		})
	case events.EventInvited:
		inputs = s.fanOut(e.EventChange, models.NotificationEventInvite, "New event invitation",
			"%s invited you to \"%s\"")
	case events.EventUpdated:
		inputs = s.fanOut(e.EventChange, models.NotificationEventUpdate, "Event updated",
			"%s updated \"%s\"")
	case events.EventCancelled:
		inputs = s.fanOut(e.EventChange, models.NotificationEventUpdate, "Event cancelled",
			"%s cancelled \"%s\"")
	default:
		return fmt.Errorf("unhandled event type %T", event)
	}

	var errs []error
	for _, in := range inputs {
		if _, err := s.AddNotification(ctx, in); err != nil {
			errs = append(errs, fmt.Errorf("notify %s: %w", in.UserID, err))
		}
	}
	return errors.Join(errs...)
}

// fanOut builds one input per participant other than the actor.
func (s *notificationService) fanOut(c events.EventChange, typ models.NotificationType, title, format string) []NotificationInput {
	actor := s.displayName(c.ActorID)
	recipients := c.Recipients()
	inputs := make([]NotificationInput, 0, len(recipients))
	for _, userID := range recipients {
		inputs = append(inputs, NotificationInput{
			UserID:    userID,
			Title:     title,
			Message:   fmt.Sprintf(format, actor, c.Title),
			Type:      typ,
			RelatedID: c.EventID,
		})
	}
	return inputs
}

func (s *notificationService) displayName(userID string) string {
	if u, ok := s.dir.Get(userID); ok && u.Name != "" {
		return u.Name
	}
	return userID
}

func (s *notificationService) push(n models.Notification) {
	if s.pusher == nil {
		return
	}
	payload, err := encodePush("notification", n)
	if err != nil {
		log.Printf("Failed to encode notification %s for push: %v", n.ID, err)
		return
	}
	s.pusher.Push(n.UserID, payload)
}

func encodePush(kind string, data interface{}) ([]byte, error) {
	return json.Marshal(PushMessage{Type: kind, Data: data})
}

// errUnchanged aborts an Update without writing.
var errUnchanged = errors.New("unchanged")
