package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"schedle/internal/directory"
	"schedle/internal/models"
	"schedle/internal/storage"
)

var ErrSessionClosed = errors.New("session is closed")

// Sessions creates Session values bound to one user.
type Sessions struct {
	dir           *directory.Directory
	parts         *storage.Partitions
	friends       FriendService
	notifications NotificationService
	events        EventService
}

// NewSessions wires the services a Session delegates to.
func NewSessions(dir *directory.Directory, parts *storage.Partitions, friends FriendService, notifications NotificationService, events EventService) *Sessions {
	return &Sessions{
		dir:           dir,
		parts:         parts,
		friends:       friends,
		notifications: notifications,
		events:        events,
	}
}

// For returns a session for userID without touching storage.
func (m *Sessions) For(userID string) (*Session, error) {
	if !m.dir.Exists(userID) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}
	return &Session{owner: m, userID: userID}, nil
}

// Open returns a session for userID after reading every partition of the
// user once, so that unreadable partitions are reported at sign in.
func (m *Sessions) Open(ctx context.Context, userID string) (*Session, error) {
	s, err := m.For(userID)
	if err != nil {
		return nil, err
	}
	for _, kind := range models.PartitionKinds {
		items, err := storage.Load[json.RawMessage](ctx, m.parts, userID, kind)
		if err != nil {
			return nil, err
		}
		log.Printf("Session for %s: %d %s", userID, len(items), kind)
	}
	return s, nil
}

// Session scopes the core operations to one signed in user. After Close
// every method returns ErrSessionClosed.
type Session struct {
	owner  *Sessions
	userID string

	mu     sync.RWMutex
	closed bool
}

// UserID returns the user the session belongs to.
func (s *Session) UserID() string {
	return s.userID
}

// Close ends the session. Closing twice is harmless.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// Switch closes s and opens a session for userID. s stays open when userID is unknown.
func (s *Session) Switch(ctx context.Context, userID string) (*Session, error) {
	if _, err := s.active(); err != nil {
		return nil, err
	}
	next, err := s.owner.Open(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.Close()
	return next, nil
}

func (s *Session) active() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", ErrSessionClosed
	}
	return s.userID, nil
}

func (s *Session) SendFriendRequest(ctx context.Context, targetUserID string) (*models.FriendRecord, error) {
	me, err := s.active()
	if err != nil {
		return nil, err
	}
	return s.owner.friends.SendFriendRequest(ctx, me, targetUserID)
}

func (s *Session) AcceptFriendRequest(ctx context.Context, requestID string) (*models.FriendRecord, error) {
	me, err := s.active()
	if err != nil {
		return nil, err
	}
	return s.owner.friends.AcceptFriendRequest(ctx, me, requestID)
}

func (s *Session) DeclineFriendRequest(ctx context.Context, requestID string) error {
	me, err := s.active()
	if err != nil {
		return err
	}
	return s.owner.friends.DeclineFriendRequest(ctx, me, requestID)
}

func (s *Session) RemoveFriend(ctx context.Context, otherUserID string) error {
	me, err := s.active()
	if err != nil {
		return err
	}
	return s.owner.friends.RemoveFriend(ctx, me, otherUserID)
}

// GetFriendRequests returns the pending requests addressed to the session user.
func (s *Session) GetFriendRequests(ctx context.Context) ([]models.FriendRecord, error) {
	me, err := s.active()
	if err != nil {
		return nil, err
	}
	return s.owner.friends.GetFriendRequests(ctx, me)
}

func (s *Session) HasFriendRequest(ctx context.Context, fromUserID, toUserID string) (bool, error) {
	if _, err := s.active(); err != nil {
		return false, err
	}
	return s.owner.friends.HasFriendRequest(ctx, fromUserID, toUserID)
}

func (s *Session) Friends(ctx context.Context) ([]models.FriendView, error) {
	me, err := s.active()
	if err != nil {
		return nil, err
	}
	return s.owner.friends.ListFriends(ctx, me)
}

func (s *Session) IncomingRequests(ctx context.Context) ([]models.FriendView, error) {
	me, err := s.active()
	if err != nil {
		return nil, err
	}
	return s.owner.friends.ListIncoming(ctx, me)
}

func (s *Session) OutgoingRequests(ctx context.Context) ([]models.FriendView, error) {
	me, err := s.active()
	if err != nil {
		return nil, err
	}
	return s.owner.friends.ListOutgoing(ctx, me)
}

func (s *Session) Notifications(ctx context.Context, limit int) ([]models.Notification, error) {
	me, err := s.active()
	if err != nil {
		return nil, err
	}
	return s.owner.notifications.ListNotifications(ctx, me, limit)
}

func (s *Session) UnreadCount(ctx context.Context) (int, error) {
	me, err := s.active()
	if err != nil {
		return 0, err
	}
	return s.owner.notifications.UnreadCount(ctx, me)
}

func (s *Session) MarkNotificationAsRead(ctx context.Context, notificationID string) error {
	me, err := s.active()
	if err != nil {
		return err
	}
	return s.owner.notifications.MarkNotificationAsRead(ctx, me, notificationID)
}

func (s *Session) MarkAllAsRead(ctx context.Context) error {
	me, err := s.active()
	if err != nil {
		return err
	}
	return s.owner.notifications.MarkAllAsRead(ctx, me)
}

func (s *Session) ClearNotifications(ctx context.Context) error {
	me, err := s.active()
	if err != nil {
		return err
	}
	return s.owner.notifications.ClearNotifications(ctx, me)
}

func (s *Session) AddEvent(ctx context.Context, event models.Event) (*models.Event, error) {
	me, err := s.active()
	if err != nil {
		return nil, err
	}
	return s.owner.events.AddEvent(ctx, me, event)
}

func (s *Session) UpdateEvent(ctx context.Context, event models.Event) (*models.Event, error) {
	me, err := s.active()
	if err != nil {
		return nil, err
	}
	return s.owner.events.UpdateEvent(ctx, me, event)
}

func (s *Session) DeleteEvent(ctx context.Context, eventID string) error {
	me, err := s.active()
	if err != nil {
		return err
	}
	return s.owner.events.DeleteEvent(ctx, me, eventID)
}

// Events returns the session user's events that pass filters.
func (s *Session) Events(ctx context.Context, filters models.CalendarFilters) ([]models.Event, error) {
	me, err := s.active()
	if err != nil {
		return nil, err
	}
	return s.owner.events.ListEvents(ctx, me, filters)
}
