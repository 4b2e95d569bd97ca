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
	"schedle/internal/models"
	"schedle/internal/storage"

	"github.com/google/uuid"
)

var (
	ErrEmptyMessage = errors.New("message content cannot be empty")
	ErrNotFriends   = errors.New("messages can only be sent to friends")
)

// ConversationSummary is the latest message exchanged with one counterpart.
type ConversationSummary struct {
	With        models.User          `json:"with"`
	LastMessage models.DirectMessage `json:"lastMessage"`
}

// MessageService stores direct messages between friends.
type MessageService interface {
	SendMessage(ctx context.Context, senderID, receiverID, content string) (*models.DirectMessage, error)
	// Conversation returns the messages exchanged with otherUserID, oldest first.
	Conversation(ctx context.Context, userID, otherUserID string) ([]models.DirectMessage, error)
	// Conversations returns one summary per counterpart, most recent first.
	Conversations(ctx context.Context, userID string) ([]ConversationSummary, error)
}

type messageService struct {
	parts   *storage.Partitions
	friends FriendService
	users   *directory.Directory
	pusher  Pusher
	now     func() time.Time
}

// NewMessageService creates a MessageService. pusher may be nil.
func NewMessageService(parts *storage.Partitions, friends FriendService, users *directory.Directory, pusher Pusher) MessageService {
	return &messageService{
		parts:   parts,
		friends: friends,
		users:   users,
		pusher:  pusher,
		now:     time.Now,
	}
}

func (s *messageService) SendMessage(ctx context.Context, senderID, receiverID, content string) (*models.DirectMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	if _, ok := s.users.Get(receiverID); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, receiverID)
	}
	friends, err := s.friends.AreFriends(ctx, senderID, receiverID)
	if err != nil {
		return nil, err
	}
	if !friends {
		return nil, ErrNotFriends
	}

	msg := models.DirectMessage{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		Timestamp:  s.now().UTC(),
	}

	unlock := s.parts.Lock(s.parts.Key(senderID, models.PartitionMessages), s.parts.Key(receiverID, models.PartitionMessages))
	defer unlock()
	for _, owner := range []string{senderID, receiverID} {
		list, err := storage.Load[models.DirectMessage](ctx, s.parts, owner, models.PartitionMessages)
		if err != nil {
			return nil, err
		}
		if err := storage.Save(ctx, s.parts, owner, models.PartitionMessages, append(list, msg)); err != nil {
			return nil, err
		}
	}

	s.push(msg)
	return &msg, nil
}

func (s *messageService) Conversation(ctx context.Context, userID, otherUserID string) ([]models.DirectMessage, error) {
	list, err := storage.Load[models.DirectMessage](ctx, s.parts, userID, models.PartitionMessages)
	if err != nil {
		return nil, err
	}
	out := []models.DirectMessage{}
	for _, m := range list {
		if m.Counterpart(userID) == otherUserID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *messageService) Conversations(ctx context.Context, userID string) ([]ConversationSummary, error) {
	list, err := storage.Load[models.DirectMessage](ctx, s.parts, userID, models.PartitionMessages)
	if err != nil {
		return nil, err
	}
	latest := make(map[string]models.DirectMessage)
	for _, m := range list {
		other := m.Counterpart(userID)
		if prev, ok := latest[other]; !ok || !m.Timestamp.Before(prev.Timestamp) {
			latest[other] = m
		}
	}

	out := make([]ConversationSummary, 0, len(latest))
	for otherID, m := range latest {
		with, ok := s.users.Get(otherID)
		if !ok {
			with = models.User{ID: otherID}
		}
		out = append(out, ConversationSummary{With: with, LastMessage: m})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastMessage.Timestamp.Equal(out[j].LastMessage.Timestamp) {
			return out[i].LastMessage.Timestamp.After(out[j].LastMessage.Timestamp)
		}
		return out[i].With.ID < out[j].With.ID
	})
	return out, nil
}

func (s *messageService) push(msg models.DirectMessage) {
	if s.pusher == nil {
		return
	}
	payload, err := encodePush("message", msg)
	if err != nil {
		log.Printf("Failed to encode message %s for push: %v", msg.ID, err)
		return
	}
	s.pusher.Push(msg.ReceiverID, payload)
}
