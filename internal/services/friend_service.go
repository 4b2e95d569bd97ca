package services

import (
	"context"
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

var (
	ErrFriendRequestSelf     = errors.New("cannot send a friend request to yourself")
	ErrUnknownUser           = errors.New("unknown user")
	ErrFriendRequestExists   = errors.New("a friend request between these users already exists")
	ErrAlreadyFriends        = errors.New("users are already friends")
	ErrFriendRequestNotFound = errors.New("friend request not found or no longer pending")
	ErrNotRecipientOfRequest = errors.New("only the recipient can respond to this friend request")
)

// FriendService owns the friend graph. Every record lives in the friend
// partitions of both of its endpoints and the two copies are always written
// together under the locks of both partitions.
type FriendService interface {
	SendFriendRequest(ctx context.Context, currentUserID, targetUserID string) (*models.FriendRecord, error)
	AcceptFriendRequest(ctx context.Context, currentUserID, requestID string) (*models.FriendRecord, error)
	DeclineFriendRequest(ctx context.Context, currentUserID, requestID string) error
	RemoveFriend(ctx context.Context, currentUserID, otherUserID string) error

	// GetFriendRequests returns the pending requests addressed to userID.
	GetFriendRequests(ctx context.Context, userID string) ([]models.FriendRecord, error)
	// HasFriendRequest reports whether any record connects the two users.
	HasFriendRequest(ctx context.Context, fromUserID, toUserID string) (bool, error)
	AreFriends(ctx context.Context, a, b string) (bool, error)
	Records(ctx context.Context, userID string) ([]models.FriendRecord, error)

	ListFriends(ctx context.Context, userID string) ([]models.FriendView, error)
	ListIncoming(ctx context.Context, userID string) ([]models.FriendView, error)
	ListOutgoing(ctx context.Context, userID string) ([]models.FriendView, error)
}

type friendService struct {
	parts     *storage.Partitions
	dir       *directory.Directory
	publisher events.Publisher
	now       func() time.Time
}

// NewFriendService creates a FriendService. publisher may be nil.
func NewFriendService(parts *storage.Partitions, dir *directory.Directory, publisher events.Publisher) FriendService {
	return &friendService{
		parts:     parts,
		dir:       dir,
		publisher: publisher,
		now:       time.Now,
	}
}

// SendFriendRequest creates a pending record from currentUserID to targetUserID.
func (s *friendService) SendFriendRequest(ctx context.Context, currentUserID, targetUserID string) (*models.FriendRecord, error) {
	if currentUserID == targetUserID {
		return nil, ErrFriendRequestSelf
	}
	if !s.dir.Exists(currentUserID) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, currentUserID)
	}
	if !s.dir.Exists(targetUserID) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, targetUserID)
	}

	record := models.FriendRecord{
		ID:        uuid.NewString(),
		AddedBy:   currentUserID,
		ToUserID:  targetUserID,
		Status:    models.FriendStatusPending,
		CreatedAt: s.now().UTC(),
	}

	err := s.mutatePair(ctx, currentUserID, targetUserID, func(records []models.FriendRecord) ([]models.FriendRecord, error) {
		kept := records[:0:0]
		for _, r := range records {
			if !r.Connects(currentUserID, targetUserID) {
				kept = append(kept, r)
				continue
			}
			switch r.Status {
			case models.FriendStatusPending:
				return nil, ErrFriendRequestExists
			case models.FriendStatusAccepted:
				return nil, ErrAlreadyFriends
			case models.FriendStatusDeclined:
				// Terminal records from older data are replaced by the new request.
			default:
				// 状态未知的记录按未决处理，不覆盖
				log.Printf("Friend record %s between %s and %s has unknown status %q", r.ID, currentUserID, targetUserID, r.Status)
				return nil, ErrFriendRequestExists
			}
		}
		return append(kept, record), nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Friend request %s created: %s -> %s", record.ID, currentUserID, targetUserID)
	s.publish(ctx, events.FriendRequested{RequestID: record.ID, FromUserID: currentUserID, ToUserID: targetUserID})
	return &record, nil
}

// AcceptFriendRequest flips a pending request to accepted. Direction is kept.
func (s *friendService) AcceptFriendRequest(ctx context.Context, currentUserID, requestID string) (*models.FriendRecord, error) {
	pending, err := s.findPendingForRecipient(ctx, currentUserID, requestID)
	if err != nil {
		return nil, err
	}

	var accepted models.FriendRecord
	err = s.mutatePair(ctx, pending.AddedBy, pending.ToUserID, func(records []models.FriendRecord) ([]models.FriendRecord, error) {
		for i, r := range records {
			if r.ID != requestID {
				continue
			}
			if r.Status != models.FriendStatusPending {
				return nil, ErrFriendRequestNotFound
			}
			records[i].Status = models.FriendStatusAccepted
			accepted = records[i]
			return records, nil
		}
		return nil, ErrFriendRequestNotFound
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Friend request %s accepted by %s", requestID, currentUserID)
	s.publish(ctx, events.FriendAccepted{RequestID: requestID, RequesterID: accepted.AddedBy, AccepterID: currentUserID})
	return &accepted, nil
}

// DeclineFriendRequest deletes a pending request. The requester is not notified.
func (s *friendService) DeclineFriendRequest(ctx context.Context, currentUserID, requestID string) error {
	pending, err := s.findPendingForRecipient(ctx, currentUserID, requestID)
	if err != nil {
		return err
	}

	err = s.mutatePair(ctx, pending.AddedBy, pending.ToUserID, func(records []models.FriendRecord) ([]models.FriendRecord, error) {
		kept := records[:0:0]
		found := false
		for _, r := range records {
			if r.ID == requestID {
				if r.Status != models.FriendStatusPending {
					return nil, ErrFriendRequestNotFound
				}
				found = true
				continue
			}
			kept = append(kept, r)
		}
		if !found {
			return nil, ErrFriendRequestNotFound
		}
		return kept, nil
	})
	if err != nil {
		return err
	}

	log.Printf("Friend request %s declined by %s", requestID, currentUserID)
	return nil
}

// RemoveFriend deletes every record connecting the two users, whatever its
// status. Nothing matching is not an error.
func (s *friendService) RemoveFriend(ctx context.Context, currentUserID, otherUserID string) error {
	if currentUserID == otherUserID {
		return nil
	}
	removed := 0
	err := s.mutatePair(ctx, currentUserID, otherUserID, func(records []models.FriendRecord) ([]models.FriendRecord, error) {
		kept := records[:0:0]
		for _, r := range records {
			if r.Connects(currentUserID, otherUserID) {
				removed++
				continue
			}
			kept = append(kept, r)
		}
		return kept, nil
	})
	if err != nil {
		return err
	}
	if removed > 0 {
		log.Printf("Relationship between %s and %s removed by %s", currentUserID, otherUserID, currentUserID)
	}
	return nil
}

func (s *friendService) GetFriendRequests(ctx context.Context, userID string) ([]models.FriendRecord, error) {
	records, err := s.Records(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := []models.FriendRecord{}
	for _, r := range records {
		if r.Status == models.FriendStatusPending && r.ToUserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

// HasFriendRequest looks at both partitions, so the answer does not depend on
// the argument order when one mirror copy is missing.
func (s *friendService) HasFriendRequest(ctx context.Context, fromUserID, toUserID string) (bool, error) {
	pair, err := s.pairRecords(ctx, fromUserID, toUserID)
	if err != nil {
		return false, err
	}
	return len(pair) > 0, nil
}

func (s *friendService) AreFriends(ctx context.Context, a, b string) (bool, error) {
	pair, err := s.pairRecords(ctx, a, b)
	if err != nil {
		return false, err
	}
	for _, r := range pair {
		if r.Status == models.FriendStatusAccepted {
			return true, nil
		}
	}
	return false, nil
}

// pairRecords merges the records connecting a and b from both partitions.
func (s *friendService) pairRecords(ctx context.Context, a, b string) ([]models.FriendRecord, error) {
	if a == b {
		return []models.FriendRecord{}, nil
	}
	recordsA, err := s.Records(ctx, a)
	if err != nil {
		return nil, err
	}
	recordsB, err := s.Records(ctx, b)
	if err != nil {
		return nil, err
	}
	pairA, _ := splitPair(recordsA, a, b)
	pairB, _ := splitPair(recordsB, a, b)
	return mergeByID(pairA, pairB), nil
}

// Records returns every record in the user's friend partition.
func (s *friendService) Records(ctx context.Context, userID string) ([]models.FriendRecord, error) {
	return storage.Load[models.FriendRecord](ctx, s.parts, userID, models.PartitionFriends)
}

func (s *friendService) ListFriends(ctx context.Context, userID string) ([]models.FriendView, error) {
	return s.views(ctx, userID, func(r models.FriendRecord) bool {
		return r.Status == models.FriendStatusAccepted
	})
}

func (s *friendService) ListIncoming(ctx context.Context, userID string) ([]models.FriendView, error) {
	return s.views(ctx, userID, func(r models.FriendRecord) bool {
		return r.Status == models.FriendStatusPending && r.ToUserID == userID
	})
}

func (s *friendService) ListOutgoing(ctx context.Context, userID string) ([]models.FriendView, error) {
	return s.views(ctx, userID, func(r models.FriendRecord) bool {
		return r.Status == models.FriendStatusPending && r.AddedBy == userID
	})
}

// views joins matching records with the live directory profile of the other side.
func (s *friendService) views(ctx context.Context, userID string, keep func(models.FriendRecord) bool) ([]models.FriendView, error) {
	records, err := s.Records(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := []models.FriendView{}
	for _, r := range records {
		if !r.Involves(userID) || !keep(r) {
			continue
		}
		otherID := r.Other(userID)
		other, ok := s.dir.Get(otherID)
		if !ok {
			other = models.User{ID: otherID}
		}
		direction := models.DirectionIncoming
		if r.AddedBy == userID {
			direction = models.DirectionOutgoing
		}
		out = append(out, models.FriendView{Record: r, Other: other, Direction: direction})
	}
	return out, nil
}

// findPendingForRecipient resolves requestID in the current user's partition.
func (s *friendService) findPendingForRecipient(ctx context.Context, currentUserID, requestID string) (models.FriendRecord, error) {
	records, err := s.Records(ctx, currentUserID)
	if err != nil {
		return models.FriendRecord{}, err
	}
	for _, r := range records {
		if r.ID != requestID || r.Status != models.FriendStatusPending {
			continue
		}
		if r.ToUserID != currentUserID {
			return models.FriendRecord{}, ErrNotRecipientOfRequest
		}
		return r, nil
	}
	return models.FriendRecord{}, ErrFriendRequestNotFound
}

// mutatePair applies fn to the friend partitions of a and b while holding
// both locks. fn sees the union of both partitions, so a copy missing on one
// side is repaired by the write. If the second save fails the first
// partition is restored.
func (s *friendService) mutatePair(ctx context.Context, a, b string, fn func([]models.FriendRecord) ([]models.FriendRecord, error)) error {
	unlock := s.parts.Lock(s.parts.Key(a, models.PartitionFriends), s.parts.Key(b, models.PartitionFriends))
	defer unlock()

	recordsA, err := storage.Load[models.FriendRecord](ctx, s.parts, a, models.PartitionFriends)
	if err != nil {
		return err
	}
	recordsB, err := storage.Load[models.FriendRecord](ctx, s.parts, b, models.PartitionFriends)
	if err != nil {
		return err
	}

	pairA, restA := splitPair(recordsA, a, b)
	pairB, restB := splitPair(recordsB, a, b)
	pair, err := fn(mergeByID(pairA, pairB))
	if err != nil {
		return err
	}

	if err := storage.Save(ctx, s.parts, a, models.PartitionFriends, append(restA, pair...)); err != nil {
		return err
	}
	if err := storage.Save(ctx, s.parts, b, models.PartitionFriends, append(restB, pair...)); err != nil {
		if rbErr := storage.Save(ctx, s.parts, a, models.PartitionFriends, recordsA); rbErr != nil {
			log.Printf("Failed to restore friend partition of %s after partial write: %v", a, rbErr)
		}
		return err
	}
	return nil
}

// splitPair separates the records connecting a and b from the others.
func splitPair(records []models.FriendRecord, a, b string) (pair, rest []models.FriendRecord) {
	pair, rest = []models.FriendRecord{}, []models.FriendRecord{}
	for _, r := range records {
		if r.Connects(a, b) {
			pair = append(pair, r)
		} else {
			rest = append(rest, r)
		}
	}
	return pair, rest
}

// mergeByID returns the records of x followed by those of y not already in x.
func mergeByID(x, y []models.FriendRecord) []models.FriendRecord {
	seen := make(map[string]bool, len(x))
	out := make([]models.FriendRecord, 0, len(x)+len(y))
	for _, r := range x {
		seen[r.ID] = true
		out = append(out, r)
	}
	for _, r := range y {
		if !seen[r.ID] {
			out = append(out, r)
		}
	}
	return out
}

func (s *friendService) publish(ctx context.Context, event events.Event) {
	publish(ctx, s.publisher, event)
}

// publish hands event to p and logs failures. Mutations never fail because of
// a downstream consumer.
func publish(ctx context.Context, p events.Publisher, event events.Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, event); err != nil {
		log.Printf("Failed to publish %s: %v", event.EventType(), err)
	}
}
