package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"schedle/internal/directory"
	"schedle/internal/models"
	"schedle/internal/storage"

	"github.com/google/uuid"
)

var (
	ErrInvalidGroup   = errors.New("invalid group")
	ErrNotGroupOwner  = errors.New("only the group owner can do this")
	ErrNotGroupMember = errors.New("user is not a member of this group")
)

// GroupService manages groups. A copy of every group is kept in the group
// partition of each member.
type GroupService interface {
	CreateGroup(ctx context.Context, ownerID, name string, memberIDs []string, avatar string) (*models.Group, error)
	ListGroups(ctx context.Context, userID string) ([]models.Group, error)
	GetGroup(ctx context.Context, userID, groupID string) (*models.Group, error)
	LeaveGroup(ctx context.Context, userID, groupID string) error
	DeleteGroup(ctx context.Context, ownerID, groupID string) error
}

type groupService struct {
	parts *storage.Partitions
	dir   *directory.Directory
	now   func() time.Time
}

// NewGroupService creates a GroupService.
func NewGroupService(parts *storage.Partitions, dir *directory.Directory) GroupService {
	return &groupService{parts: parts, dir: dir, now: time.Now}
}

// CreateGroup always includes the owner and drops repeated member ids.
func (s *groupService) CreateGroup(ctx context.Context, ownerID, name string, memberIDs []string, avatar string) (*models.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidGroup)
	}
	members := dedupe(append([]string{ownerID}, memberIDs...))
	for _, id := range members {
		if !s.dir.Exists(id) {
			return nil, fmt.Errorf("%w: member %s", ErrUnknownUser, id)
		}
	}

	group := models.Group{
		ID:        uuid.NewString(),
		Name:      name,
		Members:   members,
		Avatar:    avatar,
		OwnerID:   ownerID,
		CreatedAt: s.now().UTC(),
	}

	err := s.mutateMembers(ctx, members, func(userID string, groups []models.Group) []models.Group {
		return append(groups, group)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Group %s (%s) created by %s with %d members", group.ID, group.Name, ownerID, len(members))
	return &group, nil
}

func (s *groupService) ListGroups(ctx context.Context, userID string) ([]models.Group, error) {
	return storage.Load[models.Group](ctx, s.parts, userID, models.PartitionGroups)
}

func (s *groupService) GetGroup(ctx context.Context, userID, groupID string) (*models.Group, error) {
	return findGroup(ctx, s.parts, userID, groupID)
}

// LeaveGroup removes the group from the leaver's partition and the leaver
// from everybody else's copy. Ownership passes to the next member.
func (s *groupService) LeaveGroup(ctx context.Context, userID, groupID string) error {
	group, unlock, err := s.lockGroup(ctx, userID, groupID)
	if err != nil {
		return err
	}
	defer unlock()
	if !group.HasMember(userID) {
		return ErrNotGroupMember
	}

	remaining := make([]string, 0, len(group.Members))
	for _, m := range group.Members {
		if m != userID {
			remaining = append(remaining, m)
		}
	}
	owner := group.OwnerID
	if owner == userID && len(remaining) > 0 {
		owner = remaining[0]
	}

	err = s.applyLocked(ctx, group.Members, func(memberID string, groups []models.Group) []models.Group {
		out := groups[:0:0]
		for _, g := range groups {
			if g.ID != groupID {
				out = append(out, g)
				continue
			}
			if memberID == userID {
				continue
			}
			g.Members = remaining
			g.OwnerID = owner
			out = append(out, g)
		}
		return out
	})
	if err != nil {
		return err
	}
	log.Printf("User %s left group %s", userID, groupID)
	return nil
}

// DeleteGroup removes the group from every member's partition.
func (s *groupService) DeleteGroup(ctx context.Context, ownerID, groupID string) error {
	group, unlock, err := s.lockGroup(ctx, ownerID, groupID)
	if err != nil {
		return err
	}
	defer unlock()
	if group.OwnerID != ownerID {
		return ErrNotGroupOwner
	}

	err = s.applyLocked(ctx, group.Members, func(_ string, groups []models.Group) []models.Group {
		out := groups[:0:0]
		for _, g := range groups {
			if g.ID != groupID {
				out = append(out, g)
			}
		}
		return out
	})
	if err != nil {
		return err
	}
	log.Printf("Group %s deleted by %s", groupID, ownerID)
	return nil
}

const maxGroupLockAttempts = 5

// lockGroup locks the group partitions of userID and every member, then
// re-reads the group under those locks. If the member list changed in the
// meantime the locks are released and the lookup starts over.
func (s *groupService) lockGroup(ctx context.Context, userID, groupID string) (*models.Group, func(), error) {
	snapshot, err := findGroup(ctx, s.parts, userID, groupID)
	if err != nil {
		return nil, nil, err
	}
	for attempt := 0; attempt < maxGroupLockAttempts; attempt++ {
		unlock := s.parts.Lock(s.groupKeys(append([]string{userID}, snapshot.Members...))...)
		current, err := findGroup(ctx, s.parts, userID, groupID)
		if err != nil {
			unlock()
			return nil, nil, err
		}
		if sameMembers(snapshot.Members, current.Members) {
			return current, unlock, nil
		}
		unlock()
		snapshot = current
	}
	return nil, nil, fmt.Errorf("group %s kept changing while locking its members", groupID)
}

// mutateMembers rewrites the group partition of every member while holding all their locks.
func (s *groupService) mutateMembers(ctx context.Context, memberIDs []string, fn func(userID string, groups []models.Group) []models.Group) error {
	unlock := s.parts.Lock(s.groupKeys(memberIDs)...)
	defer unlock()
	return s.applyLocked(ctx, memberIDs, fn)
}

// applyLocked expects the caller to hold the locks of every member. When a
// save fails the partitions written before it are put back.
func (s *groupService) applyLocked(ctx context.Context, memberIDs []string, fn func(userID string, groups []models.Group) []models.Group) error {
	memberIDs = dedupe(memberIDs)
	original := make(map[string][]models.Group, len(memberIDs))
	updated := make(map[string][]models.Group, len(memberIDs))
	for _, id := range memberIDs {
		groups, err := storage.Load[models.Group](ctx, s.parts, id, models.PartitionGroups)
		if err != nil {
			return err
		}
		original[id] = append([]models.Group{}, groups...)
		updated[id] = fn(id, groups)
	}
	for i, id := range memberIDs {
		if err := storage.Save(ctx, s.parts, id, models.PartitionGroups, updated[id]); err != nil {
			for _, done := range memberIDs[:i] {
				if rbErr := storage.Save(ctx, s.parts, done, models.PartitionGroups, original[done]); rbErr != nil {
					log.Printf("Failed to restore group partition of %s: %v", done, rbErr)
				}
			}
			return err
		}
	}
	return nil
}

func (s *groupService) groupKeys(userIDs []string) []string {
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, s.parts.Key(id, models.PartitionGroups))
	}
	return keys
}

func sameMembers(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, id := range a {
		set[id] = true
	}
	for _, id := range b {
		if !set[id] {
			return false
		}
	}
	return true
}

// findGroup looks groupID up in the user's own partition.
func findGroup(ctx context.Context, parts *storage.Partitions, userID, groupID string) (*models.Group, error) {
	groups, err := storage.Load[models.Group](ctx, parts, userID, models.PartitionGroups)
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		if g.ID == groupID {
			return &g, nil
		}
	}
	return nil, ErrGroupNotFound
}
