package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"schedle/internal/blob"
	"schedle/internal/directory"
	"schedle/internal/models"
)

var ErrUnsupportedAvatar = errors.New("avatar must be an image")

// UserSearchResult is a directory match annotated for the searching user.
type UserSearchResult struct {
	models.User
	// HasRelationship is true when any friend record connects the two users.
	HasRelationship bool `json:"hasRelationship"`
}

// UserService covers directory lookups made on behalf of a signed in user.
type UserService interface {
	SearchUsers(ctx context.Context, query, currentUserID string) ([]UserSearchResult, error)
	UploadAvatar(ctx context.Context, userID string, reader io.Reader, size int64, fileName, mimeType string) (*models.User, error)
}

type userService struct {
	dir      *directory.Directory
	friends  FriendService
	identity AuthService
	avatars  blob.Store
}

// NewUserService creates a UserService. avatars may be nil, which disables uploads.
func NewUserService(dir *directory.Directory, friends FriendService, identity AuthService, avatars blob.Store) UserService {
	return &userService{dir: dir, friends: friends, identity: identity, avatars: avatars}
}

func (s *userService) SearchUsers(ctx context.Context, query, currentUserID string) ([]UserSearchResult, error) {
	matches := s.dir.Search(query, currentUserID)
	out := make([]UserSearchResult, 0, len(matches))
	for _, u := range matches {
		related, err := s.friends.HasFriendRequest(ctx, currentUserID, u.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, UserSearchResult{User: u, HasRelationship: related})
	}
	return out, nil
}

// UploadAvatar stores the image and points the profile at it.
func (s *userService) UploadAvatar(ctx context.Context, userID string, reader io.Reader, size int64, fileName, mimeType string) (*models.User, error) {
	if s.avatars == nil {
		return nil, fmt.Errorf("avatar uploads are not configured")
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, ErrUnsupportedAvatar
	}
	info, err := s.avatars.Upload(ctx, reader, size, fileName, mimeType)
	if err != nil {
		return nil, fmt.Errorf("failed to upload avatar: %w", err)
	}
	return s.identity.UpdateProfile(ctx, userID, "", info.URL)
}
