package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"schedle/internal/auth"
	"schedle/internal/config"
	"schedle/internal/directory"
	"schedle/internal/models"

	"github.com/google/uuid"
)

var (
	ErrUserAlreadyExists  = errors.New("a user with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrPasswordTooShort   = auth.ErrPasswordTooShort
	ErrPasswordTooLong    = auth.ErrPasswordTooLong
	ErrInvalidProfile     = errors.New("invalid profile")
)

// AuthService is the identity provider. It keeps a mock credential store:
// every seeded user shares the configured default password, registered users
// get their own bcrypt hash.
type AuthService interface {
	Register(ctx context.Context, name, email, password string) (*models.User, error)
	Login(ctx context.Context, email, password string) (token string, user *models.User, err error)
	Logout(ctx context.Context, claims *auth.Claims) error
	// UpdateProfile writes a profile change back to the directory. Empty values are left unchanged.
	UpdateProfile(ctx context.Context, userID, name, avatar string) (*models.User, error)
	GetUser(ctx context.Context, userID string) (*models.User, error)
}

type authService struct {
	dir       *directory.Directory
	blacklist auth.TokenBlacklist
	cfg       config.Config

	mu          sync.RWMutex
	credentials map[string]string // user id -> bcrypt hash
	defaultHash string
}

// NewAuthService hashes the default password once for all seeded users.
func NewAuthService(dir *directory.Directory, blacklist auth.TokenBlacklist, cfg config.Config) (AuthService, error) {
	defaultHash, err := auth.HashPassword(cfg.Directory.DefaultPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to hash default password: %w", err)
	}
	return &authService{
		dir:         dir,
		blacklist:   blacklist,
		cfg:         cfg,
		credentials: make(map[string]string),
		defaultHash: defaultHash,
	}, nil
}

func (s *authService) Register(ctx context.Context, name, email, password string) (*models.User, error) {
	name, email = strings.TrimSpace(name), strings.TrimSpace(email)
	if name == "" || email == "" {
		return nil, fmt.Errorf("%w: name and email are required", ErrInvalidProfile)
	}
	if err := auth.ValidatePassword(password); err != nil {
		return nil, err
	}
	if _, exists := s.dir.GetByEmail(email); exists {
		return nil, ErrUserAlreadyExists
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.User{
		ID:    "user-" + uuid.NewString(),
		Name:  name,
		Email: email,
	}
	if err := s.dir.Add(user); err != nil {
		if errors.Is(err, directory.ErrEmailTaken) {
			return nil, ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("failed to register user: %w", err)
	}

	s.mu.Lock()
	s.credentials[user.ID] = hash
	s.mu.Unlock()

	log.Printf("Registered user %s (%s)", user.ID, user.Email)
	return &user, nil
}

func (s *authService) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	user, ok := s.dir.GetByEmail(email)
	if !ok {
		return "", nil, ErrInvalidCredentials
	}

	s.mu.RLock()
	hash, registered := s.credentials[user.ID]
	s.mu.RUnlock()
	if !registered {
		hash = s.defaultHash
	}
	if !auth.CheckPasswordHash(password, hash) {
		return "", nil, ErrInvalidCredentials
	}

	token, err := auth.GenerateToken(user.ID, user.Email, s.cfg.Auth)
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate token: %w", err)
	}
	log.Printf("User %s logged in", user.ID)
	return token, &user, nil
}

// Logout revokes the token until it expires.
func (s *authService) Logout(ctx context.Context, claims *auth.Claims) error {
	if claims == nil || claims.ID == "" {
		return fmt.Errorf("token has no jti")
	}
	if s.blacklist == nil || claims.ExpiresAt == nil {
		return nil
	}
	if err := s.blacklist.Add(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	log.Printf("User %s logged out", claims.UserID)
	return nil
}

func (s *authService) UpdateProfile(ctx context.Context, userID, name, avatar string) (*models.User, error) {
	user, ok := s.dir.Get(userID)
	if !ok {
		return nil, ErrUserNotFound
	}
	if name = strings.TrimSpace(name); name != "" {
		user.Name = name
	}
	if avatar = strings.TrimSpace(avatar); avatar != "" {
		user.Avatar = avatar
	}
	if err := s.dir.Update(user); err != nil {
		return nil, fmt.Errorf("failed to update profile of %s: %w", userID, err)
	}
	return &user, nil
}

func (s *authService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	user, ok := s.dir.Get(userID)
	if !ok {
		return nil, ErrUserNotFound
	}
	return &user, nil
}
