package auth

import (
	"context"
	"sync"
	"time"
)

// TokenBlacklist stores revoked token ids until the token would expire.
type TokenBlacklist interface {
	// Add revokes jti until originalTokenExpTime.
	Add(ctx context.Context, jti string, originalTokenExpTime time.Time) error
	// IsBlacklisted reports whether jti was revoked.
	IsBlacklisted(ctx context.Context, jti string) (bool, error)
}

// MemoryBlacklist is a TokenBlacklist for single process deployments and tests.
type MemoryBlacklist struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryBlacklist creates an empty blacklist.
func NewMemoryBlacklist() *MemoryBlacklist {
	return &MemoryBlacklist{entries: make(map[string]time.Time), now: time.Now}
}

func (b *MemoryBlacklist) Add(ctx context.Context, jti string, originalTokenExpTime time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !originalTokenExpTime.After(b.now()) {
		return nil
	}
	b.entries[jti] = originalTokenExpTime
	return nil
}

func (b *MemoryBlacklist) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	exp, ok := b.entries[jti]
	if !ok {
		return false, nil
	}
	if !exp.After(b.now()) {
		delete(b.entries, jti)
		return false, nil
	}
	return true, nil
}
