package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"schedle/internal/auth"

	"github.com/redis/go-redis/v9"
)

// redisTokenBlacklist is the Redis implementation of auth.TokenBlacklist.
// Entries expire together with the token they revoke.
type redisTokenBlacklist struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisTokenBlacklist creates a blacklist backed by client. keyPrefix is the
// storage key prefix, so that deployments sharing a Redis do not see each other's logouts.
func NewRedisTokenBlacklist(client *redis.Client, keyPrefix string) auth.TokenBlacklist {
	return &redisTokenBlacklist{client: client, keyPrefix: keyPrefix + "revoked_jti_"}
}

func (r *redisTokenBlacklist) key(jti string) string {
	return r.keyPrefix + jti
}

// Add stores the jti until the token would have expired anyway.
func (r *redisTokenBlacklist) Add(ctx context.Context, jti string, originalTokenExpTime time.Time) error {
	ttl := time.Until(originalTokenExpTime)
	if ttl <= 0 {
		// 已过期的 token 校验时就会被拒绝
		return nil
	}
	if err := r.client.Set(ctx, r.key(jti), originalTokenExpTime.Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token %s: %w", jti, err)
	}
	return nil
}

// IsBlacklisted reports whether jti was revoked.
func (r *redisTokenBlacklist) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(jti)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("failed to check revocation of token %s: %w", jti, err)
	}
	return n > 0, nil
}
