package jwt

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares revocation and refresh-slot state between instances.
// Revoked tokens are stored by hash and expire together with the token.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, now: time.Now}
}

func (s *RedisStore) revokedKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return s.prefix + "revoked:" + hex.EncodeToString(sum[:])
}

func (s *RedisStore) refreshKey(subject string) string {
	return s.prefix + "refresh:" + subject
}

// ttlUntil returns zero when the deadline has already passed.
func (s *RedisStore) ttlUntil(t time.Time) time.Duration {
	ttl := t.Sub(s.now())
	if ttl <= 0 {
		return 0
	}
	if ttl < time.Second {
		return time.Second
	}
	return ttl
}

func (s *RedisStore) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	ttl := s.ttlUntil(expiresAt)
	if ttl == 0 {
		// already expired tokens fail validation on their own
		return nil
	}
	if err := s.client.Set(ctx, s.revokedKey(token), 1, ttl).Err(); err != nil {
		return fmt.Errorf("redis revoke: %w", err)
	}
	return nil
}

func (s *RedisStore) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := s.client.Exists(ctx, s.revokedKey(token)).Result()
	if err != nil {
		return false, fmt.Errorf("redis is revoked: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) SetActiveRefresh(ctx context.Context, subject, token string, expiresAt time.Time) error {
	ttl := s.ttlUntil(expiresAt)
	if ttl == 0 {
		return s.DropActiveRefresh(ctx, subject)
	}
	if err := s.client.Set(ctx, s.refreshKey(subject), token, ttl).Err(); err != nil {
		return fmt.Errorf("redis set refresh: %w", err)
	}
	return nil
}

func (s *RedisStore) ActiveRefresh(ctx context.Context, subject string) (string, bool, error) {
	token, err := s.client.Get(ctx, s.refreshKey(subject)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get refresh: %w", err)
	}
	return token, true, nil
}

func (s *RedisStore) DropActiveRefresh(ctx context.Context, subject string) error {
	if err := s.client.Del(ctx, s.refreshKey(subject)).Err(); err != nil {
		return fmt.Errorf("redis drop refresh: %w", err)
	}
	return nil
}

// PurgeExpired is a no-op: redis expires keys itself.
func (s *RedisStore) PurgeExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}
