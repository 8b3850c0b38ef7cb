package jwt

import (
	"context"
	"time"

	"timeline/internal/pkg/shardmap"
)

// Store tracks revoked tokens and the single live refresh token per subject.
type Store interface {
	Revoke(ctx context.Context, token string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, token string) (bool, error)
	SetActiveRefresh(ctx context.Context, subject, token string, expiresAt time.Time) error
	ActiveRefresh(ctx context.Context, subject string) (string, bool, error)
	DropActiveRefresh(ctx context.Context, subject string) error
	// PurgeExpired drops revocation entries whose token expired at or before now.
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

// MemoryStore keeps state in process memory. It is correct for a single
// instance only; use RedisStore when several instances share traffic.
type MemoryStore struct {
	revoked *shardmap.Map[time.Time]
	refresh *shardmap.Map[string]
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		revoked: shardmap.New[time.Time](),
		refresh: shardmap.New[string](),
	}
}

func (s *MemoryStore) Revoke(_ context.Context, token string, expiresAt time.Time) error {
	s.revoked.Store(token, expiresAt)
	return nil
}

func (s *MemoryStore) IsRevoked(_ context.Context, token string) (bool, error) {
	_, ok := s.revoked.Load(token)
	return ok, nil
}

func (s *MemoryStore) SetActiveRefresh(_ context.Context, subject, token string, _ time.Time) error {
	s.refresh.Store(subject, token)
	return nil
}

func (s *MemoryStore) ActiveRefresh(_ context.Context, subject string) (string, bool, error) {
	token, ok := s.refresh.Load(subject)
	return token, ok, nil
}

func (s *MemoryStore) DropActiveRefresh(_ context.Context, subject string) error {
	s.refresh.Delete(subject)
	return nil
}

func (s *MemoryStore) PurgeExpired(_ context.Context, now time.Time) (int, error) {
	return s.revoked.DeleteIf(func(_ string, expiresAt time.Time) bool {
		return !now.Before(expiresAt)
	}), nil
}

// RevokedCount is used by tests and the metrics endpoint.
func (s *MemoryStore) RevokedCount() int { return s.revoked.Len() }
