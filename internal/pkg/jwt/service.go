package jwt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"timeline/internal/pkg/logger"
	"timeline/internal/pkg/metrics"
)

// Principal is anything a token can be issued to.
type Principal interface {
	Subject() string
}

type Config struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

type Service struct {
	codec      *Codec
	store      Store
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	log        *zap.Logger
}

func NewService(cfg Config, store Store, log *zap.Logger) (*Service, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.AccessTTL < MinTTL {
		return nil, &ConfigurationError{Field: "access ttl", Err: fmt.Errorf("must be at least %s", MinTTL)}
	}
	if cfg.RefreshTTL < MinTTL {
		return nil, &ConfigurationError{Field: "refresh ttl", Err: fmt.Errorf("must be at least %s", MinTTL)}
	}
	if store == nil {
		store = NewMemoryStore()
	}

	codec, err := NewCodec(cfg.Secret, cfg.Now)
	if err != nil {
		return nil, err
	}

	return &Service{
		codec:      codec,
		store:      store,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        cfg.Now,
		log:        logger.OrNop(log),
	}, nil
}

func (s *Service) AccessTTL() time.Duration { return s.accessTTL }

func (s *Service) issue(subject string, typ TokenType, ttl time.Duration) (string, *Claims, error) {
	now := s.now()
	claims := &Claims{
		Type: typ,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := s.codec.Encode(claims)
	if err != nil {
		return "", nil, err
	}
	metrics.TokensIssued.WithLabelValues(string(typ)).Inc()
	return token, claims, nil
}

func (s *Service) IssueAccessToken(p Principal) (string, error) {
	token, _, err := s.issue(p.Subject(), TypeAccess, s.accessTTL)
	return token, err
}

// IssueRefreshToken replaces the subject's refresh slot, so any earlier
// refresh token for the same subject stops validating.
func (s *Service) IssueRefreshToken(ctx context.Context, p Principal) (string, error) {
	token, claims, err := s.issue(p.Subject(), TypeRefresh, s.refreshTTL)
	if err != nil {
		return "", err
	}
	if err := s.store.SetActiveRefresh(ctx, claims.Subject, token, claims.ExpiresAt.Time); err != nil {
		return "", fmt.Errorf("store refresh token: %w", err)
	}
	return token, nil
}

func (s *Service) IssueTokenPair(ctx context.Context, p Principal) (*TokenPair, error) {
	access, err := s.IssueAccessToken(p)
	if err != nil {
		return nil, err
	}
	refresh, err := s.IssueRefreshToken(ctx, p)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *Service) check(ctx context.Context, raw string, want TokenType) (*Claims, error) {
	claims, err := s.codec.Decode(raw)
	if err != nil {
		return nil, err
	}
	if claims.Type != want {
		return nil, ErrWrongTokenType
	}
	revoked, err := s.store.IsRevoked(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return nil, ErrRevokedToken
	}
	return claims, nil
}

func (s *Service) record(kind string, err error) {
	result := "valid"
	switch {
	case err == nil:
	case errors.Is(err, ErrExpiredToken):
		result = "expired"
	case errors.Is(err, ErrRevokedToken):
		result = "revoked"
	case errors.Is(err, ErrWrongTokenType):
		result = "wrong_type"
	case errors.Is(err, ErrMalformedToken):
		result = "malformed"
	default:
		result = "error"
	}
	metrics.TokenValidations.WithLabelValues(kind, result).Inc()
}

// Validate is the principal-agnostic access check: signature, expiry,
// revocation and type. The returned error is one of the package sentinels.
func (s *Service) Validate(ctx context.Context, raw string) (*Claims, error) {
	claims, err := s.check(ctx, raw, TypeAccess)
	s.record("generic", err)
	return claims, err
}

func (s *Service) ValidateAccess(ctx context.Context, raw string, p Principal) bool {
	claims, err := s.check(ctx, raw, TypeAccess)
	if err == nil && (p == nil || claims.Subject != p.Subject()) {
		err = ErrSubjectMismatch
	}
	s.record("access", err)
	return err == nil
}

func (s *Service) ValidateRefresh(ctx context.Context, raw string) bool {
	err := s.validateRefresh(ctx, raw)
	s.record("refresh", err)
	return err == nil
}

func (s *Service) validateRefresh(ctx context.Context, raw string) error {
	claims, err := s.check(ctx, raw, TypeRefresh)
	if err != nil {
		return err
	}
	active, ok, err := s.store.ActiveRefresh(ctx, claims.Subject)
	if err != nil {
		return fmt.Errorf("load refresh slot: %w", err)
	}
	if !ok || active != raw {
		return ErrInvalidRefreshToken
	}
	return nil
}

// RefreshAccessToken mints a new access token. The refresh token itself is
// left in place.
func (s *Service) RefreshAccessToken(ctx context.Context, refreshToken string, p Principal) (string, error) {
	if !s.ValidateRefresh(ctx, refreshToken) {
		return "", ErrInvalidRefreshToken
	}
	return s.IssueAccessToken(p)
}

// Inspect returns the claims of a correctly signed token, expired or not.
func (s *Service) Inspect(raw string) (*Claims, error) {
	return s.codec.Inspect(raw)
}

// Revoke blacklists the raw token until its own expiry and then purges
// entries that are no longer needed. Unreadable tokens are recorded with a
// zero expiry, so the purge drops them right away.
func (s *Service) Revoke(ctx context.Context, raw string) error {
	var expiresAt time.Time
	if claims, err := s.codec.Inspect(raw); err == nil && claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	if err := s.store.Revoke(ctx, raw, expiresAt); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	metrics.TokensRevoked.Inc()

	if _, err := s.Cleanup(ctx); err != nil {
		s.log.Warn("revoked token cleanup failed", zap.Error(err))
	}
	return nil
}

func (s *Service) RevokeAllForSubject(ctx context.Context, subject string) error {
	if err := s.store.DropActiveRefresh(ctx, subject); err != nil {
		return fmt.Errorf("drop refresh slot: %w", err)
	}
	return nil
}

// RemainingTTL is zero for expired or unreadable tokens.
func (s *Service) RemainingTTL(raw string) time.Duration {
	claims, err := s.codec.Inspect(raw)
	if err != nil || claims.ExpiresAt == nil {
		return 0
	}
	left := claims.ExpiresAt.Time.Sub(s.now())
	if left < 0 {
		return 0
	}
	return left
}

func (s *Service) Cleanup(ctx context.Context) (int, error) {
	return s.store.PurgeExpired(ctx, s.now())
}

// StartJanitor purges expired revocations every interval until ctx is done.
func (s *Service) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.Cleanup(ctx)
				if err != nil {
					s.log.Warn("token janitor failed", zap.Error(err))
					continue
				}
				if n > 0 {
					s.log.Debug("token janitor purged revocations", zap.Int("count", n))
				}
			}
		}
	}()
}
