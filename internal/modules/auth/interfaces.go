package auth

import (
	"context"
	"time"

	"timeline/internal/domain"
	"timeline/internal/pkg/jwt"
)

// UserRepositoryInterface holds only the methods the auth service uses
type UserRepositoryInterface interface {
	Create(ctx context.Context, u *domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	LinkGoogleID(ctx context.Context, id int64, googleID string) error
}

// TokenService is the token lifecycle the auth flows drive.
type TokenService interface {
	IssueTokenPair(ctx context.Context, p jwt.Principal) (*jwt.TokenPair, error)
	RefreshAccessToken(ctx context.Context, refreshToken string, p jwt.Principal) (string, error)
	Validate(ctx context.Context, raw string) (*jwt.Claims, error)
	ValidateRefresh(ctx context.Context, raw string) bool
	Inspect(raw string) (*jwt.Claims, error)
	Revoke(ctx context.Context, raw string) error
	RevokeAllForSubject(ctx context.Context, subject string) error
	RemainingTTL(raw string) time.Duration
	AccessTTL() time.Duration
}

type GoogleIdentity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

type GoogleVerifier interface {
	Verify(ctx context.Context, idToken string) (*GoogleIdentity, error)
}
