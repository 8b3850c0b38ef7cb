package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"timeline/internal/domain"
	"timeline/internal/pkg/jwt"
	"timeline/internal/pkg/logger"
	"timeline/internal/repository"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Service contains all business logic for authentication
type Service struct {
	users    UserRepositoryInterface
	tokens   TokenService
	google   GoogleVerifier
	log      *zap.Logger
	hashCost int
}

type LoginResult struct {
	User         *domain.User
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

type RefreshResult struct {
	AccessToken string
	ExpiresIn   time.Duration
}

type VerifyResult struct {
	User      *domain.User
	Remaining time.Duration
}

// NewService wires the auth flows. google may be nil, which disables
// Google sign-in.
func NewService(users UserRepositoryInterface, tokens TokenService, google GoogleVerifier, log *zap.Logger) *Service {
	return &Service{
		users:    users,
		tokens:   tokens,
		google:   google,
		log:      logger.OrNop(log),
		hashCost: bcrypt.DefaultCost,
	}
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	// accounts created through Google have no password
	if user.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.issue(ctx, user)
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (*LoginResult, error) {
	hashed, err := s.hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Email:        normalizeEmail(req.Email),
		PasswordHash: hashed,
		Name:         strings.TrimSpace(req.Name),
		Role:         domain.RoleUser,
		Plan:         domain.PlanFree,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return nil, ErrEmailAlreadyExists
		}
		return nil, err
	}

	s.log.Info("user registered", zap.Int64("user_id", user.ID))
	return s.issue(ctx, user)
}

// GoogleLogin signs in with a Google ID token, creating the account on
// first use and linking it to an existing account with the same email.
func (s *Service) GoogleLogin(ctx context.Context, idToken string) (*LoginResult, error) {
	if s.google == nil {
		return nil, ErrGoogleDisabled
	}

	identity, err := s.google.Verify(ctx, idToken)
	if err != nil {
		s.log.Debug("google token rejected", zap.Error(err))
		return nil, ErrInvalidGoogleToken
	}
	if !identity.EmailVerified || identity.Email == "" {
		return nil, ErrInvalidGoogleToken
	}

	email := normalizeEmail(identity.Email)
	user, err := s.users.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		user = &domain.User{
			Email:    email,
			Name:     identity.Name,
			Role:     domain.RoleUser,
			Plan:     domain.PlanFree,
			GoogleID: identity.Subject,
		}
		if err := s.users.Create(ctx, user); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	case user.GoogleID == "":
		if err := s.users.LinkGoogleID(ctx, user.ID, identity.Subject); err != nil {
			return nil, err
		}
		user.GoogleID = identity.Subject
	}

	return s.issue(ctx, user)
}

// Verify reports whether an access token is currently usable and by whom.
func (s *Service) Verify(ctx context.Context, accessToken string) (*VerifyResult, error) {
	if accessToken == "" {
		return nil, ErrUnauthorized
	}
	claims, err := s.tokens.Validate(ctx, accessToken)
	if err != nil {
		return nil, ErrUnauthorized
	}
	user, err := s.users.GetByEmail(ctx, claims.Subject)
	if err != nil {
		return nil, ErrUnauthorized
	}
	user.PasswordHash = ""
	return &VerifyResult{User: user, Remaining: s.tokens.RemainingTTL(accessToken)}, nil
}

// Refresh mints a new access token for the refresh token's subject.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	claims, err := s.tokens.Inspect(refreshToken)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}
	user, err := s.users.GetByEmail(ctx, claims.Subject)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}

	access, err := s.tokens.RefreshAccessToken(ctx, refreshToken, user)
	if err != nil {
		if errors.Is(err, jwt.ErrInvalidRefreshToken) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}
	return &RefreshResult{AccessToken: access, ExpiresIn: s.tokens.AccessTTL()}, nil
}

// Logout revokes whatever tokens the caller presents. The subject's refresh
// slot is dropped only when one of them is still live: an unexpired access
// token or the subject's current refresh token.
func (s *Service) Logout(ctx context.Context, accessToken, refreshToken string) error {
	subject := s.liveSubject(ctx, accessToken, refreshToken)

	for _, raw := range []string{accessToken, refreshToken} {
		if raw == "" {
			continue
		}
		if err := s.tokens.Revoke(ctx, raw); err != nil {
			return err
		}
	}

	if subject == "" {
		return nil
	}
	if err := s.tokens.RevokeAllForSubject(ctx, subject); err != nil {
		return err
	}
	s.log.Info("user logged out", zap.String("subject", subject))
	return nil
}

func (s *Service) liveSubject(ctx context.Context, accessToken, refreshToken string) string {
	if accessToken != "" {
		if claims, err := s.tokens.Validate(ctx, accessToken); err == nil {
			return claims.Subject
		}
	}
	if refreshToken != "" && s.tokens.ValidateRefresh(ctx, refreshToken) {
		if claims, err := s.tokens.Inspect(refreshToken); err == nil {
			return claims.Subject
		}
	}
	return ""
}

func (s *Service) issue(ctx context.Context, user *domain.User) (*LoginResult, error) {
	pair, err := s.tokens.IssueTokenPair(ctx, user)
	if err != nil {
		return nil, err
	}
	user.PasswordHash = ""
	return &LoginResult{
		User:         user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    s.tokens.AccessTTL(),
	}, nil
}

func (s *Service) hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
