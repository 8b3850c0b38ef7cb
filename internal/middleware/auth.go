package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"timeline/internal/domain"
	"timeline/internal/pkg/jwt"
	"timeline/internal/pkg/logger"
	"timeline/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TokenValidator is the part of the token service the gate relies on.
type TokenValidator interface {
	Validate(ctx context.Context, raw string) (*jwt.Claims, error)
	ValidateAccess(ctx context.Context, raw string, p jwt.Principal) bool
}

type UserLookup interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

type AuthOptions struct {
	// PublicPrefixes bypass the gate entirely.
	PublicPrefixes []string
	// PublicPaths bypass the gate on an exact match.
	PublicPaths []string
	Logger      *zap.Logger
}

// Authenticate resolves the caller from a bearer token or the token query
// parameter. It never rejects a request: a missing or bad token leaves the
// request anonymous and access checks further down decide.
func Authenticate(tokens TokenValidator, users UserLookup, opts AuthOptions) gin.HandlerFunc {
	log := logger.OrNop(opts.Logger)
	exact := make(map[string]struct{}, len(opts.PublicPaths))
	for _, p := range opts.PublicPaths {
		exact[p] = struct{}{}
	}

	isPublic := func(path string) bool {
		if _, ok := exact[path]; ok {
			return true
		}
		for _, prefix := range opts.PublicPrefixes {
			if strings.HasPrefix(path, prefix) {
				return true
			}
		}
		return false
	}

	return func(c *gin.Context) {
		if isPublic(c.Request.URL.Path) {
			metrics.AuthGate.WithLabelValues("exempt").Inc()
			c.Next()
			return
		}

		raw := ExtractToken(c.Request)
		if raw == "" {
			metrics.AuthGate.WithLabelValues("anonymous").Inc()
			c.Next()
			return
		}

		user, err := resolveUser(c.Request.Context(), tokens, users, raw)
		if err != nil {
			metrics.AuthGate.WithLabelValues("rejected").Inc()
			log.Debug("request left unauthenticated",
				zap.String("path", c.Request.URL.Path),
				zap.String("request_id", requestID(c)),
				zap.Error(err),
			)
			c.Next()
			return
		}

		metrics.AuthGate.WithLabelValues("authenticated").Inc()
		setPrincipal(c, user, raw)
		c.Next()
	}
}

func resolveUser(ctx context.Context, tokens TokenValidator, users UserLookup, raw string) (user *domain.User, err error) {
	defer func() {
		if r := recover(); r != nil {
			user, err = nil, fmt.Errorf("authentication panic: %v", r)
		}
	}()

	claims, err := tokens.Validate(ctx, raw)
	if err != nil {
		return nil, err
	}
	user, err = users.GetByEmail(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("load user %q: %w", claims.Subject, err)
	}
	if !tokens.ValidateAccess(ctx, raw, user) {
		return nil, jwt.ErrSubjectMismatch
	}
	return user, nil
}

// ExtractToken prefers "Authorization: Bearer <token>" and falls back to
// the token query parameter.
func ExtractToken(r *http.Request) string {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			if tok := strings.TrimSpace(parts[1]); tok != "" {
				return tok
			}
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
