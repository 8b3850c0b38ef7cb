package middleware

import (
	"context"

	"timeline/internal/domain"

	"github.com/gin-gonic/gin"
)

const (
	currentUserKey = "current_user"
	accessTokenKey = "access_token"
)

type principalKey struct{}

// WithPrincipal stores the authenticated user on a request context.
func WithPrincipal(ctx context.Context, u *domain.User) context.Context {
	return context.WithValue(ctx, principalKey{}, u)
}

func PrincipalFrom(ctx context.Context) (*domain.User, bool) {
	u, ok := ctx.Value(principalKey{}).(*domain.User)
	return u, ok && u != nil
}

// CurrentUser returns the user established by Authenticate for this request.
func CurrentUser(c *gin.Context) (*domain.User, bool) {
	v, ok := c.Get(currentUserKey)
	if !ok {
		return nil, false
	}
	u, ok := v.(*domain.User)
	return u, ok && u != nil
}

// AccessToken is the raw bearer token that authenticated the request.
func AccessToken(c *gin.Context) string {
	return c.GetString(accessTokenKey)
}

func setPrincipal(c *gin.Context, u *domain.User, token string) {
	c.Set(currentUserKey, u)
	c.Set(accessTokenKey, token)
	c.Set("user_id", u.ID)
	c.Set("role", string(u.Role))
	c.Request = c.Request.WithContext(WithPrincipal(c.Request.Context(), u))
}
