package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"timeline/internal/domain"
	"timeline/internal/pkg/ratelimit"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return false, errors.New("redis: connection refused")
}
func (brokenLimiter) Remaining(context.Context, string, int, time.Duration) (int, error) {
	return 0, errors.New("redis: connection refused")
}
func (brokenLimiter) ResetSeconds(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("redis: connection refused")
}
func (brokenLimiter) Reset(context.Context, string) error { return nil }

func limitedRouter(limiter ratelimit.Limiter, policy ratelimit.Policy, calls *int, user *domain.User) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	if user != nil {
		router.Use(func(c *gin.Context) {
			setPrincipal(c, user, "test-token")
			c.Next()
		})
	}
	router.POST("/api/auth/login", RateLimit(limiter, policy, nil), func(c *gin.Context) {
		*calls++
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router
}

func post(router http.Handler, ip string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = ip + ":51000"
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimit_HeadersAndRejection(t *testing.T) {
	clk := &clock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	limiter := ratelimit.NewMemoryLimiter(ratelimit.WithClock(clk.Now))
	policy := ratelimit.Policy{Operation: "login", MaxRequests: 3, Window: time.Minute, Scope: ratelimit.ScopeIP, Message: "Too many login attempts."}

	calls := 0
	router := limitedRouter(limiter, policy, &calls, nil)

	for i := 1; i <= 3; i++ {
		w := post(router, "10.0.0.1")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, []string{"2", "1", "0"}[i-1], w.Header().Get("X-RateLimit-Remaining"))
		assert.Equal(t, "60", w.Header().Get("X-RateLimit-Reset"))
	}

	clk.Advance(20 * time.Second)
	w := post(router, "10.0.0.1")

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, 3, calls)
	assert.Equal(t, "40", w.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(429), body["status"])
	assert.Equal(t, "Too Many Requests", body["error"])
	assert.Equal(t, "Too many login attempts. Try again in 40 seconds.", body["message"])
	assert.Equal(t, float64(40), body["retryAfter"])
	assert.NotEmpty(t, body["timestamp"])

	// another address has its own budget
	assert.Equal(t, http.StatusOK, post(router, "10.0.0.2").Code)

	clk.Advance(41 * time.Second)
	assert.Equal(t, http.StatusOK, post(router, "10.0.0.1").Code)
}

func TestRateLimit_Scopes(t *testing.T) {
	policy := func(scope ratelimit.Scope) ratelimit.Policy {
		return ratelimit.Policy{Operation: "upgrade", MaxRequests: 1, Window: time.Hour, Scope: scope}
	}

	t.Run("user scope keys by subject", func(t *testing.T) {
		limiter := ratelimit.NewMemoryLimiter()
		calls := 0
		anaRouter := limitedRouter(limiter, policy(ratelimit.ScopeUser), &calls, ana)
		bob := &domain.User{ID: 7, Email: "bob@example.com", Role: domain.RoleUser}
		bobRouter := limitedRouter(limiter, policy(ratelimit.ScopeUser), &calls, bob)

		assert.Equal(t, http.StatusOK, post(anaRouter, "10.0.0.1").Code)
		assert.Equal(t, http.StatusTooManyRequests, post(anaRouter, "10.0.0.2").Code)
		assert.Equal(t, http.StatusOK, post(bobRouter, "10.0.0.1").Code)
	})

	t.Run("anonymous callers share one bucket", func(t *testing.T) {
		limiter := ratelimit.NewMemoryLimiter()
		calls := 0
		router := limitedRouter(limiter, policy(ratelimit.ScopeUser), &calls, nil)

		assert.Equal(t, http.StatusOK, post(router, "10.0.0.1").Code)
		assert.Equal(t, http.StatusTooManyRequests, post(router, "10.0.0.2").Code)
		remaining, _ := limiter.Remaining(context.Background(), "ratelimit:user:anonymous:upgrade", 1, time.Hour)
		assert.Equal(t, 0, remaining)
	})

	t.Run("global scope ignores identity", func(t *testing.T) {
		limiter := ratelimit.NewMemoryLimiter()
		calls := 0
		router := limitedRouter(limiter, policy(ratelimit.ScopeGlobal), &calls, ana)

		assert.Equal(t, http.StatusOK, post(router, "10.0.0.1").Code)
		assert.Equal(t, http.StatusTooManyRequests, post(router, "10.0.0.9").Code)
		remaining, _ := limiter.Remaining(context.Background(), "ratelimit:global:upgrade", 1, time.Hour)
		assert.Equal(t, 0, remaining)
	})
}

func TestRateLimit_FailsOpenOnLimiterError(t *testing.T) {
	calls := 0
	router := limitedRouter(brokenLimiter{}, ratelimit.Policy{Operation: "login"}, &calls, nil)

	w := post(router, "10.0.0.1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, calls)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:4000"
	assert.Equal(t, "192.0.2.10", ClientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.4")
	assert.Equal(t, "198.51.100.4", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", ClientIP(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "pipe"
	assert.Equal(t, "pipe", ClientIP(req))
}
