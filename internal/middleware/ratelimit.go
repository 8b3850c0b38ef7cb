package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"timeline/internal/pkg/logger"
	"timeline/internal/pkg/metrics"
	"timeline/internal/pkg/ratelimit"
	"timeline/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const anonymousIdentity = "anonymous"

// RateLimit wraps a single operation with a fixed-window budget. Rejected
// calls never reach the handler. A failing limiter backend lets the call
// through.
func RateLimit(limiter ratelimit.Limiter, policy ratelimit.Policy, log *zap.Logger) gin.HandlerFunc {
	p := policy.WithDefaults()
	log = logger.OrNop(log)

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		key := limiterKey(c, p)

		allowed, err := limiter.Allow(ctx, key, p.MaxRequests, p.Window)
		if err != nil {
			log.Warn("rate limiter unavailable, allowing request",
				zap.String("operation", p.Operation),
				zap.Error(err),
			)
			c.Next()
			return
		}

		if !allowed {
			retryAfter, _ := limiter.ResetSeconds(ctx, key, p.Window)
			exceeded := &ratelimit.ExceededError{Message: p.Message, RetryAfter: retryAfter}

			metrics.RateLimitRejections.WithLabelValues(p.Operation, string(p.Scope)).Inc()
			log.Info("rate limit exceeded",
				zap.String("operation", p.Operation),
				zap.String("key", key),
				zap.Int64("retry_after", retryAfter),
			)

			_ = c.Error(exceeded)
			response.TooManyRequests(c, exceeded.Error(), exceeded.RetryAfter)
			c.Abort()
			return
		}

		// headers must be written before the handler flushes the body
		setRateLimitHeaders(c, limiter, key, p)
		c.Next()
	}
}

func setRateLimitHeaders(c *gin.Context, limiter ratelimit.Limiter, key string, p ratelimit.Policy) {
	ctx := c.Request.Context()
	h := c.Writer.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(p.MaxRequests))
	if remaining, err := limiter.Remaining(ctx, key, p.MaxRequests, p.Window); err == nil {
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	}
	if reset, err := limiter.ResetSeconds(ctx, key, p.Window); err == nil {
		h.Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))
	}
}

func limiterKey(c *gin.Context, p ratelimit.Policy) string {
	switch p.Scope {
	case ratelimit.ScopeUser:
		identity := anonymousIdentity
		if u, ok := CurrentUser(c); ok {
			identity = u.Subject()
		}
		return "ratelimit:user:" + identity + ":" + p.Operation
	case ratelimit.ScopeGlobal:
		return "ratelimit:global:" + p.Operation
	default:
		return "ratelimit:ip:" + ClientIP(c.Request) + ":" + p.Operation
	}
}

// ClientIP prefers the first X-Forwarded-For entry, then X-Real-IP, then
// the peer address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
