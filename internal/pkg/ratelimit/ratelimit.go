package ratelimit

import (
	"context"
	"fmt"
	"time"
)

type Scope string

const (
	ScopeIP     Scope = "ip"
	ScopeUser   Scope = "user"
	ScopeGlobal Scope = "global"
)

const (
	DefaultMaxRequests = 10
	DefaultWindow      = time.Minute
	DefaultMessage     = "Too many requests. Please try again later."
)

func (s Scope) Valid() bool {
	return s == ScopeIP || s == ScopeUser || s == ScopeGlobal
}

// Policy describes the budget for one rate-limited operation.
type Policy struct {
	Operation   string
	MaxRequests int
	Window      time.Duration
	Scope       Scope
	Message     string
}

func (p Policy) WithDefaults() Policy {
	if p.MaxRequests <= 0 {
		p.MaxRequests = DefaultMaxRequests
	}
	if p.Window <= 0 {
		p.Window = DefaultWindow
	}
	if !p.Scope.Valid() {
		p.Scope = ScopeIP
	}
	if p.Message == "" {
		p.Message = DefaultMessage
	}
	return p
}

// Limiter is a fixed-window request counter.
type Limiter interface {
	// Allow counts one request against key and reports whether it fits the budget.
	Allow(ctx context.Context, key string, maxRequests int, window time.Duration) (bool, error)
	Remaining(ctx context.Context, key string, maxRequests int, window time.Duration) (int, error)
	// ResetSeconds is the time left in the key's current window, in whole seconds.
	ResetSeconds(ctx context.Context, key string, window time.Duration) (int64, error)
	Reset(ctx context.Context, key string) error
}

type ExceededError struct {
	Message    string
	RetryAfter int64
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("%s Try again in %d seconds.", e.Message, e.RetryAfter)
}
