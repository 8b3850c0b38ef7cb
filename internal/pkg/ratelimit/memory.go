package ratelimit

import (
	"context"
	"sync/atomic"
	"time"

	"timeline/internal/pkg/shardmap"
)

// DefaultSweepThreshold is the number of tracked keys above which stale
// windows are swept.
const DefaultSweepThreshold = 10000

type window struct {
	start time.Time
	count int
	// dur is the policy window the key was last counted under.
	dur time.Duration
}

type MemoryLimiter struct {
	counters       *shardmap.Map[window]
	now            func() time.Time
	sweepThreshold int
	sweeping       atomic.Bool
}

type Option func(*MemoryLimiter)

func WithClock(now func() time.Time) Option {
	return func(l *MemoryLimiter) { l.now = now }
}

func WithSweepThreshold(n int) Option {
	return func(l *MemoryLimiter) { l.sweepThreshold = n }
}

func NewMemoryLimiter(opts ...Option) *MemoryLimiter {
	l := &MemoryLimiter{
		counters:       shardmap.New[window](),
		now:            time.Now,
		sweepThreshold: DefaultSweepThreshold,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, maxRequests int, win time.Duration) (bool, error) {
	now := l.now()
	w := l.counters.Compute(key, func(old window, ok bool) window {
		if !ok || now.Sub(old.start) > win {
			return window{start: now, count: 1, dur: win}
		}
		old.count++
		old.dur = win
		return old
	})

	l.maybeSweep(now)

	return w.count <= maxRequests, nil
}

func (l *MemoryLimiter) Remaining(_ context.Context, key string, maxRequests int, win time.Duration) (int, error) {
	w, ok := l.counters.Load(key)
	if !ok || l.now().Sub(w.start) > win {
		return maxRequests, nil
	}
	return max(0, maxRequests-w.count), nil
}

func (l *MemoryLimiter) ResetSeconds(_ context.Context, key string, win time.Duration) (int64, error) {
	w, ok := l.counters.Load(key)
	if !ok {
		return 0, nil
	}
	left := win - l.now().Sub(w.start)
	if left <= 0 {
		return 0, nil
	}
	return int64(left / time.Second), nil
}

func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	l.counters.Delete(key)
	return nil
}

func (l *MemoryLimiter) Len() int { return l.counters.Len() }

// maybeSweep drops windows staler than twice their own duration once the
// map grows past the threshold. Only one caller sweeps at a time.
func (l *MemoryLimiter) maybeSweep(now time.Time) {
	if l.counters.Len() <= l.sweepThreshold {
		return
	}
	if !l.sweeping.CompareAndSwap(false, true) {
		return
	}
	defer l.sweeping.Store(false)

	l.counters.DeleteIf(func(_ string, w window) bool {
		return now.Sub(w.start) > 2*w.dur
	})
}
