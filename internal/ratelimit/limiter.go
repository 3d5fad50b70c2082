// Package ratelimit enforces a sliding-window cap on assistant invocations
// and detects rate limit signals in assistant output.
package ratelimit

import (
	"sync"
	"time"

	"github.com/lintmend/lintmend/internal/fault"
)

// Limiter is a sliding-window call limiter. It admits at most limit calls
// per window; older calls age out as the window slides. Safe for concurrent use.
type Limiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	calls  []time.Time

	// nowFn allows test time injection.
	nowFn func() time.Time
}

// NewLimiter creates a Limiter admitting limit calls per window.
func NewLimiter(limit int, window time.Duration) *Limiter {
	if limit < 1 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		limit:  limit,
		window: window,
		nowFn:  time.Now,
	}
}

// now returns the current time, using the injectable nowFn.
func (l *Limiter) now() time.Time {
	if l.nowFn != nil {
		return l.nowFn()
	}
	return time.Now()
}

// CheckAndRecord reports whether a call is admitted right now. When it is,
// the call is recorded against the window in the same step, so a true result
// always consumes a slot.
func (l *Limiter) CheckAndRecord() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)

	if len(l.calls) >= l.limit {
		return false
	}
	l.calls = append(l.calls, now)
	return true
}

// Acquire is CheckAndRecord with a typed refusal: on a full window it returns
// a RateLimitError carrying the wait until the oldest call ages out.
func (l *Limiter) Acquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)

	if len(l.calls) >= l.limit {
		return &fault.RateLimitError{
			Limit:      l.limit,
			Window:     l.window,
			RetryAfter: l.retryAfterLocked(now),
		}
	}
	l.calls = append(l.calls, now)
	return nil
}

// RetryAfter returns how long until a slot frees. Zero means a call would
// be admitted immediately.
func (l *Limiter) RetryAfter() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)
	if len(l.calls) < l.limit {
		return 0
	}
	return l.retryAfterLocked(now)
}

// retryAfterLocked computes the wait until the oldest recorded call leaves
// the window. Caller must hold l.mu and have pruned first.
func (l *Limiter) retryAfterLocked(now time.Time) time.Duration {
	if len(l.calls) == 0 {
		return 0
	}
	wait := l.calls[0].Add(l.window).Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

// InWindow returns the number of calls currently counted against the window.
func (l *Limiter) InWindow() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneLocked(l.now())
	return len(l.calls)
}

// Limit returns the configured call ceiling.
func (l *Limiter) Limit() int {
	return l.limit
}

// Window returns the configured window duration.
func (l *Limiter) Window() time.Duration {
	return l.window
}

// Prune drops expired entries. The resource guard calls this on its sweep
// so the window does not hold stale timestamps between bursts.
func (l *Limiter) Prune() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneLocked(l.now())
}

// pruneLocked removes calls older than the window. Caller must hold l.mu.
func (l *Limiter) pruneLocked(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.calls) && !l.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.calls = append(l.calls[:0], l.calls[i:]...)
	}
}

// Reset clears all recorded calls.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls = l.calls[:0]
}
