// Package ratelimit implements the per-key fixed-window request gate in front
// of the detection pipeline.
package ratelimit

import (
	"sync"
	"time"
)

// sweepThreshold is the map size past which Allow opportunistically drops
// windows that have been idle for at least two window lengths.
const sweepThreshold = 1024

type window struct {
	start time.Time
	count int
}

// FixedWindowLimiter allows up to Max requests per key within each
// wall-clock window. The window is fixed, not sliding: up to 2*Max-1
// requests can land across a window boundary. That simplification is
// deliberate and relied on by callers budgeting per-minute quotas.
type FixedWindowLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	max     int
	window  time.Duration
	now     func() time.Time // test hook
}

// NewFixedWindowLimiter builds a limiter allowing max requests per window.
func NewFixedWindowLimiter(max int, windowLen time.Duration) *FixedWindowLimiter {
	if max <= 0 {
		max = 1
	}
	if windowLen <= 0 {
		windowLen = time.Minute
	}
	return &FixedWindowLimiter{
		windows: make(map[string]*window),
		max:     max,
		window:  windowLen,
		now:     time.Now,
	}
}

// Allow consumes one slot for key. When denied, retryAfter is the positive
// duration until the current window resets.
func (l *FixedWindowLimiter) Allow(key string) (allowed bool, retryAfter time.Duration) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.windows) > sweepThreshold {
		l.sweepLocked(now)
	}

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.window {
		l.windows[key] = &window{start: now, count: 1}
		return true, 0
	}
	if w.count < l.max {
		w.count++
		return true, 0
	}
	retryAfter = w.start.Add(l.window).Sub(now)
	if retryAfter <= 0 {
		retryAfter = time.Millisecond
	}
	return false, retryAfter
}

// Remaining reports the unused slots for key in its current window.
func (l *FixedWindowLimiter) Remaining(key string) int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.window {
		return l.max
	}
	if w.count >= l.max {
		return 0
	}
	return l.max - w.count
}

// Reset forgets the window for key.
func (l *FixedWindowLimiter) Reset(key string) {
	l.mu.Lock()
	delete(l.windows, key)
	l.mu.Unlock()
}

func (l *FixedWindowLimiter) sweepLocked(now time.Time) {
	for k, w := range l.windows {
		if now.Sub(w.start) >= 2*l.window {
			delete(l.windows, k)
		}
	}
}
