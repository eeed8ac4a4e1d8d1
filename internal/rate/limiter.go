package rate

import (
	"context"
	"sync"
	"time"
)

// Limiter counts hits per key in fixed windows. Allow reports whether one
// more hit fits and how long until the key's window resets.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration)
}

// Key builds the limiter key for action performed by a client address,
// e.g. "login:ip:203.0.113.9".
func Key(action, clientIP string) string {
	return action + ":ip:" + clientIP
}

// pruneThreshold is how many tracked keys trigger a sweep of closed windows.
const pruneThreshold = 4096

// MemoryLimiter keeps windows in process memory. Counts are lost on restart
// and are not shared between instances; use RedisLimiter for that.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

type window struct {
	hits    int
	resetAt time.Time
	span    time.Duration
}

func NewMemory() *MemoryLimiter {
	return &MemoryLimiter{windows: make(map[string]*window), now: time.Now}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string, limit int, span time.Duration) (bool, time.Duration) {
	if limit <= 0 {
		return true, 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w, ok := m.windows[key]
	if !ok || !now.Before(w.resetAt) || w.span != span {
		if !ok && len(m.windows) >= pruneThreshold {
			m.prune(now)
		}
		w = &window{resetAt: now.Add(span), span: span}
		m.windows[key] = w
	}

	retry := w.resetAt.Sub(now)
	if w.hits >= limit {
		return false, retry
	}
	w.hits++
	return true, retry
}

// Len returns the number of keys currently tracked.
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}

// prune drops windows that have closed. Callers hold m.mu.
func (m *MemoryLimiter) prune(now time.Time) {
	for key, w := range m.windows {
		if !now.Before(w.resetAt) {
			delete(m.windows, key)
		}
	}
}
