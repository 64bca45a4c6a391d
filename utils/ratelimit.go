package utils

import (
	"context"
	"sync"
	"time"
)

// Policy is a per-caller rate limit: at most MaxRequests within Window.
type Policy struct {
	Name        string
	MaxRequests int
	Window      time.Duration
}

// Key namespaces the client key by policy so callers do not share counters.
func (p Policy) Key(client string) string {
	return p.Name + ":" + client
}

// Policies groups the limits applied by the HTTP handlers.
type Policies struct {
	Contact       Policy
	Login         Policy
	Register      Policy
	PasswordReset Policy
}

func DefaultPolicies() Policies {
	return Policies{
		Contact:       Policy{Name: "contact", MaxRequests: 5, Window: time.Minute},
		Login:         Policy{Name: "login", MaxRequests: 3, Window: time.Minute},
		Register:      Policy{Name: "register", MaxRequests: 2, Window: time.Minute},
		PasswordReset: Policy{Name: "password_reset", MaxRequests: 3, Window: time.Minute},
	}
}

// PolicyLimits holds per-policy request caps. Zero keeps the current value.
type PolicyLimits struct {
	Contact       int
	Login         int
	Register      int
	PasswordReset int
}

// With returns a copy of ps with the given caps and, when positive, window applied.
func (ps Policies) With(limits PolicyLimits, window time.Duration) Policies {
	apply := func(p *Policy, max int) {
		if max > 0 {
			p.MaxRequests = max
		}
		if window > 0 {
			p.Window = window
		}
	}
	apply(&ps.Contact, limits.Contact)
	apply(&ps.Login, limits.Login)
	apply(&ps.Register, limits.Register)
	apply(&ps.PasswordReset, limits.PasswordReset)
	return ps
}

// RateLimiter decides whether a client has exceeded a policy. A call that is
// allowed is also recorded.
type RateLimiter interface {
	Limited(ctx context.Context, client string, p Policy) (bool, error)
}

type rateWindow struct {
	count  int
	start  time.Time
	window time.Duration
}

// MemoryLimiter is a fixed window counter per key held in process memory.
// Stale windows are purged on every call.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*rateWindow
	now     func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]*rateWindow),
		now:     time.Now,
	}
}

// WithClock replaces the time source, used by tests.
func (l *MemoryLimiter) WithClock(now func() time.Time) *MemoryLimiter {
	l.now = now
	return l
}

func (l *MemoryLimiter) Limited(_ context.Context, client string, p Policy) (bool, error) {
	return l.CheckAndRecord(p.Key(client), p.MaxRequests, p.Window), nil
}

// CheckAndRecord returns true when key is over its limit. Denied calls are not counted.
func (l *MemoryLimiter) CheckAndRecord(key string, maxRequests int, window time.Duration) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for k, w := range l.windows {
		if now.Sub(w.start) > w.window {
			delete(l.windows, k)
		}
	}

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) > window {
		l.windows[key] = &rateWindow{count: 1, start: now, window: window}
		return false
	}
	w.window = window

	if w.count >= maxRequests {
		return true
	}
	w.count++
	return false
}

// Len reports how many windows are currently tracked.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
