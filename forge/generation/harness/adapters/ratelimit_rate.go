package adapters

import (
	"context"
	"fmt"
	"sync"

	ports "github.com/ZanzyTHEbar/agentforge/forge/generation/harness/ports"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per key. Acquire waits for a token instead
// of failing fast, so a throttled turn stalls until ctx expires.
type RateLimiter struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	rps   float64
	burst int
}

// NewRateLimiter creates a keyed limiter allowing rps calls per second with the given burst.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if rps <= 0 {
		rps = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{m: make(map[string]*rate.Limiter), rps: rps, burst: burst}
}

func (l *RateLimiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.m[key]; ok {
		return lim
	}
	lim := rate.NewLimiter(rate.Limit(l.rps), l.burst)
	l.m[key] = lim
	return lim
}

// Acquire blocks until key has a free token.
func (l *RateLimiter) Acquire(ctx context.Context, key string) (func(), error) {
	if err := l.get(key).Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrRateLimited, err)
	}
	return func() {}, nil
}

// Allow reports whether a call for key may proceed right now, consuming a token if so.
func (l *RateLimiter) Allow(key string) bool {
	return l.get(key).Allow()
}

var _ ports.RateLimiter = (*RateLimiter)(nil)
