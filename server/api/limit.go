package api

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter hands out one token bucket per owner.
type Limiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

// NewLimiter allows perMinute requests per owner with a burst of the same
// size. A non-positive perMinute returns nil, which allows everything.
func NewLimiter(perMinute int) *Limiter {
	if perMinute <= 0 {
		return nil
	}
	return &Limiter{
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether owner may make another request now.
func (l *Limiter) Allow(owner string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	lim, ok := l.limiters[owner]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[owner] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
