// Package ratelimit provides per-venue token-bucket rate limiting for
// outbound venue traffic: order submission, book pulls, and reconnects.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter maintains one token bucket per venue.
type Limiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
}

// NewLimiter creates a limiter with the given per-venue rate and burst.
func NewLimiter(rps float64, burst int) *Limiter {
	if rps <= 0 {
		rps = 1
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
	}
}

func (l *Limiter) limiter(venueID string) *rate.Limiter {
	l.mu.RLock()
	limiter, ok := l.limiters[venueID]
	l.mu.RUnlock()
	if ok {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, ok := l.limiters[venueID]; ok {
		return limiter
	}
	limiter = rate.NewLimiter(rate.Limit(l.rps), l.burst)
	l.limiters[venueID] = limiter
	return limiter
}

// Allow reports whether a request to the venue may proceed now.
func (l *Limiter) Allow(venueID string) bool {
	return l.limiter(venueID).Allow()
}

// Wait blocks until a request to the venue is allowed or ctx is cancelled.
func (l *Limiter) Wait(ctx context.Context, venueID string) error {
	return l.limiter(venueID).Wait(ctx)
}
