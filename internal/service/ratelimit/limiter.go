package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// sweepAt bounds the key map; past it, Allow drops keys idle for sweepIdle.
const (
	sweepAt   = 10000
	sweepIdle = 10 * time.Minute
)

type entry struct {
	lim  *rate.Limiter
	last time.Time
}

// Limiter is a keyed token bucket. Every key shares one capacity and refill rate.
type Limiter struct {
	mu    sync.Mutex
	m     map[string]*entry
	burst int
	limit rate.Limit
	now   func() time.Time
}

func New(capacity, refillPerSec float64) *Limiter {
	if capacity < 1 {
		capacity = 1
	}
	if refillPerSec < 0 {
		refillPerSec = 0
	}
	return &Limiter{
		m:     make(map[string]*entry),
		burst: int(capacity),
		limit: rate.Limit(refillPerSec),
		now:   time.Now,
	}
}

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	e, ok := l.m[key]
	if !ok {
		if len(l.m) >= sweepAt {
			l.sweepLocked(now.Add(-sweepIdle))
		}
		e = &entry{lim: rate.NewLimiter(l.limit, l.burst)}
		l.m[key] = e
	}
	e.last = now
	l.mu.Unlock()
	return e.lim.AllowN(now, 1)
}

// Sweep drops keys idle for longer than idle; a dropped key restarts full.
func (l *Limiter) Sweep(idle time.Duration) int {
	cutoff := l.now().Add(-idle)
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sweepLocked(cutoff)
}

func (l *Limiter) sweepLocked(cutoff time.Time) int {
	n := 0
	for k, e := range l.m {
		if e.last.Before(cutoff) {
			delete(l.m, k)
			n++
		}
	}
	return n
}
