package common

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per key: a key may spend limit events
// at once and earns them back at limit per window.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	every    rate.Limit
	burst    int
}

// NewRateLimiter returns nil when limit is not positive; a nil limiter allows
// everything.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		every:    rate.Every(window / time.Duration(limit)),
		burst:    limit,
	}
}

// Reservation is one admitted event. Cancel hands it back to the bucket.
type Reservation struct {
	r *rate.Reservation
}

// Cancel returns the event to its key, e.g. when the work it admitted
// turned out to be a no-op.
func (res *Reservation) Cancel(now time.Time) {
	if res == nil || res.r == nil {
		return
	}
	res.r.CancelAt(now)
}

// Reserve admits one event for key at now. It returns nil when key is over
// its limit, and nothing is consumed then.
func (r *RateLimiter) Reserve(key string, now time.Time) *Reservation {
	if r == nil {
		return &Reservation{}
	}
	res := r.limiter(key).ReserveN(now, 1)
	if !res.OK() {
		return nil
	}
	if res.DelayFrom(now) > 0 {
		res.CancelAt(now)
		return nil
	}
	return &Reservation{r: res}
}

// Allow reports whether an event for key at now should be permitted, and
// records it if so.
func (r *RateLimiter) Allow(key string, now time.Time) bool {
	if r == nil {
		return true
	}
	return r.limiter(key).AllowN(now, 1)
}

// Prune drops the buckets that have refilled completely by now; a fresh
// bucket behaves the same.
func (r *RateLimiter) Prune(now time.Time) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, lim := range r.limiters {
		if lim.TokensAt(now) >= float64(r.burst) {
			delete(r.limiters, key)
		}
	}
}

func (r *RateLimiter) limiter(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	lim, ok := r.limiters[key]
	if !ok {
		lim = rate.NewLimiter(r.every, r.burst)
		r.limiters[key] = lim
	}
	return lim
}
