package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a per-key token bucket. A perMinute of zero or less disables it.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func NewRateLimiter(perMinute int) *RateLimiter {
	rl := &RateLimiter{limiters: make(map[string]*rate.Limiter), limit: rate.Inf}
	if perMinute > 0 {
		rl.limit = rate.Every(time.Minute / time.Duration(perMinute))
		rl.burst = perMinute
	}
	return rl
}

// Allow reports whether a request for key may proceed, and when not, how long
// until the next token.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	if rl == nil || rl.limit == rate.Inf {
		return true, 0
	}
	res := rl.bucket(key).Reserve()
	if delay := res.Delay(); delay > 0 {
		res.Cancel()
		return false, delay
	}
	return true, 0
}

// Exhausted reports whether key has no token left, without consuming one.
func (rl *RateLimiter) Exhausted(key string) (bool, time.Duration) {
	if rl == nil || rl.limit == rate.Inf {
		return false, 0
	}
	tokens := rl.bucket(key).Tokens()
	if tokens >= 1 {
		return false, 0
	}
	return true, time.Duration((1 - tokens) / float64(rl.limit) * float64(time.Second))
}

func (rl *RateLimiter) bucket(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	lim, ok := rl.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rl.limit, rl.burst)
		rl.limiters[key] = lim
	}
	return lim
}

// Reset forgets key's bucket.
func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.limiters, key)
}
