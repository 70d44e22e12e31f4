package skill

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter enforces a per-address proof request budget for
// generate_proof (spec.md section 4.3, Open Question (b) resolved as
// "rate limit by submitted address"). Built on golang.org/x/time/rate,
// the extended-standard-library token-bucket limiter.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// NewRateLimiter builds a limiter allowing burst immediate requests
// per address, refilling at perSecond tokens/second thereafter.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(perSecond),
		burst:    burst,
	}
}

// Allow reports whether address may proceed now, and if not, how many
// seconds until it may retry.
func (r *RateLimiter) Allow(address string) (bool, int) {
	r.mu.Lock()
	limiter, ok := r.limiters[address]
	if !ok {
		limiter = rate.NewLimiter(r.rate, r.burst)
		r.limiters[address] = limiter
	}
	r.mu.Unlock()

	reservation := limiter.Reserve()
	if !reservation.OK() {
		return false, 0
	}
	delay := reservation.Delay()
	if delay <= 0 {
		return true, 0
	}
	reservation.Cancel()
	return false, int(delay.Seconds()) + 1
}
