package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/lifeplan-navigator/authcore"
)

type ipLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter is a token bucket per client IP. It is a coarse flood guard
// in front of the engine's own login, registration and MFA windows.
type RateLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*ipLimiter
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
	now      func() time.Time
}

// NewRateLimiter allows perSecond requests per IP with the given burst.
// Buckets unused for idleTTL are dropped by Cleanup.
func NewRateLimiter(perSecond float64, burst int, idleTTL time.Duration) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &RateLimiter{
		limiters: make(map[string]*ipLimiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		idleTTL:  idleTTL,
		now:      time.Now,
	}
}

func (rl *RateLimiter) get(ip string) *rate.Limiter {
	now := rl.now()

	rl.mu.RLock()
	entry, ok := rl.limiters[ip]
	rl.mu.RUnlock()
	if ok {
		rl.mu.Lock()
		entry.lastAccess = now
		rl.mu.Unlock()
		return entry.limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if entry, ok := rl.limiters[ip]; ok {
		entry.lastAccess = now
		return entry.limiter
	}
	entry = &ipLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst), lastAccess: now}
	rl.limiters[ip] = entry
	return entry.limiter
}

// Reserve takes one token for ip. It returns zero when the request may
// proceed, otherwise how long the caller should wait.
func (rl *RateLimiter) Reserve(ip string) time.Duration {
	now := rl.now()
	r := rl.get(ip).ReserveN(now, 1)
	if !r.OK() {
		return time.Second
	}
	delay := r.DelayFrom(now)
	if delay > 0 {
		r.CancelAt(now)
	}
	return delay
}

// Cleanup drops buckets idle for longer than the TTL.
func (rl *RateLimiter) Cleanup() int {
	cutoff := rl.now().Add(-rl.idleTTL)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	removed := 0
	for ip, entry := range rl.limiters {
		if entry.lastAccess.Before(cutoff) {
			delete(rl.limiters, ip)
			removed++
		}
	}
	return removed
}

// Run calls Cleanup every interval until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Cleanup()
		}
	}
}

// Len reports the number of tracked IPs.
func (rl *RateLimiter) Len() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.limiters)
}

// RateLimit rejects over-limit requests with 429 and Retry-After. It keys
// on the IP set by ClientInfo and must run after it.
func RateLimit(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := authcore.ClientIP(r.Context())
			if ip == "" {
				ip = remoteIP(r.RemoteAddr)
			}
			if wait := rl.Reserve(ip); wait > 0 {
				WriteError(w, &authcore.RateLimitError{RetryAfter: wait})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
