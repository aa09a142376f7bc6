package rate

import (
	"context"
	"strings"
	"time"
)

// Policy is the attempt budget of one limiter.
type Policy struct {
	MaxAttempts int
	Window      time.Duration
}

// Limiter enforces one Policy over a key namespace.
type Limiter struct {
	counter Counter
	prefix  string
	policy  Policy
}

// New creates a Limiter whose keys start with prefix.
func New(counter Counter, prefix string, policy Policy) *Limiter {
	return &Limiter{counter: counter, prefix: prefix, policy: policy}
}

// Policy returns the configured budget.
func (l *Limiter) Policy() Policy { return l.policy }

func (l *Limiter) key(id string) string { return l.prefix + id }

// Check returns a *LimitError when the budget for id is already used up.
// It does not consume an attempt.
func (l *Limiter) Check(ctx context.Context, id string) error {
	if l.policy.MaxAttempts <= 0 {
		return nil
	}
	count, ttl, err := l.counter.Get(ctx, l.key(id))
	if err != nil {
		return err
	}
	if count >= int64(l.policy.MaxAttempts) {
		return &LimitError{RetryAfter: ttl}
	}
	return nil
}

// Fail records a failed attempt. It returns the new count and, when this
// attempt exhausted the budget, a *LimitError.
func (l *Limiter) Fail(ctx context.Context, id string) (int64, error) {
	if l.policy.MaxAttempts <= 0 {
		return 0, nil
	}
	count, ttl, err := l.counter.Incr(ctx, l.key(id), l.policy.Window)
	if err != nil {
		return 0, err
	}
	if count >= int64(l.policy.MaxAttempts) {
		return count, &LimitError{RetryAfter: ttl}
	}
	return count, nil
}

// Take consumes one attempt and rejects it when it goes over budget. Used
// for actions that count every attempt, successful or not.
func (l *Limiter) Take(ctx context.Context, id string) error {
	if l.policy.MaxAttempts <= 0 {
		return nil
	}
	count, ttl, err := l.counter.Incr(ctx, l.key(id), l.policy.Window)
	if err != nil {
		return err
	}
	if count > int64(l.policy.MaxAttempts) {
		return &LimitError{RetryAfter: ttl}
	}
	return nil
}

// Reset clears the counter for id.
func (l *Limiter) Reset(ctx context.Context, id string) error {
	return l.counter.Reset(ctx, l.key(id))
}

// LoginKey builds the ip:email identity used by the login limiter.
func LoginKey(ip, email string) string {
	return ip + ":" + strings.ToLower(strings.TrimSpace(email))
}
