package domain

import (
	"context"
	"time"
)

// Key prefixes of the public rate limit rules.
const (
	RateLimitPrefixLogin = "auth_login"
	RateLimitPrefixRsvp  = "rsvp_respond"
)

// RateLimitRule is a fixed-window limit applied under a key prefix.
type RateLimitRule struct {
	Prefix      string
	MaxRequests int
	Window      time.Duration
}

// RateLimitCounter is the stored window for one (prefix, identifier) key.
type RateLimitCounter struct {
	Key         string
	WindowStart time.Time
	Count       int
}

// RateLimitDecision is the limiter verdict for one request.
type RateLimitDecision struct {
	Allowed bool
	// RetryAfter is the time until the window resets. Zero when allowed.
	RetryAfter time.Duration
}

// RateLimitStore persists fixed-window counters.
// Hit records one request against key at now: the window restarts with count 1 when it is
// missing or expired, otherwise the count is incremented only while below max.
// It returns the counter as it stands after the hit and whether the request was counted.
type RateLimitStore interface {
	Hit(ctx context.Context, key string, now time.Time, window time.Duration, max int) (RateLimitCounter, bool, error)
}

// RateLimiter decides whether a guarded request may proceed.
type RateLimiter interface {
	Check(ctx context.Context, rule RateLimitRule, identifier string) RateLimitDecision
}
