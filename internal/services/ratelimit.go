package services

import (
	"context"
	"log/slog"
	"time"

	"guestlist/internal/domain"
)

type rateLimiter struct {
	store  domain.RateLimitStore
	logger *slog.Logger
	now    func() time.Time
}

// NewRateLimiter returns a fixed-window RateLimiter over store. Storage errors allow the request.
func NewRateLimiter(store domain.RateLimitStore, logger *slog.Logger) domain.RateLimiter {
	return &rateLimiter{store: store, logger: logger, now: time.Now}
}

func rateLimitKey(prefix, identifier string) string {
	return prefix + ":" + identifier
}

func (l *rateLimiter) Check(ctx context.Context, rule domain.RateLimitRule, identifier string) domain.RateLimitDecision {
	if rule.MaxRequests <= 0 || rule.Window <= 0 {
		return domain.RateLimitDecision{Allowed: true}
	}
	now := l.now()
	key := rateLimitKey(rule.Prefix, identifier)
	counter, admitted, err := l.store.Hit(ctx, key, now, rule.Window, rule.MaxRequests)
	if err != nil {
		l.logger.WarnContext(ctx, "rate limit check failed, allowing request", "key", key, "err", err)
		return domain.RateLimitDecision{Allowed: true}
	}
	if admitted {
		return domain.RateLimitDecision{Allowed: true}
	}
	retryAfter := counter.WindowStart.Add(rule.Window).Sub(now)
	if retryAfter < time.Second {
		retryAfter = time.Second
	}
	return domain.RateLimitDecision{Allowed: false, RetryAfter: retryAfter}
}
