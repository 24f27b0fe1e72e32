package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	h "guestlist/internal/delivery/http/helpers"
	"guestlist/internal/domain"
)

// KeyFunc derives the rate limit identifier for a request.
type KeyFunc func(r *http.Request) string

// ClientIP returns a KeyFunc keyed on the client address. Client-supplied headers are read only
// when trustProxy is true, that is behind a proxy that overwrites them: keyHeader, when set and
// present, wins, then the first X-Forwarded-For hop.
func ClientIP(keyHeader string, trustProxy bool) KeyFunc {
	return func(r *http.Request) string {
		if trustProxy {
			if keyHeader != "" {
				if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
					return v
				}
			}
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}
		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

// RateLimit guards next with rule. Rejected requests get 429 and a Retry-After header in
// whole seconds, rounded up.
func RateLimit(limiter domain.RateLimiter, rule domain.RateLimitRule, keyFn KeyFunc) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			dec := limiter.Check(r.Context(), rule, keyFn(r))
			if !dec.Allowed {
				secs := int(math.Ceil(dec.RetryAfter.Seconds()))
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				h.WriteJSONError(w, http.StatusTooManyRequests, h.ErrCodeTooManyRequests, "too many requests, try again later")
				return
			}
			next(w, r)
		}
	}
}
