// Package redis holds Redis-backed stores.
package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"guestlist/internal/domain"
)

// hitScript applies one fixed-window hit atomically.
// KEYS[1] = counter hash; ARGV = now (epoch s), window (s), max.
// Returns {window_start, count, admitted}.
var hitScript = goredis.NewScript(`
local v = redis.call('HMGET', KEYS[1], 'window_start', 'count')
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
local start = tonumber(v[1])
local count = tonumber(v[2])
if (not start) or (now - start >= window) then
	redis.call('HSET', KEYS[1], 'window_start', now, 'count', 1)
	redis.call('EXPIRE', KEYS[1], window)
	return {now, 1, 1}
end
if count >= max then
	return {start, count, 0}
end
count = redis.call('HINCRBY', KEYS[1], 'count', 1)
return {start, count, 1}
`)

// RateLimitStore is a domain.RateLimitStore on Redis hashes. Keys expire with their window.
type RateLimitStore struct {
	rdb    goredis.Scripter
	prefix string
}

type RateLimitOption func(*RateLimitStore)

// WithKeyPrefix namespaces every counter key.
func WithKeyPrefix(prefix string) RateLimitOption {
	return func(s *RateLimitStore) { s.prefix = strings.Trim(prefix, ":") }
}

func NewRateLimitStore(rdb goredis.Scripter, opts ...RateLimitOption) *RateLimitStore {
	s := &RateLimitStore{
		rdb:    rdb,
		prefix: "guestlist:ratelimit",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RateLimitStore) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

// Hit implements domain.RateLimitStore.
func (s *RateLimitStore) Hit(ctx context.Context, key string, now time.Time, window time.Duration, max int) (domain.RateLimitCounter, bool, error) {
	windowSecs := int64(window / time.Second)
	if windowSecs < 1 {
		windowSecs = 1
	}
	res, err := hitScript.Run(ctx, s.rdb, []string{s.key(key)}, now.Unix(), windowSecs, max).Int64Slice()
	if err != nil {
		return domain.RateLimitCounter{}, false, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 3 {
		return domain.RateLimitCounter{}, false, fmt.Errorf("rate limit script: unexpected reply %v", res)
	}
	counter := domain.RateLimitCounter{
		Key:         key,
		WindowStart: time.Unix(res[0], 0),
		Count:       int(res[1]),
	}
	return counter, res[2] == 1, nil
}

var _ domain.RateLimitStore = (*RateLimitStore)(nil)
