package postgres

import (
	"context"
	"database/sql"
	"time"

	"guestlist/internal/domain"
)

type rateLimitRepository struct {
	DB *sql.DB
}

// NewRateLimitRepository returns a domain.RateLimitStore backed by the rate_limits table.
func NewRateLimitRepository(db *sql.DB) domain.RateLimitStore {
	return &rateLimitRepository{DB: db}
}

// Hit resolves the window in one UPSERT. The stored count saturates at max+1, so a returned
// count above max means the request was rejected.
func (r *rateLimitRepository) Hit(ctx context.Context, key string, now time.Time, window time.Duration, max int) (domain.RateLimitCounter, bool, error) {
	query := `
		INSERT INTO rate_limits (key, window_start, count)
		VALUES ($1, $2, 1)
		ON CONFLICT (key) DO UPDATE SET
			window_start = CASE WHEN $2 - rate_limits.window_start >= $3 THEN $2 ELSE rate_limits.window_start END,
			count = CASE
				WHEN $2 - rate_limits.window_start >= $3 THEN 1
				WHEN rate_limits.count >= $4 THEN $4 + 1
				ELSE rate_limits.count + 1
			END
		RETURNING window_start, count
	`
	var windowStart int64
	var count int
	err := r.DB.QueryRowContext(ctx, query, key, now.Unix(), int64(window/time.Second), max).Scan(&windowStart, &count)
	if err != nil {
		return domain.RateLimitCounter{}, false, err
	}
	counter := domain.RateLimitCounter{Key: key, WindowStart: time.Unix(windowStart, 0), Count: count}
	return counter, count <= max, nil
}
