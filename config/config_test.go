package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_defaults(t *testing.T) {
	t.Setenv("GO_ENV", "production")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 5, cfg.Dispatch.DirectSendThreshold)
	assert.Equal(t, 20, cfg.Dispatch.BatchSize)
	assert.Equal(t, 5*time.Minute, cfg.Dispatch.Interval)
	assert.Equal(t, 600*time.Millisecond, cfg.Dispatch.SendDelay)
	assert.Equal(t, 3, cfg.Dispatch.MaxRetries)
	assert.Equal(t, time.Second, cfg.Dispatch.BaseBackoff)
	assert.Equal(t, 15*time.Minute, cfg.Dispatch.ClaimLease)
	assert.Equal(t, "postgres", cfg.RateLimit.Backend)
	assert.Equal(t, 10, cfg.RateLimit.LoginMax)
	assert.Equal(t, time.Hour, cfg.RateLimit.LoginWindow)
	assert.Equal(t, 30, cfg.RateLimit.RsvpMax)
	assert.Equal(t, "noop", cfg.Mail.Provider)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
}

func TestLoad_overrides(t *testing.T) {
	t.Setenv("GO_ENV", "production")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DISPATCH_INTERVAL", "0")
	t.Setenv("DIRECT_SEND_THRESHOLD", "10")
	t.Setenv("RATE_LIMIT_BACKEND", "Redis")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("PUBLIC_BASE_URL", "https://rsvp.example/")
	t.Setenv("SES_INSECURE_SKIP_VERIFY", "true")
	t.Setenv("RATE_LIMIT_KEY_HEADER", "X-Client-Key")
	t.Setenv("RATE_LIMIT_TRUST_PROXY", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Zero(t, cfg.Dispatch.Interval)
	assert.Equal(t, 10, cfg.Dispatch.DirectSendThreshold)
	assert.Equal(t, "redis", cfg.RateLimit.Backend)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, "https://rsvp.example", cfg.PublicBaseURL)
	assert.True(t, cfg.Mail.SESInsecureSkipVerify)
	assert.Equal(t, "X-Client-Key", cfg.RateLimit.KeyHeader)
	assert.True(t, cfg.RateLimit.TrustProxy)
}

func TestLoad_errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "malformed duration", env: map[string]string{"DISPATCH_SEND_DELAY": "soon"}},
		{name: "negative duration", env: map[string]string{"RATE_LIMIT_RSVP_WINDOW": "-1h"}},
		{name: "malformed int", env: map[string]string{"DISPATCH_BATCH_SIZE": "twenty"}},
		{name: "zero batch", env: map[string]string{"DISPATCH_BATCH_SIZE": "0"}},
		{name: "zero claim lease", env: map[string]string{"DISPATCH_CLAIM_LEASE": "0s"}},
		{name: "unknown backend", env: map[string]string{"RATE_LIMIT_BACKEND": "memcached"}},
		{name: "unknown provider", env: map[string]string{"MAIL_PROVIDER": "smtp"}},
		{name: "missing secret", env: map[string]string{"JWT_SECRET": ""}},
		{name: "key header without trusted proxy", env: map[string]string{"RATE_LIMIT_KEY_HEADER": "X-Client-Key"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GO_ENV", "production")
			t.Setenv("JWT_SECRET", "s3cret")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
