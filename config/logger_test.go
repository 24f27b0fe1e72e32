package config

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_productionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "production", "", "")

	logger.Info("mailing queued", "mailing_id", "m-1")
	logger.Debug("hidden")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec), "exactly one JSON record")
	assert.Equal(t, "mailing queued", rec["msg"])
	assert.Equal(t, "guestlist", rec["service"])
	assert.Equal(t, "production", rec["env"])
	assert.Equal(t, "m-1", rec["mailing_id"])
}

func TestNewLogger_levelAndFormat(t *testing.T) {
	tests := []struct {
		name      string
		env       string
		level     string
		format    string
		wantWarn  bool
		wantInfo  bool
		wantDebug bool
		wantJSON  bool
	}{
		{name: "development default", wantWarn: true, wantInfo: true},
		{name: "level is case-insensitive", level: "DEBUG", wantWarn: true, wantInfo: true, wantDebug: true},
		{name: "warn hides info", level: "warn", wantWarn: true},
		{name: "unknown level falls back to info", level: "loud", wantWarn: true, wantInfo: true},
		{name: "json outside production", format: "JSON", wantWarn: true, wantInfo: true, wantJSON: true},
		{name: "text in production", env: "production", format: "text", wantWarn: true, wantInfo: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := newLogger(&buf, tt.env, tt.level, tt.format)
			logger.Debug("debug-line")
			logger.Info("info-line")
			logger.Warn("warn-line")

			out := buf.String()
			assert.Equal(t, tt.wantDebug, strings.Contains(out, "debug-line"))
			assert.Equal(t, tt.wantInfo, strings.Contains(out, "info-line"))
			assert.Equal(t, tt.wantWarn, strings.Contains(out, "warn-line"))
			assert.Equal(t, tt.wantJSON, strings.HasPrefix(out, "{"))
			assert.Contains(t, out, "service")
		})
	}
}
