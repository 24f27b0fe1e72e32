package controllers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

func TestHealthController_Health(t *testing.T) {
	tests := []struct {
		name       string
		ping       error
		wantStatus int
	}{
		{name: "up", wantStatus: http.StatusOK},
		{name: "database down", ping: errors.New("dial tcp: connection refused"), wantStatus: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewHealthController(testLogger, pingerFunc(func(ctx context.Context) error {
				_, hasDeadline := ctx.Deadline()
				assert.True(t, hasDeadline)
				return tt.ping
			}))
			rr := httptest.NewRecorder()
			c.Health(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			require.Equal(t, tt.wantStatus, rr.Code)
			var resp HealthResponse
			apiErr := decodeEnvelope(t, rr, &resp)
			if tt.ping != nil {
				require.NotNil(t, apiErr)
				return
			}
			assert.Equal(t, "ok", resp.Status)
		})
	}
}
