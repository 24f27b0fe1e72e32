package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// statusRecorder captures the status code and body size of a response.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int64
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.written += int64(n)
	return n, err
}

func (w *statusRecorder) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// redactPath hides RSVP tokens, which grant access to a guest's registration.
func redactPath(path string) string {
	rest, ok := strings.CutPrefix(path, "/rsvp/")
	if !ok || rest == "" {
		return path
	}
	_, tail, hasTail := strings.Cut(rest, "/")
	if hasTail {
		return "/rsvp/{token}/" + tail
	}
	return "/rsvp/{token}"
}

// LoggingMiddleware writes one record per request with method, redacted path, matched route,
// status, duration and request id. Bodies are never logged. 5xx responses log at Error and
// rate-limited ones at Warn.
func LoggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		level := slog.LevelInfo
		switch {
		case rec.status >= http.StatusInternalServerError:
			level = slog.LevelError
		case rec.status == http.StatusTooManyRequests:
			level = slog.LevelWarn
		}
		logger.Log(r.Context(), level, "request",
			"method", r.Method,
			"path", redactPath(r.URL.Path),
			"route", r.Pattern,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"bytes", rec.written,
			"request_id", RequestIDFromContext(r.Context()),
		)
	})
}
