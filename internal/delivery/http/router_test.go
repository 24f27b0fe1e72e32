package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guestlist/internal/delivery/http/controllers"
	"guestlist/internal/delivery/http/middleware"
	"guestlist/internal/domain"
)

type stubVerifier struct{}

func (stubVerifier) Verify(token string) (string, error) {
	if token == "good" {
		return "owner-1", nil
	}
	return "", errors.New("bad token")
}

type denyLimiter struct {
	calls    int
	prefixes []string
}

func (d *denyLimiter) Check(ctx context.Context, rule domain.RateLimitRule, id string) domain.RateLimitDecision {
	d.calls++
	d.prefixes = append(d.prefixes, rule.Prefix)
	return domain.RateLimitDecision{Allowed: false, RetryAfter: 90 * time.Second}
}

type okPinger struct{}

func (okPinger) PingContext(ctx context.Context) error { return nil }

type stubRsvpService struct{ token string }

func (s *stubRsvpService) GetRsvp(ctx context.Context, token string) (*domain.RsvpView, error) {
	s.token = token
	return &domain.RsvpView{Status: domain.StatusInvited}, nil
}

func (s *stubRsvpService) RespondRsvp(ctx context.Context, token string, status domain.ParticipantStatus, extra json.RawMessage) (*domain.RsvpResult, error) {
	return nil, errors.New("not expected")
}

func (s *stubRsvpService) CancelRsvp(ctx context.Context, token string) (*domain.RsvpResult, error) {
	return nil, errors.New("not expected")
}

func (s *stubRsvpService) Register(ctx context.Context, eventID, name, email string) (*domain.ParticipantResult, error) {
	return nil, errors.New("not expected")
}

func newTestRouter(limiter domain.RateLimiter, rsvp domain.RsvpService) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := RouterConfig{
		Logger:    logger,
		Verifier:  stubVerifier{},
		Limiter:   limiter,
		LoginRule: domain.RateLimitRule{MaxRequests: 10, Window: time.Hour},
		RsvpRule:  domain.RateLimitRule{MaxRequests: 30, Window: time.Hour},
	}
	c := Controllers{
		Auth:        controllers.NewAuthController(logger, nil),
		Event:       controllers.NewEventController(logger, nil),
		Participant: controllers.NewParticipantController(logger, nil),
		Rsvp:        controllers.NewRsvpController(logger, rsvp),
		Mailing:     controllers.NewMailingController(logger, nil),
		Health:      controllers.NewHealthController(logger, okPinger{}),
	}
	return NewRouter(cfg, c)
}

func TestRouter_adminRoutesRequireAuth(t *testing.T) {
	router := newTestRouter(&denyLimiter{}, &stubRsvpService{})
	for _, target := range []string{"/events", "/events/ev-1/participants", "/events/ev-1/waitlist", "/events/ev-1/mailings"} {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, target, nil)
		req.Header.Set("Authorization", "Bearer bad")
		router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, target)
	}
}

func TestRouter_loginIsRateLimited(t *testing.T) {
	limiter := &denyLimiter{}
	router := newTestRouter(limiter, &stubRsvpService{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/auth/login", nil))

	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "90", rr.Header().Get("Retry-After"))
	assert.Equal(t, []string{"auth_login"}, limiter.prefixes)
	assert.NotEmpty(t, rr.Header().Get(middleware.RequestIDHeader))
}

func TestRouter_publicRoutes(t *testing.T) {
	rsvp := &stubRsvpService{}
	limiter := &denyLimiter{}
	router := newTestRouter(limiter, rsvp)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/rsvp/tok-42", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "tok-42", rsvp.token)
	assert.Equal(t, 0, limiter.calls, "viewing an RSVP is not rate limited")

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/rsvp/tok-42/cancel", nil))
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, []string{"rsvp_respond"}, limiter.prefixes)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"data":{"status":"ok"},"error":null}`, rr.Body.String())
}
