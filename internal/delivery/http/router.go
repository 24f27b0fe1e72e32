package http

import (
	"log/slog"
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"

	"guestlist/internal/delivery/http/controllers"
	"guestlist/internal/delivery/http/middleware"
	"guestlist/internal/domain"
)

// Controllers groups the handlers mounted by NewRouter.
type Controllers struct {
	Auth        *controllers.AuthController
	Event       *controllers.EventController
	Participant *controllers.ParticipantController
	Rsvp        *controllers.RsvpController
	Mailing     *controllers.MailingController
	Health      *controllers.HealthController
}

// RouterConfig carries the cross-cutting dependencies of the router.
type RouterConfig struct {
	Logger   *slog.Logger
	Verifier domain.TokenVerifier
	Limiter  domain.RateLimiter
	// LoginRule and RsvpRule default their prefixes to RateLimitPrefixLogin and RateLimitPrefixRsvp.
	LoginRule      domain.RateLimitRule
	RsvpRule       domain.RateLimitRule
	ClientKey      middleware.KeyFunc
	AllowedOrigins []string
}

// NewRouter initializes the HTTP router with all application routes and wraps it with
// request id, logging and CORS middleware.
func NewRouter(cfg RouterConfig, c Controllers) http.Handler {
	mux := http.NewServeMux()
	auth := middleware.RequireOrganizer(cfg.Verifier, cfg.Logger)
	keyFn := cfg.ClientKey
	if keyFn == nil {
		keyFn = middleware.ClientIP("", false)
	}
	if cfg.LoginRule.Prefix == "" {
		cfg.LoginRule.Prefix = domain.RateLimitPrefixLogin
	}
	if cfg.RsvpRule.Prefix == "" {
		cfg.RsvpRule.Prefix = domain.RateLimitPrefixRsvp
	}
	loginLimit := middleware.RateLimit(cfg.Limiter, cfg.LoginRule, keyFn)
	rsvpLimit := middleware.RateLimit(cfg.Limiter, cfg.RsvpRule, keyFn)

	// Auth
	mux.HandleFunc("POST /auth/signup", c.Auth.SignUp)
	mux.HandleFunc("POST /auth/login", loginLimit(c.Auth.Login))

	// Events
	mux.HandleFunc("POST /events", auth(c.Event.CreateEvent))
	mux.HandleFunc("GET /events", auth(c.Event.ListEvents))
	mux.HandleFunc("GET /events/{eventID}", auth(c.Event.GetEvent))
	mux.HandleFunc("PATCH /events/{eventID}", auth(c.Event.UpdateEvent))
	mux.HandleFunc("DELETE /events/{eventID}", auth(c.Event.DeleteEvent))

	// Participants
	mux.HandleFunc("GET /events/{eventID}/participants", auth(c.Participant.ListParticipants))
	mux.HandleFunc("POST /events/{eventID}/participants", auth(c.Participant.CreateParticipant))
	mux.HandleFunc("POST /events/{eventID}/participants/import", auth(c.Participant.ImportParticipants))
	mux.HandleFunc("PATCH /events/{eventID}/participants/{participantID}", auth(c.Participant.UpdateParticipant))
	mux.HandleFunc("DELETE /events/{eventID}/participants/{participantID}", auth(c.Participant.DeleteParticipant))
	mux.HandleFunc("POST /events/{eventID}/participants/{participantID}/waitlist-position", auth(c.Participant.ReorderWaitlist))
	mux.HandleFunc("GET /events/{eventID}/waitlist", auth(c.Participant.ListWaitlist))
	mux.HandleFunc("GET /events/{eventID}/activity", auth(c.Participant.ListActivity))

	// Mailings
	mux.HandleFunc("POST /events/{eventID}/mailings", auth(c.Mailing.CreateMailing))
	mux.HandleFunc("GET /events/{eventID}/mailings", auth(c.Mailing.ListMailings))
	mux.HandleFunc("GET /events/{eventID}/mailings/{mailingID}", auth(c.Mailing.GetMailing))
	mux.HandleFunc("PATCH /events/{eventID}/mailings/{mailingID}", auth(c.Mailing.UpdateMailing))
	mux.HandleFunc("POST /events/{eventID}/mailings/{mailingID}/send", auth(c.Mailing.SendMailing))
	mux.HandleFunc("POST /events/{eventID}/mailings/{mailingID}/send-new", auth(c.Mailing.SendToNewRecipients))
	mux.HandleFunc("POST /events/{eventID}/mailings/{mailingID}/test", auth(c.Mailing.SendTest))

	// Public
	mux.HandleFunc("POST /events/{eventID}/register", rsvpLimit(c.Rsvp.Register))
	mux.HandleFunc("GET /rsvp/{token}", c.Rsvp.GetRsvp)
	mux.HandleFunc("POST /rsvp/{token}", rsvpLimit(c.Rsvp.RespondRsvp))
	mux.HandleFunc("POST /rsvp/{token}/cancel", rsvpLimit(c.Rsvp.CancelRsvp))
	mux.HandleFunc("GET /healthz", c.Health.Health)

	// Swagger
	mux.Handle("/swagger/", httpSwagger.WrapHandler)

	var handler http.Handler = mux
	handler = middleware.CORS(cfg.AllowedOrigins, handler)
	handler = middleware.LoggingMiddleware(cfg.Logger, handler)
	return middleware.RequestIDMiddleware(handler)
}
