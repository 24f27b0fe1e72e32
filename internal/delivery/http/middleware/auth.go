package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	h "guestlist/internal/delivery/http/helpers"
	"guestlist/internal/domain"
)

type organizerKey struct{}

// WithOrganizer returns ctx carrying organizerID as the authenticated caller.
func WithOrganizer(ctx context.Context, organizerID string) context.Context {
	return context.WithValue(ctx, organizerKey{}, organizerID)
}

// OrganizerFromContext returns the organizer admitted by RequireOrganizer. Event ownership is
// checked against this ID.
func OrganizerFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(organizerKey{}).(string)
	return id, ok && id != ""
}

var (
	errNoCredentials = errors.New("missing authorization header")
	errNotBearer     = errors.New("authorization scheme must be Bearer")
	errEmptyToken    = errors.New("missing token")
)

// bearerToken extracts the credentials of an "Authorization: Bearer <token>" header. The scheme
// is matched case-insensitively.
func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errNoCredentials
	}
	scheme, token, _ := strings.Cut(header, " ")
	if !strings.EqualFold(scheme, "Bearer") {
		return "", errNotBearer
	}
	if token = strings.TrimSpace(token); token == "" {
		return "", errEmptyToken
	}
	return token, nil
}

// RequireOrganizer admits requests carrying a valid organizer token and stores the organizer in
// the request context. Anything else gets 401 with a Bearer challenge and next is not called.
func RequireOrganizer(verifier domain.TokenVerifier, logger *slog.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				unauthorized(w, err.Error())
				return
			}
			organizerID, err := verifier.Verify(token)
			if err != nil || organizerID == "" {
				logger.DebugContext(r.Context(), "organizer token rejected", "request_id", RequestIDFromContext(r.Context()), "err", err)
				unauthorized(w, "invalid or expired token")
				return
			}
			next(w, r.WithContext(WithOrganizer(r.Context(), organizerID)))
		}
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="guestlist"`)
	h.WriteJSONError(w, http.StatusUnauthorized, h.ErrCodeUnauthorized, msg)
}
