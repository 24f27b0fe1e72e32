package controllers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"guestlist/internal/delivery/http/helpers"
	"guestlist/internal/domain"
)

// RespondRsvpRequest is the request body for POST /rsvp/{token}.
type RespondRsvpRequest struct {
	Status      string          `json:"status"`
	ExtraFields json.RawMessage `json:"extra_fields" swaggertype:"object"`
}

// Validate implements Validator.
func (r RespondRsvpRequest) Validate() []string {
	switch domain.ParticipantStatus(strings.ToLower(strings.TrimSpace(r.Status))) {
	case domain.StatusAttending, domain.StatusDeclined:
		return nil
	}
	return []string{"status must be \"attending\" or \"declined\""}
}

// RegisterRequest is the request body for POST /events/{eventID}/register.
type RegisterRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Validate implements Validator.
func (r RegisterRequest) Validate() []string {
	var errs []string
	if strings.TrimSpace(r.Email) == "" {
		errs = append(errs, "email is required")
	} else if !validEmail(r.Email) {
		errs = append(errs, "invalid email format")
	}
	return errs
}

// RsvpResultSuccessResponse is the success envelope for RSVP responses and cancellations.
type RsvpResultSuccessResponse struct {
	Data  *domain.RsvpResult `json:"data"`
	Error *helpers.APIError  `json:"error"`
}

// RsvpController serves the public, token-addressed endpoints. No authentication.
type RsvpController struct {
	Logger  *slog.Logger
	Service domain.RsvpService
}

func NewRsvpController(logger *slog.Logger, svc domain.RsvpService) *RsvpController {
	return &RsvpController{Logger: logger, Service: svc}
}

// GetRsvp godoc
// @Summary View an RSVP
// @Description Returns the participant's name, status, waitlist position and event name for an RSVP token.
// @Tags rsvp
// @Produce json
// @Param token path string true "RSVP token"
// @Success 200 {object} helpers.APIResponse "data contains the RSVP view"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /rsvp/{token} [get]
func (c *RsvpController) GetRsvp(w http.ResponseWriter, r *http.Request) {
	token, ok := pathValue(w, r, "token")
	if !ok {
		return
	}
	view, err := c.Service.GetRsvp(r.Context(), token)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, view)
}

// RespondRsvp godoc
// @Summary Respond to an RSVP
// @Description Accept (attending) or decline. Accepting a full event places the participant on the waitlist. Rate limited per client IP.
// @Tags rsvp
// @Accept json
// @Produce json
// @Param token path string true "RSVP token"
// @Param body body RespondRsvpRequest true "Response"
// @Success 200 {object} controllers.RsvpResultSuccessResponse "data contains ok, status and waitlisted"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 429 {object} helpers.APIResponse "error.code: too_many_requests"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /rsvp/{token} [post]
func (c *RsvpController) RespondRsvp(w http.ResponseWriter, r *http.Request) {
	token, ok := pathValue(w, r, "token")
	if !ok {
		return
	}
	var req RespondRsvpRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	status := domain.ParticipantStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	res, err := c.Service.RespondRsvp(r.Context(), token, status, req.ExtraFields)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, res)
}

// CancelRsvp godoc
// @Summary Cancel an RSVP
// @Description Cancels the participant's registration. A freed attending seat goes to the head of the waitlist.
// @Tags rsvp
// @Produce json
// @Param token path string true "RSVP token"
// @Success 200 {object} controllers.RsvpResultSuccessResponse "data contains ok and status"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 429 {object} helpers.APIResponse "error.code: too_many_requests"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /rsvp/{token}/cancel [post]
func (c *RsvpController) CancelRsvp(w http.ResponseWriter, r *http.Request) {
	token, ok := pathValue(w, r, "token")
	if !ok {
		return
	}
	res, err := c.Service.CancelRsvp(r.Context(), token)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, res)
}

// Register godoc
// @Summary Self-register for an event
// @Description Public registration. A full event places the registrant on the waitlist. Registering an email twice returns the existing participant. Rate limited per client IP.
// @Tags rsvp
// @Accept json
// @Produce json
// @Param eventID path string true "Event ID (UUID)"
// @Param body body RegisterRequest true "Registrant"
// @Success 201 {object} controllers.ParticipantResultSuccessResponse "data contains the participant and waitlisted flag"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 429 {object} helpers.APIResponse "error.code: too_many_requests"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events/{eventID}/register [post]
func (c *RsvpController) Register(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathValue(w, r, "eventID")
	if !ok {
		return
	}
	var req RegisterRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	res, err := c.Service.Register(r.Context(), eventID, req.Name, req.Email)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusCreated, res)
}
