package controllers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"guestlist/internal/delivery/http/helpers"
	"guestlist/internal/delivery/http/middleware"
	"guestlist/internal/domain"
)

// CreateEventRequest is the request body for POST /events.
// Omitting max_participants creates an event without a participant limit.
type CreateEventRequest struct {
	Name             string `json:"name"`
	Description      string `json:"description"`
	MaxParticipants  *int   `json:"max_participants"`
	OverbookingLimit int    `json:"overbooking_limit"`
}

// Validate implements Validator.
func (c CreateEventRequest) Validate() []string {
	var errs []string
	if strings.TrimSpace(c.Name) == "" {
		errs = append(errs, "name is required")
	}
	if c.MaxParticipants != nil && *c.MaxParticipants < 0 {
		errs = append(errs, "max_participants must be >= 0")
	}
	if c.OverbookingLimit < 0 {
		errs = append(errs, "overbooking_limit must be >= 0")
	}
	return errs
}

// UpdateEventRequest is the request body for PATCH /events/{eventID}. All fields optional;
// omitted fields are unchanged. clear_max_participants removes the participant limit.
type UpdateEventRequest struct {
	Name                 *string `json:"name"`
	Description          *string `json:"description"`
	MaxParticipants      *int    `json:"max_participants"`
	ClearMaxParticipants bool    `json:"clear_max_participants"`
	OverbookingLimit     *int    `json:"overbooking_limit"`
}

// Validate implements Validator.
func (u UpdateEventRequest) Validate() []string {
	var errs []string
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		errs = append(errs, "name cannot be empty")
	}
	if u.MaxParticipants != nil && *u.MaxParticipants < 0 {
		errs = append(errs, "max_participants must be >= 0")
	}
	if u.MaxParticipants != nil && u.ClearMaxParticipants {
		errs = append(errs, "max_participants and clear_max_participants are mutually exclusive")
	}
	if u.OverbookingLimit != nil && *u.OverbookingLimit < 0 {
		errs = append(errs, "overbooking_limit must be >= 0")
	}
	return errs
}

// EventSuccessResponse is the success response envelope for event create and update.
type EventSuccessResponse struct {
	Data  *domain.Event     `json:"data"`
	Error *helpers.APIError `json:"error"`
}

// EventSummarySuccessResponse is the success response envelope for GET /events/{eventID} (200).
type EventSummarySuccessResponse struct {
	Data  *domain.EventSummary `json:"data"`
	Error *helpers.APIError    `json:"error"`
}

// DeleteResponse is the data payload of delete endpoints.
type DeleteResponse struct {
	Status string `json:"status"`
}

type EventController struct {
	Logger  *slog.Logger
	Service domain.EventService
}

func NewEventController(logger *slog.Logger, svc domain.EventService) *EventController {
	return &EventController{Logger: logger, Service: svc}
}

func validEmail(raw string) bool {
	_, ok := domain.NormalizeEmail(raw)
	return ok
}

// callerID reads the authenticated organizer, writing 401 when absent.
func callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := middleware.OrganizerFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return "", false
	}
	return id, true
}

// pathValue reads a required path parameter, writing 400 when it is empty.
func pathValue(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v := r.PathValue(name)
	if v == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing "+name)
		return "", false
	}
	return v, true
}

// CreateEvent godoc
// @Summary Create an event
// @Description Create an event owned by the caller. max_participants may be omitted for an unbounded event; overbooking_limit extends the capacity.
// @Tags events
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param event body CreateEventRequest true "Event data"
// @Success 201 {object} controllers.EventSuccessResponse "data contains the created event"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events [post]
func (c *EventController) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req CreateEventRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	now := time.Now().UTC()
	event := domain.NewEvent(strings.TrimSpace(req.Name), req.Description, userID, req.MaxParticipants, req.OverbookingLimit, now, now)
	if err := c.Service.CreateEvent(r.Context(), event); err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusCreated, event)
}

// ListEvents godoc
// @Summary List my events
// @Description Returns the caller's events, newest first.
// @Tags events
// @Produce json
// @Security BearerAuth
// @Success 200 {object} helpers.APIResponse "data contains the events"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events [get]
func (c *EventController) ListEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	events, err := c.Service.ListEvents(r.Context(), userID)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	if events == nil {
		events = []*domain.Event{}
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, events)
}

// GetEvent godoc
// @Summary Get an event
// @Description Returns the event with its attending and waitlisted counts and remaining capacity (null when unbounded).
// @Tags events
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID (UUID)"
// @Success 200 {object} controllers.EventSummarySuccessResponse "data contains the event summary"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden (not owner)"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events/{eventID} [get]
func (c *EventController) GetEvent(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathValue(w, r, "eventID")
	if !ok {
		return
	}
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	summary, err := c.Service.GetEvent(r.Context(), eventID, userID)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, summary)
}

// UpdateEvent godoc
// @Summary Update an event
// @Description Updates name, description, or capacity fields. Changing capacity never promotes waitlisted participants.
// @Tags events
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID (UUID)"
// @Param body body UpdateEventRequest true "Fields to update (all optional)"
// @Success 200 {object} controllers.EventSuccessResponse "data contains the updated event"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden (not owner)"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events/{eventID} [patch]
func (c *EventController) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathValue(w, r, "eventID")
	if !ok {
		return
	}
	var req UpdateEventRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	upd := domain.EventUpdate{
		Name:                 req.Name,
		Description:          req.Description,
		MaxParticipants:      req.MaxParticipants,
		ClearMaxParticipants: req.ClearMaxParticipants,
		OverbookingLimit:     req.OverbookingLimit,
	}
	event, err := c.Service.UpdateEvent(r.Context(), eventID, userID, upd)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, event)
}

// DeleteEvent godoc
// @Summary Delete an event
// @Description Deletes the event with its participants, mailings and queued emails.
// @Tags events
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID (UUID)"
// @Success 200 {object} helpers.APIResponse "data.status: deleted"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden (not owner)"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events/{eventID} [delete]
func (c *EventController) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathValue(w, r, "eventID")
	if !ok {
		return
	}
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	if err := c.Service.DeleteEvent(r.Context(), eventID, userID); err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, DeleteResponse{Status: "deleted"})
}
