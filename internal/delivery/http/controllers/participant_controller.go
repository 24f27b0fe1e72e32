package controllers

import (
	"log/slog"
	"net/http"
	"strings"

	"guestlist/internal/delivery/http/helpers"
	"guestlist/internal/domain"
)

// maxImportRows bounds a single bulk import request.
const maxImportRows = 5000

// CreateParticipantRequest is the request body for POST /events/{eventID}/participants.
// Status defaults to attending. A request for attending at capacity lands on the waitlist.
type CreateParticipantRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Category string `json:"category"`
	Status   string `json:"status"`
}

// Validate implements Validator.
func (c CreateParticipantRequest) Validate() []string {
	var errs []string
	if strings.TrimSpace(c.Email) == "" {
		errs = append(errs, "email is required")
	} else if !validEmail(c.Email) {
		errs = append(errs, "invalid email format")
	}
	if c.Status != "" && !domain.ParticipantStatus(c.Status).Valid() {
		errs = append(errs, "unknown status "+c.Status)
	}
	return errs
}

// UpdateParticipantRequest is the request body for PATCH /events/{eventID}/participants/{participantID}.
// All fields optional; omitted fields are unchanged.
type UpdateParticipantRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Category *string `json:"category"`
	Status   *string `json:"status"`
}

// Validate implements Validator.
func (u UpdateParticipantRequest) Validate() []string {
	var errs []string
	if u.Email != nil && !validEmail(*u.Email) {
		errs = append(errs, "invalid email format")
	}
	if u.Status != nil && !domain.ParticipantStatus(*u.Status).Valid() {
		errs = append(errs, "unknown status "+*u.Status)
	}
	return errs
}

// ReorderWaitlistRequest is the request body for POST .../waitlist-position.
type ReorderWaitlistRequest struct {
	Position int `json:"position"`
}

// Validate implements Validator.
func (r ReorderWaitlistRequest) Validate() []string {
	if r.Position < 1 {
		return []string{"position must be >= 1"}
	}
	return nil
}

// ImportParticipantsRequest is the request body for POST /events/{eventID}/participants/import.
type ImportParticipantsRequest struct {
	Participants []domain.ImportRow `json:"participants"`
}

// Validate implements Validator. Per-row problems are reported in the import result instead.
func (i ImportParticipantsRequest) Validate() []string {
	if len(i.Participants) == 0 {
		return []string{"participants is required"}
	}
	if len(i.Participants) > maxImportRows {
		return []string{"too many participants in one import"}
	}
	return nil
}

// ParticipantResultSuccessResponse is the success envelope for participant create and update.
type ParticipantResultSuccessResponse struct {
	Data  *domain.ParticipantResult `json:"data"`
	Error *helpers.APIError         `json:"error"`
}

// ListParticipantsResponse is the data payload for GET /events/{eventID}/participants.
type ListParticipantsResponse struct {
	Items      []*domain.Participant  `json:"items"`
	Pagination helpers.PaginationMeta `json:"pagination"`
}

// ListParticipantsSuccessResponse is the success response envelope for GET /events/{eventID}/participants (200).
type ListParticipantsSuccessResponse struct {
	Data  ListParticipantsResponse `json:"data"`
	Error *helpers.APIError        `json:"error"`
}

// ListActivityResponse is the data payload for GET /events/{eventID}/activity.
type ListActivityResponse struct {
	Items      []*domain.ActivityLog  `json:"items"`
	Pagination helpers.PaginationMeta `json:"pagination"`
}

type ParticipantController struct {
	Logger  *slog.Logger
	Service domain.ParticipantService
}

func NewParticipantController(logger *slog.Logger, svc domain.ParticipantService) *ParticipantController {
	return &ParticipantController{Logger: logger, Service: svc}
}

func statusPtr(s *string) *domain.ParticipantStatus {
	if s == nil {
		return nil
	}
	st := domain.ParticipantStatus(strings.ToLower(strings.TrimSpace(*s)))
	return &st
}

// ListParticipants godoc
// @Summary List participants
// @Description Paginated participants of an event, oldest first. Filter by status (repeat or comma-separate), category, and a name/email search.
// @Tags participants
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID (UUID)"
// @Param status query string false "Status filter, e.g. attending,waitlisted"
// @Param category query string false "Category filter"
// @Param search query string false "Case-insensitive name or email substring"
// @Param page query int false "Page number (default 1)"
// @Param page_size query int false "Page size (default 50, max 200)"
// @Success 200 {object} controllers.ListParticipantsSuccessResponse "data contains items and pagination"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden (not owner)"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events/{eventID}/participants [get]
func (c *ParticipantController) ListParticipants(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathValue(w, r, "eventID")
	if !ok {
		return
	}
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	filter, err := helpers.ParseParticipantFilter(r)
	if err != nil {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, err.Error())
		return
	}
	params := helpers.ParticipantPages.Parse(r)
	list, total, err := c.Service.ListParticipants(r.Context(), eventID, userID, filter, params)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	if list == nil {
		list = []*domain.Participant{}
	}
	meta := helpers.NewPaginationMeta(params, total)
	helpers.WriteJSONSuccess(w, http.StatusOK, ListParticipantsResponse{Items: list, Pagination: meta})
}

// ListWaitlist godoc
// @Summary List the waitlist
// @Description Waitlisted participants ordered by queue position (1 is next to be promoted).
// @Tags participants
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID (UUID)"
// @Success 200 {object} helpers.APIResponse "data contains the ordered waitlist"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden (not owner)"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events/{eventID}/waitlist [get]
func (c *ParticipantController) ListWaitlist(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathValue(w, r, "eventID")
	if !ok {
		return
	}
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	list, err := c.Service.ListWaitlist(r.Context(), eventID, userID)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	if list == nil {
		list = []*domain.Participant{}
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, list)
}

// CreateParticipant godoc
// @Summary Add a participant
// @Description Adds a participant. A request for attending on a full event is placed on the waitlist and the result has waitlisted=true.
// @Tags participants
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID (UUID)"
// @Param body body CreateParticipantRequest true "Participant data"
// @Success 201 {object} controllers.ParticipantResultSuccessResponse "data contains the participant and waitlisted flag"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden (not owner)"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: conflict (email already registered)"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events/{eventID}/participants [post]
func (c *ParticipantController) CreateParticipant(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathValue(w, r, "eventID")
	if !ok {
		return
	}
	var req CreateParticipantRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	in := domain.ParticipantInput{Name: &req.Name, Email: &req.Email, Category: &req.Category}
	if req.Status != "" {
		in.Status = statusPtr(&req.Status)
	}
	res, err := c.Service.CreateParticipant(r.Context(), eventID, userID, in)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusCreated, res)
}

// UpdateParticipant godoc
// @Summary Update a participant
// @Description Updates profile fields and optionally the status. Leaving attending promotes the head of the waitlist; moving to attending on a full event keeps the participant waitlisted.
// @Tags participants
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID (UUID)"
// @Param participantID path string true "Participant ID (UUID)"
// @Param body body UpdateParticipantRequest true "Fields to update (all optional)"
// @Success 200 {object} controllers.ParticipantResultSuccessResponse "data contains the participant and waitlisted flag"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden (not owner)"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: conflict (email already registered)"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events/{eventID}/participants/{participantID} [patch]
func (c *ParticipantController) UpdateParticipant(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathValue(w, r, "eventID")
	if !ok {
		return
	}
	participantID, ok := pathValue(w, r, "participantID")
	if !ok {
		return
	}
	var req UpdateParticipantRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	in := domain.ParticipantInput{Name: req.Name, Email: req.Email, Category: req.Category, Status: statusPtr(req.Status)}
	res, err := c.Service.UpdateParticipant(r.Context(), eventID, userID, participantID, in)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, res)
}

// DeleteParticipant godoc
// @Summary Remove a participant
// @Description Removes a participant. Removing an attending participant promotes the head of the waitlist; removing a waitlisted one closes the gap.
// @Tags participants
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID (UUID)"
// @Param participantID path string true "Participant ID (UUID)"
// @Success 200 {object} helpers.APIResponse "data.status: deleted"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden (not owner)"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events/{eventID}/participants/{participantID} [delete]
func (c *ParticipantController) DeleteParticipant(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathValue(w, r, "eventID")
	if !ok {
		return
	}
	participantID, ok := pathValue(w, r, "participantID")
	if !ok {
		return
	}
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	if err := c.Service.DeleteParticipant(r.Context(), eventID, userID, participantID); err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, DeleteResponse{Status: "deleted"})
}

// ReorderWaitlist godoc
// @Summary Move a participant within the waitlist
// @Description Moves a waitlisted participant to position (1..waitlist length). Everyone between shifts by one.
// @Tags participants
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID (UUID)"
// @Param participantID path string true "Participant ID (UUID)"
// @Param body body ReorderWaitlistRequest true "Target position"
// @Success 200 {object} helpers.APIResponse "data contains the moved participant"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden (not owner)"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found (or not waitlisted)"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events/{eventID}/participants/{participantID}/waitlist-position [post]
func (c *ParticipantController) ReorderWaitlist(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathValue(w, r, "eventID")
	if !ok {
		return
	}
	participantID, ok := pathValue(w, r, "participantID")
	if !ok {
		return
	}
	var req ReorderWaitlistRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	p, err := c.Service.ReorderWaitlist(r.Context(), eventID, userID, participantID, req.Position)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, p)
}

// ImportParticipants godoc
// @Summary Bulk import participants
// @Description Imports rows in order under one admission pass. Rows with invalid emails or emails already registered are skipped and reported.
// @Tags participants
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID (UUID)"
// @Param body body ImportParticipantsRequest true "Rows to import"
// @Success 200 {object} helpers.APIResponse "data contains imported, waitlisted and skipped"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden (not owner)"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events/{eventID}/participants/import [post]
func (c *ParticipantController) ImportParticipants(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathValue(w, r, "eventID")
	if !ok {
		return
	}
	var req ImportParticipantsRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	res, err := c.Service.ImportParticipants(r.Context(), eventID, userID, req.Participants)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, res)
}

// ListActivity godoc
// @Summary Participant activity log
// @Description Paginated audit trail of participant transitions for an event, newest first.
// @Tags participants
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID (UUID)"
// @Param page query int false "Page number (default 1)"
// @Param page_size query int false "Page size (default 20, max 100)"
// @Success 200 {object} helpers.APIResponse "data contains items and pagination"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden (not owner)"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events/{eventID}/activity [get]
func (c *ParticipantController) ListActivity(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathValue(w, r, "eventID")
	if !ok {
		return
	}
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	params := helpers.ActivityPages.Parse(r)
	list, total, err := c.Service.ListActivity(r.Context(), eventID, userID, params)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	if list == nil {
		list = []*domain.ActivityLog{}
	}
	meta := helpers.NewPaginationMeta(params, total)
	helpers.WriteJSONSuccess(w, http.StatusOK, ListActivityResponse{Items: list, Pagination: meta})
}
