package controllers

import (
	"log/slog"
	"net/http"
	"strings"

	"guestlist/internal/delivery/http/helpers"
	"guestlist/internal/domain"
)

// RecipientFilterRequest selects recipients by status and category. Empty means everyone.
type RecipientFilterRequest struct {
	Statuses []string `json:"statuses"`
	Category string   `json:"category"`
}

func (f *RecipientFilterRequest) toDomain() *domain.RecipientFilter {
	if f == nil {
		return nil
	}
	out := &domain.RecipientFilter{Category: strings.TrimSpace(f.Category)}
	for _, s := range f.Statuses {
		out.Statuses = append(out.Statuses, domain.ParticipantStatus(strings.ToLower(strings.TrimSpace(s))))
	}
	return out
}

// MailingRequest is the request body for creating (POST) and editing (PATCH) a mailing.
// On PATCH omitted fields are unchanged. Subject and bodies may use {{.Name}}, {{.Email}},
// {{.EventName}}, {{.RsvpURL}} and {{.Status}}.
type MailingRequest struct {
	Subject         *string                 `json:"subject"`
	HTML            *string                 `json:"html"`
	PlainText       *string                 `json:"plain_text"`
	RecipientFilter *RecipientFilterRequest `json:"recipient_filter"`
}

// Validate implements Validator.
func (m MailingRequest) Validate() []string {
	var errs []string
	if m.RecipientFilter != nil {
		for _, s := range m.RecipientFilter.Statuses {
			if !domain.ParticipantStatus(strings.ToLower(strings.TrimSpace(s))).Valid() {
				errs = append(errs, "unknown status "+s)
			}
		}
	}
	return errs
}

func (m MailingRequest) toInput() domain.MailingInput {
	return domain.MailingInput{
		Subject:   m.Subject,
		HTML:      m.HTML,
		PlainText: m.PlainText,
		Filter:    m.RecipientFilter.toDomain(),
	}
}

// SendTestRequest is the optional request body for POST .../test. An empty email sends to the organizer.
type SendTestRequest struct {
	Email string `json:"email"`
}

// Validate implements Validator.
func (s SendTestRequest) Validate() []string {
	if s.Email != "" && !validEmail(s.Email) {
		return []string{"invalid email format"}
	}
	return nil
}

// SendTestResponse is the data payload for POST .../test.
type SendTestResponse struct {
	Status string `json:"status"`
}

// SendResultSuccessResponse is the success envelope for send endpoints.
type SendResultSuccessResponse struct {
	Data  *domain.SendResult `json:"data"`
	Error *helpers.APIError  `json:"error"`
}

type MailingController struct {
	Logger  *slog.Logger
	Service domain.MailingService
}

func NewMailingController(logger *slog.Logger, svc domain.MailingService) *MailingController {
	return &MailingController{Logger: logger, Service: svc}
}

// sendStatus is 202 when the batch was handed to the queue and 200 when it was sent inline.
func sendStatus(res *domain.SendResult) int {
	if res.Queued {
		return http.StatusAccepted
	}
	return http.StatusOK
}

// CreateMailing godoc
// @Summary Create a mailing draft
// @Description Creates a draft. subject and at least one of html or plain_text are required.
// @Tags mailings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID (UUID)"
// @Param body body MailingRequest true "Mailing content and recipient filter"
// @Success 201 {object} helpers.APIResponse "data contains the draft"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden (not owner)"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events/{eventID}/mailings [post]
func (c *MailingController) CreateMailing(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathValue(w, r, "eventID")
	if !ok {
		return
	}
	var req MailingRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	m, err := c.Service.CreateMailing(r.Context(), eventID, userID, req.toInput())
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusCreated, m)
}

// ListMailings godoc
// @Summary List mailings
// @Description Mailings of an event, newest first.
// @Tags mailings
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID (UUID)"
// @Success 200 {object} helpers.APIResponse "data contains the mailings"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden (not owner)"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events/{eventID}/mailings [get]
func (c *MailingController) ListMailings(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathValue(w, r, "eventID")
	if !ok {
		return
	}
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	list, err := c.Service.ListMailings(r.Context(), eventID, userID)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	if list == nil {
		list = []*domain.Mailing{}
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, list)
}

// GetMailing godoc
// @Summary Get a mailing
// @Description Returns the mailing with its queue counts (pending, sent, failed).
// @Tags mailings
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID (UUID)"
// @Param mailingID path string true "Mailing ID (UUID)"
// @Success 200 {object} helpers.APIResponse "data contains mailing and queue"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden (not owner)"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events/{eventID}/mailings/{mailingID} [get]
func (c *MailingController) GetMailing(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathValue(w, r, "eventID")
	if !ok {
		return
	}
	mailingID, ok := pathValue(w, r, "mailingID")
	if !ok {
		return
	}
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	m, err := c.Service.GetMailing(r.Context(), eventID, userID, mailingID)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, m)
}

// UpdateMailing godoc
// @Summary Edit a mailing draft
// @Description Edits a draft. Sent mailings cannot be edited.
// @Tags mailings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID (UUID)"
// @Param mailingID path string true "Mailing ID (UUID)"
// @Param body body MailingRequest true "Fields to update (all optional)"
// @Success 200 {object} helpers.APIResponse "data contains the draft"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden (not owner)"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: conflict (already sent)"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events/{eventID}/mailings/{mailingID} [patch]
func (c *MailingController) UpdateMailing(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathValue(w, r, "eventID")
	if !ok {
		return
	}
	mailingID, ok := pathValue(w, r, "mailingID")
	if !ok {
		return
	}
	var req MailingRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	m, err := c.Service.UpdateMailing(r.Context(), eventID, userID, mailingID, req.toInput())
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, m)
}

// SendMailing godoc
// @Summary Send a mailing
// @Description Sends a draft once. Small recipient lists are sent inline (200); larger ones are queued for the dispatcher (202).
// @Tags mailings
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID (UUID)"
// @Param mailingID path string true "Mailing ID (UUID)"
// @Success 200 {object} controllers.SendResultSuccessResponse "sent inline"
// @Success 202 {object} controllers.SendResultSuccessResponse "queued"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden (not owner)"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: conflict (already sent)"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events/{eventID}/mailings/{mailingID}/send [post]
func (c *MailingController) SendMailing(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathValue(w, r, "eventID")
	if !ok {
		return
	}
	mailingID, ok := pathValue(w, r, "mailingID")
	if !ok {
		return
	}
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	res, err := c.Service.SendMailing(r.Context(), eventID, userID, mailingID)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, sendStatus(res), res)
}

// SendToNewRecipients godoc
// @Summary Send a mailing to new recipients
// @Description For a sent mailing, sends to matching participants who have not received it yet.
// @Tags mailings
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID (UUID)"
// @Param mailingID path string true "Mailing ID (UUID)"
// @Success 200 {object} controllers.SendResultSuccessResponse "sent inline"
// @Success 202 {object} controllers.SendResultSuccessResponse "queued"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden (not owner)"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: conflict (not sent yet)"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events/{eventID}/mailings/{mailingID}/send-new [post]
func (c *MailingController) SendToNewRecipients(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathValue(w, r, "eventID")
	if !ok {
		return
	}
	mailingID, ok := pathValue(w, r, "mailingID")
	if !ok {
		return
	}
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	res, err := c.Service.SendToNewRecipients(r.Context(), eventID, userID, mailingID)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, sendStatus(res), res)
}

// SendTest godoc
// @Summary Send a test email
// @Description Renders the mailing for a sample recipient and sends it to email, or to the organizer when omitted. The subject is prefixed with [TEST].
// @Tags mailings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID (UUID)"
// @Param mailingID path string true "Mailing ID (UUID)"
// @Param body body SendTestRequest false "Target address"
// @Success 200 {object} helpers.APIResponse "data.status: sent"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden (not owner)"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events/{eventID}/mailings/{mailingID}/test [post]
func (c *MailingController) SendTest(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathValue(w, r, "eventID")
	if !ok {
		return
	}
	mailingID, ok := pathValue(w, r, "mailingID")
	if !ok {
		return
	}
	var req SendTestRequest
	if !helpers.DecodeOptional(w, r, &req) {
		return
	}
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	if err := c.Service.SendTest(r.Context(), eventID, userID, mailingID, req.Email); err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, SendTestResponse{Status: "sent"})
}
