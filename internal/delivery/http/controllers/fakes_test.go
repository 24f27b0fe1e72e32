package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"guestlist/internal/delivery/http/helpers"
	"guestlist/internal/delivery/http/middleware"
	"guestlist/internal/domain"
)

// testLogger is a no-op logger for controller tests so we don't assert on log output.
var testLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

// newRequest builds a request with an optional JSON body, path values and authenticated user.
func newRequest(t *testing.T, method, target string, body any, userID string, pathValues map[string]string) *http.Request {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, rdr)
	for k, v := range pathValues {
		req.SetPathValue(k, v)
	}
	if userID != "" {
		req = req.WithContext(middleware.WithOrganizer(req.Context(), userID))
	}
	return req
}

// decodeEnvelope decodes the response envelope, unmarshalling data into dest when non-nil.
func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder, dest any) *helpers.APIError {
	t.Helper()
	var env struct {
		Data  json.RawMessage   `json:"data"`
		Error *helpers.APIError `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&env))
	if dest != nil && env.Error == nil {
		require.NoError(t, json.Unmarshal(env.Data, dest))
	}
	return env.Error
}

// fakeEventService implements domain.EventService for handler tests.
type fakeEventService struct {
	err         error
	summary     *domain.EventSummary
	events      []*domain.Event
	lastCreate  *domain.Event
	lastUpdate  domain.EventUpdate
	lastOwnerID string
	lastEventID string
}

func (f *fakeEventService) CreateEvent(ctx context.Context, event *domain.Event) error {
	f.lastCreate = event
	if f.err != nil {
		return f.err
	}
	event.ID = "ev-1"
	return nil
}

func (f *fakeEventService) GetEvent(ctx context.Context, eventID, ownerID string) (*domain.EventSummary, error) {
	f.lastEventID, f.lastOwnerID = eventID, ownerID
	return f.summary, f.err
}

func (f *fakeEventService) ListEvents(ctx context.Context, ownerID string) ([]*domain.Event, error) {
	f.lastOwnerID = ownerID
	return f.events, f.err
}

func (f *fakeEventService) UpdateEvent(ctx context.Context, eventID, ownerID string, upd domain.EventUpdate) (*domain.Event, error) {
	f.lastEventID, f.lastOwnerID, f.lastUpdate = eventID, ownerID, upd
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Event{ID: eventID, OwnerID: ownerID}, nil
}

func (f *fakeEventService) DeleteEvent(ctx context.Context, eventID, ownerID string) error {
	f.lastEventID, f.lastOwnerID = eventID, ownerID
	return f.err
}

// fakeParticipantService implements domain.ParticipantService for handler tests.
type fakeParticipantService struct {
	err          error
	result       *domain.ParticipantResult
	list         []*domain.Participant
	total        int
	importResult *domain.ImportResult
	lastFilter   domain.ParticipantFilter
	lastParams   domain.PaginationParams
	lastInput    domain.ParticipantInput
	lastPosition int
	lastRows     []domain.ImportRow
}

func (f *fakeParticipantService) ListParticipants(ctx context.Context, eventID, ownerID string, filter domain.ParticipantFilter, params domain.PaginationParams) ([]*domain.Participant, int, error) {
	f.lastFilter, f.lastParams = filter, params
	return f.list, f.total, f.err
}

func (f *fakeParticipantService) ListWaitlist(ctx context.Context, eventID, ownerID string) ([]*domain.Participant, error) {
	return f.list, f.err
}

func (f *fakeParticipantService) CreateParticipant(ctx context.Context, eventID, ownerID string, in domain.ParticipantInput) (*domain.ParticipantResult, error) {
	f.lastInput = in
	return f.result, f.err
}

func (f *fakeParticipantService) UpdateParticipant(ctx context.Context, eventID, ownerID, participantID string, in domain.ParticipantInput) (*domain.ParticipantResult, error) {
	f.lastInput = in
	return f.result, f.err
}

func (f *fakeParticipantService) DeleteParticipant(ctx context.Context, eventID, ownerID, participantID string) error {
	return f.err
}

func (f *fakeParticipantService) ReorderWaitlist(ctx context.Context, eventID, ownerID, participantID string, newPosition int) (*domain.Participant, error) {
	f.lastPosition = newPosition
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Participant{ID: participantID, QueuePosition: &newPosition, Status: domain.StatusWaitlisted}, nil
}

func (f *fakeParticipantService) ImportParticipants(ctx context.Context, eventID, ownerID string, rows []domain.ImportRow) (*domain.ImportResult, error) {
	f.lastRows = rows
	return f.importResult, f.err
}

func (f *fakeParticipantService) ListActivity(ctx context.Context, eventID, ownerID string, params domain.PaginationParams) ([]*domain.ActivityLog, int, error) {
	f.lastParams = params
	return nil, 0, f.err
}

// fakeRsvpService implements domain.RsvpService for handler tests.
type fakeRsvpService struct {
	err        error
	view       *domain.RsvpView
	result     *domain.RsvpResult
	register   *domain.ParticipantResult
	lastStatus domain.ParticipantStatus
	lastExtra  json.RawMessage
	lastEmail  string
}

func (f *fakeRsvpService) GetRsvp(ctx context.Context, token string) (*domain.RsvpView, error) {
	return f.view, f.err
}

func (f *fakeRsvpService) RespondRsvp(ctx context.Context, token string, status domain.ParticipantStatus, extraFields json.RawMessage) (*domain.RsvpResult, error) {
	f.lastStatus, f.lastExtra = status, extraFields
	return f.result, f.err
}

func (f *fakeRsvpService) CancelRsvp(ctx context.Context, token string) (*domain.RsvpResult, error) {
	return f.result, f.err
}

func (f *fakeRsvpService) Register(ctx context.Context, eventID, name, email string) (*domain.ParticipantResult, error) {
	f.lastEmail = email
	return f.register, f.err
}

// fakeMailingService implements domain.MailingService for handler tests.
type fakeMailingService struct {
	err         error
	mailing     *domain.Mailing
	stats       *domain.MailingWithStats
	sendResult  *domain.SendResult
	lastInput   domain.MailingInput
	lastTestTo  string
	sendNewHits int
}

func (f *fakeMailingService) CreateMailing(ctx context.Context, eventID, ownerID string, in domain.MailingInput) (*domain.Mailing, error) {
	f.lastInput = in
	return f.mailing, f.err
}

func (f *fakeMailingService) GetMailing(ctx context.Context, eventID, ownerID, mailingID string) (*domain.MailingWithStats, error) {
	return f.stats, f.err
}

func (f *fakeMailingService) ListMailings(ctx context.Context, eventID, ownerID string) ([]*domain.Mailing, error) {
	return nil, f.err
}

func (f *fakeMailingService) UpdateMailing(ctx context.Context, eventID, ownerID, mailingID string, in domain.MailingInput) (*domain.Mailing, error) {
	f.lastInput = in
	return f.mailing, f.err
}

func (f *fakeMailingService) SendMailing(ctx context.Context, eventID, ownerID, mailingID string) (*domain.SendResult, error) {
	return f.sendResult, f.err
}

func (f *fakeMailingService) SendToNewRecipients(ctx context.Context, eventID, ownerID, mailingID string) (*domain.SendResult, error) {
	f.sendNewHits++
	return f.sendResult, f.err
}

func (f *fakeMailingService) SendTest(ctx context.Context, eventID, ownerID, mailingID, toEmail string) error {
	f.lastTestTo = toEmail
	return f.err
}

// fakeAuthService implements domain.AuthService for handler tests.
type fakeAuthService struct {
	err   error
	user  *domain.User
	token string
}

func (f *fakeAuthService) SignUp(ctx context.Context, email, password, name string) (*domain.User, error) {
	return f.user, f.err
}

func (f *fakeAuthService) Login(ctx context.Context, email, password string) (string, error) {
	return f.token, f.err
}
