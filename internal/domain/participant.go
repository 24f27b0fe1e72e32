package domain

import (
	"context"
	"encoding/json"
	"time"
)

// ParticipantStatus is the registration lifecycle state of a participant.
type ParticipantStatus string

const (
	StatusInvited    ParticipantStatus = "invited"
	StatusAttending  ParticipantStatus = "attending"
	StatusDeclined   ParticipantStatus = "declined"
	StatusWaitlisted ParticipantStatus = "waitlisted"
	StatusCancelled  ParticipantStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s ParticipantStatus) Valid() bool {
	switch s {
	case StatusInvited, StatusAttending, StatusDeclined, StatusWaitlisted, StatusCancelled:
		return true
	}
	return false
}

// Participant is a person registered for an event.
// QueuePosition is set only while Status is waitlisted.
// swagger:model Participant
type Participant struct {
	ID            string            `json:"id"`
	EventID       string            `json:"event_id"`
	Name          string            `json:"name"`
	Email         string            `json:"email"`
	Category      string            `json:"category"`
	Status        ParticipantStatus `json:"status"`
	QueuePosition *int              `json:"queue_position"`
	Token         string            `json:"-"`
	ExtraFields   json.RawMessage   `json:"extra_fields,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// ParticipantInput is the admin-supplied data for creating or updating a participant.
// Empty Status on create defaults to attending; nil fields on update are unchanged.
type ParticipantInput struct {
	Name     *string
	Email    *string
	Category *string
	Status   *ParticipantStatus
}

// ParticipantResult is returned by admission paths. Waitlisted is true when a request for
// attending was redirected to the waitlist because the event was full.
type ParticipantResult struct {
	Participant *Participant `json:"participant"`
	Waitlisted  bool         `json:"waitlisted"`
}

// ImportRow is one participant in a bulk import.
type ImportRow struct {
	Name     string            `json:"name"`
	Email    string            `json:"email"`
	Category string            `json:"category"`
	Status   ParticipantStatus `json:"status"`
}

// ImportResult summarizes a bulk import.
type ImportResult struct {
	Imported   int      `json:"imported"`
	Waitlisted int      `json:"waitlisted"`
	Skipped    []string `json:"skipped"`
}

// ParticipantFilter narrows participant listings. Zero values match everything.
type ParticipantFilter struct {
	Statuses []ParticipantStatus
	Category string
	Search   string
}

// PaginationParams selects one 1-based page of a listing.
type PaginationParams struct {
	Page     int
	PageSize int
}

// Offset is the number of rows ahead of the page.
func (p PaginationParams) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.PageSize
}

// Pages is how many pages total rows span, or 0 without a page size.
func (p PaginationParams) Pages(total int) int {
	if p.PageSize <= 0 {
		return 0
	}
	return (total + p.PageSize - 1) / p.PageSize
}

// RsvpView is the public view of a participant reached through an RSVP token.
type RsvpView struct {
	Name          string            `json:"name"`
	Email         string            `json:"email"`
	Status        ParticipantStatus `json:"status"`
	QueuePosition *int              `json:"queue_position"`
	EventName     string            `json:"event_name"`
}

// RsvpResult is the outcome of a public RSVP response or cancellation.
type RsvpResult struct {
	OK         bool              `json:"ok"`
	Status     ParticipantStatus `json:"status"`
	Waitlisted bool              `json:"waitlisted,omitempty"`
}

// ParticipantRepository defines storage operations for participants.
// Queue positions are only ever touched through the waitlist methods.
type ParticipantRepository interface {
	Create(ctx context.Context, p *Participant) error
	GetByID(ctx context.Context, eventID, id string) (*Participant, error)
	GetByToken(ctx context.Context, token string) (*Participant, error)
	GetByEmail(ctx context.Context, eventID, email string) (*Participant, error)
	List(ctx context.Context, eventID string, filter ParticipantFilter, params PaginationParams) ([]*Participant, int, error)
	ListAll(ctx context.Context, eventID string, filter ParticipantFilter) ([]*Participant, error)
	ListWaitlist(ctx context.Context, eventID string) ([]*Participant, error)
	Update(ctx context.Context, p *Participant) error
	Delete(ctx context.Context, eventID, id string) error
	CountByStatus(ctx context.Context, eventID string, status ParticipantStatus) (int, error)
	MaxQueuePosition(ctx context.Context, eventID string) (int, error)
	// FirstWaitlisted returns the waitlisted participant with the lowest position or ErrNotFound.
	FirstWaitlisted(ctx context.Context, eventID string) (*Participant, error)
	// ShiftQueue adds delta to every waitlisted position in [from, to].
	ShiftQueue(ctx context.Context, eventID string, from, to, delta int) error
}

// ActivityLog is an audit trail entry for a participant transition.
type ActivityLog struct {
	ID            string    `json:"id"`
	EventID       string    `json:"event_id"`
	ParticipantID string    `json:"participant_id"`
	Action        string    `json:"action"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

// ActivityRepository stores the participant audit trail.
type ActivityRepository interface {
	Create(ctx context.Context, entry *ActivityLog) error
	ListByEventID(ctx context.Context, eventID string, params PaginationParams) ([]*ActivityLog, int, error)
}

// Transactor runs fn inside a storage transaction. Repositories called with the ctx passed
// to fn take part in that transaction. Nested calls reuse the outer transaction.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ParticipantService is the registration state machine.
type ParticipantService interface {
	ListParticipants(ctx context.Context, eventID, ownerID string, filter ParticipantFilter, params PaginationParams) ([]*Participant, int, error)
	ListWaitlist(ctx context.Context, eventID, ownerID string) ([]*Participant, error)
	CreateParticipant(ctx context.Context, eventID, ownerID string, in ParticipantInput) (*ParticipantResult, error)
	UpdateParticipant(ctx context.Context, eventID, ownerID, participantID string, in ParticipantInput) (*ParticipantResult, error)
	DeleteParticipant(ctx context.Context, eventID, ownerID, participantID string) error
	ReorderWaitlist(ctx context.Context, eventID, ownerID, participantID string, newPosition int) (*Participant, error)
	ImportParticipants(ctx context.Context, eventID, ownerID string, rows []ImportRow) (*ImportResult, error)
	ListActivity(ctx context.Context, eventID, ownerID string, params PaginationParams) ([]*ActivityLog, int, error)
}

// RsvpService is the public, token-addressed side of the state machine.
type RsvpService interface {
	GetRsvp(ctx context.Context, token string) (*RsvpView, error)
	RespondRsvp(ctx context.Context, token string, status ParticipantStatus, extraFields json.RawMessage) (*RsvpResult, error)
	CancelRsvp(ctx context.Context, token string) (*RsvpResult, error)
	Register(ctx context.Context, eventID, name, email string) (*ParticipantResult, error)
}
