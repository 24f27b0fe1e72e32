package domain

import (
	"context"
	"time"
)

// Event represents an event that participants register for.
// MaxParticipants nil means capacity is unbounded.
// swagger:model Event
type Event struct {
	ID               string    `json:"id"`
	OwnerID          string    `json:"owner_id"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	MaxParticipants  *int      `json:"max_participants"`
	OverbookingLimit int       `json:"overbooking_limit"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// NewEvent returns a new Event with the given fields. ID is typically set by the repository on create.
func NewEvent(name, description, ownerID string, maxParticipants *int, overbookingLimit int, createdAt, updatedAt time.Time) *Event {
	return &Event{
		OwnerID:          ownerID,
		Name:             name,
		Description:      description,
		MaxParticipants:  maxParticipants,
		OverbookingLimit: overbookingLimit,
		CreatedAt:        createdAt,
		UpdatedAt:        updatedAt,
	}
}

// EventSummary bundles an event with its current occupancy.
// RemainingCapacity is nil when the event has no participant limit.
type EventSummary struct {
	Event             *Event `json:"event"`
	AttendingCount    int    `json:"attending_count"`
	WaitlistedCount   int    `json:"waitlisted_count"`
	RemainingCapacity *int   `json:"remaining_capacity"`
}

// EventUpdate carries optional changes to an event. Nil fields are left unchanged.
// ClearMaxParticipants removes the participant limit.
type EventUpdate struct {
	Name                 *string
	Description          *string
	MaxParticipants      *int
	ClearMaxParticipants bool
	OverbookingLimit     *int
}

// EventRepository defines the interface for event storage
type EventRepository interface {
	Create(ctx context.Context, event *Event) error
	GetByID(ctx context.Context, id string) (*Event, error)
	// GetByIDForUpdate reads the event and, inside a transaction, locks its row until commit.
	// It is the serialization point for admissions to the same event.
	GetByIDForUpdate(ctx context.Context, id string) (*Event, error)
	ListByOwnerID(ctx context.Context, ownerID string) ([]*Event, error)
	Update(ctx context.Context, event *Event) error
	Delete(ctx context.Context, id string) error
}

// EventService manages events owned by organizers.
type EventService interface {
	CreateEvent(ctx context.Context, event *Event) error
	GetEvent(ctx context.Context, eventID, ownerID string) (*EventSummary, error)
	ListEvents(ctx context.Context, ownerID string) ([]*Event, error)
	UpdateEvent(ctx context.Context, eventID, ownerID string, upd EventUpdate) (*Event, error)
	DeleteEvent(ctx context.Context, eventID, ownerID string) error
}
