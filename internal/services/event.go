package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"guestlist/internal/domain"
)

type eventService struct {
	eventRepo       domain.EventRepository
	participantRepo domain.ParticipantRepository
	contextTimeout  time.Duration
}

// NewEventService creates an EventService backed by the given repositories.
func NewEventService(eventRepo domain.EventRepository, participantRepo domain.ParticipantRepository, timeout time.Duration) domain.EventService {
	return &eventService{
		eventRepo:       eventRepo,
		participantRepo: participantRepo,
		contextTimeout:  timeout,
	}
}

// loadOwnedEvent returns the event if it exists and belongs to ownerID.
func loadOwnedEvent(ctx context.Context, repo domain.EventRepository, eventID, ownerID string) (*domain.Event, error) {
	event, err := repo.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	if event.OwnerID != ownerID {
		return nil, domain.ErrForbidden
	}
	return event, nil
}

func validateCapacity(maxParticipants *int, overbookingLimit int) error {
	if maxParticipants != nil && *maxParticipants < 0 {
		return fmt.Errorf("%w: max_participants must be >= 0", domain.ErrInvalidInput)
	}
	if overbookingLimit < 0 {
		return fmt.Errorf("%w: overbooking_limit must be >= 0", domain.ErrInvalidInput)
	}
	return nil
}

func (s *eventService) CreateEvent(ctx context.Context, event *domain.Event) error {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	if event.OwnerID == "" {
		return fmt.Errorf("event owner is required")
	}
	event.Name = strings.TrimSpace(event.Name)
	if event.Name == "" {
		return fmt.Errorf("%w: name is required", domain.ErrInvalidInput)
	}
	if err := validateCapacity(event.MaxParticipants, event.OverbookingLimit); err != nil {
		return err
	}

	now := time.Now()
	event.CreatedAt = now
	event.UpdatedAt = now
	return s.eventRepo.Create(ctx, event)
}

func (s *eventService) GetEvent(ctx context.Context, eventID, ownerID string) (*domain.EventSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	event, err := loadOwnedEvent(ctx, s.eventRepo, eventID, ownerID)
	if err != nil {
		return nil, err
	}
	attending, err := s.participantRepo.CountByStatus(ctx, eventID, domain.StatusAttending)
	if err != nil {
		return nil, fmt.Errorf("count attending: %w", err)
	}
	waitlisted, err := s.participantRepo.CountByStatus(ctx, eventID, domain.StatusWaitlisted)
	if err != nil {
		return nil, fmt.Errorf("count waitlisted: %w", err)
	}
	return &domain.EventSummary{
		Event:             event,
		AttendingCount:    attending,
		WaitlistedCount:   waitlisted,
		RemainingCapacity: domain.RemainingCapacity(event, attending),
	}, nil
}

func (s *eventService) ListEvents(ctx context.Context, ownerID string) ([]*domain.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()
	return s.eventRepo.ListByOwnerID(ctx, ownerID)
}

// UpdateEvent applies upd. Raising capacity does not promote anyone from the waitlist.
func (s *eventService) UpdateEvent(ctx context.Context, eventID, ownerID string, upd domain.EventUpdate) (*domain.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	event, err := loadOwnedEvent(ctx, s.eventRepo, eventID, ownerID)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name cannot be empty", domain.ErrInvalidInput)
		}
		event.Name = name
	}
	if upd.Description != nil {
		event.Description = *upd.Description
	}
	if upd.ClearMaxParticipants {
		event.MaxParticipants = nil
	} else if upd.MaxParticipants != nil {
		v := *upd.MaxParticipants
		event.MaxParticipants = &v
	}
	if upd.OverbookingLimit != nil {
		event.OverbookingLimit = *upd.OverbookingLimit
	}
	if err := validateCapacity(event.MaxParticipants, event.OverbookingLimit); err != nil {
		return nil, err
	}
	event.UpdatedAt = time.Now()
	if err := s.eventRepo.Update(ctx, event); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("update event: %w", err)
	}
	return event, nil
}

func (s *eventService) DeleteEvent(ctx context.Context, eventID, ownerID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	if _, err := loadOwnedEvent(ctx, s.eventRepo, eventID, ownerID); err != nil {
		return err
	}
	if err := s.eventRepo.Delete(ctx, eventID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}
