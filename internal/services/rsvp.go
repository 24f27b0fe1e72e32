package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"guestlist/internal/domain"
)

type rsvpService struct {
	*registrar
	contextTimeout time.Duration
}

// NewRsvpService creates the public, token-addressed RsvpService.
func NewRsvpService(
	eventRepo domain.EventRepository,
	participantRepo domain.ParticipantRepository,
	activityRepo domain.ActivityRepository,
	tx domain.Transactor,
	logger *slog.Logger,
	timeout time.Duration,
) domain.RsvpService {
	return &rsvpService{
		registrar:      newRegistrar(eventRepo, participantRepo, activityRepo, tx, logger),
		contextTimeout: timeout,
	}
}

func (s *rsvpService) byToken(ctx context.Context, token string) (*domain.Participant, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, domain.ErrNotFound
	}
	p, err := s.participantRepo.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get participant by token: %w", err)
	}
	return p, nil
}

func (s *rsvpService) GetRsvp(ctx context.Context, token string) (*domain.RsvpView, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	p, err := s.byToken(ctx, token)
	if err != nil {
		return nil, err
	}
	event, err := s.eventRepo.GetByID(ctx, p.EventID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return &domain.RsvpView{
		Name:          p.Name,
		Email:         p.Email,
		Status:        p.Status,
		QueuePosition: p.QueuePosition,
		EventName:     event.Name,
	}, nil
}

// RespondRsvp records an attending or declined answer. Attending goes through admission and may
// land on the waitlist; extraFields replace the stored form answers when present.
func (s *rsvpService) RespondRsvp(ctx context.Context, token string, status domain.ParticipantStatus, extraFields json.RawMessage) (*domain.RsvpResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	if status != domain.StatusAttending && status != domain.StatusDeclined {
		return nil, fmt.Errorf("%w: status must be attending or declined", domain.ErrInvalidInput)
	}
	if len(extraFields) > 0 && !json.Valid(extraFields) {
		return nil, fmt.Errorf("%w: extra_fields must be valid JSON", domain.ErrInvalidInput)
	}
	return s.respond(ctx, token, status, extraFields)
}

func (s *rsvpService) CancelRsvp(ctx context.Context, token string) (*domain.RsvpResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()
	return s.respond(ctx, token, domain.StatusCancelled, nil)
}

func (s *rsvpService) respond(ctx context.Context, token string, status domain.ParticipantStatus, extraFields json.RawMessage) (*domain.RsvpResult, error) {
	p, err := s.byToken(ctx, token)
	if err != nil {
		return nil, err
	}

	var acts activityLog
	var waitlisted bool
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		event, err := s.lockEvent(ctx, p.EventID, "")
		if err != nil {
			return err
		}
		// Re-read under the event lock.
		if p, err = s.byToken(ctx, token); err != nil {
			return err
		}
		if len(extraFields) > 0 {
			p.ExtraFields = extraFields
			p.UpdatedAt = s.now()
			if err := s.participantRepo.Update(ctx, p); err != nil {
				return fmt.Errorf("update extra fields: %w", err)
			}
		}
		waitlisted, err = s.transition(ctx, event, p, status, &acts)
		return err
	})
	if err != nil {
		return nil, err
	}
	acts.add(p.EventID, p.ID, actionRsvp, string(status))
	s.flush(ctx, acts)
	return &domain.RsvpResult{OK: true, Status: p.Status, Waitlisted: waitlisted}, nil
}

// Register is public self-registration. A known email returns the existing participant unchanged.
func (s *rsvpService) Register(ctx context.Context, eventID, name, email string) (*domain.ParticipantResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", domain.ErrInvalidInput)
	}

	var acts activityLog
	var result *domain.ParticipantResult
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		event, err := s.lockEvent(ctx, eventID, "")
		if err != nil {
			return err
		}
		existing, err := s.participantRepo.GetByEmail(ctx, eventID, email)
		if err == nil {
			result = &domain.ParticipantResult{Participant: existing, Waitlisted: existing.Status == domain.StatusWaitlisted}
			return nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("check existing participant: %w", err)
		}
		p := &domain.Participant{Name: name, Email: email, Status: domain.StatusAttending}
		waitlisted, err := s.create(ctx, event, nil, p, &acts, actionRegistered)
		if err != nil {
			return err
		}
		result = &domain.ParticipantResult{Participant: p, Waitlisted: waitlisted}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.flush(ctx, acts)
	return result, nil
}
