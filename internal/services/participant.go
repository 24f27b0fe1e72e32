package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"guestlist/internal/domain"
)

type participantService struct {
	*registrar
	contextTimeout time.Duration
}

// NewParticipantService creates the admin-facing ParticipantService.
// Mutations run in a transaction that locks the event row, so admissions to one event are serialized.
func NewParticipantService(
	eventRepo domain.EventRepository,
	participantRepo domain.ParticipantRepository,
	activityRepo domain.ActivityRepository,
	tx domain.Transactor,
	logger *slog.Logger,
	timeout time.Duration,
) domain.ParticipantService {
	return &participantService{
		registrar:      newRegistrar(eventRepo, participantRepo, activityRepo, tx, logger),
		contextTimeout: timeout,
	}
}

func (s *participantService) ListParticipants(ctx context.Context, eventID, ownerID string, filter domain.ParticipantFilter, params domain.PaginationParams) ([]*domain.Participant, int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	if _, err := loadOwnedEvent(ctx, s.eventRepo, eventID, ownerID); err != nil {
		return nil, 0, err
	}
	for _, st := range filter.Statuses {
		if !st.Valid() {
			return nil, 0, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, st)
		}
	}
	return s.participantRepo.List(ctx, eventID, filter, params)
}

func (s *participantService) ListWaitlist(ctx context.Context, eventID, ownerID string) ([]*domain.Participant, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	if _, err := loadOwnedEvent(ctx, s.eventRepo, eventID, ownerID); err != nil {
		return nil, err
	}
	return s.participantRepo.ListWaitlist(ctx, eventID)
}

func (s *participantService) CreateParticipant(ctx context.Context, eventID, ownerID string, in domain.ParticipantInput) (*domain.ParticipantResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	if in.Email == nil {
		return nil, fmt.Errorf("%w: email is required", domain.ErrInvalidInput)
	}
	email, err := normalizeEmail(*in.Email)
	if err != nil {
		return nil, err
	}
	p := &domain.Participant{Email: email, Status: domain.StatusAttending}
	if in.Name != nil {
		p.Name = strings.TrimSpace(*in.Name)
	}
	if in.Category != nil {
		p.Category = strings.TrimSpace(*in.Category)
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, *in.Status)
		}
		p.Status = *in.Status
	}

	var acts activityLog
	var waitlisted bool
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		event, err := s.lockEvent(ctx, eventID, ownerID)
		if err != nil {
			return err
		}
		waitlisted, err = s.create(ctx, event, nil, p, &acts, actionCreated)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.flush(ctx, acts)
	return &domain.ParticipantResult{Participant: p, Waitlisted: waitlisted}, nil
}

func (s *participantService) UpdateParticipant(ctx context.Context, eventID, ownerID, participantID string, in domain.ParticipantInput) (*domain.ParticipantResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	var email string
	if in.Email != nil {
		var err error
		if email, err = normalizeEmail(*in.Email); err != nil {
			return nil, err
		}
	}
	if in.Status != nil && !in.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, *in.Status)
	}

	var acts activityLog
	var p *domain.Participant
	var waitlisted bool
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		event, err := s.lockEvent(ctx, eventID, ownerID)
		if err != nil {
			return err
		}
		p, err = s.participantRepo.GetByID(ctx, eventID, participantID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrNotFound
			}
			return fmt.Errorf("get participant: %w", err)
		}

		changed := false
		if in.Name != nil {
			p.Name = strings.TrimSpace(*in.Name)
			changed = true
		}
		if in.Email != nil && email != p.Email {
			p.Email = email
			changed = true
		}
		if in.Category != nil {
			p.Category = strings.TrimSpace(*in.Category)
			changed = true
		}
		if changed {
			p.UpdatedAt = s.now()
			if err := s.participantRepo.Update(ctx, p); err != nil {
				if errors.Is(err, domain.ErrDuplicate) {
					return domain.ErrDuplicate
				}
				return fmt.Errorf("update participant: %w", err)
			}
			acts.add(eventID, p.ID, actionUpdated, "")
		}
		if in.Status != nil {
			waitlisted, err = s.transition(ctx, event, p, *in.Status, &acts)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.flush(ctx, acts)
	return &domain.ParticipantResult{Participant: p, Waitlisted: waitlisted}, nil
}

func (s *participantService) DeleteParticipant(ctx context.Context, eventID, ownerID, participantID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	var acts activityLog
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		event, err := s.lockEvent(ctx, eventID, ownerID)
		if err != nil {
			return err
		}
		p, err := s.participantRepo.GetByID(ctx, eventID, participantID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrNotFound
			}
			return fmt.Errorf("get participant: %w", err)
		}
		return s.remove(ctx, event, p, &acts)
	})
	if err != nil {
		return err
	}
	s.flush(ctx, acts)
	return nil
}

func (s *participantService) ReorderWaitlist(ctx context.Context, eventID, ownerID, participantID string, newPosition int) (*domain.Participant, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	var acts activityLog
	var p *domain.Participant
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		event, err := s.lockEvent(ctx, eventID, ownerID)
		if err != nil {
			return err
		}
		p, err = s.participantRepo.GetByID(ctx, eventID, participantID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrNotFound
			}
			return fmt.Errorf("get participant: %w", err)
		}
		return s.reorder(ctx, event, p, newPosition, &acts)
	})
	if err != nil {
		return nil, err
	}
	s.flush(ctx, acts)
	return p, nil
}

// ImportParticipants admits rows in order against one in-memory Admission. Rows with an invalid
// or already registered email are skipped and reported.
func (s *participantService) ImportParticipants(ctx context.Context, eventID, ownerID string, rows []domain.ImportRow) (*domain.ImportResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	result := &domain.ImportResult{Skipped: []string{}}
	var acts activityLog
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		event, err := s.lockEvent(ctx, eventID, ownerID)
		if err != nil {
			return err
		}
		adm, err := s.admission(ctx, event)
		if err != nil {
			return err
		}
		seen := make(map[string]struct{}, len(rows))
		for i, row := range rows {
			email, err := normalizeEmail(row.Email)
			if err != nil {
				result.Skipped = append(result.Skipped, fmt.Sprintf("row %d: invalid email %q", i+1, row.Email))
				continue
			}
			status := row.Status
			if status == "" {
				status = domain.StatusAttending
			}
			if !status.Valid() {
				result.Skipped = append(result.Skipped, fmt.Sprintf("%s: unknown status %q", email, row.Status))
				continue
			}
			if _, dup := seen[email]; dup {
				result.Skipped = append(result.Skipped, email)
				continue
			}
			seen[email] = struct{}{}
			if _, err := s.participantRepo.GetByEmail(ctx, eventID, email); err == nil {
				result.Skipped = append(result.Skipped, email)
				continue
			} else if !errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("check existing participant: %w", err)
			}

			p := &domain.Participant{
				Name:     strings.TrimSpace(row.Name),
				Email:    email,
				Category: strings.TrimSpace(row.Category),
				Status:   status,
			}
			waitlisted, err := s.create(ctx, event, adm, p, &acts, actionImported)
			if err != nil {
				return err
			}
			result.Imported++
			if waitlisted {
				result.Waitlisted++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.flush(ctx, acts)
	s.logger.InfoContext(ctx, "participants imported", "event_id", eventID,
		"imported", result.Imported, "waitlisted", result.Waitlisted, "skipped", len(result.Skipped))
	return result, nil
}

func (s *participantService) ListActivity(ctx context.Context, eventID, ownerID string, params domain.PaginationParams) ([]*domain.ActivityLog, int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	if _, err := loadOwnedEvent(ctx, s.eventRepo, eventID, ownerID); err != nil {
		return nil, 0, err
	}
	return s.activityRepo.ListByEventID(ctx, eventID, params)
}
