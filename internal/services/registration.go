package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"guestlist/internal/domain"
)

func normalizeEmail(raw string) (string, error) {
	email, ok := domain.NormalizeEmail(raw)
	if !ok {
		return "", fmt.Errorf("%w: invalid email format", domain.ErrInvalidInput)
	}
	return email, nil
}

// Activity actions recorded in the participant audit trail.
const (
	actionCreated       = "created"
	actionUpdated       = "updated"
	actionStatusChanged = "status_changed"
	actionWaitlisted    = "waitlisted"
	actionPromoted      = "promoted"
	actionReordered     = "reordered"
	actionDeleted       = "deleted"
	actionImported      = "imported"
	actionRsvp          = "rsvp"
	actionRegistered    = "registered"
)

// registrar owns the registration state machine and the waitlist ledger. Every mutating
// method must run inside a transaction that has locked the event row.
type registrar struct {
	eventRepo       domain.EventRepository
	participantRepo domain.ParticipantRepository
	activityRepo    domain.ActivityRepository
	tx              domain.Transactor
	logger          *slog.Logger
	now             func() time.Time
	newToken        func() string
}

func newRegistrar(
	eventRepo domain.EventRepository,
	participantRepo domain.ParticipantRepository,
	activityRepo domain.ActivityRepository,
	tx domain.Transactor,
	logger *slog.Logger,
) *registrar {
	return &registrar{
		eventRepo:       eventRepo,
		participantRepo: participantRepo,
		activityRepo:    activityRepo,
		tx:              tx,
		logger:          logger,
		now:             time.Now,
		newToken:        uuid.NewString,
	}
}

// activityLog collects audit entries during a transaction; they are written after commit.
type activityLog []*domain.ActivityLog

func (a *activityLog) add(eventID, participantID, action, detail string) {
	*a = append(*a, &domain.ActivityLog{EventID: eventID, ParticipantID: participantID, Action: action, Detail: detail})
}

// flush writes the collected entries. Failures are logged and never returned.
func (r *registrar) flush(ctx context.Context, acts activityLog) {
	for _, entry := range acts {
		entry.CreatedAt = r.now()
		if err := r.activityRepo.Create(ctx, entry); err != nil {
			r.logger.WarnContext(ctx, "failed to record participant activity",
				"event_id", entry.EventID, "participant_id", entry.ParticipantID, "action", entry.Action, "err", err)
		}
	}
}

// lockEvent reads and locks the event for the rest of the transaction.
// A non-empty ownerID must match the event owner.
func (r *registrar) lockEvent(ctx context.Context, eventID, ownerID string) (*domain.Event, error) {
	event, err := r.eventRepo.GetByIDForUpdate(ctx, eventID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("lock event: %w", err)
	}
	if ownerID != "" && event.OwnerID != ownerID {
		return nil, domain.ErrForbidden
	}
	return event, nil
}

// admission queries the current attending count and waitlist tail.
func (r *registrar) admission(ctx context.Context, event *domain.Event) (*domain.Admission, error) {
	attending, err := r.participantRepo.CountByStatus(ctx, event.ID, domain.StatusAttending)
	if err != nil {
		return nil, fmt.Errorf("count attending: %w", err)
	}
	maxPos, err := r.participantRepo.MaxQueuePosition(ctx, event.ID)
	if err != nil {
		return nil, fmt.Errorf("max queue position: %w", err)
	}
	return domain.NewAdmission(event, attending, maxPos), nil
}

// create inserts p after applying the admission rule to its requested status.
// adm may be shared across calls; nil queries fresh counters.
func (r *registrar) create(ctx context.Context, event *domain.Event, adm *domain.Admission, p *domain.Participant, acts *activityLog, action string) (bool, error) {
	if adm == nil {
		var err error
		if adm, err = r.admission(ctx, event); err != nil {
			return false, err
		}
	}
	status, pos, waitlisted := adm.Admit(p.Status)
	now := r.now()
	p.EventID = event.ID
	p.Status = status
	p.QueuePosition = pos
	p.Token = r.newToken()
	p.CreatedAt = now
	p.UpdatedAt = now
	if err := r.participantRepo.Create(ctx, p); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return false, domain.ErrDuplicate
		}
		return false, fmt.Errorf("create participant: %w", err)
	}
	acts.add(event.ID, p.ID, action, string(p.Status))
	if waitlisted {
		acts.add(event.ID, p.ID, actionWaitlisted, fmt.Sprintf("event full, queue position %d", *pos))
	}
	return waitlisted, nil
}

// transition moves p to requested. Entering attending goes through admission; leaving attending
// promotes the head of the waitlist; leaving the waitlist closes the gap.
// waitlisted reports that a request for attending was redirected to (or kept on) the waitlist.
func (r *registrar) transition(ctx context.Context, event *domain.Event, p *domain.Participant, requested domain.ParticipantStatus, acts *activityLog) (waitlisted bool, err error) {
	if !requested.Valid() {
		return false, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, requested)
	}
	prev := p.Status
	prevPos := p.QueuePosition
	if requested == prev {
		return false, nil
	}

	status, pos := requested, (*int)(nil)
	if requested == domain.StatusAttending || requested == domain.StatusWaitlisted {
		adm, err := r.admission(ctx, event)
		if err != nil {
			return false, err
		}
		status, pos, waitlisted = adm.Admit(requested)
		if waitlisted && prev == domain.StatusWaitlisted {
			// Still no room: keep the existing place in line.
			return true, nil
		}
	}

	p.Status = status
	p.QueuePosition = pos
	p.UpdatedAt = r.now()
	if err := r.participantRepo.Update(ctx, p); err != nil {
		return false, fmt.Errorf("update participant status: %w", err)
	}
	acts.add(event.ID, p.ID, actionStatusChanged, fmt.Sprintf("%s -> %s", prev, p.Status))
	if waitlisted {
		acts.add(event.ID, p.ID, actionWaitlisted, fmt.Sprintf("event full, queue position %d", *pos))
	}

	if prev == domain.StatusWaitlisted && prevPos != nil {
		if err := r.closeGap(ctx, event.ID, *prevPos); err != nil {
			return false, err
		}
	}
	if prev == domain.StatusAttending {
		if _, err := r.promoteNext(ctx, event, p.ID, acts); err != nil {
			return false, err
		}
	}
	return waitlisted, nil
}

// remove deletes p and repairs the ledger the same way a status exit would.
func (r *registrar) remove(ctx context.Context, event *domain.Event, p *domain.Participant, acts *activityLog) error {
	if err := r.participantRepo.Delete(ctx, event.ID, p.ID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("delete participant: %w", err)
	}
	acts.add(event.ID, p.ID, actionDeleted, p.Email)
	switch p.Status {
	case domain.StatusWaitlisted:
		if p.QueuePosition != nil {
			return r.closeGap(ctx, event.ID, *p.QueuePosition)
		}
	case domain.StatusAttending:
		_, err := r.promoteNext(ctx, event, p.ID, acts)
		return err
	}
	return nil
}

// closeGap shifts every position after pos down by one.
func (r *registrar) closeGap(ctx context.Context, eventID string, pos int) error {
	if err := r.participantRepo.ShiftQueue(ctx, eventID, pos+1, math.MaxInt32, -1); err != nil {
		return fmt.Errorf("compact waitlist: %w", err)
	}
	return nil
}

// promoteNext moves the lowest-position waitlisted participant to attending. It is a no-op
// when the waitlist is empty, when the head is skipID, or when the event is still at capacity
// (after a capacity reduction).
func (r *registrar) promoteNext(ctx context.Context, event *domain.Event, skipID string, acts *activityLog) (*domain.Participant, error) {
	next, err := r.participantRepo.FirstWaitlisted(ctx, event.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("first waitlisted: %w", err)
	}
	if next.ID == skipID || next.QueuePosition == nil {
		return nil, nil
	}
	attending, err := r.participantRepo.CountByStatus(ctx, event.ID, domain.StatusAttending)
	if err != nil {
		return nil, fmt.Errorf("count attending: %w", err)
	}
	if domain.AtCapacity(event, attending) {
		return nil, nil
	}

	pos := *next.QueuePosition
	next.Status = domain.StatusAttending
	next.QueuePosition = nil
	next.UpdatedAt = r.now()
	if err := r.participantRepo.Update(ctx, next); err != nil {
		return nil, fmt.Errorf("promote participant: %w", err)
	}
	if err := r.closeGap(ctx, event.ID, pos); err != nil {
		return nil, err
	}
	acts.add(event.ID, next.ID, actionPromoted, fmt.Sprintf("from queue position %d", pos))
	r.logger.InfoContext(ctx, "promoted participant from waitlist", "event_id", event.ID, "participant_id", next.ID, "queue_position", pos)
	return next, nil
}

// reorder moves a waitlisted participant to newPos, shifting everyone in between by one.
func (r *registrar) reorder(ctx context.Context, event *domain.Event, p *domain.Participant, newPos int, acts *activityLog) error {
	if p.Status != domain.StatusWaitlisted || p.QueuePosition == nil {
		return domain.ErrNotFound
	}
	k, err := r.participantRepo.MaxQueuePosition(ctx, event.ID)
	if err != nil {
		return fmt.Errorf("max queue position: %w", err)
	}
	if newPos < 1 || newPos > k {
		return fmt.Errorf("%w: position must be between 1 and %d", domain.ErrInvalidInput, k)
	}
	oldPos := *p.QueuePosition
	if oldPos == newPos {
		return nil
	}
	if newPos < oldPos {
		err = r.participantRepo.ShiftQueue(ctx, event.ID, newPos, oldPos-1, 1)
	} else {
		err = r.participantRepo.ShiftQueue(ctx, event.ID, oldPos+1, newPos, -1)
	}
	if err != nil {
		return fmt.Errorf("shift waitlist: %w", err)
	}
	p.QueuePosition = &newPos
	p.UpdatedAt = r.now()
	if err := r.participantRepo.Update(ctx, p); err != nil {
		return fmt.Errorf("update queue position: %w", err)
	}
	acts.add(event.ID, p.ID, actionReordered, fmt.Sprintf("%d -> %d", oldPos, newPos))
	return nil
}
