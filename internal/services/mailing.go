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

// MailingConfig configures the delivery planner.
type MailingConfig struct {
	// DirectSendThreshold is the largest recipient count sent synchronously.
	DirectSendThreshold int
	// PublicBaseURL prefixes RSVP links rendered into mailings.
	PublicBaseURL string
	Retry         RetryPolicy
}

const testSubjectPrefix = "[TEST] "

type mailingService struct {
	eventRepo       domain.EventRepository
	participantRepo domain.ParticipantRepository
	userRepo        domain.UserRepository
	mailingRepo     domain.MailingRepository
	queueRepo       domain.EmailQueueRepository
	renderer        domain.MailingRenderer
	tx              domain.Transactor
	deliverer       *deliverer
	config          MailingConfig
	logger          *slog.Logger
	contextTimeout  time.Duration
	now             func() time.Time
}

// NewMailingService creates the MailingService. Sends to at most config.DirectSendThreshold
// recipients go out synchronously; larger sends are queued for the dispatcher.
func NewMailingService(
	eventRepo domain.EventRepository,
	participantRepo domain.ParticipantRepository,
	userRepo domain.UserRepository,
	mailingRepo domain.MailingRepository,
	queueRepo domain.EmailQueueRepository,
	mailer domain.Mailer,
	renderer domain.MailingRenderer,
	tx domain.Transactor,
	config MailingConfig,
	logger *slog.Logger,
	timeout time.Duration,
) domain.MailingService {
	return &mailingService{
		eventRepo:       eventRepo,
		participantRepo: participantRepo,
		userRepo:        userRepo,
		mailingRepo:     mailingRepo,
		queueRepo:       queueRepo,
		renderer:        renderer,
		tx:              tx,
		deliverer:       newDeliverer(mailer, config.Retry),
		config:          config,
		logger:          logger,
		contextTimeout:  timeout,
		now:             time.Now,
	}
}

func (s *mailingService) getMailing(ctx context.Context, eventID, mailingID string) (*domain.Mailing, error) {
	m, err := s.mailingRepo.GetByID(ctx, eventID, mailingID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get mailing: %w", err)
	}
	return m, nil
}

// validate checks required fields and that every template parses.
func (s *mailingService) validate(m *domain.Mailing) error {
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("%w: subject is required", domain.ErrInvalidInput)
	}
	if m.HTML == "" && m.PlainText == "" {
		return fmt.Errorf("%w: html or plain_text is required", domain.ErrInvalidInput)
	}
	for _, st := range m.Filter.Statuses {
		if !st.Valid() {
			return fmt.Errorf("%w: unknown status %q in recipient filter", domain.ErrInvalidInput, st)
		}
	}
	if _, _, _, err := s.renderer.Render(m, domain.MergeData{}); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

func applyMailingInput(m *domain.Mailing, in domain.MailingInput) {
	if in.Subject != nil {
		m.Subject = *in.Subject
	}
	if in.HTML != nil {
		m.HTML = *in.HTML
	}
	if in.PlainText != nil {
		m.PlainText = *in.PlainText
	}
	if in.Filter != nil {
		m.Filter = *in.Filter
		m.Filter.Category = strings.TrimSpace(m.Filter.Category)
	}
}

func (s *mailingService) CreateMailing(ctx context.Context, eventID, ownerID string, in domain.MailingInput) (*domain.Mailing, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	if _, err := loadOwnedEvent(ctx, s.eventRepo, eventID, ownerID); err != nil {
		return nil, err
	}
	m := &domain.Mailing{EventID: eventID, Status: domain.MailingDraft}
	applyMailingInput(m, in)
	if err := s.validate(m); err != nil {
		return nil, err
	}
	now := s.now()
	m.CreatedAt = now
	m.UpdatedAt = now
	if err := s.mailingRepo.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("create mailing: %w", err)
	}
	return m, nil
}

func (s *mailingService) GetMailing(ctx context.Context, eventID, ownerID, mailingID string) (*domain.MailingWithStats, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	if _, err := loadOwnedEvent(ctx, s.eventRepo, eventID, ownerID); err != nil {
		return nil, err
	}
	m, err := s.getMailing(ctx, eventID, mailingID)
	if err != nil {
		return nil, err
	}
	stats, err := s.queueRepo.StatsByMailing(ctx, m.ID)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	return &domain.MailingWithStats{Mailing: m, Queue: stats}, nil
}

func (s *mailingService) ListMailings(ctx context.Context, eventID, ownerID string) ([]*domain.Mailing, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	if _, err := loadOwnedEvent(ctx, s.eventRepo, eventID, ownerID); err != nil {
		return nil, err
	}
	return s.mailingRepo.ListByEventID(ctx, eventID)
}

func (s *mailingService) UpdateMailing(ctx context.Context, eventID, ownerID, mailingID string, in domain.MailingInput) (*domain.Mailing, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	if _, err := loadOwnedEvent(ctx, s.eventRepo, eventID, ownerID); err != nil {
		return nil, err
	}
	m, err := s.getMailing(ctx, eventID, mailingID)
	if err != nil {
		return nil, err
	}
	if m.Status != domain.MailingDraft {
		return nil, domain.ErrMailingNotDraft
	}
	applyMailingInput(m, in)
	if err := s.validate(m); err != nil {
		return nil, err
	}
	m.UpdatedAt = s.now()
	if err := s.mailingRepo.Update(ctx, m); err != nil {
		if errors.Is(err, domain.ErrMailingNotDraft) {
			return nil, domain.ErrMailingNotDraft
		}
		return nil, fmt.Errorf("update mailing: %w", err)
	}
	return m, nil
}

// recipients resolves the mailing's filter to participants, one per email, skipping exclude.
func (s *mailingService) recipients(ctx context.Context, m *domain.Mailing, exclude map[string]struct{}) ([]*domain.Participant, error) {
	all, err := s.participantRepo.ListAll(ctx, m.EventID, domain.ParticipantFilter{
		Statuses: m.Filter.Statuses,
		Category: m.Filter.Category,
	})
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	out := make([]*domain.Participant, 0, len(all))
	seen := make(map[string]struct{}, len(all))
	for _, p := range all {
		email := strings.ToLower(p.Email)
		if _, ok := seen[email]; ok {
			continue
		}
		if _, ok := exclude[email]; ok {
			continue
		}
		seen[email] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}

func (s *mailingService) rsvpURL(token string) string {
	return strings.TrimRight(s.config.PublicBaseURL, "/") + "/rsvp/" + token
}

// render builds one pending queue item per recipient.
func (s *mailingService) render(event *domain.Event, m *domain.Mailing, recipients []*domain.Participant) ([]*domain.EmailQueueItem, error) {
	now := s.now()
	items := make([]*domain.EmailQueueItem, 0, len(recipients))
	for _, p := range recipients {
		subject, html, text, err := s.renderer.Render(m, domain.MergeData{
			Name:      p.Name,
			Email:     p.Email,
			EventName: event.Name,
			RsvpURL:   s.rsvpURL(p.Token),
			Status:    string(p.Status),
		})
		if err != nil {
			return nil, fmt.Errorf("render mailing for %s: %w", p.Email, err)
		}
		items = append(items, &domain.EmailQueueItem{
			MailingID: m.ID,
			EventID:   m.EventID,
			ToEmail:   p.Email,
			ToName:    p.Name,
			Subject:   subject,
			HTML:      html,
			PlainText: text,
			Status:    domain.QueuePending,
			CreatedAt: now,
		})
	}
	return items, nil
}

// SendMailing claims a draft and delivers it to every matching participant.
func (s *mailingService) SendMailing(ctx context.Context, eventID, ownerID, mailingID string) (*domain.SendResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	event, err := loadOwnedEvent(ctx, s.eventRepo, eventID, ownerID)
	if err != nil {
		return nil, err
	}
	m, err := s.getMailing(ctx, eventID, mailingID)
	if err != nil {
		return nil, err
	}
	if m.Status != domain.MailingDraft {
		return nil, domain.ErrMailingNotDraft
	}
	recipients, err := s.recipients(ctx, m, nil)
	if err != nil {
		return nil, err
	}
	items, err := s.render(event, m, recipients)
	if err != nil {
		return nil, err
	}
	return s.plan(ctx, m, items, true)
}

// SendToNewRecipients delivers an already sent mailing to participants who have no queue row for it yet.
func (s *mailingService) SendToNewRecipients(ctx context.Context, eventID, ownerID, mailingID string) (*domain.SendResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	event, err := loadOwnedEvent(ctx, s.eventRepo, eventID, ownerID)
	if err != nil {
		return nil, err
	}
	m, err := s.getMailing(ctx, eventID, mailingID)
	if err != nil {
		return nil, err
	}
	if m.Status != domain.MailingSent {
		return nil, domain.ErrMailingNotSent
	}
	already, err := s.queueRepo.ListEmailsByMailing(ctx, m.ID)
	if err != nil {
		return nil, fmt.Errorf("list existing recipients: %w", err)
	}
	exclude := make(map[string]struct{}, len(already))
	for _, e := range already {
		exclude[strings.ToLower(e)] = struct{}{}
	}
	recipients, err := s.recipients(ctx, m, exclude)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return &domain.SendResult{Errors: []string{}}, nil
	}
	items, err := s.render(event, m, recipients)
	if err != nil {
		return nil, err
	}
	return s.plan(ctx, m, items, false)
}

// plan routes items to the direct or queued path. claim moves the mailing from draft to sent
// before anything is delivered.
func (s *mailingService) plan(ctx context.Context, m *domain.Mailing, items []*domain.EmailQueueItem, claim bool) (*domain.SendResult, error) {
	if len(items) > s.config.DirectSendThreshold {
		return s.sendQueued(ctx, m, items, claim)
	}
	if claim {
		if err := s.claim(ctx, m); err != nil {
			return nil, err
		}
	}
	return s.sendDirect(ctx, m, items), nil
}

func (s *mailingService) claim(ctx context.Context, m *domain.Mailing) error {
	now := s.now()
	if err := s.mailingRepo.MarkSent(ctx, m.ID, now); err != nil {
		if errors.Is(err, domain.ErrMailingNotDraft) {
			return domain.ErrMailingNotDraft
		}
		return fmt.Errorf("mark mailing sent: %w", err)
	}
	m.Status = domain.MailingSent
	m.SentAt = &now
	m.UpdatedAt = now
	return nil
}

func (s *mailingService) sendQueued(ctx context.Context, m *domain.Mailing, items []*domain.EmailQueueItem, claim bool) (*domain.SendResult, error) {
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if claim {
			if err := s.claim(ctx, m); err != nil {
				return err
			}
		}
		if err := s.queueRepo.Enqueue(ctx, items); err != nil {
			return fmt.Errorf("enqueue emails: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "mailing queued", "mailing_id", m.ID, "event_id", m.EventID, "total", len(items))
	return &domain.SendResult{Total: len(items), Queued: true, Errors: []string{}}, nil
}

// sendDirect attempts every item synchronously. Successes are recorded as sent queue rows;
// failures are reported per recipient and not recorded.
func (s *mailingService) sendDirect(ctx context.Context, m *domain.Mailing, items []*domain.EmailQueueItem) *domain.SendResult {
	result := &domain.SendResult{Total: len(items), Errors: []string{}}
	delivered := make([]*domain.EmailQueueItem, 0, len(items))
	for _, it := range items {
		if err := s.deliverer.deliver(ctx, it.ToEmail, it.Subject, it.HTML, it.PlainText); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", it.ToEmail, err))
			s.logger.WarnContext(ctx, "direct send failed", "mailing_id", m.ID, "to", it.ToEmail, "err", err)
			continue
		}
		sentAt := s.now()
		it.Status = domain.QueueSent
		it.SentAt = &sentAt
		delivered = append(delivered, it)
		result.Sent++
	}
	if len(delivered) > 0 {
		if err := s.queueRepo.Enqueue(ctx, delivered); err != nil {
			s.logger.ErrorContext(ctx, "failed to record direct sends", "mailing_id", m.ID, "count", len(delivered), "err", err)
			result.Unrecorded = true
			result.Errors = append(result.Errors, fmt.Sprintf("%d delivered emails were not recorded and may be sent again to new recipients", len(delivered)))
		}
	}
	return result
}

// SendTest renders the mailing for a placeholder recipient and sends it to toEmail, or to the
// organizer when toEmail is empty. The queue and the mailing status are not touched.
func (s *mailingService) SendTest(ctx context.Context, eventID, ownerID, mailingID, toEmail string) error {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	event, err := loadOwnedEvent(ctx, s.eventRepo, eventID, ownerID)
	if err != nil {
		return err
	}
	m, err := s.getMailing(ctx, eventID, mailingID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(toEmail) == "" {
		owner, err := s.userRepo.GetByID(ctx, ownerID)
		if err != nil {
			return fmt.Errorf("get organizer: %w", err)
		}
		toEmail = owner.Email
	}
	to, err := normalizeEmail(toEmail)
	if err != nil {
		return err
	}
	subject, html, text, err := s.renderer.Render(m, domain.MergeData{
		Name:      "Test Recipient",
		Email:     to,
		EventName: event.Name,
		RsvpURL:   s.rsvpURL("test"),
		Status:    string(domain.StatusInvited),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if err := s.deliverer.deliver(ctx, to, testSubjectPrefix+subject, html, text); err != nil {
		return fmt.Errorf("send test email: %w", err)
	}
	return nil
}
