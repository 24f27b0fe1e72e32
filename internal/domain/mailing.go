package domain

import (
	"context"
	"time"
)

// MailingStatus tracks whether a mailing has been dispatched.
type MailingStatus string

const (
	MailingDraft MailingStatus = "draft"
	MailingSent  MailingStatus = "sent"
)

// RecipientFilter selects which participants of an event receive a mailing.
// Empty Statuses means every status; empty Category means every category.
type RecipientFilter struct {
	Statuses []ParticipantStatus `json:"statuses"`
	Category string              `json:"category"`
}

// Mailing is a bulk email composed for an event's participants.
// swagger:model Mailing
type Mailing struct {
	ID        string          `json:"id"`
	EventID   string          `json:"event_id"`
	Subject   string          `json:"subject"`
	HTML      string          `json:"html"`
	PlainText string          `json:"plain_text"`
	Filter    RecipientFilter `json:"recipient_filter"`
	Status    MailingStatus   `json:"status"`
	SentAt    *time.Time      `json:"sent_at"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// MailingInput carries the editable fields of a mailing. Nil fields are unchanged on update.
type MailingInput struct {
	Subject   *string
	HTML      *string
	PlainText *string
	Filter    *RecipientFilter
}

// MailingWithStats is a mailing plus the state of its queue rows.
type MailingWithStats struct {
	Mailing *Mailing   `json:"mailing"`
	Queue   QueueStats `json:"queue"`
}

// SendResult is returned by send operations. On the queued path Sent and Failed are zero and
// Total is the number of rows enqueued.
type SendResult struct {
	Sent   int  `json:"sent"`
	Failed int  `json:"failed"`
	Total  int  `json:"total"`
	Queued bool `json:"queued"`
	// Unrecorded is set when direct deliveries went out but could not be written to the queue,
	// so a later send to new recipients would reach them again.
	Unrecorded bool     `json:"unrecorded"`
	Errors     []string `json:"errors"`
}

// MailingRepository defines storage operations for mailings.
type MailingRepository interface {
	Create(ctx context.Context, m *Mailing) error
	GetByID(ctx context.Context, eventID, id string) (*Mailing, error)
	ListByEventID(ctx context.Context, eventID string) ([]*Mailing, error)
	Update(ctx context.Context, m *Mailing) error
	// MarkSent moves a draft to sent. It returns ErrMailingNotDraft when the mailing was not a draft.
	MarkSent(ctx context.Context, id string, sentAt time.Time) error
}

// MailingService is the delivery planner.
type MailingService interface {
	CreateMailing(ctx context.Context, eventID, ownerID string, in MailingInput) (*Mailing, error)
	GetMailing(ctx context.Context, eventID, ownerID, mailingID string) (*MailingWithStats, error)
	ListMailings(ctx context.Context, eventID, ownerID string) ([]*Mailing, error)
	UpdateMailing(ctx context.Context, eventID, ownerID, mailingID string, in MailingInput) (*Mailing, error)
	SendMailing(ctx context.Context, eventID, ownerID, mailingID string) (*SendResult, error)
	SendToNewRecipients(ctx context.Context, eventID, ownerID, mailingID string) (*SendResult, error)
	SendTest(ctx context.Context, eventID, ownerID, mailingID, toEmail string) error
}
