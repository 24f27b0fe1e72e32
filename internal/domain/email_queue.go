package domain

import (
	"context"
	"time"
)

// QueueStatus is the delivery state of an EmailQueueItem. Sent and failed are terminal.
type QueueStatus string

const (
	QueuePending QueueStatus = "pending"
	QueueSent    QueueStatus = "sent"
	QueueFailed  QueueStatus = "failed"
)

// EmailQueueItem is one rendered email to one recipient.
type EmailQueueItem struct {
	ID        string      `json:"id"`
	MailingID string      `json:"mailing_id"`
	EventID   string      `json:"event_id"`
	ToEmail   string      `json:"to_email"`
	ToName    string      `json:"to_name"`
	Subject   string      `json:"subject"`
	HTML      string      `json:"html"`
	PlainText string      `json:"plain_text"`
	Status    QueueStatus `json:"status"`
	Error     *string     `json:"error"`
	CreatedAt time.Time   `json:"created_at"`
	SentAt    *time.Time  `json:"sent_at"`
}

// QueueStats counts a mailing's queue rows by status.
type QueueStats struct {
	Pending int `json:"pending"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}

// DispatchResult is the outcome of one dispatcher cycle.
type DispatchResult struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// EmailQueueRepository is the durable queue store.
type EmailQueueRepository interface {
	// Enqueue inserts all items in a single statement.
	Enqueue(ctx context.Context, items []*EmailQueueItem) error
	// ClaimPending stamps up to limit unclaimed pending items with claimedAt and returns them,
	// oldest first. Items claimed before staleBefore count as unclaimed. Rows locked by a
	// concurrent claim are skipped.
	ClaimPending(ctx context.Context, limit int, claimedAt, staleBefore time.Time) ([]*EmailQueueItem, error)
	MarkSent(ctx context.Context, id string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
	// ListEmailsByMailing returns every recipient address already present for the mailing.
	ListEmailsByMailing(ctx context.Context, mailingID string) ([]string, error)
	StatsByMailing(ctx context.Context, mailingID string) (QueueStats, error)
}

// Dispatcher drains the queue.
type Dispatcher interface {
	RunCycle(ctx context.Context) (*DispatchResult, error)
}
