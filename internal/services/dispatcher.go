package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"guestlist/internal/domain"
)

// DispatcherConfig configures one drain cycle of the email queue.
type DispatcherConfig struct {
	BatchSize int
	// SendDelay is the minimum gap between two sends in a cycle.
	SendDelay time.Duration
	// ClaimLease is how long a claimed item stays hidden from other dispatchers. It must outlast a
	// cycle; an item whose claim expires unsettled is claimed again.
	ClaimLease time.Duration
	Retry      RetryPolicy
}

const defaultClaimLease = 15 * time.Minute

// Dispatcher drains the email queue. It implements domain.Dispatcher.
type Dispatcher struct {
	queueRepo domain.EmailQueueRepository
	deliverer *deliverer
	config    DispatcherConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewDispatcher returns a Dispatcher that drains pending queue items through mailer.
func NewDispatcher(queueRepo domain.EmailQueueRepository, mailer domain.Mailer, config DispatcherConfig, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		queueRepo: queueRepo,
		deliverer: newDeliverer(mailer, config.Retry),
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
}

// RunCycle claims up to BatchSize pending items, oldest first, and sends them. Each item ends
// sent or failed; neither is revisited by later cycles. Concurrent cycles claim disjoint items.
func (d *Dispatcher) RunCycle(ctx context.Context) (*domain.DispatchResult, error) {
	lease := d.config.ClaimLease
	if lease <= 0 {
		lease = defaultClaimLease
	}
	now := d.now()
	items, err := d.queueRepo.ClaimPending(ctx, d.config.BatchSize, now, now.Add(-lease))
	if err != nil {
		return nil, fmt.Errorf("claim pending emails: %w", err)
	}
	result := &domain.DispatchResult{}
	if len(items) == 0 {
		return result, nil
	}

	limit := rate.Inf
	if d.config.SendDelay > 0 {
		limit = rate.Every(d.config.SendDelay)
	}
	pacer := rate.NewLimiter(limit, 1)

	for _, it := range items {
		if err := pacer.Wait(ctx); err != nil {
			return result, fmt.Errorf("dispatch interrupted: %w", err)
		}
		sendErr := d.deliverer.deliver(ctx, it.ToEmail, it.Subject, it.HTML, it.PlainText)
		if sendErr == nil {
			if err := d.queueRepo.MarkSent(ctx, it.ID, d.now()); err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					d.logger.WarnContext(ctx, "queue item already settled", "queue_id", it.ID, "mailing_id", it.MailingID)
					continue
				}
				return result, fmt.Errorf("mark email %s sent: %w", it.ID, err)
			}
			result.Sent++
			continue
		}
		d.logger.WarnContext(ctx, "email delivery failed", "queue_id", it.ID, "mailing_id", it.MailingID, "to", it.ToEmail, "err", sendErr)
		if err := d.queueRepo.MarkFailed(ctx, it.ID, sendErr.Error()); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				d.logger.WarnContext(ctx, "queue item already settled", "queue_id", it.ID, "mailing_id", it.MailingID)
				continue
			}
			return result, fmt.Errorf("mark email %s failed: %w", it.ID, err)
		}
		result.Failed++
	}
	d.logger.InfoContext(ctx, "dispatch cycle finished", "sent", result.Sent, "failed", result.Failed)
	return result, nil
}

// Run calls RunCycle every interval until ctx is cancelled. Cycle errors are logged.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.RunCycle(ctx); err != nil {
				d.logger.ErrorContext(ctx, "dispatch cycle failed", "err", err)
			}
		}
	}
}
