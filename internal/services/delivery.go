package services

import (
	"context"
	"time"

	"guestlist/internal/domain"
)

// RetryPolicy bounds how often a transient send failure is retried.
// The delay before retry n (1-based) is BaseBackoff * 2^(n-1).
type RetryPolicy struct {
	MaxRetries  int
	BaseBackoff time.Duration
}

// deliverer sends one email, retrying transient failures with exponential backoff.
type deliverer struct {
	mailer domain.Mailer
	policy RetryPolicy
	sleep  func(ctx context.Context, d time.Duration) error
}

func newDeliverer(mailer domain.Mailer, policy RetryPolicy) *deliverer {
	return &deliverer{mailer: mailer, policy: policy, sleep: sleepCtx}
}

func (d *deliverer) deliver(ctx context.Context, to, subject, html, text string) error {
	for retry := 0; ; retry++ {
		err := d.mailer.Send(ctx, to, subject, html, text)
		if err == nil {
			return nil
		}
		if retry >= d.policy.MaxRetries || !domain.IsRetryableDelivery(err) {
			return err
		}
		if serr := d.sleep(ctx, d.policy.BaseBackoff<<retry); serr != nil {
			return err
		}
	}
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
