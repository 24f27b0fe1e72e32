package domain

import (
	"context"
	"errors"
	"net"
)

// Sentinel errors shared by services and repositories.
var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidInput       = errors.New("invalid input")
	ErrDuplicate          = errors.New("already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMailingNotDraft    = errors.New("mailing is not a draft")
	ErrMailingNotSent     = errors.New("mailing has not been sent")

	// ErrProviderRateLimited is returned by a Mailer when the provider throttled the request.
	ErrProviderRateLimited = errors.New("email provider rate limit exceeded")
)

// IsRetryableDelivery reports whether a Mailer error is transient: provider throttling or a timeout.
func IsRetryableDelivery(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrProviderRateLimited) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
