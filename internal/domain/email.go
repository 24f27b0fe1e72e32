package domain

import "context"

// Mailer defines the contract for sending emails (infrastructure port).
// Implementations return an error wrapping ErrProviderRateLimited when the provider throttles.
type Mailer interface {
	Send(ctx context.Context, to, subject, html, text string) error
}

// MergeData is the per-recipient context used to fill a mailing's merge fields.
type MergeData struct {
	Name      string
	Email     string
	EventName string
	RsvpURL   string
	Status    string
}

// MailingRenderer substitutes merge fields into a mailing for one recipient.
type MailingRenderer interface {
	Render(m *Mailing, data MergeData) (subject, htmlBody, textBody string, err error)
}
