package email

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guestlist/internal/domain"
)

type fakeSESClient struct {
	input *ses.SendEmailInput
	err   error
}

func (f *fakeSESClient) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSESMailer_Send(t *testing.T) {
	tests := []struct {
		name          string
		clientErr     error
		wantErr       bool
		wantRetryable bool
	}{
		{name: "success"},
		{
			name:          "throttling maps to provider rate limit",
			clientErr:     &smithy.GenericAPIError{Code: "Throttling", Message: "Maximum sending rate exceeded."},
			wantErr:       true,
			wantRetryable: true,
		},
		{
			name:          "max sending rate maps to provider rate limit",
			clientErr:     &smithy.GenericAPIError{Code: "MaxSendingRateExceeded", Message: "slow down"},
			wantErr:       true,
			wantRetryable: true,
		},
		{
			name:      "rejected message is permanent",
			clientErr: &smithy.GenericAPIError{Code: "MessageRejected", Message: "Email address is not verified."},
			wantErr:   true,
		},
		{
			name:      "transport error is permanent",
			clientErr: errors.New("connection reset"),
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeSESClient{err: tt.clientErr}
			m := newSESMailer(client, "noreply@example.com", "Guestlist", discardLogger())

			err := m.Send(context.Background(), "ada@example.com", "Hello", "<p>Hi</p>", "Hi")
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.wantRetryable, errors.Is(err, domain.ErrProviderRateLimited))
				assert.Equal(t, tt.wantRetryable, domain.IsRetryableDelivery(err))
				return
			}
			require.NoError(t, err)
			require.NotNil(t, client.input)
			assert.Equal(t, "Guestlist <noreply@example.com>", aws.ToString(client.input.Source))
			assert.Equal(t, []string{"ada@example.com"}, client.input.Destination.ToAddresses)
			assert.Equal(t, "Hello", aws.ToString(client.input.Message.Subject.Data))
			require.NotNil(t, client.input.Message.Body.Html)
			require.NotNil(t, client.input.Message.Body.Text)
		})
	}
}

func TestSESMailer_Send_omitsEmptyBodies(t *testing.T) {
	client := &fakeSESClient{}
	m := newSESMailer(client, "noreply@example.com", "", discardLogger())

	require.NoError(t, m.Send(context.Background(), "ada@example.com", "Hello", "", "plain only"))
	assert.Equal(t, "noreply@example.com", aws.ToString(client.input.Source))
	assert.Nil(t, client.input.Message.Body.Html)
	require.NotNil(t, client.input.Message.Body.Text)
}

func TestNewMailer(t *testing.T) {
	m, err := NewMailer(MailerConfig{Provider: "noop"}, discardLogger())
	require.NoError(t, err)
	require.NoError(t, m.Send(context.Background(), "a@b.com", "s", "", ""))

	m, err = NewMailer(MailerConfig{Provider: "carrier-pigeon"}, discardLogger())
	require.NoError(t, err)
	assert.IsType(t, &noopMailer{}, m)

	_, err = NewMailer(MailerConfig{Provider: "ses"}, discardLogger())
	assert.Error(t, err, "ses without region")
}
