package email

import (
	"context"
	"fmt"
	"net/url"
	"reflect"

	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"

	common "github.com/example/messenger/internal/adapters/common"
	"github.com/example/messenger/internal/models"
)

// ResendTransport sends through the Resend API client.
type ResendTransport struct {
	logger zerolog.Logger
	client *resend.Client
}

var _ common.Transport = (*ResendTransport)(nil)

// NewResend requires auth "apiKey". Option "base_url" points the client at
// another API root.
func NewResend(settings models.Settings, logger zerolog.Logger) (*ResendTransport, error) {
	if err := requireAuth(models.TransportResend, settings, "apiKey"); err != nil {
		return nil, err
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	client := resend.NewClient(settings.AuthValue("apiKey"))
	if base := settings.Option("base_url"); base != "" {
		u, err := url.Parse(base)
		if err != nil {
			return nil, common.NewConfiguration("resend transport: invalid base_url %q", base)
		}
		client.BaseURL = u
	}

	return &ResendTransport{
		logger: logger.With().Str("transport", models.TransportResend).Logger(),
		client: client,
	}, nil
}

// ResendFactory adapts NewResend to common.Factory.
func ResendFactory(settings models.Settings, logger zerolog.Logger) (common.Transport, error) {
	return NewResend(settings, logger)
}

// Send delivers one message to every recipient.
func (r *ResendTransport) Send(ctx context.Context, env *models.Envelope) error {
	params := &resend.SendEmailRequest{
		From:    env.From,
		To:      append([]string(nil), env.To...),
		Subject: env.Subject,
		Html:    env.HTML,
		Text:    env.Text,
	}
	for _, att := range env.Attachments {
		params.Attachments = append(params.Attachments, &resend.Attachment{
			Content:  []byte(att.Content),
			Filename: att.Filename,
		})
	}

	sent, err := r.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return common.NewTransport(models.TransportResend, fmt.Sprintf("resend send failed: %v", err), err)
	}

	r.logger.Debug().Str("message_id", sent.Id).Int("recipients", len(env.To)).Msg("resend message accepted")
	return nil
}
