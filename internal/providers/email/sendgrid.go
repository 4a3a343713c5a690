package email

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	common "github.com/example/messenger/internal/adapters/common"
	"github.com/example/messenger/internal/models"
)

// SendgridTransport posts to the SendGrid v3 mail/send API.
type SendgridTransport struct {
	httpTransport
	apiKey string
}

var _ common.Transport = (*SendgridTransport)(nil)

// NewSendgrid requires auth "apiKey".
func NewSendgrid(settings models.Settings, logger zerolog.Logger, opts ...HTTPOption) (*SendgridTransport, error) {
	if err := requireAuth(models.TransportSendgrid, settings, "apiKey"); err != nil {
		return nil, err
	}
	return &SendgridTransport{
		httpTransport: newHTTPTransport(models.TransportSendgrid, "https://api.sendgrid.com/v3", settings, logger, opts),
		apiKey:        settings.AuthValue("apiKey"),
	}, nil
}

// SendgridFactory adapts NewSendgrid to common.Factory.
func SendgridFactory(settings models.Settings, logger zerolog.Logger) (common.Transport, error) {
	return NewSendgrid(settings, logger)
}

type sendgridAddress struct {
	Email string `json:"email"`
}

type sendgridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendgridAttachment struct {
	Content     string `json:"content"`
	Filename    string `json:"filename"`
	Type        string `json:"type,omitempty"`
	Disposition string `json:"disposition,omitempty"`
}

type sendgridPersonalization struct {
	To []sendgridAddress `json:"to"`
}

type sendgridRequest struct {
	Personalizations []sendgridPersonalization `json:"personalizations"`
	From             sendgridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendgridContent         `json:"content"`
	Attachments      []sendgridAttachment      `json:"attachments,omitempty"`
}

// Send posts one message addressed to every recipient.
func (s *SendgridTransport) Send(ctx context.Context, env *models.Envelope) error {
	payload := sendgridRequest{
		From:    sendgridAddress{Email: env.From},
		Subject: env.Subject,
	}
	to := make([]sendgridAddress, 0, len(env.To))
	for _, addr := range env.To {
		to = append(to, sendgridAddress{Email: addr})
	}
	payload.Personalizations = []sendgridPersonalization{{To: to}}

	// SendGrid requires text/plain before text/html.
	if env.Text != "" {
		payload.Content = append(payload.Content, sendgridContent{Type: "text/plain", Value: env.Text})
	}
	if env.HTML != "" {
		payload.Content = append(payload.Content, sendgridContent{Type: "text/html", Value: env.HTML})
	}
	for _, att := range env.Attachments {
		payload.Attachments = append(payload.Attachments, sendgridAttachment{
			Content:     att.Base64(),
			Filename:    att.Filename,
			Type:        att.Type,
			Disposition: att.Disposition,
		})
	}

	req, err := common.NewJSONRequest(ctx, http.MethodPost, s.baseURL+"/mail/send", payload)
	if err != nil {
		return s.fail(err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	if _, err := common.Do(s.client, req); err != nil {
		return s.fail(err)
	}
	s.logger.Debug().Int("recipients", len(env.To)).Msg("sendgrid message accepted")
	return nil
}
