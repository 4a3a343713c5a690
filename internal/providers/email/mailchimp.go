package email

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	common "github.com/example/messenger/internal/adapters/common"
	"github.com/example/messenger/internal/models"
)

// MailchimpTransport posts to the Mailchimp Transactional (Mandrill) API.
type MailchimpTransport struct {
	httpTransport
	apiKey string
}

var _ common.Transport = (*MailchimpTransport)(nil)

// NewMailchimp requires auth "apiKey".
func NewMailchimp(settings models.Settings, logger zerolog.Logger, opts ...HTTPOption) (*MailchimpTransport, error) {
	if err := requireAuth(models.TransportMailchimp, settings, "apiKey"); err != nil {
		return nil, err
	}
	return &MailchimpTransport{
		httpTransport: newHTTPTransport(models.TransportMailchimp, "https://mandrillapp.com/api/1.0", settings, logger, opts),
		apiKey:        settings.AuthValue("apiKey"),
	}, nil
}

// MailchimpFactory adapts NewMailchimp to common.Factory.
func MailchimpFactory(settings models.Settings, logger zerolog.Logger) (common.Transport, error) {
	return NewMailchimp(settings, logger)
}

type mandrillRecipient struct {
	Email string `json:"email"`
	Type  string `json:"type"`
}

type mandrillAttachment struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

type mandrillMessage struct {
	FromEmail   string               `json:"from_email"`
	To          []mandrillRecipient  `json:"to"`
	Subject     string               `json:"subject"`
	HTML        string               `json:"html,omitempty"`
	Text        string               `json:"text,omitempty"`
	Attachments []mandrillAttachment `json:"attachments,omitempty"`
}

type mandrillResult struct {
	Email        string `json:"email"`
	Status       string `json:"status"`
	RejectReason string `json:"reject_reason"`
}

// Send posts the message; per-recipient "rejected" or "invalid" results fail
// the send.
func (m *MailchimpTransport) Send(ctx context.Context, env *models.Envelope) error {
	msg := mandrillMessage{
		FromEmail: env.From,
		Subject:   env.Subject,
		HTML:      env.HTML,
		Text:      env.Text,
	}
	for _, addr := range env.To {
		msg.To = append(msg.To, mandrillRecipient{Email: addr, Type: "to"})
	}
	for _, att := range env.Attachments {
		msg.Attachments = append(msg.Attachments, mandrillAttachment{Type: att.MediaType(), Name: att.Filename, Content: att.Base64()})
	}

	req, err := common.NewJSONRequest(ctx, http.MethodPost, m.baseURL+"/messages/send", map[string]any{
		"key":     m.apiKey,
		"message": msg,
	})
	if err != nil {
		return m.fail(err)
	}

	body, err := common.Do(m.client, req)
	if err != nil {
		return m.fail(err)
	}

	var results []mandrillResult
	if err := json.Unmarshal([]byte(body), &results); err != nil {
		return m.fail(fmt.Errorf("decode response: %w", err))
	}
	for _, r := range results {
		if r.Status == "rejected" || r.Status == "invalid" {
			return m.fail(&common.HTTPStatusError{
				StatusCode: http.StatusUnprocessableEntity,
				Body:       fmt.Sprintf("%s %s: %s", r.Email, r.Status, r.RejectReason),
			})
		}
	}
	m.logger.Debug().Int("recipients", len(results)).Msg("mailchimp message accepted")
	return nil
}
