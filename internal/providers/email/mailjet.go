package email

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	common "github.com/example/messenger/internal/adapters/common"
	"github.com/example/messenger/internal/models"
)

// MailjetTransport posts to the Mailjet v3.1 send API.
type MailjetTransport struct {
	httpTransport
	publicKey  string
	privateKey string
}

var _ common.Transport = (*MailjetTransport)(nil)

// NewMailjet requires auth "apiKeyPublic" and "apiKeyPrivate".
func NewMailjet(settings models.Settings, logger zerolog.Logger, opts ...HTTPOption) (*MailjetTransport, error) {
	if err := requireAuth(models.TransportMailjetEmail, settings, "apiKeyPublic", "apiKeyPrivate"); err != nil {
		return nil, err
	}
	return &MailjetTransport{
		httpTransport: newHTTPTransport(models.TransportMailjetEmail, "https://api.mailjet.com/v3.1", settings, logger, opts),
		publicKey:     settings.AuthValue("apiKeyPublic"),
		privateKey:    settings.AuthValue("apiKeyPrivate"),
	}, nil
}

// MailjetFactory adapts NewMailjet to common.Factory.
func MailjetFactory(settings models.Settings, logger zerolog.Logger) (common.Transport, error) {
	return NewMailjet(settings, logger)
}

type mailjetAddress struct {
	Email string `json:"Email"`
}

type mailjetAttachment struct {
	ContentType   string `json:"ContentType"`
	Filename      string `json:"Filename"`
	Base64Content string `json:"Base64Content"`
}

type mailjetMessage struct {
	From        mailjetAddress      `json:"From"`
	To          []mailjetAddress    `json:"To"`
	Subject     string              `json:"Subject"`
	TextPart    string              `json:"TextPart,omitempty"`
	HTMLPart    string              `json:"HTMLPart,omitempty"`
	Attachments []mailjetAttachment `json:"Attachments,omitempty"`
}

type mailjetRequest struct {
	Messages []mailjetMessage `json:"Messages"`
}

type mailjetResponse struct {
	Messages []struct {
		Status string `json:"Status"`
		Errors []struct {
			ErrorMessage string `json:"ErrorMessage"`
		} `json:"Errors"`
	} `json:"Messages"`
}

// Send posts one message addressed to every recipient.
func (m *MailjetTransport) Send(ctx context.Context, env *models.Envelope) error {
	msg := mailjetMessage{
		From:     mailjetAddress{Email: env.From},
		Subject:  env.Subject,
		TextPart: env.Text,
		HTMLPart: env.HTML,
	}
	for _, addr := range env.To {
		msg.To = append(msg.To, mailjetAddress{Email: addr})
	}
	for _, att := range env.Attachments {
		msg.Attachments = append(msg.Attachments, mailjetAttachment{
			ContentType:   att.MediaType(),
			Filename:      att.Filename,
			Base64Content: att.Base64(),
		})
	}

	req, err := common.NewJSONRequest(ctx, http.MethodPost, m.baseURL+"/send", mailjetRequest{Messages: []mailjetMessage{msg}})
	if err != nil {
		return m.fail(err)
	}
	req.SetBasicAuth(m.publicKey, m.privateKey)

	body, err := common.Do(m.client, req)
	if err != nil {
		return m.fail(err)
	}

	var out mailjetResponse
	if err := json.Unmarshal([]byte(body), &out); err == nil {
		for _, res := range out.Messages {
			if strings.EqualFold(res.Status, "error") {
				var reasons []string
				for _, e := range res.Errors {
					reasons = append(reasons, e.ErrorMessage)
				}
				return m.fail(fmt.Errorf("message rejected: %s", strings.Join(reasons, "; ")))
			}
		}
	}
	m.logger.Debug().Int("recipients", len(env.To)).Msg("mailjet message accepted")
	return nil
}
