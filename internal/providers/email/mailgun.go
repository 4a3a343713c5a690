package email

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	common "github.com/example/messenger/internal/adapters/common"
	"github.com/example/messenger/internal/models"
)

// MailgunTransport posts to the Mailgun messages API.
type MailgunTransport struct {
	httpTransport
	apiKey string
	domain string
}

var _ common.Transport = (*MailgunTransport)(nil)

// NewMailgun requires auth "apiKey" and "domain". Option "base_url" selects
// the region endpoint, e.g. https://api.eu.mailgun.net/v3.
func NewMailgun(settings models.Settings, logger zerolog.Logger, opts ...HTTPOption) (*MailgunTransport, error) {
	if err := requireAuth(models.TransportMailgun, settings, "apiKey", "domain"); err != nil {
		return nil, err
	}
	return &MailgunTransport{
		httpTransport: newHTTPTransport(models.TransportMailgun, "https://api.mailgun.net/v3", settings, logger, opts),
		apiKey:        settings.AuthValue("apiKey"),
		domain:        settings.AuthValue("domain"),
	}, nil
}

// MailgunFactory adapts NewMailgun to common.Factory.
func MailgunFactory(settings models.Settings, logger zerolog.Logger) (common.Transport, error) {
	return NewMailgun(settings, logger)
}

// Send posts a form-encoded message.
func (m *MailgunTransport) Send(ctx context.Context, env *models.Envelope) error {
	form := url.Values{}
	form.Set("from", env.From)
	for _, to := range env.To {
		form.Add("to", to)
	}
	form.Set("subject", env.Subject)
	if env.HTML != "" {
		form.Set("html", env.HTML)
	}
	if env.Text != "" {
		form.Set("text", env.Text)
	}

	endpoint := fmt.Sprintf("%s/%s/messages", m.baseURL, url.PathEscape(m.domain))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return m.fail(err)
	}
	req.SetBasicAuth("api", m.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if _, err := common.Do(m.client, req); err != nil {
		return m.fail(err)
	}
	m.logger.Debug().Int("recipients", len(env.To)).Msg("mailgun message accepted")
	return nil
}
