package sms

import (
	"context"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/rs/zerolog"

	common "github.com/example/messenger/internal/adapters/common"
	"github.com/example/messenger/internal/logger"
	"github.com/example/messenger/internal/models"
)

// MailjetBaseURL is the Mailjet SMS API root.
const MailjetBaseURL = "https://api.mailjet.com/v4"

// MailjetOption customises the Mailjet SMS transport.
type MailjetOption func(*MailjetTransport)

// WithMailjetHTTPClient overrides the HTTP client used to reach Mailjet.
func WithMailjetHTTPClient(doer common.HTTPDoer) MailjetOption {
	return func(t *MailjetTransport) {
		if doer != nil {
			t.client = doer
		}
	}
}

// MailjetTransport sends one Mailjet SMS per recipient.
type MailjetTransport struct {
	logger  zerolog.Logger
	token   string
	baseURL string
	client  common.HTTPDoer
}

var _ common.Transport = (*MailjetTransport)(nil)

// NewMailjet requires auth "apiKey", the SMS bearer token. Option "base_url"
// overrides the API root.
func NewMailjet(settings models.Settings, log zerolog.Logger, opts ...MailjetOption) (*MailjetTransport, error) {
	token := settings.AuthValue("apiKey")
	if token == "" {
		return nil, common.NewConfiguration("mailjet sms transport: apiKey is required")
	}
	if reflect.ValueOf(log).IsZero() {
		log = zerolog.Nop()
	}
	t := &MailjetTransport{
		logger:  log.With().Str("transport", models.TransportMailjetSMS).Logger(),
		token:   token,
		baseURL: MailjetBaseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	if base := settings.Option("base_url"); base != "" {
		t.baseURL = strings.TrimRight(base, "/")
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t, nil
}

// MailjetFactory adapts NewMailjet to common.Factory.
func MailjetFactory(settings models.Settings, log zerolog.Logger) (common.Transport, error) {
	return NewMailjet(settings, log)
}

type mailjetSMS struct {
	From string `json:"From"`
	To   string `json:"To"`
	Text string `json:"Text"`
}

// Send implements common.Transport.
func (t *MailjetTransport) Send(ctx context.Context, env *models.Envelope) error {
	text := messageBody(env)
	for _, raw := range env.To {
		to, err := destination(models.TransportMailjetSMS, raw)
		if err != nil {
			return err
		}
		req, err := common.NewJSONRequest(ctx, http.MethodPost, t.baseURL+"/sms-send", mailjetSMS{From: env.From, To: to, Text: text})
		if err != nil {
			return t.fail(err)
		}
		req.Header.Set("Authorization", "Bearer "+t.token)
		if _, err := common.Do(t.client, req); err != nil {
			return t.fail(err)
		}
		t.logger.Debug().Str("to", logger.RedactPhone(to)).Msg("mailjet sms accepted")
	}
	return nil
}

func (t *MailjetTransport) fail(err error) error {
	return common.NewTransport(models.TransportMailjetSMS, "Mailjet SMS send failed: "+err.Error(), err)
}
