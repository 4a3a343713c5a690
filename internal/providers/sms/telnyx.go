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

// TelnyxBaseURL is the Telnyx v2 API root.
const TelnyxBaseURL = "https://api.telnyx.com/v2"

// TelnyxOption customises the Telnyx transport.
type TelnyxOption func(*TelnyxTransport)

// WithTelnyxHTTPClient overrides the HTTP client used to reach Telnyx.
func WithTelnyxHTTPClient(doer common.HTTPDoer) TelnyxOption {
	return func(t *TelnyxTransport) {
		if doer != nil {
			t.client = doer
		}
	}
}

// TelnyxTransport posts one message per recipient to the Telnyx messaging API.
type TelnyxTransport struct {
	logger  zerolog.Logger
	apiKey  string
	baseURL string
	client  common.HTTPDoer
}

var _ common.Transport = (*TelnyxTransport)(nil)

// NewTelnyx requires auth "apiKey"; option "base_url" overrides the API root.
func NewTelnyx(settings models.Settings, log zerolog.Logger, opts ...TelnyxOption) (*TelnyxTransport, error) {
	apiKey := settings.AuthValue("apiKey")
	if apiKey == "" {
		return nil, common.NewConfiguration("telnyx sms transport: apiKey is required")
	}
	if reflect.ValueOf(log).IsZero() {
		log = zerolog.Nop()
	}
	t := &TelnyxTransport{
		logger:  log.With().Str("transport", models.TransportTelnyxSMS).Logger(),
		apiKey:  apiKey,
		baseURL: TelnyxBaseURL,
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

// TelnyxFactory adapts NewTelnyx to common.Factory.
func TelnyxFactory(settings models.Settings, log zerolog.Logger) (common.Transport, error) {
	return NewTelnyx(settings, log)
}

type telnyxMessage struct {
	From string `json:"from"`
	To   string `json:"to"`
	Text string `json:"text"`
}

// Send implements common.Transport.
func (t *TelnyxTransport) Send(ctx context.Context, env *models.Envelope) error {
	text := messageBody(env)
	for _, raw := range env.To {
		to, err := destination(models.TransportTelnyxSMS, raw)
		if err != nil {
			return err
		}
		req, err := common.NewJSONRequest(ctx, http.MethodPost, t.baseURL+"/messages", telnyxMessage{From: env.From, To: to, Text: text})
		if err != nil {
			return t.fail(err)
		}
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
		if _, err := common.Do(t.client, req); err != nil {
			return t.fail(err)
		}
		t.logger.Debug().Str("to", logger.RedactPhone(to)).Msg("telnyx message accepted")
	}
	return nil
}

func (t *TelnyxTransport) fail(err error) error {
	return common.NewTransport(models.TransportTelnyxSMS, "Telnyx SMS send failed: "+err.Error(), err)
}
