package sms

import (
	"context"
	"net/url"
	"reflect"

	"github.com/rs/zerolog"

	common "github.com/example/messenger/internal/adapters/common"
	"github.com/example/messenger/internal/logger"
	"github.com/example/messenger/internal/models"
	"github.com/example/messenger/internal/providers/twilio"
)

// TwilioTransport sends one Twilio message per recipient.
type TwilioTransport struct {
	logger zerolog.Logger
	client *twilio.Client
}

var _ common.Transport = (*TwilioTransport)(nil)

// NewTwilio requires auth "sid" and "token".
func NewTwilio(settings models.Settings, log zerolog.Logger, opts ...twilio.Option) (*TwilioTransport, error) {
	client, err := twilio.New(settings, opts...)
	if err != nil {
		return nil, common.NewConfiguration("twilio sms transport: %v", err)
	}
	if reflect.ValueOf(log).IsZero() {
		log = zerolog.Nop()
	}
	return &TwilioTransport{
		logger: log.With().Str("transport", models.TransportTwilioSMS).Logger(),
		client: client,
	}, nil
}

// TwilioFactory adapts NewTwilio to common.Factory.
func TwilioFactory(settings models.Settings, log zerolog.Logger) (common.Transport, error) {
	return NewTwilio(settings, log)
}

// Send posts to the Messages resource. Extra fields are forwarded as Twilio
// parameters, e.g. "status_callback" becomes StatusCallback.
func (t *TwilioTransport) Send(ctx context.Context, env *models.Envelope) error {
	body := messageBody(env)
	for _, raw := range env.To {
		to, err := destination(models.TransportTwilioSMS, raw)
		if err != nil {
			return err
		}
		params := url.Values{}
		params.Set("From", env.From)
		params.Set("To", to)
		params.Set("Body", body)
		twilio.ExtraParams(params, env.Extra, "to", "from", "body")

		res, err := t.client.Create(ctx, "Messages", params)
		if err != nil {
			return common.NewTransport(models.TransportTwilioSMS, "Twilio SMS send failed: "+err.Error(), err)
		}
		t.logger.Debug().Str("sid", res.SID).Str("status", res.Status).Str("to", logger.RedactPhone(to)).Msg("twilio message queued")
	}
	return nil
}
