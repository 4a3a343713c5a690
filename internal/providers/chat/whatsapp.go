package chat

import (
	"context"
	"net/url"
	"reflect"
	"strings"

	"github.com/rs/zerolog"

	common "github.com/example/messenger/internal/adapters/common"
	"github.com/example/messenger/internal/logger"
	"github.com/example/messenger/internal/models"
	"github.com/example/messenger/internal/providers/twilio"
	"github.com/example/messenger/internal/util"
)

// WhatsAppTransport sends WhatsApp messages through Twilio's Messages resource.
type WhatsAppTransport struct {
	logger zerolog.Logger
	client *twilio.Client
}

var _ common.Transport = (*WhatsAppTransport)(nil)

// NewWhatsApp requires auth "sid" and "token".
func NewWhatsApp(settings models.Settings, log zerolog.Logger, opts ...twilio.Option) (*WhatsAppTransport, error) {
	client, err := twilio.New(settings, opts...)
	if err != nil {
		return nil, common.NewConfiguration("twilio whatsapp transport: %v", err)
	}
	if reflect.ValueOf(log).IsZero() {
		log = zerolog.Nop()
	}
	return &WhatsAppTransport{
		logger: log.With().Str("transport", models.TransportTwilioWhatsApp).Logger(),
		client: client,
	}, nil
}

// WhatsAppFactory adapts NewWhatsApp to common.Factory.
func WhatsAppFactory(settings models.Settings, log zerolog.Logger) (common.Transport, error) {
	return NewWhatsApp(settings, log)
}

// Send posts one message per recipient. Extra "media_url" attaches media.
func (w *WhatsAppTransport) Send(ctx context.Context, env *models.Envelope) error {
	body := strings.TrimSpace(env.Text)
	if body == "" {
		body = util.HTMLToText(env.HTML)
	}
	from := formatWhatsAppAddress(env.From)

	for _, to := range env.To {
		params := url.Values{}
		params.Set("From", from)
		params.Set("To", formatWhatsAppAddress(to))
		if body != "" {
			params.Set("Body", body)
		}
		twilio.ExtraParams(params, env.Extra, "to", "from", "body")

		res, err := w.client.Create(ctx, "Messages", params)
		if err != nil {
			return common.NewTransport(models.TransportTwilioWhatsApp, "Twilio WhatsApp send failed: "+err.Error(), err)
		}
		w.logger.Debug().Str("sid", res.SID).Str("status", res.Status).Str("to", logger.RedactPhone(to)).Msg("whatsapp message queued")
	}
	return nil
}

func formatWhatsAppAddress(number string) string {
	trimmed := strings.TrimSpace(number)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(trimmed), "whatsapp:") {
		return "whatsapp:" + strings.TrimSpace(trimmed[len("whatsapp:"):])
	}
	return "whatsapp:" + trimmed
}
