// Package call holds the voice call transport backed by Twilio.
package call

import (
	"context"
	"encoding/xml"
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

// DefaultVoice is used when neither the envelope nor option "voice" names one.
const DefaultVoice = "Polly.Joanna"

// TwilioTransport places one call per recipient and reads the message aloud.
type TwilioTransport struct {
	logger zerolog.Logger
	client *twilio.Client
	voice  string
}

var _ common.Transport = (*TwilioTransport)(nil)

// NewTwilio requires auth "sid" and "token".
func NewTwilio(settings models.Settings, log zerolog.Logger, opts ...twilio.Option) (*TwilioTransport, error) {
	client, err := twilio.New(settings, opts...)
	if err != nil {
		return nil, common.NewConfiguration("twilio call transport: %v", err)
	}
	if reflect.ValueOf(log).IsZero() {
		log = zerolog.Nop()
	}
	voice := settings.Option("voice")
	if voice == "" {
		voice = DefaultVoice
	}
	return &TwilioTransport{
		logger: log.With().Str("transport", models.TransportTwilioCall).Logger(),
		client: client,
		voice:  voice,
	}, nil
}

// TwilioFactory adapts NewTwilio to common.Factory.
func TwilioFactory(settings models.Settings, log zerolog.Logger) (common.Transport, error) {
	return NewTwilio(settings, log)
}

// Send implements common.Transport.
func (t *TwilioTransport) Send(ctx context.Context, env *models.Envelope) error {
	voice := strings.TrimSpace(env.Voice)
	if voice == "" {
		voice = t.voice
	}
	twiml, err := buildTwiML(speechText(env), voice)
	if err != nil {
		return common.NewTransport(models.TransportTwilioCall, "Twilio call failed: "+err.Error(), err)
	}

	for _, to := range env.To {
		params := url.Values{}
		params.Set("From", env.From)
		params.Set("To", to)
		params.Set("Twiml", twiml)
		twilio.ExtraParams(params, env.Extra, "to", "from", "twiml", "url")

		res, err := t.client.Create(ctx, "Calls", params)
		if err != nil {
			return common.NewTransport(models.TransportTwilioCall, "Twilio call failed: "+err.Error(), err)
		}
		t.logger.Debug().Str("sid", res.SID).Str("to", logger.RedactPhone(to)).Msg("twilio call created")
	}
	return nil
}

func speechText(env *models.Envelope) string {
	if env.HTML != "" {
		return util.HTMLToText(env.HTML)
	}
	return strings.TrimSpace(env.Text)
}

type sayElement struct {
	Voice string `xml:"voice,attr"`
	Text  string `xml:",chardata"`
}

type pauseElement struct {
	Length int `xml:"length,attr"`
}

type twimlResponse struct {
	XMLName xml.Name     `xml:"Response"`
	Pause   pauseElement `xml:"Pause"`
	Say     sayElement   `xml:"Say"`
}

// buildTwiML renders a one second pause followed by <Say>. Text is escaped by
// the encoder.
func buildTwiML(text, voice string) (string, error) {
	out, err := xml.Marshal(twimlResponse{
		Pause: pauseElement{Length: 1},
		Say:   sayElement{Voice: voice, Text: text},
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}
