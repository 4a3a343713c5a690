// Package factory lists the built-in transport constructors keyed by name.
package factory

import (
	common "github.com/example/messenger/internal/adapters/common"
	"github.com/example/messenger/internal/models"
	"github.com/example/messenger/internal/providers/call"
	"github.com/example/messenger/internal/providers/chat"
	emailprovider "github.com/example/messenger/internal/providers/email"
	"github.com/example/messenger/internal/providers/mock"
	smsprovider "github.com/example/messenger/internal/providers/sms"
)

// Defaults returns a fresh map of every built-in transport factory.
func Defaults() map[string]common.Factory {
	return map[string]common.Factory{
		models.TransportSMTP:         emailprovider.SMTPFactory,
		models.TransportSES:          emailprovider.SESFactory,
		models.TransportMailgun:      emailprovider.MailgunFactory,
		models.TransportMailchimp:    emailprovider.MailchimpFactory,
		models.TransportSendgrid:     emailprovider.SendgridFactory,
		models.TransportResend:       emailprovider.ResendFactory,
		models.TransportMailjetEmail: emailprovider.MailjetFactory,

		models.TransportTwilioSMS:  smsprovider.TwilioFactory,
		models.TransportTelnyxSMS:  smsprovider.TelnyxFactory,
		models.TransportMailjetSMS: smsprovider.MailjetFactory,
		models.TransportSNS:        smsprovider.SNSFactory,

		models.TransportTwilioCall: call.TwilioFactory,

		models.TransportSlack:          chat.SlackFactory,
		models.TransportTelegram:       chat.TelegramFactory,
		models.TransportTwilioWhatsApp: chat.WhatsAppFactory,

		models.TransportMock: mock.Factory,
	}
}
