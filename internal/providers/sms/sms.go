// Package sms holds the SMS transports: Twilio, Telnyx and Amazon SNS.
package sms

import (
	"strings"

	common "github.com/example/messenger/internal/adapters/common"
	"github.com/example/messenger/internal/models"
	"github.com/example/messenger/internal/util"
)

// messageBody prefers the plain text part and otherwise flattens the HTML.
func messageBody(env *models.Envelope) string {
	if text := strings.TrimSpace(env.Text); text != "" {
		return text
	}
	return util.HTMLToText(env.HTML)
}

// destination returns to in E.164 form, adding the leading plus when missing.
func destination(transport, to string) (string, error) {
	number, err := util.NormalizeE164(to)
	if err != nil {
		return "", common.NewTransport(transport, err.Error(), err)
	}
	return number, nil
}
