package models

import (
	"strings"
	"time"
)

// Class is the message medium served by a transport.
type Class string

const (
	ClassEmail Class = "email"
	ClassSMS   Class = "sms"
	ClassCall  Class = "call"
	ClassChat  Class = "chat"
)

// Built-in transport names.
const (
	TransportSES            = "ses"
	TransportSMTP           = "smtp"
	TransportMailgun        = "mailgun"
	TransportMailchimp      = "mailchimp"
	TransportSendgrid       = "sendgrid"
	TransportResend         = "resend"
	TransportMailjetEmail   = "mailjetEmail"
	TransportMailjetSMS     = "mailjetSMS"
	TransportSNS            = "sns"
	TransportTwilioSMS      = "twilioSMS"
	TransportTelnyxSMS      = "telnyxSMS"
	TransportTwilioCall     = "twilioCall"
	TransportSlack          = "slack"
	TransportTelegram       = "telegram"
	TransportTwilioWhatsApp = "twilioWhatsApp"
	TransportMock           = "mock"
)

var classification = map[Class][]string{
	ClassEmail: {TransportSES, TransportMailgun, TransportMailchimp, TransportSMTP, TransportSendgrid, TransportResend, TransportMailjetEmail},
	ClassSMS:   {TransportTwilioSMS, TransportMailjetSMS, TransportTelnyxSMS, TransportSNS},
	ClassCall:  {TransportTwilioCall},
	ClassChat:  {TransportSlack, TransportTelegram, TransportTwilioWhatsApp},
}

// ClassFor looks a transport name up in the static classification table.
func ClassFor(name string) (Class, bool) {
	for class, names := range classification {
		for _, n := range names {
			if n == name {
				return class, true
			}
		}
	}
	return "", false
}

// ParseClass normalises a class string. The second result is false for values
// outside the known set.
func ParseClass(value string) (Class, bool) {
	c := Class(strings.ToLower(strings.TrimSpace(value)))
	switch c {
	case ClassEmail, ClassSMS, ClassCall, ClassChat:
		return c, true
	default:
		return c, false
	}
}

// RetrySettings overrides the dispatch retry policy for one transport. Nil or
// zero fields fall back to the policy defaults.
type RetrySettings struct {
	MaxRetries   *int          `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	InitialDelay time.Duration `json:"initial_delay,omitempty" yaml:"initial_delay,omitempty"`
	MaxDelay     time.Duration `json:"max_delay,omitempty" yaml:"max_delay,omitempty"`
	Factor       float64       `json:"factor,omitempty" yaml:"factor,omitempty"`
}

// Settings holds provider credentials, envelope defaults and provider options.
type Settings struct {
	Auth     map[string]string `json:"auth,omitempty" yaml:"auth,omitempty"`
	Defaults *Envelope         `json:"defaults,omitempty" yaml:"defaults,omitempty"`
	Retry    *RetrySettings    `json:"retry,omitempty" yaml:"retry,omitempty"`
	Options  map[string]string `json:"options,omitempty" yaml:"options,omitempty"`
}

// AuthValue returns the trimmed credential stored under key.
func (s Settings) AuthValue(key string) string {
	return strings.TrimSpace(s.Auth[key])
}

// Option returns the trimmed provider option stored under key.
func (s Settings) Option(key string) string {
	return strings.TrimSpace(s.Options[key])
}

// TransportConfig describes one configured transport.
type TransportConfig struct {
	Name     string   `json:"name" yaml:"name"`
	Class    Class    `json:"class,omitempty" yaml:"class,omitempty"`
	Settings Settings `json:"settings" yaml:"settings"`
}

// Classify returns a copy of transports with every empty Class filled from
// ClassFor. Unknown names keep an empty class.
func Classify(transports []TransportConfig) []TransportConfig {
	out := make([]TransportConfig, len(transports))
	for i, t := range transports {
		if t.Class == "" {
			t.Class, _ = ClassFor(t.Name)
		}
		out[i] = t
	}
	return out
}

// Filter selects configured transports by name and/or class. Both fields set
// means both must match; one field set matches on that field alone; a zero
// Filter matches nothing.
type Filter struct {
	Name  string `json:"name,omitempty" yaml:"name,omitempty"`
	Class Class  `json:"class,omitempty" yaml:"class,omitempty"`
}

// Matches reports whether t satisfies the filter.
func (f Filter) Matches(t TransportConfig) bool {
	switch {
	case f.Name != "" && f.Class != "":
		return t.Name == f.Name && t.Class == f.Class
	case f.Name != "":
		return t.Name == f.Name
	case f.Class != "":
		return t.Class == f.Class
	default:
		return false
	}
}

// Select returns the transports matching any of filters. With no filters every
// transport is selected.
func Select(transports []TransportConfig, filters ...Filter) []TransportConfig {
	if len(filters) == 0 {
		return append([]TransportConfig(nil), transports...)
	}
	var out []TransportConfig
	for _, t := range transports {
		for _, f := range filters {
			if f.Matches(t) {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

// FilterNames renders the requested filters for error messages, using the
// class when a filter carries no name.
func FilterNames(filters []Filter) string {
	names := make([]string, 0, len(filters))
	for _, f := range filters {
		if f.Name != "" {
			names = append(names, f.Name)
			continue
		}
		names = append(names, string(f.Class))
	}
	return strings.Join(names, ", ")
}
