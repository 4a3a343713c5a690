package factory

import (
	"testing"

	"github.com/example/messenger/internal/models"
)

func TestDefaultsCoverEveryClassifiedTransport(t *testing.T) {
	defaults := Defaults()
	names := []string{
		models.TransportSMTP, models.TransportSES, models.TransportMailgun, models.TransportMailchimp,
		models.TransportSendgrid, models.TransportResend, models.TransportTwilioSMS, models.TransportTelnyxSMS,
		models.TransportSNS, models.TransportTwilioCall, models.TransportSlack, models.TransportTelegram,
		models.TransportTwilioWhatsApp, models.TransportMailjetEmail, models.TransportMailjetSMS, models.TransportMock,
	}
	for _, name := range names {
		if defaults[name] == nil {
			t.Fatalf("missing factory for %q", name)
		}
		if name == models.TransportMock {
			continue
		}
		if _, ok := models.ClassFor(name); !ok {
			t.Fatalf("%q has no class", name)
		}
	}
	if len(defaults) != len(names) {
		t.Fatalf("expected %d factories, got %d", len(names), len(defaults))
	}
}

func TestDefaultsReturnsFreshMap(t *testing.T) {
	a := Defaults()
	delete(a, models.TransportSMTP)
	if Defaults()[models.TransportSMTP] == nil {
		t.Fatalf("Defaults must not share state between calls")
	}
}
