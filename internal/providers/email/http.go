package email

import (
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/rs/zerolog"

	common "github.com/example/messenger/internal/adapters/common"
	"github.com/example/messenger/internal/models"
)

// HTTPOption customises the HTTP-based email transports.
type HTTPOption func(*httpTransport)

// WithHTTPClient overrides the HTTP client used to reach the provider API.
func WithHTTPClient(doer common.HTTPDoer) HTTPOption {
	return func(h *httpTransport) {
		if doer != nil {
			h.client = doer
		}
	}
}

// httpTransport is the plumbing shared by Mailgun, SendGrid and Mailchimp.
type httpTransport struct {
	name    string
	baseURL string
	client  common.HTTPDoer
	logger  zerolog.Logger
}

func newHTTPTransport(name, defaultBaseURL string, settings models.Settings, logger zerolog.Logger, opts []HTTPOption) httpTransport {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	h := httpTransport{
		name:    name,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger.With().Str("transport", name).Logger(),
	}
	if base := settings.Option("base_url"); base != "" {
		h.baseURL = strings.TrimRight(base, "/")
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&h)
		}
	}
	return h
}

func (h httpTransport) fail(err error) error {
	return common.NewTransport(h.name, fmt.Sprintf("%s send failed: %v", h.name, err), err)
}

func requireAuth(name string, settings models.Settings, keys ...string) error {
	for _, key := range keys {
		if settings.AuthValue(key) == "" {
			return common.NewConfiguration("%s transport: auth %q is required", name, key)
		}
	}
	return nil
}
