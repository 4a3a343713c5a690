// Package chat holds the chat transports: Slack, Telegram and Twilio WhatsApp.
package chat

import (
	"net/http"
	"time"

	common "github.com/example/messenger/internal/adapters/common"
)

// Option customises the HTTP-based chat transports.
type Option func(*httpClient)

// WithHTTPClient overrides the HTTP client used by Slack and Telegram.
func WithHTTPClient(doer common.HTTPDoer) Option {
	return func(c *httpClient) {
		if doer != nil {
			c.doer = doer
		}
	}
}

type httpClient struct {
	doer common.HTTPDoer
}

func newHTTPClient(opts []Option) httpClient {
	c := httpClient{doer: &http.Client{Timeout: 30 * time.Second}}
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	return c
}
