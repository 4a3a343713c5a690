package security

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	common "github.com/example/messenger/internal/adapters/common"
)

// MaxRedirects caps how many redirects a secure client follows.
const MaxRedirects = 5

// ErrProtocolRedirect is returned when a redirect changes the URL scheme.
var ErrProtocolRedirect = common.NewConfiguration("Protocol redirect not allowed")

// NewClient returns an HTTP client pinned to the scheme of target. Redirects
// are followed up to MaxRedirects and refused when they switch protocol.
// A non-positive timeout selects DefaultTimeout.
func NewClient(target *url.URL, timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	scheme := strings.ToLower(target.Scheme)
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= MaxRedirects {
				return errors.New("security: stopped after 5 redirects")
			}
			if strings.ToLower(req.URL.Scheme) != scheme {
				return ErrProtocolRedirect
			}
			return nil
		},
	}
}

// AcceptStatus reports whether a fetch response status counts as success.
// Redirect statuses are accepted.
func AcceptStatus(code int) bool {
	return code >= 200 && code < 400
}
