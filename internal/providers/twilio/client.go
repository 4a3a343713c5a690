// Package twilio is the REST client shared by the Twilio SMS, voice and
// WhatsApp transports.
package twilio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	common "github.com/example/messenger/internal/adapters/common"
	"github.com/example/messenger/internal/models"
)

// DefaultBaseURL is the Twilio REST API root.
const DefaultBaseURL = "https://api.twilio.com/2010-04-01"

// Option customises the client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used to talk to Twilio.
func WithHTTPClient(doer common.HTTPDoer) Option {
	return func(c *Client) {
		if doer != nil {
			c.httpClient = doer
		}
	}
}

// WithBaseURL sets the base Twilio API URL. Useful for tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if strings.TrimSpace(baseURL) != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// Client posts form-encoded resources to one Twilio account.
type Client struct {
	accountSID string
	authToken  string
	baseURL    string
	httpClient common.HTTPDoer
}

// New builds a client from transport settings. Auth keys "sid" and "token"
// are required; option "base_url" overrides the API root.
func New(settings models.Settings, opts ...Option) (*Client, error) {
	sid := settings.AuthValue("sid")
	if sid == "" {
		return nil, errors.New("account sid is required")
	}
	token := settings.AuthValue("token")
	if token == "" {
		return nil, errors.New("auth token is required")
	}

	c := &Client{
		accountSID: sid,
		authToken:  token,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	WithBaseURL(settings.Option("base_url"))(c)

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Result is the subset of a Twilio resource response the transports log.
type Result struct {
	SID    string
	Status string
}

// Create posts params to the account sub-resource, e.g. "Messages" or
// "Calls". Non-2xx responses return an error wrapping *common.HTTPStatusError.
func (c *Client) Create(ctx context.Context, resource string, params url.Values) (*Result, error) {
	endpoint := fmt.Sprintf("%s/Accounts/%s/%s.json", c.baseURL, url.PathEscape(c.accountSID), resource)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	body, err := common.Do(c.httpClient, req)
	parsed := parseBody(body)
	if err != nil {
		var statusErr *common.HTTPStatusError
		if errors.As(err, &statusErr) && parsed.ErrorCode > 0 {
			return nil, fmt.Errorf("error %d: %s: %w", parsed.ErrorCode, parsed.Message, err)
		}
		return nil, err
	}
	return &Result{SID: parsed.SID, Status: parsed.Status}, nil
}

type responseBody struct {
	SID       string `json:"sid"`
	Status    string `json:"status"`
	ErrorCode int    `json:"code"`
	Message   string `json:"message"`
}

func parseBody(body string) responseBody {
	if strings.TrimSpace(body) == "" {
		return responseBody{}
	}

	var parsed responseBody
	if err := json.Unmarshal([]byte(body), &parsed); err == nil {
		return parsed
	}

	var generic map[string]any
	if err := json.Unmarshal([]byte(body), &generic); err != nil {
		return responseBody{}
	}

	result := responseBody{}
	if v, ok := generic["sid"].(string); ok {
		result.SID = v
	}
	if v, ok := generic["status"].(string); ok {
		result.Status = v
	}
	if v, ok := generic["code"].(string); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			result.ErrorCode = n
		}
	}
	if v, ok := generic["message"].(string); ok {
		result.Message = v
	}
	return result
}

// ExtraParams copies envelope passthrough fields into Twilio parameters,
// converting snake_case keys to Twilio's PascalCase. Reserved keys are
// skipped.
func ExtraParams(params url.Values, extra map[string]any, reserved ...string) {
	for key, raw := range extra {
		key = strings.TrimSpace(key)
		value, ok := raw.(string)
		if key == "" || !ok || strings.TrimSpace(value) == "" {
			continue
		}
		if isReserved(key, reserved) {
			continue
		}
		params.Set(normalizeParam(key), strings.TrimSpace(value))
	}
}

func isReserved(key string, reserved []string) bool {
	for _, r := range reserved {
		if strings.EqualFold(key, r) {
			return true
		}
	}
	return false
}

func normalizeParam(key string) string {
	parts := strings.FieldsFunc(key, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
	if len(parts) == 1 {
		return strings.ToUpper(key[:1]) + key[1:]
	}
	for i, part := range parts {
		parts[i] = strings.ToUpper(part[:1]) + strings.ToLower(part[1:])
	}
	return strings.Join(parts, "")
}
