package common

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"
)

// DefaultRawBodyLimit defines the maximum number of characters retained from a
// provider response body when attaching it to an error.
const DefaultRawBodyLimit = 1024

// maxBodyBytes bounds how much of a provider response is read into memory.
const maxBodyBytes = 16 * 1024

// HTTPDoer is satisfied by *http.Client and by test doubles.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// TruncateRaw trims the supplied string to the specified rune limit. If limit
// is zero or negative it returns an empty string.
func TruncateRaw(raw string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(raw) <= limit {
		return raw
	}
	runes := []rune(raw)
	return string(runes[:limit])
}

// ReadBody reads at most 16KiB of the response body and closes it.
func ReadBody(resp *http.Response) (string, error) {
	if resp == nil || resp.Body == nil {
		return "", nil
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(data), nil
}

// CheckStatus returns an *HTTPStatusError for non-2xx responses, carrying a
// truncated copy of body.
func CheckStatus(resp *http.Response, body string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		trimmed = http.StatusText(resp.StatusCode)
	}
	return &HTTPStatusError{StatusCode: resp.StatusCode, Body: TruncateRaw(trimmed, DefaultRawBodyLimit)}
}

// NewJSONRequest encodes payload as the JSON body of a new request.
func NewJSONRequest(ctx context.Context, method, endpoint string, payload any) (*http.Request, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// Do sends req and returns the bounded response body. Transport failures are
// returned as-is so network causes stay in the chain; non-2xx responses
// return *HTTPStatusError.
func Do(doer HTTPDoer, req *http.Request) (string, error) {
	resp, err := doer.Do(req)
	if err != nil {
		return "", err
	}
	body, err := ReadBody(resp)
	if err != nil {
		return "", err
	}
	return body, CheckStatus(resp, body)
}
