package templates

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	common "github.com/example/messenger/internal/adapters/common"
	"github.com/example/messenger/internal/security"
)

// MaxTemplateBytes caps the size of a fetched template body.
const MaxTemplateBytes = 1 << 20

// ErrTemplateTooLarge reports a remote template body over MaxTemplateBytes.
var ErrTemplateTooLarge = errors.New("template body too large")

// content returns the remote content of an async template, consulting the
// cache and rate limiter first.
func (e *Engine) content(ctx context.Context, tpl Template) (string, error) {
	req := tpl.Request
	key := cacheKey(req)
	logger := e.logger.With().Str("template", tpl.Name).Str("url", req.URL).Logger()

	cached, ok, err := e.cache.Get(ctx, key)
	if err != nil {
		logger.Warn().Err(err).Msg("template cache read failed")
	}
	if ok && cached != "" {
		logger.Debug().Msg("template cache hit")
		return cached, nil
	}
	logger.Debug().Msg("template cache miss")

	allowed, err := e.limiter.Allow(ctx, req.URL)
	if err != nil {
		return "", e.fetchError(tpl, err)
	}
	if !allowed {
		wait, _ := e.limiter.ResetIn(ctx, req.URL)
		seconds := int(math.Ceil(wait.Seconds()))
		logger.Warn().Int("retry_in_seconds", seconds).Msg("template fetch rate limited")
		return "", common.NewTemplate(
			fmt.Sprintf("Rate limit exceeded for template URL. Try again in %d seconds", seconds),
			map[string]any{"url": req.URL, "retry_in_seconds": seconds}, nil)
	}

	target, err := security.ValidateURL(req.URL, e.cfg.URLValidation)
	if err != nil {
		logger.Warn().Err(err).Msg("template url rejected")
		return "", err
	}

	body, err := e.fetch(ctx, target, req)
	if err != nil {
		logger.Error().Err(err).Msg("template fetch failed")
		return "", e.fetchError(tpl, err)
	}

	content, err := resolve(body, req.Resolve)
	if err != nil {
		logger.Error().Err(err).Msg("template content unresolved")
		return "", err
	}
	if content == "" {
		return "", noContent(tpl.Name)
	}

	if err := e.cache.Set(ctx, key, content, e.cfg.CacheTTL); err != nil {
		logger.Warn().Err(err).Msg("template cache write failed")
	}
	return content, nil
}

func (e *Engine) fetchError(tpl Template, err error) error {
	return common.NewTemplate(
		fmt.Sprintf("Error fetching async template %q: %v", tpl.Name, err),
		map[string]any{"request": *tpl.Request}, err)
}

func (e *Engine) fetch(ctx context.Context, target *url.URL, req *Request) ([]byte, error) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}

	body, contentType, err := encodeData(req.Data)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := security.NewClient(target, e.cfg.URLValidation.Timeout).Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxTemplateBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if !security.AcceptStatus(resp.StatusCode) {
		return nil, &common.HTTPStatusError{
			StatusCode: resp.StatusCode,
			Body:       common.TruncateRaw(string(data), common.DefaultRawBodyLimit),
		}
	}
	if len(data) > MaxTemplateBytes {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrTemplateTooLarge, MaxTemplateBytes)
	}
	return data, nil
}

func encodeData(data any) (io.Reader, string, error) {
	switch v := data.(type) {
	case nil:
		return nil, "", nil
	case string:
		return strings.NewReader(v), "", nil
	case []byte:
		return bytes.NewReader(v), "", nil
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, "", fmt.Errorf("encode request data: %w", err)
		}
		return bytes.NewReader(encoded), "application/json", nil
	}
}

func cacheKey(req *Request) string {
	if req.Resolve == "" {
		return req.URL
	}
	return req.URL + ":" + req.Resolve
}

// resolve walks path through the JSON document in body. Without a path the
// raw body is the content.
func resolve(body []byte, path string) (string, error) {
	if path == "" {
		return string(body), nil
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", common.NewTemplate(fmt.Sprintf("Could not resolve path %q: response is not JSON", path), map[string]any{"resolve": path}, err)
	}

	current := doc
	for _, segment := range strings.Split(path, ".") {
		next, ok := step(current, segment)
		if !ok {
			return "", common.NewTemplate(fmt.Sprintf("Could not resolve path %q in response", path), map[string]any{"resolve": path, "segment": segment}, nil)
		}
		current = next
	}

	switch v := current.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return "", common.NewTemplate(fmt.Sprintf("Resolved path %q is not a string", path), map[string]any{"resolve": path}, nil)
	}
}

func step(node any, segment string) (any, bool) {
	switch v := node.(type) {
	case map[string]any:
		next, ok := v[segment]
		return next, ok
	case []any:
		i, err := strconv.Atoi(segment)
		if err != nil || i < 0 || i >= len(v) {
			return nil, false
		}
		return v[i], true
	default:
		return nil, false
	}
}
