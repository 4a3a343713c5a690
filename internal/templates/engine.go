// Package templates registers Handlebars templates, renders them and hands
// the result to the send pipeline. A template may instead name a remote
// source whose content is fetched, validated against SSRF rules, rate limited
// and cached at send time.
package templates

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aymerick/raymond"
	"github.com/rs/zerolog"

	common "github.com/example/messenger/internal/adapters/common"
	"github.com/example/messenger/internal/cache"
	"github.com/example/messenger/internal/logger"
	"github.com/example/messenger/internal/models"
	"github.com/example/messenger/internal/ratelimit"
	"github.com/example/messenger/internal/security"
)

// Request describes where an async template's content lives. Method defaults
// to GET. Data is sent as the request body, JSON encoded unless it is a
// string. Resolve is a dot separated path into the JSON response.
type Request struct {
	Method  string            `json:"method,omitempty" yaml:"method,omitempty"`
	URL     string            `json:"url" yaml:"url"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Data    any               `json:"data,omitempty" yaml:"data,omitempty"`
	Resolve string            `json:"resolve,omitempty" yaml:"resolve,omitempty"`
}

// Definition is the input to Register. Text is used when HTML is empty.
type Definition struct {
	Name    string   `json:"name" yaml:"name"`
	HTML    string   `json:"html,omitempty" yaml:"html,omitempty"`
	Text    string   `json:"text,omitempty" yaml:"text,omitempty"`
	Request *Request `json:"request,omitempty" yaml:"request,omitempty"`
}

// Template is a registered template. Request is nil for static templates.
type Template struct {
	Name    string
	HTML    string
	Request *Request

	parsed *raymond.Template
}

// IsAsync reports whether the content is fetched at send time.
func (t Template) IsAsync() bool { return t.Request != nil }

// Sender is the send pipeline a rendered envelope is handed to.
type Sender interface {
	Send(ctx context.Context, env models.Envelope, filters ...models.Filter) error
}

// Config tunes the engine. Zero durations and counts select the defaults.
type Config struct {
	URLValidation   security.Options
	CacheTTL        time.Duration
	RateLimitMax    int
	RateLimitWindow time.Duration
}

// DefaultConfig returns the hardened URL policy, a five minute cache and ten
// fetches per URL per minute.
func DefaultConfig() Config {
	return Config{
		URLValidation:   security.DefaultOptions(),
		CacheTTL:        cache.DefaultTTL,
		RateLimitMax:    ratelimit.DefaultMaxRequests,
		RateLimitWindow: ratelimit.DefaultWindow,
	}
}

// Dependencies collects the engine's collaborators. Cache and Limiter default
// to in-process implementations sized from Config.
type Dependencies struct {
	Sender  Sender
	Cache   cache.Store
	Limiter ratelimit.Limiter
	Logger  zerolog.Logger
}

// Engine holds the registered templates. It is safe for concurrent use; a
// cache miss followed by a fill is not atomic, so two racing sends may both
// fetch.
type Engine struct {
	cfg     Config
	sender  Sender
	cache   cache.Store
	limiter ratelimit.Limiter
	logger  zerolog.Logger

	mu        sync.RWMutex
	templates map[string]Template
}

// New constructs an engine.
func New(cfg Config, deps Dependencies) *Engine {
	cfg.URLValidation = cfg.URLValidation.WithDefaults()
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = cache.DefaultTTL
	}
	store := deps.Cache
	if store == nil {
		store = cache.NewMemoryStore(cfg.CacheTTL)
	}
	limiter := deps.Limiter
	if limiter == nil {
		limiter = ratelimit.New(cfg.RateLimitMax, cfg.RateLimitWindow)
	}
	return &Engine{
		cfg:       cfg,
		sender:    deps.Sender,
		cache:     store,
		limiter:   limiter,
		logger:    logger.Component(deps.Logger, "templates"),
		templates: make(map[string]Template),
	}
}

// Register stores def under its name, replacing any previous entry. Static
// templates are compiled and rendered with empty data first so syntax errors
// surface here.
func (e *Engine) Register(def Definition) error {
	if def.Name == "" {
		return common.NewTemplate("Template name is required", nil, nil)
	}
	tpl := Template{Name: def.Name, HTML: def.HTML, Request: def.Request}
	if tpl.HTML == "" {
		tpl.HTML = def.Text
	}

	if !tpl.IsAsync() {
		parsed, err := compile(tpl.HTML)
		if err != nil {
			return common.NewTemplate(fmt.Sprintf("Invalid template %q: %v", def.Name, err), map[string]any{"name": def.Name}, err)
		}
		tpl.parsed = parsed
	}

	e.mu.Lock()
	e.templates[def.Name] = tpl
	e.mu.Unlock()
	e.logger.Debug().Str("template", def.Name).Bool("async", tpl.IsAsync()).Msg("template registered")
	return nil
}

// List returns the registered names in sorted order.
func (e *Engine) List() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.templates))
	for name := range e.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the template registered under name.
func (e *Engine) Get(name string) (Template, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	tpl, ok := e.templates[name]
	return tpl, ok
}

// Clear removes every template. Cached remote content is kept.
func (e *Engine) Clear() {
	e.mu.Lock()
	e.templates = make(map[string]Template)
	e.mu.Unlock()
}

// Send renders the named template with data and sends fragment with the
// result as its HTML body.
func (e *Engine) Send(ctx context.Context, name string, fragment models.Envelope, data map[string]any, filters ...models.Filter) error {
	env, err := e.Render(ctx, name, fragment, data)
	if err != nil {
		return err
	}
	if e.sender == nil {
		return common.NewConfiguration("Template engine has no sender configured")
	}
	return e.sender.Send(ctx, *env, filters...)
}

// Render resolves and renders the named template without sending it.
func (e *Engine) Render(ctx context.Context, name string, fragment models.Envelope, data map[string]any) (*models.Envelope, error) {
	tpl, ok := e.Get(name)
	if !ok {
		return nil, common.NewTemplate(fmt.Sprintf("Template %q not found", name), map[string]any{"name": name}, nil)
	}

	parsed := tpl.parsed
	if tpl.IsAsync() {
		content, err := e.content(ctx, tpl)
		if err != nil {
			return nil, err
		}
		if parsed, err = compile(content); err != nil {
			return nil, common.NewTemplate(fmt.Sprintf("Invalid template %q: %v", name, err), map[string]any{"name": name}, err)
		}
	} else if tpl.HTML == "" {
		return nil, noContent(name)
	}

	if data == nil {
		data = map[string]any{}
	}
	html, err := parsed.Exec(data)
	if err != nil {
		return nil, common.NewTemplate(fmt.Sprintf("Error rendering template %q: %v", name, err), map[string]any{"name": name}, err)
	}

	env := fragment.Clone()
	env.HTML = html
	return env, nil
}

func compile(source string) (*raymond.Template, error) {
	parsed, err := raymond.Parse(source)
	if err != nil {
		return nil, err
	}
	if _, err := parsed.Exec(map[string]any{}); err != nil {
		return nil, err
	}
	return parsed, nil
}

func noContent(name string) error {
	return common.NewTemplate(fmt.Sprintf("No content found for template %q", name), map[string]any{"name": name}, nil)
}
