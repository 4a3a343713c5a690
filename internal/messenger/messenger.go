// Package messenger is the public façade: it owns the configured transports,
// the send pipeline and the template engine.
package messenger

import (
	"context"

	"github.com/rs/zerolog"

	common "github.com/example/messenger/internal/adapters/common"
	"github.com/example/messenger/internal/cache"
	"github.com/example/messenger/internal/dispatch"
	"github.com/example/messenger/internal/logger"
	"github.com/example/messenger/internal/models"
	"github.com/example/messenger/internal/ratelimit"
	"github.com/example/messenger/internal/registry"
	"github.com/example/messenger/internal/templates"
)

// Settings configures a Messenger. DefaultClass applies to transports whose
// class is neither given nor known from their name; it defaults to email.
type Settings struct {
	DefaultClass models.Class
	Transports   []models.TransportConfig
	Dispatch     dispatch.Config
	Templates    templates.Config
}

// DefaultSettings returns settings with the standard retry, URL validation,
// cache and rate limit policies and no transports.
func DefaultSettings() Settings {
	return Settings{
		DefaultClass: models.ClassEmail,
		Dispatch:     dispatch.DefaultConfig(),
		Templates:    templates.DefaultConfig(),
	}
}

type options struct {
	logger   zerolog.Logger
	registry *registry.Registry
	validate dispatch.ValidateFunc
	cache    cache.Store
	limiter  ratelimit.Limiter
}

// Option customises New.
type Option func(*options)

// WithLogger sets the logger handed to every component.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.logger = log }
}

// WithRegistry replaces the process-wide transport registry.
func WithRegistry(r *registry.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithValidator replaces the envelope validator used by the send pipeline.
func WithValidator(fn dispatch.ValidateFunc) Option {
	return func(o *options) { o.validate = fn }
}

// WithTemplateCache sets the store for fetched template content, e.g. a
// cache.RedisStore shared across processes.
func WithTemplateCache(store cache.Store) Option {
	return func(o *options) { o.cache = store }
}

// WithTemplateLimiter sets the rate limiter for template fetches.
func WithTemplateLimiter(l ratelimit.Limiter) Option {
	return func(o *options) { o.limiter = l }
}

// Messenger sends envelopes through its configured transports.
type Messenger struct {
	transports []models.TransportConfig
	engine     *dispatch.Engine
	templates  *templates.Engine
	logger     zerolog.Logger
}

// New builds a Messenger. Transport configs are copied and their classes
// resolved once.
func New(settings Settings, opts ...Option) *Messenger {
	o := options{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	defaultClass := settings.DefaultClass
	if defaultClass == "" {
		defaultClass = models.ClassEmail
	}
	transports := make([]models.TransportConfig, len(settings.Transports))
	for i, t := range settings.Transports {
		if t.Class == "" {
			if class, ok := models.ClassFor(t.Name); ok {
				t.Class = class
			} else {
				t.Class = defaultClass
			}
		}
		transports[i] = t
	}

	m := &Messenger{
		transports: transports,
		engine: dispatch.NewEngine(settings.Dispatch, dispatch.Dependencies{
			Registry: o.registry,
			Validate: o.validate,
			Logger:   o.logger,
		}),
		logger: logger.Component(o.logger, "messenger"),
	}
	m.templates = templates.New(settings.Templates, templates.Dependencies{
		Sender:  m,
		Cache:   o.cache,
		Limiter: o.limiter,
		Logger:  o.logger,
	})
	return m
}

// Send delivers env through the transports matching filters, or all of them.
// Failures outside the error taxonomy are wrapped as send errors.
func (m *Messenger) Send(ctx context.Context, env models.Envelope, filters ...models.Filter) error {
	err := m.engine.Send(ctx, env, m.transports, filters...)
	if err == nil {
		return nil
	}
	if common.KindOf(err) != "" {
		return err
	}
	logger.Err(m.logger.Error(), err).Msg("send failed outside the error taxonomy")
	return common.NewSend(err)
}

// Templates returns the template engine bound to this Messenger.
func (m *Messenger) Templates() *templates.Engine {
	return m.templates
}

// Transports returns a copy of the configured transports with resolved classes.
func (m *Messenger) Transports() []models.TransportConfig {
	return append([]models.TransportConfig(nil), m.transports...)
}
