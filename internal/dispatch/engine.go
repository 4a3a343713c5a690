// Package dispatch is the send pipeline: it selects configured transports,
// merges their defaults, validates the result and sends through every match
// concurrently under the retry policy.
package dispatch

import (
	"context"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	common "github.com/example/messenger/internal/adapters/common"
	"github.com/example/messenger/internal/models"
	"github.com/example/messenger/internal/registry"
	"github.com/example/messenger/internal/retry"
	"github.com/example/messenger/internal/util"
)

// Config tunes the engine. Retry is the base policy; a transport's
// Settings.Retry overrides individual fields. MaxConcurrency caps in-flight
// transports per Send, 0 means unbounded.
type Config struct {
	Retry          retry.Options
	MaxConcurrency int
}

// DefaultConfig returns the standard retry policy with unbounded concurrency.
func DefaultConfig() Config {
	return Config{Retry: retry.DefaultOptions()}
}

// ValidateFunc checks a merged envelope against a transport class.
type ValidateFunc func(env *models.Envelope, class models.Class) error

// Dependencies collects the engine's collaborators. Zero values select the
// process registry, util.ValidateEnvelope, a no-op logger and time.Now.
type Dependencies struct {
	Registry *registry.Registry
	Validate ValidateFunc
	Logger   zerolog.Logger
	Now      func() time.Time
}

// Engine runs sends. It holds no per-send state and is safe for concurrent use.
type Engine struct {
	cfg      Config
	registry *registry.Registry
	validate ValidateFunc
	logger   zerolog.Logger
	now      func() time.Time
}

// NewEngine constructs an engine from cfg and deps.
func NewEngine(cfg Config, deps Dependencies) *Engine {
	logger := deps.Logger
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	logger = logger.With().Str("component", "dispatch").Logger()

	reg := deps.Registry
	if reg == nil {
		reg = registry.Default()
	}
	validate := deps.Validate
	if validate == nil {
		validate = util.ValidateEnvelope
	}
	nowFunc := deps.Now
	if nowFunc == nil {
		nowFunc = time.Now
	}
	if cfg.MaxConcurrency < 0 {
		cfg.MaxConcurrency = 0
	}

	return &Engine{
		cfg:      cfg,
		registry: reg,
		validate: validate,
		logger:   logger,
		now:      nowFunc,
	}
}

// Send delivers env through every transport matching filters (all of them
// when no filter is given). Transports run concurrently and every dispatch
// settles before Send returns; the first failure is returned.
func (e *Engine) Send(ctx context.Context, env models.Envelope, transports []models.TransportConfig, filters ...models.Filter) error {
	selected := models.Select(models.Classify(transports), filters...)
	if len(selected) == 0 {
		if len(filters) == 0 {
			return common.NewConfiguration("No transports configured")
		}
		return common.NewConfiguration("Transport %s not found", models.FilterNames(filters))
	}

	sendID := uuid.NewString()
	logger := e.logger.With().Str("send_id", sendID).Logger()
	logger.Debug().Int("transports", len(selected)).Int("recipients", len(env.To)).Msg("dispatch: send started")

	var g errgroup.Group
	if e.cfg.MaxConcurrency > 0 {
		g.SetLimit(e.cfg.MaxConcurrency)
	}
	for _, t := range selected {
		t := t
		g.Go(func() error {
			return e.dispatch(ctx, logger, env, t)
		})
	}
	return g.Wait()
}

func (e *Engine) dispatch(ctx context.Context, logger zerolog.Logger, env models.Envelope, t models.TransportConfig) error {
	class := t.Class
	logger = logger.With().Str("transport", t.Name).Str("class", string(class)).Logger()

	factory, err := e.registry.Get(t.Name)
	if err != nil {
		logger.Error().Err(err).Msg("dispatch: transport not registered")
		return err
	}

	msg := models.Merge(t.Settings.Defaults, env)
	if err := e.validate(msg, class); err != nil {
		logger.Warn().Err(err).Msg("dispatch: envelope rejected")
		if common.KindOf(err) == common.KindValidation {
			return err
		}
		return &common.Error{Kind: common.KindValidation, Message: "Validation Error: " + err.Error(), Err: err}
	}

	transport, err := factory(t.Settings, logger)
	if err != nil {
		logger.Error().Err(err).Msg("dispatch: transport construction failed")
		if common.KindOf(err) != "" {
			return err
		}
		return &common.Error{Kind: common.KindConfiguration, Message: err.Error(), Err: err}
	}

	opts := e.retryOptions(t.Settings.Retry, logger)
	start := e.now()
	err = retry.Run(ctx, func(ctx context.Context) error {
		return tagTransportError(t.Name, transport.Send(ctx, msg))
	}, t.Name, opts)
	duration := e.now().Sub(start)

	if err != nil {
		logger.Error().Err(err).Dur("duration", duration).Msg("dispatch: transport failed")
		return err
	}
	logger.Info().Dur("duration", duration).Msg("dispatch: message sent")
	return nil
}

func (e *Engine) retryOptions(override *models.RetrySettings, logger zerolog.Logger) retry.Options {
	opts := e.cfg.Retry
	opts.Logger = logger
	if override == nil {
		return opts
	}
	if override.MaxRetries != nil {
		opts.MaxRetries = override.MaxRetries
	}
	if override.InitialDelay > 0 {
		opts.InitialDelay = override.InitialDelay
	}
	if override.MaxDelay > 0 {
		opts.MaxDelay = override.MaxDelay
	}
	if override.Factor > 0 {
		opts.Factor = override.Factor
	}
	return opts
}

// tagTransportError makes sure failures leaving a transport carry its name.
func tagTransportError(name string, err error) error {
	if err == nil || common.KindOf(err) != "" {
		return err
	}
	return common.NewTransport(name, err.Error(), err)
}
