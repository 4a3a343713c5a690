// Command messenger sends one envelope, or one rendered template, through the
// transports listed in the configuration file.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/example/messenger/internal/cache"
	"github.com/example/messenger/internal/config"
	"github.com/example/messenger/internal/logger"
	"github.com/example/messenger/internal/messenger"
	"github.com/example/messenger/internal/models"
	"github.com/example/messenger/internal/ratelimit"
	"github.com/example/messenger/internal/retry"
	"github.com/example/messenger/internal/security"
)

type flags struct {
	envelope  string
	template  string
	data      string
	transport string
	class     string
}

func parseFlags(args []string) (flags, error) {
	var f flags
	fs := flag.NewFlagSet("messenger", flag.ContinueOnError)
	fs.StringVar(&f.envelope, "envelope", "", "path to a JSON envelope (the message fields, or the fragment for -template)")
	fs.StringVar(&f.template, "template", "", "name of a configured template to render and send")
	fs.StringVar(&f.data, "data", "", "path to a JSON object with template data")
	fs.StringVar(&f.transport, "transport", "", "send only through the named transport")
	fs.StringVar(&f.class, "class", "", "send only through transports of this class (email, sms, call, chat)")
	if err := fs.Parse(args); err != nil {
		return f, err
	}
	if f.envelope == "" && f.template == "" {
		return f, fmt.Errorf("either -envelope or -template is required")
	}
	if f.data != "" && f.template == "" {
		return f, fmt.Errorf("-data requires -template")
	}
	return f, nil
}

func (f flags) filters() ([]models.Filter, error) {
	if f.transport == "" && f.class == "" {
		return nil, nil
	}
	filter := models.Filter{Name: f.transport}
	if f.class != "" {
		class, ok := models.ParseClass(f.class)
		if !ok {
			return nil, fmt.Errorf("unknown class %q", f.class)
		}
		filter.Class = class
	}
	return []models.Filter{filter}, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:])
	stop()
	if err != nil {
		fail(err)
	}
}

// run performs one send. Every failure is returned so deferred cleanup runs
// before the process exits.
func run(ctx context.Context, args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		return fmt.Errorf("flags: %w", err)
	}
	filters, err := opts.filters()
	if err != nil {
		return fmt.Errorf("flags: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config load: %w", err)
	}
	if cfg.File == nil {
		return fmt.Errorf("config load: MESSENGER_CONFIG_FILE is required")
	}

	baseLogger, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	log := baseLogger.With().Str("service", "messenger").Logger()

	msgOpts := []messenger.Option{messenger.WithLogger(log)}
	if cfg.Redis.Enabled() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() {
			if err := client.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close redis client")
			}
		}()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis %s unreachable: %w", cfg.Redis.Addr, err)
		}
		msgOpts = append(msgOpts,
			messenger.WithTemplateCache(cache.NewRedisStore(client, cfg.Redis.KeyPrefix+":tpl", cfg.Templates.CacheTTL)),
			messenger.WithTemplateLimiter(ratelimit.NewRedis(client, cfg.Redis.KeyPrefix+":rl",
				cfg.Templates.RateLimitMax, cfg.Templates.RateLimitWindow)),
		)
	}

	m := messenger.New(settingsFrom(cfg), msgOpts...)
	for _, def := range cfg.File.Templates {
		if err := m.Templates().Register(def); err != nil {
			return fmt.Errorf("register template %q: %w", def.Name, err)
		}
	}

	var env models.Envelope
	if opts.envelope != "" {
		if err := readJSON(opts.envelope, &env); err != nil {
			return fmt.Errorf("read envelope: %w", err)
		}
	}

	if opts.template != "" {
		var data map[string]any
		if opts.data != "" {
			if err := readJSON(opts.data, &data); err != nil {
				return fmt.Errorf("read template data: %w", err)
			}
		}
		err = m.Templates().Send(ctx, opts.template, env, data, filters...)
	} else {
		err = m.Send(ctx, env, filters...)
	}
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	log.Info().Int("recipients", len(env.To)).Msg("message sent")
	return nil
}

func settingsFrom(cfg *config.Config) messenger.Settings {
	settings := messenger.DefaultSettings()
	settings.Transports = cfg.File.Transports

	settings.Dispatch.MaxConcurrency = cfg.Dispatch.MaxConcurrency
	settings.Dispatch.Retry.MaxRetries = retry.Retries(cfg.Retry.MaxRetries)
	settings.Dispatch.Retry.InitialDelay = cfg.Retry.InitialDelay
	settings.Dispatch.Retry.MaxDelay = cfg.Retry.MaxDelay
	settings.Dispatch.Retry.Factor = cfg.Retry.Factor

	settings.Templates.URLValidation = security.Options{
		AllowedProtocols: cfg.Templates.AllowedProtocols,
		AllowedHosts:     cfg.Templates.AllowedHosts,
		AllowedPorts:     cfg.Templates.AllowedPorts,
		AllowPrivateIPs:  !cfg.Templates.BlockPrivateIPs,
		Timeout:          cfg.Templates.FetchTimeout,
	}
	settings.Templates.CacheTTL = cfg.Templates.CacheTTL
	settings.Templates.RateLimitMax = cfg.Templates.RateLimitMax
	settings.Templates.RateLimitWindow = cfg.Templates.RateLimitWindow
	return settings
}

func readJSON(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func fail(err error) {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()
	logger.Err(log.Error(), err).Msg("messenger failed")
	os.Exit(1)
}
