package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/example/messenger/internal/models"
	"github.com/example/messenger/internal/templates"
)

// Config captures all runtime configuration for the messenger.
type Config struct {
	App       AppConfig
	Retry     RetryConfig
	Dispatch  DispatchConfig
	Templates TemplateConfig
	Redis     RedisConfig
	File      *File
}

// AppConfig contains generic application level settings.
type AppConfig struct {
	Env        string
	LogLevel   string
	ConfigFile string
}

// RetryConfig controls the default retry policy applied to every transport.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       float64
}

// DispatchConfig bounds concurrent transport dispatch. Zero means unbounded.
type DispatchConfig struct {
	MaxConcurrency int
}

// TemplateConfig holds the URL policy, cache and rate limit for async templates.
type TemplateConfig struct {
	AllowedProtocols []string
	AllowedHosts     []string
	AllowedPorts     []int
	BlockPrivateIPs  bool
	FetchTimeout     time.Duration
	CacheTTL         time.Duration
	RateLimitMax     int
	RateLimitWindow  time.Duration
}

// RedisConfig enables shared template caching and rate limiting when Addr is set.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Enabled reports whether a Redis server was configured.
func (r RedisConfig) Enabled() bool { return r.Addr != "" }

// File is the YAML document listing transports and templates.
type File struct {
	Transports []models.TransportConfig `yaml:"transports"`
	Templates  []templates.Definition   `yaml:"templates"`
}

// Load reads environment variables, applies defaults, validates values and
// returns a populated Config instance. When MESSENGER_CONFIG_FILE is set the
// referenced YAML file is parsed into File.
func Load() (*Config, error) {
	_ = godotenv.Load()

	ldr := &envLoader{}

	cfg := &Config{}
	cfg.App.Env = ldr.getString("APP_ENV", "development", false)
	cfg.App.LogLevel = ldr.getString("LOG_LEVEL", "info", false)
	cfg.App.ConfigFile = ldr.getString("MESSENGER_CONFIG_FILE", "", false)

	cfg.Retry.MaxRetries = ldr.getInt("RETRY_MAX_RETRIES", 3, false)
	cfg.Retry.InitialDelay = ldr.getMillis("RETRY_INITIAL_DELAY_MS", 100)
	cfg.Retry.MaxDelay = ldr.getMillis("RETRY_MAX_DELAY_MS", 5000)
	cfg.Retry.Factor = ldr.getFloat("RETRY_FACTOR", 2)

	cfg.Dispatch.MaxConcurrency = ldr.getInt("DISPATCH_MAX_CONCURRENCY", 0, false)

	cfg.Templates.AllowedProtocols = ldr.getStringSlice("TEMPLATE_ALLOWED_PROTOCOLS", []string{"https"})
	cfg.Templates.AllowedHosts = ldr.getStringSlice("TEMPLATE_ALLOWED_HOSTS", nil)
	cfg.Templates.AllowedPorts = ldr.getIntSlice("TEMPLATE_ALLOWED_PORTS", []int{443})
	cfg.Templates.BlockPrivateIPs = ldr.getBool("TEMPLATE_BLOCK_PRIVATE_IPS", true, false)
	cfg.Templates.FetchTimeout = ldr.getMillis("TEMPLATE_FETCH_TIMEOUT_MS", 5000)
	cfg.Templates.CacheTTL = time.Duration(ldr.getInt("TEMPLATE_CACHE_TTL_SECONDS", 300, false)) * time.Second
	cfg.Templates.RateLimitMax = ldr.getInt("TEMPLATE_RATE_LIMIT_MAX", 10, false)
	cfg.Templates.RateLimitWindow = time.Duration(ldr.getInt("TEMPLATE_RATE_LIMIT_WINDOW_SECONDS", 60, false)) * time.Second

	cfg.Redis.Addr = ldr.getString("REDIS_ADDR", "", false)
	cfg.Redis.Password = ldr.getString("REDIS_PASSWORD", "", false)
	cfg.Redis.DB = ldr.getInt("REDIS_DB", 0, false)
	cfg.Redis.KeyPrefix = ldr.getString("REDIS_KEY_PREFIX", "messenger", false)

	if cfg.Retry.MaxRetries < 0 {
		ldr.addError("RETRY_MAX_RETRIES must not be negative")
	}
	if cfg.Retry.Factor < 1 {
		ldr.addError("RETRY_FACTOR must be at least 1")
	}
	if cfg.Dispatch.MaxConcurrency < 0 {
		ldr.addError("DISPATCH_MAX_CONCURRENCY must not be negative")
	}
	if cfg.Templates.RateLimitMax <= 0 {
		ldr.addError("TEMPLATE_RATE_LIMIT_MAX must be positive")
	}

	if err := ldr.validate(); err != nil {
		return nil, err
	}

	if cfg.App.ConfigFile != "" {
		file, err := LoadFile(cfg.App.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg.File = file
	}

	return cfg, nil
}

// LoadFile parses the YAML transport and template document at path. Transport
// names are not checked here; the registry resolves them at send time.
func LoadFile(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var file File
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	var errs []string
	for i, t := range file.Transports {
		if strings.TrimSpace(t.Name) == "" {
			errs = append(errs, fmt.Sprintf("transports[%d]: name is required", i))
		}
		if t.Class != "" {
			class, ok := models.ParseClass(string(t.Class))
			if !ok {
				errs = append(errs, fmt.Sprintf("transports[%d]: unknown class %q", i, t.Class))
			}
			file.Transports[i].Class = class
		}
	}
	for i, tpl := range file.Templates {
		if strings.TrimSpace(tpl.Name) == "" {
			errs = append(errs, fmt.Sprintf("templates[%d]: name is required", i))
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("config file validation failed: %s", strings.Join(errs, "; "))
	}
	return &file, nil
}

type envLoader struct {
	errs []string
}

func (l *envLoader) validate() error {
	if len(l.errs) == 0 {
		return nil
	}
	return fmt.Errorf("config validation failed: %s", strings.Join(l.errs, "; "))
}

func (l *envLoader) lookup(key string) (string, bool) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	val = strings.TrimSpace(val)
	return val, val != ""
}

func (l *envLoader) getString(key, def string, required bool) string {
	if val, ok := l.lookup(key); ok {
		return val
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getInt(key string, def int, required bool) int {
	val, ok := l.lookup(key)
	if !ok {
		if required {
			l.addError(fmt.Sprintf("%s is required", key))
		}
		return def
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		l.addError(fmt.Sprintf("%s must be a valid integer", key))
		return def
	}
	return i
}

func (l *envLoader) getFloat(key string, def float64) float64 {
	val, ok := l.lookup(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		l.addError(fmt.Sprintf("%s must be a valid number", key))
		return def
	}
	return f
}

func (l *envLoader) getMillis(key string, def int) time.Duration {
	ms := l.getInt(key, def, false)
	if ms < 0 {
		l.addError(fmt.Sprintf("%s must not be negative", key))
		ms = def
	}
	return time.Duration(ms) * time.Millisecond
}

func (l *envLoader) getBool(key string, def bool, required bool) bool {
	val, ok := l.lookup(key)
	if !ok {
		if required {
			l.addError(fmt.Sprintf("%s is required", key))
		}
		return def
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		l.addError(fmt.Sprintf("%s must be a valid boolean", key))
		return def
	}
	return parsed
}

func (l *envLoader) getStringSlice(key string, def []string) []string {
	raw, ok := l.lookup(key)
	if !ok {
		return def
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		l.addError(fmt.Sprintf("%s must contain at least one entry", key))
		return def
	}
	return out
}

func (l *envLoader) getIntSlice(key string, def []int) []int {
	parts := l.getStringSlice(key, nil)
	if parts == nil {
		return def
	}
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 || n > 65535 {
			l.addError(fmt.Sprintf("%s contains an invalid port %q", key, p))
			return def
		}
		out = append(out, n)
	}
	return out
}

func (l *envLoader) addError(err string) {
	l.errs = append(l.errs, err)
}
