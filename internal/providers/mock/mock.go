// Package mock is a network-free transport for dry runs and tests. Its
// behaviour is chosen per transport through settings or per message through
// envelope passthrough fields.
package mock

import (
	"context"
	"fmt"
	"math/rand"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	common "github.com/example/messenger/internal/adapters/common"
	"github.com/example/messenger/internal/models"
)

// Scenario enumerates the supported mock behaviours.
type Scenario string

const (
	ScenarioSuccess   Scenario = "success"
	ScenarioTransient Scenario = "transient"
	ScenarioPermanent Scenario = "permanent"
	ScenarioTimeout   Scenario = "timeout"

	// ExtraScenario and ExtraLatency override the settings for one message.
	ExtraScenario = "mock_scenario"
	ExtraLatency  = "mock_latency"
)

// Option customises the transport at construction time.
type Option func(*Transport)

// WithLatencyRange overrides the simulated latency. Negative values are
// clamped to zero and max < min is coerced to min.
func WithLatencyRange(min, max time.Duration) Option {
	return func(t *Transport) {
		if min < 0 {
			min = 0
		}
		if max < min {
			max = min
		}
		t.minLatency = min
		t.maxLatency = max
	}
}

// WithDefaultScenario configures the behaviour when a message does not name one.
func WithDefaultScenario(s Scenario) Option {
	return func(t *Transport) {
		t.defaultScenario = s
	}
}

// WithRandomSeed makes latency sampling and generated ids deterministic.
func WithRandomSeed(seed int64) Option {
	return func(t *Transport) {
		t.rnd = rand.New(rand.NewSource(seed)) // #nosec G404 -- deterministic seed for tests.
	}
}

// Transport records every envelope it accepts.
type Transport struct {
	logger          zerolog.Logger
	minLatency      time.Duration
	maxLatency      time.Duration
	defaultScenario Scenario

	mu   sync.Mutex
	rnd  *rand.Rand
	sent []models.Envelope
}

var _ common.Transport = (*Transport)(nil)

// New constructs a mock transport. Settings options "scenario" and "latency"
// set the defaults; with neither it succeeds immediately.
func New(settings models.Settings, logger zerolog.Logger, opts ...Option) *Transport {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	t := &Transport{
		logger:          logger.With().Str("transport", models.TransportMock).Logger(),
		defaultScenario: parseScenario(settings.Option("scenario"), ScenarioSuccess),
		rnd:             rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404
	}
	if d, err := time.ParseDuration(settings.Option("latency")); err == nil && d > 0 {
		t.minLatency, t.maxLatency = d, d
	}

	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Factory adapts New to common.Factory.
func Factory(settings models.Settings, logger zerolog.Logger) (common.Transport, error) {
	return New(settings, logger), nil
}

// Send simulates a delivery according to the resolved scenario.
func (t *Transport) Send(ctx context.Context, env *models.Envelope) error {
	if env == nil {
		return common.NewTransport(models.TransportMock, "mock: envelope is required", nil)
	}

	if latency := t.sampleLatency(env); latency > 0 {
		if err := sleep(ctx, latency); err != nil {
			return common.NewTransport(models.TransportMock, "mock: interrupted", err)
		}
	}

	scenario := parseScenario(env.ExtraString(ExtraScenario), t.defaultScenario)
	id := t.nextID()
	t.logger.Debug().
		Str("scenario", string(scenario)).
		Str("message_id", id).
		Int("recipients", len(env.To)).
		Msg("mock transport invoked")

	switch scenario {
	case ScenarioPermanent:
		return common.NewTransport(models.TransportMock, "mock: recipient rejected",
			&common.HTTPStatusError{StatusCode: 422, Body: "mock: mailbox unavailable"})
	case ScenarioTransient:
		return common.NewTransport(models.TransportMock, "mock: provider unavailable",
			&common.HTTPStatusError{StatusCode: 503, Body: "mock: try again later"})
	case ScenarioTimeout:
		return common.NewTransport(models.TransportMock, "mock: timed out", context.DeadlineExceeded)
	}

	t.mu.Lock()
	t.sent = append(t.sent, *env.Clone())
	t.mu.Unlock()
	return nil
}

// Sent returns copies of the accepted envelopes in arrival order.
func (t *Transport) Sent() []models.Envelope {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]models.Envelope(nil), t.sent...)
}

func parseScenario(value string, def Scenario) Scenario {
	switch Scenario(strings.ToLower(strings.TrimSpace(value))) {
	case ScenarioSuccess:
		return ScenarioSuccess
	case ScenarioPermanent:
		return ScenarioPermanent
	case ScenarioTransient:
		return ScenarioTransient
	case ScenarioTimeout:
		return ScenarioTimeout
	default:
		return def
	}
}

func (t *Transport) sampleLatency(env *models.Envelope) time.Duration {
	if value := env.ExtraString(ExtraLatency); value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && d >= 0 {
			return d
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.maxLatency <= t.minLatency {
		return t.minLatency
	}
	delta := t.maxLatency - t.minLatency
	return t.minLatency + time.Duration(t.rnd.Int63n(int64(delta)+1))
}

func (t *Transport) nextID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fmt.Sprintf("mock-%08x", t.rnd.Uint32())
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
