// Package retry wraps an operation with bounded exponential backoff and jitter.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"reflect"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	common "github.com/example/messenger/internal/adapters/common"
)

// Defaults applied when the corresponding option is left zero.
const (
	DefaultMaxRetries   = 3
	DefaultInitialDelay = 100 * time.Millisecond
	DefaultMaxDelay     = 5 * time.Second
	DefaultFactor       = 2.0
)

// Options tunes the retry loop. MaxRetries counts retries after the first
// attempt, so the operation runs at most MaxRetries+1 times; nil selects
// DefaultMaxRetries and an explicit zero disables retries. Zero durations and
// factor select their defaults, so the zero Options is the standard policy.
type Options struct {
	MaxRetries   *int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       float64
	ShouldRetry  func(error) bool

	// Sleep waits between attempts; it must return early with ctx.Err() when
	// the context ends. Tests replace it to observe backoff without waiting.
	Sleep func(ctx context.Context, d time.Duration) error
	// Jitter returns a value in [0,1) used to scale the delay into
	// [0.5, 1.0) of its computed value.
	Jitter func() float64
	Logger zerolog.Logger
}

// DefaultOptions returns the standard policy: 3 retries, 100ms initial delay,
// 5s cap, factor 2.
func DefaultOptions() Options {
	return Options{
		MaxRetries:   Retries(DefaultMaxRetries),
		InitialDelay: DefaultInitialDelay,
		MaxDelay:     DefaultMaxDelay,
		Factor:       DefaultFactor,
		ShouldRetry:  DefaultShouldRetry,
	}
}

// Retries returns a MaxRetries value of n.
func Retries(n int) *int {
	return &n
}

func (o Options) withDefaults() Options {
	switch {
	case o.MaxRetries == nil:
		o.MaxRetries = Retries(DefaultMaxRetries)
	case *o.MaxRetries < 0:
		o.MaxRetries = Retries(0)
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = DefaultInitialDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = DefaultMaxDelay
	}
	if o.Factor <= 0 {
		o.Factor = DefaultFactor
	}
	if o.ShouldRetry == nil {
		o.ShouldRetry = DefaultShouldRetry
	}
	if o.Sleep == nil {
		o.Sleep = wait
	}
	if o.Jitter == nil {
		o.Jitter = jitter
	}
	if reflect.ValueOf(o.Logger).IsZero() {
		o.Logger = zerolog.Nop()
	}
	return o
}

// Do runs op until it succeeds, the retry budget is spent, or ShouldRetry
// rejects the error. The last error is returned unchanged and no sleep happens
// after the final failed attempt.
func Do[T any](ctx context.Context, op func(ctx context.Context) (T, error), transport string, opts Options) (T, error) {
	opts = opts.withDefaults()
	maxRetries := *opts.MaxRetries

	for attempt := 0; ; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		if attempt >= maxRetries || !opts.ShouldRetry(err) {
			return result, err
		}

		delay := Backoff(attempt, opts.InitialDelay, opts.MaxDelay, opts.Factor, opts.Jitter())
		opts.Logger.Warn().
			Str("transport", transport).
			Int("attempt", attempt+1).
			Dur("backoff", delay).
			Err(err).
			Msg("retry: scheduling retry after transport error")

		if sleepErr := opts.Sleep(ctx, delay); sleepErr != nil {
			return result, err
		}
	}
}

// Run is Do for operations without a result.
func Run(ctx context.Context, op func(ctx context.Context) error, transport string, opts Options) error {
	_, err := Do(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, transport, opts)
	return err
}

// Backoff computes min(initial*factor^attempt, max) scaled by 0.5+0.5*j, where
// j is expected in [0,1).
func Backoff(attempt int, initial, max time.Duration, factor, j float64) time.Duration {
	raw := float64(initial) * math.Pow(factor, float64(attempt))
	if raw > float64(max) {
		raw = float64(max)
	}
	return time.Duration(raw * (0.5 + j*0.5))
}

// statusCoder matches provider SDK errors that expose an HTTP status, such as
// the AWS SDK response errors.
type statusCoder interface {
	HTTPStatusCode() int
}

// DefaultShouldRetry never retries client errors (HTTP 4xx) or validation and
// configuration failures, retries refused connections, timeouts, unknown hosts
// and HTTP 5xx, and retries anything else.
func DefaultShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	switch common.KindOf(err) {
	case common.KindValidation, common.KindConfiguration:
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	status := statusOf(err)
	if status >= 400 && status < 500 {
		return false
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// 5xx and unclassified failures are treated as transient.
	return true
}

func statusOf(err error) int {
	var httpErr *common.HTTPStatusError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatusCode()
	}
	return 0
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var (
	randMu sync.Mutex
	rnd    = rand.New(rand.NewSource(time.Now().UnixNano())) // #nosec G404 -- jitter only
)

func jitter() float64 {
	randMu.Lock()
	defer randMu.Unlock()
	return rnd.Float64()
}
