package retry

import (
	"context"
	"errors"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	common "github.com/example/messenger/internal/adapters/common"
)

type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return nil
}

func testOptions(rec *sleepRecorder) Options {
	opts := DefaultOptions()
	opts.Sleep = rec.sleep
	opts.Jitter = func() float64 { return 0.999999 }
	return opts
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	rec := &sleepRecorder{}
	calls := 0

	got, err := Do(context.Background(), func(context.Context) (string, error) {
		calls++
		return "ok", nil
	}, "mock", testOptions(rec))

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.delays)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	rec := &sleepRecorder{}
	calls := 0

	err := Run(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	}, "mock", testOptions(rec))

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, rec.delays, 2)
}

func TestDoExhaustsBudgetWithoutTrailingSleep(t *testing.T) {
	rec := &sleepRecorder{}
	calls := 0
	boom := errors.New("boom")

	err := Run(context.Background(), func(context.Context) error {
		calls++
		return boom
	}, "mock", testOptions(rec))

	require.ErrorIs(t, err, boom)
	assert.Equal(t, DefaultMaxRetries+1, calls)
	assert.Len(t, rec.delays, DefaultMaxRetries)
}

func TestDoZeroRetriesRunsOnce(t *testing.T) {
	rec := &sleepRecorder{}
	opts := testOptions(rec)
	opts.MaxRetries = Retries(0)
	calls := 0

	err := Run(context.Background(), func(context.Context) error {
		calls++
		return errors.New("boom")
	}, "mock", opts)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.delays)
}

func TestDoZeroOptionsUsesDefaultBudget(t *testing.T) {
	rec := &sleepRecorder{}
	calls := 0

	err := Run(context.Background(), func(context.Context) error {
		calls++
		return errors.New("ECONNRESET")
	}, "mock", Options{Sleep: rec.sleep})

	require.Error(t, err)
	assert.Equal(t, DefaultMaxRetries+1, calls)
	assert.Len(t, rec.delays, DefaultMaxRetries)
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	rec := &sleepRecorder{}
	calls := 0

	err := Run(context.Background(), func(context.Context) error {
		calls++
		return common.NewTransport("sendgrid", "rejected", &common.HTTPStatusError{StatusCode: 400})
	}, "sendgrid", testOptions(rec))

	require.ErrorIs(t, err, common.ErrTransport)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.delays)
}

func TestDoBackoffIsBoundedAndGrows(t *testing.T) {
	rec := &sleepRecorder{}
	opts := testOptions(rec)
	opts.MaxRetries = Retries(8)
	opts.InitialDelay = 100 * time.Millisecond
	opts.MaxDelay = time.Second

	_ = Run(context.Background(), func(context.Context) error {
		return errors.New("boom")
	}, "mock", opts)

	require.Len(t, rec.delays, 8)
	for i, d := range rec.delays {
		assert.LessOrEqual(t, d, opts.MaxDelay, "delay %d", i)
		if i > 0 {
			assert.GreaterOrEqual(t, d, rec.delays[i-1], "delay %d", i)
		}
	}
	assert.InDelta(t, float64(opts.MaxDelay), float64(rec.delays[7]), float64(time.Millisecond))
}

func TestDoStopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	opts := DefaultOptions()
	opts.Sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	err := Run(ctx, func(context.Context) error {
		calls++
		return errors.New("boom")
	}, "mock", opts)

	require.EqualError(t, err, "boom")
	assert.Equal(t, 1, calls)
}

func TestBackoffJitterRange(t *testing.T) {
	low := Backoff(2, 100*time.Millisecond, 5*time.Second, 2, 0)
	high := Backoff(2, 100*time.Millisecond, 5*time.Second, 2, 0.999999)

	assert.Equal(t, 200*time.Millisecond, low)
	assert.InDelta(t, float64(400*time.Millisecond), float64(high), float64(time.Millisecond))
}

type awsStatusErr struct{ code int }

func (e awsStatusErr) Error() string       { return "aws" }
func (e awsStatusErr) HTTPStatusCode() int { return e.code }

func TestDefaultShouldRetry(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "client error", err: &common.HTTPStatusError{StatusCode: 422}, want: false},
		{name: "server error", err: &common.HTTPStatusError{StatusCode: 503}, want: true},
		{name: "sdk client error", err: awsStatusErr{code: 403}, want: false},
		{name: "sdk server error", err: awsStatusErr{code: 500}, want: true},
		{name: "connection refused", err: &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, want: true},
		{name: "timed out", err: syscall.ETIMEDOUT, want: true},
		{name: "unknown host", err: &net.DNSError{Err: "no such host", IsNotFound: true}, want: true},
		{name: "validation", err: common.NewValidation("Recipient (to) is required"), want: false},
		{name: "configuration", err: common.NewConfiguration("missing key"), want: false},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "unclassified", err: errors.New("weird"), want: true},
		{name: "wrapped client error", err: common.NewTransport("ses", "failed", awsStatusErr{code: 400}), want: false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DefaultShouldRetry(tc.err))
		})
	}
}
