package mock

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"

	common "github.com/example/messenger/internal/adapters/common"
	"github.com/example/messenger/internal/models"
	"github.com/example/messenger/internal/retry"
)

func testEnvelope(extra map[string]any) *models.Envelope {
	return &models.Envelope{
		From:    "sender@example.com",
		To:      models.Recipients{"user@example.com"},
		Subject: "Hello",
		HTML:    "<p>Hi</p>",
		Extra:   extra,
	}
}

func TestSendRecordsSuccess(t *testing.T) {
	tr := New(models.Settings{}, zerolog.New(io.Discard), WithRandomSeed(1))

	if err := tr.Send(context.Background(), testEnvelope(nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sent := tr.Sent()
	if len(sent) != 1 || sent[0].Subject != "Hello" {
		t.Fatalf("expected one recorded envelope, got %#v", sent)
	}
}

func TestSendScenarios(t *testing.T) {
	tests := []struct {
		name      string
		scenario  string
		retryable bool
	}{
		{name: "permanent", scenario: "permanent", retryable: false},
		{name: "transient", scenario: "transient", retryable: true},
		{name: "timeout", scenario: "TIMEOUT", retryable: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			tr := New(models.Settings{}, zerolog.Nop())
			err := tr.Send(context.Background(), testEnvelope(map[string]any{ExtraScenario: tc.scenario}))
			if !errors.Is(err, common.ErrTransport) {
				t.Fatalf("expected transport error, got %v", err)
			}
			if got := retry.DefaultShouldRetry(err); got != tc.retryable {
				t.Fatalf("expected retryable=%v, got %v", tc.retryable, got)
			}
			if len(tr.Sent()) != 0 {
				t.Fatalf("failed sends must not be recorded")
			}
		})
	}
}

func TestSettingsSelectDefaultScenario(t *testing.T) {
	tr := New(models.Settings{Options: map[string]string{"scenario": "permanent"}}, zerolog.Nop())
	if err := tr.Send(context.Background(), testEnvelope(nil)); err == nil {
		t.Fatalf("expected settings scenario to apply")
	}
	if err := tr.Send(context.Background(), testEnvelope(map[string]any{ExtraScenario: "success"})); err != nil {
		t.Fatalf("expected per-message override to succeed, got %v", err)
	}
}

func TestSendHonoursContextDuringLatency(t *testing.T) {
	tr := New(models.Settings{}, zerolog.Nop(), WithLatencyRange(time.Second, time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := tr.Send(ctx, testEnvelope(nil))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
