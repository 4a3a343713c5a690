package common

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/example/messenger/internal/models"
)

// Transport is the capability every provider adapter exposes. Implementations
// convert the envelope into a provider call and return a *Error of
// KindTransport tagged with their name on failure.
type Transport interface {
	Send(ctx context.Context, env *models.Envelope) error
}

// Factory builds a fresh transport instance from its settings. The dispatch
// pipeline calls it once per send so connection state is never shared between
// sends.
type Factory func(settings models.Settings, logger zerolog.Logger) (Transport, error)

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, env *models.Envelope) error

// Send implements Transport.
func (f TransportFunc) Send(ctx context.Context, env *models.Envelope) error {
	return f(ctx, env)
}
