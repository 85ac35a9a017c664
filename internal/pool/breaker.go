package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/dhruvsoni1802/browser-bidi/internal/bidi"
)

// ErrEndpointUnavailable is returned when an endpoint's breaker refuses a dial
var ErrEndpointUnavailable = errors.New("endpoint temporarily unavailable")

const (
	defaultBreakerFailures = 3
	defaultBreakerCooldown = 30 * time.Second
)

// DialFunc opens a BiDi client on an endpoint
type DialFunc = func(ctx context.Context, endpoint string) (*bidi.Client, error)

// WithBreaker sets how many consecutive dial failures open an endpoint's
// breaker and how long it stays open before a trial dial is let through.
func WithBreaker(failures uint32, cooldown time.Duration) Option {
	return func(p *EndpointPool) {
		if failures > 0 {
			p.breakerFailures = failures
		}
		if cooldown > 0 {
			p.breakerCooldown = cooldown
		}
	}
}

func newBreaker(endpoint string, failures uint32, cooldown time.Duration) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        endpoint,
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			// A caller giving up says nothing about the endpoint
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("endpoint breaker changed state", "endpoint", name, "from", from.String(), "to", to.String())
		},
	})
}

// GuardDial wraps dial so that dials to a configured endpoint pass through
// that endpoint's breaker. Targets the pool does not know, such as stored
// WebSocket URLs, are dialed directly.
func (p *EndpointPool) GuardDial(dial DialFunc) DialFunc {
	return func(ctx context.Context, endpoint string) (*bidi.Client, error) {
		e, ok := p.Lookup(endpoint)
		if !ok {
			return dial(ctx, endpoint)
		}

		client, err := e.breaker.Execute(func() (interface{}, error) {
			return dial(ctx, endpoint)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %s: %w", ErrEndpointUnavailable, endpoint, err)
		}
		if err != nil {
			return nil, err
		}
		return client.(*bidi.Client), nil
	}
}
