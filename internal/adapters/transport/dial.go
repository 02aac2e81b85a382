// Package transport provides adapters that connect the dispatch service to the remote sending server.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/mailrelay/internal/domain/dispatch"
)

// ErrSessionClosed is returned when a batch is submitted on a closed session.
var ErrSessionClosed = errors.New("transport session closed")

// ErrDisconnected is returned for a batch that was in flight when the connection dropped.
var ErrDisconnected = errors.New("connection to sending server lost")

// connector runs connect until it succeeds, the policy is exhausted, or ctx ends.
type connector struct {
	name   string
	policy dispatch.ReconnectPolicy
	clock  dispatch.Clock
	logger *slog.Logger
}

func newConnector(name string, policy dispatch.ReconnectPolicy, clock dispatch.Clock, logger *slog.Logger) (connector, error) {
	if err := policy.Validate(); err != nil {
		return connector{}, err
	}
	if clock == nil {
		clock = dispatch.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return connector{name: name, policy: policy, clock: clock, logger: logger}, nil
}

// retry calls connect up to policy.MaxAttempts times, sleeping policy.Backoff between attempts.
func retry[T any](ctx context.Context, c connector, connect func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		v, err := connect(ctx)
		if err == nil {
			if attempt > 1 {
				c.logger.InfoContext(ctx, "transport connected after retry", "transport", c.name, "attempt", attempt)
			}
			return v, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return zero, errors.Join(ctx.Err(), lastErr)
		}
		if attempt == c.policy.MaxAttempts {
			break
		}
		wait := c.policy.Backoff(attempt)
		c.logger.WarnContext(ctx, "transport connect failed, retrying",
			"transport", c.name,
			"attempt", attempt,
			"max_attempts", c.policy.MaxAttempts,
			"backoff", wait,
			"error", err,
		)
		if !c.clock.Sleep(ctx, wait, nil) {
			return zero, errors.Join(ctx.Err(), lastErr)
		}
	}
	return zero, fmt.Errorf("%s: connect failed after %d attempts: %w", c.name, c.policy.MaxAttempts, lastErr)
}
