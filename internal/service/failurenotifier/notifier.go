package failurenotifier

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/target/mailrelay/internal/observability/notify"
)

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the failure notifier service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
	// MinFailed suppresses recipient-failure notifications below this count. Aborts always notify.
	MinFailed int
}

// Service dispatches failure events to all registered sinks.
type Service struct {
	logger    *slog.Logger
	sinks     []SinkRegistration
	minFailed int
}

// NewService constructs a failure notifier.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		name := entry.Name
		if name == "" {
			name = "sink"
		}
		sinks = append(sinks, SinkRegistration{Name: name, Sink: entry.Sink})
	}

	return &Service{
		logger:    logger.With("component", "failure_notifier"),
		sinks:     sinks,
		minFailed: max(opts.MinFailed, 1),
	}
}

// NotifyDispatchFailure fans the payload out to every sink and waits for delivery.
// Sink errors are logged, never returned.
func (s *Service) NotifyDispatchFailure(ctx context.Context, payload notify.DispatchFailurePayload) {
	if s == nil || len(s.sinks) == 0 {
		return
	}

	if payload.Reason == notify.ReasonRecipientFailures && payload.Failed < s.minFailed {
		s.logger.DebugContext(ctx, "skipping notification below failure threshold",
			"job_id", payload.JobID,
			"failed", payload.Failed,
			"threshold", s.minFailed,
		)
		return
	}

	if payload.Severity == "" {
		payload.Severity = notify.SeverityCritical
		if payload.Reason == notify.ReasonRecipientFailures {
			payload.Severity = notify.SeverityWarning
		}
	}

	var g errgroup.Group
	for _, entry := range s.sinks {
		g.Go(func() error {
			if err := entry.Sink.SendDispatchFailure(ctx, payload); err != nil {
				s.logger.ErrorContext(ctx, "failure notifier delivery error",
					"sink", entry.Name,
					"job_id", payload.JobID,
					"reason", payload.Reason,
					"error", err,
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Enabled reports whether the notifier has any active sinks.
func (s *Service) Enabled() bool {
	return s != nil && len(s.sinks) > 0
}
