// Package statsreporter provides adapters for running the dispatch stats reporter.
package statsreporter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/mailrelay/internal/core"
	"github.com/target/mailrelay/internal/domain/model"
	"github.com/target/mailrelay/internal/observability/statsd"
	"github.com/target/mailrelay/internal/service"
)

// Runner provides a simple adapter to run the stats reporter loop.
type Runner struct {
	reporter *service.StatsReporter
	logger   *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	// Source is read on every tick. When nil, Store is read instead, which lets a
	// reporter-only process observe a dispatcher running elsewhere.
	Source   service.DispatchStateReader
	Store    core.StateStore
	Interval time.Duration
	Metrics  statsd.Sink
	Logger   *slog.Logger
}

// NewRunner creates a new stats reporter runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}

	source := opts.Source
	if source == nil {
		source = &storeStateReader{store: opts.Store, logger: opts.Logger}
	}

	reporter, err := service.NewStatsReporter(service.StatsReporterOptions{
		Source:   source,
		Metrics:  opts.Metrics,
		Interval: opts.Interval,
		Logger:   opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("wire stats reporter: %w", err)
	}

	return &Runner{reporter: reporter, logger: opts.Logger}, nil
}

// validateRunnerOptions validates and sets defaults for RunnerOptions.
func validateRunnerOptions(opts *RunnerOptions) error {
	if opts.Source == nil && opts.Store == nil {
		return errors.New("state source or state store is required")
	}
	if opts.Metrics == nil {
		return errors.New("metrics sink is required; enable OBSERVABILITY_METRICS_ENABLED")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return nil
}

// Run starts the reporter loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting stats reporter runner")
	return r.reporter.Run(ctx)
}

// storeStateReader reads the persisted state on every call.
type storeStateReader struct {
	store  core.StateStore
	logger *slog.Logger
}

func (s *storeStateReader) State(ctx context.Context) *model.DispatchState {
	st, err := s.store.Load(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "stats reporter could not load dispatch state", "error", err)
		return nil
	}
	return st
}
