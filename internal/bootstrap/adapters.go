package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/mailrelay/internal/adapters/statsreporter"
	"github.com/target/mailrelay/internal/core"
	"github.com/target/mailrelay/internal/observability/statsd"
	"github.com/target/mailrelay/internal/service"
)

// StatsReporterConfig contains configuration for the stats reporter.
type StatsReporterConfig struct {
	// Source is the live dispatcher when it runs in this process; nil reads Store.
	Source   service.DispatchStateReader
	Store    core.StateStore
	Interval time.Duration
	Metrics  statsd.Sink
	Logger   *slog.Logger
}

// RunStatsReporter starts the stats reporter service.
func RunStatsReporter(ctx context.Context, cfg StatsReporterConfig) error {
	runner, err := statsreporter.NewRunner(statsreporter.RunnerOptions{
		Source:   cfg.Source,
		Store:    cfg.Store,
		Interval: cfg.Interval,
		Metrics:  cfg.Metrics,
		Logger:   cfg.Logger,
	})
	if err != nil {
		return fmt.Errorf("create stats reporter runner: %w", err)
	}

	return runner.Run(ctx)
}
