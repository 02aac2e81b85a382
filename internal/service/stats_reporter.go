package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/mailrelay/internal/domain/model"
	"github.com/target/mailrelay/internal/observability/metrics"
	"github.com/target/mailrelay/internal/observability/statsd"
)

// DispatchStateReader exposes the current dispatch state.
type DispatchStateReader interface {
	State(ctx context.Context) *model.DispatchState
}

// StatsReporterOptions groups dependencies for StatsReporter.
type StatsReporterOptions struct {
	Source   DispatchStateReader // Required
	Metrics  statsd.Sink         // Required
	Interval time.Duration       // Required: must be positive
	Logger   *slog.Logger        // Optional
}

// StatsReporter periodically publishes dispatch progress gauges.
type StatsReporter struct {
	source   DispatchStateReader
	metrics  statsd.Sink
	interval time.Duration
	logger   *slog.Logger
}

// NewStatsReporter constructs a StatsReporter.
func NewStatsReporter(opts StatsReporterOptions) (*StatsReporter, error) {
	if opts.Source == nil {
		return nil, errors.New("state source is required")
	}
	if opts.Metrics == nil {
		return nil, errors.New("metrics sink is required")
	}
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", opts.Interval)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StatsReporter{
		source:   opts.Source,
		metrics:  opts.Metrics,
		interval: opts.Interval,
		logger:   logger.With("component", "stats_reporter"),
	}, nil
}

// Run emits gauges immediately and then every interval until ctx is cancelled.
func (r *StatsReporter) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting stats reporter", "interval", r.interval)

	r.waitWithJitter(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.ReportOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "stats reporter stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			r.ReportOnce(ctx)
		}
	}
}

// ReportOnce emits one set of gauges for the current state.
func (r *StatsReporter) ReportOnce(ctx context.Context) {
	st := r.source.State(ctx)
	if st == nil {
		return
	}
	metrics.EmitState(r.metrics, metrics.StateGauges{
		Running:   st.IsRunning,
		Sent:      st.Stats.EmailsSent,
		Failed:    st.Stats.EmailsFailed,
		Total:     st.Stats.TotalRecipients,
		LogLength: len(st.Logs),
	})
}

// waitWithJitter adds a random delay up to 10% of the interval so replicas do not report in lockstep.
func (r *StatsReporter) waitWithJitter(ctx context.Context) {
	maxJitter := int64(r.interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		r.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	timer := time.NewTimer(jitter)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
