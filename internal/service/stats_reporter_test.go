package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mailrelay/internal/domain/model"
	"github.com/target/mailrelay/internal/observability/statsd"
)

type staticStateReader struct {
	state *model.DispatchState
}

func (s staticStateReader) State(context.Context) *model.DispatchState { return s.state.Clone() }

func TestStatsReporter_ReportOnce(t *testing.T) {
	st := model.NewDispatchState()
	st.BeginJob("job", 10)
	st.RecordSent("a@example.com")
	st.RecordFailure("b@example.com", "bounced", time.Now())
	st.Logs = append(st.Logs, model.LogEntry{Message: "hello"})

	rec := &statsd.Recorder{}
	r, err := NewStatsReporter(StatsReporterOptions{Source: staticStateReader{state: st}, Metrics: rec, Interval: time.Minute})
	require.NoError(t, err)

	r.ReportOnce(context.Background())

	gauge := func(name string) float64 {
		ms := rec.Named(name)
		require.Len(t, ms, 1, name)
		return ms[0].Value
	}
	assert.InDelta(t, 1, gauge("dispatch.state.running"), 0)
	assert.InDelta(t, 1, gauge("dispatch.state.sent"), 0)
	assert.InDelta(t, 1, gauge("dispatch.state.failed"), 0)
	assert.InDelta(t, 10, gauge("dispatch.state.total"), 0)
	assert.InDelta(t, 1, gauge("dispatch.state.log_entries"), 0)
}

func TestStatsReporter_RunStopsOnCancel(t *testing.T) {
	rec := &statsd.Recorder{}
	r, err := NewStatsReporter(StatsReporterOptions{
		Source:   staticStateReader{state: model.NewDispatchState()},
		Metrics:  rec,
		Interval: 5 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return len(rec.Named("dispatch.state.running")) >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("stats reporter did not stop")
	}
}

func TestNewStatsReporter_Validation(t *testing.T) {
	_, err := NewStatsReporter(StatsReporterOptions{Metrics: &statsd.Recorder{}, Interval: time.Second})
	require.Error(t, err)
	_, err = NewStatsReporter(StatsReporterOptions{Source: staticStateReader{}, Interval: time.Second})
	require.Error(t, err)
	_, err = NewStatsReporter(StatsReporterOptions{Source: staticStateReader{}, Metrics: &statsd.Recorder{}})
	require.Error(t, err)
}
