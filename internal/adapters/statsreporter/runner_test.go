package statsreporter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/mailrelay/internal/domain/model"
	"github.com/target/mailrelay/internal/mocks"
	"github.com/target/mailrelay/internal/observability/statsd"
)

func TestNewRunner_Validation(t *testing.T) {
	_, err := NewRunner(RunnerOptions{Metrics: &statsd.Recorder{}, Interval: time.Second})
	require.Error(t, err)

	ctrl := gomock.NewController(t)
	_, err = NewRunner(RunnerOptions{Store: mocks.NewMockStateStore(ctrl), Interval: time.Second})
	require.Error(t, err)
}

func TestRunner_ReadsStore(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStateStore(ctrl)

	st := model.NewDispatchState()
	st.BeginJob("job-1", 4)
	st.RecordSent("a@example.com")
	store.EXPECT().Load(gomock.Any()).Return(st, nil).MinTimes(1)

	rec := &statsd.Recorder{}
	runner, err := NewRunner(RunnerOptions{Store: store, Interval: time.Hour, Metrics: rec})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	require.Eventually(t, func() bool { return len(rec.Named("dispatch.state.total")) > 0 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	total := rec.Named("dispatch.state.total")
	assert.InDelta(t, 4, total[0].Value, 0)
	assert.InDelta(t, 1, rec.Named("dispatch.state.sent")[0].Value, 0)
}

func TestStoreStateReader_LoadErrorSkipsReport(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStateStore(ctrl)
	store.EXPECT().Load(gomock.Any()).Return(nil, errors.New("redis down"))

	rec := &statsd.Recorder{}
	runner, err := NewRunner(RunnerOptions{Store: store, Interval: time.Hour, Metrics: rec})
	require.NoError(t, err)

	runner.reporter.ReportOnce(context.Background())
	assert.Empty(t, rec.Metrics())
}
