package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/target/mailrelay/internal/errors"
	"github.com/target/mailrelay/internal/observability/statsd"
)

func TestEmitBatch_Partial(t *testing.T) {
	rec := &statsd.Recorder{}
	EmitBatch(rec, BatchMetric{Transport: "websocket", Sent: 20, Failed: 5, Duration: 2 * time.Second})

	batch := rec.Named("dispatch.batch")
	require.Len(t, batch, 1)
	assert.Equal(t, ResultPartial, batch[0].Tags["result"])

	recips := rec.Named("dispatch.recipients")
	require.Len(t, recips, 2)
	assert.Equal(t, "sent", recips[0].Tags["outcome"])
	assert.InDelta(t, 20, recips[0].Value, 0)
	assert.Equal(t, "failed", recips[1].Tags["outcome"])
	assert.Len(t, rec.Named("dispatch.batch.duration"), 1)
}

func TestEmitBatch_ErrorClass(t *testing.T) {
	rec := &statsd.Recorder{}
	EmitBatch(rec, BatchMetric{Transport: "http", Failed: 3, Err: apperrors.BatchFailure(1, errors.New("eof"))})

	batch := rec.Named("dispatch.batch")
	require.Len(t, batch, 1)
	assert.Equal(t, ResultError, batch[0].Tags["result"])
	assert.Equal(t, "batch_failure", batch[0].Tags["error_class"])
	assert.Empty(t, rec.Named("dispatch.batch.duration"))
}

func TestEmitRun(t *testing.T) {
	rec := &statsd.Recorder{}
	EmitRun(rec, RunMetric{Result: ResultStopped, Batches: 2, Duration: time.Second})

	run := rec.Named("dispatch.run")
	require.Len(t, run, 1)
	assert.Equal(t, ResultStopped, run[0].Tags["result"])
	assert.Len(t, rec.Named("dispatch.run.batches"), 1)
}

func TestEmitState(t *testing.T) {
	rec := &statsd.Recorder{}
	EmitState(rec, StateGauges{Running: true, Sent: 4, Failed: 1, Total: 10, LogLength: 7})

	running := rec.Named("dispatch.state.running")
	require.Len(t, running, 1)
	assert.InDelta(t, 1, running[0].Value, 0)
	assert.InDelta(t, 7, rec.Named("dispatch.state.log_entries")[0].Value, 0)
}

func TestNilSinkIsNoop(t *testing.T) {
	EmitBatch(nil, BatchMetric{})
	EmitRun(nil, RunMetric{})
	EmitState(nil, StateGauges{})
}

func TestCloneTags(t *testing.T) {
	assert.Nil(t, CloneTags(nil))
	src := map[string]string{"a": "1", "": "x"}
	out := CloneTags(src)
	assert.Equal(t, map[string]string{"a": "1"}, out)
}
