// Package metrics standardises the dispatch metrics emitted to StatsD.
package metrics

import (
	"maps"
	"time"

	obserrors "github.com/target/mailrelay/internal/observability/errors"
	"github.com/target/mailrelay/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultPartial = "partial"
	ResultStopped = "stopped"
)

// BatchMetric describes one resolved batch.
type BatchMetric struct {
	Transport string
	Sent      int
	Failed    int
	Duration  time.Duration
	Err       error
}

// EmitBatch emits per-batch outcome counts and latency.
func EmitBatch(sink statsd.Sink, in BatchMetric) {
	if sink == nil {
		return
	}

	result := ResultSuccess
	switch {
	case in.Err != nil:
		result = ResultError
	case in.Failed > 0:
		result = ResultPartial
	}
	tags := map[string]string{
		"transport": in.Transport,
		"result":    result,
	}
	if in.Err != nil {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("dispatch.batch", 1, tags)
	if in.Sent > 0 {
		sink.Count("dispatch.recipients", int64(in.Sent), withTag(tags, "outcome", "sent"))
	}
	if in.Failed > 0 {
		sink.Count("dispatch.recipients", int64(in.Failed), withTag(tags, "outcome", "failed"))
	}
	if in.Duration > 0 {
		sink.Timing("dispatch.batch.duration", in.Duration, CloneTags(tags))
	}
}

// RunMetric describes a finished dispatch run.
type RunMetric struct {
	Result   string
	Batches  int
	Duration time.Duration
	Err      error
}

// EmitRun emits the outcome of a whole dispatch run.
func EmitRun(sink statsd.Sink, in RunMetric) {
	if sink == nil {
		return
	}
	tags := map[string]string{"result": in.Result}
	if in.Err != nil {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}
	sink.Count("dispatch.run", 1, tags)
	if in.Batches > 0 {
		sink.Gauge("dispatch.run.batches", float64(in.Batches), CloneTags(tags))
	}
	if in.Duration > 0 {
		sink.Timing("dispatch.run.duration", in.Duration, CloneTags(tags))
	}
}

// StateGauges reports point-in-time dispatch progress.
type StateGauges struct {
	Running   bool
	Sent      int
	Failed    int
	Total     int
	LogLength int
}

// EmitState publishes the dispatch progress gauges.
func EmitState(sink statsd.Sink, in StateGauges) {
	if sink == nil {
		return
	}
	running := 0.0
	if in.Running {
		running = 1
	}
	sink.Gauge("dispatch.state.running", running, nil)
	sink.Gauge("dispatch.state.sent", float64(in.Sent), nil)
	sink.Gauge("dispatch.state.failed", float64(in.Failed), nil)
	sink.Gauge("dispatch.state.total", float64(in.Total), nil)
	sink.Gauge("dispatch.state.log_entries", float64(in.LogLength), nil)
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		if k != "" {
			out[k] = v
		}
	}
	return out
}

func withTag(src map[string]string, key, value string) map[string]string {
	out := make(map[string]string, len(src)+1)
	maps.Copy(out, src)
	out[key] = value
	return out
}
