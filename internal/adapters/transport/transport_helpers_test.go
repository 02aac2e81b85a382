package transport

import (
	"context"
	"sync"
	"time"

	"github.com/target/mailrelay/internal/domain/dispatch"
	"github.com/target/mailrelay/internal/domain/model"
)

// recordingClock never blocks; it records requested sleeps.
type recordingClock struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (c *recordingClock) Now() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }

func (c *recordingClock) Sleep(ctx context.Context, d time.Duration, _ <-chan struct{}) bool {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	return ctx.Err() == nil
}

func (c *recordingClock) recorded() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

func testPolicy(attempts int) dispatch.ReconnectPolicy {
	return dispatch.ReconnectPolicy{
		MaxAttempts:    attempts,
		InitialBackoff: time.Second,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2,
	}
}

type serverLog struct {
	message string
	level   model.LogLevel
}

type logCollector struct {
	mu    sync.Mutex
	lines []serverLog
}

func (c *logCollector) handle(message string, level model.LogLevel) {
	c.mu.Lock()
	c.lines = append(c.lines, serverLog{message: message, level: level})
	c.mu.Unlock()
}

func (c *logCollector) all() []serverLog {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]serverLog(nil), c.lines...)
}

func testBatch(index int, recipients ...string) model.Batch {
	return model.Batch{
		JobID:       "job-1",
		Index:       index,
		Recipients:  recipients,
		Message:     model.Message{Subject: "Hello", Body: "Body"},
		SenderLabel: "Ops",
	}
}
