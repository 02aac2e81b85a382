package failurenotifier

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mailrelay/internal/observability/notify"
)

type captureSink struct {
	mu       sync.Mutex
	payloads []notify.DispatchFailurePayload
	err      error
}

func (c *captureSink) SendDispatchFailure(_ context.Context, p notify.DispatchFailurePayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, p)
	return c.err
}

func (c *captureSink) got() []notify.DispatchFailurePayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]notify.DispatchFailurePayload(nil), c.payloads...)
}

func TestNotifyDispatchFailure_FansOut(t *testing.T) {
	a := &captureSink{}
	b := &captureSink{err: errors.New("webhook down")}
	svc := NewService(Options{Sinks: []SinkRegistration{
		{Name: "slack", Sink: a},
		{Sink: b},
		{Name: "nil", Sink: nil},
	}})
	require.True(t, svc.Enabled())

	svc.NotifyDispatchFailure(context.Background(), notify.DispatchFailurePayload{
		JobID:  "job-1",
		Reason: notify.ReasonTransportConnect,
	})

	require.Len(t, a.got(), 1)
	require.Len(t, b.got(), 1)
	assert.Equal(t, notify.SeverityCritical, a.got()[0].Severity)
}

func TestNotifyDispatchFailure_RecipientFailuresAreWarnings(t *testing.T) {
	sink := &captureSink{}
	svc := NewService(Options{Sinks: []SinkRegistration{{Name: "pd", Sink: sink}}})

	svc.NotifyDispatchFailure(context.Background(), notify.DispatchFailurePayload{
		Reason: notify.ReasonRecipientFailures,
		Failed: 2,
	})
	require.Len(t, sink.got(), 1)
	assert.Equal(t, notify.SeverityWarning, sink.got()[0].Severity)
}

func TestNotifyDispatchFailure_Threshold(t *testing.T) {
	sink := &captureSink{}
	svc := NewService(Options{Sinks: []SinkRegistration{{Name: "pd", Sink: sink}}, MinFailed: 5})

	svc.NotifyDispatchFailure(context.Background(), notify.DispatchFailurePayload{
		Reason: notify.ReasonRecipientFailures,
		Failed: 4,
	})
	assert.Empty(t, sink.got())

	svc.NotifyDispatchFailure(context.Background(), notify.DispatchFailurePayload{
		Reason: notify.ReasonTransportConnect,
	})
	assert.Len(t, sink.got(), 1)
}

func TestNotifyDispatchFailure_NoSinks(t *testing.T) {
	svc := NewService(Options{})
	assert.False(t, svc.Enabled())
	svc.NotifyDispatchFailure(context.Background(), notify.DispatchFailurePayload{})

	var nilSvc *Service
	assert.False(t, nilSvc.Enabled())
	nilSvc.NotifyDispatchFailure(context.Background(), notify.DispatchFailurePayload{})
}
