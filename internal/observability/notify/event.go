package notify

import (
	"context"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// Reason values describing why a dispatch run raised a notification.
const (
	ReasonTransportConnect  = "transport_connect"
	ReasonRecipientFailures = "recipient_failures"
)

// DispatchFailurePayload captures what we emit when a dispatch run aborts or ends with failures.
type DispatchFailurePayload struct {
	JobID       string
	Reason      string
	SenderLabel string
	Sent        int
	Failed      int
	Total       int
	Error       string
	ErrorClass  string
	Severity    string
	OccurredAt  time.Time
	Metadata    map[string]string
}

// Sink describes a destination capable of consuming dispatch failure notifications.
type Sink interface {
	SendDispatchFailure(ctx context.Context, payload DispatchFailurePayload) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, payload DispatchFailurePayload) error

// SendDispatchFailure implements the Sink interface.
func (f SinkFunc) SendDispatchFailure(ctx context.Context, payload DispatchFailurePayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}
