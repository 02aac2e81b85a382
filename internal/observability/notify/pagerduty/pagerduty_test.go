package pagerduty

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mailrelay/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
}

func TestBuildEventDefaults(t *testing.T) {
	client, err := NewClient(Config{RoutingKey: "key", Timeout: time.Second})
	require.NoError(t, err)

	event := client.buildEvent(notify.DispatchFailurePayload{
		JobID:      "job-123",
		Reason:     notify.ReasonRecipientFailures,
		Failed:     3,
		Total:      50,
		Error:      "boom",
		ErrorClass: "batch_failure",
		Metadata:   map[string]string{"batches": "2", "job_id": "ignored"},
	})

	assert.Equal(t, "dispatch:job-123:recipient_failures", event["dedup_key"])

	section, ok := event["payload"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, notify.SeverityCritical, section["severity"])
	assert.Equal(t, "mailrelay", section["source"])
	assert.Equal(t, "dispatch", section["component"])
	assert.Equal(t, "Dispatch job-123 finished with 3 of 50 recipients failed", section["summary"])

	custom, ok := section["custom_details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "job-123", custom["job_id"])
	assert.Equal(t, "2", custom["batches"])
	assert.Equal(t, "batch_failure", custom["error_class"])
}

func TestBuildEventTransportAbort(t *testing.T) {
	client, err := NewClient(Config{RoutingKey: "key"})
	require.NoError(t, err)

	event := client.buildEvent(notify.DispatchFailurePayload{Reason: notify.ReasonTransportConnect, Severity: "WARNING"})
	section := event["payload"].(map[string]any)
	assert.Equal(t, "Dispatch unknown aborted: sending server unreachable", section["summary"])
	assert.Equal(t, "warning", section["severity"])
}

func TestSendDispatchFailurePostsEvent(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client, err := NewClient(Config{RoutingKey: "rk", Endpoint: srv.URL, Client: srv.Client()})
	require.NoError(t, err)

	require.NoError(t, client.SendDispatchFailure(context.Background(), notify.DispatchFailurePayload{JobID: "j"}))
	assert.Equal(t, "rk", got["routing_key"])
	assert.Equal(t, "trigger", got["event_action"])
}

func TestSendDispatchFailureError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":"invalid event"}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{RoutingKey: "rk", Endpoint: srv.URL, Client: srv.Client()})
	require.NoError(t, err)

	err = client.SendDispatchFailure(context.Background(), notify.DispatchFailurePayload{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid event")
}
