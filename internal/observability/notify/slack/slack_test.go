package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
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

func TestFormatMessageIncludesFields(t *testing.T) {
	client, err := NewClient(Config{
		WebhookURL: "https://hooks.slack.com/services/test",
		Channel:    "#mail-ops",
		Username:   "bot",
		Timeout:    time.Second,
	})
	require.NoError(t, err)

	msg := client.formatMessage(notify.DispatchFailurePayload{
		JobID:       "job-123",
		Reason:      notify.ReasonRecipientFailures,
		SenderLabel: "Newsletter <team>",
		Sent:        8,
		Failed:      2,
		Total:       10,
		Error:       "mailbox full",
		ErrorClass:  "recipient_failure",
	})

	assert.Equal(t, "bot", msg["username"])
	assert.Equal(t, "#mail-ops", msg["channel"])

	text, ok := msg["text"].(string)
	require.True(t, ok)
	for _, want := range []string{
		"Dispatch finished with failures",
		"job-123",
		"Newsletter &lt;team&gt;",
		"sent 8, failed 2 of 10",
		"mailbox full",
		"recipient_failure",
	} {
		assert.Contains(t, text, want)
	}
}

func TestFormatMessageTransportAbort(t *testing.T) {
	client, err := NewClient(Config{WebhookURL: "https://hooks.slack.com/services/test"})
	require.NoError(t, err)

	msg := client.formatMessage(notify.DispatchFailurePayload{
		JobID:  "job-9",
		Reason: notify.ReasonTransportConnect,
		Error:  "connection refused",
	})
	text := msg["text"].(string)
	assert.True(t, strings.HasPrefix(text, "*Dispatch aborted*"))
	assert.NotContains(t, text, "Progress")
	_, hasChannel := msg["channel"]
	assert.False(t, hasChannel)
}

func TestFormatMessageDashboardLink(t *testing.T) {
	tcs := []struct {
		name      string
		dashboard string
		want      string
	}{
		{"valid url", "https://mail.example/logs", "<https://mail.example/logs?job=job-1|job-1>"},
		{"invalid url", "not a url", ""},
		{"empty", "", ""},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			client, err := NewClient(Config{
				WebhookURL:   "https://hooks.slack.com/services/test",
				DashboardURL: tc.dashboard,
			})
			require.NoError(t, err)
			assert.Equal(t, tc.want, client.jobLink("job-1"))
		})
	}
}

func TestSendDispatchFailureRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("try again"))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := NewClient(Config{WebhookURL: srv.URL, RetryLimit: 1, Client: srv.Client()})
	require.NoError(t, err)

	err = client.SendDispatchFailure(context.Background(), notify.DispatchFailurePayload{JobID: "job-1"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSendDispatchFailureReturnsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("invalid_token"))
	}))
	defer srv.Close()

	client, err := NewClient(Config{WebhookURL: srv.URL, Client: srv.Client()})
	require.NoError(t, err)

	err = client.SendDispatchFailure(context.Background(), notify.DispatchFailurePayload{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_token")
}
