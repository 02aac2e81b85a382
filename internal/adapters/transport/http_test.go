package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mailrelay/internal/core"
	"github.com/target/mailrelay/internal/domain/model"
)

func TestHTTPTransport_SubmitBatchWithResultPath(t *testing.T) {
	var got model.Batch
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /send-batch", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": "ok",
			"data": {"result": {"successful": ["a@example.com"], "failed": [{"email": "b@example.com", "error": "invalid domain"}]}},
			"logs": [{"message": "Connected to SMTP server", "type": "info"}, {"message": "", "type": "info"}]
		}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tr, err := NewHTTPTransport(HTTPOptions{
		BaseURL:    srv.URL + "/",
		AuthToken:  "tok",
		ResultPath: "data.result",
		Policy:     testPolicy(1),
		Clock:      &recordingClock{},
	})
	require.NoError(t, err)
	assert.Equal(t, "http", tr.Name())

	logs := &logCollector{}
	session, err := tr.Dial(context.Background(), core.SessionOptions{JobID: "job-1", OnServerLog: logs.handle})
	require.NoError(t, err)
	defer session.Close()

	res, err := session.SubmitBatch(context.Background(), testBatch(2, "a@example.com", "b@example.com"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a@example.com"}, res.Successful)
	assert.Equal(t, []model.RecipientFailure{{Address: "b@example.com", Error: "invalid domain"}}, res.Failed)

	assert.Equal(t, 2, got.Index)
	assert.Equal(t, "job-1", got.JobID)
	assert.Equal(t, []serverLog{{message: "Connected to SMTP server", level: model.LogLevelInfo}}, logs.all())
}

func TestHTTPTransport_BodyIsResultByDefault(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	mux.HandleFunc("POST /send-batch", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"successful": ["a@example.com"], "failed": []}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tr, err := NewHTTPTransport(HTTPOptions{BaseURL: srv.URL, Policy: testPolicy(1)})
	require.NoError(t, err)
	session, err := tr.Dial(context.Background(), core.SessionOptions{})
	require.NoError(t, err)

	res, err := session.SubmitBatch(context.Background(), testBatch(0, "a@example.com"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a@example.com"}, res.Successful)

	require.NoError(t, session.Close())
	_, err = session.SubmitBatch(context.Background(), testBatch(1, "b@example.com"))
	require.ErrorIs(t, err, ErrSessionClosed)
}

func TestHTTPTransport_ErrorResponses(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("POST /send-batch", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "smtp relay unavailable", http.StatusBadGateway)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tr, err := NewHTTPTransport(HTTPOptions{BaseURL: srv.URL, ResultPath: "missing", Policy: testPolicy(1)})
	require.NoError(t, err)
	session, err := tr.Dial(context.Background(), core.SessionOptions{})
	require.NoError(t, err)

	_, err = session.SubmitBatch(context.Background(), testBatch(0, "a@example.com"))
	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Contains(t, serverErr.Message, "502")
	assert.Contains(t, serverErr.Message, "smtp relay unavailable")

	_, err = tr.extractResult(map[string]any{"other": true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "matched nothing")
}

func TestHTTPTransport_DialRetriesUnhealthyServer(t *testing.T) {
	var probes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if probes.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	clock := &recordingClock{}
	tr, err := NewHTTPTransport(HTTPOptions{BaseURL: srv.URL, Policy: testPolicy(3), Clock: clock})
	require.NoError(t, err)
	_, err = tr.Dial(context.Background(), core.SessionOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(3), probes.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.recorded())

	probes.Store(-10)
	_, err = tr.Dial(context.Background(), core.SessionOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 503")
}

func TestNewHTTPTransport_Validation(t *testing.T) {
	_, err := NewHTTPTransport(HTTPOptions{Policy: testPolicy(1)})
	require.Error(t, err)

	_, err = NewHTTPTransport(HTTPOptions{BaseURL: "ftp://relay", Policy: testPolicy(1)})
	require.Error(t, err)

	_, err = NewHTTPTransport(HTTPOptions{BaseURL: "http://relay", ResultPath: "data.[", Policy: testPolicy(1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid result JMESPath")

	_, err = NewHTTPTransport(HTTPOptions{BaseURL: "http://relay"})
	require.Error(t, err)
}
