package transport

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/target/mailrelay/internal/core"
	"github.com/target/mailrelay/internal/domain/model"
)

// fakeSendingServer answers send_batch frames using respond. The connection index is 1-based.
type fakeSendingServer struct {
	srv         *httptest.Server
	connections atomic.Int32
	mu          sync.Mutex
	authHeaders []string
	respond     func(conn int, ws *websocket.Conn, req Frame) bool
}

func newFakeSendingServer(t *testing.T, respond func(conn int, ws *websocket.Conn, req Frame) bool) *fakeSendingServer {
	t.Helper()
	f := &fakeSendingServer{respond: respond}
	f.srv = httptest.NewServer(websocket.Server{Handler: f.handle})
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeSendingServer) handle(ws *websocket.Conn) {
	n := int(f.connections.Add(1))
	f.mu.Lock()
	f.authHeaders = append(f.authHeaders, ws.Request().Header.Get("Authorization"))
	f.mu.Unlock()
	for {
		var req Frame
		if err := websocket.JSON.Receive(ws, &req); err != nil {
			return
		}
		if !f.respond(n, ws, req) {
			return
		}
	}
}

func (f *fakeSendingServer) url() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
}

func newTestWebSocketTransport(t *testing.T, url string, attempts int, clock *recordingClock) *WebSocketTransport {
	t.Helper()
	tr, err := NewWebSocketTransport(WebSocketOptions{
		URL:       url,
		AuthToken: "secret-token",
		Policy:    testPolicy(attempts),
		Clock:     clock,
	})
	require.NoError(t, err)
	return tr
}

func acceptAll(_ int, ws *websocket.Conn, req Frame) bool {
	_ = websocket.JSON.Send(ws, Frame{Event: EventLogUpdate, Message: "Sending batch to SMTP", Type: "info"})
	_ = websocket.JSON.Send(ws, Frame{
		Event:  EventBatchResult,
		ID:     req.ID,
		Result: &model.BatchResult{Successful: req.Batch.Recipients},
	})
	return true
}

func TestWebSocketTransport_SubmitBatch(t *testing.T) {
	var received []Frame
	var mu sync.Mutex
	srv := newFakeSendingServer(t, func(n int, ws *websocket.Conn, req Frame) bool {
		mu.Lock()
		received = append(received, req)
		mu.Unlock()
		_ = websocket.JSON.Send(ws, Frame{Event: EventLogUpdate, Message: "Failed to send to b@example.com", Type: "error"})
		_ = websocket.JSON.Send(ws, Frame{
			Event: EventBatchResult,
			ID:    req.ID,
			Result: &model.BatchResult{
				Successful: []string{"a@example.com"},
				Failed:     []model.RecipientFailure{{Address: "b@example.com", Error: "mailbox full"}},
			},
		})
		return true
	})

	tr := newTestWebSocketTransport(t, srv.url(), 1, &recordingClock{})
	assert.Equal(t, "websocket", tr.Name())

	logs := &logCollector{}
	session, err := tr.Dial(context.Background(), core.SessionOptions{JobID: "job-1", OnServerLog: logs.handle})
	require.NoError(t, err)
	defer session.Close()

	batch := testBatch(0, "a@example.com", "b@example.com")
	batch.Message.Attachments = []model.Attachment{{Filename: "report.pdf", Content: []byte("%PDF")}}
	res, err := session.SubmitBatch(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, []string{"a@example.com"}, res.Successful)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "mailbox full", res.Failed[0].Error)

	mu.Lock()
	require.Len(t, received, 1)
	assert.Equal(t, EventSendBatch, received[0].Event)
	assert.NotEmpty(t, received[0].ID)
	assert.Equal(t, []byte("%PDF"), received[0].Batch.Message.Attachments[0].Content)
	mu.Unlock()

	require.Eventually(t, func() bool { return len(logs.all()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, serverLog{message: "Failed to send to b@example.com", level: model.LogLevelError}, logs.all()[0])

	srv.mu.Lock()
	assert.Equal(t, []string{"Bearer secret-token"}, srv.authHeaders)
	srv.mu.Unlock()
}

func TestWebSocketTransport_ServerErrorFrame(t *testing.T) {
	srv := newFakeSendingServer(t, func(_ int, ws *websocket.Conn, req Frame) bool {
		_ = websocket.JSON.Send(ws, Frame{Event: EventError, ID: req.ID, Error: "SMTP authentication failed"})
		return true
	})
	tr := newTestWebSocketTransport(t, srv.url(), 1, &recordingClock{})
	session, err := tr.Dial(context.Background(), core.SessionOptions{})
	require.NoError(t, err)
	defer session.Close()

	_, err = session.SubmitBatch(context.Background(), testBatch(0, "a@example.com"))
	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, "SMTP authentication failed", serverErr.Message)
}

func TestWebSocketTransport_DisconnectFailsBatchThenReconnects(t *testing.T) {
	srv := newFakeSendingServer(t, func(n int, ws *websocket.Conn, req Frame) bool {
		if n == 1 {
			return false
		}
		return acceptAll(n, ws, req)
	})
	tr := newTestWebSocketTransport(t, srv.url(), 2, &recordingClock{})
	session, err := tr.Dial(context.Background(), core.SessionOptions{})
	require.NoError(t, err)
	defer session.Close()

	_, err = session.SubmitBatch(context.Background(), testBatch(0, "a@example.com"))
	require.ErrorIs(t, err, ErrDisconnected)

	res, err := session.SubmitBatch(context.Background(), testBatch(1, "b@example.com"))
	require.NoError(t, err)
	assert.Equal(t, []string{"b@example.com"}, res.Successful)
	assert.Equal(t, int32(2), srv.connections.Load())
}

func TestWebSocketTransport_DialRetriesThenFails(t *testing.T) {
	srv := httptest.NewServer(websocket.Server{Handler: func(*websocket.Conn) {}})
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	clock := &recordingClock{}
	tr := newTestWebSocketTransport(t, url, 3, clock)
	_, err := tr.Dial(context.Background(), core.SessionOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.recorded())
}

func TestWebSocketTransport_SubmitHonoursContext(t *testing.T) {
	srv := newFakeSendingServer(t, func(int, *websocket.Conn, Frame) bool { return true })
	tr := newTestWebSocketTransport(t, srv.url(), 1, &recordingClock{})
	session, err := tr.Dial(context.Background(), core.SessionOptions{})
	require.NoError(t, err)
	defer session.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = session.SubmitBatch(ctx, testBatch(0, "a@example.com"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWebSocketTransport_CloseIsIdempotent(t *testing.T) {
	srv := newFakeSendingServer(t, acceptAll)
	tr := newTestWebSocketTransport(t, srv.url(), 1, &recordingClock{})
	session, err := tr.Dial(context.Background(), core.SessionOptions{})
	require.NoError(t, err)

	require.NoError(t, session.Close())
	require.NoError(t, session.Close())
	_, err = session.SubmitBatch(context.Background(), testBatch(0, "a@example.com"))
	require.ErrorIs(t, err, ErrSessionClosed)
}

func TestNewWebSocketTransport_Validation(t *testing.T) {
	_, err := NewWebSocketTransport(WebSocketOptions{Policy: testPolicy(1)})
	require.Error(t, err)

	_, err = NewWebSocketTransport(WebSocketOptions{URL: "ws://localhost:1/ws"})
	require.Error(t, err)

	assert.Equal(t, "https://relay.example.com/", defaultOrigin("wss://relay.example.com/socket"))
	assert.Equal(t, "http://localhost:5000/", defaultOrigin("ws://localhost:5000"))
}
