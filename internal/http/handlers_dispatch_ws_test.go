package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/target/mailrelay/internal/domain/model"
	"github.com/target/mailrelay/internal/mocks/scripted"
)

func dialStream(t *testing.T, srv *httptest.Server, origin string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/dispatch/ws"
	ws, err := websocket.Dial(url, "", origin)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func receiveFrame(t *testing.T, ws *websocket.Conn) StreamFrame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame StreamFrame
	require.NoError(t, websocket.JSON.Receive(ws, &frame))
	return frame
}

func TestEventStream_SnapshotThenEvents(t *testing.T) {
	f := newDispatchFixture(t, &scripted.Transport{}, "")
	srv := httptest.NewServer(f.router)
	t.Cleanup(srv.Close)

	f.svc.AppendLog(context.Background(), "before connect", model.LogLevelInfo)

	ws := dialStream(t, srv, "http://localhost/")
	first := receiveFrame(t, ws)
	require.Equal(t, StreamActionState, first.Action)
	require.NotNil(t, first.State)
	require.Len(t, first.State.Logs, 1)
	assert.Equal(t, "before connect", first.State.Logs[0].Message)

	require.Eventually(t, func() bool { return f.svc.Events().Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	f.svc.AppendLog(context.Background(), "Sending batch 1 of 1 (1 recipients)", model.LogLevelWarning)
	logFrame := receiveFrame(t, ws)
	assert.Equal(t, string(model.DispatchEventNewLog), logFrame.Action)
	require.NotNil(t, logFrame.Log)
	assert.Equal(t, model.LogLevelWarning, logFrame.Log.Level)
	require.NotNil(t, logFrame.Stats)

	f.svc.ClearLogs(context.Background())
	assert.Equal(t, string(model.DispatchEventLogsCleared), receiveFrame(t, ws).Action)

	require.NoError(t, f.svc.Reset(context.Background()))
	assert.Equal(t, string(model.DispatchEventStateReset), receiveFrame(t, ws).Action)
}

func TestEventStream_ListenerDisconnectUnsubscribes(t *testing.T) {
	f := newDispatchFixture(t, &scripted.Transport{}, "")
	srv := httptest.NewServer(f.router)
	t.Cleanup(srv.Close)

	ws := dialStream(t, srv, "http://localhost/")
	receiveFrame(t, ws)
	require.Eventually(t, func() bool { return f.svc.Events().Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, ws.Close())
	require.Eventually(t, func() bool { return f.svc.Events().Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestEventStream_RejectsDisallowedOrigin(t *testing.T) {
	f := newDispatchFixture(t, &scripted.Transport{}, "")
	router := NewRouter(RouterServices{
		Dispatch:       f.svc,
		AllowedOrigins: []string{"chrome-extension://abc"},
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/dispatch/ws"
	_, err := websocket.Dial(url, "", "https://evil.example")
	require.Error(t, err)

	ws, err := websocket.Dial(url, "", "chrome-extension://abc")
	require.NoError(t, err)
	defer ws.Close()
	assert.Equal(t, StreamActionState, receiveFrame(t, ws).Action)
}

func TestEventStream_RequiresToken(t *testing.T) {
	f := newDispatchFixture(t, &scripted.Transport{}, "s3cret")
	srv := httptest.NewServer(f.router)
	t.Cleanup(srv.Close)

	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/dispatch/ws"
	_, err := websocket.Dial(base, "", "http://localhost/")
	require.Error(t, err)

	ws, err := websocket.Dial(base+"?token=s3cret", "", "http://localhost/")
	require.NoError(t, err)
	defer ws.Close()
	assert.Equal(t, StreamActionState, receiveFrame(t, ws).Action)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
