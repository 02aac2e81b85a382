package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/target/mailrelay/internal/core"
	"github.com/target/mailrelay/internal/domain/dispatch"
	"github.com/target/mailrelay/internal/domain/model"
)

// Frame event names exchanged with the sending server.
const (
	EventSendBatch   = "send_batch"
	EventBatchResult = "batch_result"
	EventLogUpdate   = "log_update"
	EventError       = "error"
)

// Frame is one JSON message on the websocket. Batch requests and their results are
// correlated by ID; log_update frames carry Message and Type and have no ID.
type Frame struct {
	Event   string             `json:"event"`
	ID      string             `json:"id,omitempty"`
	Batch   *model.Batch       `json:"batch,omitempty"`
	Result  *model.BatchResult `json:"result,omitempty"`
	Message string             `json:"message,omitempty"`
	Type    string             `json:"type,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// ServerError is an error frame reported by the sending server.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return "sending server reported an error"
	}
	return "sending server reported an error: " + e.Message
}

// WebSocketOptions configure a WebSocketTransport.
type WebSocketOptions struct {
	URL       string                   // Required: ws:// or wss:// endpoint
	Origin    string                   // Optional: defaults to the URL's http(s) equivalent
	AuthToken string                   // Optional: sent as a bearer token on the handshake
	Policy    dispatch.ReconnectPolicy // Required
	Clock     dispatch.Clock           // Optional
	Logger    *slog.Logger             // Optional
}

// WebSocketTransport talks to the sending server over a single persistent websocket per session.
type WebSocketTransport struct {
	cfg       *websocket.Config
	connector connector
	logger    *slog.Logger
}

// NewWebSocketTransport validates opts and builds the handshake configuration.
func NewWebSocketTransport(opts WebSocketOptions) (*WebSocketTransport, error) {
	url := strings.TrimSpace(opts.URL)
	if url == "" {
		return nil, errors.New("websocket transport URL is required")
	}
	origin := strings.TrimSpace(opts.Origin)
	if origin == "" {
		origin = defaultOrigin(url)
	}
	cfg, err := websocket.NewConfig(url, origin)
	if err != nil {
		return nil, fmt.Errorf("websocket config: %w", err)
	}
	if opts.AuthToken != "" {
		cfg.Header.Set("Authorization", "Bearer "+opts.AuthToken)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "transport", "transport", "websocket")

	conn, err := newConnector("websocket", opts.Policy, opts.Clock, logger)
	if err != nil {
		return nil, err
	}
	return &WebSocketTransport{cfg: cfg, connector: conn, logger: logger}, nil
}

func defaultOrigin(url string) string {
	switch {
	case strings.HasPrefix(url, "wss://"):
		return "https://" + hostOf(strings.TrimPrefix(url, "wss://"))
	case strings.HasPrefix(url, "ws://"):
		return "http://" + hostOf(strings.TrimPrefix(url, "ws://"))
	default:
		return "http://localhost/"
	}
}

func hostOf(rest string) string {
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return rest[:i] + "/"
	}
	return rest + "/"
}

// Name returns "websocket".
func (t *WebSocketTransport) Name() string { return "websocket" }

// Dial opens the websocket, retrying per the reconnect policy.
func (t *WebSocketTransport) Dial(ctx context.Context, opts core.SessionOptions) (core.TransportSession, error) {
	s := &wsSession{transport: t, opts: opts, logger: t.logger.With("job_id", opts.JobID)}
	c, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	s.conn = c
	return s, nil
}

func (t *WebSocketTransport) open(ctx context.Context) (*websocket.Conn, error) {
	return t.cfg.DialContext(ctx)
}

// wsSession owns the current connection. A dropped connection is re-dialed on the next submit.
type wsSession struct {
	transport *WebSocketTransport
	opts      core.SessionOptions
	logger    *slog.Logger

	mu     sync.Mutex
	conn   *wsConn
	closed bool
}

func (s *wsSession) connect(ctx context.Context) (*wsConn, error) {
	ws, err := retry(ctx, s.transport.connector, s.transport.open)
	if err != nil {
		return nil, err
	}
	c := newWSConn(ws, s.opts.OnServerLog, s.logger)
	go c.readLoop()
	return c, nil
}

func (s *wsSession) current(ctx context.Context) (*wsConn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.conn != nil && !s.conn.isDone() {
		return s.conn, nil
	}
	s.logger.WarnContext(ctx, "websocket connection lost, reconnecting")
	c, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	s.conn = c
	return c, nil
}

// SubmitBatch sends a send_batch frame and waits for the matching batch_result or error.
func (s *wsSession) SubmitBatch(ctx context.Context, batch model.Batch) (model.BatchResult, error) {
	c, err := s.current(ctx)
	if err != nil {
		return model.BatchResult{}, err
	}

	id := uuid.NewString()
	replies := c.register(id)
	defer c.unregister(id)

	if err := c.send(Frame{Event: EventSendBatch, ID: id, Batch: &batch}); err != nil {
		c.fail(err)
		return model.BatchResult{}, fmt.Errorf("send batch: %w", err)
	}

	select {
	case f := <-replies:
		if f.Event == EventError {
			return model.BatchResult{}, &ServerError{Message: f.Error}
		}
		if f.Result == nil {
			return model.BatchResult{}, errors.New("batch_result frame without result")
		}
		return *f.Result, nil
	case <-c.done:
		return model.BatchResult{}, c.cause()
	case <-ctx.Done():
		return model.BatchResult{}, ctx.Err()
	}
}

// Close closes the current connection. Later submits fail with ErrSessionClosed.
func (s *wsSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.conn == nil {
		return nil
	}
	return s.conn.close()
}

// wsConn is one physical websocket plus its reader goroutine.
type wsConn struct {
	ws     *websocket.Conn
	onLog  core.ServerLogHandler
	logger *slog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan Frame
	err     error

	done      chan struct{}
	closeOnce sync.Once
}

func newWSConn(ws *websocket.Conn, onLog core.ServerLogHandler, logger *slog.Logger) *wsConn {
	return &wsConn{
		ws:      ws,
		onLog:   onLog,
		logger:  logger,
		pending: make(map[string]chan Frame),
		done:    make(chan struct{}),
	}
}

func (c *wsConn) send(f Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return websocket.JSON.Send(c.ws, f)
}

func (c *wsConn) register(id string) <-chan Frame {
	ch := make(chan Frame, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	return ch
}

func (c *wsConn) unregister(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *wsConn) deliver(f Frame) {
	c.mu.Lock()
	ch, ok := c.pending[f.ID]
	c.mu.Unlock()
	if !ok {
		c.logger.Warn("dropping frame for unknown request", "event", f.Event, "id", f.ID)
		return
	}
	select {
	case ch <- f:
	default:
	}
}

func (c *wsConn) readLoop() {
	defer close(c.done)
	for {
		var f Frame
		if err := websocket.JSON.Receive(c.ws, &f); err != nil {
			c.fail(err)
			return
		}
		switch f.Event {
		case EventLogUpdate:
			if c.onLog != nil && f.Message != "" {
				c.onLog(f.Message, model.ParseLogLevel(f.Type))
			}
		case EventBatchResult:
			c.deliver(f)
		case EventError:
			if f.ID != "" {
				c.deliver(f)
				continue
			}
			c.fail(&ServerError{Message: f.Error})
			return
		default:
			c.logger.Debug("ignoring unknown frame", "event", f.Event)
		}
	}
}

// fail records the first connection error and closes the socket so readLoop exits.
func (c *wsConn) fail(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
	if cerr := c.close(); cerr != nil {
		c.logger.Debug("websocket close after failure", "error", cerr)
	}
}

func (c *wsConn) cause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		return ErrDisconnected
	}
	var se *ServerError
	if errors.As(c.err, &se) {
		return c.err
	}
	return fmt.Errorf("%w: %w", ErrDisconnected, c.err)
}

func (c *wsConn) isDone() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *wsConn) close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.ws.Close()
	})
	return err
}

var (
	_ core.Transport        = (*WebSocketTransport)(nil)
	_ core.TransportSession = (*wsSession)(nil)
)
