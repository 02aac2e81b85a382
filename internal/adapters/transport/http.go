package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/target/mailrelay/internal/core"
	"github.com/target/mailrelay/internal/domain/dispatch"
	"github.com/target/mailrelay/internal/domain/model"
)

const (
	sendBatchPath        = "/send-batch"
	healthPath           = "/health"
	maxResponseBodyBytes = 1 << 20
	defaultHTTPTimeout   = 90 * time.Second
	defaultLogsPath      = "logs"
)

// HTTPOptions configure an HTTPTransport.
type HTTPOptions struct {
	BaseURL   string                   // Required: sending server base URL
	AuthToken string                   // Optional: bearer token
	// ResultPath is a JMESPath expression selecting the {successful, failed} object from the
	// response body. Empty means the body is the result itself.
	ResultPath string
	// LogsPath selects an optional array of {message, type} server log lines. Defaults to "logs".
	LogsPath string
	Client   *http.Client             // Optional
	Policy   dispatch.ReconnectPolicy // Required
	Clock    dispatch.Clock           // Optional
	Logger   *slog.Logger             // Optional
}

// HTTPTransport submits each batch as a POST to the sending server.
// Opening a session probes the health endpoint so an unreachable server aborts the job up front.
type HTTPTransport struct {
	baseURL    string
	token      string
	resultPath string
	logsPath   string
	client     *http.Client
	connector  connector
	logger     *slog.Logger
}

// NewHTTPTransport validates opts and compiles the JMESPath expressions.
func NewHTTPTransport(opts HTTPOptions) (*HTTPTransport, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("http transport base URL is required")
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return nil, fmt.Errorf("invalid http transport URL scheme: %s", base)
	}

	resultPath := strings.TrimSpace(opts.ResultPath)
	if resultPath != "" {
		if _, err := jmespath.Compile(resultPath); err != nil {
			return nil, fmt.Errorf("invalid result JMESPath: %w", err)
		}
	}
	logsPath := strings.TrimSpace(opts.LogsPath)
	if logsPath == "" {
		logsPath = defaultLogsPath
	}
	if _, err := jmespath.Compile(logsPath); err != nil {
		return nil, fmt.Errorf("invalid logs JMESPath: %w", err)
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "transport", "transport", "http")

	conn, err := newConnector("http", opts.Policy, opts.Clock, logger)
	if err != nil {
		return nil, err
	}
	return &HTTPTransport{
		baseURL:    base,
		token:      opts.AuthToken,
		resultPath: resultPath,
		logsPath:   logsPath,
		client:     client,
		connector:  conn,
		logger:     logger,
	}, nil
}

// Name returns "http".
func (t *HTTPTransport) Name() string { return "http" }

// Dial probes the sending server's health endpoint, retrying per the reconnect policy.
func (t *HTTPTransport) Dial(ctx context.Context, opts core.SessionOptions) (core.TransportSession, error) {
	if _, err := retry(ctx, t.connector, t.probe); err != nil {
		return nil, err
	}
	return &httpSession{transport: t, opts: opts}, nil
}

func (t *HTTPTransport) probe(ctx context.Context) (struct{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+healthPath, nil)
	if err != nil {
		return struct{}{}, fmt.Errorf("build request: %w", err)
	}
	t.authorize(req)
	resp, err := t.client.Do(req)
	if err != nil {
		return struct{}{}, fmt.Errorf("health probe: %w", err)
	}
	drainAndClose(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return struct{}{}, fmt.Errorf("health probe: unexpected status %d", resp.StatusCode)
	}
	return struct{}{}, nil
}

func (t *HTTPTransport) authorize(req *http.Request) {
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
}

type httpSession struct {
	transport *HTTPTransport
	opts      core.SessionOptions

	mu     sync.Mutex
	closed bool
}

// SubmitBatch posts the batch and extracts the result from the response body.
func (s *httpSession) SubmitBatch(ctx context.Context, batch model.Batch) (model.BatchResult, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return model.BatchResult{}, ErrSessionClosed
	}

	t := s.transport
	payload, err := json.Marshal(batch)
	if err != nil {
		return model.BatchResult{}, fmt.Errorf("marshal batch: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+sendBatchPath, bytes.NewReader(payload))
	if err != nil {
		return model.BatchResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	t.authorize(req)

	resp, err := t.client.Do(req)
	if err != nil {
		return model.BatchResult{}, fmt.Errorf("send batch: %w", err)
	}
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	drainAndClose(resp.Body)
	if readErr != nil {
		return model.BatchResult{}, fmt.Errorf("read response body: %w", readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return model.BatchResult{}, &ServerError{Message: fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return model.BatchResult{}, fmt.Errorf("decode response: %w", err)
	}
	s.forwardLogs(doc)
	return t.extractResult(doc)
}

func (s *httpSession) forwardLogs(doc any) {
	if s.opts.OnServerLog == nil {
		return
	}
	found, err := jmespath.Search(s.transport.logsPath, doc)
	if err != nil || found == nil {
		return
	}
	var lines []struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	}
	if err := remarshal(found, &lines); err != nil {
		s.transport.logger.Debug("ignoring malformed server logs", "error", err)
		return
	}
	for _, l := range lines {
		if l.Message != "" {
			s.opts.OnServerLog(l.Message, model.ParseLogLevel(l.Type))
		}
	}
}

func (t *HTTPTransport) extractResult(doc any) (model.BatchResult, error) {
	selected := doc
	if t.resultPath != "" {
		v, err := jmespath.Search(t.resultPath, doc)
		if err != nil {
			return model.BatchResult{}, fmt.Errorf("evaluate result JMESPath: %w", err)
		}
		if v == nil {
			return model.BatchResult{}, fmt.Errorf("result JMESPath %q matched nothing", t.resultPath)
		}
		selected = v
	}
	var res model.BatchResult
	if err := remarshal(selected, &res); err != nil {
		return model.BatchResult{}, fmt.Errorf("decode batch result: %w", err)
	}
	return res, nil
}

// Close marks the session closed. HTTP sessions hold no connection of their own.
func (s *httpSession) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func remarshal(in any, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxResponseBodyBytes))
	_ = body.Close()
}

var (
	_ core.Transport        = (*HTTPTransport)(nil)
	_ core.TransportSession = (*httpSession)(nil)
)
