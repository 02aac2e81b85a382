package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/target/mailrelay/internal/domain/dispatch"
)

// TransportKind selects the sending server protocol.
type TransportKind string

const (
	// TransportKindWebSocket keeps one websocket open for the duration of a job.
	TransportKindWebSocket TransportKind = "websocket"
	// TransportKindHTTP posts each batch as a request.
	TransportKindHTTP TransportKind = "http"
)

// UnmarshalText implements encoding.TextUnmarshaler for TransportKind.
func (k *TransportKind) UnmarshalText(text []byte) error {
	v := TransportKind(strings.ToLower(strings.TrimSpace(string(text))))
	switch v {
	case TransportKindWebSocket, TransportKindHTTP:
		*k = v
		return nil
	default:
		return fmt.Errorf("invalid TransportKind: %q (valid options: websocket, http)", string(text))
	}
}

// TransportConfig describes how to reach the sending server.
type TransportConfig struct {
	Kind      TransportKind `env:"TRANSPORT_KIND"       envDefault:"websocket"`
	URL       string        `env:"TRANSPORT_URL"        envDefault:"ws://localhost:5000/ws"`
	Origin    string        `env:"TRANSPORT_ORIGIN"`
	AuthToken string        `env:"TRANSPORT_AUTH_TOKEN"`

	// ResultPath is a JMESPath expression selecting the batch result from HTTP responses.
	ResultPath string `env:"TRANSPORT_RESULT_PATH"`
	// LogsPath is a JMESPath expression selecting server log lines from HTTP responses.
	LogsPath string `env:"TRANSPORT_LOGS_PATH" envDefault:"logs"`
	// RequestTimeout bounds a single HTTP request.
	RequestTimeout time.Duration `env:"TRANSPORT_REQUEST_TIMEOUT" envDefault:"90s"`

	Reconnect ReconnectConfig `envPrefix:"TRANSPORT_RECONNECT_"`
}

// ReconnectConfig mirrors dispatch.ReconnectPolicy.
type ReconnectConfig struct {
	MaxAttempts    int           `env:"MAX_ATTEMPTS"    envDefault:"5"`
	InitialBackoff time.Duration `env:"INITIAL_BACKOFF" envDefault:"1s"`
	MaxBackoff     time.Duration `env:"MAX_BACKOFF"     envDefault:"5s"`
	Multiplier     float64       `env:"MULTIPLIER"      envDefault:"2"`
}

// Policy converts the configuration into a ReconnectPolicy.
func (r ReconnectConfig) Policy() dispatch.ReconnectPolicy {
	return dispatch.ReconnectPolicy{
		MaxAttempts:    r.MaxAttempts,
		InitialBackoff: r.InitialBackoff,
		MaxBackoff:     r.MaxBackoff,
		Multiplier:     r.Multiplier,
	}
}

// Sanitize applies guardrails to transport configuration values.
func (t *TransportConfig) Sanitize() {
	if t.Kind == "" {
		t.Kind = TransportKindWebSocket
	}
	t.URL = strings.TrimSpace(t.URL)
	t.Origin = strings.TrimSpace(t.Origin)
	t.AuthToken = strings.TrimSpace(t.AuthToken)
	t.ResultPath = strings.TrimSpace(t.ResultPath)
	if t.LogsPath = strings.TrimSpace(t.LogsPath); t.LogsPath == "" {
		t.LogsPath = "logs"
	}
	if t.RequestTimeout <= 0 {
		t.RequestTimeout = 90 * time.Second
	}

	def := dispatch.DefaultReconnectPolicy()
	if t.Reconnect.MaxAttempts < 1 {
		t.Reconnect.MaxAttempts = 1
	}
	if t.Reconnect.InitialBackoff <= 0 {
		t.Reconnect.InitialBackoff = def.InitialBackoff
	}
	if t.Reconnect.MaxBackoff < t.Reconnect.InitialBackoff {
		t.Reconnect.MaxBackoff = t.Reconnect.InitialBackoff
	}
	if t.Reconnect.Multiplier < 1 {
		t.Reconnect.Multiplier = 1
	}
}
