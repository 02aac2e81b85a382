package transport

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/target/mailrelay/config"
	"github.com/target/mailrelay/internal/core"
	"github.com/target/mailrelay/internal/domain/dispatch"
)

// FactoryOptions hold the dependencies shared by every transport kind.
type FactoryOptions struct {
	Config config.TransportConfig
	Logger *slog.Logger
	Clock  dispatch.Clock
	Client *http.Client // Optional: overrides the HTTP transport's client
}

// New builds the transport selected by cfg.Kind.
func New(opts FactoryOptions) (core.Transport, error) {
	cfg := opts.Config
	policy := cfg.Reconnect.Policy()
	switch cfg.Kind {
	case config.TransportKindWebSocket, "":
		t, err := NewWebSocketTransport(WebSocketOptions{
			URL:       cfg.URL,
			Origin:    cfg.Origin,
			AuthToken: cfg.AuthToken,
			Policy:    policy,
			Clock:     opts.Clock,
			Logger:    opts.Logger,
		})
		if err != nil {
			return nil, err
		}
		return t, nil
	case config.TransportKindHTTP:
		client := opts.Client
		if client == nil {
			client = &http.Client{Timeout: cfg.RequestTimeout}
		}
		t, err := NewHTTPTransport(HTTPOptions{
			BaseURL:    cfg.URL,
			AuthToken:  cfg.AuthToken,
			ResultPath: cfg.ResultPath,
			LogsPath:   cfg.LogsPath,
			Client:     client,
			Policy:     policy,
			Clock:      opts.Clock,
			Logger:     opts.Logger,
		})
		if err != nil {
			return nil, err
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unknown transport kind %q", cfg.Kind)
	}
}
