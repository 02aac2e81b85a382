// Package core defines the ports the dispatch service depends on.
package core

import (
	"context"
	"time"

	"github.com/target/mailrelay/internal/domain/model"
)

// These interfaces are the contracts between the service layer and its adapters.
// Service implementations depend on them, never on concrete stores or transports.

// StateStore persists the single process-wide DispatchState.
type StateStore interface {
	// Load returns the persisted state, or a zero state when none has been saved.
	Load(ctx context.Context) (*model.DispatchState, error)
	// Save replaces the persisted state.
	Save(ctx context.Context, state *model.DispatchState) error
}

// CacheRepository is a minimal key/value store with TTL support.
type CacheRepository interface {
	// Set stores value under key. A zero TTL means the key never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns nil, nil when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete reports whether the key existed.
	Delete(ctx context.Context, key string) (bool, error)
	// Health checks the backing connection.
	Health(ctx context.Context) error
}

// ServerLogHandler receives log lines pushed by the sending server during a session.
type ServerLogHandler func(message string, level model.LogLevel)

// SessionOptions configure one transport session.
type SessionOptions struct {
	JobID       string
	OnServerLog ServerLogHandler
}

// Transport opens sessions to the remote sending server.
type Transport interface {
	// Name identifies the transport kind in logs and metrics.
	Name() string
	// Dial opens a session, retrying per the transport's reconnect policy.
	Dial(ctx context.Context, opts SessionOptions) (TransportSession, error)
}

// TransportSession is one open connection to the sending server, used for a whole job.
type TransportSession interface {
	// SubmitBatch sends a batch and blocks until the server resolves it or ctx ends.
	SubmitBatch(ctx context.Context, batch model.Batch) (model.BatchResult, error)
	// Close releases the session. It is safe to call more than once.
	Close() error
}
