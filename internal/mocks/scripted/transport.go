// Package scripted contains hand-written transport doubles whose per-batch behaviour is
// scripted up front. They suit orchestrator and handler tests that need blocking,
// server-pushed logs, or failures without codegen.
package scripted

import (
	"context"
	"sync"

	"github.com/target/mailrelay/internal/core"
	"github.com/target/mailrelay/internal/domain/model"
)

var (
	_ core.Transport        = (*Transport)(nil)
	_ core.TransportSession = (*session)(nil)
)

// Step scripts how the session resolves one batch, matched by submission order.
type Step struct {
	// Fail maps addresses to the per-recipient error the server reports.
	Fail map[string]string
	// Err fails the whole batch.
	Err error
	// ServerLogs are pushed through the session's log handler before resolving.
	ServerLogs []string
	// Started is closed when the batch reaches the server.
	Started chan struct{}
	// Release blocks resolution until it is closed or the context ends.
	Release <-chan struct{}
}

// Transport is a core.Transport double. Zero value resolves every batch successfully.
type Transport struct {
	DialErr error
	Steps   []Step

	mu        sync.Mutex
	dials     int
	closes    int
	submitted []model.Batch
	options   []core.SessionOptions
}

// Name implements core.Transport.
func (t *Transport) Name() string { return "scripted" }

// Dial implements core.Transport.
func (t *Transport) Dial(_ context.Context, opts core.SessionOptions) (core.TransportSession, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dials++
	t.options = append(t.options, opts)
	if t.DialErr != nil {
		return nil, t.DialErr
	}
	return &session{t: t, opts: opts}, nil
}

// Dials returns how many sessions were requested.
func (t *Transport) Dials() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

// Closes returns how many times a session was closed.
func (t *Transport) Closes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closes
}

// Submitted returns a copy of every batch received so far, in order.
func (t *Transport) Submitted() []model.Batch {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.Batch, len(t.submitted))
	copy(out, t.submitted)
	return out
}

// SessionOptions returns the options passed to each Dial.
func (t *Transport) SessionOptions() []core.SessionOptions {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]core.SessionOptions(nil), t.options...)
}

func (t *Transport) record(batch model.Batch) (Step, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := len(t.submitted)
	t.submitted = append(t.submitted, batch)
	if idx < len(t.Steps) {
		return t.Steps[idx], true
	}
	return Step{}, false
}

type session struct {
	t    *Transport
	opts core.SessionOptions
	once sync.Once
}

func (s *session) SubmitBatch(ctx context.Context, batch model.Batch) (model.BatchResult, error) {
	step, _ := s.t.record(batch)
	if step.Started != nil {
		close(step.Started)
	}
	for _, line := range step.ServerLogs {
		if s.opts.OnServerLog != nil {
			s.opts.OnServerLog(line, model.LogLevelInfo)
		}
	}
	if step.Release != nil {
		select {
		case <-step.Release:
		case <-ctx.Done():
			return model.BatchResult{}, ctx.Err()
		}
	}
	if step.Err != nil {
		return model.BatchResult{}, step.Err
	}
	return Resolve(batch, step.Fail), nil
}

func (s *session) Close() error {
	s.once.Do(func() {
		s.t.mu.Lock()
		s.t.closes++
		s.t.mu.Unlock()
	})
	return nil
}

// Resolve builds the BatchResult a server would return when the addresses in fail are rejected.
func Resolve(batch model.Batch, fail map[string]string) model.BatchResult {
	res := model.BatchResult{Successful: []string{}, Failed: []model.RecipientFailure{}}
	for _, addr := range batch.Recipients {
		if reason, ok := fail[addr]; ok {
			res.Failed = append(res.Failed, model.RecipientFailure{Address: addr, Error: reason})
			continue
		}
		res.Successful = append(res.Successful, addr)
	}
	return res
}
