package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/target/mailrelay/internal/core"
	"github.com/target/mailrelay/internal/domain/dispatch"
	"github.com/target/mailrelay/internal/domain/model"
	apperrors "github.com/target/mailrelay/internal/errors"
	obserrors "github.com/target/mailrelay/internal/observability/errors"
	"github.com/target/mailrelay/internal/observability/metrics"
	"github.com/target/mailrelay/internal/observability/notify"
	"github.com/target/mailrelay/internal/observability/statsd"
	"github.com/target/mailrelay/internal/service/failurenotifier"
)

const (
	// DefaultInterBatchDelay is the pause between consecutive batch submissions.
	DefaultInterBatchDelay = 2 * time.Second
	// DefaultBatchTimeout bounds how long a single batch may remain unresolved.
	DefaultBatchTimeout = 60 * time.Second

	persistTimeout = 5 * time.Second
)

// DispatchServiceOptions groups dependencies for DispatchService.
type DispatchServiceOptions struct {
	Store           core.StateStore          // Required: durable dispatch state
	Transport       core.Transport           // Required: sending server transport
	Logger          *slog.Logger             // Optional: structured logger
	Clock           dispatch.Clock           // Optional: defaults to dispatch.RealClock
	Events          *dispatch.Broadcaster    // Optional: UI event bus, created when nil
	Metrics         statsd.Sink              // Optional: metrics sink
	FailureNotifier *failurenotifier.Service // Optional: failure notification fan-out

	InterBatchDelay  time.Duration // Negative disables pacing; zero is also no delay
	BatchTimeout     time.Duration // Defaults to DefaultBatchTimeout
	LogCap           int           // Defaults to model.DefaultLogCap
	DefaultBatchSize int           // Defaults to model.DefaultBatchSize
	DefaultSender    string        // Defaults to model.DefaultSenderLabel
}

// DispatchService orchestrates bulk email dispatch: one job at a time, batches strictly in
// order, every state mutation flushed to the store and announced to UI listeners.
type DispatchService struct {
	store     core.StateStore
	transport core.Transport
	logger    *slog.Logger
	clock     dispatch.Clock
	events    *dispatch.Broadcaster
	metrics   statsd.Sink
	notifier  *failurenotifier.Service

	delay         time.Duration
	batchTimeout  time.Duration
	logCap        int
	batchSize     int
	defaultSender string

	// mu guards state, loaded, and active. active stays set after Stop until the run has
	// resolved its in-flight batch and closed its session.
	mu     sync.Mutex
	state  *model.DispatchState
	loaded bool
	active *jobRun

	// saveMu orders snapshots so an older state never overwrites a newer one.
	saveMu sync.Mutex

	runs sync.WaitGroup
}

// NewDispatchService constructs a new DispatchService.
func NewDispatchService(opts DispatchServiceOptions) (*DispatchService, error) {
	if opts.Store == nil {
		return nil, errors.New("StateStore is required")
	}
	if opts.Transport == nil {
		return nil, errors.New("Transport is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = dispatch.RealClock{}
	}
	events := opts.Events
	if events == nil {
		events = dispatch.NewBroadcaster()
	}

	batchTimeout := opts.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = DefaultBatchTimeout
	}
	logCap := opts.LogCap
	if logCap <= 0 {
		logCap = model.DefaultLogCap
	}
	batchSize := opts.DefaultBatchSize
	if batchSize <= 0 {
		batchSize = model.DefaultBatchSize
	}
	sender := strings.TrimSpace(opts.DefaultSender)
	if sender == "" {
		sender = model.DefaultSenderLabel
	}

	return &DispatchService{
		store:         opts.Store,
		transport:     opts.Transport,
		logger:        logger.With("component", "dispatch_service", "transport", opts.Transport.Name()),
		clock:         clock,
		events:        events,
		metrics:       opts.Metrics,
		notifier:      opts.FailureNotifier,
		delay:         max(opts.InterBatchDelay, 0),
		batchTimeout:  batchTimeout,
		logCap:        logCap,
		batchSize:     batchSize,
		defaultSender: sender,
		state:         model.NewDispatchState(),
	}, nil
}

// MustNewDispatchService constructs a new DispatchService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewDispatchService(opts DispatchServiceOptions) *DispatchService {
	svc, err := NewDispatchService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create DispatchService: %v", err))
	}
	return svc
}

// Events exposes the UI event bus.
func (s *DispatchService) Events() *dispatch.Broadcaster {
	return s.events
}

// NewJob builds a SendJob from a validated request, applying service defaults.
func (s *DispatchService) NewJob(req *model.StartDispatchRequest) (*model.SendJob, error) {
	if req == nil {
		return nil, apperrors.Validation("request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	recipients := make([]string, len(req.Recipients))
	for i, r := range req.Recipients {
		recipients[i] = strings.TrimSpace(r)
	}
	job := &model.SendJob{
		Recipients: recipients,
		Message: model.Message{
			Subject:     req.Subject,
			Body:        req.Body,
			Attachments: req.Attachments,
		},
		SenderLabel: req.SenderLabel,
		BatchSize:   req.BatchSize,
	}
	s.applyDefaults(job)
	return job, nil
}

func (s *DispatchService) applyDefaults(job *model.SendJob) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.BatchSize <= 0 {
		job.BatchSize = s.batchSize
	}
	if strings.TrimSpace(job.SenderLabel) == "" {
		job.SenderLabel = s.defaultSender
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.clock.Now()
	}
}

// Start runs job to completion on the caller's goroutine. Cancelling ctx stops the job at the
// next batch boundary; a batch already submitted still resolves. A second Start while a job
// runs, or while a stopped job is still draining, returns the current snapshot and an
// AlreadyRunning error. A transport connect failure returns the summary (with Error set) and a
// TransportConnect error.
func (s *DispatchService) Start(ctx context.Context, job *model.SendJob) (*model.Summary, error) {
	run, snapshot, err := s.admit(ctx, job)
	if err != nil {
		return snapshot, err
	}
	defer s.runs.Done()
	return s.run(ctx, run)
}

// StartAsync admits job and runs it on a new goroutine bound to ctx. Admission errors are
// returned immediately; the final summary is delivered on the returned channel.
func (s *DispatchService) StartAsync(ctx context.Context, job *model.SendJob) (<-chan *model.Summary, error) {
	run, _, err := s.admit(ctx, job)
	if err != nil {
		return nil, err
	}
	done := make(chan *model.Summary, 1)
	go func() {
		defer s.runs.Done()
		summary, _ := s.run(ctx, run)
		done <- summary
		close(done)
	}()
	return done, nil
}

type jobRun struct {
	job     model.SendJob
	stop    chan struct{}
	stopped bool // guarded by DispatchService.mu
}

// halted reports whether the run was stopped or its context ended.
func (r *jobRun) halted(ctx context.Context) bool {
	select {
	case <-r.stop:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (s *DispatchService) admit(ctx context.Context, job *model.SendJob) (*jobRun, *model.Summary, error) {
	if job == nil || len(job.Recipients) == 0 {
		return nil, nil, apperrors.Validation("job requires at least one recipient")
	}
	s.ensureLoaded(ctx)

	j := *job
	j.Recipients = append([]string(nil), job.Recipients...)
	s.applyDefaults(&j)

	s.mu.Lock()
	if s.state.IsRunning || s.active != nil {
		draining := !s.state.IsRunning
		snapshot := s.state.Summary()
		s.mu.Unlock()
		s.logger.WarnContext(ctx, "dispatch start rejected, job already running",
			"job_id", snapshot.JobID,
			"draining", draining,
		)
		if draining {
			return nil, snapshot, apperrors.AlreadyRunning("the stopped dispatch job is still finishing its current batch")
		}
		return nil, snapshot, apperrors.AlreadyRunning("a dispatch job is already running")
	}
	s.state.BeginJob(j.ID, len(j.Recipients))
	run := &jobRun{job: j, stop: make(chan struct{})}
	s.active = run
	s.runs.Add(1)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "dispatch job admitted",
		"job_id", j.ID,
		"recipients", len(j.Recipients),
		"batch_size", j.BatchSize,
	)
	s.flush(ctx)
	return run, nil, nil
}

func (s *DispatchService) run(ctx context.Context, r *jobRun) (*model.Summary, error) {
	started := s.clock.Now()
	job := &r.job
	s.AppendLog(ctx, fmt.Sprintf("Starting to send emails to %d recipients", len(job.Recipients)), model.LogLevelInfo)

	session, err := s.transport.Dial(ctx, core.SessionOptions{
		JobID: job.ID,
		OnServerLog: func(message string, level model.LogLevel) {
			s.AppendLog(ctx, message, level)
		},
	})
	if err != nil {
		connErr := apperrors.TransportConnect(err)
		s.AppendLog(ctx, fmt.Sprintf("Failed to connect to server: %v", err), model.LogLevelError)
		summary := s.finish(ctx, r)
		summary.Error = connErr.Error()
		s.logger.ErrorContext(ctx, "dispatch aborted", "job_id", job.ID, "error", err)
		metrics.EmitRun(s.metrics, metrics.RunMetric{
			Result:   metrics.ResultError,
			Duration: s.clock.Now().Sub(started),
			Err:      connErr,
		})
		s.notifyFailure(ctx, job, summary, notify.ReasonTransportConnect, connErr)
		return summary, connErr
	}

	batches := dispatch.Partition(job)
	submitted, stopped := 0, false
	for i, batch := range batches {
		if r.halted(ctx) {
			stopped = true
			break
		}
		if i > 0 && s.delay > 0 {
			s.clock.Sleep(ctx, s.delay, r.stop)
			if r.halted(ctx) {
				stopped = true
				break
			}
		}
		s.AppendLog(ctx, fmt.Sprintf("Sending batch %d of %d (%d recipients)",
			i+1, len(batches), len(batch.Recipients)), model.LogLevelInfo)
		s.submit(ctx, session, batch)
		submitted++
	}

	if cerr := session.Close(); cerr != nil {
		s.logger.WarnContext(ctx, "closing transport session failed", "job_id", job.ID, "error", cerr)
	}

	s.mu.Lock()
	stats := s.state.Stats
	s.mu.Unlock()
	result := metrics.ResultSuccess
	switch {
	case stopped:
		result = metrics.ResultStopped
		s.AppendLog(ctx, fmt.Sprintf("Email sending stopped. Success: %d, Failed: %d",
			stats.EmailsSent, stats.EmailsFailed), model.LogLevelWarning)
	default:
		if stats.EmailsFailed > 0 {
			result = metrics.ResultPartial
		}
		s.AppendLog(ctx, fmt.Sprintf("Email sending completed. Success: %d, Failed: %d",
			stats.EmailsSent, stats.EmailsFailed), model.LogLevelSuccess)
	}
	summary := s.finish(ctx, r)

	s.logger.InfoContext(ctx, "dispatch job finished",
		"job_id", job.ID,
		"result", result,
		"batches_submitted", submitted,
		"batches_total", len(batches),
		"sent", summary.Stats.EmailsSent,
		"failed", summary.Stats.EmailsFailed,
	)
	metrics.EmitRun(s.metrics, metrics.RunMetric{
		Result:   result,
		Batches:  submitted,
		Duration: s.clock.Now().Sub(started),
	})
	if summary.Stats.EmailsFailed > 0 {
		s.notifyFailure(ctx, job, summary, notify.ReasonRecipientFailures, nil)
	}
	return summary, nil
}

// submit sends one batch and records its outcome. The batch is bounded only by the batch
// timeout; cancelling ctx does not cut it off.
func (s *DispatchService) submit(ctx context.Context, session core.TransportSession, batch model.Batch) {
	batchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.batchTimeout)
	begin := s.clock.Now()
	res, err := session.SubmitBatch(batchCtx, batch)
	timedOut := errors.Is(batchCtx.Err(), context.DeadlineExceeded)
	cancel()
	elapsed := s.clock.Now().Sub(begin)

	if err != nil {
		if timedOut {
			err = fmt.Errorf("no response within %s: %w", s.batchTimeout, err)
		}
		if !s.recordBatchFailure(ctx, batch, apperrors.BatchFailure(batch.Index, err)) {
			return
		}
		metrics.EmitBatch(s.metrics, metrics.BatchMetric{
			Transport: s.transport.Name(),
			Failed:    len(batch.Recipients),
			Duration:  elapsed,
			Err:       err,
		})
		return
	}

	sent, failed, ok := s.recordBatchResult(ctx, batch, res)
	if !ok {
		return
	}
	metrics.EmitBatch(s.metrics, metrics.BatchMetric{
		Transport: s.transport.Name(),
		Sent:      sent,
		Failed:    failed,
		Duration:  elapsed,
	})
}

// recordBatchFailure marks every recipient of the batch failed with the batch error. It reports
// false when the state no longer belongs to the batch's job.
func (s *DispatchService) recordBatchFailure(ctx context.Context, batch model.Batch, batchErr *apperrors.AppError) bool {
	now := s.clock.Now()
	reason := batchErr.Error()

	s.mu.Lock()
	if s.state.JobID != batch.JobID {
		s.mu.Unlock()
		s.dropStale(ctx, batch)
		return false
	}
	for _, addr := range batch.Recipients {
		s.state.RecordFailure(addr, reason, now)
	}
	s.mu.Unlock()

	s.logger.WarnContext(ctx, "batch failed",
		"job_id", batch.JobID,
		"batch", batch.Index+1,
		"recipients", len(batch.Recipients),
		"error_class", obserrors.Classify(batchErr),
		"error", batchErr.Cause,
	)
	s.AppendLog(ctx, fmt.Sprintf("Batch %d failed: %v", batch.Index+1, batchErr.Cause), model.LogLevelError)
	return true
}

func (s *DispatchService) dropStale(ctx context.Context, batch model.Batch) {
	s.logger.WarnContext(ctx, "discarding batch outcome for a job that is no longer current",
		"job_id", batch.JobID,
		"batch", batch.Index+1,
	)
}

// recordBatchResult applies the server verdict. Each batch slot is counted at most once;
// addresses the server did not mention are failed, addresses it invented are ignored.
// Results for a job other than the current one are discarded.
func (s *DispatchService) recordBatchResult(ctx context.Context, batch model.Batch, res model.BatchResult) (int, int, bool) {
	pending := make(map[string]int, len(batch.Recipients))
	for _, addr := range batch.Recipients {
		pending[addr]++
	}
	take := func(addr string) bool {
		if pending[addr] == 0 {
			return false
		}
		pending[addr]--
		return true
	}

	now := s.clock.Now()
	var failures []model.RecipientFailure
	var unknown []string
	sent := 0

	s.mu.Lock()
	if s.state.JobID != batch.JobID {
		s.mu.Unlock()
		s.dropStale(ctx, batch)
		return 0, 0, false
	}
	for _, addr := range res.Successful {
		if !take(addr) {
			unknown = append(unknown, addr)
			continue
		}
		s.state.RecordSent(addr)
		sent++
	}
	for _, f := range res.Failed {
		if !take(f.Address) {
			unknown = append(unknown, f.Address)
			continue
		}
		reason := apperrors.RecipientFailure(f.Address, fallback(f.Error, "Failed to send email")).Message
		s.state.RecordFailure(f.Address, reason, now)
		failures = append(failures, model.RecipientFailure{Address: f.Address, Error: reason})
	}
	for _, addr := range batch.Recipients {
		if pending[addr] == 0 {
			continue
		}
		pending[addr]--
		const reason = "no result reported by server"
		s.state.RecordFailure(addr, reason, now)
		failures = append(failures, model.RecipientFailure{Address: addr, Error: reason})
	}
	s.mu.Unlock()

	if len(unknown) > 0 {
		s.logger.WarnContext(ctx, "server reported addresses outside the batch",
			"job_id", batch.JobID,
			"batch", batch.Index+1,
			"addresses", unknown,
		)
	}
	for _, f := range failures {
		s.AppendLog(ctx, fmt.Sprintf("Failed to send to %s: %s", f.Address, f.Error), model.LogLevelError)
	}
	s.AppendLog(ctx, fmt.Sprintf("Batch %d completed: %d sent, %d failed",
		batch.Index+1, sent, len(failures)), model.LogLevelInfo)
	return sent, len(failures), true
}

// finish releases r's claim on the service, clears the running flag if the state still
// belongs to r's job, flushes, and returns the final summary.
func (s *DispatchService) finish(ctx context.Context, r *jobRun) *model.Summary {
	s.mu.Lock()
	if s.active == r {
		s.active = nil
	}
	if s.state.JobID == r.job.ID {
		s.state.IsRunning = false
	}
	summary := s.state.Summary()
	s.mu.Unlock()
	s.flush(ctx)
	return summary
}

func (s *DispatchService) notifyFailure(
	ctx context.Context,
	job *model.SendJob,
	summary *model.Summary,
	reason string,
	cause error,
) {
	if !s.notifier.Enabled() {
		return
	}
	payload := notify.DispatchFailurePayload{
		JobID:       job.ID,
		Reason:      reason,
		SenderLabel: job.SenderLabel,
		Sent:        summary.Stats.EmailsSent,
		Failed:      summary.Stats.EmailsFailed,
		Total:       summary.Stats.TotalRecipients,
		OccurredAt:  s.clock.Now(),
	}
	if cause != nil {
		payload.Error = cause.Error()
		payload.ErrorClass = obserrors.Classify(cause)
	} else if n := len(summary.FailedEmails); n > 0 {
		payload.Error = summary.FailedEmails[n-1].ErrorMessage
		payload.ErrorClass = string(apperrors.ErrCodeRecipientFailure)
	}
	s.notifier.NotifyDispatchFailure(context.WithoutCancel(ctx), payload)
}

// Stop clears the running flag and returns the current snapshot. An in-flight batch still
// resolves and is recorded; no further batch is submitted. Until that batch resolves, Start and
// Reset are rejected. Stop is idempotent.
func (s *DispatchService) Stop(ctx context.Context) *model.Summary {
	s.ensureLoaded(ctx)

	s.mu.Lock()
	wasRunning := s.state.IsRunning
	s.state.IsRunning = false
	if s.active != nil && !s.active.stopped {
		s.active.stopped = true
		close(s.active.stop)
	}
	summary := s.state.Summary()
	s.mu.Unlock()

	if wasRunning {
		s.logger.InfoContext(ctx, "dispatch stop requested", "job_id", summary.JobID)
		s.flush(ctx)
	}
	return summary
}

// Reset reinitialises the dispatch state. It is rejected while a job is running or a stopped
// job is still resolving its last batch.
func (s *DispatchService) Reset(ctx context.Context) error {
	s.ensureLoaded(ctx)

	s.mu.Lock()
	if s.state.IsRunning || s.active != nil {
		s.mu.Unlock()
		return apperrors.AlreadyRunning("cannot reset while a dispatch job is running")
	}
	s.state = model.NewDispatchState()
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "dispatch state reset")
	s.flush(ctx)
	s.events.Publish(model.DispatchEvent{Type: model.DispatchEventStateReset})
	return nil
}

// AppendLog adds an entry to the bounded log, persists it, and announces it to listeners.
// Delivery to listeners is best effort.
func (s *DispatchService) AppendLog(ctx context.Context, message string, level model.LogLevel) model.LogEntry {
	if !level.Valid() {
		level = model.LogLevelInfo
	}
	s.ensureLoaded(ctx)

	entry := model.LogEntry{
		Message:   message,
		Level:     level,
		Timestamp: s.clock.Now().UTC(),
	}

	s.mu.Lock()
	s.state.Logs = dispatch.AppendBounded(s.state.Logs, entry, s.logCap)
	stats := s.state.Stats
	s.mu.Unlock()

	s.flush(ctx)
	s.events.Publish(model.DispatchEvent{
		Type:  model.DispatchEventNewLog,
		Log:   &entry,
		Stats: stats,
	})
	return entry
}

// State returns a copy of the current dispatch state.
func (s *DispatchService) State(ctx context.Context) *model.DispatchState {
	s.ensureLoaded(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Logs returns the newest limit log entries, oldest first. A non-positive limit returns all.
func (s *DispatchService) Logs(ctx context.Context, limit int) []model.LogEntry {
	s.ensureLoaded(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	return dispatch.Tail(s.state.Logs, limit)
}

// ClearLogs empties the log without touching stats or outcomes.
func (s *DispatchService) ClearLogs(ctx context.Context) {
	s.ensureLoaded(ctx)
	s.mu.Lock()
	s.state.Logs = []model.LogEntry{}
	stats := s.state.Stats
	s.mu.Unlock()

	s.flush(ctx)
	s.events.Publish(model.DispatchEvent{Type: model.DispatchEventLogsCleared, Stats: stats})
}

// Shutdown stops any running job and waits for it to finish or ctx to end.
func (s *DispatchService) Shutdown(ctx context.Context) error {
	s.Stop(ctx)
	done := make(chan struct{})
	go func() {
		s.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.events.StopAll()
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for dispatch job: %w", ctx.Err())
	}
}

// ensureLoaded hydrates the in-memory state from the store on first use. A load failure is
// logged and the service continues from a zero state.
func (s *DispatchService) ensureLoaded(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return
	}
	s.loaded = true

	state, err := s.store.Load(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "loading dispatch state failed, starting empty",
			"error", apperrors.Persistence("load", err),
		)
		return
	}
	if state == nil {
		return
	}
	state.Normalize()
	s.state = state.Clone()
}

// flush persists a snapshot of the current state. Failures are logged; memory stays
// authoritative until the next successful save.
func (s *DispatchService) flush(ctx context.Context) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	snapshot := s.state.Clone()
	s.mu.Unlock()

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := s.store.Save(saveCtx, snapshot); err != nil {
		s.logger.WarnContext(ctx, "persisting dispatch state failed",
			"error", apperrors.Persistence("save", err),
		)
	}
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return value
}
