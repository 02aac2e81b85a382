//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"errors"
	"strings"
	"time"
)

// DefaultBatchSize is the number of recipients submitted per batch when a job does not specify one.
const DefaultBatchSize = 25

// DefaultSenderLabel is used when a job omits its sender label.
const DefaultSenderLabel = "Default Sender"

// DefaultLogCap bounds the number of retained dispatch log entries.
const DefaultLogCap = 1000

// LogLevel classifies a dispatch log entry.
type LogLevel string

const (
	// LogLevelInfo is a neutral progress message.
	LogLevelInfo LogLevel = "info"
	// LogLevelSuccess marks a successful outcome.
	LogLevelSuccess LogLevel = "success"
	// LogLevelWarning marks a recoverable problem.
	LogLevelWarning LogLevel = "warning"
	// LogLevelError marks a failure.
	LogLevelError LogLevel = "error"
)

// Valid reports whether the level is one of the known values.
func (l LogLevel) Valid() bool {
	switch l {
	case LogLevelInfo, LogLevelSuccess, LogLevelWarning, LogLevelError:
		return true
	default:
		return false
	}
}

// ParseLogLevel normalises s into a LogLevel, falling back to info for unknown input.
func ParseLogLevel(s string) LogLevel {
	l := LogLevel(strings.ToLower(strings.TrimSpace(s)))
	if l.Valid() {
		return l
	}
	return LogLevelInfo
}

// Attachment is a file carried with every message of a job.
// Content is base64 encoded on the wire.
type Attachment struct {
	Filename    string `json:"filename"`
	Content     []byte `json:"content"`
	ContentType string `json:"contentType,omitempty"`
}

// Message is the template sent to every recipient of a job.
type Message struct {
	Subject     string       `json:"subject"`
	Body        string       `json:"body"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// SendJob is one bulk send request. It is never reused across messages.
type SendJob struct {
	ID          string    `json:"id"`
	Recipients  []string  `json:"recipients"`
	Message     Message   `json:"message"`
	SenderLabel string    `json:"senderLabel"`
	BatchSize   int       `json:"batchSize"`
	CreatedAt   time.Time `json:"createdAt"`
}

// StartDispatchRequest is the UI payload that creates a SendJob.
type StartDispatchRequest struct {
	Recipients  []string     `json:"recipients"`
	Subject     string       `json:"subject"`
	Body        string       `json:"body"`
	Attachments []Attachment `json:"attachments,omitempty"`
	SenderLabel string       `json:"senderLabel,omitempty"`
	BatchSize   int          `json:"batchSize,omitempty"`
}

// Validate validates the StartDispatchRequest fields.
func (r *StartDispatchRequest) Validate() error {
	if len(r.Recipients) == 0 {
		return errors.New("at least one recipient is required")
	}
	for _, addr := range r.Recipients {
		if strings.TrimSpace(addr) == "" {
			return errors.New("recipient address must not be empty")
		}
	}
	if strings.TrimSpace(r.Subject) == "" {
		return errors.New("subject is required")
	}
	if r.BatchSize < 0 {
		return errors.New("batch size must be positive")
	}
	for _, a := range r.Attachments {
		if strings.TrimSpace(a.Filename) == "" {
			return errors.New("attachment filename is required")
		}
	}
	return nil
}

// Batch is a contiguous, ordered slice of a job's recipients.
type Batch struct {
	JobID       string   `json:"jobId"`
	Index       int      `json:"index"`
	Recipients  []string `json:"recipients"`
	Message     Message  `json:"message"`
	SenderLabel string   `json:"senderLabel"`
}

// RecipientFailure is a per-address failure reported by the sending server.
type RecipientFailure struct {
	Address string `json:"email"`
	Error   string `json:"error"`
}

// BatchResult is the sending server's verdict for one batch.
type BatchResult struct {
	Successful []string           `json:"successful"`
	Failed     []RecipientFailure `json:"failed"`
}

// Stats aggregates dispatch counters.
type Stats struct {
	EmailsSent      int `json:"emailsSent"`
	EmailsFailed    int `json:"emailsFailed"`
	TotalRecipients int `json:"totalRecipients"`
}

// Processed returns the number of recipients with a recorded outcome.
func (s Stats) Processed() int {
	return s.EmailsSent + s.EmailsFailed
}

// FailedRecipient records a failed address with its reason.
type FailedRecipient struct {
	Address      string    `json:"email"`
	ErrorMessage string    `json:"error"`
	Timestamp    time.Time `json:"timestamp"`
}

// LogEntry is one line of the user-visible dispatch log.
type LogEntry struct {
	Message   string    `json:"message"`
	Level     LogLevel  `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// DispatchState is the durable, process-wide dispatch record.
type DispatchState struct {
	IsRunning        bool              `json:"isRunning"`
	JobID            string            `json:"jobId,omitempty"`
	Stats            Stats             `json:"stats"`
	SentRecipients   []string          `json:"sentEmails"`
	FailedRecipients []FailedRecipient `json:"failedEmails"`
	Logs             []LogEntry        `json:"logs"`

	sentIndex map[string]struct{}
}

// NewDispatchState returns the zero state with non-nil collections.
func NewDispatchState() *DispatchState {
	return &DispatchState{
		SentRecipients:   []string{},
		FailedRecipients: []FailedRecipient{},
		Logs:             []LogEntry{},
	}
}

// Normalize replaces nil collections so the state always serialises as arrays.
func (s *DispatchState) Normalize() {
	if s.SentRecipients == nil {
		s.SentRecipients = []string{}
	}
	if s.FailedRecipients == nil {
		s.FailedRecipients = []FailedRecipient{}
	}
	if s.Logs == nil {
		s.Logs = []LogEntry{}
	}
}

// BeginJob prepares the state for a new job of total recipients.
// Logs are kept; outcomes of the previous job are cleared.
func (s *DispatchState) BeginJob(jobID string, total int) {
	s.IsRunning = true
	s.JobID = jobID
	s.Stats = Stats{TotalRecipients: total}
	s.SentRecipients = []string{}
	s.FailedRecipients = []FailedRecipient{}
	s.sentIndex = nil
}

// RecordSent counts a delivered address. The sent set keeps the first occurrence only.
func (s *DispatchState) RecordSent(addr string) {
	s.Stats.EmailsSent++
	if s.sentIndex == nil {
		s.sentIndex = make(map[string]struct{}, len(s.SentRecipients))
		for _, a := range s.SentRecipients {
			s.sentIndex[a] = struct{}{}
		}
	}
	if _, ok := s.sentIndex[addr]; ok {
		return
	}
	s.sentIndex[addr] = struct{}{}
	s.SentRecipients = append(s.SentRecipients, addr)
}

// RecordFailure counts a failed address with its reason.
func (s *DispatchState) RecordFailure(addr, reason string, at time.Time) {
	s.Stats.EmailsFailed++
	s.FailedRecipients = append(s.FailedRecipients, FailedRecipient{
		Address:      addr,
		ErrorMessage: reason,
		Timestamp:    at,
	})
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s *DispatchState) Clone() *DispatchState {
	if s == nil {
		return NewDispatchState()
	}
	out := &DispatchState{
		IsRunning:        s.IsRunning,
		JobID:            s.JobID,
		Stats:            s.Stats,
		SentRecipients:   append([]string{}, s.SentRecipients...),
		FailedRecipients: append([]FailedRecipient{}, s.FailedRecipients...),
		Logs:             append([]LogEntry{}, s.Logs...),
	}
	return out
}

// Summary returns the caller-facing snapshot of the state.
func (s *DispatchState) Summary() *Summary {
	c := s.Clone()
	return &Summary{
		JobID:        c.JobID,
		IsRunning:    c.IsRunning,
		SentEmails:   c.SentRecipients,
		FailedEmails: c.FailedRecipients,
		Stats:        c.Stats,
	}
}

// Summary is returned by start and stop.
type Summary struct {
	JobID        string            `json:"jobId,omitempty"`
	IsRunning    bool              `json:"isRunning"`
	SentEmails   []string          `json:"sentEmails"`
	FailedEmails []FailedRecipient `json:"failedEmails"`
	Stats        Stats             `json:"stats"`
	Error        string            `json:"error,omitempty"`
}

// DispatchEventType names an event pushed to UI listeners.
type DispatchEventType string

const (
	// DispatchEventNewLog carries an appended log entry.
	DispatchEventNewLog DispatchEventType = "newLog"
	// DispatchEventLogsCleared signals the log was emptied.
	DispatchEventLogsCleared DispatchEventType = "logs_cleared"
	// DispatchEventStateReset signals the state was reinitialised.
	DispatchEventStateReset DispatchEventType = "state_reset"
)

// DispatchEvent is pushed to UI listeners.
type DispatchEvent struct {
	Type  DispatchEventType `json:"action"`
	Log   *LogEntry         `json:"log,omitempty"`
	Stats Stats             `json:"stats"`
}
