// Package testutil provides testing utilities and helpers for the mailrelay dispatch service.
package testutil

import (
	"fmt"
	"time"

	"github.com/target/mailrelay/internal/domain/model"
)

// SendJobBuilder provides a fluent interface for building SendJob values for testing.
type SendJobBuilder struct {
	job *model.SendJob
}

// NewSendJob creates a SendJobBuilder with a single recipient and sensible defaults.
func NewSendJob() *SendJobBuilder {
	return &SendJobBuilder{
		job: &model.SendJob{
			ID:         "job-test",
			Recipients: []string{"user00@example.com"},
			Message: model.Message{
				Subject: "Quarterly update",
				Body:    "Hello from the test suite",
			},
			SenderLabel: model.DefaultSenderLabel,
			BatchSize:   model.DefaultBatchSize,
			CreatedAt:   TestTime(),
		},
	}
}

// WithID sets the job ID.
func (b *SendJobBuilder) WithID(id string) *SendJobBuilder {
	b.job.ID = id
	return b
}

// WithRecipients replaces the recipient list.
func (b *SendJobBuilder) WithRecipients(addrs ...string) *SendJobBuilder {
	b.job.Recipients = append([]string(nil), addrs...)
	return b
}

// WithGeneratedRecipients replaces the recipient list with n addresses user00@example.com, user01@example.com, ...
func (b *SendJobBuilder) WithGeneratedRecipients(n int) *SendJobBuilder {
	b.job.Recipients = Recipients(n)
	return b
}

// WithBatchSize sets the batch size.
func (b *SendJobBuilder) WithBatchSize(size int) *SendJobBuilder {
	b.job.BatchSize = size
	return b
}

// WithSender sets the sender label.
func (b *SendJobBuilder) WithSender(label string) *SendJobBuilder {
	b.job.SenderLabel = label
	return b
}

// WithAttachment appends an attachment.
func (b *SendJobBuilder) WithAttachment(name string, content []byte) *SendJobBuilder {
	b.job.Message.Attachments = append(b.job.Message.Attachments, model.Attachment{
		Filename: name,
		Content:  content,
	})
	return b
}

// Build returns the constructed SendJob.
func (b *SendJobBuilder) Build() *model.SendJob {
	return b.job
}

// Recipients returns n deterministic test addresses.
func Recipients(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("user%02d@example.com", i)
	}
	return out
}

// DispatchStateFixture returns a populated, idle state suitable for persistence round trips.
func DispatchStateFixture() *model.DispatchState {
	at := TestTime()
	st := model.NewDispatchState()
	st.BeginJob("job-fixture", 3)
	st.RecordSent("user00@example.com")
	st.RecordSent("user01@example.com")
	st.RecordFailure("user02@example.com", "mailbox unavailable", at)
	st.Logs = append(st.Logs,
		model.LogEntry{Message: "Starting to send emails to 3 recipients", Level: model.LogLevelInfo, Timestamp: at},
		model.LogEntry{Message: "Failed to send to user02@example.com: mailbox unavailable", Level: model.LogLevelError, Timestamp: at.Add(time.Second)},
	)
	st.IsRunning = false
	return st
}
