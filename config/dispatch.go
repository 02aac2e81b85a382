package config

import (
	"strings"
	"time"
)

// DispatchConfig controls how jobs are split and paced.
type DispatchConfig struct {
	// BatchSize is the default number of recipients per batch.
	BatchSize int `env:"DISPATCH_BATCH_SIZE" envDefault:"25"`

	// InterBatchDelay is the pause before every batch except the first.
	InterBatchDelay time.Duration `env:"DISPATCH_INTER_BATCH_DELAY" envDefault:"2s"`

	// BatchTimeout bounds how long a submitted batch may stay unresolved.
	BatchTimeout time.Duration `env:"DISPATCH_BATCH_TIMEOUT" envDefault:"60s"`

	// LogCap is the number of dispatch log entries retained.
	LogCap int `env:"DISPATCH_LOG_CAP" envDefault:"1000"`

	// DefaultSender labels jobs that do not name a sender.
	DefaultSender string `env:"DISPATCH_DEFAULT_SENDER" envDefault:"Default Sender"`

	// NotifyMinFailed is the number of failed recipients that triggers a failure notification.
	NotifyMinFailed int `env:"DISPATCH_NOTIFY_MIN_FAILED" envDefault:"1"`
}

// Sanitize applies guardrails to dispatch configuration values.
func (d *DispatchConfig) Sanitize() {
	if d.BatchSize < 1 {
		d.BatchSize = 25
	}
	if d.InterBatchDelay < 0 {
		d.InterBatchDelay = 0
	}
	if d.BatchTimeout <= 0 {
		d.BatchTimeout = 60 * time.Second
	}
	if d.LogCap < 1 {
		d.LogCap = 1000
	}
	if d.DefaultSender = strings.TrimSpace(d.DefaultSender); d.DefaultSender == "" {
		d.DefaultSender = "Default Sender"
	}
	if d.NotifyMinFailed < 1 {
		d.NotifyMinFailed = 1
	}
}
