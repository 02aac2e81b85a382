// Package dispatch holds the pure building blocks of bulk email dispatch:
// batch partitioning, the bounded log, reconnect backoff, and the UI event bus.
package dispatch

import "github.com/target/mailrelay/internal/domain/model"

// BatchCount returns ceil(n/size). A non-positive size counts as one recipient per batch.
func BatchCount(n, size int) int {
	if n <= 0 {
		return 0
	}
	if size <= 0 {
		size = 1
	}
	return (n + size - 1) / size
}

// Partition splits job recipients into ordered batches of at most job.BatchSize addresses.
// Recipient order is preserved across and within batches.
func Partition(job *model.SendJob) []model.Batch {
	if job == nil {
		return nil
	}
	size := job.BatchSize
	if size <= 0 {
		size = model.DefaultBatchSize
	}

	n := len(job.Recipients)
	batches := make([]model.Batch, 0, BatchCount(n, size))
	for start, idx := 0, 0; start < n; start, idx = start+size, idx+1 {
		end := min(start+size, n)
		recipients := make([]string, end-start)
		copy(recipients, job.Recipients[start:end])
		batches = append(batches, model.Batch{
			JobID:       job.ID,
			Index:       idx,
			Recipients:  recipients,
			Message:     job.Message,
			SenderLabel: job.SenderLabel,
		})
	}
	return batches
}
