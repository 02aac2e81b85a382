package dispatch

import "github.com/target/mailrelay/internal/domain/model"

// AppendBounded appends entry to logs and evicts the oldest entries so at most limit remain.
// A non-positive limit falls back to model.DefaultLogCap.
func AppendBounded(logs []model.LogEntry, entry model.LogEntry, limit int) []model.LogEntry {
	if limit <= 0 {
		limit = model.DefaultLogCap
	}
	logs = append(logs, entry)
	if over := len(logs) - limit; over > 0 {
		// Copy into a fresh slice so the evicted prefix can be collected.
		trimmed := make([]model.LogEntry, limit)
		copy(trimmed, logs[over:])
		return trimmed
	}
	return logs
}

// Tail returns the newest limit entries, oldest first. A non-positive limit returns all entries.
func Tail(logs []model.LogEntry, limit int) []model.LogEntry {
	if limit <= 0 || limit >= len(logs) {
		out := make([]model.LogEntry, len(logs))
		copy(out, logs)
		return out
	}
	out := make([]model.LogEntry, limit)
	copy(out, logs[len(logs)-limit:])
	return out
}
