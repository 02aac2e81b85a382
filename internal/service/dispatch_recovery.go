package service

import (
	"context"
	"fmt"

	"github.com/target/mailrelay/internal/domain/model"
)

// Recover loads the persisted state and clears a running flag left behind by a process that
// died mid-job. The abandoned job is not resumed. It reports whether a job was abandoned.
func (s *DispatchService) Recover(ctx context.Context) bool {
	s.ensureLoaded(ctx)

	s.mu.Lock()
	abandoned := s.state.IsRunning && s.active == nil
	var jobID string
	var stats model.Stats
	if abandoned {
		s.state.IsRunning = false
		jobID = s.state.JobID
		stats = s.state.Stats
	}
	s.mu.Unlock()

	if !abandoned {
		return false
	}

	s.logger.WarnContext(ctx, "abandoned dispatch job found at startup",
		"job_id", jobID,
		"sent", stats.EmailsSent,
		"failed", stats.EmailsFailed,
		"total", stats.TotalRecipients,
	)
	s.AppendLog(ctx, "Previous email sending was interrupted by a restart and will not resume. "+
		formatProgress(stats), model.LogLevelWarning)
	return true
}

func formatProgress(stats model.Stats) string {
	return fmt.Sprintf("Success: %d, Failed: %d, Total: %d",
		stats.EmailsSent, stats.EmailsFailed, stats.TotalRecipients)
}
