package dispatch

import (
	"context"
	"time"
)

// Clock abstracts time so pacing delays and timestamps can be controlled in tests.
type Clock interface {
	Now() time.Time
	// Sleep waits for d or until ctx or wake fires. It returns false when the wait was cut short.
	Sleep(ctx context.Context, d time.Duration, wake <-chan struct{}) bool
}

// RealClock implements Clock using system time.
type RealClock struct{}

// Now returns the current system time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// Sleep blocks for d unless ctx is cancelled or wake receives.
func (RealClock) Sleep(ctx context.Context, d time.Duration, wake <-chan struct{}) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-wake:
		return false
	}
}

var _ Clock = RealClock{}
