package notify

import (
	"context"
	"time"
)

// Retry runs send up to attempts times with a linear backoff of step between tries.
func Retry(ctx context.Context, attempts int, step time.Duration, send func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := range attempts {
		err := send()
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt == attempts-1 {
			break
		}
		timer := time.NewTimer(time.Duration(attempt+1) * step)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}
