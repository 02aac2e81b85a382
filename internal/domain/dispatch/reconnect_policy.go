package dispatch

import (
	"errors"
	"time"
)

// ErrInvalidReconnectPolicy indicates a reconnect policy with unusable values.
var ErrInvalidReconnectPolicy = errors.New("reconnect policy requires positive attempts and backoff")

// ReconnectPolicy controls how a transport retries establishing its session.
type ReconnectPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// DefaultReconnectPolicy mirrors the socket client defaults the sending server was built against.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		MaxAttempts:    5,
		InitialBackoff: time.Second,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2,
	}
}

// Validate reports whether the policy can drive a reconnect loop.
func (p ReconnectPolicy) Validate() error {
	if p.MaxAttempts <= 0 || p.InitialBackoff <= 0 {
		return ErrInvalidReconnectPolicy
	}
	if p.MaxBackoff > 0 && p.MaxBackoff < p.InitialBackoff {
		return ErrInvalidReconnectPolicy
	}
	return nil
}

// Backoff returns the delay before retry number attempt (1-based: the delay after the first
// failed attempt is Backoff(1)). The result never exceeds MaxBackoff when it is set.
func (p ReconnectPolicy) Backoff(attempt int) time.Duration {
	if attempt <= 0 || p.InitialBackoff <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}

	d := float64(p.InitialBackoff)
	limit := float64(p.MaxBackoff)
	for i := 1; i < attempt; i++ {
		d *= mult
		if limit > 0 && d >= limit {
			return p.MaxBackoff
		}
	}
	if limit > 0 && d > limit {
		return p.MaxBackoff
	}
	return time.Duration(d)
}

// Schedule lists the delays between consecutive attempts (MaxAttempts-1 entries).
func (p ReconnectPolicy) Schedule() []time.Duration {
	if p.MaxAttempts <= 1 {
		return nil
	}
	out := make([]time.Duration, 0, p.MaxAttempts-1)
	for i := 1; i < p.MaxAttempts; i++ {
		out = append(out, p.Backoff(i))
	}
	return out
}
