package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconnectPolicy_DefaultSchedule(t *testing.T) {
	p := DefaultReconnectPolicy()
	require.NoError(t, p.Validate())
	assert.Equal(t, []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		5 * time.Second,
	}, p.Schedule())
}

func TestReconnectPolicy_Backoff(t *testing.T) {
	p := ReconnectPolicy{MaxAttempts: 3, InitialBackoff: 100 * time.Millisecond, Multiplier: 3}
	assert.Equal(t, time.Duration(0), p.Backoff(0))
	assert.Equal(t, 100*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 300*time.Millisecond, p.Backoff(2))
	assert.Equal(t, 900*time.Millisecond, p.Backoff(3))
}

func TestReconnectPolicy_MultiplierBelowOneIsConstant(t *testing.T) {
	p := ReconnectPolicy{MaxAttempts: 3, InitialBackoff: time.Second, Multiplier: 0}
	assert.Equal(t, []time.Duration{time.Second, time.Second}, p.Schedule())
}

func TestReconnectPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		policy  ReconnectPolicy
		wantErr bool
	}{
		{"default", DefaultReconnectPolicy(), false},
		{"zero attempts", ReconnectPolicy{InitialBackoff: time.Second}, true},
		{"zero backoff", ReconnectPolicy{MaxAttempts: 1}, true},
		{"max below initial", ReconnectPolicy{MaxAttempts: 2, InitialBackoff: 2 * time.Second, MaxBackoff: time.Second}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidReconnectPolicy)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestReconnectPolicy_SingleAttemptHasNoSchedule(t *testing.T) {
	p := ReconnectPolicy{MaxAttempts: 1, InitialBackoff: time.Second}
	assert.Empty(t, p.Schedule())
}
