package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDispatchErrorConstructors(t *testing.T) {
	cause := errors.New("dial tcp: refused")

	connErr := TransportConnect(cause)
	assert.True(t, IsTransportConnect(connErr))
	assert.ErrorIs(t, connErr, cause)
	assert.Equal(t, "failed to connect to sending server: dial tcp: refused", connErr.Error())

	batchErr := BatchFailure(1, cause)
	assert.True(t, IsBatchFailure(batchErr))
	assert.Equal(t, "batch 2 failed: dial tcp: refused", batchErr.Error())

	running := AlreadyRunning("dispatch already running")
	assert.True(t, IsAlreadyRunning(fmt.Errorf("start: %w", running)))
	assert.False(t, IsConflict(running))

	rec := RecipientFailure("a@example.com", "mailbox full")
	assert.Equal(t, ErrCodeRecipientFailure, GetCode(rec))
	assert.Equal(t, "a@example.com", GetField(rec))

	persist := Persistence("save", cause)
	assert.True(t, IsPersistence(persist))
	assert.Equal(t, "dispatch state save failed: dial tcp: refused", persist.Error())
	assert.Nil(t, Persistence("save", nil))
}
