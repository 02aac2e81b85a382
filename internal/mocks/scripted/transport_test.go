package scripted

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mailrelay/internal/core"
	"github.com/target/mailrelay/internal/domain/model"
)

func TestTransport_DefaultsToSuccess(t *testing.T) {
	tr := &Transport{}
	sess, err := tr.Dial(context.Background(), core.SessionOptions{JobID: "j"})
	require.NoError(t, err)

	res, err := sess.SubmitBatch(context.Background(), model.Batch{Recipients: []string{"a@x.io", "b@x.io"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a@x.io", "b@x.io"}, res.Successful)
	assert.Empty(t, res.Failed)

	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close())
	assert.Equal(t, 1, tr.Closes())
	assert.Equal(t, 1, tr.Dials())
	assert.Equal(t, "j", tr.SessionOptions()[0].JobID)
}

func TestTransport_ScriptedSteps(t *testing.T) {
	var logs []string
	tr := &Transport{Steps: []Step{
		{Fail: map[string]string{"b@x.io": "mailbox full"}, ServerLogs: []string{"sending"}},
		{Err: errors.New("disconnected")},
	}}
	sess, err := tr.Dial(context.Background(), core.SessionOptions{
		OnServerLog: func(msg string, _ model.LogLevel) { logs = append(logs, msg) },
	})
	require.NoError(t, err)

	res, err := sess.SubmitBatch(context.Background(), model.Batch{Recipients: []string{"a@x.io", "b@x.io"}})
	require.NoError(t, err)
	assert.Equal(t, []model.RecipientFailure{{Address: "b@x.io", Error: "mailbox full"}}, res.Failed)
	assert.Equal(t, []string{"sending"}, logs)

	_, err = sess.SubmitBatch(context.Background(), model.Batch{Index: 1})
	require.EqualError(t, err, "disconnected")
	assert.Len(t, tr.Submitted(), 2)
}

func TestTransport_ReleaseHonoursContext(t *testing.T) {
	release := make(chan struct{})
	tr := &Transport{Steps: []Step{{Release: release}}}
	sess, err := tr.Dial(context.Background(), core.SessionOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = sess.SubmitBatch(ctx, model.Batch{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTransport_DialError(t *testing.T) {
	tr := &Transport{DialErr: errors.New("refused")}
	_, err := tr.Dial(context.Background(), core.SessionOptions{})
	require.EqualError(t, err, "refused")
	assert.Equal(t, 1, tr.Dials())
}
