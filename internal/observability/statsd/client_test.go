package statsd

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizePrefix(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"  mailrelay.api  ": "mailrelay.api",
		"..foo..":           "foo",
		".":                 "",
		"":                  "",
	}
	for input, want := range tests {
		assert.Equal(t, want, sanitizePrefix(input), input)
	}
}

func TestNormalizeMetricName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		" dispatch/batch ": "dispatch_batch",
		"foo..bar":         "foo.bar",
		"multi  space":     "multi__space",
	}
	for input, want := range tests {
		assert.Equal(t, want, normalizeMetricName(input), input)
	}
}

func TestFormatTags(t *testing.T) {
	t.Parallel()

	global := map[string]string{"env": "prod", " service ": " mailrelay "}
	local := map[string]string{"result": " success ", "": "ignored", "env": "stage"}

	assert.Equal(t, "|#env:stage,result:success,service:mailrelay", formatTags(global, local))
	assert.Empty(t, formatTags(nil, nil))
}

func TestLine(t *testing.T) {
	t.Parallel()

	c := &Client{prefix: "mailrelay", globalTags: map[string]string{"env": "dev"}}
	assert.Equal(t, "mailrelay.dispatch.batch:1|c|#env:dev,result:success",
		c.Line("dispatch.batch", "1", "c", map[string]string{"result": "success"}))
	assert.Empty(t, c.Line("  ", "1", "c", nil))
}

func TestClientWritesOverConnection(t *testing.T) {
	t.Parallel()

	clientConn, peerConn := net.Pipe()
	defer peerConn.Close()

	c := &Client{prefix: "mr", globalTags: map[string]string{}, conn: clientConn}
	require.True(t, c.Enabled())

	got := make(chan string, 1)
	go func() {
		buf := make([]byte, 256)
		n, _ := peerConn.Read(buf)
		got <- string(buf[:n])
	}()

	c.Gauge("dispatch.running", 1, nil)
	select {
	case line := <-got:
		assert.Equal(t, "mr.dispatch.running:1|g", line)
	case <-time.After(time.Second):
		t.Fatal("expected gauge line")
	}

	require.NoError(t, c.Close())
	assert.False(t, c.Enabled())
	require.NoError(t, c.Close())
}

func TestNilClientIsSafe(t *testing.T) {
	t.Parallel()

	var c *Client
	assert.False(t, c.Enabled())
	assert.NoError(t, c.Close())
	c.Count("x", 1, nil)
}

func TestNewClientDisabledWithoutAddress(t *testing.T) {
	t.Parallel()

	c, err := NewClient(Config{Enabled: true, Address: "   "})
	require.NoError(t, err)
	assert.False(t, c.Enabled())
}

func TestNewClientDialError(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{Enabled: true, Address: "bad address"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "statsd dial")
}

func TestRecorder(t *testing.T) {
	t.Parallel()

	r := &Recorder{}
	r.Count("dispatch.batch", 2, map[string]string{"result": "success"})
	r.Timing("dispatch.batch.duration", 1500*time.Millisecond, nil)

	require.Len(t, r.Metrics(), 2)
	timing := r.Named("dispatch.batch.duration")
	require.Len(t, timing, 1)
	assert.InDelta(t, 1500, timing[0].Value, 0.001)
	assert.Equal(t, "success", r.Named("dispatch.batch")[0].Tags["result"])
}
