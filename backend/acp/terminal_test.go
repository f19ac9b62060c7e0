package acp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItoa(t *testing.T) {
	cases := map[uint64]string{
		0:          "0",
		1:          "1",
		42:         "42",
		1000000:    "1000000",
		18446744073709551615: "18446744073709551615",
	}
	for n, want := range cases {
		assert.Equal(t, want, itoa(n))
	}
}

func TestExitDetail_NilErrorIsCleanExit(t *testing.T) {
	code, signal := exitDetail(nil)
	assert.Equal(t, 0, code)
	assert.Equal(t, "", signal)
}

func TestTerminalRegistry_CreateRunWaitRelease(t *testing.T) {
	r := newTerminalRegistry()
	id, err := r.create("sh", []string{"-c", "echo hello"}, "", nil)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	ts, ok := r.get(id)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	status, err := ts.waitForExit(ctx)
	require.NoError(t, err)
	require.NotNil(t, status.ExitCode)
	assert.Equal(t, 0, *status.ExitCode)

	output, _, outStatus := ts.output()
	assert.Contains(t, output, "hello")
	require.NotNil(t, outStatus)
	assert.Equal(t, 0, *outStatus.ExitCode)

	r.release(id)
	_, ok = r.get(id)
	assert.False(t, ok)
}

func TestTerminalRegistry_UnknownIDNotFound(t *testing.T) {
	r := newTerminalRegistry()
	_, ok := r.get("does-not-exist")
	assert.False(t, ok)
}

func TestBoundedWriter_CapsOutput(t *testing.T) {
	ts := &terminalSession{done: make(chan struct{})}
	w := &boundedWriter{ts: ts}

	big := make([]byte, terminalOutputCap+100)
	for i := range big {
		big[i] = 'x'
	}
	n, err := w.Write(big)
	require.NoError(t, err)
	assert.Equal(t, len(big), n) // Write always reports the full length consumed

	ts.mu.Lock()
	got := ts.buf.Len()
	ts.mu.Unlock()
	assert.Equal(t, terminalOutputCap, got)
}
