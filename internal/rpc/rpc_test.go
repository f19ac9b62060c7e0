package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sessiond/agentbridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pair wires two Conns back to back over in-process pipes, as if each were
// talking to the other's stdio.
type pair struct {
	a, b *Conn
}

func newPair(t *testing.T, cfgA, cfgB Config) *pair {
	t.Helper()
	arToB, aw := io.Pipe() // a writes here, b reads here
	br, bw := io.Pipe()    // b writes here, a reads here

	a := New(br, aw, cfgA)
	b := New(arToB, bw, cfgB)

	go a.ReadLoop()
	go b.ReadLoop()

	t.Cleanup(func() {
		_ = aw.Close()
		_ = bw.Close()
	})

	return &pair{a: a, b: b}
}

func TestCall_ReceivesResultFromHandler(t *testing.T) {
	p := newPair(t, Config{}, Config{})
	p.b.OnMethod("ping", func(ctx context.Context, params json.RawMessage) (any, error) {
		return map[string]string{"pong": "yes"}, nil
	})

	var out map[string]string
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.a.Call(ctx, "ping", nil, &out))
	assert.Equal(t, "yes", out["pong"])
}

func TestCall_ReceivesErrorFromHandler(t *testing.T) {
	p := newPair(t, Config{}, Config{})
	p.b.OnMethod("fail", func(ctx context.Context, params json.RawMessage) (any, error) {
		return nil, errors.New("boom")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := p.a.Call(ctx, "fail", nil, nil)
	require.Error(t, err)
	var rpcErr *agentbridge.JsonRpcError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, -32000, rpcErr.Code)
	assert.Equal(t, "boom", rpcErr.Message)
}

func TestCall_UnknownMethodReturnsMethodNotFound(t *testing.T) {
	p := newPair(t, Config{}, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := p.a.Call(ctx, "nosuch", nil, nil)
	require.Error(t, err)
	var rpcErr *agentbridge.JsonRpcError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, -32601, rpcErr.Code)
}

func TestCall_HandlerPanicReturnsInternalError(t *testing.T) {
	p := newPair(t, Config{}, Config{})
	p.b.OnMethod("blowup", func(ctx context.Context, params json.RawMessage) (any, error) {
		panic("kaboom")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := p.a.Call(ctx, "blowup", nil, nil)
	require.Error(t, err)
	var rpcErr *agentbridge.JsonRpcError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, -32603, rpcErr.Code)
}

func TestCall_ContextCancelledBeforeResponseReturnsCtxErr(t *testing.T) {
	p := newPair(t, Config{}, Config{})
	block := make(chan struct{})
	p.b.OnMethod("slow", func(ctx context.Context, params json.RawMessage) (any, error) {
		<-block
		return "done", nil
	})
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := p.a.Call(ctx, "slow", nil, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNotify_DispatchesToNotificationHandler(t *testing.T) {
	p := newPair(t, Config{}, Config{})
	received := make(chan string, 1)
	p.b.OnNotification("event", func(params json.RawMessage) {
		var s string
		_ = json.Unmarshal(params, &s)
		received <- s
	})

	require.NoError(t, p.a.Notify("event", "hello"))
	select {
	case got := <-received:
		assert.Equal(t, "hello", got)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
}

func TestNotify_UnregisteredMethodIsIgnored(t *testing.T) {
	p := newPair(t, Config{}, Config{})
	require.NoError(t, p.a.Notify("nobody-listens", nil))
	// give the read loop a beat to process; absence of panic/hang is the assertion
	time.Sleep(50 * time.Millisecond)
}

func TestReadLoop_ClosesPendingCallsOnPeerClose(t *testing.T) {
	ar, aw := io.Pipe()
	br, bw := io.Pipe()
	a := New(br, aw, Config{})
	go a.ReadLoop()

	// Close the write-half that feeds a's reader, simulating peer shutdown.
	_ = ar.Close()
	_ = bw.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := a.Call(ctx, "whatever", nil, nil)
	assert.ErrorIs(t, err, agentbridge.ErrConnectionClosed)

	<-a.Done()
	_ = aw.Close()
}

func TestAuditFrame_CalledForOutboundAndInboundFrames(t *testing.T) {
	var aOut, bIn []string
	p := newPair(t,
		Config{Audit: func(direction string, frame json.RawMessage) {
			if direction == "out" {
				aOut = append(aOut, string(frame))
			}
		}},
		Config{Audit: func(direction string, frame json.RawMessage) {
			if direction == "in" {
				bIn = append(bIn, string(frame))
			}
		}},
	)
	p.b.OnMethod("m", func(ctx context.Context, params json.RawMessage) (any, error) {
		return "ok", nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.a.Call(ctx, "m", nil, nil))

	require.NotEmpty(t, aOut)
	require.NotEmpty(t, bIn)
	assert.Contains(t, aOut[0], `"method":"m"`)
}

func TestAuditFrame_PanicIsSuppressed(t *testing.T) {
	p := newPair(t, Config{Audit: func(direction string, frame json.RawMessage) {
		panic("audit exploded")
	}}, Config{})

	require.NotPanics(t, func() {
		_ = p.a.Notify("event", nil)
	})
}

func TestRespondResult_MarshalFailureSendsInternalError(t *testing.T) {
	p := newPair(t, Config{}, Config{})
	p.b.OnMethod("bad-result", func(ctx context.Context, params json.RawMessage) (any, error) {
		return make(chan int), nil // unmarshalable
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := p.a.Call(ctx, "bad-result", nil, nil)
	require.Error(t, err)
	var rpcErr *agentbridge.JsonRpcError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, -32603, rpcErr.Code)
}

func TestCall_UnmarshalsResultIntoOut(t *testing.T) {
	type pingResult struct {
		Value int `json:"value"`
	}
	p := newPair(t, Config{}, Config{})
	p.b.OnMethod("get", func(ctx context.Context, params json.RawMessage) (any, error) {
		return pingResult{Value: 42}, nil
	})

	var out pingResult
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.a.Call(ctx, "get", nil, &out))
	assert.Equal(t, 42, out.Value)
}
