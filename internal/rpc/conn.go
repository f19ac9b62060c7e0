// Package rpc implements the JSON-RPC 2.0 line-framed client (spec §4.2,
// component C2): a full-duplex peer over component C1 (internal/wire)
// that correlates outgoing requests with responses and routes incoming
// notifications and server-originated requests onto separate streams.
//
// Both the Codex and ACP adapters are genuine JSON-RPC 2.0 peers over
// their subprocess's stdio, so they share this one implementation rather
// than each rolling their own correlation table — the three independent
// wire dialects (spec §9) live in the backend packages, not here.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/sessiond/agentbridge"
	"github.com/sessiond/agentbridge/internal/wire"
	"go.uber.org/zap"
)

// Audit, when non-nil, receives one call for every inbound or outbound
// frame for the optional debug trail spec §6 names
// (CODEX_RPC_LOG_FILE/CC_INSIGHTS_CODEX_RPC_LOG_FILE). Failures writing
// the audit trail are suppressed by the caller that implements Audit,
// never surfaced to the RPC peer.
type Audit func(direction string, frame json.RawMessage)

// Config configures a Conn.
type Config struct {
	ScannerBuffer int
	Audit         Audit
	Logger        *zap.Logger // internal diagnostics only, defaults to a no-op logger
	OnParseError  func(line []byte, err error)
}

// Conn is a bidirectional JSON-RPC 2.0 multiplexer over line-framed JSON.
// Conn serializes outbound messages via wire.Writer and dispatches
// inbound messages in ReadLoop. All handlers must be registered before
// ReadLoop starts.
type Conn struct {
	reader *wire.Reader
	writer *wire.Writer
	logger *zap.Logger
	audit  Audit

	nextID  atomic.Int64
	mu      sync.Mutex
	pending map[int64]chan *response

	notifyHandlers map[string]func(json.RawMessage)
	methodHandlers map[string]func(context.Context, json.RawMessage) (any, error)

	done    chan struct{}
	readErr atomic.Value
}

// New creates a JSON-RPC 2.0 connection reading from r and writing to w.
// Call ReadLoop in a goroutine to begin processing inbound messages.
func New(r io.Reader, w io.Writer, cfg Config) *Conn {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Conn{
		writer:         wire.NewWriter(w),
		logger:         logger,
		audit:          cfg.Audit,
		pending:        make(map[int64]chan *response),
		notifyHandlers: make(map[string]func(json.RawMessage)),
		methodHandlers: make(map[string]func(context.Context, json.RawMessage) (any, error)),
		done:           make(chan struct{}),
	}
	c.reader = wire.NewReader(r, wire.Options{
		ScannerBuffer: cfg.ScannerBuffer,
		OnParseError: func(line []byte, err error) {
			logger.Debug("rpc: malformed frame", zap.ByteString("line", line), zap.Error(err))
			if cfg.OnParseError != nil {
				cfg.OnParseError(line, err)
			}
		},
	})
	return c
}

// response is the internal representation of a reply delivered to a
// pending Call.
type response struct {
	result json.RawMessage
	err    *wireError
}

// OnNotification registers a handler for inbound notifications (no id).
// Must be called before ReadLoop starts.
func (c *Conn) OnNotification(method string, h func(json.RawMessage)) {
	c.notifyHandlers[method] = h
}

// OnMethod registers a handler for inbound method calls (id present,
// response expected). Handlers run in their own goroutine so a slow
// handler never blocks ReadLoop. Must be called before ReadLoop starts.
func (c *Conn) OnMethod(method string, h func(context.Context, json.RawMessage) (any, error)) {
	c.methodHandlers[method] = h
}

// Call sends a JSON-RPC request and blocks until the response arrives or
// ctx is done. On success, result is unmarshaled into out (if non-nil).
func (c *Conn) Call(ctx context.Context, method string, params, out any) error {
	select {
	case <-c.done:
		return fmt.Errorf("rpc: %s: %w", method, agentbridge.ErrConnectionClosed)
	default:
	}
	id := c.nextID.Add(1)
	ch := make(chan *response, 1)

	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	req := &frame{JSONRPC: "2.0", ID: &id, Method: method, Params: params}
	if err := c.send(req); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		if errors.Is(err, io.ErrClosedPipe) || errors.Is(err, os.ErrClosed) || errors.Is(err, syscall.EPIPE) {
			err = fmt.Errorf("%w: %w", agentbridge.ErrConnectionClosed, err)
		}
		return fmt.Errorf("rpc: send %s: %w", method, err)
	}

	select {
	case resp, ok := <-ch:
		return c.resolve(resp, ok, method, out)
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		select {
		case resp, ok := <-ch:
			return c.resolve(resp, ok, method, out)
		default:
			return ctx.Err()
		}
	}
}

func (c *Conn) resolve(resp *response, ok bool, method string, out any) error {
	if !ok {
		return fmt.Errorf("rpc: %s: %w", method, agentbridge.ErrConnectionClosed)
	}
	if resp.err != nil {
		return &agentbridge.JsonRpcError{Code: resp.err.Code, Message: resp.err.Message, Data: resp.err.Data}
	}
	if out != nil && len(resp.result) > 0 {
		if err := json.Unmarshal(resp.result, out); err != nil {
			return fmt.Errorf("rpc: unmarshal %s result: %w", method, err)
		}
	}
	return nil
}

// Notify sends a JSON-RPC notification; no response is expected.
func (c *Conn) Notify(method string, params any) error {
	return c.send(&frame{JSONRPC: "2.0", Method: method, Params: params})
}

// RespondResult sends a success response to an inbound method call.
func (c *Conn) RespondResult(id int64, result any) {
	data, err := json.Marshal(result)
	if err != nil {
		c.RespondError(id, -32603, "marshal result: "+err.Error())
		return
	}
	_ = c.send(&frame{JSONRPC: "2.0", ID: &id, Result: data})
}

// RespondError sends an error response to an inbound method call.
func (c *Conn) RespondError(id int64, code int, message string) {
	_ = c.send(&frame{JSONRPC: "2.0", ID: &id, Error: &wireError{Code: code, Message: message}})
}

// ReadLoop reads and dispatches inbound frames until the reader is
// exhausted. On exit, all pending Call channels are closed so blocked
// callers unblock with ErrConnectionClosed. Must be called exactly once,
// typically from its own goroutine.
func (c *Conn) ReadLoop() {
	defer close(c.done)
	defer c.drainPending()

	for {
		raw, ok := c.reader.Next()
		if !ok {
			break
		}
		c.auditFrame("in", raw)

		var msg frame
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Debug("rpc: unparseable frame", zap.Error(err))
			continue
		}
		c.dispatch(&msg)
	}

	if err := c.reader.Err(); err != nil {
		c.readErr.Store(err)
	}
}

// Err returns the ReadLoop's terminal error, if ReadLoop exited on a
// stream error rather than clean EOF.
func (c *Conn) Err() error {
	if v := c.readErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// Done returns a channel closed when ReadLoop exits.
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) send(v any) error {
	if data, err := json.Marshal(v); err == nil {
		c.auditFrame("out", data)
	}
	return c.writer.WriteValue(v)
}

func (c *Conn) auditFrame(direction string, raw json.RawMessage) {
	if c.audit == nil {
		return
	}
	defer func() { _ = recover() }() // audit writer failures never affect the RPC peer
	c.audit(direction, raw)
}

func (c *Conn) dispatch(msg *frame) {
	switch {
	case msg.ID != nil && msg.Method == "":
		c.handleResponse(msg)
	case msg.ID != nil && msg.Method != "":
		c.handleMethodCall(msg)
	case msg.Method != "":
		c.handleNotification(msg)
	}
}

func (c *Conn) handleResponse(msg *frame) {
	c.mu.Lock()
	ch, ok := c.pending[*msg.ID]
	if ok {
		delete(c.pending, *msg.ID)
	}
	c.mu.Unlock()
	if !ok {
		return // duplicate or unsolicited — drop
	}
	ch <- &response{result: msg.Result, err: msg.Error}
}

func (c *Conn) handleMethodCall(msg *frame) {
	h, ok := c.methodHandlers[msg.Method]
	if !ok {
		c.RespondError(*msg.ID, -32601, "method not found: "+msg.Method)
		return
	}
	id := *msg.ID
	params := msg.Params
	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.RespondError(id, -32603, fmt.Sprintf("handler panic: %v", r))
			}
		}()
		result, err := h(context.Background(), params)
		if err != nil {
			c.RespondError(id, -32000, err.Error())
			return
		}
		c.RespondResult(id, result)
	}()
}

func (c *Conn) handleNotification(msg *frame) {
	if h, ok := c.notifyHandlers[msg.Method]; ok {
		h(msg.Params)
	}
}

func (c *Conn) drainPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// --- wire types ---

type frame struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  any             `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *wireError      `json:"error,omitempty"`
}

type wireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}
